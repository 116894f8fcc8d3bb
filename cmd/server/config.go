package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/taskward/taskward/internal/auth"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/email/mailgun"
	"github.com/taskward/taskward/internal/email/postmark"
	"github.com/taskward/taskward/internal/krypto"
	"github.com/taskward/taskward/internal/web"
)

// Email driver names.
const (
	driverLog      = "log"
	driverPostmark = "postmark"
	driverMailgun  = "mailgun"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	// viewDir, when set, loads templates from disk instead of the
	// embedded ones. Useful during development.
	viewDir    string
	cookieKeys []krypto.Key
	server     web.ServerConfig
}

// dbConfig is the configuration for the SQLite database.
type dbConfig struct {
	file           string
	migrate        bool
	encryptionKeys []krypto.Key
	blindIndexKey  krypto.Key
}

// emailConfig is the configuration for outgoing email.
type emailConfig struct {
	driver   string
	from     email.Address
	postmark postmark.Settings
	mailgun  mailgun.Settings
}

// config is the configuration for the server command.
type config struct {
	http  httpConfig
	db    dbConfig
	auth  auth.ServiceConfig
	email emailConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			server: web.ServerConfig{
				SecureCookie: true,
			},
		},
		db: dbConfig{
			file:    "taskward.db",
			migrate: true,
		},
		auth: auth.ServiceConfig{
			WorkerTimeout:    time.Second * 10,
			OTPExpiry:        auth.OTPExpiry,
			ResetTokenExpiry: auth.ResetTokenExpiry,
			BaseURL:          mustURL("http://localhost:8888"),
		},
		email: emailConfig{
			driver: driverLog,
			postmark: postmark.Settings{
				APIURL:        mustURL("https://api.postmarkapp.com"),
				MessageStream: "outbound",
			},
			mailgun: mailgun.Settings{
				APIHost:  "https://api.eu.mailgun.net",
				Username: "api",
			},
		},
	}
}

// requiredKeys are env variables without defaults, mostly key material
// that should never be baked into the binary.
var requiredKeys = []string{
	"HTTP_COOKIE_KEYS",
	"HTTP_CSRF_KEY",
	"DB_ENCRYPTION_KEYS",
	"DB_BLIND_INDEX_KEY",
	"EMAIL_FROM",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"BASE_URL": func(v string, c *config) error {
		return confURL(v, &c.auth.BaseURL)
	},
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_VIEW_DIR": func(v string, c *config) error {
		c.http.viewDir = v
		return nil
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		return confKeys(v, &c.http.cookieKeys)
	},
	"HTTP_CSRF_KEY": func(v string, c *config) error {
		return confKey(v, &c.http.server.CSRFKey)
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.server.SecureCookie)
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty database filename")
		}
		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"DB_ENCRYPTION_KEYS": func(v string, c *config) error {
		return confKeys(v, &c.db.encryptionKeys)
	},
	"DB_BLIND_INDEX_KEY": func(v string, c *config) error {
		return confKey(v, &c.db.blindIndexKey)
	},
	"AUTH_WORKER_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.auth.WorkerTimeout, 0, math.MaxInt64)
	},
	"AUTH_OTP_EXPIRY": func(v string, c *config) error {
		return confDuration(v, &c.auth.OTPExpiry, 0, math.MaxInt64)
	},
	"AUTH_RESET_TOKEN_EXPIRY": func(v string, c *config) error {
		return confDuration(v, &c.auth.ResetTokenExpiry, 0, math.MaxInt64)
	},
	"EMAIL_DRIVER": func(v string, c *config) error {
		switch v {
		case driverLog, driverPostmark, driverMailgun:
			c.email.driver = v
			return nil
		default:
			return fmt.Errorf("unknown email driver %q", v)
		}
	},
	"EMAIL_FROM": func(v string, c *config) error {
		from, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = from
		return nil
	},
	"POSTMARK_API_URL": func(v string, c *config) error {
		return confURL(v, &c.email.postmark.APIURL)
	},
	"POSTMARK_MESSAGE_STREAM": func(v string, c *config) error {
		c.email.postmark.MessageStream = v
		return nil
	},
	"POSTMARK_SERVER_TOKEN": func(v string, c *config) error {
		c.email.postmark.ServerToken = krypto.NewSecret(v)
		return nil
	},
	"MAILGUN_API_HOST": func(v string, c *config) error {
		c.email.mailgun.APIHost = v
		return nil
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		c.email.mailgun.Domain = v
		return nil
	},
	"MAILGUN_API_KEY": func(v string, c *config) error {
		c.email.mailgun.Password = v
		return nil
	},
}

// configFromEnv returns a config with values from the environment. It
// falls back to default values for any missing environment variables,
// except the required ones.
//
// It does a best effort to validate provided values, so that mistakes
// are caught ASAP. However, there is no guarantee that the returned
// config is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	seen := make(map[string]bool, len(envMap))

	for key, mf := range envMap {
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}

		seen[key] = true
		if err := mf(val, &c); err != nil {
			errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
		}
	}

	for _, key := range requiredKeys {
		if !seen[key] {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	return c, errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b
	return nil
}

func confKey(v string, tgt *krypto.Key) error {
	key, err := krypto.ParseKey(v)
	if err != nil {
		return err
	}

	*tgt = key
	return nil
}

func confKeys(v string, tgt *[]krypto.Key) error {
	parts := strings.Split(v, ",")
	keys := make([]krypto.Key, 0, len(parts))
	for _, part := range parts {
		key, err := krypto.ParseKey(part)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	*tgt = keys
	return nil
}

func confURL(v string, tgt **url.URL) error {
	u, err := url.Parse(v)
	if err != nil {
		return err
	}

	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("url %q is missing a scheme or host", v)
	}

	*tgt = u
	return nil
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
