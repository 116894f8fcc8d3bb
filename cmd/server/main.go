package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gorillasessions "github.com/gorilla/sessions"
	"github.com/taskward/taskward/assets"
	"github.com/taskward/taskward/internal"
	"github.com/taskward/taskward/internal/auth"
	authdb "github.com/taskward/taskward/internal/auth/db"
	"github.com/taskward/taskward/internal/db"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/email/mailgun"
	"github.com/taskward/taskward/internal/email/postmark"
	emailview "github.com/taskward/taskward/internal/email/view"
	"github.com/taskward/taskward/internal/krypto"
	"github.com/taskward/taskward/internal/migrate"
	"github.com/taskward/taskward/internal/tasks"
	taskdb "github.com/taskward/taskward/internal/tasks/db"
	"github.com/taskward/taskward/internal/web"
	"github.com/taskward/taskward/internal/web/sessions"
	"github.com/taskward/taskward/internal/web/view"
	"github.com/taskward/taskward/migrations"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	// Reads and writes get their own connection pools, SQLite needs
	// different settings for each.
	writeDB, err := db.OpenSQLite(cfg.db.file, true)
	if err != nil {
		logger.Error("failed to open database for writing", "error", err)
		return 1
	}
	defer writeDB.Close()

	readDB, err := db.OpenSQLite(cfg.db.file, false)
	if err != nil {
		logger.Error("failed to open database for reading", "error", err)
		return 1
	}
	defer readDB.Close()

	if cfg.db.migrate {
		logger.Info("attempting to migrate database", "file", cfg.db.file)

		migCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		ran, err := migrate.RunFS(migCtx, writeDB, migrations.FS, migrate.Metadata{
			AppVersion: internal.BuildRevision,
			Timestamp:  time.Now(),
		})
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}

		for _, m := range ran {
			logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
		}
	}

	encryptor, err := krypto.NewEncryptor(cfg.db.encryptionKeys)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		return 1
	}

	emailSvc := email.NewService(
		emailview.NewFSRenderer(assets.EmailFS),
		emailSender(logger, cfg.email),
		cfg.email.from,
	)

	authSvc, err := auth.NewService(
		authdb.New(readDB, writeDB, encryptor, cfg.db.blindIndexKey),
		emailSvc,
		func(err error) {
			logger.Error("email worker failed", "error", err)
		},
		cfg.auth,
	)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	taskSvc := tasks.NewService(taskdb.New(readDB, writeDB))

	renderer, err := viewRenderer(logger, cfg.http.viewDir)
	if err != nil {
		logger.Error("failed to create view renderer", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler: web.NewServer(&web.ServerDeps{
			Logger:       logger,
			ViewRenderer: renderer,
			AuthService:  authSvc,
			TaskService:  taskSvc,
			SessionStore: sessions.NewStore(cookieStore(cfg.http)),
			DistFS:       http.FS(assets.DistFS),
		}, cfg.http.server),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"buildRevision", internal.BuildRevision,
			"buildRevisionTime", internal.BuildRevisionTime,
			"buildLocalModified", internal.BuildLocalModified,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Let outstanding email workers finish before exiting.
	authSvc.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

// emailSender selects the sender for the configured driver.
func emailSender(logger *slog.Logger, cfg emailConfig) email.Sender {
	client := &http.Client{
		Timeout: time.Second * 10,
	}

	switch cfg.driver {
	case driverPostmark:
		return postmark.NewSender(client, cfg.postmark)
	case driverMailgun:
		return mailgun.NewSender(client, cfg.mailgun)
	default:
		return email.NewLogSender(logger)
	}
}

// viewRenderer returns the renderer for HTML pages. By default views
// are parsed once from the embedded templates, with a view directory
// they are re-parsed from disk on every request.
func viewRenderer(logger *slog.Logger, viewDir string) (web.ViewRenderer, error) {
	if viewDir != "" {
		logger.Info("loading templates from disk", "dir", viewDir)
		return view.NewFSRenderer(os.DirFS(viewDir)), nil
	}

	return view.NewMemRenderer(assets.TemplateFS)
}

func cookieStore(cfg httpConfig) *gorillasessions.CookieStore {
	keyPairs := make([][]byte, 0, len(cfg.cookieKeys))
	for _, key := range cfg.cookieKeys {
		keyPairs = append(keyPairs, key.SecretValue())
	}

	store := gorillasessions.NewCookieStore(keyPairs...)
	// Sessions expire after 24 hours. MaxAge also updates the codecs, so
	// stale cookies fail decoding instead of lingering until the browser
	// drops them.
	store.MaxAge(24 * 60 * 60)
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.server.SecureCookie
	store.Options.SameSite = http.SameSiteLaxMode

	return store
}
