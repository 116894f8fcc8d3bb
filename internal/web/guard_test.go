package web_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	gorillasessions "github.com/gorilla/sessions"
	"github.com/taskward/taskward/internal/auth"
	authdb "github.com/taskward/taskward/internal/auth/db"
	"github.com/taskward/taskward/internal/db/testdb"
	"github.com/taskward/taskward/internal/email"
	"github.com/taskward/taskward/internal/krypto"
	"github.com/taskward/taskward/internal/tasks"
	taskdb "github.com/taskward/taskward/internal/tasks/db"
	"github.com/taskward/taskward/internal/web"
	"github.com/taskward/taskward/internal/web/sessions"
)

func Test_LoggedInGuard(t *testing.T) {
	t.Run("ok, verified user reaches their task list", func(t *testing.T) {
		st := newServerTest(t)
		user := st.registerUser(true)

		res := st.get("/tasks", st.sessionCookie(func(sess *sessions.Session) {
			sess.SetUserID(user.ID)
		}))

		if res.StatusCode != http.StatusOK {
			t.Fatalf("got status %d, want %d", res.StatusCode, http.StatusOK)
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatalf("failed to read response body: %v", err)
		}

		if !strings.Contains(string(body), "tasks") {
			t.Errorf("expected the tasks view, got body\n%s", body)
		}
	})

	t.Run("fail, no session is sent to the login page", func(t *testing.T) {
		st := newServerTest(t)

		res := st.get("/tasks")

		assertRedirect(t, res, "/login")
	})

	t.Run("fail, session for a deleted user is destroyed", func(t *testing.T) {
		st := newServerTest(t)

		// A valid cookie referring to a user that does not exist in the
		// database, the same state a stale cookie ends up in after its
		// account is removed.
		res := st.get("/tasks", st.sessionCookie(func(sess *sessions.Session) {
			sess.SetUserID(uuid.New())
		}))

		assertRedirect(t, res, "/login")
		assertSessionDestroyed(t, res)
	})

	t.Run("fail, session for an unverified user is destroyed", func(t *testing.T) {
		st := newServerTest(t)
		user := st.registerUser(false)

		res := st.get("/tasks", st.sessionCookie(func(sess *sessions.Session) {
			sess.SetUserID(user.ID)
		}))

		assertRedirect(t, res, "/login")
		assertSessionDestroyed(t, res)
	})

	t.Run("fail, temporary session does not grant access", func(t *testing.T) {
		st := newServerTest(t)
		user := st.registerUser(true)

		res := st.get("/tasks", st.sessionCookie(func(sess *sessions.Session) {
			sess.SetTempUserID(user.ID)
		}))

		assertRedirect(t, res, "/login")
	})
}

func Test_SessionCookieSetOnce(t *testing.T) {
	st := newServerTest(t)

	res := st.get("/register")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want %d", res.StatusCode, http.StatusOK)
	}

	count := 0
	for _, c := range res.Cookies() {
		if c.Name == sessions.CookieName {
			count++
		}
	}

	if count != 1 {
		t.Errorf("got %d session cookies on the response, want 1", count)
	}
}

func assertRedirect(t *testing.T, res *http.Response, target string) {
	t.Helper()

	if res.StatusCode != http.StatusFound {
		t.Fatalf("got status %d, want %d", res.StatusCode, http.StatusFound)
	}

	if loc := res.Header.Get("Location"); loc != target {
		t.Errorf("got redirect to %q, want %q", loc, target)
	}
}

// assertSessionDestroyed checks that the response expires the session
// cookie.
func assertSessionDestroyed(t *testing.T, res *http.Response) {
	t.Helper()

	for _, c := range res.Cookies() {
		if c.Name == sessions.CookieName && c.MaxAge < 0 {
			return
		}
	}

	t.Errorf("expected an expired session cookie on the response")
}

// serverTest runs a server against an in-memory database, with a
// renderer that writes view names instead of full pages.
type serverTest struct {
	t       *testing.T
	srv     *web.Server
	auth    *auth.Service
	store   *sessions.Store
	emailer *captureEmailer
}

func newServerTest(t *testing.T) *serverTest {
	t.Helper()

	encryptor := must(krypto.NewEncryptor([]krypto.Key{
		must(krypto.ParseKey("2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d")),
	}))
	indexKey := must(krypto.ParseKey("90303dfed7994260ea4817a5ca8a392915cd401115b2f97495dadfcbcd14adbf"))

	testDB := testdb.RunWhile(t, true)

	st := &serverTest{
		t:       t,
		store:   sessions.NewStore(gorillasessions.NewCookieStore([]byte("thisIsExactly32BytesOfCookieKey!"))),
		emailer: &captureEmailer{},
	}

	authSvc, err := auth.NewService(
		authdb.New(testDB, testDB, encryptor, indexKey),
		st.emailer,
		func(err error) {
			t.Errorf("email worker failed: %v", err)
		},
		auth.ServiceConfig{
			WorkerTimeout: time.Second,
			BaseURL:       must(url.Parse("http://localhost:8888")),
		},
	)
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	st.auth = authSvc
	st.srv = web.NewServer(&web.ServerDeps{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		ViewRenderer: viewNameRenderer{},
		AuthService:  authSvc,
		TaskService:  tasks.NewService(taskdb.New(testDB, testDB)),
		SessionStore: st.store,
		DistFS:       http.FS(fstest.MapFS{".keep": &fstest.MapFile{}}),
	}, web.ServerConfig{
		CSRFKey:      must(krypto.ParseKey("7b0a86eca54d1b4be425dbfbeebcdd1c62cdbae818dfc581bb699e4da19fc0a0")),
		SecureCookie: false,
	})

	return st
}

func (st *serverTest) get(path string, cookies ...*http.Cookie) *http.Response {
	st.t.Helper()

	r := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	st.srv.ServeHTTP(w, r)

	return w.Result()
}

// sessionCookie builds a session cookie the way a handler would, by
// modifying a fresh session and capturing the Set-Cookie result.
func (st *serverTest) sessionCookie(mod func(*sessions.Session)) *http.Cookie {
	st.t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	sess, err := st.store.Get(r)
	if err != nil {
		st.t.Fatalf("failed to get session: %v", err)
	}

	mod(sess)

	err = st.store.Save(r, w, sess)
	if err != nil {
		st.t.Fatalf("failed to save session: %v", err)
	}

	for _, c := range w.Result().Cookies() {
		if c.Name == sessions.CookieName {
			return c
		}
	}

	st.t.Fatalf("no session cookie was set")
	return nil
}

func (st *serverTest) registerUser(verified bool) auth.User {
	st.t.Helper()

	user, err := st.auth.Register(context.Background(), auth.Registration{
		FirstName:       "Jane",
		LastName:        "Doe",
		Username:        "jane-doe",
		Email:           must(email.ParseAddress("jane@example.com")),
		Password:        must(auth.ParsePassword("reallyStrongPassword1")),
		ConfirmPassword: must(auth.ParsePassword("reallyStrongPassword1")),
	})
	if err != nil {
		st.t.Fatalf("failed to register user: %v", err)
	}

	// Wait for the email worker so the verification code is captured.
	st.auth.Wait()

	if !verified {
		return user
	}

	data, ok := st.emailer.last().(auth.VerifyEmailData)
	if !ok {
		st.t.Fatalf("unexpected email data type: %T", st.emailer.last())
	}

	err = st.auth.VerifyEmail(context.Background(), user.ID, data.Code)
	if err != nil {
		st.t.Fatalf("failed to verify email: %v", err)
	}

	return user
}

type viewNameRenderer struct{}

func (viewNameRenderer) Render(w io.Writer, name string, _ any) error {
	_, err := io.WriteString(w, name)
	return err
}

type captureEmailer struct {
	data []any
}

func (e *captureEmailer) Send(_ context.Context, _ string, _ email.Address, data interface{}) error {
	e.data = append(e.data, data)
	return nil
}

func (e *captureEmailer) last() any {
	if len(e.data) == 0 {
		return nil
	}

	return e.data[len(e.data)-1]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
