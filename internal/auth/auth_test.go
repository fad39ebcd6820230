package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"neovest/internal/records/memory"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return f.now }
	f.store.WithClock(clock)
	svc, err := NewService(f.store, f.store, Options{
		Secret: []byte("test-secret"),
		TTL:    time.Hour,
		Now:    clock,
		Cost:   bcrypt.MinCost,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(memory.New(), memory.New(), Options{})
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestSignUpAndSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.SignUp(ctx, " Priya@Example.com ", "correct horse", "Priya")
	require.NoError(t, err)
	assert.Equal(t, "priya@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	_, err = f.svc.SignUp(ctx, "priya@example.com", "another password", "")
	assert.ErrorIs(t, err, ErrEmailTaken)

	sess, err := f.svc.SignIn(ctx, "PRIYA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.Equal(t, f.now.Add(time.Hour), sess.ExpiresAt)

	got, ok := f.svc.CurrentUser(ctx, sess.Token)
	assert.True(t, ok)
	assert.Equal(t, u.ID, got)
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SignUp(context.Background(), "not-an-email", "long enough", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	_, err = f.svc.SignUp(context.Background(), "a@b.in", "short", "")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, "a@b.in", "password1", "")
	require.NoError(t, err)

	_, err = f.svc.SignIn(ctx, "a@b.in", "password2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.SignIn(ctx, "nobody@b.in", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCurrentUserRejectsExpiredAndForeignTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _ = f.svc.SignUp(ctx, "a@b.in", "password1", "")
	sess, err := f.svc.SignIn(ctx, "a@b.in", "password1")
	require.NoError(t, err)

	_, ok := f.svc.CurrentUser(ctx, "")
	assert.False(t, ok)
	_, ok = f.svc.CurrentUser(ctx, "garbage")
	assert.False(t, ok)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: issuer, Subject: "someone", ID: "x",
		ExpiresAt: jwt.NewNumericDate(f.now.Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, ok = f.svc.CurrentUser(ctx, forged)
	assert.False(t, ok)

	f.now = f.now.Add(2 * time.Hour)
	_, ok = f.svc.CurrentUser(ctx, sess.Token)
	assert.False(t, ok, "expired token must not authenticate")
}

func TestSignOutRevokesAndNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.svc.SignUp(ctx, "a@b.in", "password1", "")

	var events []Event
	var order []int
	unsub := f.svc.Subscribe(func(ev Event) { events = append(events, ev); order = append(order, 1) })
	f.svc.Subscribe(func(Event) { order = append(order, 2) })

	sess, err := f.svc.SignIn(ctx, "a@b.in", "password1")
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx, sess.Token))
	// second sign out does not notify again
	require.NoError(t, f.svc.SignOut(ctx, sess.Token))

	_, ok := f.svc.CurrentUser(ctx, sess.Token)
	assert.False(t, ok)

	require.Len(t, events, 2)
	assert.Equal(t, SignedIn, events[0].Kind)
	assert.Equal(t, SignedOut, events[1].Kind)
	assert.Equal(t, u.ID, events[1].UserID)
	assert.Equal(t, []int{1, 2, 1, 2}, order)

	unsub()
	unsub()
	_, _ = f.svc.SignIn(ctx, "a@b.in", "password1")
	assert.Len(t, events, 2, "unsubscribed listener must not be called")
	assert.Equal(t, []int{1, 2, 1, 2, 2}, order)
}

func TestSignOutRejectsInvalidToken(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.SignOut(context.Background(), "nope"), ErrInvalidToken)
}

func TestRequireUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u, _ := f.svc.SignUp(ctx, "a@b.in", "password1", "")
	sess, _ := f.svc.SignIn(ctx, "a@b.in", "password1")

	var seen string
	h := f.svc.RequireUser("/signin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
	}))

	// page navigation without a session redirects
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get("Location"))

	// htmx request gets 401 and a client side redirect
	req := httptest.NewRequest(http.MethodGet, "/ui/stats", nil)
	req.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/signin", rec.Header().Get("HX-Redirect"))

	// api request gets 401
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// cookie session passes
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.Token})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.ID, seen)

	// bearer token passes
	seen = ""
	req = httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, u.ID, seen)
}

func TestSessionCookies(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, true)
	ClearSessionCookie(rec, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, -1, cookies[1].MaxAge)
}
