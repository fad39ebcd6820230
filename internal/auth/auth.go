// Package auth signs users up and in, tracks who the current user of a
// session is, and tells subscribers when users sign in or out.
//
// Sessions are HS256 JWTs. Signing out revokes the token id until the token
// would have expired anyway, so revocation entries never outlive their token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"neovest/internal/core"
	applog "neovest/internal/log"
	"neovest/internal/records"
)

const (
	MinPasswordLen = 8
	DefaultTTL     = 7 * 24 * time.Hour
	issuer         = "neovest"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = records.ErrEmailTaken
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrInvalidToken       = errors.New("invalid session token")
	ErrMissingSecret      = errors.New("session secret must not be empty")
)

type EventKind int

const (
	SignedIn EventKind = iota + 1
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	}
	return "unknown"
}

type (
	Event struct {
		Kind   EventKind
		UserID string
		At     time.Time
	}

	Session struct {
		Token     string
		UserID    string
		ExpiresAt time.Time
	}

	// RevocationStore remembers signed-out token ids until they expire.
	RevocationStore interface {
		Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
		IsRevoked(ctx context.Context, tokenID string) (bool, error)
	}

	Options struct {
		Secret []byte
		TTL    time.Duration    // DefaultTTL when zero
		Now    func() time.Time // time.Now when nil
		Cost   int              // bcrypt.DefaultCost when zero
		Logger *applog.Logger
	}

	Service struct {
		users   records.UserStore
		revoked RevocationStore
		secret  []byte
		ttl     time.Duration
		now     func() time.Time
		cost    int
		logger  *applog.Logger

		mu        sync.Mutex
		nextSubID int
		subs      []subscriber
	}

	subscriber struct {
		id int
		fn func(Event)
	}
)

func NewService(users records.UserStore, revoked RevocationStore, opts Options) (*Service, error) {
	if len(opts.Secret) == 0 {
		return nil, ErrMissingSecret
	}
	s := &Service{
		users:   users,
		revoked: revoked,
		secret:  opts.Secret,
		ttl:     opts.TTL,
		now:     opts.Now,
		cost:    opts.Cost,
		logger:  opts.Logger,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentAuth)
	return s, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp creates a user. It does not sign the user in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (core.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return core.User{}, err
	}
	if len(password) < MinPasswordLen {
		return core.User{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return core.User{}, fmt.Errorf("generate user id: %w", err)
	}

	ts := s.now()
	u := core.User{
		ID:           id.String(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, records.ErrEmailTaken) {
			return core.User{}, ErrEmailTaken
		}
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User signed up", applog.FieldUserID, u.ID, applog.FieldOperation, applog.OpSignUp)
	return u, nil
}

// SignIn checks credentials and issues a session. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, records.ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	sess, err := s.issue(u.ID)
	if err != nil {
		return Session{}, err
	}

	s.logger.InfoContext(ctx, "User signed in", applog.FieldUserID, u.ID, applog.FieldOperation, applog.OpSignIn)
	s.publish(Event{Kind: SignedIn, UserID: u.ID, At: s.now()})
	return sess, nil
}

func (s *Service) issue(userID string) (Session, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate token id: %w", err)
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session token: %w", err)
	}
	return Session{Token: signed, UserID: userID, ExpiresAt: exp}, nil
}

func (s *Service) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CurrentUser returns the user a session token belongs to, or ok=false when
// the token is missing, invalid, expired or signed out.
func (s *Service) CurrentUser(ctx context.Context, token string) (userID string, ok bool) {
	if token == "" {
		return "", false
	}
	claims, err := s.parse(token)
	if err != nil {
		return "", false
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "Revocation lookup failed", applog.FieldError, err.Error())
		return "", false
	}
	if revoked {
		return "", false
	}
	return claims.Subject, true
}

// User loads the profile behind a user id returned by CurrentUser.
func (s *Service) User(ctx context.Context, userID string) (core.User, error) {
	return s.users.UserByID(ctx, userID)
}

// SignOut revokes the session. Signing out an already signed out session is a no-op.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	already, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	if already {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.logger.InfoContext(ctx, "User signed out", applog.FieldUserID, claims.Subject, applog.FieldOperation, applog.OpSignOut)
	s.publish(Event{Kind: SignedOut, UserID: claims.Subject, At: s.now()})
	return nil
}

// Subscribe registers fn for sign-in and sign-out events. Listeners run
// synchronously, in registration order, on the goroutine that caused the event.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Service) publish(ev Event) {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}
