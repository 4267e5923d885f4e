// Package auth signs users up and in with email and password and resolves
// bearer tokens back to sessions.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"expensa/internal/core"
	"expensa/internal/log"
	"expensa/internal/ports"
)

const (
	MinPasswordLength = 8
	// MaxPasswordBytes is the most bcrypt will hash.
	MaxPasswordBytes = 72
)

var (
	ErrInvalidEmail       = errors.New("please enter a valid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordTooLong    = fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrUnauthorized       = errors.New("unauthorized")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Session identifies the signed-in user for the lifetime of a token. It is
// passed explicitly into every service call.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	users  ports.UserStore
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Service)

// WithBcryptCost lowers the hashing cost, used by tests.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(users ports.UserStore, ttl time.Duration, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		users:  users,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentAuth),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateCredentials applies the sign-in form rules.
func ValidateCredentials(email, password string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers the user, seeds the default categories and opens a session.
func (s *Service) SignUp(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := ValidateCredentials(email, password); err != nil {
		return Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, string(hash), DefaultCategories())
	if err != nil {
		if errors.Is(err, ports.ErrEmailTaken) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "User signed up",
		log.FieldOperation, log.OpSignUp,
		log.FieldOwnerID, user.ID)

	return s.openSession(ctx, user)
}

// SignIn verifies the password and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if err := ValidateCredentials(email, password); err != nil {
		return Session{}, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Rejected sign-in",
			log.FieldOperation, log.OpSignIn,
			log.FieldErrorType, log.ErrorTypeAuth)
		return Session{}, ErrInvalidCredentials
	}

	return s.openSession(ctx, user)
}

// SignOut destroys the session. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.users.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.DebugContext(ctx, "User signed out", log.FieldOperation, log.OpSignOut)
	return nil
}

// Authenticate resolves a bearer token. Missing, unknown and expired tokens
// all yield ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthorized
	}
	stored, err := s.users.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if !s.now().Before(stored.ExpiresAt) {
		return Session{}, ErrUnauthorized
	}
	return Session{
		Token:     stored.Token,
		UserID:    stored.UserID,
		Email:     stored.Email,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// PurgeExpired removes sessions past their expiry.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.users.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) openSession(ctx context.Context, user ports.User) (Session, error) {
	token, err := newToken()
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	stored := ports.Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.users.CreateSession(ctx, stored); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
