package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

var (
	ErrInvalidCredentials = errors.New("Invalid login credentials")
	ErrEmailTaken         = errors.New("User already registered")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrUserNotFound       = errors.New("user not found")
)

// Revoker is satisfied by *auth.TokenRevocationStore.
type Revoker interface {
	Revoke(jti string, expiresAt time.Time)
	IsRevoked(jti string) bool
}

type Service struct {
	users   Repository
	tokens  *auth.Tokens
	revoked Revoker
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(users Repository, tokens *auth.Tokens, revoked Revoker, logger zerolog.Logger) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		revoked: revoked,
		logger:  logger.With().Str("component", "identity").Logger(),
		now:     time.Now,
	}
}

func normalizeCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
		return "", ErrInvalidEmail
	}
	if password == "" {
		return "", ErrPasswordRequired
	}
	return email, nil
}

// SignUp registers a user and signs them in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*auth.Session, error) {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("user registered")
	return s.tokens.Issue(u.ID.String(), u.Email)
}

// SignIn verifies the password and issues a session. Unknown email and wrong
// password fail the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (*auth.Session, error) {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.logger.Debug().Str("user_id", u.ID.String()).Msg("password mismatch")
		return nil, ErrInvalidCredentials
	}
	return s.tokens.Issue(u.ID.String(), u.Email)
}

// SignOut revokes the session's token. Signing out without a session is a
// no-op.
func (s *Service) SignOut(sess *auth.Session) {
	if sess == nil {
		return
	}
	s.revoked.Revoke(sess.TokenID, sess.ExpiresAt)
}

// Resolve turns a stored access token back into a session.
func (s *Service) Resolve(token string) (*auth.Session, error) {
	sess, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if s.revoked.IsRevoked(sess.TokenID) {
		return nil, auth.ErrTokenRevoked
	}
	return sess, nil
}

// CurrentUser returns the signed-in user, or nil when there is no session.
func (s *Service) CurrentUser(ctx context.Context, sess *auth.Session) (*User, error) {
	if !sess.Valid(s.now()) {
		return nil, nil
	}
	id, err := auth.RequireUser(sess)
	if err != nil {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	return u, err
}
