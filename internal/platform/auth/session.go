package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenRevoked = errors.New("token revoked")
	ErrNoSession    = errors.New("not signed in")
)

// Claims is the JWT body of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Session is the authenticated identity handed to every data access call.
// It exists from sign-in until sign-out; there is no ambient session.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	TokenID     string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Valid reports whether s carries an identity that has not expired.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.UserID != "" && now.Before(s.ExpiresAt)
}

// RequireUser returns the session's user id, or ErrNoSession when there is
// no usable session.
func RequireUser(s *Session) (uuid.UUID, error) {
	if s == nil || s.UserID == "" {
		return uuid.Nil, ErrNoSession
	}
	id, err := uuid.Parse(s.UserID)
	if err != nil {
		return uuid.Nil, ErrNoSession
	}
	return id, nil
}

const issuer = "medtrack"

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokens(signingKey []byte, ttl time.Duration) *Tokens {
	return &Tokens{key: signingKey, ttl: ttl, now: time.Now}
}

// Issue signs a new session for the user.
func (t *Tokens) Issue(userID, email string) (*Session, error) {
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{
		AccessToken: signed,
		TokenType:   "bearer",
		UserID:      userID,
		Email:       email,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Parse verifies a token and rebuilds the session it represents.
func (t *Tokens) Parse(tokenStr string) (*Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &Session{
		AccessToken: tokenStr,
		TokenType:   "bearer",
		UserID:      claims.Subject,
		Email:       claims.Email,
		TokenID:     claims.ID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
