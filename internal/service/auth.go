// Package service contains application services for documents, history and authentication.
package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/sitecfg/internal/errs"
	"github.com/and161185/sitecfg/internal/model"
)

// ActorClaims is the JWT payload that identifies an editor.
type ActorClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	Role              string `json:"role,omitempty"`
}

// AuthService turns bearer tokens into actors and mints tokens for tooling.
type AuthService interface {
	// Authenticate verifies token and returns the actor it names.
	Authenticate(token string) (model.Actor, error)
	// IssueToken signs a token for actor.
	IssueToken(actor model.Actor) (string, time.Time, error)
}

type AuthServiceImpl struct {
	signKey   []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewAuthService constructs AuthService for HS256 tokens signed with signKey.
func NewAuthService(signKey []byte, accessTTL time.Duration) *AuthServiceImpl {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	return &AuthServiceImpl{signKey: signKey, accessTTL: accessTTL, now: time.Now}
}

// Authenticate verifies an HS256 token and maps its claims to an actor.
func (s *AuthServiceImpl) Authenticate(token string) (model.Actor, error) {
	if len(s.signKey) == 0 {
		return model.Actor{}, fmt.Errorf("%w: no signing key configured", errs.ErrUnauthorized)
	}
	var claims ActorClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithLeeway(30*time.Second))
	if err != nil || !parsed.Valid {
		return model.Actor{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Subject == "" && claims.PreferredUsername == "" {
		return model.Actor{}, fmt.Errorf("%w: token names nobody", errs.ErrUnauthorized)
	}
	return model.Actor{
		ID:       claims.Subject,
		Username: claims.PreferredUsername,
		Email:    actorEmail(claims.Email),
		Role:     claims.Role,
	}, nil
}

// actorEmail keeps a claimed email only when it is well formed.
func actorEmail(email string) string {
	if email == "" || validate.Var(email, "email") != nil {
		return ""
	}
	return email
}

// IssueToken creates a signed HS256 JWT for actor.
func (s *AuthServiceImpl) IssueToken(actor model.Actor) (string, time.Time, error) {
	if len(s.signKey) == 0 {
		return "", time.Time{}, errors.New("no signing key configured")
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		PreferredUsername: actor.Username,
		Email:             actor.Email,
		Role:              actor.Role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
