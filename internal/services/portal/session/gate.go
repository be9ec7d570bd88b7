// Package session issues and validates bearer tokens for portal requests.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/apacbi/budgetportal/internal/platform/errors"
	"github.com/apacbi/budgetportal/internal/services/portal/storage"
)

// DefaultTTL matches the original portal's eight-hour session window.
const DefaultTTL = 8 * time.Hour

// Identity is the validated caller attached to a request.
type Identity struct {
	UserID       string
	BusinessUnit string
}

// Token is an issued session token and its metadata.
type Token struct {
	Value        string
	UserID       string
	BusinessUnit string
	ExpiresAt    time.Time
}

// sessionClaims is the JWT claim set carried by session tokens.
type sessionClaims struct {
	jwt.RegisteredClaims
	BusinessUnit string `json:"business_unit"`
}

// Gate validates the caller context attached to every mutating request.
//
// Login is only granted to users with a seeded session row; the portal does
// not self-register editors.
type Gate struct {
	store  storage.SessionStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewGate creates a session gate backed by the given store and signing secret.
func NewGate(store storage.SessionStore, secret []byte, ttl time.Duration) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("session signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{
		store:  store,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Login authenticates a known user and rotates their session token.
func (g *Gate) Login(ctx context.Context, userID, businessUnit string) (Token, error) {
	userID = strings.TrimSpace(userID)
	businessUnit = strings.TrimSpace(businessUnit)
	if userID == "" {
		return Token{}, apperrors.New(apperrors.CodeValidation, "user id is required")
	}
	if businessUnit == "" {
		return Token{}, apperrors.New(apperrors.CodeBusinessUnitRequired, "business unit is required")
	}

	if _, err := g.store.GetSession(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Token{}, apperrors.New(apperrors.CodeUserUnknown, "unknown user id")
		}
		return Token{}, apperrors.Wrap(apperrors.CodeStorage, "load session", err)
	}

	now := g.now().UTC()
	expiresAt := now.Add(g.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		BusinessUnit: businessUnit,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign session token: %w", err)
	}

	if err := g.store.UpsertSession(ctx, storage.Session{
		UserID:       userID,
		BusinessUnit: businessUnit,
		Token:        signed,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		IsActive:     true,
	}); err != nil {
		return Token{}, apperrors.Wrap(apperrors.CodeStorage, "persist session", err)
	}

	return Token{
		Value:        signed,
		UserID:       userID,
		BusinessUnit: businessUnit,
		ExpiresAt:    expiresAt,
	}, nil
}

// Validate checks a bearer token's signature, expiry, and active session row.
func (g *Gate) Validate(ctx context.Context, bearer string) (Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Identity{}, apperrors.New(apperrors.CodeSessionInvalid, "missing bearer token")
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(bearer, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return g.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperrors.New(apperrors.CodeSessionExpired, "session expired")
		}
		return Identity{}, apperrors.Wrap(apperrors.CodeSessionInvalid, "invalid session token", err)
	}

	session, err := g.store.GetSession(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, apperrors.New(apperrors.CodeSessionInvalid, "no session for user")
		}
		return Identity{}, apperrors.Wrap(apperrors.CodeStorage, "load session", err)
	}
	if !session.IsActive || session.Token != bearer {
		// A newer login rotated the token; only the latest one is honored.
		return Identity{}, apperrors.New(apperrors.CodeSessionInvalid, "session superseded")
	}
	if g.now().UTC().After(session.ExpiresAt) {
		return Identity{}, apperrors.New(apperrors.CodeSessionExpired, "session expired")
	}

	return Identity{UserID: session.UserID, BusinessUnit: session.BusinessUnit}, nil
}
