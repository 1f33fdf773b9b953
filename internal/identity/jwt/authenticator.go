// Package jwt issues and verifies HS256 access tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/pizzeria/internal/domain"
	"github.com/bissquit/pizzeria/internal/identity"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultExpiration is used when the configured lifetime is unset or unusable.
const DefaultExpiration = 15 * time.Minute

// Config contains token settings.
type Config struct {
	SecretKey           string
	Issuer              string
	Audience            string
	ExpirationInMinutes string
}

// Claims is the token payload.
type Claims struct {
	Email string   `json:"email"`
	Role  []string `json:"role"`
	gojwt.RegisteredClaims
}

// Authenticator implements identity.Authenticator with signed JWTs.
type Authenticator struct {
	secret     []byte
	issuer     string
	audience   string
	expiration time.Duration
	now        func() time.Time
}

// NewAuthenticator creates a JWT authenticator.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret key is empty")
	}

	return &Authenticator{
		secret:     []byte(cfg.SecretKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		expiration: ParseExpiration(cfg.ExpirationInMinutes),
		now:        time.Now,
	}, nil
}

// ParseExpiration converts a minutes string into a token lifetime.
func ParseExpiration(minutes string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(minutes))
	if err != nil || n <= 0 {
		return DefaultExpiration
	}
	return time.Duration(n) * time.Minute
}

// Expiration returns the lifetime given to issued tokens.
func (a *Authenticator) Expiration() time.Duration {
	return a.expiration
}

// IssueToken signs a token for user. Roles are copied into the token and are
// not re-read from the directory until the next login.
func (a *Authenticator) IssueToken(_ context.Context, user *domain.User) (string, error) {
	now := a.now()

	claims := Claims{
		Email: user.Email,
		Role:  user.RoleNames(),
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    a.issuer,
			Audience:  gojwt.ClaimStrings{a.audience},
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(a.expiration)),
			ID:        uuid.NewString(),
		},
	}

	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ValidateToken verifies signature, issuer, audience and expiry.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (*domain.Principal, error) {
	opts := []gojwt.ParserOption{
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, gojwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, gojwt.WithAudience(a.audience))
	}

	var claims Claims
	_, err := gojwt.ParseWithClaims(tokenString, &claims, func(*gojwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject %q", identity.ErrInvalidToken, claims.Subject)
	}

	roles := make([]domain.Role, 0, len(claims.Role))
	for _, r := range claims.Role {
		roles = append(roles, domain.Role(r))
	}

	return &domain.Principal{
		UserID:  userID,
		Email:   claims.Email,
		Roles:   roles,
		TokenID: claims.ID,
	}, nil
}
