// Package auth issues and verifies the bearer tokens the gateway accepts. The
// token subject is the address the request acts for.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"nftlend/crypto"
)

// ScopeAdmin unlocks registry administration routes.
const ScopeAdmin = "admin"

var (
	ErrSecretRequired = errors.New("auth: signing secret not configured")
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrInvalidSubject = errors.New("auth: token subject is not an address")
)

// Config holds the shared HMAC secret and the expected issuer and audience.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Claims are the registered JWT claims plus a space separated scope list.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits the scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// Actor parses the subject as an account address.
func (c *Claims) Actor() (ethcommon.Address, error) {
	addr, err := crypto.ParseAddress(c.Subject)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: %v", ErrInvalidSubject, err)
	}
	return addr, nil
}

// Issue mints an HS256 token for subject valid for ttl from now.
func Issue(cfg Config, subject ethcommon.Address, scopes []string, ttl time.Duration, now time.Time) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := Claims{
		Scope: strings.Join(scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.Hex(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// Parse verifies signature, expiry, issuer and audience. now may be nil to
// use the wall clock.
func Parse(cfg Config, token string, now func() time.Time) (*Claims, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretRequired
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(skew),
		jwt.WithExpirationRequired(),
	}
	if now != nil {
		opts = append(opts, jwt.WithTimeFunc(now))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
