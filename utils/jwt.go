package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoJWTSecret is returned when the token issuer is built without a signing key.
var ErrNoJWTSecret = errors.New("jwt secret is not configured")

// Identity is what an authenticated request knows about its caller.
type Identity struct {
	Role     string `json:"role"`
	FamilyID uint   `json:"familyId"`
	UserID   uint   `json:"userId"`
}

// Claims defines JWT claims used in the application.
type Claims struct {
	Identity
	jwt.RegisteredClaims
}

// TokenOptions configures a TokenIssuer.
type TokenOptions struct {
	Secret   string
	Issuer   string
	Audience string
	// TTLs maps a role to its token lifetime; roles missing here use DefaultTTL.
	TTLs       map[string]time.Duration
	DefaultTTL time.Duration
}

// TokenIssuer signs and verifies role-scoped HS256 tokens.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttls     map[string]time.Duration
	fallback time.Duration
	now      func() time.Time
}

// NewTokenIssuer validates opts and returns an issuer.
func NewTokenIssuer(opts TokenOptions) (*TokenIssuer, error) {
	if opts.Secret == "" {
		return nil, ErrNoJWTSecret
	}
	fallback := opts.DefaultTTL
	if fallback <= 0 {
		fallback = time.Hour
	}
	return &TokenIssuer{
		secret:   []byte(opts.Secret),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttls:     opts.TTLs,
		fallback: fallback,
		now:      time.Now,
	}, nil
}

// TTL returns the lifetime of tokens issued for role.
func (t *TokenIssuer) TTL(role string) time.Duration {
	if d, ok := t.ttls[role]; ok && d > 0 {
		return d
	}
	return t.fallback
}

// Issue mints a token for id.
func (t *TokenIssuer) Issue(id Identity) (string, error) {
	now := t.now()
	claims := Claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL(id.Role))),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    t.issuer,
		},
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates a token and returns the identity it carries.
func (t *TokenIssuer) Parse(tokenStr string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, errors.New("invalid token claims")
	}
	if claims.Role == "" || claims.UserID == 0 || claims.FamilyID == 0 {
		return Identity{}, errors.New("incomplete token claims")
	}
	return claims.Identity, nil
}
