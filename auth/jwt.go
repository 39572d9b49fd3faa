package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminScope is the scope a token must carry to administer schedules.
const AdminScope = "vesting:admin"

// Claims is the payload of an administrator token.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Scopes splits the space-separated scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// JWTAuthorizer accepts HS256 bearer tokens carrying AdminScope.
type JWTAuthorizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption configures a JWTAuthorizer.
type JWTOption func(*JWTAuthorizer)

// WithIssuer requires tokens to carry the given issuer.
func WithIssuer(issuer string) JWTOption {
	return func(a *JWTAuthorizer) { a.issuer = issuer }
}

// WithTimeFunc overrides the clock used to validate expiry.
func WithTimeFunc(now func() time.Time) JWTOption {
	return func(a *JWTAuthorizer) { a.now = now }
}

// NewJWTAuthorizer creates a JWT authorizer with an HMAC secret.
func NewJWTAuthorizer(secret string, opts ...JWTOption) *JWTAuthorizer {
	a := &JWTAuthorizer{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Issue signs an administrator token for subject valid for ttl.
func (a *JWTAuthorizer) Issue(subject string, ttl time.Duration) (string, error) {
	now := a.now().UTC()
	claims := &Claims{
		Scope: AdminScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Authorize verifies cred.Token.
func (a *JWTAuthorizer) Authorize(_ context.Context, cred Credential) (*Identity, error) {
	if cred.Token == "" {
		return nil, ErrDenied
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(cred.Token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDenied, err)
	}

	if !slices.Contains(claims.Scopes(), AdminScope) {
		return nil, fmt.Errorf("%w: missing scope %s", ErrDenied, AdminScope)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrDenied)
	}
	if cred.Subject != "" && cred.Subject != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", ErrDenied)
	}

	return &Identity{Subject: claims.Subject, Method: "jwt"}, nil
}
