package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestDenyAll(t *testing.T) {
	ident, err := DenyAll{}.Authorize(context.Background(), Credential{Subject: "root", Key: "x"})
	assert.ErrorIs(t, err, ErrDenied)
	assert.Nil(t, ident)
}

func TestAuthorizerFunc(t *testing.T) {
	a := AuthorizerFunc(func(_ context.Context, cred Credential) (*Identity, error) {
		if cred.Subject == "ops" {
			return &Identity{Subject: "ops", Method: "func"}, nil
		}
		return nil, ErrDenied
	})

	ident, err := a.Authorize(context.Background(), Credential{Subject: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "ops", ident.Subject)

	_, err = a.Authorize(context.Background(), Credential{Subject: "mallory"})
	assert.ErrorIs(t, err, ErrDenied)
}

func TestKeyAuthorizer(t *testing.T) {
	hash, err := HashKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)

	a, err := NewKeyAuthorizer("treasury", hash)
	require.NoError(t, err)

	tests := []struct {
		name string
		cred Credential
		ok   bool
	}{
		{"valid", Credential{Subject: "treasury", Key: "s3cret"}, true},
		{"wrong key", Credential{Subject: "treasury", Key: "guess"}, false},
		{"wrong subject", Credential{Subject: "intern", Key: "s3cret"}, false},
		{"empty key", Credential{Subject: "treasury"}, false},
		{"empty credential", Credential{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ident, err := a.Authorize(context.Background(), tt.cred)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "treasury", ident.Subject)
				assert.Equal(t, "key", ident.Method)
				return
			}
			assert.ErrorIs(t, err, ErrDenied)
		})
	}
}

func TestKeyAuthorizerAnySubject(t *testing.T) {
	hash, err := HashKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)

	a, err := NewKeyAuthorizer("", hash)
	require.NoError(t, err)

	ident, err := a.Authorize(context.Background(), Credential{Subject: "deployer", Key: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "deployer", ident.Subject)
}

func TestNewKeyAuthorizerRejectsBadHash(t *testing.T) {
	_, err := NewKeyAuthorizer("treasury", "not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestJWTAuthorizer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a := NewJWTAuthorizer("signing-secret", WithIssuer("vesting"), WithTimeFunc(clock))

	token, err := a.Issue("treasury", time.Hour)
	require.NoError(t, err)

	ident, err := a.Authorize(context.Background(), Credential{Token: token})
	require.NoError(t, err)
	assert.Equal(t, "treasury", ident.Subject)
	assert.Equal(t, "jwt", ident.Method)

	_, err = a.Authorize(context.Background(), Credential{Subject: "treasury", Token: token})
	require.NoError(t, err)

	_, err = a.Authorize(context.Background(), Credential{Subject: "intern", Token: token})
	assert.ErrorIs(t, err, ErrDenied)

	_, err = a.Authorize(context.Background(), Credential{})
	assert.ErrorIs(t, err, ErrDenied)
}

func TestJWTAuthorizerRejects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a := NewJWTAuthorizer("signing-secret", WithIssuer("vesting"), WithTimeFunc(clock))

	sign := func(secret string, claims *Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	valid := func() *Claims {
		return &Claims{
			Scope: AdminScope,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "treasury",
				Issuer:    "vesting",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noScope := valid()
	noScope.Scope = "vesting:read"

	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"

	noSubject := valid()
	noSubject.Subject = ""

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign("other-secret", valid())},
		{"expired", sign("signing-secret", expired)},
		{"missing scope", sign("signing-secret", noScope)},
		{"wrong issuer", sign("signing-secret", otherIssuer)},
		{"missing subject", sign("signing-secret", noSubject)},
		{"missing expiry", sign("signing-secret", noExpiry)},
		{"garbage", "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authorize(context.Background(), Credential{Token: tt.token})
			assert.ErrorIs(t, err, ErrDenied)
		})
	}
}

func TestClaimsScopes(t *testing.T) {
	c := &Claims{Scope: "vesting:read  vesting:admin"}
	assert.Equal(t, []string{"vesting:read", "vesting:admin"}, c.Scopes())
}
