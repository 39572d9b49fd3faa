// Package auth decides who may create vesting schedules.
//
// Administration is a capability: the caller hands a Credential to every
// privileged operation and an Authorizer checks it. Nothing is inherited
// from the caller's type or context.
package auth

import (
	"context"
	"errors"
)

// ErrDenied is returned by authorizers that reject a credential.
var ErrDenied = errors.New("auth: credential denied")

// Credential is what a caller presents for a privileged operation. Which
// fields matter depends on the Authorizer.
type Credential struct {
	Subject string `json:"subject,omitempty"`
	Key     string `json:"-"`
	Token   string `json:"-"`
}

// Identity is an accepted credential.
type Identity struct {
	Subject string `json:"subject"`
	Method  string `json:"method"`
}

// Authorizer checks administrative credentials.
type Authorizer interface {
	Authorize(ctx context.Context, cred Credential) (*Identity, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, cred Credential) (*Identity, error)

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, cred Credential) (*Identity, error) {
	return f(ctx, cred)
}

// DenyAll rejects every credential. It is the engine default, so schedule
// creation is impossible until an authorizer is configured.
type DenyAll struct{}

// Authorize always fails.
func (DenyAll) Authorize(context.Context, Credential) (*Identity, error) {
	return nil, ErrDenied
}
