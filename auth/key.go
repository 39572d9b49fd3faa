package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyAuthorizer accepts a single administrator identified by a secret key.
// Only the bcrypt hash of the key is held.
type KeyAuthorizer struct {
	subject string
	hash    []byte
}

// NewKeyAuthorizer creates an authorizer for subject from a bcrypt hash of
// its key, as produced by HashKey. An empty subject accepts the key from
// any subject.
func NewKeyAuthorizer(subject, keyHash string) (*KeyAuthorizer, error) {
	if _, err := bcrypt.Cost([]byte(keyHash)); err != nil {
		return nil, fmt.Errorf("auth: invalid key hash: %w", err)
	}
	return &KeyAuthorizer{subject: subject, hash: []byte(keyHash)}, nil
}

// HashKey hashes an administrator key with bcrypt. Out-of-range costs fall
// back to bcrypt.DefaultCost.
func HashKey(key string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash key: %w", err)
	}
	return string(hash), nil
}

// Authorize checks cred.Key against the stored hash.
func (a *KeyAuthorizer) Authorize(_ context.Context, cred Credential) (*Identity, error) {
	if a.subject != "" && subtle.ConstantTimeCompare([]byte(a.subject), []byte(cred.Subject)) != 1 {
		return nil, ErrDenied
	}
	if cred.Key == "" {
		return nil, ErrDenied
	}
	// The bcrypt error is not surfaced so a malformed key and a wrong key
	// look the same to the caller.
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(cred.Key)); err != nil {
		return nil, ErrDenied
	}

	subject := a.subject
	if subject == "" {
		subject = cred.Subject
	}
	return &Identity{Subject: subject, Method: "key"}, nil
}
