// Package address validates and normalizes beneficiary identifiers.
//
// The engine treats a beneficiary as an opaque string, so two spellings of
// the same account would hold separate schedules. A Validator rejects
// malformed identifiers and returns the canonical spelling of good ones.
package address

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"filippo.io/edwards25519"
	"github.com/go-playground/validator/v10"
	"github.com/mr-tron/base58"
)

// ErrInvalid is returned for identifiers a Validator rejects.
var ErrInvalid = errors.New("address: invalid")

// MaxLength bounds identifiers accepted by Any.
const MaxLength = 256

// Validator checks an identifier and returns its canonical form.
type Validator interface {
	Normalize(addr string) (string, error)
}

// Func adapts a function to Validator.
type Func func(addr string) (string, error)

// Normalize calls f.
func (f Func) Normalize(addr string) (string, error) { return f(addr) }

var validate = validator.New()

// Any accepts any non-empty identifier without whitespace or control
// characters, up to MaxLength bytes.
func Any() Validator {
	return Func(func(addr string) (string, error) {
		if addr == "" {
			return "", fmt.Errorf("%w: empty", ErrInvalid)
		}
		if len(addr) > MaxLength {
			return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalid, MaxLength)
		}
		if strings.IndexFunc(addr, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
			return "", fmt.Errorf("%w: %q contains whitespace", ErrInvalid, addr)
		}
		return addr, nil
	})
}

// EVM accepts 0x-prefixed 20-byte hex addresses and lowercases them, so
// checksummed and plain spellings map to one beneficiary.
func EVM() Validator {
	return Func(func(addr string) (string, error) {
		if err := validate.Var(addr, "required,eth_addr"); err != nil {
			return "", fmt.Errorf("%w: %q is not an EVM address", ErrInvalid, addr)
		}
		return strings.ToLower(addr), nil
	})
}

// Solana accepts base58 encodings of 32-byte public keys, including
// program-derived addresses.
func Solana() Validator {
	return Func(func(addr string) (string, error) {
		if _, err := decodeSolana(addr); err != nil {
			return "", err
		}
		return addr, nil
	})
}

// SolanaWallet accepts only keys that lie on the ed25519 curve, which
// excludes program-derived addresses that no private key controls.
func SolanaWallet() Validator {
	return Func(func(addr string) (string, error) {
		raw, err := decodeSolana(addr)
		if err != nil {
			return "", err
		}
		if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
			return "", fmt.Errorf("%w: %q is not on the ed25519 curve", ErrInvalid, addr)
		}
		return addr, nil
	})
}

// OneOf accepts an identifier if any of vs does, using the first match's
// canonical form.
func OneOf(vs ...Validator) Validator {
	return Func(func(addr string) (string, error) {
		for _, v := range vs {
			if norm, err := v.Normalize(addr); err == nil {
				return norm, nil
			}
		}
		return "", fmt.Errorf("%w: %q matches no accepted format", ErrInvalid, addr)
	})
}

func decodeSolana(addr string) ([]byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not base58", ErrInvalid, addr)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: %q decodes to %d bytes, want 32", ErrInvalid, addr, len(raw))
	}
	return raw, nil
}
