package vesting

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Schedule creation errors
	ErrInvalidAmount      = errors.New("vesting: amount must be greater than zero")
	ErrInvalidPercentage  = errors.New("vesting: immediate release percentage must be between 0 and 100")
	ErrInvalidDuration    = errors.New("vesting: invalid duration")
	ErrInvalidBeneficiary = errors.New("vesting: invalid beneficiary")
	ErrInvalidMetadata    = errors.New("vesting: invalid metadata")
	ErrUnauthorized       = errors.New("vesting: unauthorized")

	// Funding errors
	ErrInsufficientFunding = errors.New("vesting: insufficient funding")
	ErrInsufficientBalance = errors.New("vesting: insufficient balance")

	// Claim errors
	ErrNothingToClaim  = errors.New("vesting: nothing to claim at the moment")
	ErrConcurrentClaim = errors.New("vesting: schedule was modified by a concurrent claim")

	// Lookup errors
	ErrScheduleNotFound = errors.New("vesting: schedule not found")
	ErrAlreadyExists    = errors.New("vesting: already exists")

	// Engine and store errors
	ErrNoStore         = errors.New("vesting: no store configured")
	ErrAlreadyStarted  = errors.New("vesting: already started")
	ErrStoreClosed     = errors.New("vesting: store is closed")
	ErrMigrationFailed = errors.New("vesting: migration failed")
)

// ValidationError reports which field of a request failed validation.
// It unwraps to the matching sentinel, so errors.Is(err, ErrInvalidAmount)
// holds for a bad total amount.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("vesting: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

// IsValidation reports whether err was caused by malformed schedule input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPercentage) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidBeneficiary) ||
		errors.Is(err, ErrInvalidMetadata)
}

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// IsNothingToClaim reports whether a claim found nothing releasable. This
// is an expected outcome, not a fault.
func IsNothingToClaim(err error) bool { return errors.Is(err, ErrNothingToClaim) }

// IsInsufficientFunding reports whether the funding pool could not cover a
// payout.
func IsInsufficientFunding(err error) bool {
	return errors.Is(err, ErrInsufficientFunding) || errors.Is(err, ErrInsufficientBalance)
}

// IsRetryable reports whether the operation may succeed if simply retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentClaim)
}
