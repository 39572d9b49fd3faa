package vesting

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/vesting/types"
)

// ScheduleRequest holds the terms of a new vesting schedule.
type ScheduleRequest struct {
	Beneficiary             string            `json:"beneficiary" validate:"required"`
	TotalAmount             types.Amount      `json:"total_amount" validate:"gt=0"`
	ImmediateReleasePercent uint8             `json:"immediate_release_percent" validate:"lte=100"`
	LockDuration            time.Duration     `json:"lock_duration" validate:"gte=0"`
	CliffDuration           time.Duration     `json:"cliff_duration" validate:"gte=0"`
	VestingDuration         time.Duration     `json:"vesting_duration" validate:"gte=0"`
	Metadata                map[string]string `json:"metadata,omitempty" validate:"max=32,dive,keys,required,max=64,endkeys,max=1024"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Amounts validate by sign so "gt=0" means strictly positive.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if a, ok := field.Interface().(types.Amount); ok {
			return a.Decimal().Sign()
		}
		return nil
	}, types.Amount{})

	return v
}

// fieldErrors maps request fields to the sentinel their failure reports.
var fieldErrors = map[string]error{
	"beneficiary":               ErrInvalidBeneficiary,
	"total_amount":              ErrInvalidAmount,
	"immediate_release_percent": ErrInvalidPercentage,
	"lock_duration":             ErrInvalidDuration,
	"cliff_duration":            ErrInvalidDuration,
	"vesting_duration":          ErrInvalidDuration,
	"metadata":                  ErrInvalidMetadata,
}

// Validate checks the request terms. The returned error is a
// ValidationError wrapping one of ErrInvalidAmount, ErrInvalidPercentage,
// ErrInvalidDuration, ErrInvalidBeneficiary or ErrInvalidMetadata.
func (r *ScheduleRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return fmt.Errorf("vesting: validate request: %w", err)
		}
		return toValidationError(verrs[0])
	}

	if durationsOverflow(r.LockDuration, r.CliffDuration, r.VestingDuration) {
		return ValidationError{
			Field:   "vesting_duration",
			Message: "lock, cliff and vesting durations overflow when added",
			Err:     ErrInvalidDuration,
		}
	}

	return nil
}

func toValidationError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}

	sentinel, ok := fieldErrors[field]
	if !ok {
		sentinel = ErrInvalidMetadata
	}

	return ValidationError{
		Field:   field,
		Message: fieldErrorMessage(fe),
		Err:     sentinel,
	}
}

func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be negative"
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " long"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func durationsOverflow(ds ...time.Duration) bool {
	var total time.Duration
	for _, d := range ds {
		if d > math.MaxInt64-total {
			return true
		}
		total += d
	}
	return false
}
