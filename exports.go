package vesting

import (
	"github.com/xraph/vesting/auth"
	"github.com/xraph/vesting/claim"
	"github.com/xraph/vesting/funding"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// Re-export common types for convenience so users don't have to import
// every subpackage.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Schedule is re-exported from schedule package.
type Schedule = schedule.Schedule

// Summary is re-exported from schedule package.
type Summary = schedule.Summary

// ClaimReceipt is re-exported from claim package.
type ClaimReceipt = claim.Receipt

// Transfer is re-exported from token package.
type Transfer = token.Transfer

// FundingReport is re-exported from funding package.
type FundingReport = funding.Report

// Credential is re-exported from auth package.
type Credential = auth.Credential

// Re-export Amount constructors
var (
	Zero        = types.Zero
	NewAmount   = types.NewAmount
	Units       = types.Units
	ParseAmount = types.ParseAmount
	ParseUnits  = types.ParseUnits
	Sum         = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
