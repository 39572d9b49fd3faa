// Package token describes the fungible-token ledger the vesting engine
// pays out of: balances per account and an append-only transfer journal.
package token

import (
	"time"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/types"
)

type Kind string

const (
	KindDeposit          Kind = "deposit"
	KindImmediateRelease Kind = "immediate_release"
	KindClaim            Kind = "claim"
)

type Transfer struct {
	ID          id.TransferID   `json:"id"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to"`
	Amount      types.Amount    `json:"amount"`
	Kind        Kind            `json:"kind"`
	ScheduleIDs []id.ScheduleID `json:"schedule_ids,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}
