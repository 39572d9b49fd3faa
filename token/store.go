package token

import (
	"context"

	"github.com/xraph/vesting/types"
)

// Store holds balances and moves value between accounts.
//
// Transfer must be atomic: on ErrInsufficientBalance nothing changes.
// BalanceOf returns zero for accounts it has never seen.
type Store interface {
	Deposit(ctx context.Context, account string, amount types.Amount) (*Transfer, error)
	Transfer(ctx context.Context, t *Transfer) error
	BalanceOf(ctx context.Context, account string) (types.Amount, error)
	ListTransfers(ctx context.Context, account string, opts ListOpts) ([]*Transfer, error)
}
