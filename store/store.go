package store

import (
	"context"

	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
)

// Tx is the set of record operations available both on a Store and
// inside a transaction opened by Store.RunInTx.
type Tx interface {
	schedule.Store
	token.Store
}

// Store is the unified storage interface for the vesting engine. One
// backend holds both the schedules and the token balances so that a
// schedule update and the transfer it pays for commit together.
type Store interface {
	Tx

	// RunInTx runs fn against a transactional view of the store. If fn
	// returns an error every write it made is discarded; otherwise the
	// writes are committed as one unit. Calling RunInTx on the Tx handed
	// to fn is not supported.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
