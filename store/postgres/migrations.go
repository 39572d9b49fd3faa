package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the vesting store.
var Migrations = migrate.NewGroup("vesting")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_vesting_schedules",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vesting_schedules (
    id                        TEXT PRIMARY KEY,
    beneficiary               TEXT NOT NULL,
    seq                       INT NOT NULL CHECK (seq >= 0),
    total_amount              TEXT NOT NULL,
    immediate_release_percent INT NOT NULL DEFAULT 0 CHECK (immediate_release_percent BETWEEN 0 AND 100),
    lock_nanos                BIGINT NOT NULL DEFAULT 0 CHECK (lock_nanos >= 0),
    cliff_nanos               BIGINT NOT NULL DEFAULT 0 CHECK (cliff_nanos >= 0),
    vesting_nanos             BIGINT NOT NULL DEFAULT 0 CHECK (vesting_nanos >= 0),
    start_unix_nano           BIGINT NOT NULL,
    claimed_amount            TEXT NOT NULL DEFAULT '0',
    metadata                  JSONB NOT NULL DEFAULT '{}',
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_vesting_schedules_beneficiary_seq ON vesting_schedules (beneficiary, seq);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vesting_schedules`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vesting_balances",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vesting_balances (
    account    TEXT PRIMARY KEY,
    amount     TEXT NOT NULL DEFAULT '0',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vesting_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_vesting_transfers",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS vesting_transfers (
    seq          BIGSERIAL,
    id           TEXT PRIMARY KEY,
    from_account TEXT NOT NULL DEFAULT '',
    to_account   TEXT NOT NULL DEFAULT '',
    amount       TEXT NOT NULL,
    kind         TEXT NOT NULL,
    schedule_ids JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_vesting_transfers_from ON vesting_transfers (from_account, created_at);
CREATE INDEX IF NOT EXISTS idx_vesting_transfers_to ON vesting_transfers (to_account, created_at);
CREATE INDEX IF NOT EXISTS idx_vesting_transfers_kind ON vesting_transfers (kind);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS vesting_transfers`)
				return err
			},
		},
	)
}
