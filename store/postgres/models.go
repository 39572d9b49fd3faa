package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// Amounts are stored as base-10 TEXT so no precision is lost to NUMERIC
// scanning. Start times and durations are stored as nanoseconds because
// TIMESTAMPTZ only keeps microseconds and accrual depends on every one.

// ==================== Schedule models ====================

type scheduleModel struct {
	grove.BaseModel `grove:"table:vesting_schedules"`

	ID                      string            `grove:"id,pk"`
	Beneficiary             string            `grove:"beneficiary"`
	Seq                     int               `grove:"seq"`
	TotalAmount             string            `grove:"total_amount"`
	ImmediateReleasePercent int               `grove:"immediate_release_percent"`
	LockNanos               int64             `grove:"lock_nanos"`
	CliffNanos              int64             `grove:"cliff_nanos"`
	VestingNanos            int64             `grove:"vesting_nanos"`
	StartUnixNano           int64             `grove:"start_unix_nano"`
	ClaimedAmount           string            `grove:"claimed_amount"`
	Metadata                map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt               time.Time         `grove:"created_at"`
	UpdatedAt               time.Time         `grove:"updated_at"`
}

func toScheduleModel(s *schedule.Schedule) *scheduleModel {
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return &scheduleModel{
		ID:                      s.ID.String(),
		Beneficiary:             s.Beneficiary,
		Seq:                     s.Index,
		TotalAmount:             s.TotalAmount.String(),
		ImmediateReleasePercent: int(s.ImmediateReleasePercent),
		LockNanos:               int64(s.LockDuration),
		CliffNanos:              int64(s.CliffDuration),
		VestingNanos:            int64(s.VestingDuration),
		StartUnixNano:           s.StartTime.UnixNano(),
		ClaimedAmount:           s.ClaimedAmount.String(),
		Metadata:                metadata,
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func fromScheduleModel(m *scheduleModel) (*schedule.Schedule, error) {
	scheduleID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, err
	}
	total, err := types.ParseAmount(m.TotalAmount)
	if err != nil {
		return nil, err
	}
	claimed, err := types.ParseAmount(m.ClaimedAmount)
	if err != nil {
		return nil, err
	}

	return &schedule.Schedule{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                      scheduleID,
		Beneficiary:             m.Beneficiary,
		Index:                   m.Seq,
		TotalAmount:             total,
		ImmediateReleasePercent: uint8(m.ImmediateReleasePercent), //nolint:gosec // checked by the table constraint
		LockDuration:            time.Duration(m.LockNanos),
		CliffDuration:           time.Duration(m.CliffNanos),
		VestingDuration:         time.Duration(m.VestingNanos),
		StartTime:               time.Unix(0, m.StartUnixNano).UTC(),
		ClaimedAmount:           claimed,
		Metadata:                m.Metadata,
	}, nil
}

type beneficiaryModel struct {
	grove.BaseModel `grove:"table:vesting_schedules"`

	Beneficiary string `grove:"beneficiary"`
}

// ==================== Token models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:vesting_balances"`

	Account   string    `grove:"account,pk"`
	Amount    string    `grove:"amount"`
	UpdatedAt time.Time `grove:"updated_at"`
}

type transferModel struct {
	grove.BaseModel `grove:"table:vesting_transfers"`

	ID          string    `grove:"id,pk"`
	FromAccount string    `grove:"from_account"`
	ToAccount   string    `grove:"to_account"`
	Amount      string    `grove:"amount"`
	Kind        string    `grove:"kind"`
	ScheduleIDs []string  `grove:"schedule_ids,type:jsonb"`
	CreatedAt   time.Time `grove:"created_at"`
}

func toTransferModel(t *token.Transfer) *transferModel {
	ids := make([]string, len(t.ScheduleIDs))
	for i, sid := range t.ScheduleIDs {
		ids[i] = sid.String()
	}

	return &transferModel{
		ID:          t.ID.String(),
		FromAccount: t.From,
		ToAccount:   t.To,
		Amount:      t.Amount.String(),
		Kind:        string(t.Kind),
		ScheduleIDs: ids,
		CreatedAt:   t.CreatedAt.UTC(),
	}
}

func fromTransferModel(m *transferModel) (*token.Transfer, error) {
	transferID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}

	var ids []id.ScheduleID
	if len(m.ScheduleIDs) > 0 {
		ids = make([]id.ScheduleID, len(m.ScheduleIDs))
		for i, raw := range m.ScheduleIDs {
			if ids[i], err = id.ParseScheduleID(raw); err != nil {
				return nil, err
			}
		}
	}

	return &token.Transfer{
		ID:          transferID,
		From:        m.FromAccount,
		To:          m.ToAccount,
		Amount:      amount,
		Kind:        token.Kind(m.Kind),
		ScheduleIDs: ids,
		CreatedAt:   m.CreatedAt,
	}, nil
}
