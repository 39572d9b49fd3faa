package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// BSON dates keep milliseconds only, so accrual inputs are stored as
// nanosecond integers. Bookkeeping timestamps stay native dates.

// ==================== Schedule models ====================

type scheduleModel struct {
	grove.BaseModel `grove:"table:vesting_schedules"`

	ID                      string            `grove:"id,pk"                     bson:"_id"`
	Beneficiary             string            `grove:"beneficiary"               bson:"beneficiary"`
	Seq                     int               `grove:"seq"                       bson:"seq"`
	TotalAmount             string            `grove:"total_amount"              bson:"total_amount"`
	ImmediateReleasePercent int               `grove:"immediate_release_percent" bson:"immediate_release_percent"`
	LockNanos               int64             `grove:"lock_nanos"                bson:"lock_nanos"`
	CliffNanos              int64             `grove:"cliff_nanos"               bson:"cliff_nanos"`
	VestingNanos            int64             `grove:"vesting_nanos"             bson:"vesting_nanos"`
	StartUnixNano           int64             `grove:"start_unix_nano"           bson:"start_unix_nano"`
	ClaimedAmount           string            `grove:"claimed_amount"            bson:"claimed_amount"`
	Metadata                map[string]string `grove:"metadata"                  bson:"metadata,omitempty"`
	CreatedAt               time.Time         `grove:"created_at"                bson:"created_at"`
	UpdatedAt               time.Time         `grove:"updated_at"                bson:"updated_at"`
}

func toScheduleModel(s *schedule.Schedule) *scheduleModel {
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
		Metadata:                s.Metadata,
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
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                      scheduleID,
		Beneficiary:             m.Beneficiary,
		Index:                   m.Seq,
		TotalAmount:             total,
		ImmediateReleasePercent: uint8(m.ImmediateReleasePercent), //nolint:gosec // validated before insert
		LockDuration:            time.Duration(m.LockNanos),
		CliffDuration:           time.Duration(m.CliffNanos),
		VestingDuration:         time.Duration(m.VestingNanos),
		StartTime:               time.Unix(0, m.StartUnixNano).UTC(),
		ClaimedAmount:           claimed,
		Metadata:                m.Metadata,
	}, nil
}

// ==================== Token models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:vesting_balances"`

	Account   string    `grove:"id,pk"      bson:"_id"`
	Amount    string    `grove:"amount"     bson:"amount"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

type transferModel struct {
	grove.BaseModel `grove:"table:vesting_transfers"`

	ID              string    `grove:"id,pk"             bson:"_id"`
	FromAccount     string    `grove:"from_account"      bson:"from_account"`
	ToAccount       string    `grove:"to_account"        bson:"to_account"`
	Amount          string    `grove:"amount"            bson:"amount"`
	Kind            string    `grove:"kind"              bson:"kind"`
	ScheduleIDs     []string  `grove:"schedule_ids"      bson:"schedule_ids,omitempty"`
	CreatedUnixNano int64     `grove:"created_unix_nano" bson:"created_unix_nano"`
	CreatedAt       time.Time `grove:"created_at"        bson:"created_at"`
}

func toTransferModel(t *token.Transfer) *transferModel {
	var ids []string
	if len(t.ScheduleIDs) > 0 {
		ids = make([]string, len(t.ScheduleIDs))
		for i, sid := range t.ScheduleIDs {
			ids[i] = sid.String()
		}
	}

	return &transferModel{
		ID:              t.ID.String(),
		FromAccount:     t.From,
		ToAccount:       t.To,
		Amount:          t.Amount.String(),
		Kind:            string(t.Kind),
		ScheduleIDs:     ids,
		CreatedUnixNano: t.CreatedAt.UnixNano(),
		CreatedAt:       t.CreatedAt,
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
		CreatedAt:   time.Unix(0, m.CreatedUnixNano).UTC(),
	}, nil
}
