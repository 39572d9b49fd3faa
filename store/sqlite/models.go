package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// SQLite has no native timestamp or JSON column types. Times are stored as
// unix nanoseconds and maps/slices as JSON TEXT.

// ==================== Schedule models ====================

type scheduleModel struct {
	grove.BaseModel `grove:"table:vesting_schedules"`

	ID                      string `grove:"id,pk"`
	Beneficiary             string `grove:"beneficiary"`
	Seq                     int    `grove:"seq"`
	TotalAmount             string `grove:"total_amount"`
	ImmediateReleasePercent int    `grove:"immediate_release_percent"`
	LockNanos               int64  `grove:"lock_nanos"`
	CliffNanos              int64  `grove:"cliff_nanos"`
	VestingNanos            int64  `grove:"vesting_nanos"`
	StartUnixNano           int64  `grove:"start_unix_nano"`
	ClaimedAmount           string `grove:"claimed_amount"`
	Metadata                string `grove:"metadata"`
	CreatedUnixNano         int64  `grove:"created_unix_nano"`
	UpdatedUnixNano         int64  `grove:"updated_unix_nano"`
}

func toScheduleModel(s *schedule.Schedule) (*scheduleModel, error) {
	metadata := "{}"
	if len(s.Metadata) > 0 {
		raw, err := json.Marshal(s.Metadata)
		if err != nil {
			return nil, err
		}
		metadata = string(raw)
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
		CreatedUnixNano:         s.CreatedAt.UnixNano(),
		UpdatedUnixNano:         s.UpdatedAt.UnixNano(),
	}, nil
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

	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "{}" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, err
		}
	}

	return &schedule.Schedule{
		Entity: types.Entity{
			CreatedAt: fromUnixNano(m.CreatedUnixNano),
			UpdatedAt: fromUnixNano(m.UpdatedUnixNano),
		},
		ID:                      scheduleID,
		Beneficiary:             m.Beneficiary,
		Index:                   m.Seq,
		TotalAmount:             total,
		ImmediateReleasePercent: uint8(m.ImmediateReleasePercent), //nolint:gosec // checked by the table constraint
		LockDuration:            time.Duration(m.LockNanos),
		CliffDuration:           time.Duration(m.CliffNanos),
		VestingDuration:         time.Duration(m.VestingNanos),
		StartTime:               fromUnixNano(m.StartUnixNano),
		ClaimedAmount:           claimed,
		Metadata:                metadata,
	}, nil
}

type beneficiaryModel struct {
	grove.BaseModel `grove:"table:vesting_schedules"`

	Beneficiary string `grove:"beneficiary"`
}

// ==================== Token models ====================

type balanceModel struct {
	grove.BaseModel `grove:"table:vesting_balances"`

	Account         string `grove:"account,pk"`
	Amount          string `grove:"amount"`
	UpdatedUnixNano int64  `grove:"updated_unix_nano"`
}

type transferModel struct {
	grove.BaseModel `grove:"table:vesting_transfers"`

	ID              string `grove:"id,pk"`
	FromAccount     string `grove:"from_account"`
	ToAccount       string `grove:"to_account"`
	Amount          string `grove:"amount"`
	Kind            string `grove:"kind"`
	ScheduleIDs     string `grove:"schedule_ids"`
	CreatedUnixNano int64  `grove:"created_unix_nano"`
}

func toTransferModel(t *token.Transfer) (*transferModel, error) {
	ids := make([]string, len(t.ScheduleIDs))
	for i, sid := range t.ScheduleIDs {
		ids[i] = sid.String()
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	return &transferModel{
		ID:              t.ID.String(),
		FromAccount:     t.From,
		ToAccount:       t.To,
		Amount:          t.Amount.String(),
		Kind:            string(t.Kind),
		ScheduleIDs:     string(raw),
		CreatedUnixNano: t.CreatedAt.UnixNano(),
	}, nil
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

	var raw []string
	if m.ScheduleIDs != "" {
		if err := json.Unmarshal([]byte(m.ScheduleIDs), &raw); err != nil {
			return nil, err
		}
	}

	var ids []id.ScheduleID
	if len(raw) > 0 {
		ids = make([]id.ScheduleID, len(raw))
		for i, s := range raw {
			if ids[i], err = id.ParseScheduleID(s); err != nil {
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
		CreatedAt:   fromUnixNano(m.CreatedUnixNano),
	}, nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
