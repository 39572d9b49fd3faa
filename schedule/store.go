package schedule

import (
	"context"

	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/types"
)

// Store persists schedules. Schedules are append-only: there is no update
// of terms and no delete. The only mutation is UpdateClaimed, a
// compare-and-set on the claimed counter.
type Store interface {
	CreateSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, beneficiary string, index int) (*Schedule, error)
	GetScheduleByID(ctx context.Context, scheduleID id.ScheduleID) (*Schedule, error)
	ListSchedules(ctx context.Context, beneficiary string) ([]*Schedule, error)
	CountSchedules(ctx context.Context, beneficiary string) (int, error)
	ListBeneficiaries(ctx context.Context, opts ListOpts) ([]string, error)
	UpdateClaimed(ctx context.Context, scheduleID id.ScheduleID, prev, next types.Amount) error
}
