// Package memory is an in-process store.Store backed by maps. Transactions
// run against a private copy of the data and replace it on commit, so a
// failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	"github.com/xraph/vesting/store"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	data   *state
	closed bool
}

func New() *Store {
	return &Store{data: newState()}
}

// RunInTx serializes transactions. fn works on a copy of the data which
// replaces the committed data only if fn succeeds.
func (s *Store) RunInTx(_ context.Context, fn func(tx store.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return vesting.ErrStoreClosed
	}
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&txView{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *Store) write(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.RunInTx(ctx, fn)
}

func (s *Store) read() (*state, func()) {
	s.mu.RLock()
	return s.data, s.mu.RUnlock
}

// ==================== Schedule Store ====================

func (s *Store) CreateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	return s.write(ctx, func(tx store.Tx) error { return tx.CreateSchedule(ctx, sch) })
}

func (s *Store) GetSchedule(_ context.Context, beneficiary string, index int) (*schedule.Schedule, error) {
	st, done := s.read()
	defer done()
	return st.getSchedule(beneficiary, index)
}

func (s *Store) GetScheduleByID(_ context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	st, done := s.read()
	defer done()
	return st.getScheduleByID(scheduleID)
}

func (s *Store) ListSchedules(_ context.Context, beneficiary string) ([]*schedule.Schedule, error) {
	st, done := s.read()
	defer done()
	return st.listSchedules(beneficiary), nil
}

func (s *Store) CountSchedules(_ context.Context, beneficiary string) (int, error) {
	st, done := s.read()
	defer done()
	return len(st.byBeneficiary[beneficiary]), nil
}

func (s *Store) ListBeneficiaries(_ context.Context, opts schedule.ListOpts) ([]string, error) {
	st, done := s.read()
	defer done()
	return st.listBeneficiaries(opts), nil
}

func (s *Store) UpdateClaimed(ctx context.Context, scheduleID id.ScheduleID, prev, next types.Amount) error {
	return s.write(ctx, func(tx store.Tx) error { return tx.UpdateClaimed(ctx, scheduleID, prev, next) })
}

// ==================== Token Store ====================

func (s *Store) Deposit(ctx context.Context, account string, amount types.Amount) (*token.Transfer, error) {
	var t *token.Transfer
	err := s.write(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.Deposit(ctx, account, amount)
		return err
	})
	return t, err
}

func (s *Store) Transfer(ctx context.Context, t *token.Transfer) error {
	return s.write(ctx, func(tx store.Tx) error { return tx.Transfer(ctx, t) })
}

func (s *Store) BalanceOf(_ context.Context, account string) (types.Amount, error) {
	st, done := s.read()
	defer done()
	return st.balances[account], nil
}

func (s *Store) ListTransfers(_ context.Context, account string, opts token.ListOpts) ([]*token.Transfer, error) {
	st, done := s.read()
	defer done()
	return st.listTransfers(account, opts), nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return vesting.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Transaction view
// ──────────────────────────────────────────────────

type txView struct {
	st *state
}

func (v *txView) CreateSchedule(_ context.Context, sch *schedule.Schedule) error {
	return v.st.createSchedule(sch)
}

func (v *txView) GetSchedule(_ context.Context, beneficiary string, index int) (*schedule.Schedule, error) {
	return v.st.getSchedule(beneficiary, index)
}

func (v *txView) GetScheduleByID(_ context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	return v.st.getScheduleByID(scheduleID)
}

func (v *txView) ListSchedules(_ context.Context, beneficiary string) ([]*schedule.Schedule, error) {
	return v.st.listSchedules(beneficiary), nil
}

func (v *txView) CountSchedules(_ context.Context, beneficiary string) (int, error) {
	return len(v.st.byBeneficiary[beneficiary]), nil
}

func (v *txView) ListBeneficiaries(_ context.Context, opts schedule.ListOpts) ([]string, error) {
	return v.st.listBeneficiaries(opts), nil
}

func (v *txView) UpdateClaimed(_ context.Context, scheduleID id.ScheduleID, prev, next types.Amount) error {
	sch, ok := v.st.schedules[scheduleID.String()]
	if !ok {
		return vesting.ErrScheduleNotFound
	}
	if !sch.ClaimedAmount.Equal(prev) {
		return vesting.ErrConcurrentClaim
	}
	sch.ClaimedAmount = next
	sch.Touch(now())
	return nil
}

func (v *txView) Deposit(_ context.Context, account string, amount types.Amount) (*token.Transfer, error) {
	if !amount.IsPositive() {
		return nil, vesting.ErrInvalidAmount
	}
	t := &token.Transfer{
		ID:        id.NewTransferID(),
		To:        account,
		Amount:    amount,
		Kind:      token.KindDeposit,
		CreatedAt: now(),
	}
	v.st.balances[account] = v.st.balances[account].Add(amount)
	v.st.transfers = append(v.st.transfers, t)
	return t, nil
}

func (v *txView) Transfer(_ context.Context, t *token.Transfer) error {
	if !t.Amount.IsPositive() {
		return vesting.ErrInvalidAmount
	}
	if v.st.balances[t.From].LessThan(t.Amount) {
		return vesting.ErrInsufficientBalance
	}
	if t.ID.IsNil() {
		t.ID = id.NewTransferID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}

	v.st.balances[t.From] = v.st.balances[t.From].Sub(t.Amount)
	v.st.balances[t.To] = v.st.balances[t.To].Add(t.Amount)
	cp := *t
	v.st.transfers = append(v.st.transfers, &cp)
	return nil
}

func (v *txView) BalanceOf(_ context.Context, account string) (types.Amount, error) {
	return v.st.balances[account], nil
}

func (v *txView) ListTransfers(_ context.Context, account string, opts token.ListOpts) ([]*token.Transfer, error) {
	return v.st.listTransfers(account, opts), nil
}

// ──────────────────────────────────────────────────
// State
// ──────────────────────────────────────────────────

type state struct {
	schedules     map[string]*schedule.Schedule
	byBeneficiary map[string][]string
	balances      map[string]types.Amount
	transfers     []*token.Transfer
}

func newState() *state {
	return &state{
		schedules:     make(map[string]*schedule.Schedule),
		byBeneficiary: make(map[string][]string),
		balances:      make(map[string]types.Amount),
	}
}

// clone copies everything a transaction can mutate. Transfers are never
// mutated after they are appended, so the journal shares its entries.
func (st *state) clone() *state {
	cp := newState()
	for k, v := range st.schedules {
		cp.schedules[k] = v.Clone()
	}
	for k, v := range st.byBeneficiary {
		cp.byBeneficiary[k] = append([]string(nil), v...)
	}
	for k, v := range st.balances {
		cp.balances[k] = v
	}
	cp.transfers = append(cp.transfers, st.transfers...)
	return cp
}

func (st *state) createSchedule(sch *schedule.Schedule) error {
	if _, exists := st.schedules[sch.ID.String()]; exists {
		return vesting.ErrAlreadyExists
	}
	for _, sid := range st.byBeneficiary[sch.Beneficiary] {
		if st.schedules[sid].Index == sch.Index {
			return vesting.ErrAlreadyExists
		}
	}

	st.schedules[sch.ID.String()] = sch.Clone()
	ids := append(st.byBeneficiary[sch.Beneficiary], sch.ID.String())
	sort.SliceStable(ids, func(i, j int) bool {
		return st.schedules[ids[i]].Index < st.schedules[ids[j]].Index
	})
	st.byBeneficiary[sch.Beneficiary] = ids
	return nil
}

func (st *state) getSchedule(beneficiary string, index int) (*schedule.Schedule, error) {
	for _, sid := range st.byBeneficiary[beneficiary] {
		if sch := st.schedules[sid]; sch.Index == index {
			return sch.Clone(), nil
		}
	}
	return nil, vesting.ErrScheduleNotFound
}

func (st *state) getScheduleByID(scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	if sch, ok := st.schedules[scheduleID.String()]; ok {
		return sch.Clone(), nil
	}
	return nil, vesting.ErrScheduleNotFound
}

func (st *state) listSchedules(beneficiary string) []*schedule.Schedule {
	ids := st.byBeneficiary[beneficiary]
	result := make([]*schedule.Schedule, 0, len(ids))
	for _, sid := range ids {
		result = append(result, st.schedules[sid].Clone())
	}
	return result
}

func (st *state) listBeneficiaries(opts schedule.ListOpts) []string {
	result := make([]string, 0, len(st.byBeneficiary))
	for b := range st.byBeneficiary {
		result = append(result, b)
	}
	sort.Strings(result)
	return paginate(result, opts.Offset, opts.Limit)
}

func (st *state) listTransfers(account string, opts token.ListOpts) []*token.Transfer {
	result := make([]*token.Transfer, 0)
	for i := len(st.transfers) - 1; i >= 0; i-- {
		t := st.transfers[i]
		if account != "" && t.From != account && t.To != account {
			continue
		}
		if opts.Kind != "" && t.Kind != opts.Kind {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	return paginate(result, opts.Offset, opts.Limit)
}

// paginate treats a non-positive limit as unbounded and a negative offset
// as zero.
func paginate[T any](items []T, offset, limit int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

func now() time.Time {
	return time.Now().UTC()
}
