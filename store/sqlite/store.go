package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"
	sqlite3 "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	vestingstore "github.com/xraph/vesting/store"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// compile-time interface checks
var (
	_ vestingstore.Store = (*Store)(nil)
	_ vestingstore.Tx    = (*conn)(nil)
)

// querier is implemented by both *sqlitedriver.SqliteDB and *sqlitedriver.SqliteTx.
type querier interface {
	NewSelect(model ...any) *sqlitedriver.SelectQuery
	NewInsert(model any) *sqlitedriver.InsertQuery
	NewUpdate(model any) *sqlitedriver.UpdateQuery
	NewDelete(model any) *sqlitedriver.DeleteQuery
	NewRaw(query string, args ...any) *sqlitedriver.RawQuery
}

// Store implements store.Store using SQLite via Grove ORM.
//
// SQLite allows a single writer, so transactions opened through one Store
// are serialized in process. Point several processes at one database file
// and they will see SQLITE_BUSY instead.
type Store struct {
	*conn

	db  *grove.DB
	sdb *sqlitedriver.SqliteDB

	txMu sync.Mutex
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	sdb := sqlitedriver.Unwrap(db)
	return &Store{
		conn: &conn{q: sdb},
		db:   db,
		sdb:  sdb,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("vesting/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("vesting/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn in a transaction. Only one transaction runs at a time.
func (s *Store) RunInTx(ctx context.Context, fn func(tx vestingstore.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("vesting/sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vesting/sqlite: commit: %w", err)
	}
	return nil
}

// ==================== Transactional writes ====================

func (s *Store) CreateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	return s.RunInTx(ctx, func(tx vestingstore.Tx) error { return tx.CreateSchedule(ctx, sch) })
}

func (s *Store) UpdateClaimed(ctx context.Context, scheduleID id.ScheduleID, prev, next types.Amount) error {
	return s.RunInTx(ctx, func(tx vestingstore.Tx) error { return tx.UpdateClaimed(ctx, scheduleID, prev, next) })
}

func (s *Store) Deposit(ctx context.Context, account string, amount types.Amount) (*token.Transfer, error) {
	var t *token.Transfer
	err := s.RunInTx(ctx, func(tx vestingstore.Tx) error {
		var err error
		t, err = tx.Deposit(ctx, account, amount)
		return err
	})
	return t, err
}

func (s *Store) Transfer(ctx context.Context, t *token.Transfer) error {
	return s.RunInTx(ctx, func(tx vestingstore.Tx) error { return tx.Transfer(ctx, t) })
}

// ──────────────────────────────────────────────────
// conn
// ──────────────────────────────────────────────────

type conn struct {
	q querier
}

// ==================== Schedule Store ====================

func (c *conn) CreateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	m, err := toScheduleModel(sch)
	if err != nil {
		return err
	}
	_, err = c.q.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: schedule %d of %s", vesting.ErrAlreadyExists, sch.Index, sch.Beneficiary)
	}
	return err
}

func (c *conn) GetSchedule(ctx context.Context, beneficiary string, index int) (*schedule.Schedule, error) {
	m := new(scheduleModel)
	err := c.q.NewSelect(m).
		Where("beneficiary = ?", beneficiary).
		Where("seq = ?", index).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromScheduleModel(m)
}

func (c *conn) GetScheduleByID(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	m := new(scheduleModel)
	err := c.q.NewSelect(m).
		Where("id = ?", scheduleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromScheduleModel(m)
}

func (c *conn) ListSchedules(ctx context.Context, beneficiary string) ([]*schedule.Schedule, error) {
	var models []scheduleModel
	err := c.q.NewSelect(&models).
		Where("beneficiary = ?", beneficiary).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*schedule.Schedule, len(models))
	for i := range models {
		s, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = s
	}
	return result, nil
}

func (c *conn) CountSchedules(ctx context.Context, beneficiary string) (int, error) {
	n, err := c.q.NewSelect((*scheduleModel)(nil)).
		Where("beneficiary = ?", beneficiary).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c *conn) ListBeneficiaries(ctx context.Context, opts schedule.ListOpts) ([]string, error) {
	var models []beneficiaryModel
	q := c.q.NewSelect(&models).
		ColumnExpr("DISTINCT beneficiary").
		OrderExpr("beneficiary ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]string, len(models))
	for i := range models {
		result[i] = models[i].Beneficiary
	}
	return result, nil
}

func (c *conn) UpdateClaimed(ctx context.Context, scheduleID id.ScheduleID, prev, next types.Amount) error {
	res, err := c.q.NewUpdate((*scheduleModel)(nil)).
		Set("claimed_amount = ?", next.String()).
		Set("updated_unix_nano = ?", now().UnixNano()).
		Where("id = ?", scheduleID.String()).
		Where("claimed_amount = ?", prev.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	if _, err := c.GetScheduleByID(ctx, scheduleID); err != nil {
		return err
	}
	return vesting.ErrConcurrentClaim
}

// ==================== Token Store ====================

func (c *conn) Deposit(ctx context.Context, account string, amount types.Amount) (*token.Transfer, error) {
	if !amount.IsPositive() {
		return nil, vesting.ErrInvalidAmount
	}

	held, err := c.BalanceOf(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := c.putBalance(ctx, account, held.Add(amount)); err != nil {
		return nil, err
	}

	t := &token.Transfer{
		ID:        id.NewTransferID(),
		To:        account,
		Amount:    amount,
		Kind:      token.KindDeposit,
		CreatedAt: now(),
	}
	if err := c.insertTransfer(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *conn) Transfer(ctx context.Context, t *token.Transfer) error {
	if !t.Amount.IsPositive() {
		return vesting.ErrInvalidAmount
	}

	from, err := c.BalanceOf(ctx, t.From)
	if err != nil {
		return err
	}
	if from.LessThan(t.Amount) {
		return vesting.ErrInsufficientBalance
	}

	if t.ID.IsNil() {
		t.ID = id.NewTransferID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}

	if err := c.putBalance(ctx, t.From, from.Sub(t.Amount)); err != nil {
		return err
	}
	// Read after the debit so a self-transfer nets to zero.
	to, err := c.BalanceOf(ctx, t.To)
	if err != nil {
		return err
	}
	if err := c.putBalance(ctx, t.To, to.Add(t.Amount)); err != nil {
		return err
	}
	return c.insertTransfer(ctx, t)
}

func (c *conn) BalanceOf(ctx context.Context, account string) (types.Amount, error) {
	m := new(balanceModel)
	err := c.q.NewSelect(m).Where("account = ?", account).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return types.Zero(), nil
		}
		return types.Zero(), err
	}
	return types.ParseAmount(m.Amount)
}

func (c *conn) ListTransfers(ctx context.Context, account string, opts token.ListOpts) ([]*token.Transfer, error) {
	var models []transferModel
	q := c.q.NewSelect(&models)

	if account != "" {
		q = q.Where("(from_account = ? OR to_account = ?)", account, account)
	}
	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_unix_nano DESC, rowid DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*token.Transfer, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

func (c *conn) putBalance(ctx context.Context, account string, amount types.Amount) error {
	_, err := c.q.NewRaw(
		`INSERT INTO vesting_balances (account, amount, updated_unix_nano) VALUES (?, ?, ?)
ON CONFLICT (account) DO UPDATE SET amount = excluded.amount, updated_unix_nano = excluded.updated_unix_nano`,
		account, amount.String(), now().UnixNano(),
	).Exec(ctx)
	return err
}

func (c *conn) insertTransfer(ctx context.Context, t *token.Transfer) error {
	m, err := toTransferModel(t)
	if err != nil {
		return err
	}
	_, err = c.q.NewInsert(m).Exec(ctx)
	return err
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr *sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
