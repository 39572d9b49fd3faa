package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/driver"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
	"github.com/xraph/grove/migrate"

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

// querier is implemented by both *pgdriver.PgDB and *pgdriver.PgTx.
type querier interface {
	NewSelect(model ...any) *pgdriver.SelectQuery
	NewInsert(model any) *pgdriver.InsertQuery
	NewUpdate(model any) *pgdriver.UpdateQuery
	NewDelete(model any) *pgdriver.DeleteQuery
	NewRaw(query string, args ...any) *pgdriver.RawQuery
}

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Reads run directly on the pool. Every write runs in a transaction, and
// rows touched by a transaction are locked with SELECT ... FOR UPDATE so
// that concurrent claims against the same schedules serialize.
type Store struct {
	*conn

	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	pg := pgdriver.Unwrap(db)
	return &Store{
		conn: &conn{q: pg},
		db:   db,
		pg:   pg,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("vesting/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("vesting/postgres: migration failed: %w", err)
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

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken inside
// fn are held until it returns.
func (s *Store) RunInTx(ctx context.Context, fn func(tx vestingstore.Tx) error) error {
	tx, err := s.pg.BeginTxQuery(ctx, &driver.TxOptions{IsolationLevel: driver.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("vesting/postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	if err := fn(&conn{q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vesting/postgres: commit: %w", err)
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

// conn runs record operations on a pool or inside a transaction.
type conn struct {
	q    querier
	inTx bool
}

// ==================== Schedule Store ====================

func (c *conn) CreateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	_, err := c.q.NewInsert(toScheduleModel(sch)).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: schedule %d of %s", vesting.ErrAlreadyExists, sch.Index, sch.Beneficiary)
	}
	return err
}

func (c *conn) GetSchedule(ctx context.Context, beneficiary string, index int) (*schedule.Schedule, error) {
	m := new(scheduleModel)
	q := c.q.NewSelect(m).
		Where("beneficiary = $1", beneficiary).
		Where("seq = $2", index)
	if c.inTx {
		q = q.ForUpdate()
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromScheduleModel(m)
}

func (c *conn) GetScheduleByID(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	m := new(scheduleModel)
	q := c.q.NewSelect(m).Where("id = $1", scheduleID.String())
	if c.inTx {
		q = q.ForUpdate()
	}
	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromScheduleModel(m)
}

func (c *conn) ListSchedules(ctx context.Context, beneficiary string) ([]*schedule.Schedule, error) {
	var models []scheduleModel
	q := c.q.NewSelect(&models).
		Where("beneficiary = $1", beneficiary).
		OrderExpr("seq ASC")
	if c.inTx {
		q = q.ForUpdate()
	}
	if err := q.Scan(ctx); err != nil {
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
		Where("beneficiary = $1", beneficiary).
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
		Set("claimed_amount = $1", next.String()).
		Set("updated_at = $2", now()).
		Where("id = $3", scheduleID.String()).
		Where("claimed_amount = $4", prev.String()).
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

	// Tell a missing schedule apart from a lost race.
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

	balances, err := c.lockBalances(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := c.putBalance(ctx, account, balances[account].Add(amount)); err != nil {
		return nil, err
	}

	t := &token.Transfer{
		ID:        id.NewTransferID(),
		To:        account,
		Amount:    amount,
		Kind:      token.KindDeposit,
		CreatedAt: now(),
	}
	if _, err := c.q.NewInsert(toTransferModel(t)).Exec(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (c *conn) Transfer(ctx context.Context, t *token.Transfer) error {
	if !t.Amount.IsPositive() {
		return vesting.ErrInvalidAmount
	}

	balances, err := c.lockBalances(ctx, t.From, t.To)
	if err != nil {
		return err
	}
	if balances[t.From].LessThan(t.Amount) {
		return vesting.ErrInsufficientBalance
	}

	if t.ID.IsNil() {
		t.ID = id.NewTransferID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}

	balances[t.From] = balances[t.From].Sub(t.Amount)
	balances[t.To] = balances[t.To].Add(t.Amount)
	if err := c.putBalance(ctx, t.From, balances[t.From]); err != nil {
		return err
	}
	if err := c.putBalance(ctx, t.To, balances[t.To]); err != nil {
		return err
	}
	_, err = c.q.NewInsert(toTransferModel(t)).Exec(ctx)
	return err
}

func (c *conn) BalanceOf(ctx context.Context, account string) (types.Amount, error) {
	m := new(balanceModel)
	err := c.q.NewSelect(m).Where("account = $1", account).Scan(ctx)
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

	argIdx := 0
	if account != "" {
		argIdx += 2
		q = q.Where(fmt.Sprintf("(from_account = $%d OR to_account = $%d)", argIdx-1, argIdx), account, account)
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, seq DESC")

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

// lockBalances reads and locks the balance rows of accounts. Rows are
// locked in account order so two transfers never wait on each other.
func (c *conn) lockBalances(ctx context.Context, accounts ...string) (map[string]types.Amount, error) {
	sorted := append([]string(nil), accounts...)
	sort.Strings(sorted)

	result := make(map[string]types.Amount, len(sorted))
	for _, account := range sorted {
		if _, seen := result[account]; seen {
			continue
		}

		// Make sure the row exists so FOR UPDATE has something to lock.
		_, err := c.q.NewRaw(
			`INSERT INTO vesting_balances (account, amount, updated_at) VALUES ($1, '0', $2) ON CONFLICT (account) DO NOTHING`,
			account, now(),
		).Exec(ctx)
		if err != nil {
			return nil, err
		}

		m := new(balanceModel)
		if err := c.q.NewSelect(m).Where("account = $1", account).ForUpdate().Scan(ctx); err != nil {
			return nil, err
		}
		amount, err := types.ParseAmount(m.Amount)
		if err != nil {
			return nil, err
		}
		result[account] = amount
	}
	return result, nil
}

func (c *conn) putBalance(ctx context.Context, account string, amount types.Amount) error {
	_, err := c.q.NewUpdate((*balanceModel)(nil)).
		Set("amount = $1", amount.String()).
		Set("updated_at = $2", now()).
		Where("account = $3", account).
		Exec(ctx)
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

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
