package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/vesting"
	"github.com/xraph/vesting/id"
	"github.com/xraph/vesting/schedule"
	vestingstore "github.com/xraph/vesting/store"
	"github.com/xraph/vesting/token"
	"github.com/xraph/vesting/types"
)

// Collection name constants.
const (
	colSchedules = "vesting_schedules"
	colTransfers = "vesting_transfers"
)

// maxTxAttempts bounds how often a transaction that hit a write conflict
// is replayed.
const maxTxAttempts = 5

// compile-time interface checks
var (
	_ vestingstore.Store = (*Store)(nil)
	_ vestingstore.Tx    = (*conn)(nil)
)

// querier is implemented by both *mongodriver.MongoDB and *mongodriver.MongoTx.
type querier interface {
	NewFind(model ...any) *mongodriver.FindQuery
	NewInsert(model any) *mongodriver.InsertQuery
	NewUpdate(model any) *mongodriver.UpdateQuery
	NewDelete(model any) *mongodriver.DeleteQuery
}

// Store implements store.Store using MongoDB via Grove ORM.
//
// Transactions need a replica set or sharded cluster. Writes made through
// the Store outside RunInTx are wrapped in their own transaction.
type Store struct {
	*conn

	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	mdb := mongodriver.Unwrap(db)
	return &Store{
		conn: &conn{q: mdb, mdb: mdb},
		db:   db,
		mdb:  mdb,
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all vesting collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("vesting/mongo: migrate %s indexes: %w", col, err)
		}
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

// RunInTx runs fn inside a multi-document transaction. A transaction
// aborted by a write conflict is replayed from the start.
func (s *Store) RunInTx(ctx context.Context, fn func(tx vestingstore.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if !isTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("vesting/mongo: transaction retries exhausted: %w", err)
}

func (s *Store) runOnce(ctx context.Context, fn func(tx vestingstore.Tx) error) error {
	raw, err := s.mdb.GroveTx(ctx, 0, false)
	if err != nil {
		return fmt.Errorf("vesting/mongo: begin tx: %w", err)
	}
	tx, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return fmt.Errorf("vesting/mongo: unexpected transaction type %T", raw)
	}

	if err := fn(&conn{q: tx, mdb: s.mdb, tx: tx}); err != nil {
		_ = tx.Rollback() //nolint:errcheck // the fn error wins
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vesting/mongo: commit: %w", err)
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
	q   querier
	mdb *mongodriver.MongoDB
	tx  *mongodriver.MongoTx
}

// sessionContext attaches the transaction session, if any, for calls made
// directly on the collection.
func (c *conn) sessionContext(ctx context.Context) context.Context {
	if c.tx == nil {
		return ctx
	}
	return c.tx.SessionContext(ctx)
}

// ==================== Schedule Store ====================

func (c *conn) CreateSchedule(ctx context.Context, sch *schedule.Schedule) error {
	_, err := c.q.NewInsert(toScheduleModel(sch)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: schedule %d of %s", vesting.ErrAlreadyExists, sch.Index, sch.Beneficiary)
		}
		return fmt.Errorf("vesting/mongo: create schedule: %w", err)
	}
	return nil
}

func (c *conn) GetSchedule(ctx context.Context, beneficiary string, index int) (*schedule.Schedule, error) {
	var m scheduleModel
	err := c.q.NewFind(&m).
		Filter(bson.M{"beneficiary": beneficiary, "seq": index}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("vesting/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

func (c *conn) GetScheduleByID(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Schedule, error) {
	var m scheduleModel
	err := c.q.NewFind(&m).
		Filter(bson.M{"_id": scheduleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, vesting.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("vesting/mongo: get schedule by id: %w", err)
	}
	return fromScheduleModel(&m)
}

func (c *conn) ListSchedules(ctx context.Context, beneficiary string) ([]*schedule.Schedule, error) {
	var models []scheduleModel
	err := c.q.NewFind(&models).
		Filter(bson.M{"beneficiary": beneficiary}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("vesting/mongo: list schedules: %w", err)
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
	n, err := c.q.NewFind((*scheduleModel)(nil)).
		Filter(bson.M{"beneficiary": beneficiary}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("vesting/mongo: count schedules: %w", err)
	}
	return int(n), nil
}

func (c *conn) ListBeneficiaries(ctx context.Context, opts schedule.ListOpts) ([]string, error) {
	var all []string
	err := c.mdb.Collection(colSchedules).
		Distinct(c.sessionContext(ctx), "beneficiary", bson.M{}).
		Decode(&all)
	if err != nil {
		return nil, fmt.Errorf("vesting/mongo: list beneficiaries: %w", err)
	}
	sort.Strings(all)

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return []string{}, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (c *conn) UpdateClaimed(ctx context.Context, scheduleID id.ScheduleID, prev, next types.Amount) error {
	res, err := c.q.NewUpdate((*scheduleModel)(nil)).
		Filter(bson.M{"_id": scheduleID.String(), "claimed_amount": prev.String()}).
		Set("claimed_amount", next.String()).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vesting/mongo: update claimed: %w", err)
	}
	if res.MatchedCount() > 0 {
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
	if _, err := c.q.NewInsert(toTransferModel(t)).Exec(ctx); err != nil {
		return nil, fmt.Errorf("vesting/mongo: record deposit: %w", err)
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
	to, err := c.BalanceOf(ctx, t.To)
	if err != nil {
		return err
	}
	if err := c.putBalance(ctx, t.To, to.Add(t.Amount)); err != nil {
		return err
	}
	if _, err := c.q.NewInsert(toTransferModel(t)).Exec(ctx); err != nil {
		return fmt.Errorf("vesting/mongo: record transfer: %w", err)
	}
	return nil
}

func (c *conn) BalanceOf(ctx context.Context, account string) (types.Amount, error) {
	var m balanceModel
	err := c.q.NewFind(&m).
		Filter(bson.M{"_id": account}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return types.Zero(), nil
		}
		return types.Zero(), fmt.Errorf("vesting/mongo: get balance: %w", err)
	}
	return types.ParseAmount(m.Amount)
}

func (c *conn) ListTransfers(ctx context.Context, account string, opts token.ListOpts) ([]*token.Transfer, error) {
	var models []transferModel

	filter := bson.M{}
	if account != "" {
		filter["$or"] = bson.A{
			bson.M{"from_account": account},
			bson.M{"to_account": account},
		}
	}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}

	q := c.q.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_unix_nano", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("vesting/mongo: list transfers: %w", err)
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
	_, err := c.q.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": account}).
		Set("amount", amount.String()).
		Set("updated_at", now()).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("vesting/mongo: put balance: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isTransient reports an error the server labelled as safe to retry.
func isTransient(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel("TransientTransactionError")
}

// migrationIndexes returns the index definitions for all vesting collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSchedules: {
			{
				Keys:    bson.D{{Key: "beneficiary", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "from_account", Value: 1}, {Key: "created_unix_nano", Value: -1}}},
			{Keys: bson.D{{Key: "to_account", Value: 1}, {Key: "created_unix_nano", Value: -1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}}},
		},
	}
}
