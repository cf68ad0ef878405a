package pgstore

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore  = "store"
	errorSubjectAlert    = "alert"
	errorSubjectCounter  = "counter"
	errorCodeIncrement   = "increment"
	errorCodeInsert      = "insert"
	errorCodeInvalid     = "invalid"
	errorCodeMarkAlerted = "mark_alerted"

	sqlIncrementCounter = `
		insert into rate_limit_counters(scope_key, count, reset_at, alerted, updated_at)
		values ($1, 1, to_timestamp($2) + make_interval(secs => $3), false, to_timestamp($2))
		on conflict (scope_key) do update set
			count = case when rate_limit_counters.reset_at <= to_timestamp($2) then 1 else rate_limit_counters.count + 1 end,
			reset_at = case when rate_limit_counters.reset_at <= to_timestamp($2) then excluded.reset_at else rate_limit_counters.reset_at end,
			alerted = case when rate_limit_counters.reset_at <= to_timestamp($2) then false else rate_limit_counters.alerted end,
			updated_at = excluded.updated_at
		returning scope_key, count, extract(epoch from reset_at)::bigint, alerted
	`

	sqlMarkAlerted = `
		update rate_limit_counters
		set alerted = true, updated_at = now()
		where scope_key = $1 and reset_at = to_timestamp($2) and alerted = false
	`

	sqlInsertAlert = `
		insert into operator_alerts(alert_id, scope_key, count, window_reset_at, raised_at)
		values (gen_random_uuid(), $1, $2, to_timestamp($3), to_timestamp($4))
		on conflict (scope_key, window_reset_at) do nothing
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements loyalty.CounterStore with single-statement upserts, so
// concurrent attempts against one key never lose an increment.
type Store struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (store *Store) IncrementCounter(ctx context.Context, key loyalty.RateLimitKey, nowUnixUTC int64, window time.Duration) (loyalty.RateCounter, error) {
	var (
		scopeKey       string
		count          int64
		resetAtUnixUTC int64
		alerted        bool
	)
	err := store.db.QueryRow(ctx, sqlIncrementCounter, key.String(), nowUnixUTC, window.Seconds()).
		Scan(&scopeKey, &count, &resetAtUnixUTC, &alerted)
	if err != nil {
		return loyalty.RateCounter{}, wrapStoreError(errorSubjectCounter, errorCodeIncrement, err)
	}
	storedKey, err := loyalty.ParseRateLimitKey(scopeKey)
	if err != nil {
		return loyalty.RateCounter{}, wrapStoreError(errorSubjectCounter, errorCodeInvalid, err)
	}
	return loyalty.RateCounter{
		Key:            storedKey,
		Count:          count,
		ResetAtUnixUTC: resetAtUnixUTC,
		Alerted:        alerted,
	}, nil
}

func (store *Store) MarkAlerted(ctx context.Context, key loyalty.RateLimitKey, resetAtUnixUTC int64) (bool, error) {
	commandTag, err := store.db.Exec(ctx, sqlMarkAlerted, key.String(), resetAtUnixUTC)
	if err != nil {
		return false, wrapStoreError(errorSubjectCounter, errorCodeMarkAlerted, err)
	}
	return commandTag.RowsAffected() == 1, nil
}

func (store *Store) InsertAlert(ctx context.Context, alert loyalty.OperatorAlert) error {
	_, err := store.db.Exec(ctx, sqlInsertAlert,
		alert.Key.String(),
		alert.Count,
		alert.ResetAtUnixUTC,
		alert.RaisedAtUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectAlert, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return loyalty.WrapError(errorOperationStore, subject, code, err)
}

var _ loyalty.CounterStore = (*Store)(nil)
