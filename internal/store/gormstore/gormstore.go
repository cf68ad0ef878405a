package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode    = "23505"
	sqliteConstraintCode     = 19
	errorOperationStore      = "store"
	errorSubjectAccount      = "account"
	errorSubjectAlert        = "alert"
	errorSubjectAttempt      = "failed_attempt"
	errorSubjectCode         = "code"
	errorSubjectCounter      = "counter"
	errorSubjectEntry        = "entry"
	errorSubjectRedemption   = "redemption"
	errorSubjectReward       = "reward"
	errorCodeCreate          = "create"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeIncrement       = "increment"
	errorCodeInsert          = "insert"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLookup          = "lookup"
	errorCodeMarkAlerted     = "mark_alerted"
	errorCodeMarkUsed        = "mark_used"
	errorCodeUpdateBalance   = "update_balance"
	errorCodeUpdateCheckIn   = "update_check_in"
	errorCodeUpsert          = "upsert"
	counterIncrementAttempts = 2
)

// Store implements loyalty.Store and loyalty.CounterStore using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore loyalty.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateAccount(ctx context.Context, userID loyalty.UserID, createdUnixUTC int64) (loyalty.Account, error) {
	createdAt := unixToTime(createdUnixUTC)
	model := Account{UserID: userID.String(), CreatedAt: createdAt, UpdatedAt: createdAt}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return loyalty.Account{}, wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return store.GetAccount(ctx, userID)
}

func (store *Store) GetAccount(ctx context.Context, userID loyalty.UserID) (loyalty.Account, error) {
	var model Account
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loyalty.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, loyalty.ErrUnknownUser)
		}
		return loyalty.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return loyalty.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

// ApplyPointsDelta changes the balance with a single guarded update so the
// balance can never drop below zero.
func (store *Store) ApplyPointsDelta(ctx context.Context, userID loyalty.UserID, delta loyalty.PointsDelta) (loyalty.Points, error) {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ? AND points + ? >= 0", userID.String(), delta.Int64()).
		Update("points", gorm.Expr("points + ?", delta.Int64()))
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectAccount, errorCodeUpdateBalance, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetAccount(ctx, userID); err != nil {
			return 0, err
		}
		return 0, wrapStoreError(errorSubjectAccount, errorCodeUpdateBalance, loyalty.ErrInsufficientPoints)
	}
	account, err := store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Points, nil
}

func (store *Store) SetLastCheckIn(ctx context.Context, userID loyalty.UserID, marker loyalty.CheckInMarker) error {
	locationID := marker.LocationID.String()
	checkedInAt := unixToTime(marker.CheckedInUnixUTC)
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]any{
			"last_check_in_location": locationID,
			"last_check_in_at":       checkedInAt,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateCheckIn, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdateCheckIn, loyalty.ErrUnknownUser)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entryInput loyalty.EntryInput) (loyalty.Entry, error) {
	details, err := loyalty.MarshalEntryDetails(entryInput.Details())
	if err != nil {
		return loyalty.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	model := LedgerEntry{
		UserID:        entryInput.UserID().String(),
		Type:          entryInput.Type().String(),
		PointsDelta:   entryInput.PointsDelta().Int64(),
		CorrelationID: entryInput.CorrelationID(),
		Details:       details,
		CreatedAt:     unixToTime(entryInput.CreatedUnixUTC()),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return loyalty.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	entryID, err := loyalty.NewEntryID(model.EntryID)
	if err != nil {
		return loyalty.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	entry, err := loyalty.NewEntry(entryID, entryInput)
	if err != nil {
		return loyalty.Entry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, nil
}

// ListEntries pages newest first on (created_at, entry_id) so entries sharing
// a second are neither skipped nor repeated.
func (store *Store) ListEntries(ctx context.Context, userID loyalty.UserID, cursor loyalty.EntryCursor, limit int) ([]loyalty.Entry, error) {
	before := unixToTime(cursor.BeforeUnixUTC)
	if cursor.BeforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}
	query := store.db.WithContext(ctx).Where("user_id = ?", userID.String())
	if cursor.BeforeEntryID == "" {
		query = query.Where("created_at < ?", before)
	} else {
		query = query.Where("(created_at < ? OR (created_at = ? AND entry_id < ?))", before, before, cursor.BeforeEntryID)
	}
	var rows []LedgerEntry
	err := query.
		Order("created_at DESC").
		Order("entry_id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	entries := make([]loyalty.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) OldestCreditSince(ctx context.Context, userID loyalty.UserID, sinceUnixUTC int64) (loyalty.Entry, bool, error) {
	var row LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND points_delta > 0 AND created_at >= ?", userID.String(), unixToTime(sinceUnixUTC)).
		Order("created_at ASC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loyalty.Entry{}, false, nil
	}
	if err != nil {
		return loyalty.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeLookup, err)
	}
	entry, err := mapLedgerEntry(row)
	if err != nil {
		return loyalty.Entry{}, false, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entry, true, nil
}

func (store *Store) InsertFailedAttempt(ctx context.Context, attempt loyalty.FailedAttempt) error {
	model := FailedAttempt{
		UserID:      attempt.UserID,
		IPAddress:   attempt.IPAddress,
		Code:        attempt.Code,
		Reason:      attempt.Reason,
		AttemptedAt: unixToTime(attempt.AttemptedAtUnixUTC),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectAttempt, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return loyalty.WrapError(errorOperationStore, subject, code, err)
}

func unixToTime(unixUTC int64) time.Time {
	return time.Unix(unixUTC, 0).UTC()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

var (
	_ loyalty.Store        = (*Store)(nil)
	_ loyalty.CounterStore = (*Store)(nil)
)
