package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service contains the loyalty domain logic over a Store.
type Service struct {
	store          Store
	limiter        *RateLimiter
	nowFn          func() int64
	logger         OperationLogger
	ratePolicy     RateLimitPolicy
	locations      *LocationRegistry
	pointsLifetime time.Duration
	generator      *CodeGenerator
}

// NewService wires a Service. The counter store backs the code submission limiter.
func NewService(store Store, counters CounterStore, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:          store,
		nowFn:          now,
		ratePolicy:     DefaultRateLimitPolicy(),
		locations:      DefaultLocationRegistry(),
		pointsLifetime: DefaultPointsLifetime,
		generator:      NewCodeGenerator(nil),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	limiter, err := NewRateLimiter(counters, service.ratePolicy, now, service.logger)
	if err != nil {
		return nil, err
	}
	service.limiter = limiter
	return service, nil
}

// Locations exposes the check-in registry in use.
func (service *Service) Locations() *LocationRegistry {
	return service.locations
}

// RegisterAccount creates the balance document of a member. Repeated calls return the existing account.
func (service *Service) RegisterAccount(ctx context.Context, userID UserID) (Account, error) {
	account, err := service.store.CreateAccount(ctx, userID, service.nowFn())
	service.logOperation(ctx, OperationLog{
		Operation: operationRegisterAccount,
		UserID:    userID,
		Points:    account.Points.Int64(),
		Error:     err,
	})
	return account, err
}

// Account returns the balance document of a member.
func (service *Service) Account(ctx context.Context, userID UserID) (Account, error) {
	return service.store.GetAccount(ctx, userID)
}

// ListEntries returns ledger entries older than the cursor, newest first.
// A zero cursor starts from the latest entry.
func (service *Service) ListEntries(ctx context.Context, userID UserID, cursor EntryCursor, limit int) ([]Entry, error) {
	if cursor.BeforeUnixUTC <= 0 {
		cursor = EntryCursor{BeforeUnixUTC: service.nowFn() + 1}
	}
	if limit <= 0 {
		limit = 50
	}
	return service.store.ListEntries(ctx, userID, cursor, limit)
}

// PointsSummary returns the balance with the next expiry warning. Points credited
// longer than the points lifetime ago are no longer considered.
func (service *Service) PointsSummary(ctx context.Context, userID UserID) (PointsSummary, error) {
	account, err := service.store.GetAccount(ctx, userID)
	if err != nil {
		return PointsSummary{}, err
	}
	summary := PointsSummary{Points: account.Points}
	lifetimeSeconds := int64(service.pointsLifetime / time.Second)
	oldest, found, err := service.store.OldestCreditSince(ctx, userID, service.nowFn()-lifetimeSeconds)
	if err != nil {
		return PointsSummary{}, err
	}
	if !found {
		return summary, nil
	}
	expiring := Points(oldest.PointsDelta().Int64())
	if expiring > account.Points {
		expiring = account.Points
	}
	summary.ExpiringPoints = expiring
	summary.NextExpiryUnixUTC = oldest.CreatedUnixUTC() + lifetimeSeconds
	return summary, nil
}

// AdjustPoints applies a manual correction and records it in the ledger.
func (service *Service) AdjustPoints(ctx context.Context, adminID UserID, userID UserID, delta PointsDelta, note string) (Points, error) {
	var balance Points
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetAccount(ctx, userID); err != nil {
			return err
		}
		entryInput, err := NewEntryInput(userID, delta, AdminAdjustmentDetails{AdminID: adminID.String(), Note: note}, service.nowFn())
		if err != nil {
			return err
		}
		updated, err := transactionStore.ApplyPointsDelta(ctx, userID, delta)
		if err != nil {
			return err
		}
		if _, err := transactionStore.InsertEntry(ctx, entryInput); err != nil {
			return err
		}
		balance = updated
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAdjustPoints,
		UserID:    userID,
		Subject:   adminID.String(),
		Points:    delta.Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return balance, nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	logOperation(ctx, service.logger, entry)
}

// outcomeError aborts a transaction with an expected business outcome.
type outcomeError struct {
	outcome Outcome
}

func (err outcomeError) Error() string {
	return string(err.outcome)
}

func outcomeOf(err error) (Outcome, bool) {
	var target outcomeError
	if errors.As(err, &target) {
		return target.outcome, true
	}
	return "", false
}
