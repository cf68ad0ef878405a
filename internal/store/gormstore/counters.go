package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IncrementCounter records an attempt with a read-then-write inside a
// transaction. Two first attempts racing on a fresh key retry once.
func (store *Store) IncrementCounter(ctx context.Context, key loyalty.RateLimitKey, nowUnixUTC int64, window time.Duration) (loyalty.RateCounter, error) {
	var lastErr error
	for attempt := 0; attempt < counterIncrementAttempts; attempt++ {
		counter, err := store.incrementCounterOnce(ctx, key, nowUnixUTC, window)
		if err == nil {
			return counter, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			break
		}
	}
	return loyalty.RateCounter{}, wrapStoreError(errorSubjectCounter, errorCodeIncrement, lastErr)
}

func (store *Store) incrementCounterOnce(ctx context.Context, key loyalty.RateLimitKey, nowUnixUTC int64, window time.Duration) (loyalty.RateCounter, error) {
	now := unixToTime(nowUnixUTC)
	var model RateLimitCounter
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		err := transaction.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope_key = ?", key.String()).
			Take(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model = RateLimitCounter{ScopeKey: key.String(), Count: 1, ResetAt: now.Add(window), UpdatedAt: now}
			return transaction.Create(&model).Error
		case err != nil:
			return err
		}
		if !now.Before(model.ResetAt) {
			model.Count = 1
			model.ResetAt = now.Add(window)
			model.Alerted = false
		} else {
			model.Count++
		}
		model.UpdatedAt = now
		return transaction.Model(&RateLimitCounter{}).
			Where("scope_key = ?", model.ScopeKey).
			Updates(map[string]any{
				"count":      model.Count,
				"reset_at":   model.ResetAt,
				"alerted":    model.Alerted,
				"updated_at": model.UpdatedAt,
			}).Error
	})
	if err != nil {
		return loyalty.RateCounter{}, err
	}
	return loyalty.RateCounter{
		Key:            key,
		Count:          model.Count,
		ResetAtUnixUTC: model.ResetAt.Unix(),
		Alerted:        model.Alerted,
	}, nil
}

func (store *Store) MarkAlerted(ctx context.Context, key loyalty.RateLimitKey, resetAtUnixUTC int64) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&RateLimitCounter{}).
		Where("scope_key = ? AND reset_at = ? AND alerted = ?", key.String(), unixToTime(resetAtUnixUTC), false).
		Update("alerted", true)
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectCounter, errorCodeMarkAlerted, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) InsertAlert(ctx context.Context, alert loyalty.OperatorAlert) error {
	model := OperatorAlert{
		ScopeKey:      alert.Key.String(),
		Count:         alert.Count,
		WindowResetAt: unixToTime(alert.ResetAtUnixUTC),
		RaisedAt:      unixToTime(alert.RaisedAtUnixUTC),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAlert, errorCodeInsert, err)
	}
	return nil
}
