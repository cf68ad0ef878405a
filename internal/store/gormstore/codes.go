package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const codeInsertBatchSize = 200

func (store *Store) InsertCodes(ctx context.Context, codes []loyalty.CodeRecord) error {
	if len(codes) == 0 {
		return nil
	}
	models := make([]Code, 0, len(codes))
	for _, record := range codes {
		models = append(models, Code{
			CodeID:          record.CodeID.String(),
			Code:            record.Code.String(),
			PointsAwarded:   record.PointsAwarded.Int64(),
			ExpiresAt:       unixToTime(record.ExpiresAtUnixUTC),
			OrderType:       record.OrderType,
			DeliveryPartner: record.DeliveryPartner,
			CreatedAt:       unixToTime(record.CreatedUnixUTC),
		})
	}
	err := store.db.WithContext(ctx).CreateInBatches(&models, codeInsertBatchSize).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectCode, errorCodeDuplicate, loyalty.ErrDuplicateCode)
	}
	if err != nil {
		return wrapStoreError(errorSubjectCode, errorCodeInsert, err)
	}
	return nil
}

// FindCode reads a code and locks its row for the rest of the transaction.
func (store *Store) FindCode(ctx context.Context, code loyalty.CodeValue) (loyalty.CodeRecord, error) {
	var model Code
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code = ?", code.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loyalty.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeGet, loyalty.ErrUnknownCode)
		}
		return loyalty.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeGet, err)
	}
	record, err := mapCode(model)
	if err != nil {
		return loyalty.CodeRecord{}, wrapStoreError(errorSubjectCode, errorCodeInvalid, err)
	}
	return record, nil
}

// MarkCodeUsed flips an unused code to used; a concurrent winner leaves zero affected rows.
func (store *Store) MarkCodeUsed(ctx context.Context, codeID loyalty.CodeID, userID loyalty.UserID, usedUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Code{}).
		Where("code_id = ? AND used = ?", codeID.String(), false).
		Updates(map[string]any{
			"used":    true,
			"used_by": userID.String(),
			"used_at": unixToTime(usedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCode, errorCodeMarkUsed, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCode, errorCodeMarkUsed, loyalty.ErrCodeAlreadyUsed)
	}
	return nil
}
