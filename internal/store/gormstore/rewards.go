package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SaveRewards upserts reward definitions, typically from the catalog file.
func (store *Store) SaveRewards(ctx context.Context, rewards []loyalty.Reward) error {
	if len(rewards) == 0 {
		return nil
	}
	models := make([]Reward, 0, len(rewards))
	for _, reward := range rewards {
		models = append(models, Reward{
			RewardID:      reward.RewardID.String(),
			PointsCost:    reward.PointsCost.Int64(),
			Category:      reward.Category.String(),
			NameJA:        reward.Name.Japanese,
			NameEN:        reward.Name.English,
			DescriptionJA: reward.Description.Japanese,
			DescriptionEN: reward.Description.English,
			Active:        reward.Active,
		})
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "reward_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"points_cost", "category", "name_ja", "name_en", "description_ja", "description_en", "active", "updated_at",
			}),
		}).
		Create(&models).Error
	if err != nil {
		return wrapStoreError(errorSubjectReward, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetReward(ctx context.Context, rewardID loyalty.RewardID) (loyalty.Reward, error) {
	var model Reward
	err := store.db.WithContext(ctx).Where("reward_id = ?", rewardID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loyalty.Reward{}, wrapStoreError(errorSubjectReward, errorCodeGet, loyalty.ErrUnknownReward)
		}
		return loyalty.Reward{}, wrapStoreError(errorSubjectReward, errorCodeGet, err)
	}
	reward, err := mapReward(model)
	if err != nil {
		return loyalty.Reward{}, wrapStoreError(errorSubjectReward, errorCodeInvalid, err)
	}
	return reward, nil
}

func (store *Store) ListRewards(ctx context.Context, activeOnly bool) ([]loyalty.Reward, error) {
	query := store.db.WithContext(ctx).Order("points_cost ASC, reward_id ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []Reward
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReward, errorCodeList, err)
	}
	rewards := make([]loyalty.Reward, 0, len(rows))
	for _, row := range rows {
		reward, err := mapReward(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReward, errorCodeInvalid, err)
		}
		rewards = append(rewards, reward)
	}
	return rewards, nil
}

func (store *Store) CreateRedemption(ctx context.Context, redemption loyalty.Redemption) error {
	model := Redemption{
		RedemptionID:  redemption.RedemptionID.String(),
		UserID:        redemption.UserID.String(),
		RewardID:      redemption.RewardID.String(),
		NameJA:        redemption.RewardName.Japanese,
		NameEN:        redemption.RewardName.English,
		DescriptionJA: redemption.RewardDescription.Japanese,
		DescriptionEN: redemption.RewardDescription.English,
		PointsCost:    redemption.PointsCost.Int64(),
		Category:      redemption.Category.String(),
		Code:          redemption.Code,
		ExpiresAt:     unixToTime(redemption.ExpiresAtUnixUTC),
		CreatedAt:     unixToTime(redemption.CreatedUnixUTC),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectRedemption, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRedemption, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetRedemption(ctx context.Context, redemptionID loyalty.RedemptionID) (loyalty.Redemption, error) {
	var model Redemption
	err := store.db.WithContext(ctx).Where("redemption_id = ?", redemptionID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return loyalty.Redemption{}, wrapStoreError(errorSubjectRedemption, errorCodeGet, loyalty.ErrUnknownRedemption)
		}
		return loyalty.Redemption{}, wrapStoreError(errorSubjectRedemption, errorCodeGet, err)
	}
	redemption, err := mapRedemption(model)
	if err != nil {
		return loyalty.Redemption{}, wrapStoreError(errorSubjectRedemption, errorCodeInvalid, err)
	}
	return redemption, nil
}

// MarkRedemptionUsed closes an active redemption with a single conditional update.
func (store *Store) MarkRedemptionUsed(ctx context.Context, redemptionID loyalty.RedemptionID, usedUnixUTC int64) error {
	usedAt := unixToTime(usedUnixUTC)
	result := store.db.WithContext(ctx).
		Model(&Redemption{}).
		Where("redemption_id = ? AND used = ? AND expires_at > ?", redemptionID.String(), false, usedAt).
		Updates(map[string]any{"used": true, "used_at": usedAt})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRedemption, errorCodeMarkUsed, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetRedemption(ctx, redemptionID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectRedemption, errorCodeMarkUsed, loyalty.ErrRedemptionClosed)
	}
	return nil
}

func (store *Store) ListActiveRedemptions(ctx context.Context, userID loyalty.UserID, nowUnixUTC int64) ([]loyalty.Redemption, error) {
	var rows []Redemption
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND used = ? AND expires_at > ?", userID.String(), false, unixToTime(nowUnixUTC)).
		Order("expires_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectRedemption, errorCodeList, err)
	}
	redemptions := make([]loyalty.Redemption, 0, len(rows))
	for _, row := range rows {
		redemption, err := mapRedemption(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectRedemption, errorCodeInvalid, err)
		}
		redemptions = append(redemptions, redemption)
	}
	return redemptions, nil
}
