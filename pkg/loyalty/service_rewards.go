package loyalty

import (
	"context"
	"errors"
)

// Rewards lists the active reward catalog.
func (service *Service) Rewards(ctx context.Context) ([]Reward, error) {
	return service.store.ListRewards(ctx, true)
}

// RedeemReward exchanges points for a reward. The category of the reward
// definition decides how long the redemption stays usable.
func (service *Service) RedeemReward(ctx context.Context, userID UserID, rewardID RewardID) (Redemption, error) {
	reward, err := service.store.GetReward(ctx, rewardID)
	if err != nil {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, err)
	}
	if !reward.Active {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, ErrRewardInactive)
	}
	account, err := service.store.GetAccount(ctx, userID)
	if err != nil {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, err)
	}
	if account.Points.Int64() < reward.PointsCost.Int64() {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, ErrInsufficientPoints)
	}

	rawRedemptionID, err := service.generator.NewUUID()
	if err != nil {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, err)
	}
	redemptionID, err := NewRedemptionID(rawRedemptionID)
	if err != nil {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, err)
	}
	displayCode, err := service.generator.RedemptionCode()
	if err != nil {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, err)
	}

	var redemption Redemption
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		nowUnixUTC := service.nowFn()
		debit := reward.PointsCost.ToDelta().Negated()
		entryInput, err := NewEntryInput(userID, debit, RewardRedemptionDetails{
			RewardID:     reward.RewardID.String(),
			RedemptionID: redemptionID.String(),
		}, nowUnixUTC)
		if err != nil {
			return err
		}
		if _, err := transactionStore.ApplyPointsDelta(ctx, userID, debit); err != nil {
			return err
		}
		redemption = Redemption{
			RedemptionID:      redemptionID,
			UserID:            userID,
			RewardID:          reward.RewardID,
			RewardName:        reward.Name,
			RewardDescription: reward.Description,
			PointsCost:        reward.PointsCost,
			Category:          reward.Category,
			Code:              displayCode,
			CreatedUnixUTC:    nowUnixUTC,
			ExpiresAtUnixUTC:  ExpiryFor(reward.Category, nowUnixUTC),
		}
		if err := transactionStore.CreateRedemption(ctx, redemption); err != nil {
			return err
		}
		_, err = transactionStore.InsertEntry(ctx, entryInput)
		return err
	})
	if operationError != nil {
		return Redemption{}, service.logRewardRedemption(ctx, userID, rewardID, 0, operationError)
	}
	service.logRewardRedemption(ctx, userID, rewardID, reward.PointsCost.Int64(), nil)
	return redemption, nil
}

// MarkRedemptionUsed closes an active redemption when staff honour it.
func (service *Service) MarkRedemptionUsed(ctx context.Context, redemptionID RedemptionID) error {
	operationError := service.store.MarkRedemptionUsed(ctx, redemptionID, service.nowFn())
	service.logOperation(ctx, OperationLog{
		Operation: operationMarkRedemptionUsed,
		Subject:   redemptionID.String(),
		Error:     operationError,
	})
	return operationError
}

// ActiveRedemptions lists the redemptions of a member that are neither used nor expired.
func (service *Service) ActiveRedemptions(ctx context.Context, userID UserID) ([]Redemption, error) {
	return service.store.ListActiveRedemptions(ctx, userID, service.nowFn())
}

func (service *Service) logRewardRedemption(ctx context.Context, userID UserID, rewardID RewardID, points int64, err error) error {
	outcome := OutcomeSuccess.String()
	switch {
	case errors.Is(err, ErrInsufficientPoints):
		outcome = "insufficient_points"
	case err != nil:
		outcome = ""
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeemReward,
		UserID:    userID,
		Subject:   rewardID.String(),
		Points:    points,
		Outcome:   outcome,
		Error:     err,
	})
	return err
}
