package gormstore

import (
	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
)

func mapAccount(model Account) (loyalty.Account, error) {
	userID, err := loyalty.NewUserID(model.UserID)
	if err != nil {
		return loyalty.Account{}, err
	}
	points, err := loyalty.NewPoints(model.Points)
	if err != nil {
		return loyalty.Account{}, err
	}
	account := loyalty.Account{
		UserID:         userID,
		Points:         points,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}
	if model.LastCheckInLocation != nil && model.LastCheckInAt != nil {
		locationID, err := loyalty.NewLocationID(*model.LastCheckInLocation)
		if err != nil {
			return loyalty.Account{}, err
		}
		account.LastCheckIn = &loyalty.CheckInMarker{
			LocationID:       locationID,
			CheckedInUnixUTC: model.LastCheckInAt.Unix(),
		}
	}
	return account, nil
}

func mapLedgerEntry(row LedgerEntry) (loyalty.Entry, error) {
	entryID, err := loyalty.NewEntryID(row.EntryID)
	if err != nil {
		return loyalty.Entry{}, err
	}
	userID, err := loyalty.NewUserID(row.UserID)
	if err != nil {
		return loyalty.Entry{}, err
	}
	entryType, err := loyalty.ParseEntryType(row.Type)
	if err != nil {
		return loyalty.Entry{}, err
	}
	delta, err := loyalty.NewPointsDelta(row.PointsDelta)
	if err != nil {
		return loyalty.Entry{}, err
	}
	details, err := loyalty.UnmarshalEntryDetails(entryType, row.Details)
	if err != nil {
		return loyalty.Entry{}, err
	}
	entryInput, err := loyalty.NewEntryInput(userID, delta, details, row.CreatedAt.Unix())
	if err != nil {
		return loyalty.Entry{}, err
	}
	return loyalty.NewEntry(entryID, entryInput)
}

func mapCode(model Code) (loyalty.CodeRecord, error) {
	codeID, err := loyalty.NewCodeID(model.CodeID)
	if err != nil {
		return loyalty.CodeRecord{}, err
	}
	code, err := loyalty.NewCodeValue(model.Code)
	if err != nil {
		return loyalty.CodeRecord{}, err
	}
	points, err := loyalty.NewPoints(model.PointsAwarded)
	if err != nil {
		return loyalty.CodeRecord{}, err
	}
	record := loyalty.CodeRecord{
		CodeID:           codeID,
		Code:             code,
		Used:             model.Used,
		PointsAwarded:    points,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
		ExpiresAtUnixUTC: model.ExpiresAt.Unix(),
		OrderType:        model.OrderType,
		DeliveryPartner:  model.DeliveryPartner,
	}
	if model.UsedBy != nil {
		usedBy, err := loyalty.NewUserID(*model.UsedBy)
		if err != nil {
			return loyalty.CodeRecord{}, err
		}
		record.UsedBy = usedBy
	}
	if model.UsedAt != nil {
		record.UsedUnixUTC = model.UsedAt.Unix()
	}
	return record, nil
}

func mapReward(model Reward) (loyalty.Reward, error) {
	rewardID, err := loyalty.NewRewardID(model.RewardID)
	if err != nil {
		return loyalty.Reward{}, err
	}
	cost, err := loyalty.NewPositivePoints(model.PointsCost)
	if err != nil {
		return loyalty.Reward{}, err
	}
	category, err := loyalty.ParseRewardCategory(model.Category)
	if err != nil {
		return loyalty.Reward{}, err
	}
	return loyalty.Reward{
		RewardID:    rewardID,
		PointsCost:  cost,
		Category:    category,
		Name:        loyalty.LocalizedText{Japanese: model.NameJA, English: model.NameEN},
		Description: loyalty.LocalizedText{Japanese: model.DescriptionJA, English: model.DescriptionEN},
		Active:      model.Active,
	}, nil
}

func mapRedemption(model Redemption) (loyalty.Redemption, error) {
	redemptionID, err := loyalty.NewRedemptionID(model.RedemptionID)
	if err != nil {
		return loyalty.Redemption{}, err
	}
	userID, err := loyalty.NewUserID(model.UserID)
	if err != nil {
		return loyalty.Redemption{}, err
	}
	rewardID, err := loyalty.NewRewardID(model.RewardID)
	if err != nil {
		return loyalty.Redemption{}, err
	}
	cost, err := loyalty.NewPositivePoints(model.PointsCost)
	if err != nil {
		return loyalty.Redemption{}, err
	}
	category, err := loyalty.ParseRewardCategory(model.Category)
	if err != nil {
		return loyalty.Redemption{}, err
	}
	redemption := loyalty.Redemption{
		RedemptionID:      redemptionID,
		UserID:            userID,
		RewardID:          rewardID,
		RewardName:        loyalty.LocalizedText{Japanese: model.NameJA, English: model.NameEN},
		RewardDescription: loyalty.LocalizedText{Japanese: model.DescriptionJA, English: model.DescriptionEN},
		PointsCost:        cost,
		Category:          category,
		Code:              model.Code,
		Used:              model.Used,
		CreatedUnixUTC:    model.CreatedAt.Unix(),
		ExpiresAtUnixUTC:  model.ExpiresAt.Unix(),
	}
	if model.UsedAt != nil {
		redemption.UsedUnixUTC = model.UsedAt.Unix()
	}
	return redemption, nil
}
