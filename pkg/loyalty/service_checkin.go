package loyalty

import (
	"context"
	"errors"
	"time"
)

// CheckInByQR awards a visit point when the member scans a known QR code from
// inside its geofence. A repeat scan of the same code within CheckInCooldown is refused.
func (service *Service) CheckInByQR(ctx context.Context, rawQR string, latitude float64, longitude float64, userID UserID) (CheckInResult, error) {
	location, known := service.locations.Lookup(rawQR)
	if !known {
		return service.finishCheckIn(ctx, userID, rawQR, checkInFailure(OutcomeUnknownLocation, 0), nil)
	}
	point, err := NewCoordinates(latitude, longitude)
	if err != nil {
		return service.finishCheckIn(ctx, userID, rawQR, checkInFailure(OutcomeInvalidLocation, 0), nil)
	}
	inside, distanceMeters := location.Contains(point)
	if !inside {
		return service.finishCheckIn(ctx, userID, rawQR, checkInFailure(OutcomeTooFar, distanceMeters), nil)
	}

	account, err := service.store.GetAccount(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return service.finishCheckIn(ctx, userID, rawQR, checkInFailure(OutcomeUserNotFound, distanceMeters), nil)
	}
	if err != nil {
		return service.finishCheckIn(ctx, userID, rawQR, CheckInResult{}, err)
	}
	nowUnixUTC := service.nowFn()
	if checkedInRecently(account.LastCheckIn, location.LocationID, nowUnixUTC) {
		return service.finishCheckIn(ctx, userID, rawQR, checkInFailure(OutcomeAlreadyCheckedIn, distanceMeters), nil)
	}

	award := PositivePoints(CheckInPoints)
	var balance Points
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetAccount(ctx, userID); err != nil {
			if errors.Is(err, ErrUnknownUser) {
				return outcomeError{outcome: OutcomeUserNotFound}
			}
			return err
		}
		entryInput, err := NewEntryInput(userID, award.ToDelta(), StoreVisitDetails{
			LocationID:     location.LocationID.String(),
			Latitude:       point.Latitude,
			Longitude:      point.Longitude,
			DistanceMeters: distanceMeters,
		}, nowUnixUTC)
		if err != nil {
			return err
		}
		updated, err := transactionStore.ApplyPointsDelta(ctx, userID, award.ToDelta())
		if err != nil {
			return err
		}
		marker := CheckInMarker{LocationID: location.LocationID, CheckedInUnixUTC: nowUnixUTC}
		if err := transactionStore.SetLastCheckIn(ctx, userID, marker); err != nil {
			return err
		}
		if _, err := transactionStore.InsertEntry(ctx, entryInput); err != nil {
			return err
		}
		balance = updated
		return nil
	})
	if outcome, isOutcome := outcomeOf(operationError); isOutcome {
		return service.finishCheckIn(ctx, userID, rawQR, checkInFailure(outcome, distanceMeters), nil)
	}
	if operationError != nil {
		return service.finishCheckIn(ctx, userID, rawQR, CheckInResult{}, operationError)
	}
	return service.finishCheckIn(ctx, userID, rawQR, CheckInResult{
		Success:        true,
		Outcome:        OutcomeSuccess,
		Message:        OutcomeSuccess.Message(),
		DistanceMeters: distanceMeters,
		PointsAdded:    award.ToPoints(),
		CurrentPoints:  balance,
	}, nil)
}

func checkedInRecently(marker *CheckInMarker, locationID LocationID, nowUnixUTC int64) bool {
	if marker == nil || marker.LocationID != locationID {
		return false
	}
	return nowUnixUTC-marker.CheckedInUnixUTC < int64(CheckInCooldown/time.Second)
}

func (service *Service) finishCheckIn(ctx context.Context, userID UserID, rawQR string, result CheckInResult, err error) (CheckInResult, error) {
	service.logOperation(ctx, OperationLog{
		Operation: operationCheckIn,
		UserID:    userID,
		Subject:   rawQR,
		Points:    result.PointsAdded.Int64(),
		Outcome:   result.Outcome.String(),
		Error:     err,
	})
	return result, err
}
