package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CodeBatchRequest describes a batch of delivery codes to issue.
type CodeBatchRequest struct {
	Count           int
	Prefix          string
	PointsAwarded   int64
	ExpiryDays      int
	OrderType       string
	DeliveryPartner string
}

func (request CodeBatchRequest) validate() error {
	if request.Count < 1 || request.Count > maxCodeBatchSize {
		return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidCodeBatch, maxCodeBatchSize)
	}
	if request.ExpiryDays < 1 {
		return fmt.Errorf("%w: expiry days must be at least 1", ErrInvalidCodeBatch)
	}
	if request.PointsAwarded < 0 {
		return fmt.Errorf("%w: points awarded must not be negative", ErrInvalidCodeBatch)
	}
	for _, character := range strings.ToUpper(strings.TrimSpace(request.Prefix)) {
		if character == '-' || !isCodeCharacter(character) {
			return fmt.Errorf("%w: prefix must be alphanumeric", ErrInvalidCodeBatch)
		}
	}
	return nil
}

// RedeemDeliveryCode credits the award of a checksum-suffixed delivery code.
// Business failures are reported in the result; only infrastructure faults are returned as errors.
func (service *Service) RedeemDeliveryCode(ctx context.Context, rawCode string, userID UserID, ipAddress string) (CodeRedemptionResult, error) {
	decision := service.limiter.CheckAndRecordAttempt(ctx, userID, ipAddress)
	if !decision.Allowed {
		return service.rejectCode(ctx, userID, ipAddress, rawCode, OutcomeRateLimited), nil
	}

	code, ok := parseSubmittedCode(rawCode)
	if !ok {
		return service.rejectCode(ctx, userID, ipAddress, rawCode, OutcomeInvalidFormat), nil
	}

	var (
		award   PositivePoints
		balance Points
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		record, err := transactionStore.FindCode(ctx, code)
		if errors.Is(err, ErrUnknownCode) {
			return outcomeError{outcome: OutcomeInvalidCode}
		}
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		if record.ExpiredAt(nowUnixUTC) {
			return outcomeError{outcome: OutcomeExpired}
		}
		if record.Used {
			return outcomeError{outcome: OutcomeAlreadyUsed}
		}
		if _, err := transactionStore.GetAccount(ctx, userID); err != nil {
			if errors.Is(err, ErrUnknownUser) {
				return outcomeError{outcome: OutcomeUserNotFound}
			}
			return err
		}
		if err := transactionStore.MarkCodeUsed(ctx, record.CodeID, userID, nowUnixUTC); err != nil {
			if errors.Is(err, ErrCodeAlreadyUsed) {
				return outcomeError{outcome: OutcomeAlreadyUsed}
			}
			return err
		}
		award = record.Award()
		entryInput, err := NewEntryInput(userID, award.ToDelta(), DeliveryCodeDetails{
			CodeID:          record.CodeID.String(),
			OrderType:       record.OrderType,
			DeliveryPartner: record.DeliveryPartner,
		}, nowUnixUTC)
		if err != nil {
			return err
		}
		updated, err := transactionStore.ApplyPointsDelta(ctx, userID, award.ToDelta())
		if err != nil {
			return err
		}
		if _, err := transactionStore.InsertEntry(ctx, entryInput); err != nil {
			return err
		}
		balance = updated
		return nil
	})

	if outcome, isOutcome := outcomeOf(operationError); isOutcome {
		if outcome == OutcomeUserNotFound {
			service.logCodeRedemption(ctx, userID, code.String(), 0, outcome, nil)
			return codeRedemptionFailure(outcome), nil
		}
		return service.rejectCode(ctx, userID, ipAddress, code.String(), outcome), nil
	}
	if operationError != nil {
		service.logCodeRedemption(ctx, userID, code.String(), 0, "", operationError)
		return CodeRedemptionResult{}, operationError
	}
	service.logCodeRedemption(ctx, userID, code.String(), award.Int64(), OutcomeSuccess, nil)
	return CodeRedemptionResult{
		Success:       true,
		Outcome:       OutcomeSuccess,
		Message:       OutcomeSuccess.Message(),
		PointsAdded:   award.ToPoints(),
		CurrentPoints: balance,
	}, nil
}

// GenerateCodes issues a batch of unused codes and returns them with their check characters.
func (service *Service) GenerateCodes(ctx context.Context, request CodeBatchRequest) ([]string, error) {
	if err := request.validate(); err != nil {
		return nil, err
	}
	nowUnixUTC := service.nowFn()
	expiresAtUnixUTC := nowUnixUTC + int64(time.Duration(request.ExpiryDays)*24*time.Hour/time.Second)
	pointsAwarded := request.PointsAwarded
	if pointsAwarded == 0 {
		pointsAwarded = DefaultCodePoints
	}

	records := make([]CodeRecord, 0, request.Count)
	issued := make([]string, 0, request.Count)
	seen := make(map[string]struct{}, request.Count)
	for len(records) < request.Count {
		code, err := service.generator.DeliveryCode(request.Prefix)
		if err != nil {
			return nil, err
		}
		if _, duplicate := seen[code.String()]; duplicate {
			continue
		}
		seen[code.String()] = struct{}{}
		rawID, err := service.generator.NewUUID()
		if err != nil {
			return nil, err
		}
		codeID, err := NewCodeID(rawID)
		if err != nil {
			return nil, err
		}
		records = append(records, CodeRecord{
			CodeID:           codeID,
			Code:             code,
			PointsAwarded:    Points(pointsAwarded),
			CreatedUnixUTC:   nowUnixUTC,
			ExpiresAtUnixUTC: expiresAtUnixUTC,
			OrderType:        strings.TrimSpace(request.OrderType),
			DeliveryPartner:  strings.TrimSpace(request.DeliveryPartner),
		})
		issued = append(issued, AppendChecksum(code.String()))
	}

	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		return transactionStore.InsertCodes(ctx, records)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationGenerateCodes,
		Subject:   strings.ToUpper(strings.TrimSpace(request.Prefix)),
		Points:    int64(len(records)),
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return issued, nil
}

func parseSubmittedCode(rawCode string) (CodeValue, bool) {
	normalized, err := NewCodeValue(rawCode)
	if err != nil {
		return CodeValue{}, false
	}
	if !VerifyChecksum(normalized.String()) {
		return CodeValue{}, false
	}
	body, _ := SplitChecksum(normalized.String())
	code, err := NewCodeValue(body)
	if err != nil {
		return CodeValue{}, false
	}
	return code, true
}

func (service *Service) rejectCode(ctx context.Context, userID UserID, ipAddress string, code string, outcome Outcome) CodeRedemptionResult {
	service.recordFailedAttempt(ctx, FailedAttempt{
		UserID:             userID.String(),
		IPAddress:          strings.TrimSpace(ipAddress),
		Code:               strings.TrimSpace(code),
		Reason:             outcome.String(),
		AttemptedAtUnixUTC: service.nowFn(),
	})
	service.logCodeRedemption(ctx, userID, code, 0, outcome, nil)
	return codeRedemptionFailure(outcome)
}

func (service *Service) recordFailedAttempt(ctx context.Context, attempt FailedAttempt) {
	err := service.store.InsertFailedAttempt(ctx, attempt)
	if err == nil {
		return
	}
	userID, _ := NewUserID(attempt.UserID)
	service.logOperation(ctx, OperationLog{
		Operation: operationAuditAttempt,
		UserID:    userID,
		Subject:   attempt.Code,
		Outcome:   attempt.Reason,
		Error:     err,
	})
}

func (service *Service) logCodeRedemption(ctx context.Context, userID UserID, code string, points int64, outcome Outcome, err error) {
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeemDeliveryCode,
		UserID:    userID,
		Subject:   code,
		Points:    points,
		Outcome:   outcome.String(),
		Error:     err,
	})
}
