package loyalty

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the loyalty service.
var (
	ErrUnknownUser           = errors.New("unknown user")
	ErrUnknownCode           = errors.New("unknown code")
	ErrCodeAlreadyUsed       = errors.New("code already used")
	ErrCodeExpired           = errors.New("code expired")
	ErrDuplicateCode         = errors.New("duplicate code")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrUnknownReward         = errors.New("unknown reward")
	ErrRewardInactive        = errors.New("reward inactive")
	ErrUnknownRedemption     = errors.New("unknown redemption")
	ErrRedemptionClosed      = errors.New("redemption already used or expired")
	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidCodeID         = errors.New("invalid code id")
	ErrInvalidCode           = errors.New("invalid code")
	ErrInvalidRewardID       = errors.New("invalid reward id")
	ErrInvalidRedemptionID   = errors.New("invalid redemption id")
	ErrInvalidEntryID        = errors.New("invalid entry id")
	ErrInvalidLocationID     = errors.New("invalid location id")
	ErrInvalidCoordinates    = errors.New("invalid coordinates")
	ErrInvalidPoints         = errors.New("invalid points")
	ErrInvalidPointsDelta    = errors.New("invalid points delta")
	ErrInvalidEntryType      = errors.New("invalid entry type")
	ErrInvalidEntryDetails   = errors.New("invalid entry details")
	ErrInvalidRewardCategory = errors.New("invalid reward category")
	ErrInvalidCodeBatch      = errors.New("invalid code batch")
	ErrInvalidRateLimitKey   = errors.New("invalid rate limit key")
	ErrInvalidRateLimit      = errors.New("invalid rate limit policy")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
