package loyalty

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a loyalty operation and how it ended.
type OperationLog struct {
	Operation string
	UserID    UserID
	Subject   string
	Points    int64
	Outcome   string
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithRateLimitPolicy overrides the default code submission limits.
func WithRateLimitPolicy(policy RateLimitPolicy) ServiceOption {
	return func(service *Service) {
		service.ratePolicy = policy
	}
}

// WithLocationRegistry replaces the compiled-in check-in locations.
func WithLocationRegistry(registry *LocationRegistry) ServiceOption {
	return func(service *Service) {
		if registry != nil {
			service.locations = registry
		}
	}
}

// WithPointsLifetime sets how long credited points count toward the next-expiry warning.
func WithPointsLifetime(lifetime time.Duration) ServiceOption {
	return func(service *Service) {
		if lifetime > 0 {
			service.pointsLifetime = lifetime
		}
	}
}

// WithCodeGenerator replaces the random source used for codes and redemption ids.
func WithCodeGenerator(generator *CodeGenerator) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.generator = generator
		}
	}
}

func logOperation(ctx context.Context, logger OperationLogger, entry OperationLog) {
	if logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	logger.LogOperation(ctx, entry)
}
