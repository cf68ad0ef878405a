package loyalty

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	rateLimitKeyUserPrefix = "user_"
	rateLimitKeyIPPrefix   = "ip_"
	rateLimitKeyGlobal     = "global"

	// RateLimitReasonExceeded marks an attempt over the scope maximum.
	RateLimitReasonExceeded = "limit_exceeded"
	// RateLimitReasonUnavailable marks an attempt denied because counters could not be read.
	RateLimitReasonUnavailable = "limiter_unavailable"
)

// RateLimitScope is one independent throttling dimension.
type RateLimitScope string

const (
	RateLimitScopeUser   RateLimitScope = "user"
	RateLimitScopeIP     RateLimitScope = "ip"
	RateLimitScopeGlobal RateLimitScope = "global"
)

// RateLimitKey names the counter record of a scope.
type RateLimitKey struct {
	scope RateLimitScope
	value string
}

// UserRateLimitKey returns the counter key of a member.
func UserRateLimitKey(userID UserID) (RateLimitKey, error) {
	if userID.IsZero() {
		return RateLimitKey{}, fmt.Errorf("%w: empty user", ErrInvalidRateLimitKey)
	}
	return RateLimitKey{scope: RateLimitScopeUser, value: rateLimitKeyUserPrefix + userID.String()}, nil
}

// IPRateLimitKey returns the counter key of a client address.
func IPRateLimitKey(ipAddress string) (RateLimitKey, error) {
	trimmed := strings.TrimSpace(ipAddress)
	if trimmed == "" {
		return RateLimitKey{}, fmt.Errorf("%w: empty ip address", ErrInvalidRateLimitKey)
	}
	return RateLimitKey{scope: RateLimitScopeIP, value: rateLimitKeyIPPrefix + trimmed}, nil
}

// GlobalRateLimitKey returns the single system-wide counter key.
func GlobalRateLimitKey() RateLimitKey {
	return RateLimitKey{scope: RateLimitScopeGlobal, value: rateLimitKeyGlobal}
}

// ParseRateLimitKey restores a key from its stored form.
func ParseRateLimitKey(raw string) (RateLimitKey, error) {
	switch {
	case raw == rateLimitKeyGlobal:
		return GlobalRateLimitKey(), nil
	case strings.HasPrefix(raw, rateLimitKeyUserPrefix) && len(raw) > len(rateLimitKeyUserPrefix):
		return RateLimitKey{scope: RateLimitScopeUser, value: raw}, nil
	case strings.HasPrefix(raw, rateLimitKeyIPPrefix) && len(raw) > len(rateLimitKeyIPPrefix):
		return RateLimitKey{scope: RateLimitScopeIP, value: raw}, nil
	default:
		return RateLimitKey{}, fmt.Errorf("%w: %q", ErrInvalidRateLimitKey, raw)
	}
}

// String returns the stored form of the key.
func (key RateLimitKey) String() string {
	return key.value
}

// Scope returns the throttling dimension of the key.
func (key RateLimitKey) Scope() RateLimitScope {
	return key.scope
}

// RateCounter is the state of one scope after an attempt was recorded.
type RateCounter struct {
	Key            RateLimitKey
	Count          int64
	ResetAtUnixUTC int64
	Alerted        bool
}

// OperatorAlert is raised once per window when global traffic crosses the threshold.
type OperatorAlert struct {
	Key             RateLimitKey
	Count           int64
	ResetAtUnixUTC  int64
	RaisedAtUnixUTC int64
}

// CounterStore persists rate-limit counters.
//
// IncrementCounter records one attempt: when nowUnixUTC is before the stored reset
// time the count grows by one, otherwise the counter restarts at 1 with a reset
// time of now plus window. MarkAlerted flips the alerted flag of the window that
// ends at resetAtUnixUTC and reports whether this call performed the flip.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key RateLimitKey, nowUnixUTC int64, window time.Duration) (RateCounter, error)
	MarkAlerted(ctx context.Context, key RateLimitKey, resetAtUnixUTC int64) (bool, error)
	InsertAlert(ctx context.Context, alert OperatorAlert) error
}

// RateLimitPolicy configures the three scopes.
type RateLimitPolicy struct {
	UserMaxAttempts      int64
	UserWindow           time.Duration
	IPMaxAttempts        int64
	IPWindow             time.Duration
	GlobalAlertThreshold int64
	GlobalWindow         time.Duration
	// FailOpen allows attempts when the counter store fails.
	FailOpen bool
}

// DefaultRateLimitPolicy returns 5/24h per user, 10/1h per IP and an alert above 100/10m globally.
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{
		UserMaxAttempts:      5,
		UserWindow:           24 * time.Hour,
		IPMaxAttempts:        10,
		IPWindow:             time.Hour,
		GlobalAlertThreshold: 100,
		GlobalWindow:         10 * time.Minute,
		FailOpen:             true,
	}
}

// Validate ensures every limit and window is positive.
func (policy RateLimitPolicy) Validate() error {
	if policy.UserMaxAttempts <= 0 || policy.IPMaxAttempts <= 0 || policy.GlobalAlertThreshold <= 0 {
		return fmt.Errorf("%w: limits must be greater than zero", ErrInvalidRateLimit)
	}
	if policy.UserWindow < time.Second || policy.IPWindow < time.Second || policy.GlobalWindow < time.Second {
		return fmt.Errorf("%w: windows must be at least one second", ErrInvalidRateLimit)
	}
	return nil
}

// RateLimitDecision is the verdict for one attempt.
type RateLimitDecision struct {
	Allowed        bool
	Scope          RateLimitScope
	Reason         string
	Count          int64
	ResetAtUnixUTC int64
}

// RateLimiter throttles code submissions per user, per IP and globally.
type RateLimiter struct {
	counters CounterStore
	policy   RateLimitPolicy
	nowFn    func() int64
	logger   OperationLogger
}

// NewRateLimiter wires a RateLimiter.
func NewRateLimiter(counters CounterStore, policy RateLimitPolicy, now func() int64, logger OperationLogger) (*RateLimiter, error) {
	if counters == nil {
		return nil, fmt.Errorf("%w: counter store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RateLimiter{counters: counters, policy: policy, nowFn: now, logger: logger}, nil
}

// CheckAndRecordAttempt counts the attempt in every applicable scope and decides
// whether it may proceed. The global scope never denies; crossing its threshold
// raises a single operator alert per window. Under fail-open a faulty scope is
// skipped and the remaining scopes are still counted.
func (limiter *RateLimiter) CheckAndRecordAttempt(ctx context.Context, userID UserID, ipAddress string) RateLimitDecision {
	nowUnixUTC := limiter.nowFn()
	var fault *RateLimitDecision

	userCounter, err := limiter.count(ctx, nowUnixUTC, limiter.policy.UserWindow, func() (RateLimitKey, error) {
		return UserRateLimitKey(userID)
	})
	if err != nil {
		decision := limiter.unavailable(ctx, RateLimitScopeUser, userID, err)
		if !decision.Allowed {
			return decision
		}
		fault = &decision
	} else if userCounter.Count > limiter.policy.UserMaxAttempts {
		return denied(RateLimitScopeUser, userCounter)
	}

	if strings.TrimSpace(ipAddress) != "" {
		ipCounter, err := limiter.count(ctx, nowUnixUTC, limiter.policy.IPWindow, func() (RateLimitKey, error) {
			return IPRateLimitKey(ipAddress)
		})
		if err != nil {
			decision := limiter.unavailable(ctx, RateLimitScopeIP, userID, err)
			if !decision.Allowed {
				return decision
			}
			if fault == nil {
				fault = &decision
			}
		} else if ipCounter.Count > limiter.policy.IPMaxAttempts {
			return denied(RateLimitScopeIP, ipCounter)
		}
	}

	globalCounter, err := limiter.counters.IncrementCounter(ctx, GlobalRateLimitKey(), nowUnixUTC, limiter.policy.GlobalWindow)
	if err != nil {
		decision := limiter.unavailable(ctx, RateLimitScopeGlobal, userID, err)
		if !decision.Allowed {
			return decision
		}
		if fault == nil {
			fault = &decision
		}
	} else if globalCounter.Count > limiter.policy.GlobalAlertThreshold && !globalCounter.Alerted {
		limiter.raiseAlert(ctx, globalCounter, nowUnixUTC)
	}

	if fault != nil {
		return *fault
	}
	return RateLimitDecision{
		Allowed:        true,
		Scope:          RateLimitScopeGlobal,
		Count:          userCounter.Count,
		ResetAtUnixUTC: userCounter.ResetAtUnixUTC,
	}
}

func (limiter *RateLimiter) count(ctx context.Context, nowUnixUTC int64, window time.Duration, key func() (RateLimitKey, error)) (RateCounter, error) {
	scopeKey, err := key()
	if err != nil {
		return RateCounter{}, err
	}
	return limiter.counters.IncrementCounter(ctx, scopeKey, nowUnixUTC, window)
}

func (limiter *RateLimiter) raiseAlert(ctx context.Context, counter RateCounter, nowUnixUTC int64) {
	flipped, err := limiter.counters.MarkAlerted(ctx, counter.Key, counter.ResetAtUnixUTC)
	if err == nil && flipped {
		err = limiter.counters.InsertAlert(ctx, OperatorAlert{
			Key:             counter.Key,
			Count:           counter.Count,
			ResetAtUnixUTC:  counter.ResetAtUnixUTC,
			RaisedAtUnixUTC: nowUnixUTC,
		})
	}
	if err != nil || flipped {
		logOperation(ctx, limiter.logger, OperationLog{
			Operation: operationRateLimit,
			Subject:   counter.Key.String(),
			Outcome:   "global_alert",
			Points:    counter.Count,
			Error:     err,
		})
	}
}

func (limiter *RateLimiter) unavailable(ctx context.Context, scope RateLimitScope, userID UserID, cause error) RateLimitDecision {
	logOperation(ctx, limiter.logger, OperationLog{
		Operation: operationRateLimit,
		UserID:    userID,
		Subject:   string(scope),
		Outcome:   RateLimitReasonUnavailable,
		Error:     cause,
	})
	return RateLimitDecision{
		Allowed: limiter.policy.FailOpen,
		Scope:   scope,
		Reason:  RateLimitReasonUnavailable,
	}
}

func denied(scope RateLimitScope, counter RateCounter) RateLimitDecision {
	return RateLimitDecision{
		Allowed:        false,
		Scope:          scope,
		Reason:         RateLimitReasonExceeded,
		Count:          counter.Count,
		ResetAtUnixUTC: counter.ResetAtUnixUTC,
	}
}
