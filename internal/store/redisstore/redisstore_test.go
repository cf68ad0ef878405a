package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const windowStartUnixUTC = int64(1_700_000_000)

func newTestStore(test *testing.T) (*Store, *miniredis.Miniredis) {
	test.Helper()
	server := miniredis.RunT(test)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	test.Cleanup(func() { _ = client.Close() })
	return New(client), server
}

func TestIncrementCounterWindow(test *testing.T) {
	test.Parallel()
	store, server := newTestStore(test)
	ctx := context.Background()
	key, err := loyalty.IPRateLimitKey("198.51.100.7")
	if err != nil {
		test.Fatalf("key: %v", err)
	}

	for attempt := int64(1); attempt <= 3; attempt++ {
		counter, err := store.IncrementCounter(ctx, key, windowStartUnixUTC+attempt, time.Hour)
		if err != nil {
			test.Fatalf("increment: %v", err)
		}
		if counter.Count != attempt || counter.ResetAtUnixUTC != windowStartUnixUTC+1+3600 || counter.Alerted {
			test.Fatalf("unexpected counter %+v", counter)
		}
	}
	if server.TTL(counterKeyPrefix+key.String()) != time.Hour {
		test.Fatalf("expected housekeeping ttl of one hour, got %s", server.TTL(counterKeyPrefix+key.String()))
	}

	counter, err := store.IncrementCounter(ctx, key, windowStartUnixUTC+3601, time.Hour)
	if err != nil {
		test.Fatalf("increment after window: %v", err)
	}
	if counter.Count != 1 || counter.ResetAtUnixUTC != windowStartUnixUTC+7201 {
		test.Fatalf("expected fresh window, got %+v", counter)
	}
}

func TestMarkAlertedOncePerWindow(test *testing.T) {
	test.Parallel()
	store, _ := newTestStore(test)
	ctx := context.Background()
	key := loyalty.GlobalRateLimitKey()
	counter, err := store.IncrementCounter(ctx, key, windowStartUnixUTC, 10*time.Minute)
	if err != nil {
		test.Fatalf("increment: %v", err)
	}

	flipped, err := store.MarkAlerted(ctx, key, counter.ResetAtUnixUTC+1)
	if err != nil || flipped {
		test.Fatalf("expected stale window to be ignored, got %t %v", flipped, err)
	}
	flipped, err = store.MarkAlerted(ctx, key, counter.ResetAtUnixUTC)
	if err != nil || !flipped {
		test.Fatalf("expected first flip, got %t %v", flipped, err)
	}
	flipped, err = store.MarkAlerted(ctx, key, counter.ResetAtUnixUTC)
	if err != nil || flipped {
		test.Fatalf("expected second flip to be a no-op, got %t %v", flipped, err)
	}
	next, err := store.IncrementCounter(ctx, key, windowStartUnixUTC+1, 10*time.Minute)
	if err != nil || !next.Alerted {
		test.Fatalf("expected alerted counter, got %+v %v", next, err)
	}
	renewed, err := store.IncrementCounter(ctx, key, counter.ResetAtUnixUTC, 10*time.Minute)
	if err != nil || renewed.Alerted || renewed.Count != 1 {
		test.Fatalf("expected alert flag cleared in new window, got %+v %v", renewed, err)
	}
}

func TestInsertAlertDeduplicatesWindow(test *testing.T) {
	test.Parallel()
	store, server := newTestStore(test)
	ctx := context.Background()
	alert := loyalty.OperatorAlert{
		Key:             loyalty.GlobalRateLimitKey(),
		Count:           101,
		ResetAtUnixUTC:  windowStartUnixUTC + 600,
		RaisedAtUnixUTC: windowStartUnixUTC + 30,
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := store.InsertAlert(ctx, alert); err != nil {
			test.Fatalf("insert alert: %v", err)
		}
	}
	items, err := server.List(alertListKey)
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		test.Fatalf("expected one alert, got %d", len(items))
	}
	var record alertRecord
	if err := json.Unmarshal([]byte(items[0]), &record); err != nil {
		test.Fatalf("decode: %v", err)
	}
	if record.ScopeKey != "global" || record.Count != 101 || record.ResetAtUnixUTC != alert.ResetAtUnixUTC {
		test.Fatalf("unexpected alert %+v", record)
	}
}

func TestLimiterFailsOpenWhenRedisIsDown(test *testing.T) {
	test.Parallel()
	store, server := newTestStore(test)
	server.Close()
	userID, err := loyalty.NewUserID("member-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}

	_, incrementErr := store.IncrementCounter(context.Background(), loyalty.GlobalRateLimitKey(), windowStartUnixUTC, time.Minute)
	var operationError loyalty.OperationError
	if !errors.As(incrementErr, &operationError) || operationError.Code() != errorCodeIncrement {
		test.Fatalf("expected wrapped increment error, got %v", incrementErr)
	}

	testCases := []struct {
		name        string
		failOpen    bool
		wantAllowed bool
	}{
		{name: "fail open", failOpen: true, wantAllowed: true},
		{name: "fail closed", failOpen: false, wantAllowed: false},
	}
	for _, testCase := range testCases {
		policy := loyalty.DefaultRateLimitPolicy()
		policy.FailOpen = testCase.failOpen
		limiter, err := loyalty.NewRateLimiter(store, policy, func() int64 { return windowStartUnixUTC }, nil)
		if err != nil {
			test.Fatalf("%s: limiter: %v", testCase.name, err)
		}
		decision := limiter.CheckAndRecordAttempt(context.Background(), userID, "203.0.113.9")
		if decision.Allowed != testCase.wantAllowed || decision.Reason != loyalty.RateLimitReasonUnavailable {
			test.Fatalf("%s: unexpected decision %+v", testCase.name, decision)
		}
	}
}

func TestOpenRejectsBadURL(test *testing.T) {
	test.Parallel()
	if _, err := Open(context.Background(), "http://not-redis"); !errors.Is(err, loyalty.ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
	server := miniredis.RunT(test)
	store, err := Open(context.Background(), "redis://"+server.Addr())
	if err != nil {
		test.Fatalf("open: %v", err)
	}
	if err := store.Close(); err != nil {
		test.Fatalf("close: %v", err)
	}
}
