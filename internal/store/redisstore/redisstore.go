// Package redisstore keeps rate-limit counters in Redis so several service
// instances share one view of attempt volume.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/redis/go-redis/v9"
)

const (
	errorOperationStore  = "store"
	errorSubjectAlert    = "alert"
	errorSubjectCounter  = "counter"
	errorCodeEncode      = "encode"
	errorCodeIncrement   = "increment"
	errorCodeInsert      = "insert"
	errorCodeInvalid     = "invalid"
	errorCodeMarkAlerted = "mark_alerted"

	counterKeyPrefix  = "loyalty:ratelimit:"
	alertMarkerPrefix = "loyalty:alert:"
	alertListKey      = "loyalty:alerts"
	alertListLength   = 1000
	alertMarkerTTL    = 24 * time.Hour
)

// incrementScript returns {count, reset_at, alerted}. A window whose
// reset_at is not after now starts over at one.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local reset = tonumber(redis.call("HGET", KEYS[1], "reset_at") or "0")
if reset <= now then
	reset = now + window
	redis.call("HSET", KEYS[1], "count", 1, "reset_at", reset, "alerted", 0)
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
	return {1, reset, 0}
end
local count = redis.call("HINCRBY", KEYS[1], "count", 1)
local alerted = tonumber(redis.call("HGET", KEYS[1], "alerted") or "0")
return {count, reset, alerted}
`)

var markAlertedScript = redis.NewScript(`
local reset = redis.call("HGET", KEYS[1], "reset_at")
if not reset or tonumber(reset) ~= tonumber(ARGV[1]) then
	return 0
end
if redis.call("HGET", KEYS[1], "alerted") == "1" then
	return 0
end
redis.call("HSET", KEYS[1], "alerted", 1)
return 1
`)

type alertRecord struct {
	ScopeKey        string `json:"scope_key"`
	Count           int64  `json:"count"`
	ResetAtUnixUTC  int64  `json:"reset_at"`
	RaisedAtUnixUTC int64  `json:"raised_at"`
}

// Store implements loyalty.CounterStore on Redis.
type Store struct {
	client redis.UniversalClient
}

// New returns a Store using client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Open parses a redis:// URL and verifies the server answers.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %v", loyalty.ErrInvalidServiceConfig, err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client), nil
}

// Close releases the client connections.
func (store *Store) Close() error {
	return store.client.Close()
}

func (store *Store) IncrementCounter(ctx context.Context, key loyalty.RateLimitKey, nowUnixUTC int64, window time.Duration) (loyalty.RateCounter, error) {
	windowSeconds := int64(window / time.Second)
	values, err := incrementScript.Run(ctx, store.client,
		[]string{counterKey(key)},
		nowUnixUTC, windowSeconds, window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return loyalty.RateCounter{}, wrapStoreError(errorSubjectCounter, errorCodeIncrement, err)
	}
	if len(values) != 3 {
		return loyalty.RateCounter{}, wrapStoreError(errorSubjectCounter, errorCodeInvalid, fmt.Errorf("unexpected reply length %d", len(values)))
	}
	return loyalty.RateCounter{
		Key:            key,
		Count:          values[0],
		ResetAtUnixUTC: values[1],
		Alerted:        values[2] == 1,
	}, nil
}

func (store *Store) MarkAlerted(ctx context.Context, key loyalty.RateLimitKey, resetAtUnixUTC int64) (bool, error) {
	flipped, err := markAlertedScript.Run(ctx, store.client, []string{counterKey(key)}, resetAtUnixUTC).Int64()
	if err != nil {
		return false, wrapStoreError(errorSubjectCounter, errorCodeMarkAlerted, err)
	}
	return flipped == 1, nil
}

// InsertAlert pushes the alert onto a capped list. Repeated inserts for the
// same window are ignored.
func (store *Store) InsertAlert(ctx context.Context, alert loyalty.OperatorAlert) error {
	marker := fmt.Sprintf("%s%s:%d", alertMarkerPrefix, alert.Key.String(), alert.ResetAtUnixUTC)
	fresh, err := store.client.SetNX(ctx, marker, alert.RaisedAtUnixUTC, alertMarkerTTL).Result()
	if err != nil {
		return wrapStoreError(errorSubjectAlert, errorCodeInsert, err)
	}
	if !fresh {
		return nil
	}
	payload, err := json.Marshal(alertRecord{
		ScopeKey:        alert.Key.String(),
		Count:           alert.Count,
		ResetAtUnixUTC:  alert.ResetAtUnixUTC,
		RaisedAtUnixUTC: alert.RaisedAtUnixUTC,
	})
	if err != nil {
		return wrapStoreError(errorSubjectAlert, errorCodeEncode, err)
	}
	_, err = store.client.TxPipelined(ctx, func(pipeline redis.Pipeliner) error {
		pipeline.LPush(ctx, alertListKey, payload)
		pipeline.LTrim(ctx, alertListKey, 0, alertListLength-1)
		return nil
	})
	if err != nil {
		return wrapStoreError(errorSubjectAlert, errorCodeInsert, err)
	}
	return nil
}

func counterKey(key loyalty.RateLimitKey) string {
	return counterKeyPrefix + key.String()
}

func wrapStoreError(subject string, code string, err error) error {
	return loyalty.WrapError(errorOperationStore, subject, code, err)
}

var _ loyalty.CounterStore = (*Store)(nil)
