package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationLevels(test *testing.T) {
	test.Parallel()
	userID, err := loyalty.NewUserID("member-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	testCases := []struct {
		name      string
		entry     loyalty.OperationLog
		wantLevel zapcore.Level
		wantKeys  []string
	}{
		{
			name:      "success",
			entry:     loyalty.OperationLog{Operation: "redeem_delivery_code", UserID: userID, Subject: "NAMASTE-ABC123", Points: 5, Outcome: "success", Status: "ok"},
			wantLevel: zapcore.InfoLevel,
			wantKeys:  []string{"operation", "status", "user_id", "subject", "outcome", "points"},
		},
		{
			name:      "failure",
			entry:     loyalty.OperationLog{Operation: "redeem_reward", UserID: userID, Status: "error", Error: errors.New("db down")},
			wantLevel: zapcore.ErrorLevel,
			wantKeys:  []string{"operation", "status", "user_id", "error"},
		},
		{
			name:      "anonymous rate limit event",
			entry:     loyalty.OperationLog{Operation: "rate_limit", Subject: "global", Outcome: "global_alert", Status: "ok"},
			wantLevel: zapcore.InfoLevel,
			wantKeys:  []string{"operation", "status", "subject", "outcome"},
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			core, recorded := observer.New(zapcore.DebugLevel)
			New(zap.New(core)).LogOperation(context.Background(), testCase.entry)
			entries := recorded.All()
			if len(entries) != 1 {
				test.Fatalf("expected one log entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.wantLevel {
				test.Fatalf("expected level %s, got %s", testCase.wantLevel, entries[0].Level)
			}
			fields := entries[0].ContextMap()
			if len(fields) != len(testCase.wantKeys) {
				test.Fatalf("unexpected fields %v", fields)
			}
			for _, key := range testCase.wantKeys {
				if _, ok := fields[key]; !ok {
					test.Fatalf("missing field %s in %v", key, fields)
				}
			}
			if entries[0].LoggerName != "loyalty" {
				test.Fatalf("unexpected logger name %q", entries[0].LoggerName)
			}
		})
	}
}

func TestNewToleratesNilLogger(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), loyalty.OperationLog{Operation: "noop"})
}
