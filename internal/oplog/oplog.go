// Package oplog forwards loyalty operation events to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"go.uber.org/zap"
)

const statusError = "error"

// ZapLogger implements loyalty.OperationLogger.
type ZapLogger struct {
	logger *zap.Logger
}

// New returns a ZapLogger. A nil logger discards every event.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("loyalty")}
}

func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry loyalty.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.Subject != "" {
		fields = append(fields, zap.String("subject", entry.Subject))
	}
	if entry.Outcome != "" {
		fields = append(fields, zap.String("outcome", entry.Outcome))
	}
	if entry.Points != 0 {
		fields = append(fields, zap.Int64("points", entry.Points))
	}
	if entry.Error != nil || entry.Status == statusError {
		fields = append(fields, zap.Error(entry.Error))
		zapLogger.logger.Error("loyalty operation failed", fields...)
		return
	}
	zapLogger.logger.Info("loyalty operation", fields...)
}

var _ loyalty.OperationLogger = (*ZapLogger)(nil)
