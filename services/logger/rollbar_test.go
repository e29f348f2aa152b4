package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/trezcool/shule/core"
)

func newObservedLogger() (*RollbarLogger, *observer.ObservedLogs) {
	zc, logs := observer.New(zapcore.DebugLevel)
	return &RollbarLogger{zl: zap.New(zc)}, logs
}

func TestRollbarLogger_fields(t *testing.T) {
	logger, logs := newObservedLogger()

	logger.Error("orphaned school needs reconciliation",
		errors.New("deleting school"),
		errors.New("deadlock detected"),
		map[string]interface{}{"school_id": "s1"},
		core.Person{ID: "user_1", Email: "jane@test.cd"},
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "orphaned school needs reconciliation", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "deleting school", ctx["error"])
	assert.Equal(t, "deadlock detected", ctx["cause"])
	assert.Equal(t, "s1", ctx["school_id"])
	assert.Equal(t, "user_1", ctx["person_id"])
}

func TestRollbarLogger_levels(t *testing.T) {
	logger, logs := newObservedLogger()

	logger.Debug("debug")
	logger.Info("info", 42)
	logger.Warn("warn")
	logger.Error("error")

	levels := make([]zapcore.Level, 0, logs.Len())
	for _, e := range logs.All() {
		levels = append(levels, e.Level)
	}
	assert.Equal(t, []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}, levels)
	assert.EqualValues(t, 42, logs.FilterMessage("info").All()[0].ContextMap()["arg"])
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger, _ := newObservedLogger()
	err := errors.New("boom")

	args := logger.prepare("failed", []interface{}{err, core.Person{ID: "u1"}, core.Person{ID: "u2"}})
	assert.Equal(t, []interface{}{"failed", err}, args)
}

func TestNewZapLogger(t *testing.T) {
	assert.NotNil(t, NewZapLogger("api", true))
	assert.NotNil(t, NewZapLogger("api", false))
	assert.NoError(t, NewNopLogger().Sync())
}
