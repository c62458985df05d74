package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(buf *bytes.Buffer, level string) Logger {
	return NewStructuredLogger(LoggerConfig{
		Level:       level,
		Format:      "json",
		ServiceName: "contractflow-test",
		Output:      buf,
	})
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestStructuredLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf, "info")

	ctx := WithUserID(WithCorrelationID(context.Background(), "cid-1"), "alice")
	log.Error(ctx, "save failed", errors.New("boom"), map[string]interface{}{"contract_id": "c-1"})

	line := lastLine(t, &buf)
	assert.Equal(t, "save failed", line["msg"])
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "cid-1", line["correlation_id"])
	assert.Equal(t, "alice", line["user_id"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "c-1", line["contract_id"])
	assert.Equal(t, "contractflow-test", line["service"])
	assert.Contains(t, line, "caller")
}

func TestStructuredLogger_WithFieldsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := newJSONLogger(&buf, "info")
	child := base.WithFields(map[string]interface{}{"component": "notify"})

	child.Info(context.Background(), "child", nil)
	assert.Equal(t, "notify", lastLine(t, &buf)["component"])

	base.Info(context.Background(), "base", nil)
	assert.NotContains(t, lastLine(t, &buf), "component")
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := newJSONLogger(&buf, "warn")

	log.Info(context.Background(), "hidden", nil)
	log.Debug(context.Background(), "hidden", nil)
	assert.Empty(t, buf.String())

	log.Warn(context.Background(), "shown", nil)
	assert.Equal(t, "shown", lastLine(t, &buf)["msg"])
}

func TestLogSecurityEvent_SeverityLevels(t *testing.T) {
	tests := []struct {
		severity string
		level    string
	}{
		{"HIGH", "error"},
		{"MEDIUM", "warning"},
		{"LOW", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			var buf bytes.Buffer
			LogSecurityEvent(context.Background(), newJSONLogger(&buf, "debug"), "permission_denied", tt.severity, nil)

			line := lastLine(t, &buf)
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, "security", line["event_type"])
			assert.Equal(t, "permission_denied", line["security_event"])
		})
	}
}

func TestLogPerformance(t *testing.T) {
	var buf bytes.Buffer
	LogPerformance(context.Background(), newJSONLogger(&buf, "debug"), "audit.verify", 1500*time.Millisecond, nil)

	line := lastLine(t, &buf)
	assert.Equal(t, "performance", line["event_type"])
	assert.Equal(t, "audit.verify", line["operation"])
	assert.Equal(t, float64(1500), line["duration_ms"])
}

func TestNewDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		NewDiscard().Error(context.Background(), "dropped", errors.New("x"), nil)
	})
}
