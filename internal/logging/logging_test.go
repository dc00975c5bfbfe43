package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return New(slog.New(h))
}

func TestLevelOrdering(t *testing.T) {
	assert.True(t, LevelStdout < LevelDebug)
	assert.True(t, LevelDebug < LevelVerbose)
	assert.True(t, LevelVerbose < LevelHugeVerbose)
	assert.True(t, LevelHugeVerbose < LevelInfo)
	assert.True(t, LevelInfo < LevelHugeInfo)
	assert.True(t, LevelHugeInfo < LevelSuccess)
	assert.True(t, LevelSuccess < LevelHugeSuccess)
	assert.True(t, LevelHugeSuccess < LevelWarning)
	assert.True(t, LevelWarning < LevelHugeWarning)
	assert.True(t, LevelHugeWarning < LevelError)
	assert.True(t, LevelError < LevelCritical)
}

func TestWarningCapturesTraceWhenErrorPresent(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, LevelDebug)

	l.Warning(errors.New("boom"), "something went wrong")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "trace")
	assert.Contains(t, entry["trace"], "logging_test.go")
}

func TestWarningOmitsTraceWhenNoError(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, LevelDebug)

	l.Warning(nil, "benign notice")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "trace")
}

func TestLevelFilteringHidesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, LevelWarning)

	l.Debug("should not appear")
	l.Info("should not appear either")
	assert.Empty(t, buf.String())

	l.Warning(nil, "this one shows up")
	assert.True(t, strings.Contains(buf.String(), "this one shows up"))
}

func TestWithAttachesAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, LevelDebug)
	scoped := l.With("module", "dnsresolve")

	scoped.Info("hello", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dnsresolve", entry["module"])
	assert.Equal(t, "v", entry["k"])
}

func TestLogRespectsContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, LevelDebug)
	ctx := context.Background()
	l.log(ctx, LevelInfo, "ctx-aware")
	assert.Contains(t, buf.String(), "ctx-aware")
}
