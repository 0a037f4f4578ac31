package utils

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", false)

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "info", true)

	logger.Info("structured", "key", "value")
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestAppErrorWrapping(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewAppError("scrape", "endpoint unreachable", inner)

	assert.Equal(t, "scrape: endpoint unreachable: connection refused", err.Error())
	assert.ErrorIs(t, err, inner)

	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "scrape", appErr.Op)

	bare := NewAppError("analyze", "no services", nil)
	assert.Equal(t, "analyze: no services", bare.Error())
}

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker(4)
	assert.Equal(t, time.Duration(0), lt.Percentile(95))

	for _, d := range []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
	} {
		lt.Observe(d)
	}
	assert.Equal(t, 4, lt.Count())
	assert.Equal(t, 10*time.Millisecond, lt.Percentile(0))
	assert.Equal(t, 40*time.Millisecond, lt.Percentile(100))

	// The window is bounded: a fifth sample evicts the oldest.
	lt.Observe(50 * time.Millisecond)
	assert.Equal(t, 4, lt.Count())
	assert.Equal(t, 20*time.Millisecond, lt.Percentile(0))
}
