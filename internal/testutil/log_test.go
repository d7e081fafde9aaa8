package testutil

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureHandlerRecords(t *testing.T) {
	h, logger := NewCaptureHandler()

	logger.Warn("write rejected", "store", "cart", "seq", int64(3))
	logger.Info("committed")

	records := h.Records()
	require.Len(t, records, 2)
	assert.Equal(t, slog.LevelWarn, records[0].Level)
	assert.Equal(t, "write rejected", records[0].Message)
	assert.Equal(t, "cart", records[0].Attrs["store"])
	assert.Equal(t, int64(3), records[0].Attrs["seq"])

	assert.Equal(t, 1, h.CountAtLevel(slog.LevelWarn))
	assert.True(t, h.HasMessage(slog.LevelInfo, "committed"))
	assert.False(t, h.HasMessage(slog.LevelError, "committed"))
}

func TestCaptureHandlerWithAttrs(t *testing.T) {
	h, logger := NewCaptureHandler()

	bound := logger.With("store", "session")
	bound.Warn("journal append failed", "error", "disk full")

	records := h.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "session", records[0].Attrs["store"])
	assert.Equal(t, "disk full", records[0].Attrs["error"])
}

func TestCaptureHandlerReset(t *testing.T) {
	h, logger := NewCaptureHandler()

	logger.Info("before")
	h.Reset()
	logger.Info("after")

	records := h.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "after", records[0].Message)
}
