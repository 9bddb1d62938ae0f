package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/pscheid92/wastepoints/internal/platform/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_JSONWithCorrelation(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	InitLogger("debug", "json", &buf)

	ctx := correlation.WithID(context.Background(), "req-1")
	Logger.DebugContext(ctx, "Backend request", "path", "/me/")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Backend request", line["msg"])
	assert.Equal(t, "req-1", line["correlation_id"])
	assert.Equal(t, "/me/", line["path"])
}

func TestInitLogger_LevelFiltering(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	InitLogger("warn", "text", &buf)

	Logger.Info("dropped")
	assert.Empty(t, buf.String())

	Logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
