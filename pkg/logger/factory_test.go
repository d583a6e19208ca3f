package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithOutput(buf))

	log.Debug("hidden")
	assert.Zero(t, buf.Len())

	log.Info("usage recorded", logger.Feature("api_calls"))
	entry := decode(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "usage recorded", entry["msg"])
	assert.Equal(t, "api_calls", entry["feature"])
}

func TestNew_LevelOverridesEnvironment(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithEnvironment("development", "entitlements"),
		logger.WithLevel(slog.LevelWarn),
	)

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "service=entitlements")
}

func TestNew_Formats(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger.New(logger.WithOutput(buf), logger.WithTextFormatter()).Info("text")
	assert.Contains(t, buf.String(), "msg=text")

	buf.Reset()
	logger.New(logger.WithOutput(buf), logger.WithFormat(logger.FormatText), logger.WithJSONFormatter()).Info("json")
	assert.Equal(t, "json", decode(t, buf)["msg"])

	assert.Panics(t, func() {
		logger.New(logger.WithFormat(logger.Format("xml")))
	})
}

func TestNew_StaticAttrsAndContextValue(t *testing.T) {
	t.Parallel()

	type backendKey struct{}

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithAttr(logger.Component("cli")),
		logger.WithContextValue("backend", backendKey{}),
		logger.WithContextValue("", backendKey{}),
	)

	ctx := context.WithValue(context.Background(), backendKey{}, "redis")
	log.InfoContext(ctx, "opened")

	entry := decode(t, buf)
	assert.Equal(t, "cli", entry["component"])
	assert.Equal(t, "redis", entry["backend"])
}

func TestNew_HandlerOptions(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithHandlerOptions(&slog.HandlerOptions{Level: slog.LevelError}),
	)

	log.Warn("hidden")
	assert.Zero(t, buf.Len())
	log.Error("shown")
	assert.Equal(t, "shown", decode(t, buf)["msg"])
}

func TestSetAsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	logger.SetAsDefault(logger.New(logger.WithOutput(buf)))
	slog.Info("default")
	assert.Equal(t, "default", decode(t, buf)["msg"])
}
