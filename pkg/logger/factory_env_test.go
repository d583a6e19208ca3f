package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env      string
		wantEnv  string
		wantJSON bool
	}{
		{env: "production", wantEnv: "production", wantJSON: true},
		{env: "prod", wantEnv: "production", wantJSON: true},
		{env: "staging", wantEnv: "staging", wantJSON: true},
		{env: "stage", wantEnv: "staging", wantJSON: true},
		{env: "development", wantEnv: "development"},
		{env: "", wantEnv: "development"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Parallel()

			buf := &bytes.Buffer{}
			log := logger.New(
				logger.WithEnvironment(tt.env, "entitlements"),
				logger.WithOutput(buf),
			)
			log.Info("msg")

			if tt.wantJSON {
				var entry map[string]any
				require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
				assert.Equal(t, "entitlements", entry["service"])
				assert.Equal(t, tt.wantEnv, entry["env"])
				return
			}
			assert.Contains(t, buf.String(), "service=entitlements")
			assert.Contains(t, buf.String(), "env="+tt.wantEnv)
		})
	}
}

func TestWithDevelopment_DebugLevel(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithDevelopment("svc"), logger.WithOutput(buf))
	log.Debug("msg")
	assert.Contains(t, buf.String(), "DEBUG")
}

func TestWithEnvironment_EmptyServiceIgnored(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.New(logger.WithProduction(""), logger.WithOutput(buf))
	log.Info("msg")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "service")
}

func TestContextExtractor_Organization(t *testing.T) {
	t.Parallel()

	type orgKey struct{}
	orgID := uuid.New()

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithProduction("svc"),
		logger.WithOutput(buf),
		logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
			id, ok := ctx.Value(orgKey{}).(uuid.UUID)
			if !ok {
				return slog.Attr{}, false
			}
			return logger.OrganizationID(id), true
		}),
	)

	ctx := context.WithValue(context.Background(), orgKey{}, orgID)
	log.InfoContext(ctx, "consumed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, orgID.String(), entry["organization_id"])
}
