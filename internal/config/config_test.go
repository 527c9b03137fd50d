package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"answergate/domain/verdict"
	"answergate/internal/errors"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CODEX_API_KEY", "test-key")
	t.Setenv("STORE_BACKEND", "memory")
	// Clear knobs that may leak in from the invoking shell.
	t.Setenv("GATE_FAIL_MODE", "")
	t.Setenv("ORACLE_TIMEOUT", "")
	t.Setenv("STORE_SIMILARITY_THRESHOLD", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CODEX_PROJECT_ID", "")
	t.Setenv("PORT", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Oracle.APIKey)
	assert.Equal(t, "https://api.cleanlab.ai/api", cfg.Oracle.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 2, cfg.Oracle.MaxRetries)
	assert.Equal(t, verdict.FailOpen, cfg.Gate.FailMode)
	assert.Equal(t, 0.6, cfg.Store.SimilarityThreshold)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoadOverrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ORACLE_TIMEOUT", "5s")
	t.Setenv("GATE_FAIL_MODE", "closed")
	t.Setenv("STORE_SIMILARITY_THRESHOLD", "0.8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, verdict.FailClosed, cfg.Gate.FailMode)
	assert.Equal(t, 0.8, cfg.Store.SimilarityThreshold)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{
			name: "missing API key",
			setup: func(t *testing.T) {
				t.Setenv("CODEX_API_KEY", "")
			},
		},
		{
			name: "bad fail mode",
			setup: func(t *testing.T) {
				t.Setenv("GATE_FAIL_MODE", "sometimes")
			},
		},
		{
			name: "postgres backend without database URL",
			setup: func(t *testing.T) {
				t.Setenv("STORE_BACKEND", "postgres")
			},
		},
		{
			name: "remote backend without project ID",
			setup: func(t *testing.T) {
				t.Setenv("STORE_BACKEND", "remote")
			},
		},
		{
			name: "unknown backend",
			setup: func(t *testing.T) {
				t.Setenv("STORE_BACKEND", "etcd")
			},
		},
		{
			name: "similarity threshold out of range",
			setup: func(t *testing.T) {
				t.Setenv("STORE_SIMILARITY_THRESHOLD", "1.5")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBaseEnv(t)
			tt.setup(t)

			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "got %v", err)
		})
	}
}
