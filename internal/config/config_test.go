package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 200, cfg.AnalysisTriggerThreshold)
	require.Equal(t, "file://migrations", cfg.MigrationsPath)
	require.NotEmpty(t, cfg.ReportFontPaths)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("PORT", "9090")
	t.Setenv("ANALYSIS_TRIGGER_THRESHOLD", "350")
	t.Setenv("LLM_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, 350, cfg.AnalysisTriggerThreshold)
	require.Equal(t, "1m30s", cfg.LLMTimeout.String())
}

func TestLoadRejectsNonPositiveThreshold(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/clinic")
	t.Setenv("ANALYSIS_TRIGGER_THRESHOLD", "0")

	_, err := Load()
	require.ErrorContains(t, err, "ANALYSIS_TRIGGER_THRESHOLD")
}
