package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("LEARNHUB_JWT_SECRET", "secret")
	t.Setenv("LEARNHUB_IDENTITY_URL", "http://identity.local/auth/v1")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "LearnHub API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, "learnhub", cfg.EventChannel)
	require.True(t, cfg.FallbackDemoData)
	require.True(t, cfg.ProvisionProfiles)
	require.Equal(t, 5, cfg.MaxImageMB)
	require.False(t, cfg.CloudinaryConfigured())
	require.False(t, cfg.SeedEnabled)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("LEARNHUB_JWT_SECRET", "secret")
	t.Setenv("LEARNHUB_IDENTITY_URL", "http://identity.local/auth/v1")
	t.Setenv("LEARNHUB_APP_PORT", ":9090")
	t.Setenv("LEARNHUB_CATALOG_CACHE_TTL", "30s")
	t.Setenv("LEARNHUB_FALLBACK_DEMO_DATA", "false")
	t.Setenv("LEARNHUB_UPLOAD_MAX_IMAGE_MB", "0")
	t.Setenv("LEARNHUB_SEED_ENABLED", "true")
	t.Setenv("LEARNHUB_SEED_TOKEN", "seed-token")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddress())
	require.Equal(t, 30*time.Second, cfg.CatalogCacheTTL)
	require.False(t, cfg.FallbackDemoData)
	require.Equal(t, 5, cfg.MaxImageMB)
	require.True(t, cfg.SeedEnabled)
	require.Equal(t, "seed-token", cfg.SeedToken)
}

func TestLoadRejectsMissingSecretsAndBadDurations(t *testing.T) {
	t.Setenv("LEARNHUB_JWT_SECRET", "")
	t.Setenv("LEARNHUB_IDENTITY_URL", "http://identity.local/auth/v1")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("LEARNHUB_JWT_SECRET", "secret")
	t.Setenv("LEARNHUB_CATALOG_CACHE_TTL", "soon")
	_, err = Load()
	require.ErrorContains(t, err, "catalog cache ttl")
}

func TestLoadClientDoesNotRequireSecret(t *testing.T) {
	t.Setenv("LEARNHUB_JWT_SECRET", "")
	t.Setenv("LEARNHUB_IDENTITY_URL", "http://identity.local/auth/v1")

	cfg, err := LoadClient()
	require.NoError(t, err)
	require.Empty(t, cfg.JWTSecret)
}
