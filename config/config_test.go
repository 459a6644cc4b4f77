package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppConfig_CredentialAliases(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		wantID   string
		wantKey  string
		wantRT   string
	}{
		{
			name: "primary names win",
			env: map[string]string{
				"GOOGLE_CLIENT_ID":     "primary-id",
				"GBP_CLIENT_ID":        "fallback-id",
				"GOOGLE_CLIENT_SECRET": "primary-secret",
				"GOOGLE_REFRESH_TOKEN": "primary-rt",
			},
			wantID:  "primary-id",
			wantKey: "primary-secret",
			wantRT:  "primary-rt",
		},
		{
			name: "fallback names used when primary absent",
			env: map[string]string{
				"GBP_CLIENT_ID":              "fallback-id",
				"GOOGLE_OAUTH_CLIENT_SECRET": "oauth-secret",
				"GBP_REFRESH_TOKEN":          "fallback-rt",
			},
			wantID:  "fallback-id",
			wantKey: "oauth-secret",
			wantRT:  "fallback-rt",
		},
	}

	allKeys := []string{
		"GOOGLE_CLIENT_ID", "GOOGLE_OAUTH_CLIENT_ID", "GBP_CLIENT_ID",
		"GOOGLE_CLIENT_SECRET", "GOOGLE_OAUTH_CLIENT_SECRET", "GBP_CLIENT_SECRET",
		"GOOGLE_REFRESH_TOKEN", "GBP_REFRESH_TOKEN",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range allKeys {
				t.Setenv(k, "")
			}

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := NewAppConfig()
			require.NoError(t, err)

			assert.Equal(t, tt.wantID, cfg.GoogleClientID)
			assert.Equal(t, tt.wantKey, cfg.GoogleClientSecret)
			assert.Equal(t, tt.wantRT, cfg.GoogleRefreshToken)
		})
	}
}

func TestNewAppConfig_DatabaseDSNAliases(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_DSN", "postgres://fallback")

	cfg, err := NewAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://fallback", cfg.DatabaseDSN)

	t.Setenv("DATABASE_URL", "postgres://primary")

	cfg, err = NewAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.DatabaseDSN)
}

func TestNewAppConfig_UpstreamTimeout(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "")

	cfg, err := NewAppConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultUpstreamTimeout, cfg.UpstreamTimeout)

	t.Setenv("UPSTREAM_TIMEOUT", "30s")

	cfg, err = NewAppConfig()
	require.NoError(t, err)
	assert.Equal(t, "30s", cfg.UpstreamTimeout.String())

	t.Setenv("UPSTREAM_TIMEOUT", "10ms")

	_, err = NewAppConfig()
	assert.Error(t, err)
}

func TestValidateForDefaultConnection(t *testing.T) {
	t.Setenv("GOOGLE_REFRESH_TOKEN", "")
	t.Setenv("GBP_REFRESH_TOKEN", "")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")

	cfg, err := NewAppConfig()
	require.NoError(t, err)

	err = cfg.ValidateForDefaultConnection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_REFRESH_TOKEN")

	t.Setenv("GOOGLE_REFRESH_TOKEN", "rt")

	cfg, err = NewAppConfig()
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateForDefaultConnection())
	assert.True(t, cfg.HasGoogleEnvCredentials())
}
