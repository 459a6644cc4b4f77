// Package config resolves environment configuration for the sync service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AppConfig is the normalized configuration resolved once at startup.
// Credential values that historically lived under several environment
// variable names are resolved here through ordered alias lists so the
// rest of the code never sees the aliasing.
type AppConfig struct {
	// Direct Google OAuth credentials for the single manager-account
	// bootstrap mode.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	// GoogleAccessToken is an optional static token used as a last
	// resort when a refresh of the default connection fails.
	GoogleAccessToken string

	// OAuth broker (Pipedream) API credentials.
	PipedreamAPIToken  string
	PipedreamProjectID string
	PipedreamEnv       string

	HubSpotToken string

	// Default GBP account and location used by scheduled full syncs.
	GBPAccountID  string
	GBPLocationID string

	DatabaseDSN string

	// CronSecret authenticates scheduled trigger requests.
	CronSecret string
	// APIKey authenticates manual dashboard trigger requests.
	APIKey string

	UpstreamTimeout time.Duration
}

const defaultUpstreamTimeout = 15 * time.Second

// Ordered alias lists for credentials that appear under multiple env
// var names in existing deployments. First non-empty value wins.
var (
	googleClientIDAliases = []string{
		"GOOGLE_CLIENT_ID",
		"GOOGLE_OAUTH_CLIENT_ID",
		"GBP_CLIENT_ID",
	}
	googleClientSecretAliases = []string{
		"GOOGLE_CLIENT_SECRET",
		"GOOGLE_OAUTH_CLIENT_SECRET",
		"GBP_CLIENT_SECRET",
	}
	googleRefreshTokenAliases = []string{
		"GOOGLE_REFRESH_TOKEN",
		"GBP_REFRESH_TOKEN",
	}
	databaseDSNAliases = []string{
		"DATABASE_URL",
		"POSTGRES_DSN",
	}
)

// NewAppConfig builds the configuration from the environment.
func NewAppConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		GoogleClientID:     firstEnv(googleClientIDAliases...),
		GoogleClientSecret: firstEnv(googleClientSecretAliases...),
		GoogleRefreshToken: firstEnv(googleRefreshTokenAliases...),
		GoogleAccessToken:  os.Getenv("GOOGLE_ACCESS_TOKEN"),
		PipedreamAPIToken:  os.Getenv("PIPEDREAM_API_TOKEN"),
		PipedreamProjectID: os.Getenv("PIPEDREAM_PROJECT_ID"),
		PipedreamEnv:       getEnvOrDefault("PIPEDREAM_ENV", "production"),
		HubSpotToken:       os.Getenv("HUBSPOT_ACCESS_TOKEN"),
		GBPAccountID:       os.Getenv("GBP_ACCOUNT_ID"),
		GBPLocationID:      os.Getenv("GBP_LOCATION_ID"),
		DatabaseDSN:        firstEnv(databaseDSNAliases...),
		CronSecret:         os.Getenv("CRON_SECRET"),
		APIKey:             os.Getenv("API_KEY"),
		UpstreamTimeout:    defaultUpstreamTimeout,
	}

	if raw := os.Getenv("UPSTREAM_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid UPSTREAM_TIMEOUT: %w", err)
		}

		if d < time.Second || d > 5*time.Minute {
			return nil, fmt.Errorf("UPSTREAM_TIMEOUT must be between 1s and 5m, got %v", d)
		}

		cfg.UpstreamTimeout = d
	}

	return cfg, nil
}

// HasGoogleEnvCredentials reports whether the direct env-credential
// refresh flow is configured.
func (c *AppConfig) HasGoogleEnvCredentials() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRefreshToken != ""
}

// ValidateForDefaultConnection checks that the env-credential path is
// usable. A missing client secret cannot be repaired by retrying, so
// this is surfaced immediately at startup.
func (c *AppConfig) ValidateForDefaultConnection() error {
	var missing []string

	if c.GoogleClientID == "" {
		missing = append(missing, strings.Join(googleClientIDAliases, "|"))
	}

	if c.GoogleClientSecret == "" {
		missing = append(missing, strings.Join(googleClientSecretAliases, "|"))
	}

	if c.GoogleRefreshToken == "" {
		missing = append(missing, strings.Join(googleRefreshTokenAliases, "|"))
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	return nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}

	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}
