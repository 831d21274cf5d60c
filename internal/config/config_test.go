package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectError string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "8981", cfg.Port)
				assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
				assert.Equal(t, DeploymentLocal, cfg.DeploymentMode)
				assert.Equal(t, "./data", cfg.LocalDataDir)
				assert.Equal(t, "https://api.worldbank.org/v2", cfg.WorldBankURL)
				assert.Equal(t, "https://sdmx.ilo.org/rest", cfg.ILOURL)
				assert.Equal(t, "http://dataservices.imf.org/REST/SDMX_JSON.svc", cfg.IMFURL)
				assert.Equal(t, 60*time.Second, cfg.HTTPTimeout)
				assert.Equal(t, 3, cfg.HTTPRetries)
				assert.Equal(t, 4.0, cfg.RequestsPerSecond)
				assert.Equal(t, 1000, cfg.WorldBankPageSize)
				assert.False(t, cfg.MockupMode)
				assert.Empty(t, cfg.WarehouseDriver)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, "auto", cfg.LogFormat)
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				"PORT":                "9000",
				"DEPLOYMENT_MODE":     "gcs",
				"GCS_BUCKET":          "indicators",
				"GCP_PROJECT_ID":      "stats-prod",
				"MOCKUP_MODE":         "true",
				"HTTP_TIMEOUT":        "5s",
				"REQUESTS_PER_SECOND": "0.5",
				"WAREHOUSE_DRIVER":    "sqlite",
				"WAREHOUSE_DSN":       "file:macro.db",
				"LOG_FORMAT":          "text",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9000", cfg.Port)
				assert.Equal(t, "indicators", cfg.GCSBucket)
				assert.Equal(t, "stats-prod", cfg.GCPProjectID)
				assert.True(t, cfg.MockupMode)
				assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
				assert.Equal(t, 0.5, cfg.RequestsPerSecond)
				assert.Equal(t, "sqlite", cfg.WarehouseDriver)
				assert.Equal(t, "text", cfg.LogFormat)
			},
		},
		{
			name:        "gcs without bucket",
			envVars:     map[string]string{"DEPLOYMENT_MODE": "gcs"},
			expectError: "GCS_BUCKET",
		},
		{
			name:        "s3 without bucket",
			envVars:     map[string]string{"DEPLOYMENT_MODE": "s3"},
			expectError: "S3_BUCKET",
		},
		{
			name:        "unknown deployment mode",
			envVars:     map[string]string{"DEPLOYMENT_MODE": "ftp"},
			expectError: "DEPLOYMENT_MODE",
		},
		{
			name:        "warehouse without dsn",
			envVars:     map[string]string{"WAREHOUSE_DRIVER": "postgres"},
			expectError: "WAREHOUSE_DSN",
		},
		{
			name:        "unknown warehouse driver",
			envVars:     map[string]string{"WAREHOUSE_DRIVER": "oracle", "WAREHOUSE_DSN": "x"},
			expectError: "WAREHOUSE_DRIVER",
		},
		{
			name:        "non-positive rate",
			envVars:     map[string]string{"REQUESTS_PER_SECOND": "0"},
			expectError: "REQUESTS_PER_SECOND",
		},
		{
			name:        "malformed duration",
			envVars:     map[string]string{"HTTP_TIMEOUT": "soon"},
			expectError: "failed to process config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(tt.envVars))
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("PORT", "7001")
	t.Setenv("LOCAL_DATA_DIR", "/srv/data")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "7001", cfg.Port)
	assert.Equal(t, "/srv/data", cfg.LocalDataDir)
}
