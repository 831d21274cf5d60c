package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Deployment modes select where canonical files are written
const (
	DeploymentLocal = "local"
	DeploymentGCS   = "gcs"
	DeploymentS3    = "s3"
)

// Config holds all process configuration for the indicator service
type Config struct {
	// Server configuration
	Port        string   `env:"PORT,default=8981"`
	CORSOrigins []string `env:"CORS_ORIGINS,default=*"`

	// Storage configuration
	DeploymentMode string `env:"DEPLOYMENT_MODE,default=local"`
	LocalDataDir   string `env:"LOCAL_DATA_DIR,default=./data"`
	GCPProjectID   string `env:"GCP_PROJECT_ID"`
	GCSBucket      string `env:"GCS_BUCKET"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"AWS_REGION,default=eu-central-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`

	// Reference data and domain selection
	ClassificationPath string `env:"CLASSIFICATION_PATH,default=./configs/country_classification.csv"`
	DomainConfigPath   string `env:"DOMAIN_CONFIG,default=./configs/domains/trade.yaml"`

	// Offline mode serves provider responses from fixtures
	MockupMode  bool   `env:"MOCKUP_MODE,default=false"`
	MockDataDir string `env:"MOCK_DATA_DIR,default=./testdata/mock"`

	// Data source URLs
	WorldBankURL string `env:"WORLDBANK_BASE_URL,default=https://api.worldbank.org/v2"`
	ILOURL       string `env:"ILO_BASE_URL,default=https://sdmx.ilo.org/rest"`
	IMFURL       string `env:"IMF_BASE_URL,default=http://dataservices.imf.org/REST/SDMX_JSON.svc"`

	// Provider client behaviour
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT,default=60s"`
	HTTPRetries       int           `env:"HTTP_RETRIES,default=3"`
	RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND,default=4"`
	WorldBankPageSize int           `env:"WORLDBANK_PAGE_SIZE,default=1000"`

	// Optional SQL warehouse (sqlite, postgres, mysql)
	WarehouseDriver string `env:"WAREHOUSE_DRIVER"`
	WarehouseDSN    string `env:"WAREHOUSE_DSN"`

	// Service configuration
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=auto"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom loads configuration from an arbitrary lookuper
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks combinations envconfig cannot express
func (c *Config) Validate() error {
	switch c.DeploymentMode {
	case DeploymentLocal:
	case DeploymentGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when DEPLOYMENT_MODE=%s", DeploymentGCS)
		}
	case DeploymentS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when DEPLOYMENT_MODE=%s", DeploymentS3)
		}
	default:
		return fmt.Errorf("unknown DEPLOYMENT_MODE %q", c.DeploymentMode)
	}

	switch c.WarehouseDriver {
	case "", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown WAREHOUSE_DRIVER %q", c.WarehouseDriver)
	}
	if c.WarehouseDriver != "" && c.WarehouseDSN == "" {
		return fmt.Errorf("WAREHOUSE_DSN is required when WAREHOUSE_DRIVER is set")
	}

	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("REQUESTS_PER_SECOND must be positive, got %v", c.RequestsPerSecond)
	}
	if c.WorldBankPageSize <= 0 {
		return fmt.Errorf("WORLDBANK_PAGE_SIZE must be positive, got %d", c.WorldBankPageSize)
	}
	return nil
}
