package storage

import (
	"context"
	"fmt"

	"macroind/internal/config"
)

// NewStorageClient creates a storage client for the configured deployment mode
func NewStorageClient(ctx context.Context, cfg *config.Config) (StorageClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage requires a config")
	}

	switch cfg.DeploymentMode {
	case config.DeploymentLocal, "":
		dataDir := cfg.LocalDataDir
		if dataDir == "" {
			dataDir = "data"
		}

		localClient, err := NewLocalStorageClient(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage client: %w", err)
		}
		return localClient, nil

	case config.DeploymentGCS:
		gcsClient, err := NewGCSClient(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS client: %w", err)
		}
		return gcsClient, nil

	case config.DeploymentS3:
		s3Client, err := NewS3Client(ctx, S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 client: %w", err)
		}
		return s3Client, nil

	default:
		return nil, fmt.Errorf("unsupported deployment mode: %s", cfg.DeploymentMode)
	}
}
