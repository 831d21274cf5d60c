package normalizer

import (
	"context"
	"fmt"

	"macroind/internal/dataset"
	"macroind/internal/logger"
	"macroind/internal/models"
	"macroind/internal/storage"
)

// WriteCanonical encodes obs by the extension of name and overwrites the
// object in client. Nothing is appended to an existing file.
func WriteCanonical(ctx context.Context, obs []models.Observation, client storage.StorageClient, name string) error {
	if client == nil {
		return fmt.Errorf("no storage client for %s", name)
	}
	data, err := dataset.Marshal(name, obs)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := client.StoreFile(ctx, name, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	logger.Component("normalizer").Info("canonical dataset written", logger.Fields{
		"file":  name,
		"rows":  len(obs),
		"bytes": len(data),
	})
	return nil
}
