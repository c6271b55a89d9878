package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Setting keys.
const (
	KeyAthletes    = "athletes"
	KeyMaxMode     = "max_mode"
	KeyCredentials = "riderdb_credentials"
	KeyRosters     = "rosters"
)

// Settings stores small JSON values next to the athlete blob.
type Settings struct {
	blobs BlobStore
}

// NewSettings returns a Settings view over blobs.
func NewSettings(blobs BlobStore) *Settings {
	return &Settings{blobs: blobs}
}

// Load decodes key into dst. It reports false when the key is absent.
func (s *Settings) Load(ctx context.Context, key string, dst any) (bool, error) {
	b, err := s.blobs.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("setting %s: %w", key, err)
	}
	return true, nil
}

// Save encodes v under key.
func (s *Settings) Save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return s.blobs.Set(ctx, key, b)
}
