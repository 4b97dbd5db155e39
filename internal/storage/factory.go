package storage

import (
	"context"
	"fmt"

	"github.com/dgellow/depo-front/internal/config"
)

// New creates the configured user directory
func New(ctx context.Context, cfg config.StorageConfig) (UserStore, error) {
	switch cfg.Kind {
	case config.StorageKindMemory, "":
		return NewMemoryStorage(), nil
	case config.StorageKindFirestore:
		return NewFirestoreStorage(ctx, cfg.GCPProject, cfg.Database, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown storage kind: %s", cfg.Kind)
	}
}
