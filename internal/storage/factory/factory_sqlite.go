package factory

import (
	"context"
	"fmt"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/sqlite"
)

func init() {
	Register("sqlite", func(ctx context.Context, cfg Config) (storage.Storage, error) {
		path := cfg.Path
		if path == "" {
			return nil, fmt.Errorf("sqlite backend: path is required")
		}
		return sqlite.New(ctx, path)
	})
}
