package factory

import (
	"context"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/memory"
)

func init() {
	Register("memory", func(ctx context.Context, cfg Config) (storage.Storage, error) {
		return memory.New(), nil
	})
}
