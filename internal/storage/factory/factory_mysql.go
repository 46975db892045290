package factory

import (
	"context"
	"fmt"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/mysql"
)

func init() {
	Register("mysql", func(ctx context.Context, cfg Config) (storage.Storage, error) {
		if cfg.DSN == "" {
			return nil, fmt.Errorf("mysql backend: dsn is required")
		}
		return mysql.New(ctx, cfg.DSN)
	})
}
