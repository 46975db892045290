package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/engine"
	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/server"
	"github.com/weftdb/weft/internal/telemetry"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the weft HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := telemetry.Init(ctx, "weft", Version); err != nil {
			logger.Warn("telemetry init failed", "error", err)
		}
		defer telemetry.Shutdown(context.Background())

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		locker, err := newLocker()
		if err != nil {
			return err
		}

		schemas := schema.NewRegistry(cfg.SchemasDir, logger)
		specs := ingestspec.NewRegistry(cfg.SpecsDir, logger)
		go func() {
			if err := schemas.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("schema watcher stopped", "error", err)
			}
		}()
		go func() {
			if err := specs.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("spec watcher stopped", "error", err)
			}
		}()

		eng := engine.New(store,
			engine.WithLogger(logger),
			engine.WithMetrics(telemetry.NewImportMetrics()),
		)

		srv := server.New(server.Config{
			Store:   store,
			Schemas: schemas,
			Specs:   specs,
			Locker:  locker,
			Engine:  eng,
			Logger:  logger,
			DataDir: cfg.DataDir,
		})

		addr := listenAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		return srv.Start(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
