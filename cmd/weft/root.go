package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/config"
	"github.com/weftdb/weft/internal/lock"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/storage/factory"
)

var (
	cfgFile       string
	jsonOutput    bool
	workspaceFlag string
	verboseFlag   bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Bitemporal, source-attributed knowledge graph over spreadsheet data",
	Long: `weft ingests spreadsheets into an assertion graph where every claim
keeps its source, its recording time, and its validity interval.
Competing claims are resolved by source authority at read time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default weft.yaml in cwd)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", "", "workspace id")
}

// openStore builds the configured backend. Callers own Close.
func openStore(ctx context.Context) (storage.Storage, error) {
	return factory.New(ctx, factory.Config{
		Backend: cfg.StoreBackend,
		Path:    cfg.StorePath,
		DSN:     cfg.StoreDSN,
	})
}

func newLocker() (lock.Locker, error) {
	return lock.New(cfg.RedisAddr, cfg.RedisDB, cfg.LockTTL, cfg.LockWait)
}

// requireWorkspace returns the --workspace value or fails the command.
func requireWorkspace() (string, error) {
	if workspaceFlag == "" {
		return "", fmt.Errorf("--workspace is required")
	}
	return workspaceFlag, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
