package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/engine"
	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/types"
	"github.com/weftdb/weft/internal/ui"
)

var (
	importSpecName string
	importActor    string
	importSourceID string
)

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Run one ingestion against the workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		wid, err := requireWorkspace()
		if err != nil {
			return err
		}
		if err := types.ValidateWorkspaceID(wid); err != nil {
			return err
		}
		if importSpecName == "" {
			return fmt.Errorf("--spec is required")
		}

		spec, err := ingestspec.LoadByName(cfg.SpecsDir, importSpecName)
		if err != nil {
			return err
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		locker, err := newLocker()
		if err != nil {
			return err
		}
		lease, err := locker.Acquire(ctx, wid)
		if err != nil {
			return err
		}
		defer lease.Release(context.WithoutCancel(ctx))

		eng := engine.New(store, engine.WithLogger(logger))
		res, err := eng.Run(ctx, engine.Options{
			WorkspaceID: wid,
			SpecName:    importSpecName,
			Spec:        spec,
			SourceFile:  args[0],
			Actor:       importActor,
			SourceID:    importSourceID,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(res)
		}

		fmt.Printf("%s %s\n", ui.RenderStatus(string(res.Status)), res.ImportRunID)
		if res.Status == types.RunFailed {
			fmt.Println(ui.RenderFail(res.ErrorMessage))
			return nil
		}
		st := res.Stats
		fmt.Println(ui.KV([][2]string{
			{"Entities", fmt.Sprintf("%d created, %d existing", st.EntitiesCreated, st.EntitiesExisting)},
			{"Assertions", fmt.Sprintf("%d created, %d modified, %d closed, %d unchanged",
				st.AssertionsCreated, st.AssertionsModified, st.AssertionsClosed, st.AssertionsUnchanged)},
			{"Relationships", fmt.Sprintf("%d created", st.RelationshipsCreated)},
		}))
		if len(res.Errors) > 0 {
			fmt.Println(ui.RenderWarn(fmt.Sprintf("%d row errors:", len(res.Errors))))
			for _, re := range res.Errors {
				fmt.Printf("  %s %s: %s\n", ui.IconWarn, re.SourceRef, re.Message)
			}
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSpecName, "spec", "", "ingestion spec name")
	importCmd.Flags().StringVar(&importActor, "actor", "", "actor recorded on the change event")
	importCmd.Flags().StringVar(&importSourceID, "source", "", "registered source id for attribution")
	rootCmd.AddCommand(importCmd)
}
