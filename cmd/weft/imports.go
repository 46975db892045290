package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/types"
	"github.com/weftdb/weft/internal/ui"
)

var importsLimit int

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "Inspect import runs",
}

var importsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List import runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wid, err := requireWorkspace()
		if err != nil {
			return err
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListImportRuns(ctx, wid, importsLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(runs)
		}

		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				run.ImportRunID,
				ui.RenderStatus(string(run.Status)),
				run.SpecName,
				run.StartedAt.Format(time.RFC3339),
				ui.Truncate(run.SourceFile, 40),
			})
		}
		fmt.Print(ui.Table([]string{"ID", "STATUS", "SPEC", "STARTED", "FILE"}, rows))
		return nil
	},
}

var importsShowCmd = &cobra.Command{
	Use:   "show <import-run-id>",
	Short: "Show one import run with its stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wid, err := requireWorkspace()
		if err != nil {
			return err
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.GetImportRun(ctx, wid, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(run)
		}

		pairs := [][2]string{
			{"Run", run.ImportRunID},
			{"Status", ui.RenderStatus(string(run.Status))},
			{"Spec", run.SpecName},
			{"File", run.SourceFile},
			{"Started", run.StartedAt.Format(time.RFC3339)},
		}
		if run.CompletedAt != nil {
			pairs = append(pairs, [2]string{"Completed", run.CompletedAt.Format(time.RFC3339)})
		}
		if run.ErrorMessage != "" {
			pairs = append(pairs, [2]string{"Error", ui.RenderFail(run.ErrorMessage)})
		}
		fmt.Print(ui.KV(pairs))

		if run.Stats != "" {
			var st types.ImportStats
			if err := json.Unmarshal([]byte(run.Stats), &st); err == nil {
				fmt.Println()
				fmt.Println(ui.RenderCategory("stats"))
				fmt.Print(ui.KV([][2]string{
					{"Created", fmt.Sprintf("%d", st.AssertionsCreated)},
					{"Modified", fmt.Sprintf("%d", st.AssertionsModified)},
					{"Closed", fmt.Sprintf("%d", st.AssertionsClosed)},
					{"Unchanged", fmt.Sprintf("%d", st.AssertionsUnchanged)},
					{"Row errors", fmt.Sprintf("%d", st.Errors)},
				}))
			}
		}
		return nil
	},
}

var importsDiffCmd = &cobra.Command{
	Use:   "diff <import-run-id>",
	Short: "Show what an import run changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wid, err := requireWorkspace()
		if err != nil {
			return err
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.GetImportRun(ctx, wid, args[0]); err != nil {
			return err
		}

		ce, err := store.GetChangeEventByImportRun(ctx, args[0])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Println(ui.RenderMuted("no changes recorded for this run"))
				return nil
			}
			return err
		}

		created, closed, err := store.ListChangeEventAssertions(ctx, wid, ce.ChangeEventID)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(map[string]any{
				"change_event":       ce,
				"created_assertions": created,
				"closed_assertions":  closed,
			})
		}

		fmt.Println(ce.Description)
		printAssertionGroup(ctx, store, wid, "created", created)
		printAssertionGroup(ctx, store, wid, "closed", closed)
		return nil
	},
}

func printAssertionGroup(ctx context.Context, store storage.Storage, wid, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(ui.RenderCategory(label))
	for _, id := range ids {
		a, err := store.GetAssertion(ctx, wid, id)
		if err != nil {
			fmt.Printf("  %s %s\n", ui.IconWarn, id)
			continue
		}
		fmt.Printf("  %s\n", a.AssertionKey)
	}
}

func init() {
	importsListCmd.Flags().IntVar(&importsLimit, "limit", 50, "max runs to list")
	importsCmd.AddCommand(importsListCmd, importsShowCmd, importsDiffCmd)
	rootCmd.AddCommand(importsCmd)
}
