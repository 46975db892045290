package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/types"
	"github.com/weftdb/weft/internal/ui"
)

var (
	workspaceSchemaFile string
	workspaceForce      bool
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces and their schemas",
}

var workspaceInitCmd = &cobra.Command{
	Use:   "init <workspace-id>",
	Short: "Register a workspace schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wid := args[0]
		if err := types.ValidateWorkspaceID(wid); err != nil {
			return err
		}
		if workspaceSchemaFile == "" {
			return fmt.Errorf("--schema is required")
		}

		data, err := os.ReadFile(workspaceSchemaFile)
		if err != nil {
			return err
		}
		sch, err := schema.Parse(data)
		if err != nil {
			return err
		}
		if sch.Workspace != wid {
			return fmt.Errorf("%w: schema declares workspace %q, not %q",
				types.ErrValidation, sch.Workspace, wid)
		}

		target := filepath.Join(cfg.SchemasDir, wid+".yaml")
		if _, err := os.Stat(target); err == nil && !workspaceForce {
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("A schema for %q already exists. Overwrite?", wid)).
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				return err
			}
			if !confirmed {
				fmt.Println(ui.RenderMuted("aborted"))
				return nil
			}
		}

		if err := os.MkdirAll(cfg.SchemasDir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("%s workspace %s registered (%s)\n", ui.RenderPass(ui.IconPass), wid, target)
		return nil
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces with registered schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := schema.NewRegistry(cfg.SchemasDir, logger)
		workspaces := reg.List()
		if jsonOutput {
			return outputJSON(workspaces)
		}
		if len(workspaces) == 0 {
			fmt.Println(ui.RenderMuted("no workspaces registered"))
			return nil
		}
		for _, wid := range workspaces {
			fmt.Println(wid)
		}
		return nil
	},
}

func init() {
	workspaceInitCmd.Flags().StringVar(&workspaceSchemaFile, "schema", "", "schema YAML file")
	workspaceInitCmd.Flags().BoolVar(&workspaceForce, "force", false, "overwrite without confirmation")
	workspaceCmd.AddCommand(workspaceInitCmd, workspaceListCmd)
	rootCmd.AddCommand(workspaceCmd)
}
