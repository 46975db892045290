package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/ui"
)

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "Inspect ingestion specs",
}

var specsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loadable ingestion specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := ingestspec.List(cfg.SpecsDir)
		if err != nil {
			return err
		}
		if jsonOutput {
			if names == nil {
				names = []string{}
			}
			return outputJSON(names)
		}
		if len(names) == 0 {
			fmt.Println(ui.RenderMuted("no specs in " + cfg.SpecsDir))
			return nil
		}

		rows := make([][]string, 0, len(names))
		for _, name := range names {
			spec, err := ingestspec.LoadByName(cfg.SpecsDir, name)
			if err != nil {
				rows = append(rows, []string{name, ui.RenderFail("invalid: " + err.Error())})
				continue
			}
			rows = append(rows, []string{name, fmt.Sprintf("%d sheets, workspace %s", len(spec.Sheets), spec.WorkspaceID)})
		}
		fmt.Print(ui.Table([]string{"NAME", "SUMMARY"}, rows))
		return nil
	},
}

func init() {
	specsCmd.AddCommand(specsListCmd)
	rootCmd.AddCommand(specsCmd)
}
