package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/types"
	"github.com/weftdb/weft/internal/ui"
)

var (
	sourceRank    int
	sourceType    string
	sourceDomains []string
	sourceDesc    string
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage registered sources and their authority ranks",
}

var sourcesSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Register or update a source (lower rank wins conflicts)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wid, err := requireWorkspace()
		if err != nil {
			return err
		}

		st := types.SourceType(sourceType)
		if !st.IsValid() {
			return fmt.Errorf("--type %q is invalid", sourceType)
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		src := &types.Source{
			WorkspaceID:      wid,
			SourceName:       args[0],
			SourceType:       st,
			AuthorityRank:    sourceRank,
			AuthorityDomains: sourceDomains,
			Description:      sourceDesc,
		}
		id, err := store.UpsertSource(ctx, src)
		if err != nil {
			return err
		}
		src.SourceID = id

		if jsonOutput {
			return outputJSON(src)
		}
		fmt.Printf("%s %s (rank %d, id %s)\n", ui.RenderPass(ui.IconPass), args[0], sourceRank, id)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sources by authority rank",
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

		sources, err := store.ListSources(ctx, wid)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(sources)
		}
		rows := make([][]string, 0, len(sources))
		for _, s := range sources {
			rows = append(rows, []string{
				strconv.Itoa(s.AuthorityRank),
				s.SourceName,
				string(s.SourceType),
				s.SourceID,
				ui.Truncate(s.Description, 40),
			})
		}
		fmt.Print(ui.Table([]string{"RANK", "NAME", "TYPE", "ID", "DESCRIPTION"}, rows))
		return nil
	},
}

func init() {
	sourcesSetCmd.Flags().IntVar(&sourceRank, "rank", types.UnknownAuthorityRank, "authority rank, lower is more authoritative")
	sourcesSetCmd.Flags().StringVar(&sourceType, "type", string(types.SourceExcel), "source type")
	sourcesSetCmd.Flags().StringSliceVar(&sourceDomains, "domains", nil, "property keys this source is authoritative for")
	sourcesSetCmd.Flags().StringVar(&sourceDesc, "description", "", "free-form description")
	sourcesCmd.AddCommand(sourcesSetCmd, sourcesListCmd)
	rootCmd.AddCommand(sourcesCmd)
}
