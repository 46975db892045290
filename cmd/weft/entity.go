package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftdb/weft/internal/resolve"
	"github.com/weftdb/weft/internal/storage"
	"github.com/weftdb/weft/internal/timeparsing"
	"github.com/weftdb/weft/internal/types"
	"github.com/weftdb/weft/internal/ui"
)

var (
	entityViewMode string
	entityScenario string
	entityAt       string
	entityType     string
	entityLimit    int
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Inspect entities and their claims",
}

var entityShowCmd = &cobra.Command{
	Use:   "show <entity-id>",
	Short: "Show an entity through conflict resolution",
	Long: `Shows the entity's properties and relationships. The default
view projects one winner per claim; --view all_claims lists every
competing claim with the winner marked. --at accepts RFC 3339, a
date, a compact offset (-1d), or natural language ("last friday").`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wid, err := requireWorkspace()
		if err != nil {
			return err
		}

		viewMode := types.ViewMode(entityViewMode)
		if !viewMode.IsValid() {
			return fmt.Errorf("--view %q is invalid (valid values: resolved, all_claims)", entityViewMode)
		}

		var at *time.Time
		if entityAt != "" {
			ts, err := timeparsing.Parse(entityAt, time.Now().UTC())
			if err != nil {
				return err
			}
			at = &ts
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entity, err := store.GetEntity(ctx, wid, args[0])
		if err != nil {
			return err
		}
		assertions, err := store.GetAssertionsForEntity(ctx, wid, args[0])
		if err != nil {
			return err
		}
		authority, err := store.GetSourceAuthorityMap(ctx, wid)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s (%s)\n", ui.RenderAccent(entity.EntityType), entity.PrimaryKey, entity.EntityID)
		if at != nil {
			fmt.Println(ui.RenderMuted("as of " + at.Format(time.RFC3339)))
		}

		if viewMode == types.ViewAllClaims {
			return printAllClaims(cmd, store, assertions, entityScenario, at, authority)
		}
		return printResolved(cmd, store, assertions, entityScenario, at, authority)
	},
}

func printResolved(cmd *cobra.Command, store storage.Storage,
	assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) error {

	ctx := cmd.Context()
	winners := resolve.ResolveEntityView(assertions, scenario, at, authority)

	var props, rels [][2]string
	for _, a := range winners {
		if a.IsProperty() {
			value := ui.RenderMuted("(no value)")
			if targetID, err := store.GetAssertedTarget(ctx, a.WorkspaceID, a.AssertionID); err == nil {
				if pv, err := store.GetPropertyValue(ctx, a.WorkspaceID, targetID); err == nil && pv.Value != nil {
					value = *pv.Value
				}
			}
			props = append(props, [2]string{a.PropertyKey, value})
			continue
		}

		target := "?"
		if targetID, err := store.GetAssertedTarget(ctx, a.WorkspaceID, a.AssertionID); err == nil {
			if ent, err := store.GetEntity(ctx, a.WorkspaceID, targetID); err == nil {
				target = fmt.Sprintf("%s %s", ent.EntityType, ent.PrimaryKey)
			}
		}
		rels = append(rels, [2]string{a.RelationshipType, target})
	}

	if jsonOutput {
		return outputJSON(map[string]any{"properties": props, "relationships": rels})
	}
	if len(props) > 0 {
		fmt.Println(ui.RenderCategory("properties"))
		fmt.Print(ui.KV(props))
	}
	if len(rels) > 0 {
		fmt.Println(ui.RenderCategory("relationships"))
		fmt.Print(ui.KV(rels))
	}
	return nil
}

func printAllClaims(cmd *cobra.Command, store storage.Storage,
	assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) error {

	claims := resolve.AllClaims(assertions, scenario, at, authority)
	if jsonOutput {
		return outputJSON(claims)
	}

	lastKey := ""
	for _, c := range claims {
		a := c.Assertion
		if a.AssertionKey != lastKey {
			fmt.Println(ui.RenderCategory(a.AssertionKey))
			lastKey = a.AssertionKey
		}
		marker := ui.MutedStyle.Render(ui.IconSkip)
		if c.IsWinner {
			marker = ui.RenderPass(ui.IconPass)
		}
		value := ""
		if a.IsProperty() {
			if targetID, err := store.GetAssertedTarget(cmd.Context(), a.WorkspaceID, a.AssertionID); err == nil {
				if pv, err := store.GetPropertyValue(cmd.Context(), a.WorkspaceID, targetID); err == nil && pv.Value != nil {
					value = *pv.Value
				}
			}
		}
		closed := ""
		if a.ValidTo != nil {
			closed = ui.RenderMuted(" closed " + a.ValidTo.Format(time.RFC3339))
		}
		fmt.Printf("  %s %-12s recorded %s%s\n", marker, value,
			a.RecordedAt.Format(time.RFC3339), closed)
	}
	return nil
}

var entitySearchCmd = &cobra.Command{
	Use:   "search [primary-key-prefix]",
	Short: "Search entities by type and primary key prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		wid, err := requireWorkspace()
		if err != nil {
			return err
		}

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		entities, err := store.SearchEntities(ctx, wid, entityType, prefix, entityLimit)
		if err != nil {
			return err
		}

		if jsonOutput {
			return outputJSON(entities)
		}
		rows := make([][]string, 0, len(entities))
		for _, e := range entities {
			rows = append(rows, []string{e.EntityID, e.EntityType, e.PrimaryKey, e.DisplayName})
		}
		fmt.Print(ui.Table([]string{"ID", "TYPE", "KEY", "NAME"}, rows))
		return nil
	},
}

func init() {
	entityShowCmd.Flags().StringVar(&entityViewMode, "view", "resolved", "resolved or all_claims")
	entityShowCmd.Flags().StringVar(&entityScenario, "scenario", types.DefaultScenario, "scenario overlay")
	entityShowCmd.Flags().StringVar(&entityAt, "at", "", "point in valid time")
	entitySearchCmd.Flags().StringVar(&entityType, "type", "", "entity type filter")
	entitySearchCmd.Flags().IntVar(&entityLimit, "limit", 50, "max results")
	entityCmd.AddCommand(entityShowCmd, entitySearchCmd)
	rootCmd.AddCommand(entityCmd)
}
