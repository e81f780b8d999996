package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/supervision-reconciler/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and publish the store catalog",
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Load the catalog and print every store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Catalog.Path
		if len(args) == 1 {
			path = args[0]
		}
		cat, err := initCatalog(cmd.Context(), path)
		if err != nil {
			return err
		}
		formatCatalog(cmd.OutOrStdout(), cat)
		return nil
	},
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync [path]",
	Short: "Upsert the catalog into the run store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := cfg.Catalog.Path
		if len(args) == 1 {
			path = args[0]
		}
		cat, err := initCatalog(ctx, path)
		if err != nil {
			return err
		}

		st, err := requireStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.UpsertStores(ctx, cat.Stores())
		if err != nil {
			return eris.Wrap(err, "catalog sync")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d stores (%d rows affected).\n", cat.Len(), n)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogCheckCmd)
	catalogCmd.AddCommand(catalogSyncCmd)
	rootCmd.AddCommand(catalogCmd)
}

// formatCatalog writes one line per store.
func formatCatalog(out io.Writer, cat *catalog.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKEY\tCLASS\tGROUP\tQUOTA\tACTIVE\tLAT\tLON")
	for _, s := range cat.Stores() {
		quota := "-"
		if s.QuotaOverride != nil {
			quota = s.QuotaOverride.String()
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\t%.5f\t%.5f\n",
			s.ID, s.Key, s.Classification, s.Group, quota, s.Active, s.Location.Lat, s.Location.Lon)
	}
	_, _ = fmt.Fprintf(w, "\n%d stores, %d active\n", cat.Len(), len(cat.Active()))
	_ = w.Flush()
}
