package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/supervision-reconciler/internal/pipeline"
	"github.com/sells-group/supervision-reconciler/internal/report"
)

var reconcileFlags struct {
	catalog    string
	ops        string
	safety     string
	zenput     bool
	from       string
	to         string
	out        string
	syncStores bool
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve submissions, validate quotas and write the report",
	Long: "Loads the store catalog, reads submissions from export files or the Zenput API, " +
		"resolves each to a store, validates per-period quotas, applies the configured " +
		"redistribution pairs, then writes a JSON or XLSX report and records the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f := reconcileFlags
		catPath := f.catalog
		if catPath == "" {
			catPath = cfg.Catalog.Path
		}
		cat, err := initCatalog(ctx, catPath)
		if err != nil {
			return err
		}

		loc, err := cfg.Reconcile.Location()
		if err != nil {
			return err
		}
		from, to, err := parseRange(f.from, f.to, loc)
		if err != nil {
			return err
		}

		src, err := initSource(cfg.Source, f.ops, f.safety, f.zenput)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
			if f.syncStores {
				n, err := st.UpsertStores(ctx, cat.Stores())
				if err != nil {
					return eris.Wrap(err, "sync stores")
				}
				zap.L().Info("catalog synced to store", zap.Int64("rows", n))
			}
		}

		p, err := pipeline.New(cfg.Reconcile, cat, st)
		if err != nil {
			return err
		}
		res, err := p.Run(ctx, src, from, to)
		if err != nil {
			return err
		}

		if err := writeReport(f.out, res.Report); err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res.Run.ID, res.Report.Summary)
		return nil
	},
}

// writeReport picks the format from the file extension. An empty path or
// "-" writes JSON to stdout.
func writeReport(path string, r *report.Report) error {
	switch {
	case path == "" || path == "-":
		return report.WriteJSON(os.Stdout, r)
	case strings.EqualFold(filepath.Ext(path), ".xlsx"):
		return report.WriteXLSX(path, r)
	default:
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "create %s", path)
		}
		if err := report.WriteJSON(f, r); err != nil {
			f.Close() //nolint:errcheck
			return err
		}
		return eris.Wrapf(f.Close(), "close %s", path)
	}
}

func init() {
	fl := reconcileCmd.Flags()
	fl.StringVar(&reconcileFlags.catalog, "catalog", "", "store catalog file (.yaml or .csv); default from config")
	fl.StringVar(&reconcileFlags.ops, "ops", "", "operational export (.xlsx or .csv)")
	fl.StringVar(&reconcileFlags.safety, "safety", "", "safety export (.xlsx or .csv)")
	fl.BoolVar(&reconcileFlags.zenput, "zenput", false, "read submissions from the Zenput API instead of export files")
	fl.StringVar(&reconcileFlags.from, "from", "", "first submission date, YYYY-MM-DD (API source)")
	fl.StringVar(&reconcileFlags.to, "to", "", "last submission date, YYYY-MM-DD (API source)")
	fl.StringVarP(&reconcileFlags.out, "out", "o", "", "report path (.json or .xlsx); stdout when empty")
	fl.BoolVar(&reconcileFlags.syncStores, "sync-stores", false, "upsert the catalog into the run store before reconciling")
	rootCmd.AddCommand(reconcileCmd)
}
