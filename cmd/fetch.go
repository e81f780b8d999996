package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var fetchFlags struct {
	from string
	to   string
	out  string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download raw submissions from the Zenput API as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		loc, err := cfg.Reconcile.Location()
		if err != nil {
			return err
		}
		from, to, err := parseRange(fetchFlags.from, fetchFlags.to, loc)
		if err != nil {
			return err
		}
		src, err := initSource(cfg.Source, "", "", true)
		if err != nil {
			return err
		}

		batch, err := src.Fetch(ctx, from, to)
		if err != nil {
			return err
		}
		raws := batch.Records
		zap.L().Info("fetch complete", zap.Int("records", len(raws)), zap.Int("failed_forms", len(batch.Failed)))

		w := os.Stdout
		if fetchFlags.out != "" && fetchFlags.out != "-" {
			f, err := os.Create(fetchFlags.out)
			if err != nil {
				return eris.Wrapf(err, "create %s", fetchFlags.out)
			}
			defer f.Close() //nolint:errcheck
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(raws), "encode submissions")
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFlags.from, "from", "", "first submission date, YYYY-MM-DD")
	fetchCmd.Flags().StringVar(&fetchFlags.to, "to", "", "last submission date, YYYY-MM-DD")
	fetchCmd.Flags().StringVarP(&fetchFlags.out, "out", "o", "", "output path; stdout when empty")
	rootCmd.AddCommand(fetchCmd)
}
