package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/fiber-bom/internal/batch"
	"github.com/sells-group/fiber-bom/internal/loader"
)

var (
	loadDir         string
	loadLayers      string
	loadSRID        int
	loadConcurrency int
	loadMode        string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load design shapefiles into the PostGIS layer schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if loadDir != "" {
			cfg.Load.Dir = loadDir
		}
		if loadSRID != 0 {
			cfg.Load.SRID = loadSRID
		}
		if loadConcurrency != 0 {
			cfg.Load.Concurrency = loadConcurrency
		}
		if err := cfg.Validate("load"); err != nil {
			return err
		}

		pool, err := initSpatialPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		l, err := loader.New(pool, loader.Options{
			Schema:      cfg.Spatial.LayerSchema,
			SRID:        cfg.Load.SRID,
			Concurrency: cfg.Load.Concurrency,
			BatchSize:   cfg.Load.BatchSize,
			Mode:        loader.Mode(loadMode),
			Layers:      batch.ParseBoundaries(loadLayers),
		})
		if err != nil {
			return err
		}
		results, err := l.LoadDir(ctx, cfg.Load.Dir)
		formatLoadResults(os.Stdout, results)
		return err
	},
}

func formatLoadResults(out io.Writer, results []loader.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LAYER\tROWS\tSKIPPED\tDURATION")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", r.Layer, r.Rows, r.Skipped, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
}

func init() {
	loadCmd.Flags().StringVar(&loadDir, "dir", "", "directory searched for .shp files (default from config)")
	loadCmd.Flags().StringVar(&loadLayers, "layers", "", "comma-separated layer names to load (default all)")
	loadCmd.Flags().IntVar(&loadSRID, "srid", 0, "SRID of the shapefiles (default from config)")
	loadCmd.Flags().IntVar(&loadConcurrency, "concurrency", 0, "layers loaded at once (default from config)")
	loadCmd.Flags().StringVar(&loadMode, "mode", string(loader.ModeReplace), "replace recreates each table, upsert merges by id")
	rootCmd.AddCommand(loadCmd)
}
