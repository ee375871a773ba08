package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fiber-bom/internal/fetcher"
)

var (
	fetchURL    string
	fetchDest   string
	fetchPrefix string
	fetchDate   string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and unpack the daily design export",
	Long: "Downloads the design export over HTTP(S) or FTP and extracts it. A URL ending in / names a " +
		"directory; the archive {prefix}_{YYYYMMDD}.zip for --date (default today) is appended.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if fetchURL != "" {
			cfg.Fetch.URL = fetchURL
		}
		if fetchDest != "" {
			cfg.Fetch.DestDir = fetchDest
		}
		if fetchPrefix != "" {
			cfg.Fetch.ArchivePrefix = fetchPrefix
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}
		if cfg.Fetch.URL == "" {
			return eris.New("no export url: use --url or fetch.url")
		}

		date := time.Now()
		if fetchDate != "" {
			d, err := time.Parse("2006-01-02", fetchDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", fetchDate)
			}
			date = d
		}
		rawURL := fetcher.ResolveURL(cfg.Fetch.URL, cfg.Fetch.ArchivePrefix, date)

		f, err := fetcher.ForURL(rawURL, fetcher.Options{
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
			RatePerSec: float64(cfg.Fetch.RatePerSec),
			Region:     cfg.Fetch.Region,
		})
		if err != nil {
			return err
		}
		exp, err := fetcher.FetchExport(ctx, f, rawURL, cfg.Fetch.DestDir)
		if err != nil {
			return err
		}
		printExport(os.Stdout, exp)
		return nil
	},
}

func printExport(out io.Writer, exp *fetcher.Export) {
	_, _ = fmt.Fprintf(out, "archive: %s\n", exp.Archive)
	_, _ = fmt.Fprintf(out, "extracted %d files to %s\n", len(exp.Files), exp.Dir)
	for _, name := range fetcher.LayerNames(exp.Shapefiles) {
		_, _ = fmt.Fprintf(out, "  layer %s\n", name)
	}
}

func init() {
	fetchCmd.Flags().StringVar(&fetchURL, "url", "", "http(s) or ftp url of the export archive or its directory")
	fetchCmd.Flags().StringVar(&fetchDest, "dest", "", "download directory (default from config)")
	fetchCmd.Flags().StringVar(&fetchPrefix, "prefix", "", "archive name prefix (default from config)")
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "export date as YYYY-MM-DD (default today)")
	rootCmd.AddCommand(fetchCmd)
}
