package main

import (
	"context"
	"errors"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/batch"
	"github.com/sells-group/fiber-bom/internal/config"
)

// Process exit codes.
const (
	exitOK        = 0
	exitError     = 1
	exitFatal     = 2 // batch could not start: template, output dir, wiring
	exitCancelled = 130
)

var (
	cfg *config.Config

	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:          "fiber-bom",
	Short:        "Fiber network bill-of-materials generator",
	Long:         "Aggregates design features per service-area boundary from PostGIS and fills one BOM workbook per boundary.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "fiber-bom: load config")
		}
		if flagLogLevel != "" {
			c.Log.Level = flagLogLevel
		}
		if flagLogFormat != "" {
			c.Log.Format = flagLogFormat
		}
		if err := config.InitLogger(c.Log); err != nil {
			return eris.Wrap(err, "fiber-bom: init logger")
		}
		cfg = c
		zap.L().Debug("fiber-bom: config loaded", zap.String("command", cmd.Name()))
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case batch.IsFatal(err):
		return exitFatal
	case errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "override log.format (json, console)")
}

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}
