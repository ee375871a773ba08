package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/batch"
	"github.com/sells-group/fiber-bom/internal/bom"
)

var (
	genVariant        string
	genBoundaries     string
	genBoundariesFile string
	genSheet          string
	genColumn         string
	genOut            string
	genTemplate       string
	genSummary        bool
	genStrict         bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one BOM workbook per boundary",
	Long: "Fetches the design features of each boundary, aggregates them with the variant's line-item table " +
		"and writes {boundary}_BOM_{YYYYMMDD}.xlsx into the output directory. A failing boundary is reported and skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		v, err := bom.Lookup(genVariant)
		if err != nil {
			return err
		}
		boundaries, err := collectBoundaries(genBoundaries, genBoundariesFile, batch.ListOptions{Sheet: genSheet, Column: genColumn})
		if err != nil {
			return err
		}

		if genOut != "" {
			cfg.Output.Dir = genOut
		}
		env, err := initBOM(ctx, "generate")
		if err != nil {
			return err
		}
		defer env.Close()
		if genTemplate != "" {
			env.Driver.Templates[v.Name] = genTemplate
		}

		sum, runErr := env.Driver.Run(ctx, v, boundaries)
		if sum == nil {
			return runErr
		}
		sum.Print(os.Stdout)

		if genSummary || cfg.Output.Summary {
			path, err := sum.WriteYAML(env.Driver.OutputDir)
			if err != nil {
				zap.L().Warn("write batch summary", zap.Error(err))
			} else {
				fmt.Fprintf(os.Stdout, "summary: %s\n", path)
			}
		}

		if runErr != nil {
			return runErr
		}
		if genStrict && sum.Failed > 0 {
			return eris.Errorf("%d of %d boundaries failed", sum.Failed, len(sum.Results))
		}
		return nil
	},
}

// collectBoundaries merges the --boundaries list with the ids read from
// --boundaries-file, keeping first-seen order.
func collectBoundaries(list, file string, opts batch.ListOptions) ([]string, error) {
	ids := batch.ParseBoundaries(list)
	if file != "" {
		fromFile, err := batch.ReadBoundaryFile(file, opts)
		if err != nil {
			return nil, err
		}
		ids = append(ids, fromFile...)
	}
	ids = batch.NormalizeBoundaries(ids)
	if len(ids) == 0 {
		return nil, eris.New("no boundaries given: use --boundaries or --boundaries-file")
	}
	return ids, nil
}

func init() {
	generateCmd.Flags().StringVar(&genVariant, "variant", "", "BOM variant (clarity, fortcollins, rdof)")
	generateCmd.Flags().StringVar(&genBoundaries, "boundaries", "", "comma-separated boundary ids")
	generateCmd.Flags().StringVar(&genBoundariesFile, "boundaries-file", "", "read boundary ids from an .xlsx, .csv or text file")
	generateCmd.Flags().StringVar(&genSheet, "sheet", "", "sheet of --boundaries-file to read (default first)")
	generateCmd.Flags().StringVar(&genColumn, "column", "", "header of the boundary id column in --boundaries-file")
	generateCmd.Flags().StringVar(&genOut, "out", "", "output directory (default from config)")
	generateCmd.Flags().StringVar(&genTemplate, "template", "", "template workbook (default from config)")
	generateCmd.Flags().BoolVar(&genSummary, "summary", false, "write a batch_{timestamp}.yaml summary next to the workbooks")
	generateCmd.Flags().BoolVar(&genStrict, "strict", false, "exit non-zero when any boundary fails")
	_ = generateCmd.MarkFlagRequired("variant")
	rootCmd.AddCommand(generateCmd)
}
