package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fiber-bom/internal/bom"
)

type entryInfo struct {
	Name  string `json:"name" yaml:"name"`
	Sheet string `json:"sheet" yaml:"sheet"`
	Cell  string `json:"cell" yaml:"cell"`
}

type variantInfo struct {
	Name     string      `json:"name" yaml:"name"`
	Title    string      `json:"title" yaml:"title"`
	Sheet    string      `json:"sheet" yaml:"sheet"`
	Template string      `json:"template" yaml:"template"`
	Layers   []string    `json:"layers" yaml:"layers"`
	Entries  []entryInfo `json:"entries" yaml:"entries"`
}

func describeVariant(v bom.Variant, template string) variantInfo {
	info := variantInfo{Name: v.Name, Title: v.Title, Sheet: v.Sheet, Template: template}
	for _, l := range v.Plan.Layers {
		info.Layers = append(info.Layers, l.Name)
	}
	for _, e := range v.Entries {
		sheet := e.Sheet
		if sheet == "" {
			sheet = v.Sheet
		}
		info.Entries = append(info.Entries, entryInfo{Name: e.Name, Sheet: sheet, Cell: e.Cell})
	}
	return info
}

var (
	variantsName   string
	variantsFormat string
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "List BOM variants and their line items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		vs := bom.Variants()
		if variantsName != "" {
			v, err := bom.Lookup(variantsName)
			if err != nil {
				return err
			}
			vs = []bom.Variant{v}
		}

		infos := make([]variantInfo, 0, len(vs))
		for _, v := range vs {
			tmpl := v.Template
			if p := cfg.Templates.For(v.Name); p != "" {
				tmpl = p
			}
			infos = append(infos, describeVariant(v, tmpl))
		}
		return printVariants(os.Stdout, infos, variantsFormat, variantsName != "")
	},
}

// printVariants writes infos as a table, JSON or YAML. detail lists every
// line item of each variant in table form.
func printVariants(out io.Writer, infos []variantInfo, format string, detail bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close() //nolint:errcheck
		return enc.Encode(infos)
	case "", "table":
	default:
		return eris.Errorf("unknown format %q (table, json, yaml)", format)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if !detail {
		_, _ = fmt.Fprintln(w, "NAME\tSHEET\tITEMS\tTEMPLATE")
		for _, v := range infos {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.Name, v.Sheet, len(v.Entries), v.Template)
		}
		return w.Flush()
	}
	for _, v := range infos {
		_, _ = fmt.Fprintf(w, "%s (%s)\ttemplate %s\n", v.Name, v.Title, v.Template)
		_, _ = fmt.Fprintln(w, "ITEM\tSHEET\tCELL")
		for _, e := range v.Entries {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Sheet, e.Cell)
		}
	}
	return w.Flush()
}

func init() {
	variantsCmd.Flags().StringVar(&variantsName, "variant", "", "show the line items of one variant")
	variantsCmd.Flags().StringVar(&variantsFormat, "format", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(variantsCmd)
}
