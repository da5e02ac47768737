package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/merge"
	"github.com/sells-group/geomatch-cli/internal/table"
)

var (
	matchOutputs   []string
	matchCompares  []string
	matchPrefixes  []string
	matchMode      string
	matchRadius    float64
	matchExclusive bool
	matchOut       string
)

var matchCmd = &cobra.Command{
	Use:   "match <file> [file...]",
	Short: "Merge coordinate-bearing files non-interactively",
	Long: `Merges the given files (each must carry lat/lng columns, e.g. the
*_coords.csv output of fetch) into a single pipe-delimited output file.

Per-file settings take the form index:value, where index is the zero-based
position of the file argument.

Examples:
  geomatch match --output 0:name --output 1:name a_coords.csv b_coords.csv
  geomatch match --mode outer --radius 0.5 --output 0:id --output 1:id a.csv b.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables := make([]*table.Table, 0, len(args))
		for _, path := range args {
			t, err := table.Load(path)
			if err != nil {
				return eris.Wrapf(err, "match: load %s", path)
			}
			if !t.ReadyToMatch() {
				return eris.Errorf("match: %s has no lat/lng columns", path)
			}
			tables = append(tables, t)
		}

		for _, spec := range matchOutputs {
			t, value, err := perFileArg(tables, spec)
			if err != nil {
				return err
			}
			if err := t.AddOutputColumn(value); err != nil {
				return err
			}
		}
		for _, spec := range matchCompares {
			t, value, err := perFileArg(tables, spec)
			if err != nil {
				return err
			}
			if err := t.AddCompareColumn(value); err != nil {
				return err
			}
		}
		for _, spec := range matchPrefixes {
			t, value, err := perFileArg(tables, spec)
			if err != nil {
				return err
			}
			t.SetPrefix(value)
		}

		mode, err := merge.ParseMode(matchMode)
		if err != nil {
			return err
		}
		if matchRadius <= 0 {
			return eris.New("match: radius must be positive")
		}

		acc := &merge.Accumulator{Mode: mode, Exclusive: matchExclusive, Radius: matchRadius}
		out, err := acc.Merge(tables)
		if err != nil {
			return err
		}
		if err := merge.WriteMatches(out, matchOut); err != nil {
			return err
		}
		zap.L().Info("wrote matches", zap.String("path", matchOut), zap.Int("rows", out.Rows()))
		return nil
	},
}

// perFileArg parses an index:value flag and resolves the table it targets.
func perFileArg(tables []*table.Table, spec string) (*table.Table, string, error) {
	indexStr, value, found := strings.Cut(spec, ":")
	if !found {
		return nil, "", eris.Errorf("match: expected index:value, got %q", spec)
	}
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		return nil, "", eris.Wrapf(err, "match: parse file index in %q", spec)
	}
	if index < 0 || index >= len(tables) {
		return nil, "", eris.Errorf("match: file index %d out of bounds", index)
	}
	return tables[index], value, nil
}

func init() {
	matchCmd.Flags().StringArrayVar(&matchOutputs, "output", nil, "output column as index:name (repeatable)")
	matchCmd.Flags().StringArrayVar(&matchCompares, "compare", nil, "compare column as index:name (repeatable)")
	matchCmd.Flags().StringArrayVar(&matchPrefixes, "prefix", nil, "column prefix as index:value (repeatable)")
	matchCmd.Flags().StringVar(&matchMode, "mode", "left", "join mode: left, inner, or outer")
	matchCmd.Flags().Float64Var(&matchRadius, "radius", 0.25, "max match radius in miles")
	matchCmd.Flags().BoolVar(&matchExclusive, "exclusive", true, "consume each candidate row at most once")
	matchCmd.Flags().StringVar(&matchOut, "out", merge.MatchesFile, "output file path")
	rootCmd.AddCommand(matchCmd)
}
