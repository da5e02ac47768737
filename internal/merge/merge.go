// Package merge folds coordinate-bearing tables into a single output table,
// matching rows by proximity and combining them under configurable join
// semantics.
package merge

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/match"
	"github.com/sells-group/geomatch-cli/internal/table"
)

// Mode controls which unmatched rows survive into the final output.
type Mode string

// Join modes.
const (
	// ModeLeft keeps only rows reachable from the first input table.
	ModeLeft Mode = "left"
	// ModeInner keeps only rows that matched at least once.
	ModeInner Mode = "inner"
	// ModeOuter keeps every row from every table.
	ModeOuter Mode = "outer"
)

// ParseMode parses a join mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLeft, ModeInner, ModeOuter:
		return Mode(s), nil
	default:
		return "", eris.Errorf("merge: invalid match mode %q", s)
	}
}

// MatchesFile is the fixed output path for merge results.
const MatchesFile = "matches.csv"

// Accumulator merges tables one at a time into a growing output table.
type Accumulator struct {
	Mode      Mode
	Exclusive bool
	Radius    float64
}

// Merge folds the tables, in order, into one output table. Input tables are
// read-only; the accumulator exclusively owns the output. Under ModeInner
// the returned table already has unmatched rows removed.
func (a *Accumulator) Merge(tables []*table.Table) (*table.Table, error) {
	width := 0
	height := 0
	for _, t := range tables {
		width += len(t.OutputCols)
		height += t.Rows()
	}
	if width == 0 {
		return nil, eris.New("merge: no output columns supplied")
	}
	if a.Mode == ModeLeft {
		width++
	}

	// Over-provisioned for the height: matches collapse rows.
	out := table.New(width, height)
	out.Delimiter = '|'

	headerIndex := 0
	for _, t := range tables {
		for _, name := range t.OutputHeaders() {
			out.Columns[headerIndex].Name = name
			headerIndex++
		}
	}
	if a.Mode == ModeLeft {
		out.Columns[width-1].Name = "distance"
	}
	for i := 0; i < width; i++ {
		out.OutputCols = append(out.OutputCols, i)
	}

	engine := &match.Engine{Radius: a.Radius, Exclusive: a.Exclusive}

	// Tracks, per output row, whether it ever received a match.
	var matched []bool

	// Each table is assumed internally consistent: duplicate coordinates
	// inside one table represent distinct entities, so a table never
	// matches against itself. For every output row accumulated so far we
	// look for the best candidate in the current table, merge it in, and
	// average the coordinates to keep a running centroid. Whatever was not
	// consumed may then be appended as new output rows, depending on mode
	// and exclusivity.
	colIndex := 0
	for tableIndex, t := range tables {
		written := make([]bool, t.Rows())
		cols := len(t.OutputCols)

		for row := 0; row < out.Rows(); row++ {
			candidate, ok := engine.FindBestMatch(out, row, t, written)
			if !ok {
				continue
			}

			values := t.OutputRow(candidate.Index)
			for i, v := range values {
				out.Columns[colIndex+i].Values[row] = v
			}
			if a.Mode == ModeLeft {
				out.Columns[width-1].Values[row] = strconv.FormatFloat(candidate.Distance, 'f', -1, 64)
			}

			out.Lat[row] = (out.Lat[row] + t.Lat[candidate.Index]) * 0.5
			out.Lng[row] = (out.Lng[row] + t.Lng[candidate.Index]) * 0.5

			written[candidate.Index] = true
			matched[row] = true
		}

		// Append leftover rows as new output rows: always for the first
		// table, never for later tables under LEFT. Non-exclusive mode
		// appends every row, since the same record may satisfy multiple
		// output rows and still stand on its own.
		if a.Mode != ModeLeft || tableIndex == 0 {
			for row := 0; row < t.Rows(); row++ {
				if a.Exclusive && written[row] {
					continue
				}
				for col := 0; col < colIndex; col++ {
					out.Columns[col].Values = append(out.Columns[col].Values, "")
				}
				values := t.OutputRow(row)
				for i, v := range values {
					out.Columns[colIndex+i].Values = append(out.Columns[colIndex+i].Values, v)
				}
				for col := colIndex + cols; col < width; col++ {
					out.Columns[col].Values = append(out.Columns[col].Values, "")
				}
				out.Lat = append(out.Lat, t.Lat[row])
				out.Lng = append(out.Lng, t.Lng[row])
				matched = append(matched, false)
			}
		}

		colIndex += cols
	}

	// INNER keeps only rows that matched at least once.
	if a.Mode == ModeInner {
		for row := out.Rows() - 1; row >= 0; row-- {
			if !matched[row] {
				out.RemoveRow(row)
			}
		}
	}

	zap.L().Info("merge complete",
		zap.Int("tables", len(tables)),
		zap.Int("rows", out.Rows()),
		zap.String("mode", string(a.Mode)),
		zap.Bool("exclusive", a.Exclusive),
		zap.Float64("radius", a.Radius),
	)

	return out, nil
}

// WriteMatches writes the merged table to path with a fixed pipe delimiter.
func WriteMatches(out *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "merge: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	w.Comma = '|'

	if err := w.Write(out.OutputHeaders()); err != nil {
		return eris.Wrapf(err, "merge: write header to %s", path)
	}
	for row := 0; row < out.Rows(); row++ {
		if err := w.Write(out.OutputRow(row)); err != nil {
			return eris.Wrapf(err, "merge: write row to %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "merge: flush %s", path)
	}
	return nil
}
