package table

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes every text column plus lat and lng columns to path, using
// the table's field delimiter. Coordinates render as decimal text, NaN as
// the literal "NaN".
func (t *Table) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	w.Comma = t.Delimiter

	header := append(t.Headers(), "lat", "lng")
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "table: write header to %s", path)
	}

	for row := 0; row < t.Rows(); row++ {
		record := make([]string, 0, len(t.Columns)+2)
		for _, col := range t.Columns {
			record = append(record, col.Values[row])
		}
		record = append(record, FormatCoord(t.Lat[row]), FormatCoord(t.Lng[row]))
		if err := w.Write(record); err != nil {
			return eris.Wrapf(err, "table: write row to %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "table: flush %s", path)
	}
	return nil
}
