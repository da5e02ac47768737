package table

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Load reads a delimited file into a Table. The delimiter (comma or pipe) is
// auto-selected by whichever yields more header fields; header names are
// matched case-insensitively and whitespace-stripped to role bindings. A
// lat or lng header is extracted out of the text column set into the
// coordinate pair, with unparseable cells becoming NaN.
func Load(path string) (*Table, error) {
	delimiter, err := sniffDelimiter(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "table: read header of %s", path)
	}

	t := &Table{
		Path:      path,
		Delimiter: delimiter,
		Columns:   make([]Column, len(header)),
	}
	t.clearRoles()
	for i, name := range header {
		t.Columns[i].Name = name
	}

	// Infer role bindings from header text.
	latCol, lngCol := unbound, unbound
	for i, name := range header {
		switch strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "") {
		case "id":
			t.id = i
		case "addr1", "address", "addr":
			t.addr1 = i
		case "addr2", "address2":
			t.addr2 = i
		case "city":
			t.city = i
		case "state":
			t.state = i
		case "zipcode", "zip", "postalcode":
			t.zipcode = i
		case "lat", "latitude":
			latCol = i
		case "lng", "longitude":
			lngCol = i
		}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "table: read row of %s", path)
		}
		for col := range t.Columns {
			value := ""
			if col < len(record) {
				value = record[col]
			}
			t.Columns[col].Values = append(t.Columns[col].Values, value)
		}
	}

	// Extract coordinate columns out of the text set. Each is extracted
	// independently; matching requires both to be present.
	if latCol != unbound {
		name := t.Columns[latCol].Name
		if err := t.BindLat(name); err != nil {
			return nil, err
		}
	}
	if lngCol != unbound {
		name, err := findHeader(t, lngCol, latCol)
		if err != nil {
			return nil, err
		}
		if err := t.BindLng(name); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// findHeader resolves the lng column name accounting for a prior lat
// extraction shifting indices down.
func findHeader(t *Table, lngCol, latCol int) (string, error) {
	if latCol != unbound && lngCol > latCol {
		lngCol--
	}
	if lngCol < 0 || lngCol >= len(t.Columns) {
		return "", eris.Errorf("table: longitude column out of range")
	}
	return t.Columns[lngCol].Name, nil
}

// sniffDelimiter picks comma or pipe by whichever yields more header fields.
func sniffDelimiter(path string) (rune, error) {
	counts := make(map[rune]int, 2)
	for _, delimiter := range []rune{',', '|'} {
		f, err := os.Open(path)
		if err != nil {
			return 0, eris.Wrapf(err, "table: open %s", path)
		}
		reader := csv.NewReader(f)
		reader.Comma = delimiter
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		header, err := reader.Read()
		_ = f.Close()
		if err != nil {
			return 0, eris.Wrapf(err, "table: sniff delimiter of %s", path)
		}
		counts[delimiter] = len(header)
	}
	if counts['|'] > counts[','] {
		return '|', nil
	}
	return ',', nil
}

// FormatCoord renders a coordinate as decimal text, with NaN rendered as
// the literal "NaN".
func FormatCoord(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return formatFloat(v)
}
