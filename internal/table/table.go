// Package table implements the in-memory columnar relation that fetch and
// merge operate on: named text columns, an optional lat/lng coordinate pair,
// and role bindings used to build fetchable address strings.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// unbound marks an absent role binding.
const unbound = -1

// Column is a single named text column.
type Column struct {
	Name   string
	Values []string
}

// Table is an in-memory columnar relation. Coordinates are stored separately
// from text columns because they carry numeric semantics and may be absent
// until geocoding runs. A NaN coordinate means "unresolved": the row never
// matches but is retained in output.
type Table struct {
	Path      string
	Delimiter rune
	Prefix    string

	Columns []Column
	Lat     []float64
	Lng     []float64

	// Role bindings, unbound until inferred from headers or set explicitly.
	id, addr1, addr2, city, state, zipcode int

	OutputCols  []int
	CompareCols []int
}

// New creates an empty table with pre-sized storage for width text columns
// and rows rows. Coordinate slices are allocated so the table is match-ready
// once rows are appended.
func New(width, rows int) *Table {
	t := &Table{
		Delimiter: ',',
		Columns:   make([]Column, width),
		Lat:       make([]float64, 0, rows),
		Lng:       make([]float64, 0, rows),
	}
	for i := range t.Columns {
		t.Columns[i].Values = make([]string, 0, rows)
	}
	t.clearRoles()
	return t
}

func (t *Table) clearRoles() {
	t.id = unbound
	t.addr1 = unbound
	t.addr2 = unbound
	t.city = unbound
	t.state = unbound
	t.zipcode = unbound
}

// Rows returns the row count.
func (t *Table) Rows() int {
	if len(t.Columns) > 0 {
		return len(t.Columns[0].Values)
	}
	return len(t.Lat)
}

// Headers returns the text column names in order.
func (t *Table) Headers() []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.Name
	}
	return headers
}

// colIndex resolves a column name to its index.
func (t *Table) colIndex(name string) (int, error) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, eris.Errorf("table: no column named %q", name)
}

// Role identifies a special column binding.
type Role string

// Roles bindable through BindRole.
const (
	RoleID      Role = "id"
	RoleAddr1   Role = "addr1"
	RoleAddr2   Role = "addr2"
	RoleCity    Role = "city"
	RoleState   Role = "state"
	RoleZipcode Role = "zipcode"
)

// BindRole binds a role to the named column. Unknown columns and unknown
// roles are configuration errors and leave the table unchanged.
func (t *Table) BindRole(role Role, name string) error {
	index, err := t.colIndex(name)
	if err != nil {
		return err
	}
	switch role {
	case RoleID:
		t.id = index
	case RoleAddr1:
		t.addr1 = index
	case RoleAddr2:
		t.addr2 = index
	case RoleCity:
		t.city = index
	case RoleState:
		t.state = index
	case RoleZipcode:
		t.zipcode = index
	default:
		return eris.Errorf("table: unknown role %q", role)
	}
	return nil
}

// BindLat extracts the named text column into the latitude slice.
// Cells that fail to parse become NaN (unresolved).
func (t *Table) BindLat(name string) error {
	values, err := t.extractColumn(name)
	if err != nil {
		return err
	}
	t.Lat = parseFloats(values)
	return nil
}

// BindLng extracts the named text column into the longitude slice.
func (t *Table) BindLng(name string) error {
	values, err := t.extractColumn(name)
	if err != nil {
		return err
	}
	t.Lng = parseFloats(values)
	return nil
}

// extractColumn removes a text column by name and returns its values.
// Role bindings pointing past the removed column shift down with it.
func (t *Table) extractColumn(name string) ([]string, error) {
	index, err := t.colIndex(name)
	if err != nil {
		return nil, err
	}
	values := t.Columns[index].Values
	t.Columns = append(t.Columns[:index], t.Columns[index+1:]...)

	for _, role := range []*int{&t.id, &t.addr1, &t.addr2, &t.city, &t.state, &t.zipcode} {
		if *role == index {
			*role = unbound
		} else if *role > index {
			*role--
		}
	}
	t.OutputCols = shiftPast(t.OutputCols, index)
	t.CompareCols = shiftPast(t.CompareCols, index)
	return values, nil
}

// shiftPast drops entries referencing the removed column index and shifts
// later entries down to follow their columns.
func shiftPast(cols []int, index int) []int {
	out := cols[:0]
	for _, c := range cols {
		switch {
		case c == index:
			continue
		case c > index:
			out = append(out, c-1)
		default:
			out = append(out, c)
		}
	}
	return out
}

func parseFloats(values []string) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			f = math.NaN()
		}
		out[i] = f
	}
	return out
}

// AddOutputColumn selects a column for emission in merge output.
func (t *Table) AddOutputColumn(name string) error {
	index, err := t.colIndex(name)
	if err != nil {
		return err
	}
	t.OutputCols = append(t.OutputCols, index)
	return nil
}

// AddCompareColumn selects a column for fuzzy tie-breaking among exact
// coordinate duplicates.
func (t *Table) AddCompareColumn(name string) error {
	index, err := t.colIndex(name)
	if err != nil {
		return err
	}
	t.CompareCols = append(t.CompareCols, index)
	return nil
}

// SetPrefix sets the per-table prefix applied to output header names.
func (t *Table) SetPrefix(prefix string) {
	t.Prefix = prefix
}

// AddColumn appends a new text column. The value slice must match the row
// count of the existing columns.
func (t *Table) AddColumn(name string, values []string) {
	t.Columns = append(t.Columns, Column{Name: name, Values: values})
}

// SetCoords replaces the coordinate pair.
func (t *Table) SetCoords(lat, lng []float64) {
	t.Lat = lat
	t.Lng = lng
}

// ReadyToFetch reports whether all required address roles are bound.
func (t *Table) ReadyToFetch() bool {
	return t.addr1 != unbound && t.city != unbound && t.state != unbound
}

// ReadyToMatch reports whether the coordinate pair is present.
func (t *Table) ReadyToMatch() bool {
	return t.Lat != nil && t.Lng != nil
}

// Address builds the formatted address for a row: addr1 [addr2] city state
// [zipcode]. Returns "" when any required part is blank after trimming,
// which callers treat as "do not fetch".
func (t *Table) Address(row int) string {
	addr1 := t.Columns[t.addr1].Values[row]
	city := t.Columns[t.city].Values[row]
	state := t.Columns[t.state].Values[row]

	if strings.TrimSpace(addr1) == "" || strings.TrimSpace(city) == "" || strings.TrimSpace(state) == "" {
		return ""
	}

	parts := []string{addr1, city, state}
	if t.zipcode != unbound {
		parts = append(parts, t.Columns[t.zipcode].Values[row])
	}
	if t.addr2 != unbound {
		parts = append(parts[:1], append([]string{t.Columns[t.addr2].Values[row]}, parts[1:]...)...)
	}
	return strings.Join(parts, " ")
}

// OutputHeaders returns the selected output column names, prefixed with the
// table prefix when one is set.
func (t *Table) OutputHeaders() []string {
	headers := make([]string, 0, len(t.OutputCols))
	for _, col := range t.OutputCols {
		name := t.Columns[col].Name
		if t.Prefix != "" {
			name = t.Prefix + "_" + name
		}
		headers = append(headers, name)
	}
	return headers
}

// OutputRow returns the selected output values for a row.
func (t *Table) OutputRow(row int) []string {
	values := make([]string, 0, len(t.OutputCols))
	for _, col := range t.OutputCols {
		values = append(values, t.Columns[col].Values[row])
	}
	return values
}

// CompareRow returns the compare-column values for a row.
func (t *Table) CompareRow(row int) []string {
	values := make([]string, 0, len(t.CompareCols))
	for _, col := range t.CompareCols {
		values = append(values, t.Columns[col].Values[row])
	}
	return values
}

// RemoveRow deletes a row, keeping text columns and coordinates in lockstep.
func (t *Table) RemoveRow(row int) {
	for i := range t.Columns {
		t.Columns[i].Values = append(t.Columns[i].Values[:row], t.Columns[i].Values[row+1:]...)
	}
	if t.Lat != nil {
		t.Lat = append(t.Lat[:row], t.Lat[row+1:]...)
	}
	if t.Lng != nil {
		t.Lng = append(t.Lng[:row], t.Lng[row+1:]...)
	}
}

// Describe renders the table configuration for the shell's config command.
func (t *Table) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "{\n")
	fmt.Fprintf(&b, "\tpath:\t%s\n", t.Path)
	fmt.Fprintf(&b, "\tprefix:\t%s\n\n", t.Prefix)

	roleName := func(index int) string {
		if index == unbound {
			return "None"
		}
		return t.Columns[index].Name
	}
	fmt.Fprintf(&b, "\tid:\t\t%s\n", roleName(t.id))
	fmt.Fprintf(&b, "\taddr1:\t\t%s\n", roleName(t.addr1))
	fmt.Fprintf(&b, "\taddr2:\t\t%s\n", roleName(t.addr2))
	fmt.Fprintf(&b, "\tcity:\t\t%s\n", roleName(t.city))
	fmt.Fprintf(&b, "\tstate:\t\t%s\n", roleName(t.state))
	fmt.Fprintf(&b, "\tzipcode:\t%s\n\n", roleName(t.zipcode))

	found := func(v []float64) string {
		if v == nil {
			return "Not Found"
		}
		return "Found"
	}
	fmt.Fprintf(&b, "\tlat:\t%s\n", found(t.Lat))
	fmt.Fprintf(&b, "\tlng:\t%s\n\n", found(t.Lng))

	fmt.Fprintf(&b, "\toutput_cols: {\n")
	for _, col := range t.OutputCols {
		fmt.Fprintf(&b, "\t\t%s\n", t.Columns[col].Name)
	}
	fmt.Fprintf(&b, "\t}\n")

	fmt.Fprintf(&b, "\tcompare_cols: {\n")
	for _, col := range t.CompareCols {
		fmt.Fprintf(&b, "\t\t%s\n", t.Columns[col].Name)
	}
	fmt.Fprintf(&b, "\t}\n}\n")
	return b.String()
}
