// Package shell implements the interactive command session: an explicit
// state object holding the loaded tables and match settings, plus the
// command grammar that configures and runs fetch and merge.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/geomatch-cli/internal/fetch"
	"github.com/sells-group/geomatch-cli/internal/merge"
	"github.com/sells-group/geomatch-cli/internal/table"
)

// Session holds the shell state: loaded tables and the match configuration.
// All state is explicit; commands mutate the session, never globals.
type Session struct {
	tables    []*table.Table
	fetcher   *fetch.Fetcher
	mode      merge.Mode
	radius    float64
	exclusive bool
	out       io.Writer
}

// NewSession creates a session over the given tables with the given
// defaults. Output (prompt, errors, progress) is written to out.
func NewSession(tables []*table.Table, fetcher *fetch.Fetcher, mode merge.Mode, radius float64, exclusive bool, out io.Writer) *Session {
	return &Session{
		tables:    tables,
		fetcher:   fetcher,
		mode:      mode,
		radius:    radius,
		exclusive: exclusive,
		out:       out,
	}
}

// Run reads commands from r until quit or EOF. Command errors are printed
// and control returns to the prompt; they never end the session.
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	fmt.Fprintln(s.out, "---------------------- GEOMATCH -------------------------")
	fmt.Fprintln(s.out, "type help to see commands and options")
	fmt.Fprintln(s.out)

	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(s.out, "geomatch> ")
		if !scanner.Scan() {
			break
		}
		quit, err := s.Execute(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(s.out, err)
		}
		if quit {
			break
		}
	}
	return eris.Wrap(scanner.Err(), "shell: read input")
}

// Execute runs a single command line. The returned bool is true for quit.
func (s *Session) Execute(ctx context.Context, line string) (bool, error) {
	input := strings.Fields(line)
	if len(input) == 0 {
		return false, nil
	}

	switch input[0] {
	case "list":
		return false, s.list(input)
	case "config":
		s.printConfig()
		return false, nil
	case "set":
		return false, s.setParam(input)
	case "add":
		return false, s.addMatchColumn(input)
	case "prefix":
		return false, s.setPrefix(input)
	case "method":
		return false, s.setMethod(input)
	case "radius":
		return false, s.setRadius(input)
	case "exclusive":
		return false, s.setExclusive(input)
	case "fetch":
		return false, s.runFetch(ctx)
	case "match":
		return false, s.runMatch()
	case "help":
		fmt.Fprintln(s.out, helpText)
		return false, nil
	case "quit":
		return true, nil
	default:
		fmt.Fprintf(s.out, "Unknown command: %q\n", input[0])
		fmt.Fprintln(s.out, helpText)
		return false, nil
	}
}

// tableArg parses and bounds-checks a table index argument.
func (s *Session) tableArg(input []string, pos int) (*table.Table, error) {
	if len(input) <= pos {
		return nil, eris.New("shell: file index required")
	}
	index, err := strconv.Atoi(input[pos])
	if err != nil {
		return nil, eris.Wrapf(err, "shell: parse file index %q", input[pos])
	}
	if index < 0 || index >= len(s.tables) {
		return nil, eris.Errorf("shell: file index %d out of bounds", index)
	}
	return s.tables[index], nil
}

func (s *Session) list(input []string) error {
	t, err := s.tableArg(input, 1)
	if err != nil {
		return err
	}
	for _, name := range t.Headers() {
		fmt.Fprintf(s.out, "\t%s\n", name)
	}
	return nil
}

func (s *Session) printConfig() {
	for i, t := range s.tables {
		fmt.Fprintf(s.out, "%d: %s", i, t.Describe())
	}
	fmt.Fprintf(s.out, "Radius: %v\n", s.radius)
	fmt.Fprintf(s.out, "MatchMode: %s\n", s.mode)
	fmt.Fprintf(s.out, "Exclusive: %v\n", s.exclusive)
}

func (s *Session) setParam(input []string) error {
	t, err := s.tableArg(input, 1)
	if err != nil {
		return err
	}
	if len(input) < 3 {
		return eris.New("shell: variable name required")
	}
	if len(input) < 4 {
		return eris.New("shell: column name required")
	}
	column := strings.Join(input[3:], " ")

	switch strings.ToLower(input[2]) {
	case "id":
		return t.BindRole(table.RoleID, column)
	case "addr1":
		return t.BindRole(table.RoleAddr1, column)
	case "addr2":
		return t.BindRole(table.RoleAddr2, column)
	case "city":
		return t.BindRole(table.RoleCity, column)
	case "state":
		return t.BindRole(table.RoleState, column)
	case "zipcode":
		return t.BindRole(table.RoleZipcode, column)
	case "lat":
		return t.BindLat(column)
	case "lng":
		return t.BindLng(column)
	default:
		return eris.Errorf("shell: unknown variable %q", input[2])
	}
}

func (s *Session) addMatchColumn(input []string) error {
	t, err := s.tableArg(input, 1)
	if err != nil {
		return err
	}
	if len(input) < 3 {
		return eris.New("shell: column type required")
	}
	if len(input) < 4 {
		return eris.New("shell: column name required")
	}
	column := strings.Join(input[3:], " ")

	switch input[2] {
	case "output":
		return t.AddOutputColumn(column)
	case "compare":
		return t.AddCompareColumn(column)
	default:
		return eris.Errorf("shell: invalid column type %q", input[2])
	}
}

func (s *Session) setPrefix(input []string) error {
	t, err := s.tableArg(input, 1)
	if err != nil {
		return err
	}
	if len(input) < 3 {
		return eris.New("shell: prefix required")
	}
	t.SetPrefix(input[2])
	return nil
}

func (s *Session) setMethod(input []string) error {
	if len(input) < 2 {
		return eris.New("shell: method required")
	}
	mode, err := merge.ParseMode(input[1])
	if err != nil {
		return err
	}
	s.mode = mode
	return nil
}

func (s *Session) setRadius(input []string) error {
	if len(input) < 2 {
		return eris.New("shell: radius required")
	}
	radius, err := strconv.ParseFloat(input[1], 64)
	if err != nil {
		return eris.Wrapf(err, "shell: parse radius %q", input[1])
	}
	if radius <= 0 {
		return eris.New("shell: radius must be positive")
	}
	s.radius = radius
	return nil
}

func (s *Session) setExclusive(input []string) error {
	if len(input) < 2 {
		return eris.New("shell: value required")
	}
	switch strings.ToLower(input[1]) {
	case "true":
		s.exclusive = true
	case "false":
		s.exclusive = false
	default:
		return eris.New("shell: value must be true or false")
	}
	return nil
}

func (s *Session) runFetch(ctx context.Context) error {
	for _, t := range s.tables {
		if !t.ReadyToFetch() {
			return eris.New("shell: invalid config for fetch")
		}
	}
	for _, t := range s.tables {
		fmt.Fprintf(s.out, "Fetching %d coords for %s:\n", t.Rows(), t.Path)

		done := make(chan struct{})
		go s.showProgress(t.Rows(), done)
		err := s.fetcher.Fetch(ctx, t)
		close(done)
		fmt.Fprintln(s.out)
		if err != nil {
			return err
		}
	}
	return nil
}

// showProgress prints the fetcher's completed counter until done closes.
func (s *Session) showProgress(total int, done <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			fmt.Fprintf(s.out, "\r%d/%d", total, total)
			return
		case <-ticker.C:
			fmt.Fprintf(s.out, "\r%d/%d", s.fetcher.Completed(), total)
		}
	}
}

func (s *Session) runMatch() error {
	for _, t := range s.tables {
		if !t.ReadyToMatch() {
			return eris.New("shell: invalid config for match")
		}
	}
	acc := &merge.Accumulator{Mode: s.mode, Exclusive: s.exclusive, Radius: s.radius}
	out, err := acc.Merge(s.tables)
	if err != nil {
		return err
	}
	if err := merge.WriteMatches(out, merge.MatchesFile); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Wrote %d rows to %s\n", out.Rows(), merge.MatchesFile)
	return nil
}

const helpText = `HELP:
    list <index>                List out all columns in the file with index
    set <index> <var> <col>     Assign a column to a runtime variable
        fetch var Options:
            addr1   [required]
            addr2   [optional]
            city    [required]
            state   [required]
            zipcode [optional]
        match var Options:
            lat     [required]
            lng     [required]
    add <index> <type> <col>    Add a column for a specific purpose
        type Options:
            output      Write the column to the output file
            compare     Differentiate between duplicate locations
    prefix <index> <val>        Set prefix for a specified file's columns
    method <left|inner|outer>   Set method for matching
    radius <miles>              Max radius for two locations to match (default 0.25)
    exclusive <true|false>      Whether an entry can match more than one entry
    config                      Print out the current configuration
    fetch                       Fetch all coordinate pairs, write *_coords.csv
    match                       Match all files together, write matches.csv
    quit                        Quit the application
    help                        List out this help message`
