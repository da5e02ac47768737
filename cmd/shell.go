package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geomatch-cli/internal/merge"
	"github.com/sells-group/geomatch-cli/internal/shell"
	"github.com/sells-group/geomatch-cli/internal/table"
)

var shellCmd = &cobra.Command{
	Use:   "shell <file> [file...]",
	Short: "Interactively configure, fetch, and match address files",
	Long: `Loads the given delimited files and starts an interactive session.

Column roles (addr1, city, state, ...) are inferred from headers where
possible and can be rebound with the set command. Run fetch to geocode,
then match to merge the files into matches.csv.

Example:
  geomatch shell stores.csv locations.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		tables := make([]*table.Table, 0, len(args))
		for _, path := range args {
			t, err := table.Load(path)
			if err != nil {
				return eris.Wrapf(err, "shell: load %s", path)
			}
			tables = append(tables, t)
		}

		mode, err := merge.ParseMode(cfg.Match.Mode)
		if err != nil {
			return err
		}

		fetcher, closeFetcher := newFetcher(ctx)
		defer closeFetcher()

		session := shell.NewSession(tables, fetcher, mode, cfg.Match.Radius, cfg.Match.Exclusive, os.Stdout)
		return session.Run(ctx, os.Stdin)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
