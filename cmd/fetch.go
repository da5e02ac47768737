package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/table"
)

var (
	fetchAddr1   string
	fetchAddr2   string
	fetchCity    string
	fetchState   string
	fetchZipcode string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <file> [file...]",
	Short: "Geocode address files non-interactively",
	Long: `Resolves every row of each file to coordinates and writes the augmented
table to <base>_coords.csv. Column roles are inferred from headers; use the
role flags to override the inference (flags apply to every file).

Examples:
  geomatch fetch stores.csv
  geomatch fetch --addr1 "Street Address" --city Town --state St stores.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fetcher, closeFetcher := newFetcher(ctx)
		defer closeFetcher()

		for _, path := range args {
			t, err := table.Load(path)
			if err != nil {
				return eris.Wrapf(err, "fetch: load %s", path)
			}
			if err := bindRoleFlags(t); err != nil {
				return err
			}
			if !t.ReadyToFetch() {
				return eris.Errorf("fetch: %s is missing addr1, city, or state; bind them with flags", path)
			}
			if err := fetcher.Fetch(ctx, t); err != nil {
				return err
			}
			zap.L().Info("fetched", zap.String("source", path), zap.Int("rows", t.Rows()))
		}
		return nil
	},
}

// bindRoleFlags applies role override flags to a table.
func bindRoleFlags(t *table.Table) error {
	binds := []struct {
		role table.Role
		name string
	}{
		{table.RoleAddr1, fetchAddr1},
		{table.RoleAddr2, fetchAddr2},
		{table.RoleCity, fetchCity},
		{table.RoleState, fetchState},
		{table.RoleZipcode, fetchZipcode},
	}
	for _, b := range binds {
		if b.name == "" {
			continue
		}
		if err := t.BindRole(b.role, b.name); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	fetchCmd.Flags().StringVar(&fetchAddr1, "addr1", "", "column holding the street address")
	fetchCmd.Flags().StringVar(&fetchAddr2, "addr2", "", "column holding the secondary address line")
	fetchCmd.Flags().StringVar(&fetchCity, "city", "", "column holding the city")
	fetchCmd.Flags().StringVar(&fetchState, "state", "", "column holding the state")
	fetchCmd.Flags().StringVar(&fetchZipcode, "zipcode", "", "column holding the postal code")
	rootCmd.AddCommand(fetchCmd)
}
