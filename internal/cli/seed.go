package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagetrack/stagetrack/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load owners, collector items and commits into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fixture, err := seed.Load(args[0])
		if err != nil {
			return err
		}

		store, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := seed.Apply(cmd.Context(), store, fixture)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "owners: %d, collector items: %d, new commits: %d\n",
			res.Owners, res.CollectorItems, res.Commits)
		return nil
	},
}
