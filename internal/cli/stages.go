package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the configured stages in pipeline order",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for i, s := range registry.Stages() {
			resolution := s.Type.Resolution().String()
			marker := ""
			if registry.IsTerminal(s) {
				marker = " (terminal)"
			}
			fmt.Fprintf(out, "%d\t%s\t%s\t%s%s\n", i, s.Name, s.Type, resolution, marker)
		}
		return nil
	},
}
