package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagetrack/stagetrack/internal/pipeline"
	"github.com/stagetrack/stagetrack/internal/server"
)

var reportCmd = &cobra.Command{
	Use:   "report <collector-item-id>...",
	Short: "Print the stuck commits per stage as JSON",
	Long: `Build the same report the API serves for one or more pipelines.

--begin and --end bound the terminal stage in epoch milliseconds; they default to
the last 90 days.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := pipeline.SearchRequest{PipelineIDs: args}
		if cmd.Flags().Changed("begin") {
			ms, _ := cmd.Flags().GetInt64("begin")
			t := time.UnixMilli(ms)
			req.Begin = &t
		}
		if cmd.Flags().Changed("end") {
			ms, _ := cmd.Flags().GetInt64("end")
			t := time.UnixMilli(ms)
			req.End = &t
		}

		svc, store, err := bootstrap(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := svc.Search(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		out := make([]server.PipelineResponse, len(results))
		for i, res := range results {
			out[i] = server.NewPipelineResponse(res)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	reportCmd.Flags().Int64("begin", 0, "Lower bound for the terminal stage (epoch ms)")
	reportCmd.Flags().Int64("end", 0, "Upper bound for the terminal stage (epoch ms)")
}
