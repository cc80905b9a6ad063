package cli

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stagetrack/stagetrack/internal/config"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stagetrack",
	Short: "stagetrack: find the commits stuck at each delivery stage",
	Long: `stagetrack tracks which commits reached which environment of a delivery
pipeline and reports, per stage, the commits that have not moved further.

Configuration is read from config.yaml (or --config) and STAGETRACK_* environment
variables; a .env file in the working directory is loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if it exists
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		level, _ := loaded.LogLevel()

		cfg = loaded
		logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(stagesCmd)
}
