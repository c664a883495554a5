package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/twingraph/twingraph/api"
	"github.com/twingraph/twingraph/config"
	"github.com/twingraph/twingraph/utils"
)

var (
	exit         = os.Exit
	configPath   string
	debug        bool
	pipelinesDir string
)

// NewRootCmd creates the root 'twingraph' command with persistent flags and
// subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "twingraph",
		Short: "Pipeline code generation, simulation, and provenance",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to config JSON")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")
	rootCmd.PersistentFlags().StringVar(&pipelinesDir, "pipelines-dir", "", "Path to pipelines directory (overrides config file)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		if debug {
			utils.SetMode("debug")
		}
		if pipelinesDir != "" {
			api.SetPipelinesDir(pipelinesDir)
		}
	}

	rootCmd.AddCommand(
		newValidateCmd(),
		newGraphCmd(),
		newGenerateCmd(),
		newRunCmd(),
		newExecutionsCmd(),
		newQueryCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// loadConfig reads the configured JSON file, falling back to defaults when
// the file is absent.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Warn("config load failed (%v), using defaults", err)
		}
		return &config.Config{}
	}
	return cfg
}

// newService assembles the pipeline service for one CLI invocation.
func newService(ctx context.Context) (api.PipelineService, error) {
	return api.NewService(ctx, loadConfig())
}
