package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpapi "github.com/twingraph/twingraph/http"
	"github.com/twingraph/twingraph/telemetry"
	"github.com/twingraph/twingraph/utils"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig()
			if port != 0 {
				cfg.HTTP.Port = port
			}
			if err := telemetry.Init(cfg); err != nil {
				utils.Warn("tracing init failed: %v", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := httpapi.ListenAndServe(ctx, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
				exit(1)
			}
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides config)")
	return cmd
}
