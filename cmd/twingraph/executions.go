package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/twingraph/twingraph/utils"
)

// newExecutionsCmd creates the 'executions' subcommand group.
func newExecutionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Inspect recorded executions",
	}
	cmd.AddCommand(newExecutionsListCmd(), newExecutionsGetCmd(), newExecutionsDeleteCmd())
	return cmd
}

func newExecutionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded executions",
		Run: func(cmd *cobra.Command, args []string) {
			svc, err := newService(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
				exit(1)
			}
			defer svc.Close()
			execs, err := svc.ListExecutions(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "List error: %v\n", err)
				exit(1)
			}
			for _, e := range execs {
				utils.User("%s  %-24s %s", e.ID, e.PipelineName, e.Status)
			}
		},
	}
}

func newExecutionsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show one execution with its provenance",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := uuid.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid execution id: %v\n", err)
				exit(1)
			}
			svc, err := newService(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
				exit(1)
			}
			defer svc.Close()
			exec, err := svc.GetExecution(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Get error: %v\n", err)
				exit(1)
			}
			out, err := json.MarshalIndent(exec, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
				exit(1)
			}
			fmt.Println(string(out))
		},
	}
}

func newExecutionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an execution and its provenance",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := uuid.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Invalid execution id: %v\n", err)
				exit(1)
			}
			svc, err := newService(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
				exit(1)
			}
			defer svc.Close()
			if err := svc.DeleteExecution(cmd.Context(), id); err != nil {
				fmt.Fprintf(os.Stderr, "Delete error: %v\n", err)
				exit(1)
			}
			utils.User("Deleted %s", id)
		},
	}
}
