package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newQueryCmd creates the 'query' subcommand: submit a raw Gremlin
// traversal to the configured graph database.
func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query [traversal]",
		Short: "Submit a Gremlin traversal to the provenance graph",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc, err := newService(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
				exit(1)
			}
			defer svc.Close()
			data, err := svc.Query(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
				exit(1)
			}
			fmt.Println(string(data))
		},
	}
}
