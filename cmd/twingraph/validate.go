package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twingraph/twingraph/dsl"
)

// newValidateCmd creates the 'validate' subcommand.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a pipeline file (YAML parse + schema validate)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := dsl.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "YAML parse error: %v\n", err)
				exit(1)
			}
			if err := dsl.Validate(p); err != nil {
				fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
				exit(2)
			}
			fmt.Println("Validation OK: pipeline is valid!")
		},
	}
}
