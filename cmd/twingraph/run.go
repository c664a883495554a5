package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/utils"
)

// newRunCmd creates the 'run' subcommand: simulate a pipeline and print the
// resulting execution.
func newRunCmd() *cobra.Command {
	var inputsJSON string
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Simulate a pipeline and record its provenance",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := dsl.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "YAML parse error: %v\n", err)
				exit(1)
			}
			var inputs map[string]any
			if inputsJSON != "" {
				if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
					fmt.Fprintf(os.Stderr, "Invalid --inputs JSON: %v\n", err)
					exit(1)
				}
			}
			svc, err := newService(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
				exit(1)
			}
			defer svc.Close()
			exec, err := svc.Simulate(cmd.Context(), p, inputs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Simulation error: %v\n", err)
				if exec == nil {
					exit(1)
				}
			}
			out, err := json.MarshalIndent(exec, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
				exit(1)
			}
			fmt.Println(string(out))
			for _, w := range exec.Warnings {
				utils.Warn("%s", w)
			}
		},
	}
	cmd.Flags().StringVarP(&inputsJSON, "inputs", "i", "", "Pipeline inputs as a JSON object")
	return cmd
}
