package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/utils"
)

// newGenerateCmd creates the 'generate' subcommand.
func newGenerateCmd() *cobra.Command {
	var output string
	var store bool
	cmd := &cobra.Command{
		Use:   "generate [file]",
		Short: "Generate executable Python from a pipeline file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := dsl.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "YAML parse error: %v\n", err)
				exit(1)
			}
			svc, err := newService(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Service error: %v\n", err)
				exit(1)
			}
			defer svc.Close()
			result, err := svc.GeneratePipeline(cmd.Context(), p, store)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Generation error: %v\n", err)
				exit(1)
			}
			if result.ArtifactURL != "" {
				utils.User("Stored artifact at %s", result.ArtifactURL)
			}
			if output != "" {
				if err := os.WriteFile(output, []byte(result.Code), 0o644); err != nil {
					fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
					exit(1)
				}
				utils.User("Wrote %s", output)
				return
			}
			fmt.Print(result.Code)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write generated code to file instead of stdout")
	cmd.Flags().BoolVar(&store, "store", false, "Also store the script in the artifact store")
	return cmd
}
