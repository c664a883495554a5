package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twingraph/twingraph/dsl"
	"github.com/twingraph/twingraph/graph"
	"github.com/twingraph/twingraph/utils"
)

// newGraphCmd creates the 'graph' subcommand.
func newGraphCmd() *cobra.Command {
	var format string
	var output string
	cmd := &cobra.Command{
		Use:   "graph [file]",
		Short: "Render a pipeline's DAG as Mermaid or DOT",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := dsl.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "YAML parse error: %v\n", err)
				exit(1)
			}
			g, err := graph.Build(p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Graph error: %v\n", err)
				exit(1)
			}
			var out string
			switch format {
			case "mermaid":
				out, err = graph.ExportMermaid(g)
			case "dot":
				out, err = graph.ExportDOT(g)
			default:
				fmt.Fprintf(os.Stderr, "Unsupported format: %s\n", format)
				exit(1)
				return
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
				exit(1)
			}
			if output != "" {
				if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
					fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
					exit(1)
				}
				utils.User("Wrote %s", output)
				return
			}
			fmt.Println(out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "mermaid", "Output format: mermaid or dot")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
