package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swarmguard/schedsim/internal/serialize"
)

func newGenerateCmd() *cobra.Command {
	var (
		genSpec string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "generate a task graph and write it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			graph, err := generateGraph(genSpec)
			if err != nil {
				return err
			}
			data, err := serialize.MarshalJSON(graph)
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			if err := os.WriteFile(outPath, data, 0644); err != nil {
				return fmt.Errorf("write graph: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tasks to %s\n", graph.TaskCount(), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&genSpec, "gen", "forkjoin:10", "generator spec, see 'run --gen'")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")
	return cmd
}
