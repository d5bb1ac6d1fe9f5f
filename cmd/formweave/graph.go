package main

import (
	"context"
	"fmt"

	"github.com/aretw0/formweave/internal/cli"
	"github.com/aretw0/formweave/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [form-id]",
	Short: "Export the routing of a form as a Mermaid diagram",
	Long:  `Outputs a Mermaid flowchart (graph TD) of the blocks of a form and the rules connecting them.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		var formID string
		if len(args) > 0 {
			formID = args[0]
		}
		formID, err = cli.ResolveFormID(cmd.Context(), stack.Engine, formID)
		if err != nil {
			return err
		}
		form, err := stack.Engine.LoadForm(cmd.Context(), formID)
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if current, _ := cmd.Flags().GetString("current"); current != "" {
			overlay = &graph.GraphOverlay{CurrentBlock: current}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(form, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("current", "", "Highlight a block")
}
