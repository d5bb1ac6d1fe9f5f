package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route <form-id> <block-id>",
	Short: "Resolve the block that follows a block",
	Long: `Evaluates the connection of a block against the given answers and prints the next block id,
or "end" when the form is over.`,
	Example: `  formweave route onboarding age --answers '{"age": 30}'`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("answers")
		positional, _ := cmd.Flags().GetBool("positional")

		answers := domain.Answers{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &answers); err != nil {
				return fmt.Errorf("error parsing --answers JSON: %w", err)
			}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		stack, err := buildWith(cmd, cfg, formweave.WithPositionalFallback(positional))
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		form, err := stack.Engine.LoadForm(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		next, err := stack.Engine.ResolveNext(cmd.Context(), form, args[1], answers)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case next.End:
			fmt.Fprintln(out, "end")
		case next.Positional:
			fmt.Fprintf(out, "%s (positional)\n", next.BlockID)
		default:
			fmt.Fprintln(out, next.BlockID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().String("answers", "", "JSON object mapping block ids to answers")
	routeCmd.Flags().Bool("positional", false, "Fall back to the next block in order when nothing resolves")
}
