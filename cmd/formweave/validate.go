package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/formweave/internal/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [form-id...]",
	Short: "Check forms for consistency",
	Long: `Reports broken connections, invalid rule expressions and blocks that no path from the
first block reaches. Without arguments every form is checked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		ids := args
		if len(ids) == 0 {
			if ids, err = stack.Engine.ListForms(cmd.Context()); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		var errs []error
		for _, id := range ids {
			form, err := stack.Engine.LoadForm(cmd.Context(), id)
			if err == nil {
				err = validator.ValidateForm(form)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			fmt.Fprintf(out, "Form %s is valid! ✅\n", id)
		}
		if len(errs) > 0 {
			return fmt.Errorf("validation failed:\n%w", errors.Join(errs...))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
