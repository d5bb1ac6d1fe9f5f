package main

import (
	"context"
	"os"

	"github.com/aretw0/formweave/internal/cli"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var playCmd = &cobra.Command{
	Use:   "play [form-id]",
	Short: "Fill in a form interactively",
	Long: `Walks a form in the terminal, routing between blocks and running its AI conversations.
Type ":back" inside a conversation to revisit the previous turn and "quit" to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		headless, _ := cmd.Flags().GetBool("headless")
		jsonMode, _ := cmd.Flags().GetBool("json")
		responseID, _ := cmd.Flags().GetString("response")

		// Piped input gets plain output.
		if !cmd.Flags().Changed("headless") && !term.IsTerminal(int(os.Stdin.Fd())) {
			headless = true
		}

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		opts := cli.PlayOptions{
			ResponseID: responseID,
			Headless:   headless,
			JSON:       jsonMode,
			Input:      os.Stdin,
			Output:     cmd.OutOrStdout(),
		}
		if len(args) > 0 {
			opts.FormID = args[0]
		}
		return cli.Play(sigCtx, stack.Engine, opts)
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().Bool("headless", false, "Run without banner or markdown rendering")
	playCmd.Flags().Bool("json", false, "Print the collected answers as JSON")
	playCmd.Flags().String("response", "local", "Response id that owns the conversations")
}
