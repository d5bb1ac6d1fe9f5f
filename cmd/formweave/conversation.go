package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Manage stored AI conversations",
	Long:    `List, inspect and remove the conversations held by the configured store.`,
}

var conversationLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		ids, err := stack.Engine.ListConversations(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing conversations: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No conversations found.")
			return nil
		}
		fmt.Fprintln(out, "Conversations:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

var conversationInspectCmd = &cobra.Command{
	Use:   "inspect <conversation-id>",
	Short: "Print the state of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		state, err := stack.Engine.Conversation(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading conversation '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(struct {
			Phase             string `json:"phase"`
			EffectiveComplete bool   `json:"effective_complete"`
			State             any    `json:"state"`
		}{string(state.Phase()), state.EffectiveComplete(), state}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var conversationRmCmd = &cobra.Command{
	Use:   "rm <conversation-id>...",
	Short: "Remove one or more conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return errors.New("give at least one conversation id or --all")
		}

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		ids := args
		if all {
			if ids, err = stack.Engine.ListConversations(cmd.Context()); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		var errs []error
		for _, id := range ids {
			if err := stack.Engine.DeleteConversation(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("error removing '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(out, "Removed conversation '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(conversationCmd)
	conversationCmd.AddCommand(conversationLsCmd)
	conversationCmd.AddCommand(conversationInspectCmd)
	conversationCmd.AddCommand(conversationRmCmd)
	conversationRmCmd.Flags().Bool("all", false, "Remove every stored conversation")
}
