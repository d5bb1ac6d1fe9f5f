package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Inspect and edit stored block connections",
}

var connectionShowCmd = &cobra.Command{
	Use:   "show <form-id> <block-id>",
	Short: "Print the connection leaving a block, with stored edits applied",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		edit, err := stack.Engine.EditConnection(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(edit.Connection(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var connectionUpdateCmd = &cobra.Command{
	Use:     "update <connection-id> <fields-json>",
	Short:   "Apply a partial update to a stored connection",
	Example: `  formweave connection update conn-age '{"source_block_id": "age", "default_target_id": "thanks"}'`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fields map[string]any
		if err := json.Unmarshal([]byte(args[1]), &fields); err != nil {
			return fmt.Errorf("error parsing fields JSON: %w", err)
		}

		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		conn, err := stack.Engine.UpdateConnection(cmd.Context(), args[0], fields)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated connection '%s' (%d rules, default %q)\n",
			conn.ID, len(conn.Rules), conn.DefaultTargetID)
		return nil
	},
}

var connectionSetDefaultCmd = &cobra.Command{
	Use:   "set-default <form-id> <block-id> <target-block-id>",
	Short: "Change where a block leads when no rule matches",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := openStack(cmd)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())

		edit, err := stack.Engine.EditConnection(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		edit.SetDefaultTarget(args[2])
		if err := stack.Engine.SaveConnection(cmd.Context(), edit); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now defaults to %s\n", args[1], args[2])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionShowCmd)
	connectionCmd.AddCommand(connectionUpdateCmd)
	connectionCmd.AddCommand(connectionSetDefaultCmd)
}
