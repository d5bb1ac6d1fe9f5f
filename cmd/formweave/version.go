package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/formweave"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of formweave",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "formweave version %s\n", strings.TrimSpace(formweave.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
