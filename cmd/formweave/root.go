package main

import (
	"fmt"
	"os"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/cli"
	"github.com/aretw0/formweave/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "formweave",
	Short: "Formweave routes forms and runs their AI conversations",
	Long: `Formweave reads form definitions from a directory, resolves which block comes next
from branching rules, and drives adaptive AI follow-up conversations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", "", "Directory containing the form definitions (default from config, then .)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a formweave.yaml config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the config file and applies the command line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if _, err := os.Stat("formweave.yaml"); err == nil {
			path = "formweave.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.Dir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

// openStack loads the configuration and wires the engine. Callers close the stack.
func openStack(cmd *cobra.Command) (*cli.Stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildWith(cmd, cfg)
}

func buildWith(cmd *cobra.Command, cfg config.Config, opts ...formweave.Option) (*cli.Stack, error) {
	return cli.Build(cmd.Context(), cfg, opts...)
}
