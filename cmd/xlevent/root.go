// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"io"

	"github.com/spf13/cobra"
)

// These variables are set at build time using ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "xlevent",
		Short: "Bridge native virtualization events into structured output",
		Long: `xlevent drives the event engine of a native virtualization library
(libxl, or libvirtd), and writes domain events as JSON lines.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a TOML config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides config)")

	cmd.AddCommand(
		newMonitorCommand(&flags),
		newPollCommand(&flags),
		newVersionCommand(),
	)

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("xlevent %s (%s)\n", Version, Commit)
		},
	}
}

// loadFlags loads the config file, then applies flag overrides.
func loadFlags(flags *rootFlags) (Config, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return Config{}, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, cfg.validate()
}
