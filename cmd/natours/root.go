// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/logging"
	"github.com/natours/natours/internal/xdg"
)

const serviceName = "natours"

// NewRootCmd creates the root command for the Natours CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "natours",
		Short: "Natours - tour booking API",
		Long: `Natours serves the tours, reviews and users REST API.

Settings are read from an optional YAML file (--config, or
$XDG_CONFIG_HOME/natours/config.yaml when present), NATOURS_* environment
variables and flags, in increasing precedence.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path")
	config.RegisterFlags(cmd.PersistentFlags(), config.Default())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

// loadConfig resolves the configuration for cmd from its config file,
// the environment and its flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path == "" {
		ok, err := xdg.Exists(xdg.ConfigFile())
		if err != nil {
			return config.Config{}, err
		}
		if ok {
			path = xdg.ConfigFile()
		}
	}
	return config.Load(path, cmd.Flags())
}

// newLogger builds the process logger from cfg and installs it as the
// slog default.
func newLogger(cfg config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
}
