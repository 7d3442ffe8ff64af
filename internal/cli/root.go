// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the mirau command tree.
func NewRootCommand() *cobra.Command {
	var g GlobalOptions

	root := &cobra.Command{
		Use:           "mirau",
		Short:         "Branching chat client for OpenAI-compatible streaming endpoints",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "config file (default ~/.mirau/config.toml)")
	flags.StringVar(&g.Backend, "backend", "", "storage backend: file, bolt, sqlite, memory")
	flags.StringVar(&g.Dir, "dir", "", "storage directory")
	flags.StringVar(&g.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newNewCommand(&g),
		newListCommand(&g),
		newUseCommand(&g),
		newShowCommand(&g),
		newChatCommand(&g),
		newDeleteCommand(&g),
		newPinCommand(&g),
		newExportCommand(&g),
		newImportCommand(&g),
		newCharacterCommand(&g),
	)
	return root
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, g *GlobalOptions, fn func(*App) error) error {
	app, err := OpenApp(cmd.Context(), *g, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}
