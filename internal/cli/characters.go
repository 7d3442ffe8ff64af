// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/roster"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/util"
)

func newCharacterCommand(g *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "character",
		Aliases: []string{"char"},
		Short:   "Manage saved characters",
	}
	cmd.AddCommand(
		newCharacterSetCommand(g),
		newCharacterListCommand(g),
		newCharacterUseCommand(g),
		newCharacterDeleteCommand(g),
	)
	return cmd
}

func newCharacterSetCommand(g *GlobalOptions) *cobra.Command {
	var c model.CharacterConfig
	var use bool

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Add a character or replace the one with the same name",
		Example: `  mirau character set Mirau --prompt "You are Mirau, a curious cat." --use
  mirau character set Mirau --temperature 0.9 --top-p 0.8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				c.Name = args[0]
				existing, found := app.Roster.Character(c.Name)
				next := existing
				next.Name = c.Name
				flags := cmd.Flags()
				if !found || flags.Changed("prompt") {
					next.SystemPrompt = c.SystemPrompt
				}
				if !found || flags.Changed("avatar") {
					next.Avatar = c.Avatar
				}
				if !found || flags.Changed("model") {
					next.Model = c.Model
				}
				if !found || flags.Changed("temperature") {
					next.Temperature = c.Temperature
				}
				if !found || flags.Changed("top-p") {
					next.TopP = c.TopP
				}
				if next.SystemPrompt == "" {
					return usageError("--prompt is required for a new character")
				}

				if err := app.Roster.UpdateCharacter(cmd.Context(), next); err != nil {
					if errors.Is(err, roster.ErrEmptyName) {
						return usageError("%v", err)
					}
					return err
				}
				if use {
					app.Roster.SelectCharacter(cmd.Context(), next.Name)
				}
				verb := "Added"
				if found {
					verb = "Updated"
				}
				fmt.Fprintf(app.Out, "%s character %s\n", verb, next.Name)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.SystemPrompt, "prompt", "", "system prompt")
	flags.StringVar(&c.Avatar, "avatar", "", "avatar path or URL")
	flags.StringVar(&c.Model, "model", "", "model override")
	flags.Float64Var(&c.Temperature, "temperature", 0.7, "sampling temperature")
	flags.Float64Var(&c.TopP, "top-p", 0.9, "nucleus sampling")
	flags.BoolVar(&use, "use", false, "make it the current character")
	return cmd
}

func newCharacterListCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List characters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *App) error {
				chars := app.Roster.Characters()
				if len(chars) == 0 {
					fmt.Fprintln(app.Out, "No characters yet. Add one with 'mirau character set'.")
					return nil
				}
				current, _ := app.Roster.Current()
				for _, c := range chars {
					marker := " "
					if c.Name == current.Name {
						marker = "*"
					}
					fmt.Fprintf(app.Out, "%s %s  t=%.2f p=%.2f  %s\n",
						marker,
						util.PadWidth(util.TruncateWidth(c.Name, listNameWidth), listNameWidth),
						c.Temperature, c.TopP,
						util.TruncateWidth(util.SingleLine(c.SystemPrompt), listMessageWidth))
				}
				return nil
			})
		},
	}
}

func newCharacterUseCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use NAME",
		Short: "Make a character current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				if _, ok := app.Roster.Character(args[0]); !ok {
					return &CommandError{Code: ExitNotFoundError, Message: fmt.Sprintf("no character named %q", args[0])}
				}
				app.Roster.SelectCharacter(cmd.Context(), args[0])
				fmt.Fprintf(app.Out, "Current character is %s\n", args[0])
				return nil
			})
		},
	}
}

func newCharacterDeleteCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete a character",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				app.Roster.DeleteCharacter(cmd.Context(), args[0])
				fmt.Fprintf(app.Out, "Deleted character %s\n", args[0])
				return nil
			})
		},
	}
}
