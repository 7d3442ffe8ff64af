// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/export"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/history"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/util"
)

// List column widths, in display columns.
const (
	listIDWidth      = 8
	listNameWidth    = 16
	listMessageWidth = 48
)

// =============================================================================
// NEW
// =============================================================================

func newNewCommand(g *GlobalOptions) *cobra.Command {
	var p history.StartChatParams
	var character string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new chat",
		Long: `Start a new chat and make it current.

The chat is seeded from --character, or from the current character when no
prompt is given on the command line.`,
		Example: `  mirau new
  mirau new --character Mirau
  mirau new --name Tutor --prompt "You are a patient tutor."`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *App) error {
				params, err := startParams(app, p, character)
				if err != nil {
					return err
				}
				id := app.Chats.StartNewChat(cmd.Context(), params)
				fmt.Fprintf(app.Out, "Started chat %s with %s\n", shortID(id), params.Name)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&character, "character", "", "character to start the chat with")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name for the chat")
	cmd.Flags().StringVar(&p.SystemPrompt, "prompt", "", "system prompt")
	cmd.Flags().StringVar(&p.Avatar, "avatar", "", "avatar path or URL")
	return cmd
}

// startParams fills the chat seed from flags and the roster.
func startParams(app *App, p history.StartChatParams, character string) (history.StartChatParams, error) {
	if character == "" && p.SystemPrompt != "" {
		if p.Name == "" {
			p.Name = "Assistant"
		}
		return p, nil
	}

	var (
		c  model.CharacterConfig
		ok bool
	)
	if character != "" {
		c, ok = app.Roster.Character(character)
		if !ok {
			return p, &CommandError{Code: ExitNotFoundError, Message: fmt.Sprintf("no character named %q", character)}
		}
	} else {
		c, ok = app.Roster.Current()
		if !ok {
			return p, usageError("no character selected; pass --prompt or add one with 'mirau character set'")
		}
	}

	out := history.StartChatParams{Name: c.Name, Avatar: c.Avatar, SystemPrompt: c.SystemPrompt}
	if p.Name != "" {
		out.Name = p.Name
	}
	if p.Avatar != "" {
		out.Avatar = p.Avatar
	}
	if p.SystemPrompt != "" {
		out.SystemPrompt = p.SystemPrompt
	}
	return out, nil
}

// =============================================================================
// LIST / USE / SHOW
// =============================================================================

func newListCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List chats, pinned first then most recent",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *App) error {
				printChatList(app.Out, app.Chats.SortedChatList(), app.Chats.CurrentChatID())
				return nil
			})
		},
	}
}

func printChatList(w io.Writer, items []model.ChatListItem, current string) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No chats yet. Start one with 'mirau new'.")
		return
	}
	for _, item := range items {
		marker := " "
		if item.ID == current {
			marker = "*"
		}
		pin := " "
		if item.Pinned {
			pin = "^"
		}
		name := util.PadWidth(util.TruncateWidth(util.SingleLine(item.Name), listNameWidth), listNameWidth)
		last := util.TruncateWidth(util.SingleLine(item.LastMessage), listMessageWidth)
		fmt.Fprintf(w, "%s%s %s  %s  %s  %s\n",
			marker, pin, shortID(item.ID), name, item.UpdatedAt.Local().Format("2006-01-02 15:04"), last)
	}
}

func newUseCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "use ID",
		Short: "Make a chat current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				id, err := app.ResolveChatID(args[0])
				if err != nil {
					return err
				}
				app.Chats.SwitchChat(cmd.Context(), id)
				fmt.Fprintf(app.Out, "Current chat is %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newShowCommand(g *GlobalOptions) *cobra.Command {
	var (
		format     string
		outPath    string
		opts       export.Options
		timestamps bool
	)

	cmd := &cobra.Command{
		Use:   "show [ID]",
		Short: "Print the active branch of a chat",
		Example: `  mirau show
  mirau show --variants
  mirau show 1a2b --format markdown -o chat.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				id, err := app.ResolveChatID(firstArg(args))
				if err != nil {
					return err
				}
				chat, ok := app.Chats.Chat(id)
				if !ok {
					return ErrNoChat
				}

				opts.IncludeMetadata = format != string(export.FormatText)
				opts.IncludeTimestamps = timestamps
				exp, err := export.ForFormat(export.Format(format), &opts)
				if err != nil {
					return usageError("%v", err)
				}
				data, err := exp.Export(chat)
				if err != nil {
					return err
				}

				if outPath == "" {
					_, err = app.Out.Write(data)
					return err
				}
				if outPath == "." {
					outPath = export.FileName(chat, exp, time.Now())
				}
				if err := util.AtomicWriteFile(outPath, data, 0644); err != nil {
					return &CommandError{Code: ExitStorageError, Message: "failed to write transcript", Cause: err}
				}
				fmt.Fprintf(app.Err, "Wrote %s\n", outPath)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", string(export.FormatText), "text, markdown or json")
	flags.StringVarP(&outPath, "output", "o", "", `write to a file instead of stdout ("." picks a name)`)
	flags.BoolVar(&opts.IncludeVariants, "variants", false, "list inactive variants too")
	flags.BoolVar(&timestamps, "timestamps", false, "include message times")
	return cmd
}

// printChat writes the active branch of chat as plain text.
func printChat(w io.Writer, chat model.ChatHistory) {
	data, err := export.NewTextExporter(&export.Options{}).Export(chat)
	if err != nil {
		return
	}
	w.Write(data)
}

// =============================================================================
// DELETE / PIN
// =============================================================================

func newDeleteCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				id, err := app.ResolveChatID(args[0])
				if err != nil {
					return err
				}
				app.Chats.DeleteChat(cmd.Context(), id)
				fmt.Fprintf(app.Out, "Deleted chat %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newPinCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pin ID",
		Short: "Toggle whether a chat is pinned",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				id, err := app.ResolveChatID(args[0])
				if err != nil {
					return err
				}
				app.Chats.TogglePin(cmd.Context(), id)
				state := "Unpinned"
				for _, item := range app.Chats.ChatList() {
					if item.ID == id && item.Pinned {
						state = "Pinned"
					}
				}
				fmt.Fprintf(app.Out, "%s chat %s\n", state, shortID(id))
				return nil
			})
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func shortID(id string) string {
	if len(id) <= listIDWidth {
		return id
	}
	return id[:listIDWidth]
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
