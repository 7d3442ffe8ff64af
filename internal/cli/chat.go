// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/config"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/history"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/session"
)

const inputHistoryFile = "input_history"

func newChatCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [ID]",
		Short: "Chat interactively in a conversation",
		Long: `Chat interactively in a conversation, the current one by default.

Commands during chat:
  /regen     Regenerate the last reply as a new variant
  /prev      Show the previous variant of the last reply
  /next      Show the next variant of the last reply
  /history   Print the conversation
  /help      List commands
  /quit      Exit chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, func(app *App) error {
				id, err := app.ResolveChatID(firstArg(args))
				if err != nil {
					return err
				}
				app.Chats.SwitchChat(cmd.Context(), id)

				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				if app.ConfigPath != "" {
					err := config.Watch(ctx, app.ConfigPath, app.Reconfigure, config.WatchOptions{Logger: app.Log})
					if err != nil {
						app.Log.Warn().Err(err).Str("path", app.ConfigPath).Msg("config reload disabled")
					}
				}

				input := newInputReader(app)
				defer input.Close()
				return runChat(ctx, app, id, input)
			})
		},
	}
}

// =============================================================================
// INPUT
// =============================================================================

// inputReader reads one line per prompt. io.EOF ends the chat.
type inputReader interface {
	Prompt(prompt string) (string, error)
	Close()
}

// newInputReader uses line editing with history when stdin is a terminal
// and plain line reads otherwise.
func newInputReader(app *App) inputReader {
	if f, ok := app.In.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return newLinerInput(app)
	}
	return &plainInput{scanner: bufio.NewScanner(app.In), out: app.Out}
}

type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput(app *App) *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &linerInput{line: line}
	if dir, err := config.ExpandHome(app.Config.Storage.Dir); err == nil && dir != "" {
		in.historyFile = filepath.Join(dir, inputHistoryFile)
		if f, err := os.Open(in.historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return in
}

func (l *linerInput) Prompt(prompt string) (string, error) {
	text, err := l.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) != "" {
		l.line.AppendHistory(text)
	}
	return text, nil
}

func (l *linerInput) Close() {
	if l.historyFile != "" {
		if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			l.line.WriteHistory(f)
			f.Close()
		}
	}
	l.line.Close()
}

type plainInput struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (p *plainInput) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

func (p *plainInput) Close() {}

// =============================================================================
// LOOP
// =============================================================================

func runChat(ctx context.Context, app *App, chatID string, input inputReader) error {
	chat, ok := app.Chats.Chat(chatID)
	if !ok {
		return ErrNoChat
	}
	name := chat.CharacterConfig.Name
	if name == "" {
		name = model.RoleAssistant.DisplayName()
	}
	fmt.Fprintf(app.Out, "Chatting with %s. Type /help for commands.\n", name)

	for {
		line, err := input.Prompt("> ")
		if err == io.EOF {
			fmt.Fprintln(app.Out)
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			quit, err := runChatCommand(ctx, app, chatID, name, text)
			if err != nil {
				fmt.Fprintf(app.Err, "Error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		turn(ctx, app, name, func(ctx context.Context, onToken func(string)) error {
			_, err := app.Session.Send(ctx, chatID, text, onToken)
			return err
		})
	}
}

// runChatCommand handles one slash command and reports whether to quit.
func runChatCommand(ctx context.Context, app *App, chatID, name, text string) (bool, error) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h":
		fmt.Fprintln(app.Out, "/regen  /prev  /next  /history  /help  /quit")

	case "/history":
		chat, ok := app.Chats.Chat(chatID)
		if !ok {
			return false, ErrNoChat
		}
		printChat(app.Out, chat)

	case "/regen", "/r":
		turn(ctx, app, name, func(ctx context.Context, onToken func(string)) error {
			_, err := app.Session.Regenerate(ctx, chatID, onToken)
			return err
		})

	case "/prev", "/next":
		dir, _ := history.ParseDirection(strings.TrimPrefix(cmd, "/"))
		return false, switchTailVariant(ctx, app, chatID, name, dir)

	default:
		return false, usageError("unknown command %s", cmd)
	}
	return false, nil
}

// turn streams one reply to the terminal. Ctrl+C cancels only this reply.
func turn(ctx context.Context, app *App, name string, run func(context.Context, func(string)) error) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	fmt.Fprintf(app.Out, "%s: ", name)
	err := run(turnCtx, func(tok string) { fmt.Fprint(app.Out, tok) })
	fmt.Fprintln(app.Out)

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(app.Err, "(cancelled)")
	default:
		fmt.Fprintf(app.Err, "Error: %v\n", err)
		app.Log.Debug().Err(err).Int("exit_code", GetExitCode(err)).Msg("turn failed")
	}
}

// switchTailVariant moves the last reply to a neighbouring variant and
// prints it.
func switchTailVariant(ctx context.Context, app *App, chatID, name string, dir history.Direction) error {
	chat, ok := app.Chats.Chat(chatID)
	if !ok {
		return ErrNoChat
	}
	tail := chat.Tail()
	if tail == nil || tail.Role != model.RoleAssistant {
		return session.ErrNothingToRegenerate
	}
	cur, ok := tail.Current()
	if !ok {
		return session.ErrNothingToRegenerate
	}

	app.Chats.SwitchMessageVariant(ctx, chatID, cur.ID, dir)

	v, ok := app.Chats.GetMessageVariants(chatID, cur.ID)
	if !ok || v.CurrentIndex < 0 || v.CurrentIndex >= len(v.Variants) {
		return nil
	}
	fmt.Fprintf(app.Out, "%s [%d/%d]: %s\n", name, v.CurrentIndex+1, len(v.Variants), v.Variants[v.CurrentIndex].Content)
	return nil
}
