// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/cloud"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/config"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/history"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/logging"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/roster"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/session"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/storage"
)

// Version is reported by --version and stamped into backups.
var Version = "0.1.0"

// ErrNoChat is returned when a command needs a conversation and none is
// selected.
var ErrNoChat = errors.New("no chat selected; start one with 'mirau new'")

// GlobalOptions holds the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	Backend    string
	Dir        string
	LogLevel   string
}

// App is everything a command needs, opened from one configuration.
type App struct {
	Config     *config.Config
	ConfigPath string
	Log        zerolog.Logger

	Store   storage.Gateway
	Chats   *history.Manager
	Roster  *roster.Roster
	Client  *cloud.Client
	Session *session.Driver

	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// loadConfig resolves the configuration file and applies flag overrides.
func loadConfig(g GlobalOptions) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path = g.ConfigPath
		err  error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
		if p, perr := config.ConfigPathTOML(); perr == nil {
			if _, serr := os.Stat(p); serr == nil {
				path = p
			} else if p, perr := config.ConfigPathJSON(); perr == nil {
				if _, serr := os.Stat(p); serr == nil {
					path = p
				}
			}
		}
	}
	if err != nil {
		return nil, "", &CommandError{Code: ExitConfigError, Message: "failed to load config", Cause: err}
	}

	if g.Backend != "" {
		cfg.Storage.Backend = g.Backend
	}
	if g.Dir != "" {
		cfg.Storage.Dir = g.Dir
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", &CommandError{Code: ExitConfigError, Message: "invalid config", Cause: err}
	}
	return cfg, path, nil
}

// OpenApp loads configuration, opens the store and loads both records.
func OpenApp(ctx context.Context, g GlobalOptions, in io.Reader, out, errOut io.Writer) (*App, error) {
	cfg, path, err := loadConfig(g)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(strings.ToLower(cfg.Log.Format)),
		Writer: errOut,
	})
	if err != nil {
		return nil, &CommandError{Code: ExitConfigError, Message: "invalid log settings", Cause: err}
	}

	dir, err := config.ExpandHome(cfg.Storage.Dir)
	if err != nil {
		return nil, &CommandError{Code: ExitConfigError, Message: "invalid storage dir", Cause: err}
	}
	store, err := storage.Open(storage.Options{Backend: cfg.Storage.Backend, Dir: dir})
	if err != nil {
		return nil, &CommandError{Code: ExitStorageError, Message: "failed to open store", Cause: err}
	}

	opts := history.DefaultOptions()
	opts.UserAvatar = cfg.Chat.UserAvatar
	opts.DefaultTemperature = cfg.Chat.DefaultTemperature
	opts.DefaultTopP = cfg.Chat.DefaultTopP
	opts.Logger = logger

	app := &App{
		Config:     cfg,
		ConfigPath: path,
		Log:        logger,
		Store:      store,
		Chats:      history.NewManager(store, opts),
		Roster:     roster.New(store, logger),
		In:         in,
		Out:        out,
		Err:        errOut,
	}
	app.Client = cloud.NewClient(cloud.Options{
		Endpoint: cfg.API.Endpoint,
		Defaults: clientDefaults(cfg),
		APIKey:   cfg.API.APIKey,
		Logger:   logger,
	})
	app.Session = session.New(app.Chats, app.Client, logger)

	// An unreadable record has already been logged and replaced by an
	// empty one, so only cancellation stops startup.
	g2, gctx := errgroup.WithContext(ctx)
	g2.Go(func() error {
		_ = app.Chats.Load(gctx)
		return gctx.Err()
	})
	g2.Go(func() error {
		_ = app.Roster.Load(gctx)
		return gctx.Err()
	})
	if err := g2.Wait(); err != nil {
		store.Close()
		return nil, err
	}

	logger.Debug().
		Str("backend", cfg.Storage.Backend).
		Str("dir", dir).
		Int("chats", len(app.Chats.ChatList())).
		Int("characters", len(app.Roster.Characters())).
		Msg("state loaded")
	return app, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Reconfigure applies a reloaded configuration to the running client.
// Storage and logging settings take effect on the next start.
func (a *App) Reconfigure(cfg *config.Config) {
	a.Client.Reconfigure(cfg.API.Endpoint, clientDefaults(cfg))
	a.Log.Info().Str("endpoint", cfg.API.Endpoint).Str("model", cfg.API.Model).Msg("config reloaded")
}

func clientDefaults(cfg *config.Config) cloud.Defaults {
	return cloud.Defaults{
		Model:       cfg.API.Model,
		Temperature: cfg.API.Temperature,
		TopP:        cfg.API.TopP,
	}
}

// ResolveChatID maps an id or unique id prefix to a chat id. An empty
// argument means the current chat.
func (a *App) ResolveChatID(arg string) (string, error) {
	if arg == "" {
		id := a.Chats.CurrentChatID()
		if id == "" {
			return "", ErrNoChat
		}
		return id, nil
	}

	var matches []string
	for _, item := range a.Chats.ChatList() {
		if item.ID == arg {
			return item.ID, nil
		}
		if strings.HasPrefix(item.ID, arg) {
			matches = append(matches, item.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", &CommandError{Code: ExitNotFoundError, Message: fmt.Sprintf("no chat matches %q", arg)}
	case 1:
		return matches[0], nil
	default:
		return "", &CommandError{Code: ExitUsageError, Message: fmt.Sprintf("%q matches %d chats", arg, len(matches))}
	}
}
