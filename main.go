// mirau - branching chat client for OpenAI-compatible streaming endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
}

func main() {
	// SIGTERM ends the process; SIGINT is handled per reply inside chat.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	root.SetVersionTemplate(fmt.Sprintf("mirau %s (commit %s, built %s)\n", Version, GitCommit, BuildDate))

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
