// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/cloud"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/config"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/schema"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/session"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	ExitStorageError  = 6
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
)

// =============================================================================
// COMMAND ERROR
// =============================================================================

// CommandError is an error with a chosen exit code.
type CommandError struct {
	Code    int
	Message string
	Cause   error
}

func (e *CommandError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

func usageError(format string, args ...any) error {
	return &CommandError{Code: ExitUsageError, Message: fmt.Sprintf(format, args...)}
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code != 0 {
		return cmdErr.Code
	}

	var (
		validateErrs config.ValidateErrors
		schemaErr    *schema.ValidationError
		storeErr     *storage.StoreError
		statusErr    *cloud.StatusError
		netErr       net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, cloud.ErrAuthFailed):
		return ExitAuthError
	case errors.As(err, &validateErrs):
		return ExitConfigError
	case errors.Is(err, session.ErrUnknownChat), errors.Is(err, ErrNoChat):
		return ExitNotFoundError
	case errors.As(err, &schemaErr), errors.As(err, &storeErr):
		return ExitStorageError
	case errors.As(err, &statusErr), errors.As(err, &netErr), errors.Is(err, cloud.ErrNoBody):
		return ExitNetworkError
	}
	return ExitGeneralError
}
