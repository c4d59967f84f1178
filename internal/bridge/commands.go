// Package bridge exposes the update operations to a host front end over a
// local WebSocket, and forwards update events back to it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "notepad/internal/errors"
	"notepad/internal/update"
)

// Host command names.
const (
	CmdCheckForUpdates    = "check-for-updates"
	CmdDownloadUpdate     = "download-update"
	CmdInstallUpdate      = "install-update"
	CmdPerformAutoUpdate  = "perform-auto-update"
	CmdStartUpdateChecker = "start-update-checker"
	CmdStopUpdateChecker  = "stop-update-checker"
)

// Request is a command sent by the host.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response answers a Request. Failures are reported as a plain message.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Updater is the user-triggered update flow.
type Updater interface {
	Check(ctx context.Context) (update.VersionInfo, error)
	Download(ctx context.Context, url string) (string, error)
	Install(ctx context.Context, stagedPath string) error
	PerformAutoUpdate(ctx context.Context) (update.Summary, error)
}

// Checker is the background update checker.
type Checker interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
}

// Commands maps host commands onto the updater and the checker.
type Commands struct {
	updater Updater
	checker Checker
	// lifetime bounds a checker started by a host command; request contexts
	// end with the request.
	lifetime context.Context
}

// NewCommands creates the command table. A checker started through it runs
// until Stop is called or lifetime is cancelled.
func NewCommands(lifetime context.Context, updater Updater, checker Checker) *Commands {
	if lifetime == nil {
		lifetime = context.Background()
	}
	return &Commands{updater: updater, checker: checker, lifetime: lifetime}
}

// CheckForUpdates resolves the latest release.
func (c *Commands) CheckForUpdates(ctx context.Context) (update.VersionInfo, string) {
	info, err := c.updater.Check(ctx)
	return info, errString(err)
}

// DownloadUpdate stages the asset at url and returns its path.
func (c *Commands) DownloadUpdate(ctx context.Context, url string) (string, string) {
	if strings.TrimSpace(url) == "" {
		return "", errString(invalidArg("url is required"))
	}
	path, err := c.updater.Download(ctx, url)
	return path, errString(err)
}

// InstallUpdate swaps in a staged binary.
func (c *Commands) InstallUpdate(ctx context.Context, path string) string {
	if strings.TrimSpace(path) == "" {
		return errString(invalidArg("path is required"))
	}
	return errString(c.updater.Install(ctx, path))
}

// PerformAutoUpdate runs check, download and install in order.
func (c *Commands) PerformAutoUpdate(ctx context.Context) (update.Summary, string) {
	summary, err := c.updater.PerformAutoUpdate(ctx)
	return summary, errString(err)
}

// CheckerState is the result of the checker commands.
type CheckerState struct {
	Running bool   `json:"running"`
	Message string `json:"message,omitempty"`
}

// StartUpdateChecker starts the background checker. Starting a running
// checker succeeds and reports that it was already running.
func (c *Commands) StartUpdateChecker() (CheckerState, string) {
	err := c.checker.Start(c.lifetime)
	if errors.Is(err, update.ErrAlreadyRunning) {
		return CheckerState{Running: true, Message: "already running"}, ""
	}
	if err != nil {
		return CheckerState{Running: c.checker.Running()}, err.Error()
	}
	return CheckerState{Running: c.checker.Running(), Message: "started"}, ""
}

// StopUpdateChecker stops the background checker. It never fails.
func (c *Commands) StopUpdateChecker() (CheckerState, string) {
	c.checker.Stop()
	return CheckerState{Running: c.checker.Running(), Message: "stopped"}, ""
}

// Dispatch runs req and builds its response.
func (c *Commands) Dispatch(ctx context.Context, req Request) Response {
	result, msg := c.run(ctx, req)
	return Response{
		ID:     req.ID,
		OK:     msg == "",
		Result: result,
		Error:  msg,
	}
}

func (c *Commands) run(ctx context.Context, req Request) (any, string) {
	switch req.Command {
	case CmdCheckForUpdates:
		return c.CheckForUpdates(ctx)
	case CmdDownloadUpdate:
		var args struct {
			URL string `json:"url"`
		}
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, errString(err)
		}
		return c.DownloadUpdate(ctx, args.URL)
	case CmdInstallUpdate:
		var args struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(req.Args, &args); err != nil {
			return nil, errString(err)
		}
		return nil, c.InstallUpdate(ctx, args.Path)
	case CmdPerformAutoUpdate:
		return c.PerformAutoUpdate(ctx)
	case CmdStartUpdateChecker:
		return c.StartUpdateChecker()
	case CmdStopUpdateChecker:
		return c.StopUpdateChecker()
	default:
		return nil, errString(apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("unknown command %q", req.Command), nil))
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "invalid args", err)
	}
	return nil
}

func invalidArg(msg string) error {
	return apperrors.New(apperrors.CodeInvalidArgument, msg, nil)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
