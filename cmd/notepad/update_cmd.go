package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"notepad/internal/config"
	"notepad/internal/debug"
	"notepad/internal/events"
	"notepad/internal/update"
)

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for, download and install releases",
	}
	cmd.AddCommand(
		newUpdateCheckCmd(),
		newUpdateDownloadCmd(),
		newUpdateInstallCmd(),
		newUpdateApplyCmd(),
		newUpdateWatchCmd(),
		newUpdateHistoryCmd(),
		newUpdateAutoCheckCmd(),
	)
	return cmd
}

func newUpdateCheckCmd() *cobra.Command {
	var jsonOut, copyURL bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check GitHub for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := buildStack(cmd.Context(), stackOptions{})
			if err != nil {
				return err
			}
			defer stack.Close()

			info, err := stack.service.Check(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, info)
			}
			printCheckResult(out, info, config.GetString(config.KeyOutputFormat), terminalWidth())
			if copyURL {
				copyDownloadURL(cmd.ErrOrStderr(), info)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&copyURL, "copy", false, "Copy the download URL to the clipboard")
	return cmd
}

func copyDownloadURL(w io.Writer, info update.VersionInfo) {
	if info.DownloadURL == "" {
		_, _ = fmt.Fprintln(w, "Nothing to copy.")
		return
	}
	if err := clipboard.WriteAll(info.DownloadURL); err != nil {
		_, _ = fmt.Fprintf(w, "Could not copy to clipboard: %v\n", err)
		return
	}
	_, _ = fmt.Fprintln(w, "Copied download URL to clipboard.")
}

func newUpdateDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <url>",
		Short: "Download a release asset next to the executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := newProgressView(cmd.ErrOrStderr())
			stack, err := buildStack(cmd.Context(), stackOptions{emitter: view})
			if err != nil {
				view.Stop()
				return err
			}
			defer stack.Close()

			path, err := stack.service.Download(cmd.Context(), args[0])
			view.Stop()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newUpdateInstallCmd() *cobra.Command {
	var relaunch bool
	cmd := &cobra.Command{
		Use:   "install <path>",
		Short: "Replace the executable with a downloaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view := newProgressView(cmd.ErrOrStderr())
			stack, err := buildStack(cmd.Context(), stackOptions{
				emitter:   view,
				installer: installerOptions(cmd.OutOrStdout(), view, relaunch),
			})
			if err != nil {
				view.Stop()
				return err
			}
			defer stack.Close()

			err = stack.service.Install(cmd.Context(), args[0])
			view.Stop()
			return err
		},
	}
	cmd.Flags().BoolVar(&relaunch, "relaunch", false, "Start the new executable after installing")
	return cmd
}

func newUpdateApplyCmd() *cobra.Command {
	var relaunch bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Check, download and install the latest release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view := newProgressView(cmd.ErrOrStderr())
			stack, err := buildStack(cmd.Context(), stackOptions{
				emitter:   view,
				installer: installerOptions(cmd.OutOrStdout(), view, relaunch),
			})
			if err != nil {
				view.Stop()
				return err
			}
			defer stack.Close()

			summary, err := stack.service.PerformAutoUpdate(cmd.Context())
			view.Stop()
			if err != nil {
				return err
			}
			if !summary.Updated {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Already on the latest version (%s).\n", summary.Info.CurrentVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&relaunch, "relaunch", false, "Start the new executable after installing")
	return cmd
}

// newProgressView picks the bubbletea display for color terminals and the
// line spinner otherwise.
func newProgressView(w io.Writer) progressView {
	if plainOutput(w, config.GetString(config.KeyOutputFormat)) {
		return newProgressSpinner(w, 0)
	}
	return newProgressDisplay(w)
}

// installerOptions makes a successful install finish the display and report
// before the process exits.
func installerOptions(w io.Writer, view progressView, relaunch bool) []update.InstallerOption {
	opts := []update.InstallerOption{
		update.WithExitFunc(func(code int) {
			view.Stop()
			reportInstalled(w, relaunch)
			debug.Close()
			os.Exit(code)
		}),
	}
	if !relaunch {
		opts = append(opts, update.WithRelauncher(noRelaunch))
	}
	return opts
}

// reportInstalled tells the user to restart unless the new binary was
// already started.
func reportInstalled(w io.Writer, relaunched bool) {
	if relaunched {
		return
	}
	_, _ = fmt.Fprintln(w, "Update installed. Restart notepad to use the new version.")
}

func newUpdateWatchCmd() *cobra.Command {
	var (
		interval time.Duration
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Check periodically and print update events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var emitter events.Emitter = newLineEmitter(out)
			if jsonOut {
				emitter = events.NewJSONWriter(out)
			}

			stack, err := buildStack(ctx, stackOptions{emitter: emitter})
			if err != nil {
				return err
			}
			defer stack.Close()

			explicit := cmd.Flags().Changed("interval")
			if !explicit {
				interval = config.GetDuration(config.KeyUpdateCheckInterval)
			}
			sched := update.NewScheduler(stack.resolver, emitter,
				update.WithInterval(interval),
				update.WithSchedulerLogger(debug.Logger("scheduler")),
			)

			if !explicit {
				stopWatch, err := config.Watch(func() {
					sched.SetInterval(config.GetDuration(config.KeyUpdateCheckInterval))
				})
				if err != nil {
					debug.Logger("config").WithError(err).Warn("config watch unavailable")
				} else {
					defer func() { _ = stopWatch() }()
				}
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", config.DefaultCheckInterval, "Time between checks")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print events as JSON lines")
	return cmd
}

// newLineEmitter prints one human-readable line per event.
func newLineEmitter(w io.Writer) events.Emitter {
	return events.EmitterFunc(func(name events.Name, payload any) {
		stamp := time.Now().Format("15:04:05")
		switch p := payload.(type) {
		case update.VersionInfo:
			_, _ = fmt.Fprintf(w, "[%s] update available: %s -> %s\n", stamp, p.CurrentVersion, p.LatestVersion)
		case update.Progress:
			_, _ = fmt.Fprintf(w, "[%s] %s\n", stamp, formatStageMessage(p))
		default:
			_, _ = fmt.Fprintf(w, "[%s] %s\n", stamp, name)
		}
	})
}

func newUpdateAutoCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "auto-check on|off",
		Short:     "Turn background update checks under `notepad serve` on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := parseOnOff(args[0])
			if err != nil {
				return err
			}
			if err := config.Persist(config.KeyUpdateAutoCheck, enabled); err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Automatic update checks %s.\n", state)
			return nil
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
