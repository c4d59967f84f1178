package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"notepad/internal/bridge"
	"notepad/internal/config"
	"notepad/internal/debug"
	"notepad/internal/events"
	"notepad/internal/update"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the update bridge for the editor front end",
		Long: `serve exposes the update commands over a local WebSocket at /ws and
pushes update-available and update-progress events to every connected
client. When update.auto-check is set the background checker starts
immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("addr") {
				addr = config.GetString(config.KeyServeAddr)
			}

			bus := events.NewBus(0)
			stack, err := buildStack(ctx, stackOptions{
				emitter:   bus,
				followBus: true,
				installer: []update.InstallerOption{update.WithRelaunchArgs(os.Args[1:]...)},
			})
			if err != nil {
				return err
			}
			defer stack.Close()

			if stack.history != nil {
				sub, unsubscribe := bus.Subscribe()
				defer unsubscribe()
				go stack.history.Follow(ctx, sub, debug.Logger("history"))
			}

			sched := update.NewScheduler(stack.resolver, bus,
				update.WithInterval(config.GetDuration(config.KeyUpdateCheckInterval)),
				update.WithSchedulerLogger(debug.Logger("scheduler")),
			)
			defer sched.Stop()

			if config.GetBool(config.KeyUpdateAutoCheck) {
				if err := sched.Start(ctx); err != nil {
					return err
				}
			}

			stopWatch, err := config.Watch(func() {
				applyCheckerConfig(cmd, sched)
			})
			if err != nil {
				debug.Logger("config").WithError(err).Warn("config watch unavailable")
			} else {
				defer func() { _ = stopWatch() }()
			}

			srv := bridge.NewServer(bus, bridge.NewCommands(ctx, stack.service, sched), debug.Logger("bridge"))
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Update bridge listening on ws://%s/ws\n", addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", config.DefaultServeAddr, "Listen address")
	return cmd
}

// applyCheckerConfig follows config edits made while serving.
func applyCheckerConfig(cmd *cobra.Command, sched *update.Scheduler) {
	sched.SetInterval(config.GetDuration(config.KeyUpdateCheckInterval))

	want := config.GetBool(config.KeyUpdateAutoCheck)
	switch {
	case want && !sched.Running():
		if err := sched.Start(cmd.Context()); err != nil {
			debug.Logger("scheduler").WithError(err).Warn("start update checker")
		}
	case !want && sched.Running():
		sched.Stop()
	}
}
