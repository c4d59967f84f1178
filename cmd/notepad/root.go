package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"notepad/internal/config"
	"notepad/internal/debug"
	apperrors "notepad/internal/errors"
	"notepad/internal/update"
)

type globalOptions struct {
	debug        bool
	repo         string
	endpoint     string
	historyPath  string
	outputFormat string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "notepad",
		Short: "Update tooling for miaogu-notepad",
		Long: `notepad checks GitHub for new miaogu-notepad releases, downloads and
installs them, and serves a local bridge so the editor front end can drive
updates and receive progress events.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd, opts)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			debug.Close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&opts.debug, "debug", false, "Write a debug log to ~/.notepad/debug.log")
	pf.StringVar(&opts.repo, "repo", "", "Release repository as owner/name")
	pf.StringVar(&opts.endpoint, "endpoint", "", "Override the latest-release API URL")
	pf.StringVar(&opts.historyPath, "history", "", "Path to the update history database")
	pf.StringVar(&opts.outputFormat, "output-format", "", "Release notes style (rich, light, plain)")

	cmd.AddCommand(newUpdateCmd(), newServeCmd(), newVersionCmd())
	return cmd
}

func setup(cmd *cobra.Command, opts *globalOptions) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	overrides, err := computeOverrides(cmd, opts)
	if err != nil {
		return err
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return fmt.Errorf("apply flags: %w", err)
	}

	if err := debug.Init(opts.debug,
		debug.WithLevel(config.GetString(config.KeyLogLevel)),
		debug.WithFile(config.GetString(config.KeyLogFile)),
		debug.WithMaxSize(config.GetInt(config.KeyLogMaxSizeMB)),
	); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: debug log unavailable: %v\n", err)
	}

	recoverPreviousUpdate()
	return nil
}

// computeOverrides turns explicitly set flags into config overrides so that
// flags win over files and environment.
func computeOverrides(cmd *cobra.Command, opts *globalOptions) (map[string]any, error) {
	overrides := map[string]any{}
	changed := cmd.Flags().Changed

	if changed("repo") {
		owner, name, err := splitRepo(opts.repo)
		if err != nil {
			return nil, err
		}
		overrides[config.KeyUpdateRepoOwner] = owner
		overrides[config.KeyUpdateRepoName] = name
	}
	if changed("endpoint") {
		overrides[config.KeyUpdateEndpoint] = strings.TrimSpace(opts.endpoint)
	}
	if changed("history") {
		overrides[config.KeyHistoryPath] = strings.TrimSpace(opts.historyPath)
	}
	if changed("output-format") {
		overrides[config.KeyOutputFormat] = strings.TrimSpace(opts.outputFormat)
	}
	return overrides, nil
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	owner, name = strings.TrimSpace(owner), strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", apperrors.New(apperrors.CodeConfigurationError, fmt.Sprintf("invalid --repo %q, want owner/name", repo), nil)
	}
	return owner, name, nil
}

// recoverPreviousUpdate cleans up after an update that was interrupted or
// whose relaunch script has finished.
func recoverPreviousUpdate() {
	logger := debug.Logger("recover")
	exe, err := executablePath()
	if err != nil {
		logger.WithError(err).Warn("locate executable")
		return
	}
	report, err := update.Recover(exe, logger)
	if err != nil {
		logger.WithError(err).Warn("recover previous update")
	}
	if report.Changed() {
		logger.WithField("report", fmt.Sprintf("%+v", report)).Info("recovered previous update")
	}
}
