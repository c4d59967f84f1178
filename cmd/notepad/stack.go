package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"notepad/internal/config"
	"notepad/internal/debug"
	"notepad/internal/events"
	"notepad/internal/history"
	"notepad/internal/update"
)

// updateStack is the resolver, downloader and installer wired from config.
type updateStack struct {
	exePath  string
	resolver update.ReleaseResolver
	service  *update.Service
	history  *history.Store
}

type stackOptions struct {
	emitter events.Emitter
	// followBus records flow outcomes by following a bus instead of
	// wrapping the emitter.
	followBus bool
	installer []update.InstallerOption
}

func executablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

func newResolver() *update.Resolver {
	opts := []update.ResolverOption{
		update.WithRepository(config.GetString(config.KeyUpdateRepoOwner), config.GetString(config.KeyUpdateRepoName)),
		update.WithUserAgent(config.GetString(config.KeyUpdateUserAgent)),
		update.WithTimeout(config.GetDuration(config.KeyUpdateCheckTimeout)),
		update.WithResolverLogger(debug.Logger("resolver")),
	}
	if endpoint := strings.TrimSpace(config.GetString(config.KeyUpdateEndpoint)); endpoint != "" {
		opts = append(opts, update.WithEndpoint(endpoint))
	}
	if suffix := strings.TrimSpace(config.GetString(config.KeyUpdateAssetSuffix)); suffix != "" {
		opts = append(opts, update.WithAssetSuffix(suffix))
	}
	return update.NewResolver(Version, opts...)
}

// openHistory opens the configured history database.
func openHistory(ctx context.Context) (*history.Store, error) {
	path := strings.TrimSpace(config.GetString(config.KeyHistoryPath))
	if path == "" {
		var err error
		if path, err = history.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return history.Open(ctx, path)
}

// buildStack wires the update components. History is best-effort: when the
// database cannot be opened, updates still work and nothing is recorded.
func buildStack(ctx context.Context, opts stackOptions) (*updateStack, error) {
	exe, err := executablePath()
	if err != nil {
		return nil, err
	}

	emitter := opts.emitter
	if emitter == nil {
		emitter = events.Discard
	}

	var resolver update.ReleaseResolver = newResolver()
	store, err := openHistory(ctx)
	if err != nil {
		debug.Logger("history").WithError(err).Warn("history disabled")
		store = nil
	}
	if store != nil {
		resolver = history.NewRecordingResolver(resolver, store, debug.Logger("history"))
		if !opts.followBus {
			emitter = events.Multi{emitter, store.Emitter(debug.Logger("history"))}
		}
	}

	downloader := update.NewDownloader(exe, emitter,
		update.WithIdleTimeout(config.GetDuration(config.KeyUpdateDownloadIdleTimeout)),
		update.WithDownloadUserAgent(config.GetString(config.KeyUpdateUserAgent)),
		update.WithDownloaderLogger(debug.Logger("downloader")),
	)
	installerOpts := append([]update.InstallerOption{
		update.WithInstallerLogger(debug.Logger("installer")),
	}, opts.installer...)
	installer := update.NewInstaller(exe, emitter, installerOpts...)

	return &updateStack{
		exePath:  exe,
		resolver: resolver,
		service:  update.NewService(resolver, downloader, installer, emitter, debug.Logger("update")),
		history:  store,
	}, nil
}

// Close releases the history database.
func (s *updateStack) Close() {
	if s == nil || s.history == nil {
		return
	}
	if err := s.history.Close(); err != nil {
		debug.Logger("history").WithError(err).Warn("close history")
	}
}

// noRelaunch leaves the new binary for the next start; the stale backup is
// removed by startup recovery.
func noRelaunch(string, string, []string) error {
	return nil
}
