// Package update provides self-update functionality for notepad.
//
// This package handles:
//   - Querying the GitHub releases API and deciding whether a newer build exists (Resolver)
//   - Streaming the selected asset to a staging file beside the executable (Downloader)
//   - Swapping the running executable for the staged one and relaunching (Installer)
//   - Running the three as a single user-triggered flow (Service)
//   - Periodic background checks with single-flight semantics (Scheduler)
//   - Cleaning up after a crash between install steps (Recover)
//
// Progress and availability are reported through an events.Emitter. Delivery
// is best-effort, so callers that need the current state should resolve again.
//
// Example usage:
//
//	resolver := update.NewResolver(currentVersion)
//	svc := update.NewService(resolver, update.NewDownloader(exe, emitter), update.NewInstaller(exe, emitter), emitter, logger)
//	summary, err := svc.PerformAutoUpdate(ctx)
//	if err != nil {
//	    // handle error
//	}
//
// The installed layout beside the executable is:
//
//	notepad        running executable
//	notepad.new    staged download (transient)
//	notepad.old    pre-swap backup (deleted after relaunch or on the next attempt)
package update
