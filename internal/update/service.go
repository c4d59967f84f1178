package update

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	apperrors "notepad/internal/errors"
	"notepad/internal/events"
)

// ErrNoAsset is returned when an update exists but no release asset matches
// the running platform.
var ErrNoAsset = apperrors.New(apperrors.CodeNoAsset, "no downloadable asset for this platform", nil)

// ReleaseResolver decides whether a newer release exists.
type ReleaseResolver interface {
	Resolve(ctx context.Context) (VersionInfo, error)
}

// AssetDownloader stages a release asset on disk and returns its path.
type AssetDownloader interface {
	Download(ctx context.Context, url string) (string, error)
}

// BinaryInstaller replaces the running executable with a staged file.
type BinaryInstaller interface {
	Install(ctx context.Context, stagedPath string) error
}

// Service runs the user-triggered update flow: resolve, download, install.
// Every failure is reported as an error-stage progress event and returned.
type Service struct {
	resolver   ReleaseResolver
	downloader AssetDownloader
	installer  BinaryInstaller
	emitter    events.Emitter
	log        *log.Entry
}

// NewService wires the three update stages together.
func NewService(r ReleaseResolver, d AssetDownloader, i BinaryInstaller, emitter events.Emitter, logger *log.Entry) *Service {
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Service{
		resolver:   r,
		downloader: d,
		installer:  i,
		emitter:    emitter,
		log:        logger,
	}
}

// Check resolves the latest release without emitting any events.
func (s *Service) Check(ctx context.Context) (VersionInfo, error) {
	return s.resolver.Resolve(ctx)
}

// Download stages url, reporting a failure as an error event.
func (s *Service) Download(ctx context.Context, url string) (string, error) {
	path, err := s.downloader.Download(ctx, url)
	if err != nil {
		return "", s.fail("download update", err)
	}
	return path, nil
}

// Install installs a staged file, reporting a failure as an error event.
func (s *Service) Install(ctx context.Context, stagedPath string) error {
	if err := s.installer.Install(ctx, stagedPath); err != nil {
		return s.fail("install update", err)
	}
	return nil
}

// PerformAutoUpdate runs the whole flow. The stages run strictly in order
// with no retries. When the install succeeds the installer normally ends the
// process, so a returned Summary with Updated set is only seen in tests or
// with a custom exit function.
func (s *Service) PerformAutoUpdate(ctx context.Context) (Summary, error) {
	s.emit(Progress{Stage: StageChecking, Progress: 0, Message: "Checking for updates"})

	info, err := s.resolver.Resolve(ctx)
	if err != nil {
		return Summary{}, s.fail("check for updates", err)
	}

	if !info.HasUpdate {
		s.emit(Progress{Stage: StageCompleted, Progress: 1, Message: "Already on the latest version"})
		return Summary{Info: info, Message: "already latest"}, nil
	}

	if info.DownloadURL == "" {
		return Summary{Info: info}, s.fail("select download", ErrNoAsset)
	}

	s.log.WithFields(log.Fields{"from": info.CurrentVersion, "to": info.LatestVersion}).Info("starting update")

	staged, err := s.downloader.Download(ctx, info.DownloadURL)
	if err != nil {
		return Summary{Info: info}, s.fail("download update", err)
	}

	if err := s.installer.Install(ctx, staged); err != nil {
		return Summary{Info: info, StagedPath: staged}, s.fail("install update", err)
	}

	return Summary{
		Info:       info,
		Updated:    true,
		StagedPath: staged,
		Message:    fmt.Sprintf("updated to %s", info.LatestVersion),
	}, nil
}

// fail wraps err with the failed action and emits it as an error event.
func (s *Service) fail(action string, err error) error {
	wrapped := fmt.Errorf("%s: %w", action, err)
	s.log.WithError(err).WithField("action", action).Warn("update step failed")
	s.emit(Progress{
		Stage:    StageError,
		Progress: 0,
		Message:  "Update failed",
		Error:    wrapped.Error(),
	})
	return wrapped
}

func (s *Service) emit(p Progress) {
	s.emitter.Emit(events.UpdateProgress, p)
}
