package update

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	apperrors "notepad/internal/errors"
	"notepad/internal/events"
)

const (
	// ProgressInterval is the byte distance between downloading events.
	ProgressInterval = 512 * 1024

	// StagingSuffix is appended to the executable path for the staged download.
	StagingSuffix = ".new"

	readBufferSize = 32 * 1024
)

// ErrDownloadFailed is wrapped by every download failure.
var ErrDownloadFailed = fmt.Errorf("download failed")

// StagingPath returns the staging file path for an executable.
func StagingPath(exePath string) string {
	return exePath + StagingSuffix
}

// Downloader streams a release asset into the staging file beside the
// executable.
type Downloader struct {
	exePath     string
	userAgent   string
	idleTimeout time.Duration
	httpClient  *http.Client
	emitter     events.Emitter
	log         *log.Entry
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadHTTPClient sets a custom HTTP client for downloads.
func WithDownloadHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

// WithIdleTimeout aborts a download when no bytes arrive for the given
// duration. Zero disables the check.
func WithIdleTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		d.idleTimeout = timeout
	}
}

// WithDownloadUserAgent sets the User-Agent header sent with the download.
func WithDownloadUserAgent(ua string) DownloaderOption {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// WithDownloaderLogger sets the logger used for diagnostics.
func WithDownloaderLogger(entry *log.Entry) DownloaderOption {
	return func(d *Downloader) {
		if entry != nil {
			d.log = entry
		}
	}
}

// NewDownloader creates a downloader staging files beside exePath.
func NewDownloader(exePath string, emitter events.Emitter, opts ...DownloaderOption) *Downloader {
	if emitter == nil {
		emitter = events.Discard
	}
	d := &Downloader{
		exePath:   exePath,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: 0, // No timeout for downloads
		},
		emitter: emitter,
		log:     log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download streams url into <exe>.new and returns the staging path.
// A stale staging file is truncated. On failure the partial file is removed.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	staging := StagingPath(d.exePath)
	d.emit(0, "Starting download")

	touch := func() {}
	if d.idleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		watchdog := time.AfterFunc(d.idleTimeout, cancel)
		defer watchdog.Stop()
		touch = func() { watchdog.Reset(d.idleTimeout) }
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.New(apperrors.CodeNetwork, "create download request", fmt.Errorf("%w: %v", ErrDownloadFailed, err))
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.CodeNetwork, "start download", fmt.Errorf("%w: %v", ErrDownloadFailed, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperrors.New(apperrors.CodeNetwork, "start download", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode))
	}

	//nolint:gosec // G302,G304: staging file lives beside our own executable and must be executable
	f, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", apperrors.New(apperrors.CodeFilesystem, "create staging file", err)
	}

	written, err := d.copyWithProgress(ctx, f, resp.Body, resp.ContentLength, touch)
	closeErr := f.Close()
	if err == nil && closeErr != nil {
		err = apperrors.New(apperrors.CodeFilesystem, "close staging file", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(staging); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierror.Append(err, fmt.Errorf("remove partial download: %w", rmErr))
		}
		d.log.WithError(err).Warn("download failed")
		return "", err
	}

	if runtime.GOOS != "windows" {
		//nolint:gosec // G302: binary needs to be executable
		if err := os.Chmod(staging, 0o755); err != nil {
			return "", apperrors.New(apperrors.CodeFilesystem, "set executable permission", err)
		}
	}

	d.emit(1, fmt.Sprintf("Download complete (%s)", humanize.IBytes(uint64(written))))
	d.log.WithFields(log.Fields{"path": staging, "bytes": written}).Info("download staged")
	return staging, nil
}

// copyWithProgress copies body into w, emitting a downloading event every
// time the running total crosses a ProgressInterval boundary. touch is
// called after every chunk.
func (d *Downloader) copyWithProgress(ctx context.Context, w io.Writer, body io.Reader, total int64, touch func()) (int64, error) {
	buf := make([]byte, readBufferSize)
	var downloaded int64
	lastBoundary := int64(0)

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return downloaded, apperrors.New(apperrors.CodeFilesystem, "write staging file", err)
			}
			downloaded += int64(n)
			touch()

			if boundary := downloaded / ProgressInterval; boundary > lastBoundary {
				lastBoundary = boundary
				d.emit(fraction(downloaded, total), progressMessage(downloaded, total))
			}
		}
		if readErr == io.EOF {
			return downloaded, nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				readErr = fmt.Errorf("%w (%v)", readErr, ctxErr)
			}
			return downloaded, apperrors.New(apperrors.CodeNetwork, "read download stream", fmt.Errorf("%w: %v", ErrDownloadFailed, readErr))
		}
	}
}

func (d *Downloader) emit(progress float64, message string) {
	d.emitter.Emit(events.UpdateProgress, Progress{
		Stage:    StageDownloading,
		Progress: progress,
		Message:  message,
	})
}

// fraction returns downloaded/total clamped to [0,1], or 0 when the total is
// unknown.
func fraction(downloaded, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(downloaded) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}

func progressMessage(downloaded, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("Downloaded %s", humanize.IBytes(uint64(downloaded)))
	}
	return fmt.Sprintf("Downloaded %s of %s", humanize.IBytes(uint64(downloaded)), humanize.IBytes(uint64(total)))
}
