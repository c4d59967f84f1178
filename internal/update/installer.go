package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	apperrors "notepad/internal/errors"
	"notepad/internal/events"
)

// BackupSuffix is appended to the executable path for the pre-swap backup.
const BackupSuffix = ".old"

// Error variables for installer-specific errors.
var (
	ErrStagedFileMissing = fmt.Errorf("staged file not found")
	ErrPermissionDenied  = fmt.Errorf("permission denied")
)

// BackupPath returns the backup file path for an executable.
func BackupPath(exePath string) string {
	return exePath + BackupSuffix
}

// fileSystem is the subset of os used by the installer.
type fileSystem interface {
	Stat(name string) (os.FileInfo, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
}

type osFileSystem struct{}

func (osFileSystem) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (osFileSystem) Rename(oldpath, newpath string) error  { return os.Rename(oldpath, newpath) }
func (osFileSystem) Remove(name string) error              { return os.Remove(name) }

// Relauncher starts the freshly installed executable. It owns deleting
// backupPath once the new process no longer needs it.
type Relauncher func(exePath, backupPath string, args []string) error

// Installer swaps the running executable for a staged one and relaunches.
type Installer struct {
	exePath  string
	args     []string
	fs       fileSystem
	writable func(dir string) error
	relaunch Relauncher
	exit     func(code int)
	emitter  events.Emitter
	log      *log.Entry
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithRelaunchArgs sets the arguments the new executable is started with.
func WithRelaunchArgs(args ...string) InstallerOption {
	return func(i *Installer) {
		i.args = append([]string(nil), args...)
	}
}

// WithRelauncher replaces the platform relaunch strategy.
func WithRelauncher(r Relauncher) InstallerOption {
	return func(i *Installer) {
		if r != nil {
			i.relaunch = r
		}
	}
}

// WithExitFunc replaces os.Exit, which is called after a successful hand-off.
func WithExitFunc(exit func(int)) InstallerOption {
	return func(i *Installer) {
		if exit != nil {
			i.exit = exit
		}
	}
}

// WithInstallerLogger sets the logger used for diagnostics.
func WithInstallerLogger(entry *log.Entry) InstallerOption {
	return func(i *Installer) {
		if entry != nil {
			i.log = entry
		}
	}
}

// NewInstaller creates an installer replacing exePath.
func NewInstaller(exePath string, emitter events.Emitter, opts ...InstallerOption) *Installer {
	if emitter == nil {
		emitter = events.Discard
	}
	i := &Installer{
		exePath:  exePath,
		fs:       osFileSystem{},
		writable: checkWritable,
		relaunch: relaunch,
		exit:     os.Exit,
		emitter:  emitter,
		log:      log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install replaces the executable with newPath and hands off to the new
// process. On success the exit function is called and Install only returns
// if that function returns (as it does in tests).
//
// Only the rename of the staged file is rolled back: if it fails, the backup
// is renamed back to the executable path. A failed rollback is logged and the
// original error is returned.
func (i *Installer) Install(ctx context.Context, newPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.emit(StageInstalling, 0, "Preparing installation")

	if _, err := i.fs.Stat(newPath); err != nil {
		return apperrors.New(apperrors.CodeFilesystem, "validate staged file", fmt.Errorf("%w: %v", ErrStagedFileMissing, err))
	}
	if err := i.writable(filepath.Dir(i.exePath)); err != nil {
		return apperrors.New(apperrors.CodeFilesystem, "check install directory", fmt.Errorf("%w: %v", ErrPermissionDenied, err))
	}

	backup := BackupPath(i.exePath)
	if _, err := i.fs.Stat(backup); err == nil {
		if err := i.fs.Remove(backup); err != nil {
			return apperrors.New(apperrors.CodeFilesystem, "remove previous backup", err)
		}
		i.log.WithField("path", backup).Debug("removed stale backup")
	}

	if err := i.fs.Rename(i.exePath, backup); err != nil {
		return apperrors.New(apperrors.CodeFilesystem, "back up current executable", err)
	}
	i.emit(StageInstalling, 0.25, "Backed up current version")

	if err := i.fs.Rename(newPath, i.exePath); err != nil {
		if rbErr := i.fs.Rename(backup, i.exePath); rbErr != nil {
			i.log.WithError(rbErr).WithField("backup", backup).Error("restore previous executable failed")
		} else {
			i.log.WithField("path", i.exePath).Warn("restored previous executable after failed install")
		}
		return apperrors.New(apperrors.CodeFilesystem, "install new executable", err)
	}
	i.emit(StageInstalling, 0.5, "Installed new version")

	i.emit(StageInstalling, 0.75, "Preparing to restart")
	i.emit(StageCompleted, 1, "Update installed, restarting")

	// Past the swap there is nothing to roll back; the process is about to exit.
	if err := i.relaunch(i.exePath, backup, i.args); err != nil {
		i.log.WithError(err).Error("relaunch failed; start the application manually")
	}
	i.exit(0)
	return nil
}

func (i *Installer) emit(stage Stage, progress float64, message string) {
	i.emitter.Emit(events.UpdateProgress, Progress{
		Stage:    stage,
		Progress: progress,
		Message:  message,
	})
}
