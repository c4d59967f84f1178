package update

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// RecoveryReport lists what Recover changed on disk.
type RecoveryReport struct {
	RemovedScript  bool `json:"removed_script"`
	RestoredBackup bool `json:"restored_backup"`
	RemovedBackup  bool `json:"removed_backup"`
}

// Changed reports whether Recover touched anything.
func (r RecoveryReport) Changed() bool {
	return r.RemovedScript || r.RestoredBackup || r.RemovedBackup
}

// Recover cleans up after an install that was interrupted, using the .old
// backup as the marker:
//
//	exe missing, .old present  -> rename .old back to exe
//	exe present, .old present  -> the swap finished; delete .old
//
// A leftover restart script is always removed. A staged .new is left in place
// so a separate install step can still pick it up.
func Recover(exePath string, logger *log.Entry) (RecoveryReport, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	var report RecoveryReport
	var merr *multierror.Error

	script := filepath.Join(filepath.Dir(exePath), RestartScriptName)
	switch err := os.Remove(script); {
	case err == nil:
		report.RemovedScript = true
		logger.WithField("path", script).Info("removed leftover restart script")
	case !os.IsNotExist(err):
		merr = multierror.Append(merr, fmt.Errorf("remove restart script: %w", err))
	}

	backup := BackupPath(exePath)
	if _, err := os.Stat(backup); err != nil {
		if !os.IsNotExist(err) {
			merr = multierror.Append(merr, fmt.Errorf("stat backup: %w", err))
		}
		return report, merr.ErrorOrNil()
	}

	_, exeErr := os.Stat(exePath)
	switch {
	case os.IsNotExist(exeErr):
		if err := os.Rename(backup, exePath); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("restore backup: %w", err))
			break
		}
		report.RestoredBackup = true
		logger.WithField("path", exePath).Warn("restored executable from backup after interrupted update")
	case exeErr != nil:
		merr = multierror.Append(merr, fmt.Errorf("stat executable: %w", exeErr))
	default:
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			merr = multierror.Append(merr, fmt.Errorf("remove backup: %w", err))
			break
		}
		report.RemovedBackup = true
		logger.WithField("path", backup).Debug("removed backup from completed update")
	}

	return report, merr.ErrorOrNil()
}
