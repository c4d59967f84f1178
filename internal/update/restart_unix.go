//go:build !windows

package update

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// relaunch starts the new executable in its own session and removes the
// backup. Unix keeps the old image alive while it runs, so no script is needed.
func relaunch(exePath, backupPath string, args []string) error {
	//nolint:gosec // G204: path is our own executable
	cmd := exec.Command(exePath, args...)
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start new executable: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release new executable: %w", err)
	}
	if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove backup: %w", err)
	}
	return nil
}

// checkWritable verifies the current process can create files in dir.
func checkWritable(dir string) error {
	return unix.Access(dir, unix.W_OK)
}
