package update

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/windows"
)

// relaunch writes the restart script and starts it detached. Windows will not
// delete a running image, so the script removes the backup after we exit.
func relaunch(exePath, backupPath string, args []string) error {
	script := filepath.Join(filepath.Dir(exePath), RestartScriptName)
	if err := os.WriteFile(script, []byte(restartScript(exePath, backupPath, args)), 0o600); err != nil {
		return fmt.Errorf("write restart script: %w", err)
	}

	//nolint:gosec // G204: script path is derived from our own executable location
	cmd := exec.Command("cmd", "/C", script)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
		HideWindow:    true,
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start restart script: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("release restart script: %w", err)
	}
	return nil
}

// checkWritable verifies the current process can create files in dir.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".notepad-update-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
