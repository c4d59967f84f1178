package update

import (
	"strings"
)

// RestartScriptName is the transient batch file written beside the
// executable on Windows to finish an update after the process exits.
const RestartScriptName = "restart_update.bat"

// restartScript renders the batch file that waits for the old process to
// exit, removes the backup, starts the new executable and deletes itself.
func restartScript(exePath, backupPath string, args []string) string {
	var b strings.Builder
	b.WriteString("@echo off\r\n")
	b.WriteString("timeout /t 2 /nobreak >nul\r\n")
	b.WriteString(`if exist "` + backupPath + `" del /f /q "` + backupPath + `"` + "\r\n")
	b.WriteString(`start "" "` + exePath + `"`)
	for _, a := range args {
		b.WriteString(` "` + strings.ReplaceAll(a, `"`, `""`) + `"`)
	}
	b.WriteString("\r\n")
	b.WriteString(`(goto) 2>nul & del "%~f0"` + "\r\n")
	return b.String()
}
