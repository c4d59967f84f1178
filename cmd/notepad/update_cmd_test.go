package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"notepad/internal/config"
	"notepad/internal/history"
	"notepad/internal/update"
)

func releaseServer(t *testing.T, tag string) *httptest.Server {
	t.Helper()
	asset := "notepad" + update.DefaultAssetSuffix()
	body := fmt.Sprintf(`{
  "tag_name": %q,
  "body": "Faster startup",
  "published_at": "2025-06-01T12:00:00Z",
  "assets": [{"name": %q, "browser_download_url": "https://example.com/%s", "size": 42}]
}`, tag, asset, asset)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

// runCLI executes the root command with a fresh config rooted in a temp dir.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func withVersion(t *testing.T, v string) {
	t.Helper()
	orig := Version
	Version = v
	t.Cleanup(func() { Version = orig })
}

func TestUpdateCheckJSON(t *testing.T) {
	cleanup := config.ResetForTesting(t)
	defer cleanup()
	withVersion(t, "1.0.0")

	server := releaseServer(t, "v1.1.0")
	dbPath := filepath.Join(t.TempDir(), "history.db")

	out, err := runCLI(t, "update", "check", "--json", "--endpoint", server.URL, "--history", dbPath)
	if err != nil {
		t.Fatalf("update check: %v", err)
	}

	var info update.VersionInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if !info.HasUpdate || info.LatestVersion != "1.1.0" || info.CurrentVersion != "1.0.0" {
		t.Errorf("unexpected info: %+v", info)
	}
	if !strings.HasSuffix(info.DownloadURL, update.DefaultAssetSuffix()) {
		t.Errorf("download URL = %q", info.DownloadURL)
	}

	out, err = runCLI(t, "update", "history", "--json", "--history", dbPath)
	if err != nil {
		t.Fatalf("update history: %v", err)
	}
	var entries []history.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history %q: %v", out, err)
	}
	if len(entries) != 1 || entries[0].Kind != history.KindCheck || !entries[0].HasUpdate {
		t.Errorf("unexpected history: %+v", entries)
	}
}

func TestUpdateCheckPlain(t *testing.T) {
	cleanup := config.ResetForTesting(t)
	defer cleanup()
	withVersion(t, "1.1.0")

	server := releaseServer(t, "v1.1.0")
	out, err := runCLI(t, "update", "check", "--output-format", "plain",
		"--endpoint", server.URL, "--history", filepath.Join(t.TempDir(), "h.db"))
	if err != nil {
		t.Fatalf("update check: %v", err)
	}
	if !strings.Contains(out, "You're on the latest version.") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestUpdateCheckReportsNetworkErrors(t *testing.T) {
	cleanup := config.ResetForTesting(t)
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := runCLI(t, "update", "check", "--endpoint", server.URL, "--history", filepath.Join(t.TempDir(), "h.db"))
	if err == nil {
		t.Fatal("expected error from failing endpoint")
	}
}

func TestUpdateAutoCheckPersists(t *testing.T) {
	cleanup := config.ResetForTesting(t)
	defer cleanup()

	out, err := runCLI(t, "update", "auto-check", "on")
	if err != nil {
		t.Fatalf("auto-check on: %v", err)
	}
	if !strings.Contains(out, "enabled") {
		t.Errorf("unexpected output %q", out)
	}
	if !config.GetBool(config.KeyUpdateAutoCheck) {
		t.Error("expected update.auto-check to be true")
	}

	if _, err := runCLI(t, "update", "auto-check", "off"); err != nil {
		t.Fatalf("auto-check off: %v", err)
	}
	if config.GetBool(config.KeyUpdateAutoCheck) {
		t.Error("expected update.auto-check to be false")
	}

	if _, err := runCLI(t, "update", "auto-check", "maybe"); err == nil {
		t.Error("expected error for invalid value")
	}
}

func TestParseOnOff(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "ON": true, "yes": true, "off": false, "0": false} {
		got, err := parseOnOff(in)
		if err != nil || got != want {
			t.Errorf("parseOnOff(%q) = %v, %v", in, got, err)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	cleanup := config.ResetForTesting(t)
	defer cleanup()

	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "notepad version ") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestReportInstalled(t *testing.T) {
	var buf bytes.Buffer
	reportInstalled(&buf, false)
	if !strings.Contains(buf.String(), "Restart notepad") {
		t.Errorf("output = %q, want a restart hint", buf.String())
	}

	buf.Reset()
	reportInstalled(&buf, true)
	if buf.Len() != 0 {
		t.Errorf("relaunched install should not ask for a restart, got %q", buf.String())
	}
}
