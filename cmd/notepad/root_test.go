package main

import (
	"testing"

	"github.com/spf13/cobra"

	"notepad/internal/config"
	apperrors "notepad/internal/errors"
)

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		in        string
		owner     string
		name      string
		expectErr bool
	}{
		{in: "hhyufan/miaogu-notepad", owner: "hhyufan", name: "miaogu-notepad"},
		{in: "  me / fork  ", owner: "me", name: "fork"},
		{in: "no-slash", expectErr: true},
		{in: "/name", expectErr: true},
		{in: "owner/", expectErr: true},
		{in: "a/b/c", expectErr: true},
	}
	for _, tt := range tests {
		owner, name, err := splitRepo(tt.in)
		if tt.expectErr {
			if err == nil {
				t.Errorf("splitRepo(%q) expected error", tt.in)
			} else if !apperrors.IsCode(err, apperrors.CodeConfigurationError) {
				t.Errorf("splitRepo(%q) error code = %q", tt.in, apperrors.CodeOf(err))
			}
			continue
		}
		if err != nil {
			t.Errorf("splitRepo(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if owner != tt.owner || name != tt.name {
			t.Errorf("splitRepo(%q) = %q, %q; want %q, %q", tt.in, owner, name, tt.owner, tt.name)
		}
	}
}

func newFlagTestCmd() (*cobra.Command, *globalOptions) {
	return &cobra.Command{Use: "notepad-test"}, &globalOptions{}
}

func TestComputeOverridesOnlyIncludesChangedFlags(t *testing.T) {
	cmd, opts := newFlagTestCmd()
	cmd.PersistentFlags().StringVar(&opts.repo, "repo", "", "")
	cmd.PersistentFlags().StringVar(&opts.endpoint, "endpoint", "", "")
	cmd.PersistentFlags().StringVar(&opts.historyPath, "history", "", "")
	cmd.PersistentFlags().StringVar(&opts.outputFormat, "output-format", "", "")

	if err := cmd.ParseFlags([]string{"--repo", "me/fork", "--output-format", " plain "}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	overrides, err := computeOverrides(cmd, opts)
	if err != nil {
		t.Fatalf("computeOverrides: %v", err)
	}
	want := map[string]any{
		config.KeyUpdateRepoOwner: "me",
		config.KeyUpdateRepoName:  "fork",
		config.KeyOutputFormat:    "plain",
	}
	if len(overrides) != len(want) {
		t.Fatalf("overrides = %v, want %v", overrides, want)
	}
	for k, v := range want {
		if overrides[k] != v {
			t.Errorf("overrides[%q] = %v, want %v", k, overrides[k], v)
		}
	}
}

func TestComputeOverridesRejectsBadRepo(t *testing.T) {
	cmd, opts := newFlagTestCmd()
	cmd.PersistentFlags().StringVar(&opts.repo, "repo", "", "")
	if err := cmd.ParseFlags([]string{"--repo", "broken"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := computeOverrides(cmd, opts); err == nil {
		t.Fatal("expected error for malformed --repo")
	}
}
