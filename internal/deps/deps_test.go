package deps

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anidl/internal/config"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
}

func TestPreflightIgnoresOptional(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Tools.Aria2c = writeStub(t, dir, "aria2c")
	cfg.Tools.FFmpeg = filepath.Join(dir, "no-ffmpeg")

	if err := Preflight(PipelineRequirements(cfg, false)); err != nil {
		t.Fatalf("ffmpeg should be optional without transcoding: %v", err)
	}
	err := Preflight(PipelineRequirements(cfg, true))
	if err == nil || !strings.Contains(err.Error(), "ffmpeg") {
		t.Fatalf("expected missing ffmpeg error, got %v", err)
	}
}
