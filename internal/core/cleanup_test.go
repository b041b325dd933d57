package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shirou/gopsutil/process"

	"anidl/internal/series"
	"anidl/internal/utils"
)

func TestArtifactPaths(t *testing.T) {
	task := series.Task{Series: series.Descriptor{Path: "/media/show"}, FinalFilename: "Show_Ep_02.mkv"}
	got := ArtifactPaths(task, "/out")
	want := []string{
		"/media/show/Show_Ep_02.mkv",
		"/media/show/Show_Ep_02.mkv.aria2",
		"/out/Show_Ep_02.mkv",
		"/out/Show_Ep_02.mkv.log",
	}
	if len(got) != len(want) {
		t.Fatalf("paths = %v", got)
	}
	for i := range want {
		if got[i] != filepath.FromSlash(want[i]) {
			t.Errorf("path %d = %s, want %s", i, got[i], want[i])
		}
	}
	if ArtifactPaths(series.Task{}, "/out") != nil {
		t.Error("unreconciled task should have no artifacts")
	}
}

func TestRemoveArtifactsToleratesMissingFiles(t *testing.T) {
	seriesDir, outDir := t.TempDir(), t.TempDir()
	task := series.Task{Series: series.Descriptor{Path: seriesDir}, FinalFilename: "Show_Ep_01.mkv"}
	for _, p := range []string{
		filepath.Join(seriesDir, "Show_Ep_01.mkv"),
		filepath.Join(outDir, "Show_Ep_01.mkv.log"),
	} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	keep := filepath.Join(seriesDir, "Show_Ep_00.mkv")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := &Cleanup{OutputDir: outDir, Logger: utils.Discard()}
	c.RemoveArtifacts([]series.Task{task})

	if left := dirEntries(t, outDir); len(left) != 0 {
		t.Errorf("output dir = %v", left)
	}
	if left := dirEntries(t, seriesDir); len(left) != 1 || left[0] != "Show_Ep_00.mkv" {
		t.Errorf("series dir = %v", left)
	}
}

func TestSweepProcessesDisabledOrUnavailable(t *testing.T) {
	c := &Cleanup{Sweep: false, Logger: utils.Discard()}
	if n := c.SweepProcesses(); n != 0 {
		t.Fatalf("disabled sweep killed %d", n)
	}

	c = &Cleanup{
		Sweep:  true,
		Since:  time.Now(),
		Logger: utils.Discard(),
		listProcesses: func() ([]*process.Process, error) {
			return nil, errors.New("permission denied")
		},
	}
	if n := c.SweepProcesses(); n != 0 {
		t.Fatalf("unavailable sweep killed %d", n)
	}
}

func TestCleanupMatchesToolNames(t *testing.T) {
	c := &Cleanup{ToolNames: []string{"/usr/bin/aria2c", "ffmpeg", "/opt/tools/very-long-encoder-name"}}
	cases := map[string]bool{
		"aria2c":          true,
		"ffmpeg":          true,
		"ffprobe":         false,
		"very-long-encod": true,
		"very-long":       false,
		"bash":            false,
	}
	for name, want := range cases {
		if got := c.matches(name); got != want {
			t.Errorf("matches(%q) = %v, want %v", name, got, want)
		}
	}
}
