package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anidl/internal/series"
	"anidl/internal/utils"
)

func downloadTask(t *testing.T) series.Task {
	t.Helper()
	return series.Task{
		Series:        series.Descriptor{Name: "Show", Path: filepath.Join(t.TempDir(), "Show")},
		Action:        series.ActionProcess,
		DownloadURL:   "http://example.invalid/Show_Ep_01.mkv",
		RemoteEpisode: 1,
		FinalEpisode:  1,
		FinalFilename: "Show_Ep_01.mkv",
	}
}

func TestDownloadReportsProgressAndPath(t *testing.T) {
	d := &Downloader{Binary: aria2Stub(t, false), Connections: 4, Logger: utils.Discard()}
	task := downloadTask(t)
	sink := &recordingSink{}

	path, elapsed, err := d.Download(context.Background(), task, sink)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(task.Series.Path, "Show_Ep_01.mkv") {
		t.Fatalf("path = %s", path)
	}
	if data, _ := os.ReadFile(path); string(data) != "episode-data" {
		t.Fatalf("unexpected contents %q", data)
	}
	if elapsed <= 0 {
		t.Fatal("elapsed not measured")
	}
	got := strings.Join(sink.messages("Show"), "|")
	want := "Download Ep. 1|Download Ep. 1 - 10%|Download Ep. 1 - 50%|Download Ep. 1 - 100%"
	if got != want {
		t.Fatalf("progress = %q\nwant %q", got, want)
	}
}

func TestDownloadEmptyFileFails(t *testing.T) {
	stub := writeScript(t, "aria2c", `while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then : > "$2"; fi
  shift
done
`)
	d := &Downloader{Binary: stub, Connections: 1, Logger: utils.Discard()}
	_, _, err := d.Download(context.Background(), downloadTask(t), &recordingSink{})
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestDownloadToolFailure(t *testing.T) {
	stub := writeScript(t, "aria2c", "echo 'errorCode=3 Resource not found' >&2\nexit 3\n")
	d := &Downloader{Binary: stub, Connections: 1, Logger: utils.Discard()}
	_, _, err := d.Download(context.Background(), downloadTask(t), &recordingSink{})
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
}

func TestDownloadCancelledMidTransfer(t *testing.T) {
	d := &Downloader{Binary: aria2Stub(t, true), Connections: 1, Logger: utils.Discard()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{onProgress: func(_, message string) {
		if strings.HasSuffix(message, "50%") {
			cancel()
		}
	}}

	start := time.Now()
	_, _, err := d.Download(ctx, downloadTask(t), sink)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("cancel took %s", time.Since(start))
	}
	for _, ev := range sink.snapshot() {
		if ev.Kind == EventFinished {
			t.Fatal("finished reported after cancellation")
		}
	}
}
