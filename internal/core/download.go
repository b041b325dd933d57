package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"anidl/internal/series"
	"anidl/internal/utils"
)

var downloadPercent = regexp.MustCompile(`\((\d+)%\)`)

// Downloader drives aria2c for a single task.
type Downloader struct {
	Binary      string
	Connections int
	Logger      *utils.Logger
}

func (d *Downloader) args(task series.Task) []string {
	conns := strconv.Itoa(d.Connections)
	return []string{
		"-x", conns,
		"-s", conns,
		"--summary-interval=1",
		"--auto-file-renaming=false",
		"--allow-overwrite=true",
		"-o", task.FinalFilename,
		task.DownloadURL,
	}
}

// Download fetches task.DownloadURL into the series directory under
// task.FinalFilename. On success the returned path exists and is non-empty.
func (d *Downloader) Download(ctx context.Context, task series.Task, sink StatusSink) (string, time.Duration, error) {
	start := time.Now()
	name := task.Name()
	if task.FinalFilename == "" {
		return "", 0, fmt.Errorf("%w: no filename reconciled", ErrDownloadFailed)
	}
	if err := os.MkdirAll(task.Series.Path, 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: create series dir: %v", ErrDownloadFailed, err)
	}

	label := fmt.Sprintf("Download Ep. %d", task.FinalEpisode)
	sink.Progress(name, label)
	d.Logger.Debug("Starting download for", name, "from", task.DownloadURL)

	lastPercent := -1
	err := streamCommand(ctx, task.Series.Path, 0, d.Binary, d.args(task), func(line string) {
		m := downloadPercent.FindStringSubmatch(line)
		if m == nil {
			return
		}
		pct, convErr := strconv.Atoi(m[1])
		if convErr != nil || pct == lastPercent {
			return
		}
		lastPercent = pct
		sink.Progress(name, fmt.Sprintf("%s - %d%%", label, pct))
	})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return "", elapsed, ErrCancelled
		}
		return "", elapsed, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	path := filepath.Join(task.Series.Path, task.FinalFilename)
	if !utils.NonEmptyFile(path) {
		return "", elapsed, fmt.Errorf("%w: %s missing or empty after download", ErrDownloadFailed, task.FinalFilename)
	}
	return path, elapsed, nil
}
