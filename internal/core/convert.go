package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"anidl/internal/utils"
)

var (
	durationMarker = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
	timeMarker     = regexp.MustCompile(`time=\s*(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// Converter transcodes a downloaded episode, verifies the result by decoding
// it again and swaps it over the original. A failed verification is retried
// up to MaxAttempts times.
type Converter struct {
	Binary      string
	MaxAttempts int
	Codec       string
	CRF         int
	Preset      string
	Threads     int
	X265Params  string
	AudioCodec  string
	Nice        int
	Logger      *utils.Logger
	ErrorLog    *utils.ErrorLog
	Metrics     Metrics
}

func (c *Converter) transcodeArgs(in, out string) []string {
	args := []string{"-y", "-i", in, "-c:v", c.Codec}
	if c.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(c.CRF))
	}
	if c.Preset != "" {
		args = append(args, "-preset", c.Preset)
	}
	if c.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.Threads))
	}
	if c.X265Params != "" {
		args = append(args, "-x265-params", c.X265Params)
	}
	audio := c.AudioCodec
	if audio == "" {
		audio = "copy"
	}
	return append(args, "-c:a", audio, out)
}

func (c *Converter) metrics() Metrics {
	if c.Metrics == nil {
		return nopMetrics{}
	}
	return c.Metrics
}

// Convert returns the total time spent across attempts. A nil error means the
// verified output now lives at localPath.
func (c *Converter) Convert(ctx context.Context, localPath, seriesName, outputDir string, sink StatusSink) (time.Duration, error) {
	start := time.Now()
	if cleanPath(outputDir) == cleanPath(filepath.Dir(localPath)) {
		return 0, fmt.Errorf("%w: output directory is the series directory", ErrConversionFailed)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create output dir: %v", ErrConversionFailed, err)
	}

	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	outPath := filepath.Join(outputDir, filepath.Base(localPath))
	logPath := outPath + ".log"

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return time.Since(start), ErrCancelled
		}
		label := fmt.Sprintf("Conversion - attempt %d", attempt)
		sink.Progress(seriesName, label)

		err := c.transcode(ctx, localPath, outPath, func(pct int) {
			sink.Progress(seriesName, fmt.Sprintf("%s - %d%%", label, pct))
		})
		if errors.Is(err, ErrCancelled) {
			return time.Since(start), ErrCancelled
		}
		if err != nil {
			c.Logger.Error("Transcode attempt", attempt, "failed for", seriesName, ":", err)
			c.ErrorLog.Record(seriesName, fmt.Sprintf("transcode attempt %d: %v", attempt, err))
			c.metrics().ConversionAttempt("error")
			discard(outPath, logPath)
			continue
		}

		ok, err := c.verify(ctx, outPath, logPath)
		if errors.Is(err, ErrCancelled) {
			return time.Since(start), ErrCancelled
		}
		if err != nil || !ok {
			c.Logger.Warn("Verification failed for", seriesName, "on attempt", attempt, err)
			c.metrics().ConversionAttempt("corrupt")
			discard(outPath, logPath)
			continue
		}

		c.metrics().ConversionAttempt("ok")
		_ = utils.RemoveIfExists(logPath)
		if err := utils.MoveFile(outPath, localPath); err != nil {
			return time.Since(start), fmt.Errorf("%w: replace original: %v", ErrConversionFailed, err)
		}
		return time.Since(start), nil
	}

	c.Logger.Error("Conversion for", seriesName, "gave up after", attempts, "attempts")
	return time.Since(start), fmt.Errorf("%w after %d attempts", ErrConversionFailed, attempts)
}

func (c *Converter) transcode(ctx context.Context, in, out string, progress func(int)) error {
	var total float64
	last := -1
	return streamCommand(ctx, "", c.Nice, c.Binary, c.transcodeArgs(in, out), func(line string) {
		if total == 0 {
			if m := durationMarker.FindStringSubmatch(line); m != nil {
				total = clockSeconds(m[1:])
			}
		}
		if total <= 0 {
			return
		}
		m := timeMarker.FindStringSubmatch(line)
		if m == nil {
			return
		}
		pct := int(math.Min(100, math.Round(clockSeconds(m[1:])/total*100)))
		if pct != last {
			last = pct
			progress(pct)
		}
	})
}

// verify decodes out to a null sink with error-level logging written to
// logPath. An empty log is the only success criterion.
func (c *Converter) verify(ctx context.Context, out, logPath string) (bool, error) {
	if ctx.Err() != nil {
		return false, ErrCancelled
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return false, fmt.Errorf("create verify log: %w", err)
	}
	defer logFile.Close()

	cmd := commandContext(ctx, c.Binary, "-y", "-v", "error", "-i", out, "-f", "null", "-") //nolint:gosec
	configureProcess(cmd)
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start verify: %w", err)
	}
	_ = cmd.Wait()
	if ctx.Err() != nil {
		return false, ErrCancelled
	}

	info, err := logFile.Stat()
	if err != nil {
		return false, err
	}
	return info.Size() == 0, nil
}

func clockSeconds(parts []string) float64 {
	h, _ := strconv.ParseFloat(parts[0], 64)
	m, _ := strconv.ParseFloat(parts[1], 64)
	s, _ := strconv.ParseFloat(parts[2], 64)
	return h*3600 + m*60 + s
}

func discard(paths ...string) {
	for _, p := range paths {
		_ = utils.RemoveIfExists(p)
	}
}
