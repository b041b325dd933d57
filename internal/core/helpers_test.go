package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"anidl/internal/config"
	"anidl/internal/utils"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// aria2Stub writes "episode-data" to the -o target after printing progress.
// With hang set it prints one progress line and then sleeps.
func aria2Stub(t *testing.T, hang bool) string {
	t.Helper()
	tail := `printf '[#1 1.0MiB/1.0MiB(100%%) CN:16]\n'
printf 'episode-data' > "$out"
`
	if hang {
		tail = `printf 'partial' > "$out"
sleep 30
`
	}
	return writeScript(t, "aria2c", `out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf '[#1 0.1MiB/1.0MiB(10%%) CN:16]\r'
printf '[#1 0.5MiB/1.0MiB(50%%) CN:16]\r'
printf '[#1 0.5MiB/1.0MiB(50%%) CN:16]\r'
`+tail)
}

// ffmpegStub copies input to output when transcoding. Verification writes to
// stderr for the first fails invocations and stays silent afterwards.
func ffmpegStub(t *testing.T, fails int) string {
	t.Helper()
	return writeScript(t, "ffmpeg", fmt.Sprintf(`state="$0.verify"
verify=""
last=""
prev=""
in=""
for a in "$@"; do
  if [ "$a" = "null" ]; then verify=1; fi
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  last="$a"
done
if [ -n "$verify" ]; then
  n=$(cat "$state" 2>/dev/null || echo 0)
  n=$((n+1))
  echo "$n" > "$state"
  if [ "$n" -le %d ]; then echo "corrupt frame at 00:00:03" >&2; fi
  exit 0
fi
echo "  Duration: 00:00:10.00, start: 0.000000, bitrate: 900 kb/s" >&2
printf 'frame=  120 time=00:00:05.00 bitrate=1.0kbits/s\r' >&2
printf 'frame=  240 time=00:00:10.00 bitrate=1.0kbits/s\n' >&2
cp "$in" "$last"
`, fails))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.App.Workers = 2
	cfg.Transcode.Nice = 0
	cfg.Cleanup.GracePeriod = config.Duration{Duration: 200 * time.Millisecond}
	cfg.Cleanup.SweepProcesses = false
	return cfg
}

type recordingSink struct {
	mu         sync.Mutex
	events     []StatusEvent
	onProgress func(series, message string)
}

func (s *recordingSink) add(ev StatusEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) Progress(series, message string) {
	s.add(StatusEvent{Kind: EventProgress, Series: series, Message: message})
	if s.onProgress != nil {
		s.onProgress(series, message)
	}
}

func (s *recordingSink) Error(series, message string) {
	s.add(StatusEvent{Kind: EventError, Series: series, Message: message})
}

func (s *recordingSink) Finished(series, path string, downloadSeconds, conversionSeconds float64) {
	s.add(StatusEvent{Kind: EventFinished, Series: series, Path: path, DownloadSeconds: downloadSeconds, ConversionSeconds: conversionSeconds})
}

func (s *recordingSink) Skipped(series, reason string) {
	s.add(StatusEvent{Kind: EventSkipped, Series: series, Message: reason})
}

func (s *recordingSink) snapshot() []StatusEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StatusEvent(nil), s.events...)
}

func (s *recordingSink) messages(series string) []string {
	var out []string
	for _, ev := range s.snapshot() {
		if ev.Series == series {
			out = append(out, ev.Message)
		}
	}
	return out
}

type countingMetrics struct {
	mu       sync.Mutex
	attempts []string
	done     map[string]int
}

func (m *countingMetrics) TaskStarted() {}

func (m *countingMetrics) TaskDone(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done == nil {
		m.done = make(map[string]int)
	}
	m.done[outcome]++
}

func (m *countingMetrics) ConversionAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, result)
}

func (m *countingMetrics) StageDuration(string, time.Duration) {}

// syncBuffer guards a bytes.Buffer written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testErrorLog() (*utils.ErrorLog, *syncBuffer) {
	buf := &syncBuffer{}
	return utils.NewErrorLogWriter(buf), buf
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func containsMessage(messages []string, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
