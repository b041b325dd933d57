package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"anidl/internal/clients/planners"
	"anidl/internal/config"
	"anidl/internal/deps"
	"anidl/internal/series"
	"anidl/internal/utils"
)

func noDeps([]deps.Requirement) error { return nil }

func processTaskFor(root, name string) series.Task {
	return series.Task{
		Series:        series.Descriptor{Name: name, Path: filepath.Join(root, name), Service: "direct"},
		Action:        series.ActionProcess,
		DownloadURL:   fmt.Sprintf("http://example.invalid/%s_Ep_01.mkv", name),
		RemoteEpisode: 1,
		FinalEpisode:  1,
	}
}

// blockingDownloader leaves partial files behind and waits for cancellation.
type blockingDownloader struct{}

func (blockingDownloader) Download(ctx context.Context, task series.Task, sink StatusSink) (string, time.Duration, error) {
	local := filepath.Join(task.Series.Path, task.FinalFilename)
	if err := os.MkdirAll(task.Series.Path, 0o755); err != nil {
		return "", 0, err
	}
	_ = os.WriteFile(local, []byte("partial"), 0o644)
	_ = os.WriteFile(local+".aria2", []byte("control"), 0o644)
	sink.Progress(task.Name(), "Download Ep. 1 - 10%")
	<-ctx.Done()
	return "", 0, ErrCancelled
}

type failingDownloader struct{}

func (failingDownloader) Download(context.Context, series.Task, StatusSink) (string, time.Duration, error) {
	return "", time.Millisecond, fmt.Errorf("%w: boom", ErrDownloadFailed)
}

type unusedConverter struct{ t *testing.T }

func (c unusedConverter) Convert(context.Context, string, string, string, StatusSink) (time.Duration, error) {
	c.t.Error("converter should not run")
	return 0, nil
}

func fakeManager(t *testing.T, cfg config.Config, d DownloadStage) (*Manager, *syncBuffer) {
	t.Helper()
	errLog, buf := testErrorLog()
	m := NewManager(cfg, planners.NewRegistry(), utils.Discard(), errLog, WithStages(d, unusedConverter{t}))
	m.checkDeps = noDeps
	return m, buf
}

// assertNothingAfterTerminal fails if any series has an event after its
// first terminal event.
func assertNothingAfterTerminal(t *testing.T, events []StatusEvent) {
	t.Helper()
	ended := map[string]EventKind{}
	for _, ev := range events {
		if ev.Series == "" {
			continue
		}
		if kind, ok := ended[ev.Series]; ok {
			t.Errorf("%s: %s event %q after %s", ev.Series, ev.Kind, ev.Message, kind)
		}
		if ev.Kind.Terminal() {
			ended[ev.Series] = ev.Kind
		}
	}
}

func TestExecuteThreeSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/b/B_Ep_01.mkv", "/c/C_Ep_01.mkv":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Tools.Aria2c = aria2Stub(t, false)
	cfg.Tools.FFmpeg = ffmpegStub(t, 0)
	cfg.Transcode.Enabled = false

	root := t.TempDir()
	yes, no := true, false
	list := []series.Descriptor{
		{Name: "A", Path: filepath.Join(root, "A"), Service: "direct", SeriesPageURL: srv.URL + "/a/A_Ep_{ep2}.mkv"},
		{Name: "B", Path: filepath.Join(root, "B"), Service: "direct", SeriesPageURL: srv.URL + "/b/B_Ep_{ep2}.mkv", Transcode: &no},
		{Name: "C", Path: filepath.Join(root, "C"), Service: "direct", SeriesPageURL: srv.URL + "/c/C_Ep_{ep2}.mkv", Transcode: &yes},
	}

	logger := utils.Discard()
	errLog, errBuf := testErrorLog()
	m := NewManager(cfg, planners.Default(cfg, logger), logger, errLog)

	ctx := context.Background()
	tasks := m.Plan(ctx, list)
	if tasks[0].Action != series.ActionSkip || tasks[1].Action != series.ActionProcess || tasks[2].Action != series.ActionProcess {
		t.Fatalf("unexpected plan: %+v", tasks)
	}

	sink := &recordingSink{}
	summary, err := m.Execute(ctx, tasks, sink)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Count(OutcomeFinished) != 2 || summary.Count(OutcomeSkipped) != 1 || summary.Cancelled {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	events := sink.snapshot()
	assertNothingAfterTerminal(t, events)
	finished := map[string]StatusEvent{}
	for _, ev := range events {
		if ev.Kind == EventFinished {
			finished[ev.Series] = ev
		}
		if ev.Kind == EventError {
			t.Errorf("unexpected error event: %+v", ev)
		}
	}
	if len(finished) != 2 {
		t.Fatalf("finished events: %+v", finished)
	}
	if finished["B"].ConversionSeconds != 0 {
		t.Errorf("B should not convert, took %v", finished["B"].ConversionSeconds)
	}
	if finished["C"].ConversionSeconds <= 0 {
		t.Errorf("C conversion time not reported")
	}
	for _, name := range []string{"B", "C"} {
		path := filepath.Join(root, name, name+"_Ep_01.mkv")
		if finished[name].Path != path {
			t.Errorf("%s path = %s", name, finished[name].Path)
		}
		if data, err := os.ReadFile(path); err != nil || string(data) != "episode-data" {
			t.Errorf("%s file: %q %v", name, data, err)
		}
	}
	if left := dirEntries(t, cfg.App.OutputDir); len(left) != 0 {
		t.Errorf("output dir not empty: %v", left)
	}
	if logged := errBuf.String(); logged != "" {
		t.Errorf("error log should be empty, got %q", logged)
	}
}

func TestRunCancelInterruptsAndRemovesPartials(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.Workers = 1
	m, errBuf := fakeManager(t, cfg, blockingDownloader{})

	root := t.TempDir()
	tasks := []series.Task{processTaskFor(root, "A"), processTaskFor(root, "B")}
	run, err := m.Start(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var events []StatusEvent
	for ev := range run.Events() {
		events = append(events, ev)
		if ev.Kind == EventProgress && ev.Series == "A" {
			run.RequestCancel()
			run.RequestCancel()
		}
	}
	summary := run.Wait()

	assertNothingAfterTerminal(t, events)
	interrupted := map[string]bool{}
	for _, ev := range events {
		switch ev.Kind {
		case EventInterrupted:
			interrupted[ev.Series] = true
		case EventFinished, EventError:
			t.Errorf("unexpected %s event for %s", ev.Kind, ev.Series)
		}
	}
	if !interrupted["A"] || !interrupted["B"] {
		t.Fatalf("interrupted = %v", interrupted)
	}
	if !summary.Cancelled || summary.Count(OutcomeCancelled) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	local := filepath.Join(root, "A", "A_Ep_01.mkv")
	for _, p := range []string{local, local + ".aria2"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", p)
		}
	}
	if errBuf.String() != "" {
		t.Errorf("cancellation must not reach the error log: %q", errBuf.String())
	}
}

func TestRunParentContextCancels(t *testing.T) {
	m, _ := fakeManager(t, testConfig(t), blockingDownloader{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run, err := m.Start(ctx, []series.Task{processTaskFor(t.TempDir(), "A")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for ev := range run.Events() {
		if ev.Kind == EventProgress {
			cancel()
		}
	}
	summary := run.Wait()
	if !summary.Cancelled || !run.CancelRequested() {
		t.Fatalf("expected cancelled run, got %+v", summary)
	}
}

func TestRunReportsFailures(t *testing.T) {
	m, errBuf := fakeManager(t, testConfig(t), failingDownloader{})
	sink := &recordingSink{}

	summary, err := m.Execute(context.Background(), []series.Task{processTaskFor(t.TempDir(), "A")}, sink)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if summary.Count(OutcomeFailed) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !errors.Is(summary.Results[0].Err, ErrDownloadFailed) {
		t.Fatalf("result err = %v", summary.Results[0].Err)
	}
	if !strings.Contains(errBuf.String(), "ERROR: A: download failed: boom") {
		t.Fatalf("error log = %q", errBuf.String())
	}
	if !containsMessage(sink.messages("A"), "boom") {
		t.Fatalf("no error event: %+v", sink.snapshot())
	}
}

func TestRunRefusesInvariantViolation(t *testing.T) {
	m, errBuf := fakeManager(t, testConfig(t), failingDownloader{})
	task := processTaskFor(t.TempDir(), "A")
	task.RemoteEpisode, task.FinalEpisode = 4, 4

	summary, err := m.Execute(context.Background(), []series.Task{task}, &recordingSink{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(summary.Results) != 1 || !errors.Is(summary.Results[0].Err, ErrInvariant) {
		t.Fatalf("expected invariant failure, got %+v", summary.Results)
	}
	if !strings.Contains(errBuf.String(), "numbering") {
		t.Fatalf("error log = %q", errBuf.String())
	}
}

func TestStartChecksTools(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Aria2c = filepath.Join(t.TempDir(), "missing-aria2c")
	m := NewManager(cfg, planners.NewRegistry(), utils.Discard(), nil)

	_, err := m.Start(context.Background(), []series.Task{processTaskFor(t.TempDir(), "A")})
	if !errors.Is(err, ErrDependencyMissing) {
		t.Fatalf("expected ErrDependencyMissing, got %v", err)
	}

	// Skip-only runs need no tools.
	summary, err := m.Execute(context.Background(), []series.Task{series.Skip(series.Descriptor{Name: "A"}, "nothing new")}, &recordingSink{})
	if err != nil || summary.Count(OutcomeSkipped) != 1 {
		t.Fatalf("skip-only run: %+v %v", summary, err)
	}
}

func TestPlanTurnsProblemsIntoSkips(t *testing.T) {
	reg := planners.NewRegistry()
	reg.Register("ok", planners.PlannerFunc(func(ctx context.Context, d series.Descriptor) (series.Task, error) {
		return series.Task{Action: series.ActionProcess, DownloadURL: "http://x/" + d.Name + "_Ep_01.mkv", RemoteEpisode: 1, FinalEpisode: 1}, nil
	}))
	reg.Register("broken", planners.PlannerFunc(func(context.Context, series.Descriptor) (series.Task, error) {
		return series.Task{}, errors.New("site down")
	}))
	reg.Register("panics", planners.PlannerFunc(func(context.Context, series.Descriptor) (series.Task, error) {
		panic("bad markup")
	}))
	m := NewManager(testConfig(t), reg, utils.Discard(), nil)

	off := false
	list := []series.Descriptor{
		{Name: "one", Service: "ok"},
		{Name: "two", Service: "broken"},
		{Name: "three", Service: "panics"},
		{Name: "four", Service: "ftp"},
		{Name: "five", Service: "ok", Enabled: &off},
	}
	tasks := m.Plan(context.Background(), list)

	if len(tasks) != len(list) {
		t.Fatalf("got %d tasks", len(tasks))
	}
	for i, task := range tasks {
		if task.Name() != list[i].Name {
			t.Errorf("task %d is %s, want %s", i, task.Name(), list[i].Name)
		}
	}
	if tasks[0].Action != series.ActionProcess {
		t.Errorf("one: %+v", tasks[0])
	}
	wantReasons := []string{"", "site down", "bad markup", `unknown service "ftp"`, "disabled"}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].Action != series.ActionSkip || !strings.Contains(tasks[i].Reason, wantReasons[i]) {
			t.Errorf("%s: %+v", list[i].Name, tasks[i])
		}
	}
}
