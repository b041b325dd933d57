package core

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"anidl/internal/clients/notifications"
	"anidl/internal/clients/planners"
	"anidl/internal/config"
	"anidl/internal/deps"
	"anidl/internal/episode"
	"anidl/internal/series"
	"anidl/internal/utils"
)

// Recorder persists a finished run. It is written to, never read, by the
// orchestrator.
type Recorder interface {
	RecordRun(summary RunSummary) error
}

// RunSummary describes a completed or cancelled run.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Results    []Result
}

func (s RunSummary) Count(outcome string) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

const defaultPlanTimeout = 60 * time.Second

type Manager struct {
	config    config.Config
	planners  *planners.Registry
	logger    *utils.Logger
	errorLog  *utils.ErrorLog
	recorder  Recorder
	notifiers []notifications.Notifier
	metrics   Metrics

	downloader DownloadStage
	converter  ConversionStage
	checkDeps  func([]deps.Requirement) error
}

type Option func(*Manager)

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

func WithNotifiers(n ...notifications.Notifier) Option {
	return func(m *Manager) { m.notifiers = append(m.notifiers, n...) }
}

func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithStages replaces the aria2c and ffmpeg stages.
func WithStages(d DownloadStage, c ConversionStage) Option {
	return func(m *Manager) {
		m.downloader = d
		m.converter = c
	}
}

func NewManager(cfg config.Config, registry *planners.Registry, logger *utils.Logger, errorLog *utils.ErrorLog, opts ...Option) *Manager {
	m := &Manager{
		config:    cfg,
		planners:  registry,
		logger:    logger,
		errorLog:  errorLog,
		metrics:   nopMetrics{},
		checkDeps: deps.Preflight,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.downloader == nil {
		m.downloader = &Downloader{
			Binary:      cfg.Tools.Aria2c,
			Connections: cfg.Tools.Connections,
			Logger:      logger,
		}
	}
	if m.converter == nil {
		m.converter = &Converter{
			Binary:      cfg.Tools.FFmpeg,
			MaxAttempts: cfg.Transcode.MaxAttempts,
			Codec:       cfg.Transcode.Codec,
			CRF:         cfg.Transcode.CRF,
			Preset:      cfg.Transcode.Preset,
			Threads:     cfg.Transcode.Threads,
			X265Params:  cfg.Transcode.X265Params,
			AudioCodec:  cfg.Transcode.AudioCodec,
			Nice:        cfg.Transcode.Nice,
			Logger:      logger,
			ErrorLog:    errorLog,
			Metrics:     m.metrics,
		}
	}
	return m
}

// Workers is the concurrency bound shared by planning and execution.
func (m *Manager) Workers() int {
	if m.config.App.Workers > 0 {
		return m.config.App.Workers
	}
	return runtime.NumCPU()
}

// Plan asks each series' planner for its next task. Planner errors, panics
// and unknown services become skip tasks. Output order follows input order.
func (m *Manager) Plan(ctx context.Context, list []series.Descriptor) []series.Task {
	tasks := make([]series.Task, len(list))
	sem := make(chan struct{}, m.Workers())
	var wg sync.WaitGroup
	for i, desc := range list {
		wg.Add(1)
		go func(i int, desc series.Descriptor) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				tasks[i] = series.Skip(desc, "planning cancelled")
				return
			}
			tasks[i] = m.planOne(ctx, desc)
		}(i, desc)
	}
	wg.Wait()
	return tasks
}

func (m *Manager) planOne(ctx context.Context, desc series.Descriptor) (task series.Task) {
	if !desc.IsEnabled() {
		return series.Skip(desc, "disabled")
	}
	planner, ok := m.planners.Lookup(desc.Service)
	if !ok {
		return series.Skip(desc, fmt.Sprintf("unknown service %q", desc.Service))
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Planner for", desc.Name, "panicked:", r)
			task = series.Skip(desc, fmt.Sprintf("planner error: %v", r))
		}
	}()

	timeout := m.config.Planning.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultPlanTimeout
	}
	planCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	task, err := planner.PlanTask(planCtx, desc)
	if err != nil {
		m.logger.Warn("Planning failed for", desc.Name+":", err)
		return series.Skip(desc, err.Error())
	}
	task.Series = desc
	if task.Action == "" {
		task.Action = series.ActionSkip
	}
	m.logger.Debug("Planned", desc.Name, task.Action, task.Reason)
	return task
}

// needsTranscode reports whether any process task will convert.
func (m *Manager) needsTranscode(tasks []series.Task) (process, transcode bool) {
	for _, t := range tasks {
		if t.Action != series.ActionProcess {
			continue
		}
		process = true
		if t.Series.TranscodeEnabled(m.config.Transcode.Enabled) {
			transcode = true
		}
	}
	return process, transcode
}

// Start validates tools and begins executing tasks in the background. The
// returned Run's event channel must be drained until it closes.
func (m *Manager) Start(ctx context.Context, tasks []series.Task) (*Run, error) {
	if process, transcode := m.needsTranscode(tasks); process {
		if err := m.checkDeps(deps.PipelineRequirements(m.config, transcode)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDependencyMissing, err)
		}
	}
	run := newRun(ctx, m, tasks)
	go run.execute()
	return run, nil
}

// Execute starts tasks, forwards every event to sink and waits for the run
// to end.
func (m *Manager) Execute(ctx context.Context, tasks []series.Task, sink StatusSink) (RunSummary, error) {
	run, err := m.Start(ctx, tasks)
	if err != nil {
		return RunSummary{}, err
	}
	for ev := range run.Events() {
		Forward(sink, ev)
	}
	return run.Wait(), nil
}

// Forward replays ev onto a StatusSink.
func Forward(sink StatusSink, ev StatusEvent) {
	switch ev.Kind {
	case EventProgress, EventInterrupted, EventNotice:
		sink.Progress(ev.Series, ev.Message)
	case EventError:
		sink.Error(ev.Series, ev.Message)
	case EventFinished:
		if fr, ok := sink.(FinishedReporter); ok {
			fr.Finished(ev.Series, ev.Path, ev.DownloadSeconds, ev.ConversionSeconds)
		} else {
			sink.Progress(ev.Series, "Done: "+ev.Path)
		}
	case EventSkipped:
		reportSkipped(sink, ev.Series, ev.Message)
	}
}

func (m *Manager) pipeline() *Pipeline {
	return &Pipeline{
		Downloader: m.downloader,
		Converter:  m.converter,
		OutputDir:  m.config.App.OutputDir,
		Transcode:  m.config.Transcode.Enabled,
		Logger:     m.logger,
		ErrorLog:   m.errorLog,
		Metrics:    m.metrics,
		Notifiers:  m.notifiers,
	}
}

// reconcile attaches the final filename and checks the numbering invariant
// against the current directory contents.
func reconcile(task *series.Task) error {
	task.FinalFilename = episode.FinalFilename(task.DownloadURL, task.Series.FilenameRoot, task.FinalEpisode)
	next, err := episode.NextLocal(task.Series.Path)
	if err != nil {
		return err
	}
	if err := episode.CheckInvariant(next, task.Series.PassedEpisodes, task.Series.Continuation, task.RemoteEpisode, task.FinalEpisode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return nil
}
