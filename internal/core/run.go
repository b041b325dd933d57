package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"anidl/internal/clients/notifications"
	"anidl/internal/series"
)

const eventBuffer = 256

type taskState int

const (
	stateQueued taskState = iota
	stateRunning
	stateDone
	stateInterrupted
)

type trackedTask struct {
	task   series.Task
	state  taskState
	began  bool
	result *Result
}

// Run is one execution of a planned task list. Events must be drained until
// the channel closes; RequestCancel may be called from any goroutine.
type Run struct {
	ID        string
	StartedAt time.Time

	manager *Manager
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	input   []series.Task

	events     chan StatusEvent
	cancelCh   chan struct{}
	cancelOnce sync.Once
	cancelled  atomic.Bool
	done       chan struct{}

	mu      sync.Mutex
	tracked map[string]*trackedTask
	order   []*trackedTask
	results []Result
	summary RunSummary
}

func newRun(parent context.Context, m *Manager, tasks []series.Task) *Run {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		manager:   m,
		parent:    parent,
		ctx:       ctx,
		cancel:    cancel,
		input:     tasks,
		events:    make(chan StatusEvent, eventBuffer),
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
		tracked:   make(map[string]*trackedTask),
	}
}

func (r *Run) Events() <-chan StatusEvent { return r.events }

// Done is closed after the event channel closes and the summary is final.
func (r *Run) Done() <-chan struct{} { return r.done }

// RequestCancel is idempotent and never blocks.
func (r *Run) RequestCancel() {
	r.cancelOnce.Do(func() {
		r.cancelled.Store(true)
		close(r.cancelCh)
	})
}

func (r *Run) CancelRequested() bool { return r.cancelled.Load() }

// Wait blocks until the run is over and returns its summary.
func (r *Run) Wait() RunSummary {
	<-r.done
	return r.summary
}

// sendLocked must be called with r.mu held.
func (r *Run) sendLocked(ev StatusEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.events <- ev
}

// emit drops task events once the task has been marked interrupted so no
// progress or terminal event follows the interruption.
func (r *Run) emit(ev StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tt, ok := r.tracked[ev.Series]; ok && tt.state == stateInterrupted {
		return
	}
	r.sendLocked(ev)
}

func (r *Run) execute() {
	m := r.manager
	go func() {
		select {
		case <-r.parent.Done():
			r.RequestCancel()
		case <-r.done:
		}
	}()

	runnable := r.prepare()
	m.logger.Info(fmt.Sprintf("🚀 Run %s started: %d to process, %d workers", r.ID, len(runnable), m.Workers()))

	workersDone := r.schedule(runnable)
	select {
	case <-workersDone:
	case <-r.cancelCh:
		r.shutdown(workersDone)
	}
	r.cancel()
	r.finish()
}

// prepare reports skips, reconciles filenames and checks numbering. It
// returns the tasks that may be scheduled.
func (r *Run) prepare() []*trackedTask {
	m := r.manager
	var runnable []*trackedTask
	for _, task := range r.input {
		name := task.Name()
		if task.Action != series.ActionProcess {
			reason := task.Reason
			if reason == "" {
				reason = "nothing to do"
			}
			r.emit(StatusEvent{Kind: EventSkipped, Series: name, Message: reason})
			r.addResult(Result{Name: name, Outcome: OutcomeSkipped, Reason: reason})
			continue
		}

		err := reconcile(&task)
		if err == nil {
			if _, dup := r.tracked[name]; dup {
				err = fmt.Errorf("duplicate task for series %q", name)
			}
		}
		if err != nil {
			msg := err.Error()
			m.logger.Error("Refusing to schedule", name+":", msg)
			m.errorLog.Record(name, msg)
			r.emit(StatusEvent{Kind: EventError, Series: name, Message: msg})
			r.addResult(Result{Name: name, Episode: task.FinalEpisode, Outcome: OutcomeFailed, Reason: msg, Err: err})
			continue
		}

		tt := &trackedTask{task: task}
		r.mu.Lock()
		r.tracked[name] = tt
		r.order = append(r.order, tt)
		r.mu.Unlock()
		runnable = append(runnable, tt)
	}
	return runnable
}

func (r *Run) schedule(runnable []*trackedTask) <-chan struct{} {
	pipeline := r.manager.pipeline()
	work := make(chan *trackedTask)
	workers := r.manager.Workers()
	if workers > len(runnable) {
		workers = len(runnable)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tt := range work {
				r.runTask(pipeline, tt)
			}
		}()
	}
	go func() {
		defer close(work)
		for _, tt := range runnable {
			select {
			case work <- tt:
			case <-r.ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (r *Run) runTask(p *Pipeline, tt *trackedTask) {
	if !r.markRunning(tt) {
		return
	}
	res := p.Run(r.ctx, tt.task, &taskSink{run: r})
	r.mu.Lock()
	if tt.state != stateInterrupted {
		tt.state = stateDone
	}
	tt.result = &res
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func (r *Run) markRunning(tt *trackedTask) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil || tt.state != stateQueued {
		return false
	}
	tt.state = stateRunning
	tt.began = true
	return true
}

func (r *Run) addResult(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

// shutdown runs the cancellation sequence: interrupt, stop workers, sweep
// stragglers, then remove partial files of interrupted tasks.
func (r *Run) shutdown(workersDone <-chan struct{}) {
	m := r.manager
	m.logger.Warn("⚠️ Cancellation requested for run", r.ID)
	r.interruptPending()
	r.cancel()

	cleaner := r.cleaner()
	grace := m.config.Cleanup.GracePeriod.Duration
	select {
	case <-workersDone:
	case <-time.After(grace):
		m.logger.Warn("Workers still busy after", grace, "- sweeping external processes")
		if killed := cleaner.SweepProcesses(); killed > 0 {
			m.logger.Warn("Killed", killed, "straggling processes")
		}
	}
	<-workersDone

	cleaner.RemoveArtifacts(r.interruptedTasks())
}

func (r *Run) interruptPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendLocked(StatusEvent{Kind: EventNotice, Message: "Cancellation requested, stopping workers"})
	for _, tt := range r.order {
		if tt.state != stateQueued && tt.state != stateRunning {
			continue
		}
		tt.state = stateInterrupted
		r.sendLocked(StatusEvent{Kind: EventInterrupted, Series: tt.task.Name(), Message: "Interrupted"})
	}
}

// interruptedTasks returns tasks that began, were cut short, and did not
// complete.
func (r *Run) interruptedTasks() []series.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []series.Task
	for _, tt := range r.order {
		if !tt.began || tt.state != stateInterrupted {
			continue
		}
		if tt.result != nil && tt.result.Outcome == OutcomeFinished {
			continue
		}
		out = append(out, tt.task)
	}
	return out
}

func (r *Run) cleaner() *Cleanup {
	cfg := r.manager.config
	return &Cleanup{
		ToolNames: []string{cfg.Tools.Aria2c, cfg.Tools.FFmpeg},
		Since:     r.StartedAt,
		OutputDir: cfg.App.OutputDir,
		Sweep:     cfg.Cleanup.SweepProcesses,
		Logger:    r.manager.logger,
	}
}

func (r *Run) finish() {
	m := r.manager
	r.mu.Lock()
	for _, tt := range r.order {
		if tt.result == nil {
			r.results = append(r.results, Result{
				Name:     tt.task.Name(),
				Episode:  tt.task.FinalEpisode,
				Filename: tt.task.FinalFilename,
				Outcome:  OutcomeCancelled,
				Err:      ErrCancelled,
			})
		}
	}
	summary := RunSummary{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		FinishedAt: time.Now(),
		Cancelled:  r.cancelled.Load(),
		Results:    append([]Result(nil), r.results...),
	}
	r.sendLocked(StatusEvent{
		Kind: EventNotice,
		Message: fmt.Sprintf("Run finished: %d ready, %d failed, %d skipped",
			summary.Count(OutcomeFinished), summary.Count(OutcomeFailed), summary.Count(OutcomeSkipped)),
	})
	r.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.RecordRun(summary); err != nil {
			m.logger.Error("Failed to record run history:", err)
		}
	}
	for _, n := range m.notifiers {
		go n.NotifyRunComplete(notifications.RunSummary{
			RunID:     summary.ID,
			Finished:  summary.Count(OutcomeFinished),
			Failed:    summary.Count(OutcomeFailed),
			Skipped:   summary.Count(OutcomeSkipped),
			Cancelled: summary.Cancelled,
		})
	}
	m.logger.Info(fmt.Sprintf("Run %s done in %s", r.ID, summary.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))

	r.summary = summary
	close(r.events)
	close(r.done)
}

// taskSink routes pipeline callbacks for one task into the run's channel.
type taskSink struct {
	run *Run
}

func (s *taskSink) Progress(series, message string) {
	s.run.emit(StatusEvent{Kind: EventProgress, Series: series, Message: message})
}

func (s *taskSink) Error(series, message string) {
	s.run.emit(StatusEvent{Kind: EventError, Series: series, Message: message})
}

func (s *taskSink) Finished(series, path string, downloadSeconds, conversionSeconds float64) {
	s.run.emit(StatusEvent{Kind: EventFinished, Series: series, Path: path, DownloadSeconds: downloadSeconds, ConversionSeconds: conversionSeconds})
}
