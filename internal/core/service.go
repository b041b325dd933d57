package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"anidl/internal/series"
	"anidl/internal/utils"
)

// Service is the long-running mode: one run at a time, started by cron or on
// demand, with live events fanned out to subscribers.
type Service struct {
	manager   *Manager
	repo      *series.Repository
	cronSpec  string
	logger    *utils.Logger
	board     *Board
	scheduler *cron.Cron

	mu         sync.Mutex
	baseCtx    context.Context
	busy       bool
	current    *Run
	planCancel context.CancelFunc
	last       *RunSummary
	snapshot   []series.Descriptor
	subs       map[int]chan StatusEvent
	nextSub    int
	wg         sync.WaitGroup
}

// Status is a point-in-time view for the API.
type Status struct {
	Running bool
	Phase   string
	RunID   string
	Board   []BoardEntry
	Notices []string
	LastRun *RunSummary
}

func NewService(m *Manager, repo *series.Repository, cronSpec string, logger *utils.Logger) *Service {
	return &Service{
		manager:   m,
		repo:      repo,
		cronSpec:  cronSpec,
		logger:    logger,
		board:     NewBoard(),
		scheduler: cron.New(),
		baseCtx:   context.Background(),
		subs:      make(map[int]chan StatusEvent),
	}
}

// Start loads the series list, registers the cron trigger and watches the
// series file for edits until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	list, err := s.repo.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.baseCtx = ctx
	s.snapshot = list
	s.mu.Unlock()

	if s.cronSpec != "" {
		if _, err := s.scheduler.AddFunc(s.cronSpec, func() {
			if err := s.Trigger(); err != nil && !errors.Is(err, ErrRunInProgress) {
				s.logger.Error("Scheduled run failed to start:", err)
			}
		}); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", s.cronSpec, err)
		}
		s.scheduler.Start()
		s.logger.Info("Scheduler started with spec", s.cronSpec)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := series.Watch(ctx, s.repo, s.setSnapshot, func(err error) {
			s.logger.Warn("Series file watch:", err)
		})
		if err != nil {
			s.logger.Warn("Series file watch stopped:", err)
		}
	}()
	return nil
}

// Stop halts the scheduler, cancels any active run and waits for it.
func (s *Service) Stop() {
	<-s.scheduler.Stop().Done()
	s.Cancel()
	s.wg.Wait()
}

func (s *Service) setSnapshot(list []series.Descriptor) {
	s.mu.Lock()
	s.snapshot = list
	s.mu.Unlock()
	s.logger.Info(fmt.Sprintf("Series list reloaded: %d series", len(list)))
}

// Series returns the current series snapshot.
func (s *Service) Series() []series.Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]series.Descriptor(nil), s.snapshot...)
}

// Trigger plans and starts a run in the background. It fails with
// ErrRunInProgress while another run is planning or executing.
func (s *Service) Trigger() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.busy = true
	planCtx, cancel := context.WithCancel(s.baseCtx)
	s.planCancel = cancel
	list := append([]series.Descriptor(nil), s.snapshot...)
	s.mu.Unlock()

	s.board.Reset()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.runOnce(planCtx, list)
	}()
	return nil
}

func (s *Service) runOnce(ctx context.Context, list []series.Descriptor) {
	tasks := s.manager.Plan(ctx, list)
	if ctx.Err() != nil {
		s.release(nil)
		return
	}
	run, err := s.manager.Start(ctx, tasks)
	if err != nil {
		s.logger.Error("Run not started:", err)
		s.broadcast(StatusEvent{Kind: EventNotice, Message: err.Error()})
		s.release(nil)
		return
	}
	s.board.Seed(tasks)

	s.mu.Lock()
	s.current = run
	s.mu.Unlock()

	for ev := range run.Events() {
		s.board.Apply(ev)
		s.broadcast(ev)
	}
	summary := run.Wait()
	s.release(&summary)
}

func (s *Service) release(summary *RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.current = nil
	s.planCancel = nil
	if summary != nil {
		s.last = summary
	}
}

// Cancel stops planning or the active run. It reports whether anything was
// running.
func (s *Service) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return false
	}
	if s.current != nil {
		s.current.RequestCancel()
	} else if s.planCancel != nil {
		s.planCancel()
	}
	return true
}

func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{Running: s.busy, LastRun: s.last}
	switch {
	case s.current != nil:
		st.Phase = "executing"
		st.RunID = s.current.ID
	case s.busy:
		st.Phase = "planning"
	default:
		st.Phase = "idle"
	}
	s.mu.Unlock()
	st.Board = s.board.Snapshot()
	st.Notices = s.board.Notices()
	return st
}

// Subscribe returns a channel of live events. Slow subscribers miss events
// rather than stall the run.
func (s *Service) Subscribe() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 64)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Service) broadcast(ev StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
