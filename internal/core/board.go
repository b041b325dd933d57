package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"anidl/internal/series"
)

type BoardState string

const (
	BoardQueued      BoardState = "queued"
	BoardProgress    BoardState = "progress"
	BoardInterrupted BoardState = "interrupted"
	BoardFailed      BoardState = "failed"
	BoardSkipped     BoardState = "skipped"
	BoardDone        BoardState = "done"
)

// BoardEntry is the latest known status of one series.
type BoardEntry struct {
	Series            string     `json:"series"`
	State             BoardState `json:"state"`
	Message           string     `json:"message"`
	Path              string     `json:"path,omitempty"`
	DownloadSeconds   float64    `json:"download_seconds,omitempty"`
	ConversionSeconds float64    `json:"conversion_seconds,omitempty"`
	Updated           time.Time  `json:"updated"`
}

// Board folds status events into one line per series. It tolerates events
// from different series arriving interleaved.
type Board struct {
	mu      sync.RWMutex
	entries map[string]*BoardEntry
	notices []string
}

func NewBoard() *Board {
	return &Board{entries: make(map[string]*BoardEntry)}
}

func (b *Board) Reset() {
	b.mu.Lock()
	b.entries = make(map[string]*BoardEntry)
	b.notices = nil
	b.mu.Unlock()
}

// Seed marks every process task as queued.
func (b *Board) Seed(tasks []series.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tasks {
		if t.Action != series.ActionProcess {
			continue
		}
		b.entries[t.Name()] = &BoardEntry{
			Series:  t.Name(),
			State:   BoardQueued,
			Message: fmt.Sprintf("Queued Ep. %d", t.FinalEpisode),
			Updated: time.Now(),
		}
	}
}

// Apply records ev. Terminal states are sticky: a late progress event never
// overwrites done, failed, skipped or interrupted.
func (b *Board) Apply(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ev.Kind == EventNotice || ev.Series == "" {
		if ev.Message != "" {
			b.notices = append(b.notices, ev.Message)
		}
		return
	}

	entry, ok := b.entries[ev.Series]
	if !ok {
		entry = &BoardEntry{Series: ev.Series, State: BoardQueued}
		b.entries[ev.Series] = entry
	}
	if entry.terminal() && ev.Kind == EventProgress {
		return
	}

	switch ev.Kind {
	case EventProgress:
		entry.State = BoardProgress
	case EventError:
		entry.State = BoardFailed
	case EventFinished:
		entry.State = BoardDone
		entry.Path = ev.Path
		entry.DownloadSeconds = ev.DownloadSeconds
		entry.ConversionSeconds = ev.ConversionSeconds
	case EventSkipped:
		entry.State = BoardSkipped
	case EventInterrupted:
		entry.State = BoardInterrupted
	}
	entry.Message = ev.Message
	if ev.Kind == EventFinished && entry.Message == "" {
		entry.Message = "Done"
	}
	entry.Updated = ev.Time
}

func (e *BoardEntry) terminal() bool {
	switch e.State {
	case BoardDone, BoardFailed, BoardSkipped, BoardInterrupted:
		return true
	}
	return false
}

// Snapshot returns entries sorted by series name.
func (b *Board) Snapshot() []BoardEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BoardEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Series < out[j].Series })
	return out
}

func (b *Board) Notices() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.notices...)
}
