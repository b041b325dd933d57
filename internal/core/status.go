package core

import "time"

type EventKind string

const (
	EventProgress    EventKind = "progress"
	EventError       EventKind = "error"
	EventFinished    EventKind = "finished"
	EventSkipped     EventKind = "skipped"
	EventInterrupted EventKind = "interrupted"
	// EventNotice carries run-level messages; Series is empty.
	EventNotice EventKind = "notice"
)

// Terminal reports whether no further events follow for the series.
func (k EventKind) Terminal() bool {
	switch k {
	case EventError, EventFinished, EventSkipped, EventInterrupted:
		return true
	}
	return false
}

type StatusEvent struct {
	Kind              EventKind `json:"kind"`
	Series            string    `json:"series,omitempty"`
	Message           string    `json:"message,omitempty"`
	Path              string    `json:"path,omitempty"`
	DownloadSeconds   float64   `json:"download_seconds,omitempty"`
	ConversionSeconds float64   `json:"conversion_seconds,omitempty"`
	Time              time.Time `json:"time"`
}

// StatusSink receives live pipeline updates.
type StatusSink interface {
	Progress(series, message string)
	Error(series, message string)
}

// FinishedReporter is implemented by sinks that want completion details.
type FinishedReporter interface {
	Finished(series, path string, downloadSeconds, conversionSeconds float64)
}

// SkipReporter is implemented by sinks that want skip reasons.
type SkipReporter interface {
	Skipped(series, reason string)
}

func reportFinished(sink StatusSink, series, path string, download, conversion time.Duration) {
	if fr, ok := sink.(FinishedReporter); ok {
		fr.Finished(series, path, download.Seconds(), conversion.Seconds())
		return
	}
	sink.Progress(series, "Done: "+path)
}

func reportSkipped(sink StatusSink, series, reason string) {
	if sr, ok := sink.(SkipReporter); ok {
		sr.Skipped(series, reason)
		return
	}
	sink.Progress(series, "Skipped: "+reason)
}

// ChanSink writes every callback to a channel as a StatusEvent.
type ChanSink struct {
	ch chan<- StatusEvent
}

func NewChanSink(ch chan<- StatusEvent) *ChanSink { return &ChanSink{ch: ch} }

func (s *ChanSink) send(ev StatusEvent) {
	if s == nil {
		return
	}
	ev.Time = time.Now()
	s.ch <- ev
}

func (s *ChanSink) Progress(series, message string) {
	s.send(StatusEvent{Kind: EventProgress, Series: series, Message: message})
}

func (s *ChanSink) Error(series, message string) {
	s.send(StatusEvent{Kind: EventError, Series: series, Message: message})
}

func (s *ChanSink) Finished(series, path string, downloadSeconds, conversionSeconds float64) {
	s.send(StatusEvent{Kind: EventFinished, Series: series, Path: path, DownloadSeconds: downloadSeconds, ConversionSeconds: conversionSeconds})
}

func (s *ChanSink) Skipped(series, reason string) {
	s.send(StatusEvent{Kind: EventSkipped, Series: series, Message: reason})
}

// discardSink drops everything.
type discardSink struct{}

func (discardSink) Progress(string, string) {}
func (discardSink) Error(string, string)    {}
