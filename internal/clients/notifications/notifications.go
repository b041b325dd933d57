package notifications

// Notifier pushes user-facing messages about finished work. Implementations
// log their own delivery errors.
type Notifier interface {
	NotifyEpisodeReady(seriesName, path string)
	NotifyTaskFailed(seriesName, message string)
	NotifyRunComplete(summary RunSummary)
	Test() error
}

// RunSummary counts task outcomes for one run.
type RunSummary struct {
	RunID     string
	Finished  int
	Failed    int
	Skipped   int
	Cancelled bool
}
