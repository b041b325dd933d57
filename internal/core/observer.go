package core

import "time"

// Metrics receives pipeline measurements. The metrics package provides the
// prometheus implementation.
type Metrics interface {
	TaskStarted()
	TaskDone(outcome string)
	ConversionAttempt(result string)
	StageDuration(stage string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) TaskStarted()                        {}
func (nopMetrics) TaskDone(string)                     {}
func (nopMetrics) ConversionAttempt(string)            {}
func (nopMetrics) StageDuration(string, time.Duration) {}
