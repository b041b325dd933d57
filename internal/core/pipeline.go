package core

import (
	"context"
	"errors"
	"time"

	"anidl/internal/clients/notifications"
	"anidl/internal/series"
	"anidl/internal/utils"
)

type DownloadStage interface {
	Download(ctx context.Context, task series.Task, sink StatusSink) (string, time.Duration, error)
}

type ConversionStage interface {
	Convert(ctx context.Context, localPath, seriesName, outputDir string, sink StatusSink) (time.Duration, error)
}

const (
	OutcomeFinished  = "finished"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeSkipped   = "skipped"
)

// Result is the terminal record of one task.
type Result struct {
	Name       string
	Episode    int
	Filename   string
	Path       string
	Download   time.Duration
	Conversion time.Duration
	Outcome    string
	Reason     string
	Err        error
}

// Pipeline runs download and the optional conversion for one task.
type Pipeline struct {
	Downloader DownloadStage
	Converter  ConversionStage
	OutputDir  string
	// Transcode is the run-wide default; a series may override it.
	Transcode bool
	Logger    *utils.Logger
	ErrorLog  *utils.ErrorLog
	Metrics   Metrics
	Notifiers []notifications.Notifier
}

func (p *Pipeline) metrics() Metrics {
	if p.Metrics == nil {
		return nopMetrics{}
	}
	return p.Metrics
}

// Run never returns an error directly: failures are reported through sink,
// the error log and Result.Err. Cancellation is logged only.
func (p *Pipeline) Run(ctx context.Context, task series.Task, sink StatusSink) Result {
	name := task.Name()
	res := Result{Name: name, Episode: task.FinalEpisode, Filename: task.FinalFilename}
	m := p.metrics()
	m.TaskStarted()

	path, dl, err := p.Downloader.Download(ctx, task, sink)
	res.Download = dl
	m.StageDuration("download", dl)
	if err != nil {
		if !errors.Is(err, ErrCancelled) {
			p.discardPartial(task)
		}
		return p.fail(res, err, sink)
	}
	res.Path = path

	if task.Series.TranscodeEnabled(p.Transcode) {
		conv, err := p.Converter.Convert(ctx, path, name, p.OutputDir, sink)
		res.Conversion = conv
		m.StageDuration("conversion", conv)
		if err != nil {
			return p.fail(res, err, sink)
		}
	}

	res.Outcome = OutcomeFinished
	m.TaskDone(OutcomeFinished)
	p.Logger.Info("✅ Episode ready for", name+":", path)
	reportFinished(sink, name, path, res.Download, res.Conversion)
	for _, n := range p.Notifiers {
		go n.NotifyEpisodeReady(name, path)
	}
	return res
}

// discardPartial removes what a failed download left in the series
// directory. A leftover episode file would otherwise count as on disk and the
// episode would never be fetched again.
func (p *Pipeline) discardPartial(task series.Task) {
	paths := ArtifactPaths(task, p.OutputDir)
	if len(paths) < 2 {
		return
	}
	for _, path := range paths[:2] {
		if err := utils.RemoveIfExists(path); err != nil {
			p.Logger.Warn("Could not remove partial download", path+":", err)
		}
	}
}

func (p *Pipeline) fail(res Result, err error, sink StatusSink) Result {
	res.Err = err
	if errors.Is(err, ErrCancelled) {
		res.Outcome = OutcomeCancelled
		p.metrics().TaskDone(OutcomeCancelled)
		p.Logger.Warn("Task for", res.Name, "cancelled")
		return res
	}
	res.Outcome = OutcomeFailed
	p.metrics().TaskDone(OutcomeFailed)
	msg := err.Error()
	p.Logger.Error("Task for", res.Name, "failed:", msg)
	p.ErrorLog.Record(res.Name, msg)
	sink.Error(res.Name, msg)
	for _, n := range p.Notifiers {
		go n.NotifyTaskFailed(res.Name, msg)
	}
	return res
}
