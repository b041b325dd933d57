package database

import (
	"database/sql"

	"anidl/internal/core"
	"anidl/internal/database/models"
)

// Recorder stores finished runs as history.
type Recorder struct {
	runs *models.RunRepository
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{runs: models.NewRunRepository(db)}
}

func (r *Recorder) Runs() *models.RunRepository { return r.runs }

func (r *Recorder) RecordRun(summary core.RunSummary) error {
	run := &models.Run{
		ID:             summary.ID,
		StartedAt:      summary.StartedAt.UTC(),
		FinishedAt:     summary.FinishedAt.UTC(),
		Cancelled:      summary.Cancelled,
		FinishedCount:  summary.Count(core.OutcomeFinished),
		FailedCount:    summary.Count(core.OutcomeFailed),
		SkippedCount:   summary.Count(core.OutcomeSkipped),
		CancelledCount: summary.Count(core.OutcomeCancelled),
	}
	results := make([]models.TaskResult, 0, len(summary.Results))
	for _, res := range summary.Results {
		tr := models.TaskResult{
			Series:            res.Name,
			Episode:           res.Episode,
			Filename:          optional(res.Filename),
			Path:              optional(res.Path),
			Outcome:           res.Outcome,
			Reason:            optional(res.Reason),
			DownloadSeconds:   res.Download.Seconds(),
			ConversionSeconds: res.Conversion.Seconds(),
		}
		if res.Err != nil {
			tr.Error = optional(res.Err.Error())
		}
		results = append(results, tr)
	}
	return r.runs.Create(run, results)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
