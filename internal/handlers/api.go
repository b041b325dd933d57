package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"anidl/internal/core"
	"anidl/internal/database/models"
	"anidl/internal/series"
	"anidl/internal/utils"
)

// Runner is the part of core.Service the API drives.
type Runner interface {
	Status() core.Status
	Series() []series.Descriptor
	Trigger() error
	Cancel() bool
	Subscribe() (<-chan core.StatusEvent, func())
}

type APIHandler struct {
	runner  Runner
	history *models.RunRepository
	logger  *utils.Logger
}

// A helper function to respond with JSON
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to respond with a JSON error
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// NewAPIHandler builds the handler. history may be nil when the database is
// disabled; history routes then answer 503.
func NewAPIHandler(runner Runner, history *models.RunRepository, logger *utils.Logger) *APIHandler {
	return &APIHandler{runner: runner, history: history, logger: logger}
}

type runView struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Cancelled  bool         `json:"cancelled"`
	Finished   int          `json:"finished"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Results    []resultView `json:"results"`
}

type resultView struct {
	Series            string  `json:"series"`
	Episode           int     `json:"episode,omitempty"`
	Path              string  `json:"path,omitempty"`
	Outcome           string  `json:"outcome"`
	Reason            string  `json:"reason,omitempty"`
	Error             string  `json:"error,omitempty"`
	DownloadSeconds   float64 `json:"download_seconds"`
	ConversionSeconds float64 `json:"conversion_seconds"`
}

func newRunView(s *core.RunSummary) *runView {
	if s == nil {
		return nil
	}
	v := &runView{
		ID:         s.ID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Cancelled:  s.Cancelled,
		Finished:   s.Count(core.OutcomeFinished),
		Failed:     s.Count(core.OutcomeFailed),
		Skipped:    s.Count(core.OutcomeSkipped),
	}
	for _, r := range s.Results {
		rv := resultView{
			Series:            r.Name,
			Episode:           r.Episode,
			Path:              r.Path,
			Outcome:           r.Outcome,
			Reason:            r.Reason,
			DownloadSeconds:   r.Download.Seconds(),
			ConversionSeconds: r.Conversion.Seconds(),
		}
		if r.Err != nil {
			rv.Error = r.Err.Error()
		}
		v.Results = append(v.Results, rv)
	}
	return v
}

type statusView struct {
	Running bool              `json:"running"`
	Phase   string            `json:"phase"`
	RunID   string            `json:"run_id,omitempty"`
	Board   []core.BoardEntry `json:"board"`
	Notices []string          `json:"notices"`
	LastRun *runView          `json:"last_run,omitempty"`
}

func newStatusView(st core.Status) statusView {
	board := st.Board
	if board == nil {
		board = []core.BoardEntry{}
	}
	notices := st.Notices
	if notices == nil {
		notices = []string{}
	}
	return statusView{
		Running: st.Running,
		Phase:   st.Phase,
		RunID:   st.RunID,
		Board:   board,
		Notices: notices,
		LastRun: newRunView(st.LastRun),
	}
}

func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newStatusView(h.runner.Status()))
}

func (h *APIHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.runner.Series())
}

// TriggerRun starts a run in the background.
func (h *APIHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	err := h.runner.Trigger()
	if errors.Is(err, core.ErrRunInProgress) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to trigger run:", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info("Run triggered via API")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *APIHandler) CancelRun(w http.ResponseWriter, r *http.Request) {
	if !h.runner.Cancel() {
		respondError(w, http.StatusConflict, "no run in progress")
		return
	}
	h.logger.Info("Run cancellation requested via API")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 20
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func (h *APIHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	runs, err := h.history.List(limitParam(r))
	if err != nil {
		h.logger.Error("Failed to list runs:", err)
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (h *APIHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	id := mux.Vars(r)["id"]
	run, err := h.history.GetByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to load run", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}
	results, err := h.history.Results(id)
	if err != nil {
		h.logger.Error("Failed to load results for run", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to load run")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"run": run, "results": results})
}

func (h *APIHandler) GetSeriesHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	results, err := h.history.SeriesHistory(mux.Vars(r)["name"], limitParam(r))
	if err != nil {
		h.logger.Error("Failed to load series history:", err)
		respondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	if results == nil {
		results = []models.TaskResult{}
	}
	respondJSON(w, http.StatusOK, results)
}
