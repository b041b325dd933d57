package series

import (
	"fmt"
	"strings"
)

// Descriptor is the configuration for one tracked series. Name is the unique
// key used for status reporting.
type Descriptor struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	Service        string `json:"service"`
	SeriesPageURL  string `json:"series_page_url"`
	Continuation   bool   `json:"continue"`
	PassedEpisodes int    `json:"passed_episodes"`
	FilenameRoot   string `json:"filename_root,omitempty"`
	// Transcode overrides the run-wide transcode flag when set.
	Transcode *bool `json:"transcode,omitempty"`
	Enabled   *bool `json:"enabled,omitempty"`
}

func (d Descriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// TranscodeEnabled resolves the per-series override against the run default.
func (d Descriptor) TranscodeEnabled(runDefault bool) bool {
	if d.Transcode != nil {
		return *d.Transcode
	}
	return runDefault
}

func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("series name is required")
	}
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("series %q: path is required", d.Name)
	}
	if strings.TrimSpace(d.Service) == "" {
		return fmt.Errorf("series %q: service is required", d.Name)
	}
	if d.PassedEpisodes < 0 {
		return fmt.Errorf("series %q: passed_episodes must not be negative", d.Name)
	}
	return nil
}

type Action string

const (
	ActionProcess Action = "process"
	ActionSkip    Action = "skip"
)

// Task is one planned unit of work for one series. FinalFilename is attached
// once, after planning, by the filename reconciler.
type Task struct {
	Series        Descriptor `json:"series"`
	Action        Action     `json:"action"`
	Reason        string     `json:"reason"`
	DownloadURL   string     `json:"download_url,omitempty"`
	RemoteEpisode int        `json:"remote_episode,omitempty"`
	FinalEpisode  int        `json:"final_episode,omitempty"`
	FinalFilename string     `json:"final_filename,omitempty"`
}

func (t Task) Name() string {
	return t.Series.Name
}

// Skip builds a skip task with the given reason.
func Skip(desc Descriptor, reason string) Task {
	return Task{Series: desc, Action: ActionSkip, Reason: reason}
}
