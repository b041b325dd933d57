package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"anidl/internal/config"
)

// Requirement names an external tool the pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports whether a requirement resolved on this host.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// PipelineRequirements lists the tools a run needs. The transcoder is only
// mandatory when transcoding can happen at all.
func PipelineRequirements(cfg config.Config, transcodeNeeded bool) []Requirement {
	return []Requirement{
		{Name: "aria2c", Command: cfg.Tools.Aria2c, Description: "multi-connection downloader"},
		{Name: "ffmpeg", Command: cfg.Tools.FFmpeg, Description: "transcoder and stream verifier", Optional: !transcodeNeeded},
	}
}

func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = path
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the mandatory requirements that did not resolve.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}

// Preflight fails when any mandatory tool is unavailable.
func Preflight(requirements []Requirement) error {
	missing := Missing(CheckBinaries(requirements))
	if len(missing) == 0 {
		return nil
	}
	parts := make([]string, 0, len(missing))
	for _, s := range missing {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Name, s.Detail))
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(parts, ", "))
}
