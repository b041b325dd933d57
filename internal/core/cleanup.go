package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/process"

	"anidl/internal/series"
	"anidl/internal/utils"
)

// Linux truncates process names to this many bytes.
const commNameLen = 15

// Cleanup reconciles on-disk and process state after a cancelled run.
type Cleanup struct {
	ToolNames []string
	Since     time.Time
	OutputDir string
	Sweep     bool
	Logger    *utils.Logger

	listProcesses func() ([]*process.Process, error)
}

// SweepProcesses kills processes named like one of the tools that were
// started after Since. Hosts that refuse process listing make this a no-op.
func (c *Cleanup) SweepProcesses() int {
	if !c.Sweep {
		return 0
	}
	list := c.listProcesses
	if list == nil {
		list = process.Processes
	}
	procs, err := list()
	if err != nil {
		c.Logger.Warn("Process sweep unavailable:", err)
		return 0
	}

	self := int32(os.Getpid())
	sinceMillis := c.Since.UnixMilli()
	killed := 0
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.Name()
		if err != nil || !c.matches(name) {
			continue
		}
		created, err := p.CreateTime()
		if err != nil || created < sinceMillis {
			continue
		}
		if err := p.Kill(); err != nil {
			c.Logger.Debug("Could not kill", name, p.Pid, err)
			continue
		}
		c.Logger.Info("Killed straggling", name, "process", p.Pid)
		killed++
	}
	return killed
}

func (c *Cleanup) matches(name string) bool {
	for _, tool := range c.ToolNames {
		base := filepath.Base(strings.TrimSpace(tool))
		if base == "" || base == "." {
			continue
		}
		if name == base {
			return true
		}
		if len(name) == commNameLen && strings.HasPrefix(base, name) {
			return true
		}
	}
	return false
}

// ArtifactPaths lists the files a cut-short task may have left behind.
func ArtifactPaths(task series.Task, outputDir string) []string {
	if task.FinalFilename == "" {
		return nil
	}
	local := filepath.Join(task.Series.Path, task.FinalFilename)
	out := filepath.Join(outputDir, task.FinalFilename)
	return []string{
		local,
		local + ".aria2",
		out,
		out + ".log",
	}
}

// RemoveArtifacts deletes every artifact of tasks. Each removal is
// independent and a missing file is not an error.
func (c *Cleanup) RemoveArtifacts(tasks []series.Task) {
	for _, task := range tasks {
		for _, path := range ArtifactPaths(task, c.OutputDir) {
			if err := utils.RemoveIfExists(path); err != nil {
				c.Logger.Warn("Could not remove", path+":", err)
				continue
			}
			c.Logger.Debug("Removed", path)
		}
	}
}

func cleanPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
