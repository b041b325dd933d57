//go:build !linux && !darwin

package core

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}

func lowerPriority(pid, nice int) {}
