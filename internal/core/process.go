package core

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const maxLineBytes = 1024 * 1024

var commandContext = exec.CommandContext

// scanLinesCR splits on either '\n' or '\r' so carriage-return progress
// updates arrive one at a time.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// streamCommand runs binary in dir and hands every non-empty output line,
// stdout and stderr interleaved, to onLine. The context is checked at every
// line boundary; cancellation kills the whole process group and returns
// ErrCancelled.
func streamCommand(ctx context.Context, dir string, nice int, binary string, args []string, onLine func(string)) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}

	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	configureProcess(cmd)

	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return fmt.Errorf("start %s: %w", filepath.Base(binary), err)
	}
	w.Close()
	if nice > 0 {
		lowerPriority(cmd.Process.Pid, nice)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	scanner.Split(scanLinesCR)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		if line := scanner.Text(); line != "" {
			onLine(line)
		}
	}
	r.Close()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ErrCancelled
	}
	if waitErr != nil {
		return fmt.Errorf("%s: %w", filepath.Base(binary), waitErr)
	}
	return nil
}
