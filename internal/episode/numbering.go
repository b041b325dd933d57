package episode

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	markerPattern = regexp.MustCompile(`(?i)[._-]Ep[._-]?(\d+)`)

	mediaExtensions = map[string]bool{
		".mkv": true,
		".mp4": true,
		".avi": true,
		".mov": true,
	}
)

// IsMedia reports whether name has a recognized media extension.
func IsMedia(name string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(name))]
}

// Index extracts the episode index embedded in name, if any.
func Index(name string) (int, bool) {
	m := markerPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// NextLocal returns one past the highest episode index found among media
// files in dir, or 1 when there is none. The directory is created if missing.
func NextLocal(dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create series dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read series dir: %w", err)
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsMedia(entry.Name()) {
			continue
		}
		if n, ok := Index(entry.Name()); ok && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// Resolve maps the next local index and the passed-episode offset to the
// remote episode to request and the final local index to write.
//
// Without continuation both equal nextLocal. With continuation the final
// index is max(nextLocal, passed+1) and the remote index is final-passed,
// except when nextLocal <= passed, where the remote index is the final index
// itself.
func Resolve(nextLocal, passed int, continuation bool) (remote, final int) {
	if !continuation {
		return nextLocal, nextLocal
	}
	final = nextLocal
	if passed+1 > final {
		final = passed + 1
	}
	if nextLocal <= passed {
		return final, final
	}
	return final - passed, final
}

// CheckInvariant verifies that a planned pair is what Resolve would produce
// for the current disk state.
func CheckInvariant(nextLocal, passed int, continuation bool, remote, final int) error {
	wantRemote, wantFinal := Resolve(nextLocal, passed, continuation)
	if final != wantFinal || remote != wantRemote {
		return fmt.Errorf("episode numbering mismatch: planned remote %d final %d, expected remote %d final %d (next on disk %d, passed %d, continuation %t)",
			remote, final, wantRemote, wantFinal, nextLocal, passed, continuation)
	}
	return nil
}
