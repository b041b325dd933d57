package series

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Repository reads and writes the JSON series list.
type Repository struct {
	path string
	mu   sync.Mutex
}

func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

func (r *Repository) Path() string {
	return r.path
}

// Load returns every descriptor in the file, sorted by name. A missing file is
// created with an empty list.
func (r *Repository) Load() ([]Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := r.writeLocked(nil); err != nil {
			return nil, err
		}
		return []Descriptor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read series file: %w", err)
	}

	var list []Descriptor
	if len(data) > 0 {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("parse series file %s: %w", r.path, err)
		}
	}

	seen := make(map[string]struct{}, len(list))
	for _, d := range list {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("duplicate series name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	if list == nil {
		list = []Descriptor{}
	}
	return list, nil
}

// Save replaces the file contents atomically.
func (r *Repository) Save(list []Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(list)
}

func (r *Repository) writeLocked(list []Descriptor) error {
	if list == nil {
		list = []Descriptor{}
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create series dir: %w", err)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write series file: %w", err)
	}
	return os.Rename(tmp, r.path)
}
