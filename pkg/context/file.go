package context

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend stores each context as <dir>/<context_id>.json.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create context dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid context id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

func (f *FileBackend) Load(id string) (Record, bool, error) {
	p, err := f.path(id)
	if err != nil {
		return Record{}, false, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("read context %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("parse context %s: %w", id, err)
	}
	return rec, true, nil
}

// Save writes to a temp file and renames it over the old record, so a
// failed write never leaves a truncated record behind.
func (f *FileBackend) Save(rec Record) error {
	p, err := f.path(rec.ContextID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal context %s: %w", rec.ContextID, err)
	}

	tmp, err := os.CreateTemp(f.dir, rec.ContextID+".*.tmp")
	if err != nil {
		return fmt.Errorf("save context %s: %w", rec.ContextID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("save context %s: %w", rec.ContextID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save context %s: %w", rec.ContextID, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("save context %s: %w", rec.ContextID, err)
	}
	return nil
}

func (f *FileBackend) List() ([]Record, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}

	var result []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, ok, err := f.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (f *FileBackend) Close() error { return nil }
