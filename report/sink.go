package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoReport is returned when there is no result artifact to read
var ErrNoReport = errors.New("no results")

// Prefix and layout of report file names
const (
	filePrefix = "sensitivity_sweep_"
	fileLayout = "2006-01-02_15-04-05"
)

// Sink writes reports under a results directory
type Sink struct {
	Dir string

	// Now stamps file names, time.Now if nil
	Now func() time.Time
}

// Write stores rows as an indented JSON array in a timestamped file and
// returns its path.  The file appears atomically.
func (s Sink) Write(rows []Row) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	if rows == nil {
		rows = []Row{}
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, filePrefix+now().Format(fileLayout)+".json")
	tmp, err := os.CreateTemp(s.Dir, ".sweep-*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		return "", err
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// Read parses a report file.  A missing file yields ErrNoReport
func Read(path string) ([]Row, error) {
	if path == "" {
		return nil, ErrNoReport
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoReport
		}
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return rows, nil
}

// Exists returns true if path names a report on disk
func Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
