// Package artifacts persists per-run artifacts (logs, diagnoses, fix
// prompts) on disk so failed runs can be inspected after the fact. The core
// orchestrator treats every write here as best-effort.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store manages run artifacts on disk.
type Store struct {
	baseDir string // defaults to ~/.medic/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.medic/runs, creating the directory if
// needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".medic", "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// runDir returns the directory for a run.
func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// attemptDir returns the directory for one fix attempt within a run.
func (s *Store) attemptDir(runID string, attempt int) string {
	return filepath.Join(s.runDir(runID), fmt.Sprintf("attempt-%d", attempt))
}

// SaveRun writes the frozen run record as run.json.
func (s *Store) SaveRun(runID string, v interface{}) error {
	return writeJSON(filepath.Join(s.runDir(runID), "run.json"), v)
}

// LoadRun reads a run record back into v.
func (s *Store) LoadRun(runID string, v interface{}) error {
	return readJSON(filepath.Join(s.runDir(runID), "run.json"), v)
}

// SaveStageLog saves the captured command output for a stage.
func (s *Store) SaveStageLog(runID string, stage string, log string) error {
	return writeAtomic(filepath.Join(s.runDir(runID), stage+".log"), []byte(log))
}

// GetStageLog reads the captured command output for a stage.
func (s *Store) GetStageLog(runID string, stage string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.runDir(runID), stage+".log"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveDiagnosis writes the oracle diagnosis JSON for a fix attempt.
func (s *Store) SaveDiagnosis(runID string, attempt int, v interface{}) error {
	return writeJSON(filepath.Join(s.attemptDir(runID, attempt), "diagnosis.json"), v)
}

// SaveFixPrompt writes the fix instructions for a fix attempt.
func (s *Store) SaveFixPrompt(runID string, attempt int, prompt string) error {
	return writeAtomic(filepath.Join(s.attemptDir(runID, attempt), "prompt.md"), []byte(prompt))
}

// List returns the IDs of all persisted runs, sorted by name.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Delete removes all artifacts for a run.
func (s *Store) Delete(runID string) error {
	dir := s.runDir(runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", runID)
	}
	return os.RemoveAll(dir)
}

// writeAtomic stages data in a temp file beside the target and renames it
// into place, so a crash mid-write never leaves a truncated artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".medic-*")
	if err != nil {
		return fmt.Errorf("stage artifact %s: %w", path, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact %s: %w", path, werr)
	}
	return nil
}

// writeJSON writes v as indented JSON, atomically.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", path, err)
	}
	return writeAtomic(path, append(data, '\n'))
}

// readJSON reads a JSON artifact into v. A missing file surfaces as the raw
// os error so callers can distinguish "not found".
func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return nil
}
