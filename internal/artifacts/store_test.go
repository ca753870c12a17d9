package artifacts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRun(t *testing.T) {
	s := NewStore(t.TempDir())

	type record struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	in := record{ID: "run-1", Success: true}
	if err := s.SaveRun("run-1", &in); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	var out record
	if err := s.LoadRun("run-1", &out); err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestStageLogRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.SaveStageLog("run-1", "building", "compile output\n"); err != nil {
		t.Fatalf("SaveStageLog: %v", err)
	}
	got, err := s.GetStageLog("run-1", "building")
	if err != nil {
		t.Fatalf("GetStageLog: %v", err)
	}
	if got != "compile output\n" {
		t.Errorf("log = %q", got)
	}
}

func TestSaveDiagnosisCreatesAttemptDir(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	if err := s.SaveDiagnosis("run-2", 1, map[string]string{"root_cause": "x"}); err != nil {
		t.Fatalf("SaveDiagnosis: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run-2", "attempt-1", "diagnosis.json")); err != nil {
		t.Errorf("diagnosis file missing: %v", err)
	}
}

func TestListEmptyDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing"))
	ids, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if ids != nil {
		t.Errorf("ids = %v", ids)
	}
}

func TestDeleteMissingRun(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Delete("nope"); err == nil {
		t.Error("expected error for missing run")
	}
}

func TestWriteAtomicOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	if err := writeAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := writeAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeAtomic(filepath.Join(dir, "f.txt"), []byte("data")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "f.txt" {
		t.Errorf("dir entries = %v", entries)
	}
}
