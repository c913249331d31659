package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func reset() {
	SetVerbose(false)
	SetOutput(os.Stderr)
	_ = SetLogFile("")
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid JSON record %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestSetVerbose(t *testing.T) {
	defer reset()

	SetVerbose(false)
	if IsVerbose() {
		t.Error("expected verbose to be false initially")
	}

	SetVerbose(true)
	if !IsVerbose() {
		t.Error("expected verbose to be true after SetVerbose(true)")
	}
}

func TestDebug_WhenVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Debug("test message %s", "arg")

	records := decodeLines(t, &buf)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0]["msg"] != "test message arg" {
		t.Errorf("unexpected msg: %v", records[0]["msg"])
	}
	if records[0]["level"] != "DEBUG" {
		t.Errorf("unexpected level: %v", records[0]["level"])
	}
}

func TestDebugAndInfo_WhenNotVerbose(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("hidden")
	Info("hidden")
	Section("hidden")

	if buf.Len() > 0 {
		t.Errorf("expected no output when verbose is disabled, got %q", buf.String())
	}
}

func TestWarnAndError_AlwaysEmitted(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	Warn("reranker %s failed", "tei")
	Error("boom")

	records := decodeLines(t, &buf)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0]["level"] != "WARN" || records[0]["msg"] != "reranker tei failed" {
		t.Errorf("unexpected warn record: %v", records[0])
	}
	if records[1]["level"] != "ERROR" {
		t.Errorf("unexpected error record: %v", records[1])
	}
}

func TestSection(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)

	Section("Retrieval")

	records := decodeLines(t, &buf)
	if len(records) != 1 || records[0]["name"] != "Retrieval" {
		t.Errorf("unexpected section record: %v", records)
	}
}

func TestSetLogFile_FansOut(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	path := filepath.Join(t.TempDir(), "kb.log")
	if err := SetLogFile(path); err != nil {
		t.Fatalf("SetLogFile: %v", err)
	}

	Warn("written twice")
	if err := SetLogFile(""); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written twice") {
		t.Errorf("log file missing record: %q", data)
	}
	if !strings.Contains(buf.String(), "written twice") {
		t.Errorf("console missing record: %q", buf.String())
	}
}

func TestSetLogFile_BadPath(t *testing.T) {
	defer reset()

	if err := SetLogFile(filepath.Join(t.TempDir(), "missing", "kb.log")); err == nil {
		t.Error("expected error for unwritable path")
	}
}

func TestConcurrentAccess(t *testing.T) {
	defer reset()

	var buf bytes.Buffer
	SetOutput(&buf)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			SetVerbose(true)
			Debug("concurrent")
			_ = IsVerbose()
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
