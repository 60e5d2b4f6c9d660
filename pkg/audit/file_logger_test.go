package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "checks.ndjson")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	records := []*PermissionCheckLog{
		{SubjectID: "u-1", Resource: "orders", Allowed: true},
		{SubjectID: "u-2", Resource: "orders", Allowed: false, ErrorCode: "user_not_found"},
	}
	for _, r := range records {
		if err := logger.LogCheck(context.Background(), r); err != nil {
			t.Fatalf("LogCheck failed: %v", err)
		}
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lines int
	for scanner.Scan() {
		var decoded PermissionCheckLog
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines+1, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 NDJSON lines, got %d", lines)
	}
}

func TestFileLogger_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checks.ndjson")

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		if err := logger.LogCheck(context.Background(), &PermissionCheckLog{SubjectID: "u-1"}); err != nil {
			t.Fatalf("LogCheck failed: %v", err)
		}
		logger.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if got := countLines(data); got != 2 {
		t.Errorf("expected 2 lines after reopen, got %d", got)
	}
}

func TestFileLogger_ClosedWrite(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "checks.ndjson"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()

	if err := logger.LogCheck(context.Background(), &PermissionCheckLog{}); err == nil {
		t.Fatal("expected error writing to closed logger")
	}
}

func countLines(data []byte) int {
	var n int
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
