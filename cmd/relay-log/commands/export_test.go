package commands

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t)
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines++
	}
	if lines != 9 {
		t.Errorf("expected 9 lines, got %d", lines)
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t)
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 10 {
		t.Fatalf("expected header plus 9 rows, got %d", len(rows))
	}
	if rows[0][6] != "topic" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	// Row 4 is the outbound publish.
	pub := rows[4]
	if pub[5] != "PUB" || pub[6] != "sensors/temp" || pub[7] != "4" {
		t.Errorf("unexpected publish row: %v", pub)
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t)
	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}
