package research

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileExporter(t *testing.T) {
	dir := t.TempDir()
	exporter := NewFileExporter(dir)
	result := &Result{Topic: "ocean acidification trends", Report: "# Report\n\nBody."}

	path, err := exporter.Export(context.Background(), result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "ocean_acidification_trends_report.md" {
		t.Errorf("unexpected filename %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if string(data) != result.Report {
		t.Errorf("report content mismatch: %q", data)
	}
}

func TestReportFilename(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"ocean acidification", "ocean_acidification_report.md"},
		{"  spaced  ", "spaced_report.md"},
		{"", "research_report.md"},
	}
	for _, tt := range tests {
		if got := reportFilename(tt.topic); got != tt.want {
			t.Errorf("reportFilename(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
