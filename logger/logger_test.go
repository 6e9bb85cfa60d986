package logger

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestWithSource(t *testing.T) {
	entry := Logger().WithSource("history", "s3://bucket/history.csv")
	if entry.Entry.Data["component"] != "source" || entry.Entry.Data["source"] != "history" || entry.Entry.Data["uri"] != "s3://bucket/history.csv" {
		t.Fatalf("unexpected fields: %v", entry.Entry.Data)
	}
}

func TestConfigureLevelsAndFormats(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("report", "text", "stderr", 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("report level should log at info, got %s", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("expected text formatter, got %T", log.Formatter)
	}
	if err := log.Configure("debug", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}

	path := filepath.Join(t.TempDir(), "board.log")
	if err := log.Configure("warn", "json", path, 0); err != nil {
		t.Fatalf("Configure with file output failed: %v", err)
	}
	log.WithComponent("test").Warn("written")
	if data, err := os.ReadFile(path); err != nil || len(data) == 0 {
		t.Fatalf("expected log file content, err=%v", err)
	}

	t.Setenv("LOG_LEVEL", "error")
	if err := log.Configure("debug", "json", "stdout", 0); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if log.GetLevel() != logrus.ErrorLevel {
		t.Errorf("LOG_LEVEL should win, got %s", log.GetLevel())
	}
}

func TestIsReportLevel(t *testing.T) {
	if !IsReportLevel(" Report ") || IsReportLevel("info") {
		t.Fatalf("unexpected report level detection")
	}
}

func TestWarnAndErrorAreCountedPerComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(io.Discard)

	entry := log.WithComponent("report_test")
	entry.Warn("first")
	entry.Error("second")
	entry.Error("third")

	fields := reportFields()
	comps := fields["components"].(map[string]map[string]int64)
	if comps["report_test"]["warns"] != 1 || comps["report_test"]["errors"] != 2 {
		t.Fatalf("unexpected component counters: %v", comps["report_test"])
	}
}

func TestRecordSourceLoad(t *testing.T) {
	before := reportFields()
	RecordSourceLoad(true, 3)
	RecordSourceLoad(false, 0)
	after := reportFields()

	if after["source_loads"].(int64)-before["source_loads"].(int64) != 1 {
		t.Fatalf("source_loads not incremented")
	}
	if after["source_failures"].(int64)-before["source_failures"].(int64) != 1 {
		t.Fatalf("source_failures not incremented")
	}
	if after["dropped_rows"].(int64)-before["dropped_rows"].(int64) != 3 {
		t.Fatalf("dropped_rows not incremented")
	}
}
