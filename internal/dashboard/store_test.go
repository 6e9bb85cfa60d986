package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"fundingboard/internal/metrics"
)

func TestRingKeepsNewestInOrder(t *testing.T) {
	r := newRing[int](3)
	if got := r.collect(nil); len(got) != 0 {
		t.Fatalf("expected empty ring, got %v", got)
	}
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	got := r.collect(nil)
	if len(got) != 3 || got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Fatalf("unexpected ring contents: %v", got)
	}
	even := r.collect(func(v int) bool { return v%2 == 0 })
	if len(even) != 1 || even[0] != 4 {
		t.Fatalf("unexpected filtered contents: %v", even)
	}
}

func TestMetricStoreLimitAndComponentFilter(t *testing.T) {
	store := newMetricStore(3)
	for i := 0; i < 5; i++ {
		component := "source"
		if i%2 == 1 {
			component = "store"
		}
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Component: component, Name: "history_rows_dropped", Value: i})
	}

	snapshot := store.snapshot("")
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 metrics in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Value != 2 || snapshot[2].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}

	sources := store.snapshot("source")
	if len(sources) != 2 || sources[0].Value != 2 || sources[1].Value != 4 {
		t.Fatalf("unexpected source metrics: %#v", sources)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "history load failed"
	entry.Data = logrus.Fields{"component": "source", "uri": "s3://bucket/history.csv", logrus.ErrorKey: errors.New("timeout")}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot(logrus.TraceLevel, "")
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}
	rec := snapshot[0]
	if rec.Component != "source" || rec.Fields["uri"] != "s3://bucket/history.csv" || rec.Fields[logrus.ErrorKey] != "timeout" {
		t.Fatalf("unexpected snapshot data: %#v", rec)
	}
	if _, ok := rec.Fields["component"]; ok {
		t.Fatalf("component should not be repeated in fields")
	}
}

func TestLogStoreFiltersByLevelAndComponent(t *testing.T) {
	store := newLogStore(10)
	fire := func(level logrus.Level, component string) {
		entry := logrus.NewEntry(logrus.New())
		entry.Level = level
		entry.Message = level.String()
		entry.Data = logrus.Fields{"component": component}
		store.Fire(entry)
	}
	fire(logrus.DebugLevel, "dashboard_http")
	fire(logrus.WarnLevel, "dashboard_http")
	fire(logrus.ErrorLevel, "source")

	if got := store.snapshot(logrus.WarnLevel, ""); len(got) != 2 {
		t.Fatalf("expected warn and error, got %#v", got)
	}
	if got := store.snapshot(logrus.TraceLevel, "source"); len(got) != 1 || got[0].Level != "error" {
		t.Fatalf("unexpected component filter result: %#v", got)
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := store.snapshot(logrus.TraceLevel, "")
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", len(snapshot))
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}

	if got := store.snapshot(logrus.TraceLevel, ""); len(got) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
