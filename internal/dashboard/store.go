package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fundingboard/internal/metrics"
)

// ring is a fixed-capacity buffer that overwrites its oldest element.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int
	full  bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 200
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.mu.Lock()
	r.items[r.next] = v
	r.next++
	if r.next == len(r.items) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// collect returns the retained elements oldest first, keeping those keep
// accepts.
func (r *ring[T]) collect(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ordered []T
	if r.full {
		ordered = append(append(ordered, r.items[r.next:]...), r.items[:r.next]...)
	} else {
		ordered = r.items[:r.next]
	}
	out := make([]T, 0, len(ordered))
	for _, v := range ordered {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// metricView is one retained metric event as served by /api/metrics.
type metricView struct {
	Timestamp string                 `json:"timestamp"`
	Component string                 `json:"component"`
	Name      string                 `json:"name"`
	Value     interface{}            `json:"value"`
	Type      string                 `json:"type"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// metricStore keeps the latest metric events: source loads, dropped rows
// and anything else routed through metrics.EmitMetric.
type metricStore struct {
	buf *ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{buf: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.buf.push(metric)
}

// snapshot returns retained metrics, only those of component when set.
func (s *metricStore) snapshot(component string) []metricView {
	items := s.buf.collect(func(m metrics.Metric) bool {
		return component == "" || m.Component == component
	})
	out := make([]metricView, 0, len(items))
	for _, m := range items {
		out = append(out, metricView{
			Timestamp: m.Timestamp.Format(time.RFC3339Nano),
			Component: m.Component,
			Name:      m.Name,
			Value:     m.Value,
			Type:      m.Type,
			Fields:    m.Fields,
		})
	}
	return out
}

type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`

	level logrus.Level
}

// logStore is a logrus hook keeping the latest log records for /api/logs.
type logStore struct {
	buf     *ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{buf: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		level:     entry.Level,
	}
	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}
	for k, v := range entry.Data {
		if k == "component" {
			continue
		}
		if record.Fields == nil {
			record.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			record.Fields[k] = val.Error()
		case fmt.Stringer:
			record.Fields[k] = val.String()
		default:
			record.Fields[k] = val
		}
	}

	s.buf.push(record)
	return nil
}

// snapshot returns records at least as severe as minLevel, only those of
// component when set.
func (s *logStore) snapshot(minLevel logrus.Level, component string) []logRecord {
	return s.buf.collect(func(r logRecord) bool {
		return r.level <= minLevel && (component == "" || r.Component == component)
	})
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
