// Package scheduler runs periodic jobs such as the hourly data reload.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fundingboard/logger"
)

// DefaultReloadSpec runs at minute five of every hour, after the collector
// has appended the previous hour.
const DefaultReloadSpec = "0 5 * * * *"

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// JobStatus reports the history of one job.
type JobStatus struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
}

// Scheduler wraps a seconds-enabled cron with named jobs. Overlapping runs of
// the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *logger.Entry

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]*JobStatus
}

// New creates a stopped scheduler.
func New(log *logger.Log) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}
	entry := log.WithComponent("scheduler")
	cl := cronLogger{log: entry}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:  entry,
		ctx:  context.Background(),
		jobs: make(map[string]*JobStatus),
	}
}

// ValidateSpec reports whether spec parses as a six-field cron expression.
func ValidateSpec(spec string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Add registers job under name.
func (s *Scheduler) Add(name, spec string, job Job) error {
	st := &JobStatus{Name: name, Spec: spec}
	if _, err := s.cron.AddFunc(spec, func() { s.run(st, job) }); err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	s.mu.Lock()
	s.jobs[name] = st
	s.mu.Unlock()
	return nil
}

// RunNow executes a registered job synchronously.
func (s *Scheduler) RunNow(name string, job Job) {
	s.mu.Lock()
	st, ok := s.jobs[name]
	if !ok {
		st = &JobStatus{Name: name}
		s.jobs[name] = st
	}
	s.mu.Unlock()
	s.run(st, job)
}

func (s *Scheduler) run(st *JobStatus, job Job) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	start := time.Now()
	err := job(ctx)

	s.mu.Lock()
	st.LastRun = start
	st.Runs++
	if err != nil {
		st.Failures++
		st.LastErr = err.Error()
	} else {
		st.LastErr = ""
	}
	s.mu.Unlock()

	log := s.log.WithFields(logger.Fields{"job": st.Name, "duration_ms": time.Since(start).Milliseconds()})
	if err != nil {
		log.WithError(err).Warn("scheduled job failed")
		return
	}
	log.Debug("scheduled job finished")
}

// Start begins firing jobs. Jobs receive a context cancelled by Stop or by
// the parent ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("scheduler started")
}

// Stop halts the cron and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Status returns a copy of each job's counters.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, *st)
	}
	return out
}

// cronLogger routes cron's internal logging through logrus.
type cronLogger struct {
	log *logger.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kv(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kv(keysAndValues)).Error(msg)
}

func kv(keysAndValues []interface{}) logger.Fields {
	fields := logger.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			fields[k] = keysAndValues[i+1]
		}
	}
	return fields
}
