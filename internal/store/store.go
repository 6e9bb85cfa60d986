// Package store holds the last loaded snapshot and history log and reloads
// them from their sources.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"fundingboard/internal/aggregate"
	"fundingboard/internal/metrics"
	"fundingboard/internal/model"
	"fundingboard/internal/source"
	"fundingboard/logger"
)

var (
	// ErrSnapshotUnavailable is returned while no snapshot has been loaded.
	ErrSnapshotUnavailable = errors.New("funding snapshot unavailable")
	// ErrHistoryUnavailable is returned while no history log has been loaded.
	ErrHistoryUnavailable = errors.New("funding history unavailable")
)

const (
	sourceSnapshot = "snapshot"
	sourceHistory  = "history"
)

// Config locates the two inputs.
type Config struct {
	SnapshotURI   string
	HistoryURI    string
	HistoryFormat source.Format
	FetchTimeout  time.Duration
	// KeepStale keeps the previous dataset when a reload of it fails.
	KeepStale bool
}

// Meta describes what is currently loaded.
type Meta struct {
	Version           uint64    `json:"version"`
	Timestamp         string    `json:"timestamp"`
	GeneratedAt       string    `json:"generated_at"`
	SnapshotLoadedAt  time.Time `json:"snapshot_loaded_at,omitempty"`
	HistoryLoadedAt   time.Time `json:"history_loaded_at,omitempty"`
	SnapshotAvailable bool      `json:"snapshot_available"`
	HistoryAvailable  bool      `json:"history_available"`
	Coins             int       `json:"coins"`
	Observations      int       `json:"observations"`
	DroppedSnapshot   int       `json:"dropped_snapshot"`
	DroppedHistory    int       `json:"dropped_history"`
	SnapshotError     string    `json:"snapshot_error,omitempty"`
	HistoryError      string    `json:"history_error,omitempty"`
}

// ReloadResult carries the per-source outcome of a reload.
type ReloadResult struct {
	SnapshotErr error
	HistoryErr  error
}

// Err joins both source errors.
func (r ReloadResult) Err() error {
	return errors.Join(r.SnapshotErr, r.HistoryErr)
}

// Observer is called after every reload with the resulting metadata.
type Observer func(Meta)

type history struct {
	all    []model.Observation
	byCoin map[string][]model.Observation
}

// Store is safe for concurrent use. Datasets are replaced as whole values.
type Store struct {
	cfg     Config
	fetcher source.Fetcher
	now     func() time.Time
	log     *logger.Log

	reloadMu sync.Mutex

	mu        sync.RWMutex
	snapshot  *model.Snapshot
	rows      []model.CoinRow
	history   *history
	meta      Meta
	observers []Observer
}

// New creates an empty store. Nothing is loaded until Reload runs.
func New(cfg Config, fetcher source.Fetcher, log *logger.Log) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.HistoryFormat == "" {
		cfg.HistoryFormat = source.FormatFor("", cfg.HistoryURI)
	}
	return &Store{cfg: cfg, fetcher: fetcher, now: time.Now, log: log}
}

// Subscribe registers fn to run after each reload.
func (s *Store) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Reload fetches the snapshot and the history log concurrently. Each source
// succeeds or fails on its own; the version is bumped whenever either dataset
// changes.
func (s *Store) Reload(ctx context.Context) ReloadResult {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	log := s.log.WithComponent("store")
	start := s.now()

	var (
		wg       sync.WaitGroup
		res      ReloadResult
		snap     *model.Snapshot
		snapDrop int
		hist     source.ParseResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		snap, snapDrop, res.SnapshotErr = s.loadSnapshot(ctx)
	}()
	go func() {
		defer wg.Done()
		hist, res.HistoryErr = s.loadHistory(ctx)
	}()
	wg.Wait()

	now := s.now()
	s.mu.Lock()
	changed := false
	if res.SnapshotErr == nil {
		s.snapshot = snap
		s.rows = aggregate.Merge(snap)
		s.meta.Timestamp = snap.Timestamp
		s.meta.GeneratedAt = snap.GeneratedAt
		s.meta.SnapshotLoadedAt = now
		s.meta.DroppedSnapshot = snapDrop
		s.meta.SnapshotError = ""
		changed = true
	} else {
		s.meta.SnapshotError = res.SnapshotErr.Error()
		if !s.cfg.KeepStale && s.snapshot != nil {
			s.snapshot, s.rows = nil, nil
			changed = true
		}
	}
	if res.HistoryErr == nil {
		s.history = indexHistory(hist.Observations)
		s.meta.HistoryLoadedAt = now
		s.meta.DroppedHistory = hist.Dropped
		s.meta.HistoryError = ""
		changed = true
	} else {
		s.meta.HistoryError = res.HistoryErr.Error()
		if !s.cfg.KeepStale && s.history != nil {
			s.history = nil
			changed = true
		}
	}
	if changed {
		s.meta.Version++
	}
	s.meta.SnapshotAvailable = s.snapshot != nil
	s.meta.HistoryAvailable = s.history != nil
	s.meta.Coins = len(s.rows)
	s.meta.Observations = 0
	if s.history != nil {
		s.meta.Observations = len(s.history.all)
	}
	meta := s.meta
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	metrics.SetLoaded(meta.Coins, meta.Observations)
	logger.LogPerformanceEntry(log, "store", "reload", now.Sub(start), logger.Fields{
		"version":      meta.Version,
		"coins":        meta.Coins,
		"observations": meta.Observations,
	})
	if err := res.Err(); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"snapshot_available": meta.SnapshotAvailable,
			"history_available":  meta.HistoryAvailable,
		}).Warn("reload finished with errors")
	}

	for _, fn := range observers {
		fn(meta)
	}
	return res
}

func (s *Store) fetch(ctx context.Context, uri string) ([]byte, error) {
	if uri == "" {
		return nil, errors.New("no uri configured")
	}
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}
	return s.fetcher.Fetch(ctx, uri)
}

func (s *Store) loadSnapshot(ctx context.Context) (*model.Snapshot, int, error) {
	data, err := s.fetch(ctx, s.cfg.SnapshotURI)
	if err == nil {
		var snap *model.Snapshot
		var dropped int
		snap, dropped, err = source.DecodeSnapshotCounted(bytes.NewReader(data))
		if err == nil {
			s.recordLoad(sourceSnapshot, s.cfg.SnapshotURI, nil, dropped, len(data))
			return snap, dropped, nil
		}
	}
	err = fmt.Errorf("load snapshot %s: %w", s.cfg.SnapshotURI, err)
	s.recordLoad(sourceSnapshot, s.cfg.SnapshotURI, err, 0, 0)
	return nil, 0, err
}

func (s *Store) loadHistory(ctx context.Context) (source.ParseResult, error) {
	data, err := s.fetch(ctx, s.cfg.HistoryURI)
	if err == nil {
		var res source.ParseResult
		res, err = source.ParseHistory(data, s.cfg.HistoryFormat)
		if err == nil {
			s.recordLoad(sourceHistory, s.cfg.HistoryURI, nil, res.Dropped, len(data))
			return res, nil
		}
	}
	err = fmt.Errorf("load history %s: %w", s.cfg.HistoryURI, err)
	s.recordLoad(sourceHistory, s.cfg.HistoryURI, err, 0, 0)
	return source.ParseResult{}, err
}

func (s *Store) recordLoad(name, uri string, err error, dropped, size int) {
	metrics.RecordSourceLoad(name, err, dropped)
	logger.RecordSourceLoad(err == nil, dropped)

	log := s.log.WithSource(name, uri)
	if err != nil {
		log.WithError(err).Error("source load failed")
		return
	}
	drop := metrics.DropMetricSnapshot
	if name == sourceHistory {
		drop = metrics.DropMetricHistory
	}
	metrics.EmitDropMetric(s.log, drop, uri, dropped)
	logger.LogDataFlowEntry(log, uri, "store", size, name)
}

func indexHistory(obs []model.Observation) *history {
	h := &history{all: obs, byCoin: make(map[string][]model.Observation)}
	for _, o := range obs {
		h.byCoin[o.Coin] = append(h.byCoin[o.Coin], o)
	}
	return h
}

// Rows returns the merged table rows of the current snapshot.
func (s *Store) Rows() ([]model.CoinRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshot == nil {
		return nil, ErrSnapshotUnavailable
	}
	return s.rows, nil
}

// Row returns the merged row for coin.
func (s *Store) Row(coin string) (model.CoinRow, bool, error) {
	rows, err := s.Rows()
	if err != nil {
		return model.CoinRow{}, false, err
	}
	row, ok := aggregate.Find(rows, coin)
	return row, ok, nil
}

// Observations returns the whole history log in file order.
func (s *Store) Observations() ([]model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.history.all, nil
}

// CoinObservations returns the history of a single coin. The slice is shared
// and must not be modified.
func (s *Store) CoinObservations(coin string) ([]model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.history.byCoin[coin], nil
}

// HistoryCoins lists coins present in the history log.
func (s *Store) HistoryCoins() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	coins := make([]string, 0, len(s.history.byCoin))
	for c := range s.history.byCoin {
		coins = append(coins, c)
	}
	sort.Strings(coins)
	return coins, nil
}

// Meta returns a copy of the current metadata.
func (s *Store) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}
