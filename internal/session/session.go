// Package session keeps dashboard state per browser session and page view:
// display mode, chart type, range, the request counter and the last chart
// built for the selected coin.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fundingboard/internal/model"
)

// State is the user's current view settings.
type State struct {
	Mode      model.DisplayMode `json:"mode"`
	ChartType model.ChartType   `json:"chart_type"`
	Range     model.Range       `json:"range"`
}

// DefaultState is annualized, line chart, one day.
func DefaultState() State {
	return State{Mode: model.DisplayAnnualized, ChartType: model.ChartLine, Range: model.Range1d}
}

// ChartKind says what a built chart holds.
type ChartKind string

const (
	KindHourly  ChartKind = "hourly"
	KindSummary ChartKind = "summary"
	KindNone    ChartKind = "none"
)

// Chart is the last chart built for a session. Switching the chart type
// redraws it without rebuilding.
type Chart struct {
	Coin        string               `json:"coin"`
	Range       model.Range          `json:"range"`
	Kind        ChartKind            `json:"kind"`
	Points      []model.SeriesPoint  `json:"points,omitempty"`
	Summary     []model.SummaryPoint `json:"summary,omitempty"`
	Message     string               `json:"message,omitempty"`
	DataVersion uint64               `json:"data_version"`
	BuiltAt     time.Time            `json:"built_at"`
}

// maxPages bounds the views kept per session; the least recently used view
// is dropped first.
const maxPages = 16

// pageView is one loaded dashboard page. Every page load starts from the default
// state and its own request counter.
type pageView struct {
	state   State
	latest  uint64
	chart   *Chart
	touched time.Time
}

type entry struct {
	pages   map[string]*pageView
	touched time.Time
}

// Manager holds sessions keyed by id. Idle sessions expire after ttl.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// NewManager returns a manager; ttl <= 0 keeps sessions forever.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{sessions: make(map[string]*entry), ttl: ttl, now: time.Now}
}

// Ensure returns id when it names a live session, otherwise a new session
// id. created reports whether a session was created.
func (m *Manager) Ensure(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.lookup(id); e != nil {
		return id, false
	}
	id = uuid.NewString()
	m.sessions[id] = &entry{pages: make(map[string]*pageView), touched: m.now()}
	return id, true
}

// OpenPage registers a new page view in session id with the default state.
func (m *Manager) OpenPage(id string) (string, State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(id)
	if e == nil {
		return "", State{}, false
	}
	pageID := uuid.NewString()
	m.view(e, pageID)
	return pageID, DefaultState(), true
}

// Get returns the state of a page. Unknown pages of a live session start
// from the default state.
func (m *Manager) Get(id, pageID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(id)
	if e == nil {
		return State{}, false
	}
	return m.view(e, pageID).state, true
}

// Update applies fn to the page state and returns the result.
func (m *Manager) Update(id, pageID string, fn func(*State)) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(id)
	if e == nil {
		return State{}, false
	}
	p := m.view(e, pageID)
	fn(&p.state)
	return p.state, true
}

// Begin issues the sequence token for a new chart request on a page. A
// positive clientSeq is used as the token and raises the latest seen value;
// otherwise the next token is allocated.
func (m *Manager) Begin(id, pageID string, clientSeq uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(id)
	if e == nil {
		return 0
	}
	p := m.view(e, pageID)
	if clientSeq > 0 {
		if clientSeq > p.latest {
			p.latest = clientSeq
		}
		return clientSeq
	}
	p.latest++
	return p.latest
}

// Commit stores chart as the page's last chart if seq is still the most
// recent token. It reports false when a newer request superseded this one.
func (m *Manager) Commit(id, pageID string, seq uint64, chart Chart) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(id)
	if e == nil {
		return false
	}
	p := m.view(e, pageID)
	if seq < p.latest {
		return false
	}
	c := chart
	p.chart = &c
	return true
}

// LastChart returns the chart most recently committed on a page.
func (m *Manager) LastChart(id, pageID string) (Chart, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(id)
	if e == nil {
		return Chart{}, false
	}
	p, ok := e.pages[pageID]
	if !ok || p.chart == nil {
		return Chart{}, false
	}
	p.touched = m.now()
	return *p.chart, true
}

// Pages reports the number of page views held by session id.
func (m *Manager) Pages(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.lookup(id); e != nil {
		return len(e.pages)
	}
	return 0
}

// Sweep removes expired sessions and returns how many were dropped.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, e := range m.sessions {
		if now.Sub(e.touched) > m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Len reports the number of sessions held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// lookup must be called with mu held.
func (m *Manager) lookup(id string) *entry {
	if id == "" {
		return nil
	}
	e, ok := m.sessions[id]
	if !ok {
		return nil
	}
	now := m.now()
	if m.ttl > 0 && now.Sub(e.touched) > m.ttl {
		delete(m.sessions, id)
		return nil
	}
	e.touched = now
	return e
}

// view returns the page view pageID of e, creating it when absent. It must
// be called with mu held.
func (m *Manager) view(e *entry, pageID string) *pageView {
	now := m.now()
	if p, ok := e.pages[pageID]; ok {
		p.touched = now
		return p
	}
	if len(e.pages) >= maxPages {
		var (
			oldest string
			at     time.Time
		)
		for k, p := range e.pages {
			if at.IsZero() || p.touched.Before(at) {
				oldest, at = k, p.touched
			}
		}
		delete(e.pages, oldest)
	}
	p := &pageView{state: DefaultState(), touched: now}
	e.pages[pageID] = p
	return p
}
