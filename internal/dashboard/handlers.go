package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fundingboard/internal/aggregate"
	"fundingboard/internal/cache"
	"fundingboard/internal/chart"
	"fundingboard/internal/metrics"
	"fundingboard/internal/model"
	"fundingboard/internal/series"
	"fundingboard/internal/session"
	"fundingboard/logger"
)

const (
	msgSnapshotUnavailable = "Funding data is currently unavailable. Please try again later."
	msgNoCoinData          = "No funding data available for this coin."
)

func noRangeDataMessage(coin string, r model.Range) string {
	return fmt.Sprintf("No funding data available for %s in the selected range (%s).", coin, r)
}

func (s *Server) handleIndex(c *gin.Context, appName string) {
	page, state, ok := s.sessions.OpenPage(sessionID(c))
	if !ok {
		state = session.DefaultState()
	}
	meta := s.store.Meta()

	data := gin.H{
		"AppName":    appName,
		"Page":       page,
		"Columns":    tableColumns,
		"Mode":       string(state.Mode),
		"ChartType":  string(state.ChartType),
		"Ranges":     rangeOptions(state.Range),
		"Timestamp":  meta.Timestamp,
		"Generated":  meta.GeneratedAt,
		"Websocket":  s.hub != nil,
		"Hourly":     state.Mode == model.DisplayHourly,
		"Annualized": state.Mode != model.DisplayHourly,
	}

	rows, err := s.store.Rows()
	if err != nil {
		data["Error"] = msgSnapshotUnavailable
		c.HTML(http.StatusServiceUnavailable, "index.tmpl", data)
		return
	}
	data["Rows"] = newRowViews(rows, state.Mode)
	c.HTML(http.StatusOK, "index.tmpl", data)
}

func (s *Server) handleCoins(c *gin.Context) {
	state, ok := s.sessions.Get(sessionID(c), pageID(c))
	if !ok {
		state = session.DefaultState()
	}
	mode := state.Mode
	if q := c.Query("mode"); q != "" {
		m, err := model.ParseDisplayMode(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mode = m
	}

	rows, err := s.store.Rows()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgSnapshotUnavailable})
		return
	}

	meta := s.store.Meta()
	c.JSON(http.StatusOK, gin.H{
		"mode":         mode,
		"timestamp":    meta.Timestamp,
		"generated_at": meta.GeneratedAt,
		"version":      meta.Version,
		"rows":         newRowViews(rows, mode),
	})
}

type historyResponse struct {
	Seq         uint64            `json:"seq"`
	Stale       bool              `json:"stale"`
	Coin        string            `json:"coin"`
	Range       model.Range       `json:"range"`
	Mode        model.DisplayMode `json:"mode"`
	Kind        session.ChartKind `json:"kind"`
	Message     string            `json:"message,omitempty"`
	Points      []pointView       `json:"points,omitempty"`
	Counts      *series.Counts    `json:"counts,omitempty"`
	LabelEvery  int               `json:"label_every,omitempty"`
	Summary     []summaryView     `json:"summary,omitempty"`
	DataVersion uint64            `json:"data_version"`
}

func (s *Server) handleHistory(c *gin.Context) {
	id, page := sessionID(c), pageID(c)
	coin := strings.TrimSpace(c.Param("coin"))

	var clientSeq uint64
	if q := c.Query("seq"); q != "" {
		n, err := strconv.ParseUint(q, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
			return
		}
		clientSeq = n
	}

	state, ok := s.stateFromQuery(c, id, page)
	if !ok {
		return
	}

	seq := s.sessions.Begin(id, page, clientSeq)
	built := s.buildChart(coin, state.Range)
	fresh := s.sessions.Commit(id, page, seq, built)
	if !fresh {
		metrics.IncrementStale()
		s.log.WithComponent("dashboard").WithFields(logger.Fields{
			"coin":       coin,
			"seq":        seq,
			"page":       page,
			"request_id": c.GetString(ctxRequestID),
		}).Debug("superseded history response")
	}

	resp := historyResponse{
		Seq:         seq,
		Stale:       !fresh,
		Coin:        built.Coin,
		Range:       built.Range,
		Mode:        state.Mode,
		Kind:        built.Kind,
		Message:     built.Message,
		DataVersion: built.DataVersion,
	}
	switch built.Kind {
	case session.KindHourly:
		counts := series.Count(built.Points)
		resp.Points = newPointViews(built.Points, state.Mode)
		resp.Counts = &counts
		resp.LabelEvery = built.Range.LabelEvery()
	case session.KindSummary:
		resp.Summary = newSummaryViews(built.Summary, state.Mode)
	}
	c.JSON(http.StatusOK, resp)
}

// stateFromQuery applies range, type and mode query parameters to the page
// state and returns the result. It writes a 400 on bad input.
func (s *Server) stateFromQuery(c *gin.Context, id, page string) (session.State, bool) {
	var (
		r    model.Range
		ct   model.ChartType
		mode model.DisplayMode
		err  error
	)
	if q := c.Query("range"); q != "" {
		if r, err = model.ParseRange(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return session.State{}, false
		}
	}
	if q := c.Query("type"); q != "" {
		if ct, err = model.ParseChartType(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return session.State{}, false
		}
	}
	if q := c.Query("mode"); q != "" {
		if mode, err = model.ParseDisplayMode(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return session.State{}, false
		}
	}

	state, ok := s.sessions.Update(id, page, func(st *session.State) {
		if r != "" {
			st.Range = r
		}
		if ct != "" {
			st.ChartType = ct
		}
		if mode != "" {
			st.Mode = mode
		}
	})
	if !ok {
		state = session.DefaultState()
	}
	return state, true
}

// buildChart reconstructs the hourly series for coin over r, falling back to
// the snapshot summary when the history log is unavailable.
func (s *Server) buildChart(coin string, r model.Range) session.Chart {
	now := s.now()
	meta := s.store.Meta()
	built := session.Chart{
		Coin:        coin,
		Range:       r,
		DataVersion: meta.Version,
		BuiltAt:     now,
	}

	obs, err := s.store.CoinObservations(coin)
	if err != nil {
		row, found, rowErr := s.store.Row(coin)
		if rowErr == nil && found {
			if summary := aggregate.Summary(row); len(summary) > 0 {
				built.Kind = session.KindSummary
				built.Summary = summary
				return built
			}
		}
		built.Kind = session.KindNone
		built.Message = msgNoCoinData
		return built
	}

	start := time.Now()
	points := series.Build(obs, coin, series.WindowStart(r, now), now, series.WithLocation(s.loc))
	metrics.IncrementSeriesBuild(string(r))
	logger.LogPerformanceEntry(s.log.WithComponent("dashboard"), "dashboard", "series_build", time.Since(start), logger.Fields{
		"coin":   coin,
		"range":  string(r),
		"points": len(points),
	})

	if series.Count(points).Observed == 0 {
		built.Kind = session.KindNone
		built.Message = noRangeDataMessage(coin, r)
		return built
	}
	built.Kind = session.KindHourly
	built.Points = points
	return built
}

func (s *Server) handleChart(c *gin.Context) {
	id, page := sessionID(c), pageID(c)
	coin := strings.TrimSpace(c.Param("coin"))

	state, ok := s.stateFromQuery(c, id, page)
	if !ok {
		return
	}

	// switching the chart type redraws the last chart; only a different coin,
	// range or dataset needs a rebuild
	meta := s.store.Meta()
	built, found := s.sessions.LastChart(id, page)
	if !found || built.Coin != coin || built.Range != state.Range || built.DataVersion != meta.Version {
		built = s.buildChart(coin, state.Range)
	}

	if built.Kind == session.KindNone {
		c.JSON(http.StatusNotFound, gin.H{"error": built.Message})
		return
	}

	key := cache.ChartKey{
		DataVersion: built.DataVersion,
		Coin:        built.Coin,
		Range:       built.Range,
		ChartType:   state.ChartType,
		Mode:        state.Mode,
		Kind:        string(built.Kind),
		Hour:        built.BuiltAt,
	}.String()

	ctx := c.Request.Context()
	if s.cache != nil {
		if png, hit, err := s.cache.Get(ctx, key); err == nil && hit {
			metrics.IncrementChartRender(string(state.ChartType), true)
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "image/png", png)
			return
		}
	}

	png, err := s.renderChart(built, state)
	if err != nil {
		if errors.Is(err, chart.ErrNoData) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgNoCoinData})
			return
		}
		s.log.WithComponent("dashboard").WithError(err).WithFields(logger.Fields{
			"coin":  built.Coin,
			"range": string(built.Range),
		}).Error("failed to render chart")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render chart"})
		return
	}
	metrics.IncrementChartRender(string(state.ChartType), false)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, png, s.cacheTTL); err != nil {
			s.log.WithComponent("dashboard").WithError(err).Warn("failed to cache chart")
		}
	}
	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) renderChart(built session.Chart, state session.State) ([]byte, error) {
	opts := chart.Options{
		Title:      fmt.Sprintf("%s funding (%s)", built.Coin, rangeTitles[built.Range]),
		Mode:       state.Mode,
		Width:      s.cfg.ChartWidth,
		Height:     s.cfg.ChartHeight,
		LabelEvery: built.Range.LabelEvery(),
	}
	switch built.Kind {
	case session.KindHourly:
		return chart.RenderSeries(built.Points, state.ChartType, opts)
	case session.KindSummary:
		opts.Title = fmt.Sprintf("%s funding averages", built.Coin)
		return chart.RenderSummary(built.Summary, opts)
	}
	return nil, chart.ErrNoData
}

type stateRequest struct {
	Mode      string `json:"mode"`
	ChartType string `json:"chart_type"`
	Range     string `json:"range"`
}

func (s *Server) handleGetState(c *gin.Context) {
	state, ok := s.sessions.Get(sessionID(c), pageID(c))
	if !ok {
		state = session.DefaultState()
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handlePutState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state payload"})
		return
	}

	var next session.State
	var err error
	if req.Mode != "" {
		if next.Mode, err = model.ParseDisplayMode(req.Mode); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.ChartType != "" {
		if next.ChartType, err = model.ParseChartType(req.ChartType); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Range != "" {
		if next.Range, err = model.ParseRange(req.Range); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	state, ok := s.sessions.Update(sessionID(c), pageID(c), func(st *session.State) {
		if next.Mode != "" {
			st.Mode = next.Mode
		}
		if next.ChartType != "" {
			st.ChartType = next.ChartType
		}
		if next.Range != "" {
			st.Range = next.Range
		}
	})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session expired"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"metrics": s.metricStore.snapshot(c.Query("component"))})
}

// handleLogs serves captured logs, filtered by ?level= (minimum severity)
// and ?component=.
func (s *Server) handleLogs(c *gin.Context) {
	minLevel := logrus.TraceLevel
	if q := c.Query("level"); q != "" {
		lvl, err := logrus.ParseLevel(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		minLevel = lvl
	}
	c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot(minLevel, c.Query("component"))})
}

func (s *Server) handleHealth(c *gin.Context) {
	meta := s.store.Meta()
	status := "ok"
	if !meta.SnapshotAvailable || !meta.HistoryAvailable {
		status = "degraded"
	}
	clients := 0
	if s.hub != nil {
		clients = s.hub.clientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"version":           meta.Version,
		"snapshot":          meta.SnapshotAvailable,
		"history":           meta.HistoryAvailable,
		"sessions":          s.sessions.Len(),
		"websocket_clients": clients,
		"timestamp":         s.now().UTC().Format(time.RFC3339),
	})
}
