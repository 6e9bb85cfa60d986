package dashboard

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"fundingboard/logger"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxSessionID    = "session_id"
	queryPage       = "page"

	// limiter entries idle for this long are dropped on the next prune
	limiterIdle       = 10 * time.Minute
	limiterPruneEvery = 1024
)

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithComponent("dashboard").WithFields(logger.Fields{
					"path":       c.Request.URL.Path,
					"request_id": c.GetString(ctxRequestID),
					"panic":      fmt.Sprint(r),
					"stack":      string(debug.Stack()),
				}).Error("request panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := s.log.WithComponent("dashboard_http").WithFields(logger.Fields{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"uri":         c.Request.URL.RequestURI(),
			"status":      status,
			"duration_ms": float64(time.Since(start).Nanoseconds()) / 1e6,
			"client_ip":   c.ClientIP(),
			"request_id":  c.GetString(ctxRequestID),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter.allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	}
}

func (s *Server) sessionCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		current, _ := c.Cookie(s.cfg.CookieName)
		id, _ := s.sessions.Ensure(current)
		if id != current {
			maxAge := int(s.cfg.SessionTTL / time.Second)
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(s.cfg.CookieName, id, maxAge, "/", "", false, true)
		}
		c.Set(ctxSessionID, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(ctxSessionID)
}

// pageID names the page view a request belongs to. GET / issues one per load.
func pageID(c *gin.Context) string {
	return c.Query(queryPage)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client key. A non-positive rate
// disables limiting.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	calls   int
	now     func() time.Time
}

func newClientLimiter(requestsPerSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		clients: make(map[string]*limiterEntry),
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	now := l.now()
	l.calls++
	if l.calls%limiterPruneEvery == 0 {
		l.prune(now)
	}
	e, ok := l.clients[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// prune must be called with mu held.
func (l *clientLimiter) prune(now time.Time) {
	for key, e := range l.clients {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.clients, key)
		}
	}
}
