package dashboard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"fundingboard/config"
	"fundingboard/internal/cache"
	"fundingboard/internal/session"
	"fundingboard/internal/store"
	"fundingboard/logger"
)

const (
	testSnapshotURI = "mem://snapshot.json"
	testHistoryURI  = "mem://history.csv"

	testSnapshot = `{
  "timestamp": "2024-03-15 10:00:00 UTC",
  "generated_at": "2024-03-15 10:05:00 UTC",
  "positive_current": [{"coin": "BTC", "fundingRate_annualized": 12}],
  "negative_current": [{"coin": "ETH", "fundingRate_annualized": -4}],
  "positive_1d": [{"coin": "BTC", "fundingRate_avg_1d": 10}],
  "positive_5d": [{"coin": "BTC", "fundingRate_avg_5d": 8}]
}`
	// BTC at 10:00 and 11:00 UTC on 2024-03-15, ETH at 10:00.
	testHistory = "coin,fundingRate,time\nBTC,0.0001,1710496800000\nETH,-0.0002,1710496800000\nBTC,0.0002,1710500400000\n"
)

var testNow = time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

type memFetcher struct {
	mu   sync.Mutex
	data map[string]string
	errs map[string]error
}

func newMemFetcher() *memFetcher {
	return &memFetcher{
		data: map[string]string{testSnapshotURI: testSnapshot, testHistoryURI: testHistory},
		errs: map[string]error{},
	}
}

func (f *memFetcher) fail(uri string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[uri] = errors.New("unreachable")
}

func (f *memFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[uri]; err != nil {
		return nil, err
	}
	data, ok := f.data[uri]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(data), nil
}

func quietLogger() *logger.Log {
	log := logger.Logger()
	log.SetOutput(io.Discard)
	return log
}

type testEnv struct {
	srv     *Server
	store   *store.Store
	fetcher *memFetcher
	router  *gin.Engine
	cookie  *http.Cookie
}

func newTestEnv(t *testing.T, cfg config.DashboardConfig, load bool) *testEnv {
	t.Helper()

	log := quietLogger()
	fetcher := newMemFetcher()
	st := store.New(store.Config{
		SnapshotURI:  testSnapshotURI,
		HistoryURI:   testHistoryURI,
		FetchTimeout: time.Second,
	}, fetcher, log)
	if load {
		st.Reload(context.Background())
	}

	if cfg.LabelTimezone == "" {
		cfg.LabelTimezone = "UTC"
	}
	srv, err := NewServer(cfg, Dependencies{
		Store:    st,
		Sessions: session.NewManager(time.Hour),
		Cache:    cache.NewMemoryCache(16),
		CacheTTL: time.Minute,
	}, log)
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	srv.now = func() time.Time { return testNow }
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter("fundingboard")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	return &testEnv{srv: srv, store: st, fetcher: fetcher, router: router}
}

// do sends a request, carrying the session cookie from earlier responses.
func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	for _, c := range res.Result().Cookies() {
		if c.Name == e.srv.cfg.CookieName {
			e.cookie = c
		}
	}
	return res
}
