package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Fetcher returns the raw bytes stored at uri.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FileFetcher reads local paths and file:// URIs.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(uri, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// HTTPFetcher downloads http and https URIs.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher whose client gives up after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", uri, err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("get %s: unexpected status %s", uri, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", uri, err)
	}
	return data, nil
}

// Router dispatches to a fetcher by URI scheme. Bare paths go to File.
type Router struct {
	File Fetcher
	HTTP Fetcher
	S3   Fetcher
}

func (r *Router) Fetch(ctx context.Context, uri string) ([]byte, error) {
	f, err := r.route(uri)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, uri)
}

func (r *Router) route(uri string) (Fetcher, error) {
	scheme := ""
	if u, err := url.Parse(uri); err == nil {
		scheme = strings.ToLower(u.Scheme)
	}
	var f Fetcher
	switch scheme {
	case "", "file":
		f = r.File
		if f == nil {
			f = FileFetcher{}
		}
	case "http", "https":
		f = r.HTTP
	case "s3":
		f = r.S3
	default:
		// windows drive letters parse as a one-letter scheme
		if len(scheme) == 1 {
			return FileFetcher{}, nil
		}
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
	return f, nil
}
