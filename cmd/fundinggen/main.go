// Command fundinggen derives the funding snapshot document from the hourly
// history log and optionally uploads it next to the dashboard's sources.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingboard/config"
	"fundingboard/internal/aggregate"
	"fundingboard/internal/model"
	"fundingboard/internal/source"
	"fundingboard/logger"
)

// uploader stores a generated document at an s3:// URI.
type uploader interface {
	Put(ctx context.Context, uri, contentType string, data []byte) error
}

type options struct {
	HistoryURI    string
	HistoryFormat source.Format
	OutputPath    string
	UploadURI     string
	RetentionDays int
	PruneHistory  bool
	Now           time.Time
}

type result struct {
	Observations int
	Retained     int
	Dropped      int
	Coins        int
	Timestamp    string
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultConfigPath, "Path to configuration file")
	historyURI := flag.String("history", "", "History log URI (overrides sources.history_uri)")
	outputPath := flag.String("output", "", "Snapshot output path (overrides generator.output_path)")
	uploadURI := flag.String("upload", "", "s3:// URI to upload the snapshot to (overrides generator.upload_uri)")
	prune := flag.Bool("prune", false, "Rewrite the history log without observations older than the retention window")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	opts := options{
		HistoryURI:    firstNonEmpty(*historyURI, cfg.Sources.HistoryURI),
		OutputPath:    firstNonEmpty(*outputPath, cfg.Generator.OutputPath),
		UploadURI:     firstNonEmpty(*uploadURI, cfg.Generator.UploadURI),
		RetentionDays: cfg.Generator.RetentionDays,
		PruneHistory:  *prune || cfg.Generator.PruneHistory,
		Now:           time.Now().UTC(),
	}
	opts.HistoryFormat = source.FormatFor(cfg.Sources.HistoryFormat, opts.HistoryURI)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, s3f, err := source.NewRouterFor(ctx, source.S3Settings{
		Region:          cfg.Sources.S3.Region,
		AccessKeyID:     cfg.Sources.S3.AccessKeyID,
		SecretAccessKey: cfg.Sources.S3.SecretAccessKey,
		Endpoint:        cfg.Sources.S3.Endpoint,
		PathStyle:       cfg.Sources.S3.PathStyle,
	}, cfg.Sources.FetchTimeout, opts.HistoryURI, opts.UploadURI)
	if err != nil {
		log.WithError(err).Error("failed to create S3 client")
		os.Exit(1)
	}

	var up uploader
	if s3f != nil {
		up = s3f
	}

	res, err := run(ctx, opts, fetcher, up, log)
	if err != nil {
		log.WithComponent("fundinggen").WithError(err).Error("snapshot generation failed")
		os.Exit(1)
	}

	log.WithComponent("fundinggen").WithFields(logger.Fields{
		"observations": res.Observations,
		"retained":     res.Retained,
		"dropped":      res.Dropped,
		"coins":        res.Coins,
		"timestamp":    res.Timestamp,
		"output":       opts.OutputPath,
	}).Info("snapshot generated")
}

func run(ctx context.Context, opts options, fetcher source.Fetcher, up uploader, log *logger.Log) (result, error) {
	entry := log.WithComponent("fundinggen")
	start := time.Now()

	data, err := fetcher.Fetch(ctx, opts.HistoryURI)
	if err != nil {
		return result{}, fmt.Errorf("fetch history: %w", err)
	}
	parsed, err := source.ParseHistory(data, opts.HistoryFormat)
	if err != nil {
		return result{}, fmt.Errorf("parse history: %w", err)
	}
	if parsed.Dropped > 0 {
		entry.WithFields(logger.Fields{"dropped": parsed.Dropped, "uri": opts.HistoryURI}).Warn("dropped malformed history rows")
	}

	retained := aggregate.Retain(parsed.Observations, opts.Now, opts.RetentionDays)
	if len(retained) == 0 {
		return result{}, fmt.Errorf("no observations within the last %d days", opts.RetentionDays)
	}

	snap := aggregate.Generate(retained, opts.Now)
	var buf bytes.Buffer
	if err := source.EncodeSnapshot(&buf, snap); err != nil {
		return result{}, fmt.Errorf("encode snapshot: %w", err)
	}

	if opts.OutputPath != "" {
		if err := writeFile(opts.OutputPath, buf.Bytes()); err != nil {
			return result{}, err
		}
	}
	if opts.UploadURI != "" {
		if up == nil {
			return result{}, fmt.Errorf("no uploader for %s", opts.UploadURI)
		}
		if err := up.Put(ctx, opts.UploadURI, "application/json", buf.Bytes()); err != nil {
			return result{}, fmt.Errorf("upload snapshot: %w", err)
		}
	}

	if opts.PruneHistory && len(retained) < len(parsed.Observations) {
		if err := pruneHistory(ctx, opts, retained, up); err != nil {
			return result{}, err
		}
		entry.WithFields(logger.Fields{
			"removed": len(parsed.Observations) - len(retained),
			"uri":     opts.HistoryURI,
		}).Info("pruned history log")
	}

	logger.LogDataFlowEntry(entry, opts.HistoryURI, firstNonEmpty(opts.UploadURI, opts.OutputPath), len(retained), "funding_snapshot")
	logger.LogPerformanceEntry(entry, "fundinggen", "generate", time.Since(start), nil)

	return result{
		Observations: len(parsed.Observations),
		Retained:     len(retained),
		Dropped:      parsed.Dropped,
		Coins:        countCoins(snap),
		Timestamp:    snap.Timestamp,
	}, nil
}

func pruneHistory(ctx context.Context, opts options, observations []model.Observation, up uploader) error {
	var (
		data        []byte
		contentType string
	)
	switch opts.HistoryFormat {
	case source.FormatParquet:
		b, err := source.WriteHistoryParquet(observations)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		data, contentType = b, "application/vnd.apache.parquet"
	default:
		var buf bytes.Buffer
		if err := source.WriteHistoryCSV(&buf, observations); err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		data, contentType = buf.Bytes(), "text/csv"
	}

	lower := strings.ToLower(opts.HistoryURI)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		if up == nil {
			return fmt.Errorf("no uploader for %s", opts.HistoryURI)
		}
		return up.Put(ctx, opts.HistoryURI, contentType, data)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return fmt.Errorf("cannot prune remote history %s", opts.HistoryURI)
	default:
		return writeFile(strings.TrimPrefix(opts.HistoryURI, "file://"), data)
	}
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}

func countCoins(s *model.Snapshot) int {
	seen := make(map[string]struct{})
	for _, list := range [][]model.RateEntry{s.PositiveCurrent, s.NegativeCurrent} {
		for _, e := range list {
			seen[e.Coin] = struct{}{}
		}
	}
	return len(seen)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
