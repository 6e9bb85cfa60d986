package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingboard/internal/model"
	"fundingboard/internal/source"
	"fundingboard/logger"
)

type fakeUploader struct {
	puts map[string][]byte
}

func (f *fakeUploader) Put(_ context.Context, uri, _ string, data []byte) error {
	if f.puts == nil {
		f.puts = make(map[string][]byte)
	}
	f.puts[uri] = append([]byte(nil), data...)
	return nil
}

func quietLogger() *logger.Log {
	log := logger.Logger()
	log.SetOutput(io.Discard)
	return log
}

func writeHistory(t *testing.T, dir string, latest time.Time) string {
	t.Helper()
	var obs []model.Observation
	for i := 0; i < 30; i++ {
		obs = append(obs, model.Observation{Coin: "BTC", FundingRate: 0.0001, TimestampMs: latest.Add(-time.Duration(i) * time.Hour).UnixMilli()})
	}
	obs = append(obs,
		model.Observation{Coin: "ETH", FundingRate: -0.0002, TimestampMs: latest.UnixMilli()},
		model.Observation{Coin: "BTC", FundingRate: 0.0005, TimestampMs: latest.Add(-10 * 24 * time.Hour).UnixMilli()},
	)

	var buf bytes.Buffer
	require.NoError(t, source.WriteHistoryCSV(&buf, obs))
	path := filepath.Join(dir, "history.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunGeneratesAndUploadsSnapshot(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	historyPath := writeHistory(t, dir, now.Add(-time.Hour))
	up := &fakeUploader{}

	opts := options{
		HistoryURI:    historyPath,
		HistoryFormat: source.FormatCSV,
		OutputPath:    filepath.Join(dir, "out", "snapshot.json"),
		UploadURI:     "s3://funding-bucket/snapshot.json",
		RetentionDays: 5,
		PruneHistory:  true,
		Now:           now,
	}
	res, err := run(context.Background(), opts, &source.Router{File: source.FileFetcher{}}, up, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 32, res.Observations)
	assert.Equal(t, 31, res.Retained)
	assert.Equal(t, 2, res.Coins)
	assert.Equal(t, "2024-03-15 11:00:00 UTC", res.Timestamp)

	written, err := os.ReadFile(opts.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, written, up.puts[opts.UploadURI])

	snap, err := source.DecodeSnapshot(bytes.NewReader(written))
	require.NoError(t, err)
	require.Len(t, snap.PositiveCurrent, 1)
	assert.Equal(t, "BTC", snap.PositiveCurrent[0].Coin)
	assert.InDelta(t, 87.6, *snap.PositiveCurrent[0].Rate, 1e-9)
	require.Len(t, snap.NegativeCurrent, 1)
	assert.Equal(t, "ETH", snap.NegativeCurrent[0].Coin)
	require.Len(t, snap.PositiveAvg[model.Period1d], 1)
	assert.Empty(t, snap.PositiveAvg[model.Period3d])

	pruned, err := os.ReadFile(historyPath)
	require.NoError(t, err)
	parsed, err := source.ParseHistoryCSV(bytes.NewReader(pruned))
	require.NoError(t, err)
	assert.Len(t, parsed.Observations, 31)
}

func TestRunFailsWithoutRecentData(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	historyPath := writeHistory(t, dir, now.Add(-30*24*time.Hour))

	_, err := run(context.Background(), options{
		HistoryURI:    historyPath,
		HistoryFormat: source.FormatCSV,
		RetentionDays: 5,
		Now:           now,
	}, &source.Router{}, nil, quietLogger())
	assert.Error(t, err)
}

func TestRunRequiresUploaderForUploadURI(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	historyPath := writeHistory(t, dir, now.Add(-time.Hour))

	_, err := run(context.Background(), options{
		HistoryURI:    historyPath,
		HistoryFormat: source.FormatCSV,
		UploadURI:     "s3://funding-bucket/snapshot.json",
		Now:           now,
	}, &source.Router{}, nil, quietLogger())
	assert.ErrorContains(t, err, "no uploader")
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", firstNonEmpty())
}
