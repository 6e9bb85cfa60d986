package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"fundingboard/internal/model"
)

const (
	keyTimestamp   = "timestamp"
	keyGeneratedAt = "generated_at"
	keyCoin        = "coin"
	keyCurrentRate = "fundingRate_annualized"
)

func avgRateKey(p model.Period) string {
	return "fundingRate_avg_" + string(p)
}

// DecodeSnapshot decodes the snapshot document. Missing lists are treated as
// empty and entries without a coin or with a non-numeric rate are dropped.
// An explicit null rate is kept as a nil rate.
func DecodeSnapshot(r io.Reader) (*model.Snapshot, error) {
	snap, _, err := DecodeSnapshotCounted(r)
	return snap, err
}

// DecodeSnapshotCounted is DecodeSnapshot that also reports how many entries
// were dropped.
func DecodeSnapshotCounted(r io.Reader) (*model.Snapshot, int, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, 0, fmt.Errorf("decode snapshot: %w", err)
	}

	snap := model.NewSnapshot()
	dropped := 0
	snap.Timestamp = stringField(doc[keyTimestamp])
	snap.GeneratedAt = stringField(doc[keyGeneratedAt])

	decodeList := func(key, rateKey string) []model.RateEntry {
		raw, ok := doc[key]
		if !ok || isNull(raw) {
			return nil
		}
		var items []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			dropped++
			return nil
		}
		out := make([]model.RateEntry, 0, len(items))
		for _, item := range items {
			e, err := decodeEntry(item, rateKey)
			if err != nil {
				dropped++
				continue
			}
			out = append(out, e)
		}
		return out
	}

	snap.PositiveCurrent = decodeList("positive_current", keyCurrentRate)
	snap.NegativeCurrent = decodeList("negative_current", keyCurrentRate)
	for _, p := range model.Periods {
		snap.PositiveAvg[p] = decodeList("positive_"+string(p), avgRateKey(p))
		snap.NegativeAvg[p] = decodeList("negative_"+string(p), avgRateKey(p))
	}
	return snap, dropped, nil
}

func decodeEntry(item map[string]json.RawMessage, rateKey string) (model.RateEntry, error) {
	var e model.RateEntry
	if err := json.Unmarshal(item[keyCoin], &e.Coin); err != nil || e.Coin == "" {
		return e, fmt.Errorf("%w: entry without coin", ErrMalformedRow)
	}
	raw, ok := item[rateKey]
	if !ok || isNull(raw) {
		return e, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return e, fmt.Errorf("%w: %s for %s: %v", ErrMalformedRow, rateKey, e.Coin, err)
	}
	e.Rate = &v
	return e, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// EncodeSnapshot writes the snapshot document in the layout DecodeSnapshot reads.
func EncodeSnapshot(w io.Writer, snap *model.Snapshot) error {
	doc := map[string]interface{}{
		keyTimestamp:       snap.Timestamp,
		keyGeneratedAt:     snap.GeneratedAt,
		"positive_current": encodeList(snap.PositiveCurrent, keyCurrentRate),
		"negative_current": encodeList(snap.NegativeCurrent, keyCurrentRate),
	}
	for _, p := range model.Periods {
		doc["positive_"+string(p)] = encodeList(snap.PositiveAvg[p], avgRateKey(p))
		doc["negative_"+string(p)] = encodeList(snap.NegativeAvg[p], avgRateKey(p))
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func encodeList(entries []model.RateEntry, rateKey string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		var rate interface{}
		if e.Rate != nil {
			rate = *e.Rate
		}
		out = append(out, map[string]interface{}{keyCoin: e.Coin, rateKey: rate})
	}
	return out
}
