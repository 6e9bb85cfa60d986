// Package cache stores rendered chart images keyed by everything that
// affects their pixels.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fundingboard/internal/model"
)

// Cache stores byte blobs with a time to live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// ChartKey identifies one rendered chart.
type ChartKey struct {
	DataVersion uint64
	Coin        string
	Range       model.Range
	ChartType   model.ChartType
	Mode        model.DisplayMode
	Kind        string
	// Hour is the hour the series ends at, so a new hour never hits an old image.
	Hour time.Time
}

// String renders the key in a redis friendly form.
func (k ChartKey) String() string {
	return fmt.Sprintf("chart:v%d:%s:%s:%s:%s:%s:%d",
		k.DataVersion,
		strings.ToUpper(k.Coin),
		k.Range,
		k.ChartType,
		k.Mode,
		k.Kind,
		k.Hour.UTC().Truncate(time.Hour).Unix(),
	)
}
