// Package metrics defines the opencensus measures and tag keys shared
// across the registry.
package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	// Table is the database table a persistence measurement applies to.
	Table, _ = tag.NewKey("table")

	// Operation is the storage operation being measured.
	Operation, _ = tag.NewKey("operation")
)

var (
	PersistDuration = stats.Float64("persist_duration_ms", "Duration of a database persist operation", stats.UnitMilliseconds)
	StorageDuration = stats.Float64("storage_duration_ms", "Duration of a storage layer operation", stats.UnitMilliseconds)
)

var DefaultViews = []*view.View{
	{
		Measure:     PersistDuration,
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000),
		TagKeys:     []tag.Key{Table},
	},
	{
		Measure:     StorageDuration,
		Aggregation: view.Distribution(1, 5, 10, 50, 100, 500, 1000, 5000, 30000),
		TagKeys:     []tag.Key{Operation},
	},
}

// RegisterViews registers the default measurement views; safe to call
// once at startup.
func RegisterViews() error {
	return view.Register(DefaultViews...)
}

// Timer starts a timer for the measure and returns a stop function
// that records the elapsed milliseconds.
func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(float64(time.Since(start).Milliseconds())))
	}
}
