package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var (
	sourceLoads    int64
	sourceFailures int64
	droppedRows    int64
	components     sync.Map // map[string]*componentStat
)

func componentStats(component string) *componentStat {
	v, _ := components.LoadOrStore(component, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentStats(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentStats(component).errors, 1)
}

// RecordSourceLoad counts a finished fetch of the snapshot or history log.
func RecordSourceLoad(ok bool, dropped int) {
	if ok {
		atomic.AddInt64(&sourceLoads, 1)
	} else {
		atomic.AddInt64(&sourceFailures, 1)
	}
	atomic.AddInt64(&droppedRows, int64(dropped))
}

// StartReport begins periodic logging of runtime and load statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func reportFields() Fields {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	perComponent := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		perComponent[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	return Fields{
		"source_loads":    atomic.LoadInt64(&sourceLoads),
		"source_failures": atomic.LoadInt64(&sourceFailures),
		"dropped_rows":    atomic.LoadInt64(&droppedRows),
		"goroutines":      runtime.NumGoroutine(),
		"heap_mb":         float64(ms.HeapAlloc) / 1024 / 1024,
		"components":      perComponent,
	}
}

func logReport(ctx context.Context, log *Log) {
	fields := reportFields()
	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("SourceLoads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["source_loads"].(int64)))},
		{MetricName: aws.String("SourceFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["source_failures"].(int64)))},
		{MetricName: aws.String("DroppedRows"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["dropped_rows"].(int64)))},
		{MetricName: aws.String("Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["goroutines"].(int)))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(fields["heap_mb"].(float64))},
	}
	for name, stats := range fields["components"].(map[string]map[string]int64) {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ComponentErrors"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["errors"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
