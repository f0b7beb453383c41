package core

import (
	"context"
	"time"
)

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return map[string]string{}
	}
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

// ObserveOperation records the standard counter/duration pair for one
// completed operation.
func ObserveOperation(
	ctx context.Context,
	recorder MetricsRecorder,
	name string,
	startedAt time.Time,
	tags map[string]string,
	err error,
) {
	if recorder == nil {
		return
	}
	observed := cloneTags(tags)
	if err != nil {
		observed["outcome"] = "error"
		observed["kind"] = string(KindOf(err))
	} else {
		observed["outcome"] = "ok"
	}
	recorder.IncCounter(ctx, name+".count", 1, observed)
	recorder.ObserveHistogram(ctx, name+".duration_ms", float64(time.Since(startedAt).Milliseconds()), observed)
}

var _ MetricsRecorder = NopMetricsRecorder{}
