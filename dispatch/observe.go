package dispatch

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-unified/core"
)

func (d *Dispatcher) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	attempts int,
	pair core.PairKey,
	objectType string,
	err error,
) {
	if d == nil {
		return
	}
	operation = strings.TrimSpace(strings.ToLower(operation))
	if operation == "" {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}

	fields := map[string]any{
		"event_type":    operation,
		"status":        status,
		"customer_id":   pair.CustomerID,
		"provider_name": pair.ProviderName,
		"attempts":      attempts,
		"duration_ms":   time.Since(startedAt).Milliseconds(),
	}
	if strings.TrimSpace(objectType) != "" {
		fields["object_type"] = objectType
	}
	if err != nil {
		fields["error"] = err.Error()
		fields["kind"] = string(core.KindOf(err))
	}

	tags := map[string]string{
		"operation":     operation,
		"status":        status,
		"provider_name": pair.ProviderName,
	}
	if d.metrics != nil {
		d.metrics.IncCounter(ctx, "unified.dispatch."+operation+".total", 1, tags)
		d.metrics.ObserveHistogram(ctx, "unified.dispatch."+operation+".duration_ms", float64(time.Since(startedAt).Milliseconds()), tags)
	}

	logger := d.logger
	if logger == nil {
		return
	}
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := flattenFields(fields)
	if err != nil {
		logger.Error(operation+" failed", args...)
		return
	}
	logger.Debug(operation+" succeeded", args...)
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
