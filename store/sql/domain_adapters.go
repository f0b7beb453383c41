package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-unified/core"
)

func newSyncRunRecord(run core.SyncRun) *syncRunRecord {
	return &syncRunRecord{
		ID:            run.ID,
		CustomerID:    run.CustomerID,
		ProviderName:  run.ProviderName,
		ObjectTypes:   append([]string(nil), run.ObjectTypes...),
		Status:        string(run.Status),
		FailureReason: run.FailureReason,
		StartedAt:     copyTimePointer(run.StartedAt),
		CompletedAt:   copyTimePointer(run.CompletedAt),
		Metadata:      copyAnyMap(run.Metadata),
		CreatedAt:     run.CreatedAt,
		UpdatedAt:     run.UpdatedAt,
	}
}

func (r *syncRunRecord) toDomain() core.SyncRun {
	if r == nil {
		return core.SyncRun{}
	}
	return core.SyncRun{
		ID:            r.ID,
		CustomerID:    r.CustomerID,
		ProviderName:  r.ProviderName,
		ObjectTypes:   append([]string(nil), r.ObjectTypes...),
		Status:        core.SyncRunStatus(r.Status),
		FailureReason: r.FailureReason,
		StartedAt:     copyTimePointer(r.StartedAt),
		CompletedAt:   copyTimePointer(r.CompletedAt),
		Metadata:      copyAnyMap(r.Metadata),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func newSyncStateRecord(state core.SyncState) (*syncStateRecord, error) {
	document, err := json.Marshal(state.Document)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode sync state document: %w", err)
	}
	return &syncStateRecord{
		CustomerID:   state.CustomerID,
		ProviderName: state.ProviderName,
		Document:     document,
		CreatedAt:    state.CreatedAt,
		UpdatedAt:    state.UpdatedAt,
	}, nil
}

func (r *syncStateRecord) toDomain() (core.SyncState, error) {
	if r == nil {
		return core.SyncState{}, nil
	}
	document := core.NewStateDocument()
	if len(r.Document) > 0 {
		if err := json.Unmarshal(r.Document, &document); err != nil {
			return core.SyncState{}, fmt.Errorf("sqlstore: decode sync state document: %w", err)
		}
	}
	return core.SyncState{
		CustomerID:   r.CustomerID,
		ProviderName: r.ProviderName,
		Document:     document,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func (r *syncLeaseRecord) toDomain() core.RunLease {
	if r == nil {
		return core.RunLease{}
	}
	return core.RunLease{
		CustomerID:   r.CustomerID,
		ProviderName: r.ProviderName,
		Owner:        r.Owner,
		AcquiredAt:   r.AcquiredAt,
		ExpiresAt:    r.ExpiresAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
