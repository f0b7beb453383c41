package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSyncRunStatusTransition = errors.New("core: invalid sync run status transition")
	ErrSyncRunTerminal                = errors.New("core: sync run is terminal")
	ErrSyncRunNotFound                = errors.New("core: sync run not found")
	ErrSyncStateNotFound              = errors.New("core: sync state not found")
	ErrLeaseHeld                      = errors.New("core: sync lease already held")
	ErrLeaseNotHeld                   = errors.New("core: sync lease not held by owner")
)

// StateDocumentVersion is the version written into freshly minted state
// documents. Documents carrying other versions pass through untouched.
const StateDocumentVersion = 1

// PairKey identifies one (customer, provider) integration pair. Every sync
// lease and sync state row is keyed by it.
type PairKey struct {
	CustomerID   string
	ProviderName string
}

func (k PairKey) Validate() error {
	if strings.TrimSpace(k.CustomerID) == "" {
		return fmt.Errorf("core: customer id is required")
	}
	if strings.TrimSpace(k.ProviderName) == "" {
		return fmt.Errorf("core: provider name is required")
	}
	return nil
}

func (k PairKey) String() string {
	return strings.TrimSpace(k.CustomerID) + "/" + strings.TrimSpace(k.ProviderName)
}

type SyncRunStatus string

const (
	SyncRunStatusPending   SyncRunStatus = "pending"
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusSucceeded SyncRunStatus = "succeeded"
	SyncRunStatusFailed    SyncRunStatus = "failed"
	SyncRunStatusCancelled SyncRunStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s SyncRunStatus) IsTerminal() bool {
	switch s {
	case SyncRunStatusSucceeded, SyncRunStatusFailed, SyncRunStatusCancelled:
		return true
	}
	return false
}

type SyncRun struct {
	ID            string
	CustomerID    string
	ProviderName  string
	ObjectTypes   []string
	Status        SyncRunStatus
	FailureReason string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *SyncRun) Pair() PairKey {
	if r == nil {
		return PairKey{}
	}
	return PairKey{CustomerID: r.CustomerID, ProviderName: r.ProviderName}
}

func (r *SyncRun) TransitionTo(status SyncRunStatus, reason string, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == status {
		r.UpdatedAt = now
		return nil
	}
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrSyncRunTerminal, r.Status, status)
	}
	if !syncRunTransitionAllowed(r.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSyncRunStatusTransition, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = now
	if strings.TrimSpace(reason) != "" {
		r.FailureReason = strings.TrimSpace(reason)
	}
	switch status {
	case SyncRunStatusRunning:
		if r.StartedAt == nil {
			started := now
			r.StartedAt = &started
		}
	case SyncRunStatusSucceeded, SyncRunStatusFailed, SyncRunStatusCancelled:
		completed := now
		r.CompletedAt = &completed
	}
	if status == SyncRunStatusSucceeded {
		r.FailureReason = ""
	}
	return nil
}

func syncRunTransitionAllowed(current, next SyncRunStatus) bool {
	allowed := map[SyncRunStatus]map[SyncRunStatus]struct{}{
		SyncRunStatusPending: {
			SyncRunStatusRunning:   {},
			SyncRunStatusFailed:    {},
			SyncRunStatusCancelled: {},
		},
		SyncRunStatusRunning: {
			SyncRunStatusSucceeded: {},
			SyncRunStatusFailed:    {},
			SyncRunStatusCancelled: {},
		},
		SyncRunStatusSucceeded: {},
		SyncRunStatusFailed:    {},
		SyncRunStatusCancelled: {},
	}
	_, ok := allowed[current][next]
	return ok
}

// ObjectState is one entry of the sync state document: the durable watermark
// for a single object type.
type ObjectState struct {
	Cursor      string     `json:"cursor,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StateDocument is the opaque-to-callers JSON document persisted per
// (customer, provider). Fields this package does not understand survive a
// load/store round trip untouched.
type StateDocument struct {
	Version int
	Objects map[string]ObjectState

	extra map[string]json.RawMessage
}

func NewStateDocument() StateDocument {
	return StateDocument{
		Version: StateDocumentVersion,
		Objects: map[string]ObjectState{},
	}
}

func (d StateDocument) ObjectState(objectType string) (ObjectState, bool) {
	state, ok := d.Objects[strings.TrimSpace(objectType)]
	return state, ok
}

// SetObjectState records the durable watermark for one object type. The
// receiver copy mutates in place so callers chain writes before persisting.
func (d *StateDocument) SetObjectState(objectType string, state ObjectState) {
	if d == nil {
		return
	}
	if d.Objects == nil {
		d.Objects = map[string]ObjectState{}
	}
	d.Objects[strings.TrimSpace(objectType)] = state
}

func (d StateDocument) Clone() StateDocument {
	out := StateDocument{Version: d.Version}
	if d.Objects != nil {
		out.Objects = make(map[string]ObjectState, len(d.Objects))
		for objectType, state := range d.Objects {
			out.Objects[objectType] = state
		}
	}
	if d.extra != nil {
		out.extra = make(map[string]json.RawMessage, len(d.extra))
		for key, raw := range d.extra {
			out.extra[key] = append(json.RawMessage(nil), raw...)
		}
	}
	return out
}

func (d StateDocument) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(d.extra)+2)
	for key, raw := range d.extra {
		doc[key] = append(json.RawMessage(nil), raw...)
	}
	version, err := json.Marshal(d.Version)
	if err != nil {
		return nil, err
	}
	doc["version"] = version
	objects := d.Objects
	if objects == nil {
		objects = map[string]ObjectState{}
	}
	encoded, err := json.Marshal(objects)
	if err != nil {
		return nil, err
	}
	doc["objects"] = encoded
	return json.Marshal(doc)
}

func (d *StateDocument) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("core: state document is nil")
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*d = StateDocument{Objects: map[string]ObjectState{}}
	for key, raw := range doc {
		switch key {
		case "version":
			if err := json.Unmarshal(raw, &d.Version); err != nil {
				return fmt.Errorf("core: state document version: %w", err)
			}
		case "objects":
			if err := json.Unmarshal(raw, &d.Objects); err != nil {
				return fmt.Errorf("core: state document objects: %w", err)
			}
		default:
			if d.extra == nil {
				d.extra = map[string]json.RawMessage{}
			}
			d.extra[key] = append(json.RawMessage(nil), raw...)
		}
	}
	return nil
}

type SyncState struct {
	CustomerID   string
	ProviderName string
	Document     StateDocument
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s SyncState) Pair() PairKey {
	return PairKey{CustomerID: s.CustomerID, ProviderName: s.ProviderName}
}

// RunLease is the exclusive TTL lease guarding one pair. Owner is the run id
// holding it.
type RunLease struct {
	CustomerID   string
	ProviderName string
	Owner        string
	AcquiredAt   time.Time
	ExpiresAt    time.Time
}

func (l RunLease) Pair() PairKey {
	return PairKey{CustomerID: l.CustomerID, ProviderName: l.ProviderName}
}

func (l RunLease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
