// Package httpapi exposes the canonical record operations and the sync run
// lifecycle over HTTP. Callers address a provider pair with the
// x-customer-id and x-provider-name headers; error bodies carry the
// {kind, message} envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/dispatch"
	unifiedsync "github.com/goliatone/go-unified/sync"
)

var (
	_ RecordService = (*dispatch.Dispatcher)(nil)
	_ SyncService   = (*unifiedsync.Orchestrator)(nil)
)

const (
	headerCustomerID   = "x-customer-id"
	headerProviderName = "x-provider-name"
)

// RecordService is the slice of the dispatcher the server exposes.
type RecordService interface {
	ListRecords(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error)
	GetRecord(ctx context.Context, pair core.PairKey, req core.GetRecordRequest) (core.RecordWithRaw, error)
	BatchReadRecords(ctx context.Context, pair core.PairKey, req core.BatchReadRequest) (core.RecordPage, error)
	CreateRecord(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error)
	UpdateRecord(ctx context.Context, pair core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error)
	UpsertRecord(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error)
	CountRecords(ctx context.Context, pair core.PairKey, req core.CountRequest) (int64, error)
	ListObjects(ctx context.Context, pair core.PairKey) ([]core.ObjectMetadata, error)
	ListObjectProperties(ctx context.Context, pair core.PairKey, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error)
	CreateObject(ctx context.Context, pair core.PairKey, req core.CreateObjectRequest) (core.WriteResult, error)
	CreateAssociation(ctx context.Context, pair core.PairKey, req core.CreateAssociationRequest) (core.WriteResult, error)
	ListCustomObjectRecords(ctx context.Context, pair core.PairKey, req core.ListCustomObjectRecordsRequest) (core.RecordPage, error)
	CreateCustomObjectRecord(ctx context.Context, pair core.PairKey, req core.CreateCustomObjectRecordRequest) (core.WriteResult, error)
}

// SyncService drives run lifecycle transitions.
type SyncService interface {
	StartRun(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error)
	CancelRun(ctx context.Context, runID string) (core.SyncRun, error)
}

type ServerConfig struct {
	MaxBodyBytes int64
}

type Server struct {
	records RecordService
	syncs   SyncService
	runs    core.SyncRunStore
	states  core.SyncStateStore
	logger  core.Logger
	cfg     ServerConfig
}

type Option func(*Server)

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithConfig(cfg ServerConfig) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

func NewServer(
	records RecordService,
	syncs SyncService,
	runs core.SyncRunStore,
	states core.SyncStateStore,
	opts ...Option,
) *Server {
	server := &Server{
		records: records,
		syncs:   syncs,
		runs:    runs,
		states:  states,
		logger:  glog.Ensure(nil),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(server)
	}
	server.logger = glog.Ensure(server.logger)
	if server.cfg.MaxBodyBytes <= 0 {
		server.cfg.MaxBodyBytes = 1 << 20
	}
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) >= 1 && parts[0] == "sync" {
		s.routeSync(w, r, parts)
		return
	}
	if len(parts) >= 3 && parts[1] == "v2" {
		s.routeRecords(w, r, parts)
		return
	}
	s.writeErrorKind(w, core.ErrorKindNotFound, "route not found")
}

func (s *Server) routeRecords(w http.ResponseWriter, r *http.Request, parts []string) {
	pair, ok := s.pairFromHeaders(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 4 && parts[2] == "metadata" && parts[3] == "objects":
		switch r.Method {
		case http.MethodGet:
			s.handleListObjects(w, r, pair)
		case http.MethodPost:
			s.handleCreateObject(w, r, pair)
		default:
			s.writeMethodNotAllowed(w)
		}
	case len(parts) == 6 && parts[2] == "metadata" && parts[3] == "objects" && parts[5] == "properties" && r.Method == http.MethodGet:
		s.handleListObjectProperties(w, r, pair, parts[4])
	case len(parts) == 3 && parts[2] == "associations" && r.Method == http.MethodPost:
		s.handleCreateAssociation(w, r, pair)
	case len(parts) == 4 && parts[2] == "custom_objects":
		switch r.Method {
		case http.MethodGet:
			s.handleListCustomObjectRecords(w, r, pair, parts[3])
		case http.MethodPost:
			s.handleCreateCustomObjectRecord(w, r, pair, parts[3])
		default:
			s.writeMethodNotAllowed(w)
		}
	case len(parts) == 3:
		switch r.Method {
		case http.MethodGet:
			s.handleListRecords(w, r, pair, parts[2])
		case http.MethodPost:
			s.handleCreateRecord(w, r, pair, parts[2])
		default:
			s.writeMethodNotAllowed(w)
		}
	case len(parts) == 4 && parts[3] == "_upsert" && r.Method == http.MethodPost:
		s.handleUpsertRecord(w, r, pair, parts[2])
	case len(parts) == 4 && parts[3] == "_batch_read" && r.Method == http.MethodPost:
		s.handleBatchReadRecords(w, r, pair, parts[2])
	case len(parts) == 4 && parts[3] == "_count" && r.Method == http.MethodGet:
		s.handleCountRecords(w, r, pair, parts[2])
	case len(parts) == 4:
		switch r.Method {
		case http.MethodGet:
			s.handleGetRecord(w, r, pair, parts[2], parts[3])
		case http.MethodPatch:
			s.handleUpdateRecord(w, r, pair, parts[2], parts[3])
		default:
			s.writeMethodNotAllowed(w)
		}
	default:
		s.writeErrorKind(w, core.ErrorKindNotFound, "route not found")
	}
}

func (s *Server) routeSync(w http.ResponseWriter, r *http.Request, parts []string) {
	switch {
	case len(parts) == 2 && parts[1] == "runs" && r.Method == http.MethodPost:
		s.handleStartRun(w, r)
	case len(parts) == 2 && parts[1] == "runs" && r.Method == http.MethodGet:
		s.handleListRuns(w, r)
	case len(parts) == 3 && parts[1] == "runs" && r.Method == http.MethodGet:
		s.handleGetRun(w, r, parts[2])
	case len(parts) == 4 && parts[1] == "runs" && parts[3] == "_cancel" && r.Method == http.MethodPost:
		s.handleCancelRun(w, r, parts[2])
	case len(parts) == 2 && parts[1] == "state" && r.Method == http.MethodGet:
		s.handleGetState(w, r)
	default:
		s.writeErrorKind(w, core.ErrorKindNotFound, "route not found")
	}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType string) {
	req := core.ListRecordsRequest{
		ObjectType: objectType,
		Cursor:     r.URL.Query().Get("cursor"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil || pageSize <= 0 {
			s.writeErrorKind(w, core.ErrorKindValidationFailed, "page_size must be a positive integer")
			return
		}
		req.PageSize = pageSize
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("modified_after")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeErrorKind(w, core.ErrorKindValidationFailed, "modified_after must be an RFC3339 timestamp")
			return
		}
		req.ModifiedAfter = &parsed
	}

	page, err := s.records.ListRecords(r.Context(), pair, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagePayload(page))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType, recordID string) {
	result, err := s.records.GetRecord(r.Context(), pair, core.GetRecordRequest{
		ObjectType: objectType,
		RecordID:   recordID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record": result.Record,
		"raw":    result.Raw,
	})
}

func (s *Server) handleBatchReadRecords(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType string) {
	var body struct {
		RecordIDs  []string `json:"record_ids"`
		Properties []string `json:"properties"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	page, err := s.records.BatchReadRecords(r.Context(), pair, core.BatchReadRequest{
		ObjectType: objectType,
		RecordIDs:  body.RecordIDs,
		Properties: body.Properties,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagePayload(page))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType string) {
	var body struct {
		Values map[string]any `json:"values"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	result, err := s.records.CreateRecord(r.Context(), pair, core.CreateRecordRequest{
		ObjectType: objectType,
		Values:     body.Values,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writePayload(result))
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType, recordID string) {
	var body struct {
		Values map[string]any `json:"values"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	result, err := s.records.UpdateRecord(r.Context(), pair, core.UpdateRecordRequest{
		ObjectType: objectType,
		RecordID:   recordID,
		Values:     body.Values,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writePayload(result))
}

func (s *Server) handleUpsertRecord(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType string) {
	var body struct {
		Key struct {
			Name   string   `json:"name"`
			Values []string `json:"values"`
		} `json:"key"`
		Values map[string]any `json:"values"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	result, err := s.records.UpsertRecord(r.Context(), pair, core.UpsertRecordRequest{
		ObjectType: objectType,
		Key: core.UpsertKey{
			Name:   body.Key.Name,
			Values: body.Key.Values,
		},
		Values: body.Values,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writePayload(result))
}

func (s *Server) handleCountRecords(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectType string) {
	count, err := s.records.CountRecords(r.Context(), pair, core.CountRequest{ObjectType: objectType})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request, pair core.PairKey) {
	objects, err := s.records.ListObjects(r.Context(), pair)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(objects))
	for _, object := range objects {
		payload = append(payload, map[string]any{
			"name":   object.Name,
			"label":  object.Label,
			"custom": object.Custom,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": payload})
}

func (s *Server) handleListObjectProperties(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectName string) {
	properties, err := s.records.ListObjectProperties(r.Context(), pair, core.ObjectPropertiesRequest{ObjectName: objectName})
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(properties))
	for _, property := range properties {
		payload = append(payload, map[string]any{
			"id":          property.ID,
			"label":       property.Label,
			"type":        property.Type,
			"required":    property.Required,
			"description": property.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": payload})
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request, pair core.PairKey) {
	var body struct {
		Name         string `json:"name"`
		Label        string `json:"label"`
		Description  string `json:"description"`
		PrimaryField string `json:"primary_field"`
		Fields       []struct {
			ID          string `json:"id"`
			Label       string `json:"label"`
			Type        string `json:"type"`
			Required    bool   `json:"required"`
			Description string `json:"description"`
		} `json:"fields"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	req := core.CreateObjectRequest{
		Name:         body.Name,
		Label:        body.Label,
		Description:  body.Description,
		PrimaryField: body.PrimaryField,
	}
	for _, field := range body.Fields {
		req.Fields = append(req.Fields, core.FieldDefinition{
			ID:          field.ID,
			Label:       field.Label,
			Type:        field.Type,
			Required:    field.Required,
			Description: field.Description,
		})
	}
	result, err := s.records.CreateObject(r.Context(), pair, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writePayload(result))
}

func (s *Server) handleCreateAssociation(w http.ResponseWriter, r *http.Request, pair core.PairKey) {
	var body struct {
		SourceObject    string `json:"source_object"`
		TargetObject    string `json:"target_object"`
		SourceRecordID  string `json:"source_record_id"`
		TargetRecordID  string `json:"target_record_id"`
		AssociationType string `json:"association_type"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	result, err := s.records.CreateAssociation(r.Context(), pair, core.CreateAssociationRequest{
		SourceObject:    body.SourceObject,
		TargetObject:    body.TargetObject,
		SourceRecordID:  body.SourceRecordID,
		TargetRecordID:  body.TargetRecordID,
		AssociationType: body.AssociationType,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writePayload(result))
}

func (s *Server) handleListCustomObjectRecords(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectName string) {
	req := core.ListCustomObjectRecordsRequest{
		ObjectName: objectName,
		Cursor:     r.URL.Query().Get("cursor"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		pageSize, err := strconv.Atoi(raw)
		if err != nil || pageSize <= 0 {
			s.writeErrorKind(w, core.ErrorKindValidationFailed, "page_size must be a positive integer")
			return
		}
		req.PageSize = pageSize
	}
	page, err := s.records.ListCustomObjectRecords(r.Context(), pair, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pagePayload(page))
}

func (s *Server) handleCreateCustomObjectRecord(w http.ResponseWriter, r *http.Request, pair core.PairKey, objectName string) {
	var body struct {
		Values map[string]any `json:"values"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	result, err := s.records.CreateCustomObjectRecord(r.Context(), pair, core.CreateCustomObjectRecordRequest{
		ObjectName: objectName,
		Values:     body.Values,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, writePayload(result))
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromHeaders(w, r)
	if !ok {
		return
	}
	var body struct {
		ObjectTypes []string       `json:"object_types"`
		Metadata    map[string]any `json:"metadata"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	run, err := s.syncs.StartRun(r.Context(), unifiedsync.StartRunRequest{
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		ObjectTypes:  body.ObjectTypes,
		Metadata:     body.Metadata,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, runPayload(run))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromHeaders(w, r)
	if !ok {
		return
	}
	filter := core.SyncRunFilter{
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		Status:       core.SyncRunStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeErrorKind(w, core.ErrorKindValidationFailed, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}
	runs, err := s.runs.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		payload = append(payload, runPayload(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": payload})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.runs.Get(r.Context(), strings.TrimSpace(runID))
	if err != nil {
		if errors.Is(err, core.ErrSyncRunNotFound) {
			s.writeErrorKind(w, core.ErrorKindNotFound, "sync run not found")
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runPayload(run))
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.syncs.CancelRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runPayload(run))
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pairFromHeaders(w, r)
	if !ok {
		return
	}
	state, err := s.states.Get(r.Context(), pair)
	if err != nil {
		if errors.Is(err, core.ErrSyncStateNotFound) {
			s.writeErrorKind(w, core.ErrorKindNotFound, "sync state not found")
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"customer_id":   state.CustomerID,
		"provider_name": state.ProviderName,
		"state":         state.Document,
		"updated_at":    state.UpdatedAt,
	})
}

func (s *Server) pairFromHeaders(w http.ResponseWriter, r *http.Request) (core.PairKey, bool) {
	pair := core.PairKey{
		CustomerID:   strings.TrimSpace(r.Header.Get(headerCustomerID)),
		ProviderName: strings.TrimSpace(r.Header.Get(headerProviderName)),
	}
	if err := pair.Validate(); err != nil {
		s.writeErrorKind(w, core.ErrorKindValidationFailed, "x-customer-id and x-provider-name headers are required")
		return core.PairKey{}, false
	}
	return pair, true
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeErrorKind(w, core.ErrorKindValidationFailed, "request body exceeds configured limit")
			return false
		}
		s.writeErrorKind(w, core.ErrorKindValidationFailed, "failed to read request body")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		s.writeErrorKind(w, core.ErrorKindValidationFailed, "invalid json body")
		return false
	}
	return true
}

func pagePayload(page core.RecordPage) map[string]any {
	records := page.Items
	if records == nil {
		records = []core.CanonicalRecord{}
	}
	payload := map[string]any{
		"records":       records,
		"has_next_page": page.HasNextPage,
		"next_cursor":   page.NextCursor,
	}
	if len(page.Warnings) > 0 {
		payload["warnings"] = page.Warnings
	}
	return payload
}

func writePayload(result core.WriteResult) map[string]any {
	payload := map[string]any{
		"record_id": result.RecordID,
		"record":    result.Record,
	}
	if len(result.Warnings) > 0 {
		payload["warnings"] = result.Warnings
	}
	return payload
}

func runPayload(run core.SyncRun) map[string]any {
	payload := map[string]any{
		"id":            run.ID,
		"customer_id":   run.CustomerID,
		"provider_name": run.ProviderName,
		"object_types":  run.ObjectTypes,
		"status":        string(run.Status),
		"created_at":    run.CreatedAt,
		"updated_at":    run.UpdatedAt,
	}
	if run.FailureReason != "" {
		payload["failure_reason"] = run.FailureReason
	}
	if run.StartedAt != nil {
		payload["started_at"] = run.StartedAt
	}
	if run.CompletedAt != nil {
		payload["completed_at"] = run.CompletedAt
	}
	return payload
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	message := mapped.Message
	if strings.TrimSpace(message) == "" {
		message = mapped.Error()
	}
	kind := core.KindOf(mapped)
	status := core.HTTPStatusFor(mapped)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", string(kind), "error", message)
	}
	if hint, ok := core.RetryHint(mapped); ok {
		seconds := int(hint.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeJSON(w, status, map[string]any{
		"kind":    string(kind),
		"message": message,
	})
}

func (s *Server) writeErrorKind(w http.ResponseWriter, kind core.ErrorKind, message string) {
	s.writeError(w, core.NewKindError(kind, message))
}

func (s *Server) writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"kind":    string(core.ErrorKindValidationFailed),
		"message": "method not allowed",
	})
}
