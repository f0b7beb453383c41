package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-unified/core"
	unifiedsync "github.com/goliatone/go-unified/sync"
)

type stubRecordService struct {
	listFn       func(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error)
	getFn        func(ctx context.Context, pair core.PairKey, req core.GetRecordRequest) (core.RecordWithRaw, error)
	createFn     func(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error)
	upsertFn     func(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error)
	countFn      func(ctx context.Context, pair core.PairKey, req core.CountRequest) (int64, error)
	objectsFn    func(ctx context.Context, pair core.PairKey) ([]core.ObjectMetadata, error)
	propertiesFn func(ctx context.Context, pair core.PairKey, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error)
}

func (s *stubRecordService) ListRecords(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error) {
	if s.listFn == nil {
		return core.RecordPage{}, core.NewKindError(core.ErrorKindNotSupported, "list is not supported")
	}
	return s.listFn(ctx, pair, req)
}

func (s *stubRecordService) GetRecord(ctx context.Context, pair core.PairKey, req core.GetRecordRequest) (core.RecordWithRaw, error) {
	if s.getFn == nil {
		return core.RecordWithRaw{}, core.NewKindError(core.ErrorKindNotSupported, "get is not supported")
	}
	return s.getFn(ctx, pair, req)
}

func (s *stubRecordService) BatchReadRecords(ctx context.Context, pair core.PairKey, req core.BatchReadRequest) (core.RecordPage, error) {
	return core.RecordPage{}, core.NewKindError(core.ErrorKindNotSupported, "batch read is not supported")
}

func (s *stubRecordService) CreateRecord(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error) {
	if s.createFn == nil {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported, "create is not supported")
	}
	return s.createFn(ctx, pair, req)
}

func (s *stubRecordService) UpdateRecord(ctx context.Context, pair core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error) {
	return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported, "update is not supported")
}

func (s *stubRecordService) UpsertRecord(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error) {
	if s.upsertFn == nil {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported, "upsert is not supported")
	}
	return s.upsertFn(ctx, pair, req)
}

func (s *stubRecordService) CountRecords(ctx context.Context, pair core.PairKey, req core.CountRequest) (int64, error) {
	if s.countFn == nil {
		return 0, core.NewKindError(core.ErrorKindNotSupported, "count is not supported")
	}
	return s.countFn(ctx, pair, req)
}

func (s *stubRecordService) ListObjects(ctx context.Context, pair core.PairKey) ([]core.ObjectMetadata, error) {
	if s.objectsFn == nil {
		return nil, core.NewKindError(core.ErrorKindNotSupported, "object metadata is not supported")
	}
	return s.objectsFn(ctx, pair)
}

func (s *stubRecordService) ListObjectProperties(ctx context.Context, pair core.PairKey, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error) {
	if s.propertiesFn == nil {
		return nil, core.NewKindError(core.ErrorKindNotSupported, "property metadata is not supported")
	}
	return s.propertiesFn(ctx, pair, req)
}

func (s *stubRecordService) CreateObject(ctx context.Context, pair core.PairKey, req core.CreateObjectRequest) (core.WriteResult, error) {
	return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported, "create object is not supported")
}

func (s *stubRecordService) CreateAssociation(ctx context.Context, pair core.PairKey, req core.CreateAssociationRequest) (core.WriteResult, error) {
	return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported, "create association is not supported")
}

func (s *stubRecordService) ListCustomObjectRecords(ctx context.Context, pair core.PairKey, req core.ListCustomObjectRecordsRequest) (core.RecordPage, error) {
	return core.RecordPage{}, core.NewKindError(core.ErrorKindNotSupported, "custom object list is not supported")
}

func (s *stubRecordService) CreateCustomObjectRecord(ctx context.Context, pair core.PairKey, req core.CreateCustomObjectRecordRequest) (core.WriteResult, error) {
	return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported, "custom object create is not supported")
}

type stubSyncService struct {
	startFn  func(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error)
	cancelFn func(ctx context.Context, runID string) (core.SyncRun, error)
}

func (s *stubSyncService) StartRun(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error) {
	if s.startFn == nil {
		return core.SyncRun{}, core.NewKindError(core.ErrorKindNotSupported, "start run is not supported")
	}
	return s.startFn(ctx, req)
}

func (s *stubSyncService) CancelRun(ctx context.Context, runID string) (core.SyncRun, error) {
	if s.cancelFn == nil {
		return core.SyncRun{}, core.NewKindError(core.ErrorKindNotSupported, "cancel run is not supported")
	}
	return s.cancelFn(ctx, runID)
}

type serverFixture struct {
	records *stubRecordService
	syncs   *stubSyncService
	runs    *unifiedsync.MemorySyncRunStore
	states  *unifiedsync.MemorySyncStateStore
	server  *Server
}

func newServerFixture(opts ...Option) *serverFixture {
	fixture := &serverFixture{
		records: &stubRecordService{},
		syncs:   &stubSyncService{},
		runs:    unifiedsync.NewMemorySyncRunStore(),
		states:  unifiedsync.NewMemorySyncStateStore(),
	}
	fixture.server = NewServer(fixture.records, fixture.syncs, fixture.runs, fixture.states, opts...)
	return fixture
}

func pairRequest(method, target string, body string) *http.Request {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(headerCustomerID, "cust-1")
	req.Header.Set(headerProviderName, "hubspot")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return payload
}

func TestListRecordsRequiresPairHeaders(t *testing.T) {
	fixture := newServerFixture()

	req := httptest.NewRequest(http.MethodGet, "/crm/v2/contact", nil)
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["kind"] != string(core.ErrorKindValidationFailed) {
		t.Fatalf("expected validation_failed kind, got %v", payload["kind"])
	}
}

func TestListRecordsParsesQueryAndRendersPage(t *testing.T) {
	fixture := newServerFixture()

	var captured core.ListRecordsRequest
	var capturedPair core.PairKey
	fixture.records.listFn = func(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error) {
		capturedPair = pair
		captured = req
		return core.RecordPage{
			Items: []core.CanonicalRecord{
				{"id": "c-1", "name": "Ada"},
				{"id": "c-2", "name": "Grace"},
			},
			HasNextPage: true,
			NextCursor:  "next-page",
		}, nil
	}

	req := pairRequest(http.MethodGet, "/crm/v2/contact?cursor=abc&page_size=25&modified_after=2026-08-01T00:00:00Z", "")
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if capturedPair.CustomerID != "cust-1" || capturedPair.ProviderName != "hubspot" {
		t.Fatalf("unexpected pair %+v", capturedPair)
	}
	if captured.ObjectType != "contact" || captured.Cursor != "abc" || captured.PageSize != 25 {
		t.Fatalf("unexpected list request %+v", captured)
	}
	if captured.ModifiedAfter == nil || !captured.ModifiedAfter.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected modified_after %v", captured.ModifiedAfter)
	}

	payload := decodeBody(t, rec)
	records, ok := payload["records"].([]any)
	if !ok || len(records) != 2 {
		t.Fatalf("expected 2 records, got %v", payload["records"])
	}
	if payload["has_next_page"] != true || payload["next_cursor"] != "next-page" {
		t.Fatalf("unexpected pagination fields %v", payload)
	}
}

func TestListRecordsRejectsBadPageSize(t *testing.T) {
	fixture := newServerFixture()

	req := pairRequest(http.MethodGet, "/crm/v2/contact?page_size=banana", "")
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestGetRecordRendersNotFoundKind(t *testing.T) {
	fixture := newServerFixture()
	fixture.records.getFn = func(ctx context.Context, pair core.PairKey, req core.GetRecordRequest) (core.RecordWithRaw, error) {
		return core.RecordWithRaw{}, core.NewKindError(core.ErrorKindNotFound, "contact c-404 not found")
	}

	req := pairRequest(http.MethodGet, "/crm/v2/contact/c-404", "")
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["kind"] != string(core.ErrorKindNotFound) {
		t.Fatalf("expected not_found kind, got %v", payload["kind"])
	}
}

func TestRateLimitedResponseCarriesRetryAfterHeader(t *testing.T) {
	fixture := newServerFixture()
	fixture.records.listFn = func(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error) {
		return core.RecordPage{}, core.WithRetryHint(
			core.NewKindError(core.ErrorKindRateLimited, "provider throttled the request"),
			2*time.Second,
		)
	}

	req := pairRequest(http.MethodGet, "/crm/v2/contact", "")
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After header 2, got %q", got)
	}
}

func TestCreateRecordReturnsCreated(t *testing.T) {
	fixture := newServerFixture()
	fixture.records.createFn = func(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error) {
		if req.ObjectType != "account" || req.Values["name"] != "Initech" {
			t.Fatalf("unexpected create request %+v", req)
		}
		return core.WriteResult{
			RecordID: "a-1",
			Record:   core.CanonicalRecord{"id": "a-1", "name": "Initech"},
		}, nil
	}

	req := pairRequest(http.MethodPost, "/crm/v2/account", `{"values":{"name":"Initech"}}`)
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["record_id"] != "a-1" {
		t.Fatalf("expected record_id a-1, got %v", payload["record_id"])
	}
}

func TestUpsertRecordDecodesKey(t *testing.T) {
	fixture := newServerFixture()

	var captured core.UpsertRecordRequest
	fixture.records.upsertFn = func(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error) {
		captured = req
		return core.WriteResult{RecordID: "c-9"}, nil
	}

	body := `{"key":{"name":"email","values":["ada@example.com"]},"values":{"name":"Ada"}}`
	req := pairRequest(http.MethodPost, "/crm/v2/contact/_upsert", body)
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if captured.Key.Name != "email" || len(captured.Key.Values) != 1 || captured.Key.Values[0] != "ada@example.com" {
		t.Fatalf("unexpected upsert key %+v", captured.Key)
	}
	if captured.Values["name"] != "Ada" {
		t.Fatalf("unexpected upsert values %+v", captured.Values)
	}
}

func TestCountRecords(t *testing.T) {
	fixture := newServerFixture()
	fixture.records.countFn = func(ctx context.Context, pair core.PairKey, req core.CountRequest) (int64, error) {
		if req.ObjectType != "lead" {
			t.Fatalf("unexpected count object type %q", req.ObjectType)
		}
		return 42, nil
	}

	req := pairRequest(http.MethodGet, "/crm/v2/lead/_count", "")
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	if payload["count"] != float64(42) {
		t.Fatalf("expected count 42, got %v", payload["count"])
	}
}

func TestMetadataRoutes(t *testing.T) {
	fixture := newServerFixture()
	fixture.records.objectsFn = func(ctx context.Context, pair core.PairKey) ([]core.ObjectMetadata, error) {
		return []core.ObjectMetadata{
			{Name: "contact", Label: "Contact"},
			{Name: "shipment", Label: "Shipment", Custom: true},
		}, nil
	}
	fixture.records.propertiesFn = func(ctx context.Context, pair core.PairKey, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error) {
		if req.ObjectName != "contact" {
			t.Fatalf("unexpected object name %q", req.ObjectName)
		}
		return []core.PropertyMetadata{
			{ID: "email", Label: "Email", Type: "string", Required: true},
		}, nil
	}

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodGet, "/crm/v2/metadata/objects", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for objects, got %d", rec.Code)
	}
	payload := decodeBody(t, rec)
	objects, ok := payload["objects"].([]any)
	if !ok || len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %v", payload["objects"])
	}

	rec = httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodGet, "/crm/v2/metadata/objects/contact/properties", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for properties, got %d", rec.Code)
	}
	payload = decodeBody(t, rec)
	properties, ok := payload["properties"].([]any)
	if !ok || len(properties) != 1 {
		t.Fatalf("expected 1 property, got %v", payload["properties"])
	}
}

func TestSyncRunRoutes(t *testing.T) {
	fixture := newServerFixture()

	now := time.Now().UTC()
	run := core.SyncRun{
		ID:           "run-1",
		CustomerID:   "cust-1",
		ProviderName: "hubspot",
		ObjectTypes:  []string{"contact"},
		Status:       core.SyncRunStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	fixture.syncs.startFn = func(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error) {
		if req.CustomerID != "cust-1" || req.ProviderName != "hubspot" {
			t.Fatalf("unexpected start request %+v", req)
		}
		if len(req.ObjectTypes) != 1 || req.ObjectTypes[0] != "contact" {
			t.Fatalf("unexpected object types %v", req.ObjectTypes)
		}
		if _, err := fixture.runs.Create(ctx, run); err != nil {
			t.Fatalf("seed run: %v", err)
		}
		return run, nil
	}
	fixture.syncs.cancelFn = func(ctx context.Context, runID string) (core.SyncRun, error) {
		if runID != "run-1" {
			t.Fatalf("unexpected cancel run id %q", runID)
		}
		cancelled := run
		cancelled.Status = core.SyncRunStatusCancelled
		return cancelled, nil
	}

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodPost, "/sync/runs", `{"object_types":["contact"]}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["id"] != "run-1" || payload["status"] != string(core.SyncRunStatusPending) {
		t.Fatalf("unexpected start payload %v", payload)
	}

	rec = httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodGet, "/sync/runs/run-1", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for get run, got %d", rec.Code)
	}
	payload = decodeBody(t, rec)
	if payload["id"] != "run-1" {
		t.Fatalf("unexpected get payload %v", payload)
	}

	rec = httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodPost, "/sync/runs/run-1/_cancel", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for cancel, got %d", rec.Code)
	}
	payload = decodeBody(t, rec)
	if payload["status"] != string(core.SyncRunStatusCancelled) {
		t.Fatalf("expected cancelled status, got %v", payload["status"])
	}

	rec = httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodGet, "/sync/runs/missing", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for missing run, got %d", rec.Code)
	}
}

func TestSyncStateRoute(t *testing.T) {
	fixture := newServerFixture()

	document := core.NewStateDocument()
	document.SetObjectState("contact", core.ObjectState{Cursor: "page-3"})
	if _, err := fixture.states.Save(context.Background(), core.SyncState{
		CustomerID:   "cust-1",
		ProviderName: "hubspot",
		Document:     document,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodGet, "/sync/state", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "page-3") {
		t.Fatalf("expected cursor in state payload, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	other := pairRequest(http.MethodGet, "/sync/state", "")
	other.Header.Set(headerProviderName, "salesforce")
	fixture.server.ServeHTTP(rec, other)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for missing state, got %d", rec.Code)
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	fixture := newServerFixture()

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodGet, "/crm/v1/contact", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestDeleteRecordMethodNotAllowed(t *testing.T) {
	fixture := newServerFixture()

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodDelete, "/crm/v2/contact/c-1", ""))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	fixture := newServerFixture(WithConfig(ServerConfig{MaxBodyBytes: 16}))

	body := `{"values":{"name":"` + strings.Repeat("x", 64) + `"}}`
	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, pairRequest(http.MethodPost, "/crm/v2/account", body))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	fixture := newServerFixture()

	rec := httptest.NewRecorder()
	fixture.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}
