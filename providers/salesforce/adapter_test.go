package salesforce

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/pagination"
)

type scriptedTransport struct {
	requests  []core.TransportRequest
	responses []core.TransportResponse
}

func (s *scriptedTransport) Kind() string { return "rest" }

func (s *scriptedTransport) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return core.TransportResponse{StatusCode: 200, Body: []byte(`{}`)}, nil
	}
	res := s.responses[0]
	s.responses = s.responses[1:]
	return res, nil
}

func newTestAdapter(t *testing.T, responses ...core.TransportResponse) (*Adapter, *scriptedTransport) {
	t.Helper()
	stub := &scriptedTransport{responses: responses}
	adapter, err := New(core.AdapterDeps{
		CustomerID:   "cust_1",
		ProviderName: ProviderName,
		Transport:    stub,
	})
	if err != nil {
		t.Fatalf("expected adapter, got error %v", err)
	}
	return adapter, stub
}

func jsonResponse(status int, body string) core.TransportResponse {
	return core.TransportResponse{StatusCode: status, Body: []byte(body)}
}

func TestListRecordsBuildsSOQLWithOffset(t *testing.T) {
	adapter, stub := newTestAdapter(t, jsonResponse(200, `{
		"totalSize": 1,
		"done": true,
		"records": [
			{
				"attributes": {"type": "Account"},
				"Id": "001xx0001",
				"Name": "Globex",
				"Website": "https://www.globex.test/about",
				"NumberOfEmployees": 250
			}
		]
	}`))

	page, err := adapter.ListRecords(context.Background(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
		Cursor:     pagination.EncodeOffset(200),
		PageSize:   100,
	})
	if err != nil {
		t.Fatalf("expected page, got error %v", err)
	}

	soql := stub.requests[0].Query["q"]
	if !strings.Contains(soql, "FROM Account") {
		t.Fatalf("expected Account query, got %q", soql)
	}
	if !strings.Contains(soql, "LIMIT 100 OFFSET 200") {
		t.Fatalf("expected limit/offset clause, got %q", soql)
	}

	record := page.Items[0]
	if record["id"] != "001xx0001" || record["website"] != "https://www.globex.test/about" {
		t.Fatalf("unexpected record: %#v", record)
	}
	if record["domain"] != "globex.test" {
		t.Fatalf("expected derived domain globex.test, got %v", record["domain"])
	}
	if page.HasNextPage {
		t.Fatal("short page must not report a next page")
	}
}

func TestListRecordsFullPageAdvancesOffsetCursor(t *testing.T) {
	adapter, _ := newTestAdapter(t, jsonResponse(200, `{
		"records": [
			{"Id": "003a", "LastName": "Diaz"},
			{"Id": "003b", "LastName": "Ng"}
		]
	}`))

	page, err := adapter.ListRecords(context.Background(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeContact,
		PageSize:   2,
	})
	if err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	if !page.HasNextPage {
		t.Fatal("full page must report a next page")
	}
	offset, err := pagination.DecodeOffset(page.NextCursor)
	if err != nil || offset != 2 {
		t.Fatalf("expected offset 2 cursor, got %d (%v)", offset, err)
	}
}

func TestListRecordsModifiedAfterFilter(t *testing.T) {
	adapter, stub := newTestAdapter(t, jsonResponse(200, `{"records": []}`))
	modifiedAfter := time.Date(2026, 2, 1, 12, 30, 0, 0, time.UTC)

	if _, err := adapter.ListRecords(context.Background(), core.ListRecordsRequest{
		ObjectType:    core.ObjectTypeOpportunity,
		ModifiedAfter: &modifiedAfter,
	}); err != nil {
		t.Fatalf("expected page, got error %v", err)
	}

	soql := stub.requests[0].Query["q"]
	if !strings.Contains(soql, "LastModifiedDate > 2026-02-01T12:30:00Z") {
		t.Fatalf("expected modified-after clause, got %q", soql)
	}
}

func TestOpportunityStatusDerivedFromCloseFlags(t *testing.T) {
	adapter, _ := newTestAdapter(t, jsonResponse(200, `{
		"records": [
			{"Id": "006a", "Name": "Renewal", "IsClosed": true, "IsWon": true},
			{"Id": "006b", "Name": "Expansion", "IsClosed": true, "IsWon": false},
			{"Id": "006c", "Name": "New logo", "IsClosed": false, "IsWon": false}
		]
	}`))

	page, err := adapter.ListRecords(context.Background(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeOpportunity,
	})
	if err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	statuses := []string{
		page.Items[0]["status"].(string),
		page.Items[1]["status"].(string),
		page.Items[2]["status"].(string),
	}
	if statuses[0] != "won" || statuses[1] != "lost" || statuses[2] != "open" {
		t.Fatalf("unexpected statuses: %v", statuses)
	}
}

func TestUpsertRejectsUnsupportedKey(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	_, err := adapter.UpsertRecord(context.Background(), core.UpsertRecordRequest{
		ObjectType: core.ObjectTypeAccount,
		Key:        core.UpsertKey{Name: "domain", Values: []string{"globex.test"}},
		Values:     map[string]any{"name": "Globex"},
	})
	if core.KindOf(err) != core.ErrorKindNotSupported {
		t.Fatalf("expected not_supported for domain key, got %v", err)
	}
}

func TestUpsertConflictsOnMultipleMatches(t *testing.T) {
	adapter, _ := newTestAdapter(t, jsonResponse(200, `{
		"records": [{"Id": "001a"}, {"Id": "001b"}]
	}`))

	_, err := adapter.UpsertRecord(context.Background(), core.UpsertRecordRequest{
		ObjectType: core.ObjectTypeAccount,
		Key:        core.UpsertKey{Name: "website", Values: []string{"https://globex.test"}},
		Values:     map[string]any{"name": "Globex"},
	})
	if core.KindOf(err) != core.ErrorKindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpsertUpdatesSingleMatch(t *testing.T) {
	adapter, stub := newTestAdapter(t,
		jsonResponse(200, `{"records": [{"Id": "001match"}]}`),
		core.TransportResponse{StatusCode: 204},
		jsonResponse(200, `{"Id": "001match", "Name": "Globex"}`),
	)

	result, err := adapter.UpsertRecord(context.Background(), core.UpsertRecordRequest{
		ObjectType: core.ObjectTypeAccount,
		Key:        core.UpsertKey{Name: "website", Values: []string{"https://globex.test"}},
		Values:     map[string]any{"name": "Globex"},
	})
	if err != nil {
		t.Fatalf("expected upsert update, got error %v", err)
	}
	if result.RecordID != "001match" {
		t.Fatalf("expected matched record id, got %q", result.RecordID)
	}
	update := stub.requests[1]
	if update.Method != "PATCH" || !strings.HasSuffix(update.URL, "/sobjects/Account/001match") {
		t.Fatalf("unexpected update request %s %s", update.Method, update.URL)
	}
}

func TestCountRecordsUsesAggregateQuery(t *testing.T) {
	adapter, stub := newTestAdapter(t, jsonResponse(200, `{"totalSize": 88, "done": true, "records": []}`))
	total, err := adapter.CountRecords(context.Background(), core.CountRequest{ObjectType: core.ObjectTypeLead})
	if err != nil {
		t.Fatalf("expected count, got error %v", err)
	}
	if total != 88 {
		t.Fatalf("expected 88, got %d", total)
	}
	if soql := stub.requests[0].Query["q"]; soql != "SELECT COUNT() FROM Lead" {
		t.Fatalf("unexpected count query %q", soql)
	}
}

func TestCreateObjectIsNotSupported(t *testing.T) {
	adapter, _ := newTestAdapter(t)
	_, err := adapter.CreateObject(context.Background(), core.CreateObjectRequest{Name: "Invoice__c"})
	if core.KindOf(err) != core.ErrorKindNotSupported {
		t.Fatalf("expected not_supported, got %v", err)
	}
}

func TestSOQLQuoteEscapesInput(t *testing.T) {
	quoted := soqlQuote("O'Brien \\ Co")
	if quoted != `'O\'Brien \\ Co'` {
		t.Fatalf("unexpected quoting: %s", quoted)
	}
}
