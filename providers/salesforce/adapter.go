// Package salesforce implements the Salesforce CRM adapter over the REST data
// API. Listing runs SOQL with LIMIT/OFFSET, so cursors encode a numeric
// offset.
package salesforce

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/mapping"
	"github.com/goliatone/go-unified/pagination"
	"github.com/goliatone/go-unified/providers"
)

const ProviderName = "salesforce"

const defaultAPIBase = "https://api.salesforce.com"

const apiVersion = "v60.0"

const defaultPageSize = 100

// upsertKeyFields names the native match field per canonical upsert key. Keys
// outside this table are not supported by the provider.
var upsertKeyFields = map[string]map[string]string{
	core.ObjectTypeAccount: {"website": "Website"},
	core.ObjectTypeContact: {"email": "Email"},
}

type Adapter struct {
	providers.Unimplemented

	apiBase   string
	transport core.TransportAdapter
	logger    core.Logger
	mappers   map[string]*mapping.Mapper
}

type Option func(*Adapter)

func WithAPIBase(apiBase string) Option {
	return func(a *Adapter) {
		if trimmed := strings.TrimSpace(apiBase); trimmed != "" {
			a.apiBase = trimmed
		}
	}
}

func New(deps core.AdapterDeps, options ...Option) (*Adapter, error) {
	if deps.Transport == nil {
		return nil, core.NewKindError(core.ErrorKindInternal, "salesforce: transport is required")
	}
	mappers, err := buildMappers(core.DefaultSchemaRegistry())
	if err != nil {
		return nil, err
	}
	adapter := &Adapter{
		Unimplemented: providers.Unimplemented{Name: ProviderName},
		apiBase:       defaultAPIBase,
		transport:     deps.Transport,
		logger:        glog.Ensure(deps.Logger),
		mappers:       mappers,
	}
	for _, option := range options {
		option(adapter)
	}
	return adapter, nil
}

func Factory(options ...Option) core.AdapterFactory {
	return core.AdapterFactoryFunc{
		Name: ProviderName,
		Build: func(_ context.Context, deps core.AdapterDeps) (core.ProviderAdapter, error) {
			return New(deps, options...)
		},
	}
}

type queryEnvelope struct {
	TotalSize int64            `json:"totalSize"`
	Done      bool             `json:"done"`
	Records   []map[string]any `json:"records"`
}

func (a *Adapter) ListRecords(ctx context.Context, req core.ListRecordsRequest) (core.RecordPage, error) {
	sobject, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	offset, err := pagination.DecodeOffset(req.Cursor)
	if err != nil {
		return core.RecordPage{}, core.WrapKindError(core.ErrorKindValidationFailed, err, "salesforce: invalid cursor")
	}
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var clauses []string
	if req.ModifiedAfter != nil {
		clauses = append(clauses, "LastModifiedDate > "+req.ModifiedAfter.UTC().Format("2006-01-02T15:04:05Z"))
	}
	for field, value := range req.Filter {
		native, ok := nativeFilterField(mapper, field)
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", native, soqlQuote(fmt.Sprint(value))))
	}

	soql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(queryFields[req.ObjectType], ", "), sobject)
	if len(clauses) > 0 {
		soql += " WHERE " + strings.Join(clauses, " AND ")
	}
	soql += fmt.Sprintf(" ORDER BY LastModifiedDate, Id LIMIT %d OFFSET %d", limit, offset)

	envelope, err := a.query(ctx, soql)
	if err != nil {
		return core.RecordPage{}, err
	}

	page := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.Records))}
	for _, native := range envelope.Records {
		page.Items = append(page.Items, mapper.ToCanonical(native))
	}
	if len(envelope.Records) == limit {
		page.HasNextPage = true
		page.NextCursor = pagination.EncodeOffset(offset + limit)
	}
	a.logger.Debug("salesforce listed "+sobject, "count", len(page.Items), "offset", offset)
	return page, nil
}

func (a *Adapter) GetRecord(ctx context.Context, req core.GetRecordRequest) (core.RecordWithRaw, error) {
	sobject, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordWithRaw{}, err
	}
	var native map[string]any
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.sobjectURL(sobject, req.RecordID),
		Query: map[string]string{
			"fields": strings.Join(queryFields[req.ObjectType], ","),
		},
	}, &native); err != nil {
		return core.RecordWithRaw{}, err
	}
	delete(native, "attributes")
	return core.RecordWithRaw{
		Record: mapper.ToCanonical(native),
		Raw:    native,
	}, nil
}

func (a *Adapter) BatchReadRecords(ctx context.Context, req core.BatchReadRequest) (core.RecordPage, error) {
	sobject, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	ids := make([]string, 0, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, soqlQuote(trimmed))
		}
	}
	if len(ids) == 0 {
		return core.RecordPage{}, nil
	}
	soql := fmt.Sprintf("SELECT %s FROM %s WHERE Id IN (%s)",
		strings.Join(queryFields[req.ObjectType], ", "), sobject, strings.Join(ids, ", "))

	envelope, err := a.query(ctx, soql)
	if err != nil {
		return core.RecordPage{}, err
	}
	page := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.Records))}
	for _, native := range envelope.Records {
		page.Items = append(page.Items, mapper.ToCanonical(native))
	}
	return page, nil
}

func (a *Adapter) CreateRecord(ctx context.Context, req core.CreateRecordRequest) (core.WriteResult, error) {
	sobject, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	native, warnings := mapper.ToNative(req.Values)
	stripReadOnlyFields(native)
	body, err := providers.EncodeJSONBody(ProviderName, native)
	if err != nil {
		return core.WriteResult{}, err
	}

	var envelope struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.sobjectURL(sobject, ""),
		Body:   body,
	}, &envelope); err != nil {
		return core.WriteResult{}, err
	}

	fetched, err := a.GetRecord(ctx, core.GetRecordRequest{ObjectType: req.ObjectType, RecordID: envelope.ID})
	if err != nil {
		return core.WriteResult{RecordID: envelope.ID, Warnings: warnings}, nil
	}
	return core.WriteResult{RecordID: envelope.ID, Record: fetched.Record, Warnings: warnings}, nil
}

func (a *Adapter) UpdateRecord(ctx context.Context, req core.UpdateRecordRequest) (core.WriteResult, error) {
	sobject, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	native, warnings := mapper.ToNative(req.Values)
	stripReadOnlyFields(native)
	body, err := providers.EncodeJSONBody(ProviderName, native)
	if err != nil {
		return core.WriteResult{}, err
	}

	// Salesforce answers updates with 204 and an empty body.
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPatch,
		URL:    a.sobjectURL(sobject, req.RecordID),
		Body:   body,
	}, nil); err != nil {
		return core.WriteResult{}, err
	}

	fetched, err := a.GetRecord(ctx, core.GetRecordRequest{ObjectType: req.ObjectType, RecordID: req.RecordID})
	if err != nil {
		return core.WriteResult{RecordID: req.RecordID, Warnings: warnings}, nil
	}
	return core.WriteResult{RecordID: req.RecordID, Record: fetched.Record, Warnings: warnings}, nil
}

func (a *Adapter) UpsertRecord(ctx context.Context, req core.UpsertRecordRequest) (core.WriteResult, error) {
	sobject, _, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	keyField, ok := upsertKeyFields[req.ObjectType][strings.TrimSpace(req.Key.Name)]
	if !ok {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindNotSupported,
			fmt.Sprintf("salesforce: upsert key %q is not supported for %s", req.Key.Name, req.ObjectType))
	}

	values := make([]string, 0, len(req.Key.Values))
	for _, value := range req.Key.Values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, soqlQuote(trimmed))
		}
	}
	soql := fmt.Sprintf("SELECT Id FROM %s WHERE %s IN (%s) LIMIT 2",
		sobject, keyField, strings.Join(values, ", "))
	envelope, err := a.query(ctx, soql)
	if err != nil {
		return core.WriteResult{}, err
	}

	switch len(envelope.Records) {
	case 0:
		return a.CreateRecord(ctx, core.CreateRecordRequest{ObjectType: req.ObjectType, Values: req.Values})
	case 1:
		recordID := mapping.StringField(envelope.Records[0], "Id")
		return a.UpdateRecord(ctx, core.UpdateRecordRequest{
			ObjectType: req.ObjectType,
			RecordID:   recordID,
			Values:     req.Values,
		})
	default:
		return core.WriteResult{}, core.NewKindError(core.ErrorKindConflict,
			fmt.Sprintf("salesforce: multiple records matched upsert key %q", req.Key.Name))
	}
}

func (a *Adapter) CountRecords(ctx context.Context, req core.CountRequest) (int64, error) {
	sobject, _, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return 0, err
	}
	envelope, err := a.query(ctx, "SELECT COUNT() FROM "+sobject)
	if err != nil {
		return 0, err
	}
	return envelope.TotalSize, nil
}

func (a *Adapter) ListObjects(ctx context.Context) ([]core.ObjectMetadata, error) {
	var envelope struct {
		SObjects []struct {
			Name   string `json:"name"`
			Label  string `json:"label"`
			Custom bool   `json:"custom"`
		} `json:"sobjects"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/services/data/" + apiVersion + "/sobjects",
	}, &envelope); err != nil {
		return nil, err
	}
	objects := make([]core.ObjectMetadata, 0, len(envelope.SObjects))
	for _, sobject := range envelope.SObjects {
		objects = append(objects, core.ObjectMetadata{
			Name:   sobject.Name,
			Label:  sobject.Label,
			Custom: sobject.Custom,
		})
	}
	return objects, nil
}

func (a *Adapter) ListObjectProperties(ctx context.Context, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error) {
	objectName := strings.TrimSpace(req.ObjectName)
	if sobject, ok := sobjectNames[objectName]; ok {
		objectName = sobject
	}
	var envelope struct {
		Fields []struct {
			Name     string `json:"name"`
			Label    string `json:"label"`
			Type     string `json:"type"`
			Nillable bool   `json:"nillable"`
		} `json:"fields"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/services/data/" + apiVersion + "/sobjects/" + objectName + "/describe",
	}, &envelope); err != nil {
		return nil, err
	}
	properties := make([]core.PropertyMetadata, 0, len(envelope.Fields))
	for _, field := range envelope.Fields {
		properties = append(properties, core.PropertyMetadata{
			ID:       field.Name,
			Label:    field.Label,
			Type:     field.Type,
			Required: !field.Nillable,
		})
	}
	return properties, nil
}

func (a *Adapter) ListCustomObjectRecords(ctx context.Context, req core.ListCustomObjectRecordsRequest) (core.RecordPage, error) {
	objectName := strings.TrimSpace(req.ObjectName)
	if objectName == "" {
		return core.RecordPage{}, core.NewKindError(core.ErrorKindValidationFailed, "salesforce: object name is required")
	}
	offset, err := pagination.DecodeOffset(req.Cursor)
	if err != nil {
		return core.RecordPage{}, core.WrapKindError(core.ErrorKindValidationFailed, err, "salesforce: invalid cursor")
	}
	limit := req.PageSize
	if limit <= 0 || limit > 200 {
		// FIELDS(ALL) caps the page at 200 rows.
		limit = 200
	}

	soql := fmt.Sprintf("SELECT FIELDS(ALL) FROM %s ORDER BY Id LIMIT %d OFFSET %d", objectName, limit, offset)
	envelope, err := a.query(ctx, soql)
	if err != nil {
		return core.RecordPage{}, err
	}

	page := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.Records))}
	for _, native := range envelope.Records {
		delete(native, "attributes")
		page.Items = append(page.Items, core.CanonicalRecord(native))
	}
	if len(envelope.Records) == limit {
		page.HasNextPage = true
		page.NextCursor = pagination.EncodeOffset(offset + limit)
	}
	return page, nil
}

func (a *Adapter) CreateCustomObjectRecord(ctx context.Context, req core.CreateCustomObjectRecordRequest) (core.WriteResult, error) {
	objectName := strings.TrimSpace(req.ObjectName)
	if objectName == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "salesforce: object name is required")
	}
	body, err := providers.EncodeJSONBody(ProviderName, req.Values)
	if err != nil {
		return core.WriteResult{}, err
	}
	var envelope struct {
		ID string `json:"id"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.sobjectURL(objectName, ""),
		Body:   body,
	}, &envelope); err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{RecordID: envelope.ID}, nil
}

func (a *Adapter) query(ctx context.Context, soql string) (queryEnvelope, error) {
	var envelope queryEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/services/data/" + apiVersion + "/query",
		Query:  map[string]string{"q": soql},
	}, &envelope); err != nil {
		return queryEnvelope{}, err
	}
	return envelope, nil
}

func (a *Adapter) resolveObject(objectType string) (string, *mapping.Mapper, error) {
	objectType = strings.TrimSpace(objectType)
	sobject, ok := sobjectNames[objectType]
	if !ok {
		return "", nil, core.NewKindError(core.ErrorKindNotSupported,
			fmt.Sprintf("salesforce: object type %q is not supported", objectType))
	}
	mapper, ok := a.mappers[objectType]
	if !ok {
		return "", nil, core.NewKindError(core.ErrorKindInternal,
			fmt.Sprintf("salesforce: no mapper for object type %q", objectType))
	}
	return sobject, mapper, nil
}

func (a *Adapter) sobjectURL(sobject, recordID string) string {
	url := a.apiBase + "/services/data/" + apiVersion + "/sobjects/" + sobject
	if recordID != "" {
		url += "/" + recordID
	}
	return url
}

func nativeFilterField(mapper *mapping.Mapper, canonicalField string) (string, bool) {
	native, warnings := mapper.ToNative(map[string]any{canonicalField: ""})
	if len(warnings) > 0 {
		return "", false
	}
	for field := range native {
		return field, true
	}
	return "", false
}

func stripReadOnlyFields(native map[string]any) {
	delete(native, "Id")
	delete(native, "CreatedDate")
	delete(native, "LastModifiedDate")
	delete(native, "LastActivityDate")
}

func soqlQuote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

var _ core.ProviderAdapter = (*Adapter)(nil)
