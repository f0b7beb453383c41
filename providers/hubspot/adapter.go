// Package hubspot implements the HubSpot CRM adapter over the v3 objects,
// search, owners, schemas and properties APIs. Pagination uses the native
// `after` continuation token.
package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/mapping"
	"github.com/goliatone/go-unified/pagination"
	"github.com/goliatone/go-unified/providers"
)

const ProviderName = "hubspot"

const defaultAPIBase = "https://api.hubapi.com"

const defaultPageSize = 100

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

func WithSchemas(schemas *core.SchemaRegistry) Option {
	return func(a *Adapter) {
		if schemas == nil {
			return
		}
		mappers, err := buildMappers(schemas)
		if err == nil {
			a.mappers = mappers
		}
	}
}

func New(deps core.AdapterDeps, options ...Option) (*Adapter, error) {
	if deps.Transport == nil {
		return nil, core.NewKindError(core.ErrorKindInternal, "hubspot: transport is required")
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

// Factory registers the adapter under its provider name.
func Factory(options ...Option) core.AdapterFactory {
	return core.AdapterFactoryFunc{
		Name: ProviderName,
		Build: func(_ context.Context, deps core.AdapterDeps) (core.ProviderAdapter, error) {
			return New(deps, options...)
		},
	}
}

type objectEnvelope struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"createdAt"`
	UpdatedAt  string            `json:"updatedAt"`
}

type pageEnvelope struct {
	Results []objectEnvelope `json:"results"`
	Total   int64            `json:"total"`
	Paging  struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (e objectEnvelope) flatten() map[string]any {
	native := make(map[string]any, len(e.Properties)+3)
	for key, value := range e.Properties {
		if value != "" {
			native[key] = value
		}
	}
	native["id"] = e.ID
	if e.CreatedAt != "" {
		native["createdAt"] = e.CreatedAt
	}
	if e.UpdatedAt != "" {
		native["updatedAt"] = e.UpdatedAt
	}
	return native
}

func (a *Adapter) ListRecords(ctx context.Context, req core.ListRecordsRequest) (core.RecordPage, error) {
	if req.ObjectType == core.ObjectTypeUser {
		return a.listOwners(ctx, req)
	}
	path, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	after, err := pagination.DecodeToken(req.Cursor)
	if err != nil {
		return core.RecordPage{}, core.WrapKindError(core.ErrorKindValidationFailed, err, "hubspot: invalid cursor")
	}
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var envelope pageEnvelope
	if req.ModifiedAfter != nil {
		payload := map[string]any{
			"limit":      limit,
			"properties": requestProperties[req.ObjectType],
			"sorts": []map[string]string{
				{"propertyName": modifiedAtProperty, "direction": "ASCENDING"},
			},
			"filterGroups": []map[string]any{{
				"filters": []map[string]any{{
					"propertyName": modifiedAtProperty,
					"operator":     "GTE",
					"value":        strconv.FormatInt(req.ModifiedAfter.UTC().UnixMilli(), 10),
				}},
			}},
		}
		if after != "" {
			payload["after"] = after
		}
		body, err := providers.EncodeJSONBody(ProviderName, payload)
		if err != nil {
			return core.RecordPage{}, err
		}
		if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
			Method: http.MethodPost,
			URL:    a.apiBase + "/crm/v3/objects/" + path + "/search",
			Body:   body,
		}, &envelope); err != nil {
			return core.RecordPage{}, err
		}
	} else {
		query := map[string]string{
			"limit":      strconv.Itoa(limit),
			"properties": strings.Join(requestProperties[req.ObjectType], ","),
		}
		if after != "" {
			query["after"] = after
		}
		if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
			Method: http.MethodGet,
			URL:    a.apiBase + "/crm/v3/objects/" + path,
			Query:  query,
		}, &envelope); err != nil {
			return core.RecordPage{}, err
		}
	}

	page := a.buildPage(mapper, envelope)
	a.logger.Debug("hubspot listed "+path, "count", len(page.Items), "has_next", page.HasNextPage)
	return page, nil
}

func (a *Adapter) listOwners(ctx context.Context, req core.ListRecordsRequest) (core.RecordPage, error) {
	mapper := a.mappers[core.ObjectTypeUser]
	after, err := pagination.DecodeToken(req.Cursor)
	if err != nil {
		return core.RecordPage{}, core.WrapKindError(core.ErrorKindValidationFailed, err, "hubspot: invalid cursor")
	}
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}

	var envelope struct {
		Results []map[string]any `json:"results"`
		Paging  struct {
			Next struct {
				After string `json:"after"`
			} `json:"next"`
		} `json:"paging"`
	}
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if after != "" {
		query["after"] = after
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/crm/v3/owners",
		Query:  query,
	}, &envelope); err != nil {
		return core.RecordPage{}, err
	}

	page := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.Results))}
	for _, native := range envelope.Results {
		page.Items = append(page.Items, mapper.ToCanonical(native))
	}
	if next := envelope.Paging.Next.After; next != "" {
		page.HasNextPage = true
		page.NextCursor = pagination.EncodeToken(next)
	}
	return page, nil
}

func (a *Adapter) GetRecord(ctx context.Context, req core.GetRecordRequest) (core.RecordWithRaw, error) {
	path, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordWithRaw{}, err
	}
	var envelope objectEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/crm/v3/objects/" + path + "/" + req.RecordID,
		Query: map[string]string{
			"properties": strings.Join(requestProperties[req.ObjectType], ","),
		},
	}, &envelope); err != nil {
		return core.RecordWithRaw{}, err
	}
	native := envelope.flatten()
	return core.RecordWithRaw{
		Record: mapper.ToCanonical(native),
		Raw:    native,
	}, nil
}

func (a *Adapter) BatchReadRecords(ctx context.Context, req core.BatchReadRequest) (core.RecordPage, error) {
	path, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	properties := req.Properties
	if len(properties) == 0 {
		properties = requestProperties[req.ObjectType]
	}
	inputs := make([]map[string]string, 0, len(req.RecordIDs))
	for _, id := range req.RecordIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			inputs = append(inputs, map[string]string{"id": trimmed})
		}
	}
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{
		"properties": properties,
		"inputs":     inputs,
	})
	if err != nil {
		return core.RecordPage{}, err
	}

	var envelope pageEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + "/crm/v3/objects/" + path + "/batch/read",
		Body:   body,
	}, &envelope); err != nil {
		return core.RecordPage{}, err
	}
	return a.buildPage(mapper, envelope), nil
}

func (a *Adapter) CreateRecord(ctx context.Context, req core.CreateRecordRequest) (core.WriteResult, error) {
	path, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	return a.writeRecord(ctx, mapper, req.Values, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + "/crm/v3/objects/" + path,
	})
}

func (a *Adapter) UpdateRecord(ctx context.Context, req core.UpdateRecordRequest) (core.WriteResult, error) {
	path, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	return a.writeRecord(ctx, mapper, req.Values, core.TransportRequest{
		Method: http.MethodPatch,
		URL:    a.apiBase + "/crm/v3/objects/" + path + "/" + req.RecordID,
	})
}

func (a *Adapter) UpsertRecord(ctx context.Context, req core.UpsertRecordRequest) (core.WriteResult, error) {
	path, _, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	matches, err := a.searchByKey(ctx, path, req.Key)
	if err != nil {
		return core.WriteResult{}, err
	}
	switch len(matches) {
	case 0:
		return a.CreateRecord(ctx, core.CreateRecordRequest{ObjectType: req.ObjectType, Values: req.Values})
	case 1:
		return a.UpdateRecord(ctx, core.UpdateRecordRequest{
			ObjectType: req.ObjectType,
			RecordID:   matches[0],
			Values:     req.Values,
		})
	default:
		return core.WriteResult{}, core.NewKindError(core.ErrorKindConflict,
			fmt.Sprintf("hubspot: multiple records matched upsert key %q", req.Key.Name))
	}
}

func (a *Adapter) CountRecords(ctx context.Context, req core.CountRequest) (int64, error) {
	path, _, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return 0, err
	}
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{"limit": 1})
	if err != nil {
		return 0, err
	}
	var envelope pageEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + "/crm/v3/objects/" + path + "/search",
		Body:   body,
	}, &envelope); err != nil {
		return 0, err
	}
	return envelope.Total, nil
}

func (a *Adapter) ListObjects(ctx context.Context) ([]core.ObjectMetadata, error) {
	objects := []core.ObjectMetadata{
		{Name: core.ObjectTypeAccount, Label: "Company"},
		{Name: core.ObjectTypeContact, Label: "Contact"},
		{Name: core.ObjectTypeOpportunity, Label: "Deal"},
		{Name: core.ObjectTypeUser, Label: "Owner"},
		{Name: core.ObjectTypeEmail, Label: "Email"},
		{Name: core.ObjectTypeCall, Label: "Call"},
		{Name: core.ObjectTypeNote, Label: "Note"},
	}

	var envelope struct {
		Results []struct {
			Name   string `json:"name"`
			Labels struct {
				Singular string `json:"singular"`
			} `json:"labels"`
		} `json:"results"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/crm/v3/schemas",
	}, &envelope); err != nil {
		return nil, err
	}
	for _, schema := range envelope.Results {
		objects = append(objects, core.ObjectMetadata{
			Name:   schema.Name,
			Label:  schema.Labels.Singular,
			Custom: true,
		})
	}
	return objects, nil
}

func (a *Adapter) ListObjectProperties(ctx context.Context, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error) {
	objectName := strings.TrimSpace(req.ObjectName)
	if path, ok := objectPaths[objectName]; ok {
		objectName = path
	}
	var envelope struct {
		Results []struct {
			Name        string `json:"name"`
			Label       string `json:"label"`
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"results"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/crm/v3/properties/" + objectName,
	}, &envelope); err != nil {
		return nil, err
	}
	properties := make([]core.PropertyMetadata, 0, len(envelope.Results))
	for _, property := range envelope.Results {
		properties = append(properties, core.PropertyMetadata{
			ID:          property.Name,
			Label:       property.Label,
			Type:        property.Type,
			Description: property.Description,
		})
	}
	return properties, nil
}

func (a *Adapter) CreateObject(ctx context.Context, req core.CreateObjectRequest) (core.WriteResult, error) {
	properties := make([]map[string]any, 0, len(req.Fields))
	var required []string
	for _, field := range req.Fields {
		properties = append(properties, map[string]any{
			"name":      field.ID,
			"label":     field.Label,
			"type":      field.Type,
			"fieldType": "text",
		})
		if field.Required {
			required = append(required, field.ID)
		}
	}
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{
		"name":                   req.Name,
		"labels":                 map[string]string{"singular": req.Label},
		"description":            req.Description,
		"primaryDisplayProperty": req.PrimaryField,
		"properties":             properties,
		"requiredProperties":     required,
	})
	if err != nil {
		return core.WriteResult{}, err
	}

	var envelope struct {
		ObjectTypeID string `json:"objectTypeId"`
		Name         string `json:"name"`
	}
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + "/crm/v3/schemas",
		Body:   body,
	}, &envelope); err != nil {
		return core.WriteResult{}, err
	}
	recordID := envelope.ObjectTypeID
	if recordID == "" {
		recordID = envelope.Name
	}
	return core.WriteResult{RecordID: recordID}, nil
}

func (a *Adapter) CreateAssociation(ctx context.Context, req core.CreateAssociationRequest) (core.WriteResult, error) {
	source, ok := objectPaths[strings.TrimSpace(req.SourceObject)]
	if !ok {
		source = strings.TrimSpace(req.SourceObject)
	}
	target, ok := objectPaths[strings.TrimSpace(req.TargetObject)]
	if !ok {
		target = strings.TrimSpace(req.TargetObject)
	}
	url := fmt.Sprintf("%s/crm/v4/objects/%s/%s/associations/default/%s/%s",
		a.apiBase, source, req.SourceRecordID, target, req.TargetRecordID)
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPut,
		URL:    url,
	}, nil); err != nil {
		return core.WriteResult{}, err
	}

	result := core.WriteResult{RecordID: req.SourceRecordID}
	if assocType := strings.TrimSpace(req.AssociationType); assocType != "" && assocType != "default" {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("association type %q is not supported; the default association was applied", assocType))
	}
	return result, nil
}

func (a *Adapter) ListCustomObjectRecords(ctx context.Context, req core.ListCustomObjectRecordsRequest) (core.RecordPage, error) {
	after, err := pagination.DecodeToken(req.Cursor)
	if err != nil {
		return core.RecordPage{}, core.WrapKindError(core.ErrorKindValidationFailed, err, "hubspot: invalid cursor")
	}
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if after != "" {
		query["after"] = after
	}

	var envelope pageEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + "/crm/v3/objects/" + strings.TrimSpace(req.ObjectName),
		Query:  query,
	}, &envelope); err != nil {
		return core.RecordPage{}, err
	}

	page := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.Results))}
	for _, result := range envelope.Results {
		page.Items = append(page.Items, core.CanonicalRecord(result.flatten()))
	}
	if next := envelope.Paging.Next.After; next != "" {
		page.HasNextPage = true
		page.NextCursor = pagination.EncodeToken(next)
	}
	return page, nil
}

func (a *Adapter) CreateCustomObjectRecord(ctx context.Context, req core.CreateCustomObjectRecordRequest) (core.WriteResult, error) {
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{"properties": req.Values})
	if err != nil {
		return core.WriteResult{}, err
	}
	var envelope objectEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + "/crm/v3/objects/" + strings.TrimSpace(req.ObjectName),
		Body:   body,
	}, &envelope); err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{
		RecordID: envelope.ID,
		Record:   core.CanonicalRecord(envelope.flatten()),
	}, nil
}

func (a *Adapter) resolveObject(objectType string) (string, *mapping.Mapper, error) {
	objectType = strings.TrimSpace(objectType)
	path, ok := objectPaths[objectType]
	if !ok {
		return "", nil, core.NewKindError(core.ErrorKindNotSupported,
			fmt.Sprintf("hubspot: object type %q is not supported", objectType))
	}
	mapper, ok := a.mappers[objectType]
	if !ok {
		return "", nil, core.NewKindError(core.ErrorKindInternal,
			fmt.Sprintf("hubspot: no mapper for object type %q", objectType))
	}
	return path, mapper, nil
}

func (a *Adapter) buildPage(mapper *mapping.Mapper, envelope pageEnvelope) core.RecordPage {
	page := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.Results))}
	for _, result := range envelope.Results {
		page.Items = append(page.Items, mapper.ToCanonical(result.flatten()))
	}
	if next := envelope.Paging.Next.After; next != "" {
		page.HasNextPage = true
		page.NextCursor = pagination.EncodeToken(next)
	}
	return page
}

func (a *Adapter) writeRecord(ctx context.Context, mapper *mapping.Mapper, values map[string]any, req core.TransportRequest) (core.WriteResult, error) {
	native, warnings := mapper.ToNative(values)
	delete(native, "id")
	delete(native, "createdAt")
	delete(native, "updatedAt")
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{"properties": native})
	if err != nil {
		return core.WriteResult{}, err
	}
	req.Body = body

	var envelope objectEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, req, &envelope); err != nil {
		return core.WriteResult{}, err
	}
	return core.WriteResult{
		RecordID: envelope.ID,
		Record:   mapper.ToCanonical(envelope.flatten()),
		Warnings: warnings,
	}, nil
}

func (a *Adapter) searchByKey(ctx context.Context, path string, key core.UpsertKey) ([]string, error) {
	values := make([]string, 0, len(key.Values))
	for _, value := range key.Values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{
		"limit": 2,
		"filterGroups": []map[string]any{{
			"filters": []map[string]any{{
				"propertyName": strings.TrimSpace(key.Name),
				"operator":     "IN",
				"values":       values,
			}},
		}},
	})
	if err != nil {
		return nil, err
	}

	var envelope pageEnvelope
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + "/crm/v3/objects/" + path + "/search",
		Body:   body,
	}, &envelope); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(envelope.Results))
	for _, result := range envelope.Results {
		ids = append(ids, result.ID)
	}
	return ids, nil
}

var _ core.ProviderAdapter = (*Adapter)(nil)
