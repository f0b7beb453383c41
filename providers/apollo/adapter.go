// Package apollo implements the Apollo sales-engagement adapter. Apollo is a
// read surface: listing, reads and counts work, every write fails with
// not_supported. The native API paginates with page numbers, so cursors
// encode the next page.
package apollo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/mapping"
	"github.com/goliatone/go-unified/pagination"
	"github.com/goliatone/go-unified/providers"
)

const ProviderName = "apollo"

const defaultAPIBase = "https://api.apollo.io"

const defaultPageSize = 100

type endpoint struct {
	searchPath string
	getPath    string
	resultKey  string
}

// endpoints binds canonical object types to Apollo search APIs. Sequences are
// emailer campaigns natively.
var endpoints = map[string]endpoint{
	core.ObjectTypeAccount:  {searchPath: "/v1/accounts/search", getPath: "/v1/accounts", resultKey: "accounts"},
	core.ObjectTypeContact:  {searchPath: "/v1/contacts/search", getPath: "/v1/contacts", resultKey: "contacts"},
	core.ObjectTypeUser:     {searchPath: "/v1/users/search", resultKey: "users"},
	core.ObjectTypeSequence: {searchPath: "/v1/emailer_campaigns/search", resultKey: "emailer_campaigns"},
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
		return nil, core.NewKindError(core.ErrorKindInternal, "apollo: transport is required")
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

type searchEnvelope struct {
	results    []map[string]any
	pagination struct {
		Page       int   `json:"page"`
		TotalPages int   `json:"total_pages"`
		Total      int64 `json:"total_entries"`
	}
}

func (a *Adapter) ListRecords(ctx context.Context, req core.ListRecordsRequest) (core.RecordPage, error) {
	target, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	page, err := decodePageCursor(req.Cursor)
	if err != nil {
		return core.RecordPage{}, err
	}
	perPage := req.PageSize
	if perPage <= 0 {
		perPage = defaultPageSize
	}

	envelope, err := a.search(ctx, target, page, perPage)
	if err != nil {
		return core.RecordPage{}, err
	}

	result := core.RecordPage{Items: make([]core.CanonicalRecord, 0, len(envelope.results))}
	for _, native := range envelope.results {
		result.Items = append(result.Items, mapper.ToCanonical(native))
	}
	if envelope.pagination.Page < envelope.pagination.TotalPages {
		result.HasNextPage = true
		result.NextCursor = pagination.EncodeOffset(envelope.pagination.Page + 1)
	}
	a.logger.Debug("apollo listed "+req.ObjectType, "count", len(result.Items), "page", page)
	return result, nil
}

func (a *Adapter) GetRecord(ctx context.Context, req core.GetRecordRequest) (core.RecordWithRaw, error) {
	target, mapper, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return core.RecordWithRaw{}, err
	}
	if target.getPath == "" {
		return core.RecordWithRaw{}, core.NewKindError(core.ErrorKindNotSupported,
			fmt.Sprintf("apollo: get_record is not supported for %s", req.ObjectType))
	}

	var payload map[string]json.RawMessage
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodGet,
		URL:    a.apiBase + target.getPath + "/" + strings.TrimSpace(req.RecordID),
	}, &payload); err != nil {
		return core.RecordWithRaw{}, err
	}

	// Single reads wrap the record under its singular key.
	singular := strings.TrimSuffix(target.resultKey, "s")
	raw, ok := payload[singular]
	if !ok {
		return core.RecordWithRaw{}, core.NewKindError(core.ErrorKindProviderUnavailable,
			fmt.Sprintf("apollo: response is missing the %q envelope", singular))
	}
	var native map[string]any
	if err := json.Unmarshal(raw, &native); err != nil {
		return core.RecordWithRaw{}, core.WrapKindError(core.ErrorKindProviderUnavailable, err, "apollo: decode record")
	}
	return core.RecordWithRaw{
		Record: mapper.ToCanonical(native),
		Raw:    native,
	}, nil
}

func (a *Adapter) CountRecords(ctx context.Context, req core.CountRequest) (int64, error) {
	target, _, err := a.resolveObject(req.ObjectType)
	if err != nil {
		return 0, err
	}
	envelope, err := a.search(ctx, target, 1, 1)
	if err != nil {
		return 0, err
	}
	return envelope.pagination.Total, nil
}

func (a *Adapter) ListObjects(context.Context) ([]core.ObjectMetadata, error) {
	return []core.ObjectMetadata{
		{Name: core.ObjectTypeAccount, Label: "Account"},
		{Name: core.ObjectTypeContact, Label: "Contact"},
		{Name: core.ObjectTypeUser, Label: "User"},
		{Name: core.ObjectTypeSequence, Label: "Sequence"},
	}, nil
}

func (a *Adapter) search(ctx context.Context, target endpoint, page, perPage int) (searchEnvelope, error) {
	body, err := providers.EncodeJSONBody(ProviderName, map[string]any{
		"page":     page,
		"per_page": perPage,
	})
	if err != nil {
		return searchEnvelope{}, err
	}

	var payload map[string]json.RawMessage
	if _, err := providers.DoJSON(ctx, ProviderName, a.transport, core.TransportRequest{
		Method: http.MethodPost,
		URL:    a.apiBase + target.searchPath,
		Body:   body,
	}, &payload); err != nil {
		return searchEnvelope{}, err
	}

	var envelope searchEnvelope
	if raw, ok := payload[target.resultKey]; ok {
		if err := json.Unmarshal(raw, &envelope.results); err != nil {
			return searchEnvelope{}, core.WrapKindError(core.ErrorKindProviderUnavailable, err, "apollo: decode results")
		}
	}
	if raw, ok := payload["pagination"]; ok {
		if err := json.Unmarshal(raw, &envelope.pagination); err != nil {
			return searchEnvelope{}, core.WrapKindError(core.ErrorKindProviderUnavailable, err, "apollo: decode pagination")
		}
	}
	return envelope, nil
}

func (a *Adapter) resolveObject(objectType string) (endpoint, *mapping.Mapper, error) {
	objectType = strings.TrimSpace(objectType)
	target, ok := endpoints[objectType]
	if !ok {
		return endpoint{}, nil, core.NewKindError(core.ErrorKindNotSupported,
			fmt.Sprintf("apollo: object type %q is not supported", objectType))
	}
	mapper, ok := a.mappers[objectType]
	if !ok {
		return endpoint{}, nil, core.NewKindError(core.ErrorKindInternal,
			fmt.Sprintf("apollo: no mapper for object type %q", objectType))
	}
	return target, mapper, nil
}

func decodePageCursor(cursor string) (int, error) {
	page, err := pagination.DecodeOffset(cursor)
	if err != nil {
		return 0, core.WrapKindError(core.ErrorKindValidationFailed, err, "apollo: invalid cursor")
	}
	if page <= 0 {
		page = 1
	}
	return page, nil
}

var _ core.ProviderAdapter = (*Adapter)(nil)
