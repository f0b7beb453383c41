package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-unified/core"
)

// Unimplemented is the embeddable adapter base. Every operation fails with
// not_supported until the concrete adapter overrides it.
type Unimplemented struct {
	Name string
}

func (u Unimplemented) ProviderName() string {
	return strings.TrimSpace(u.Name)
}

func (u Unimplemented) notSupported(operation string) error {
	name := u.ProviderName()
	if name == "" {
		name = "provider"
	}
	return core.NewKindError(core.ErrorKindNotSupported, fmt.Sprintf("%s: %s is not supported", name, operation))
}

func (u Unimplemented) ListRecords(context.Context, core.ListRecordsRequest) (core.RecordPage, error) {
	return core.RecordPage{}, u.notSupported("list_records")
}

func (u Unimplemented) GetRecord(context.Context, core.GetRecordRequest) (core.RecordWithRaw, error) {
	return core.RecordWithRaw{}, u.notSupported("get_record")
}

func (u Unimplemented) BatchReadRecords(context.Context, core.BatchReadRequest) (core.RecordPage, error) {
	return core.RecordPage{}, u.notSupported("batch_read_records")
}

func (u Unimplemented) CreateRecord(context.Context, core.CreateRecordRequest) (core.WriteResult, error) {
	return core.WriteResult{}, u.notSupported("create_record")
}

func (u Unimplemented) UpdateRecord(context.Context, core.UpdateRecordRequest) (core.WriteResult, error) {
	return core.WriteResult{}, u.notSupported("update_record")
}

func (u Unimplemented) UpsertRecord(context.Context, core.UpsertRecordRequest) (core.WriteResult, error) {
	return core.WriteResult{}, u.notSupported("upsert_record")
}

func (u Unimplemented) CountRecords(context.Context, core.CountRequest) (int64, error) {
	return 0, u.notSupported("count_records")
}

func (u Unimplemented) ListObjects(context.Context) ([]core.ObjectMetadata, error) {
	return nil, u.notSupported("list_objects")
}

func (u Unimplemented) ListObjectProperties(context.Context, core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error) {
	return nil, u.notSupported("list_object_properties")
}

func (u Unimplemented) CreateObject(context.Context, core.CreateObjectRequest) (core.WriteResult, error) {
	return core.WriteResult{}, u.notSupported("create_object")
}

func (u Unimplemented) CreateAssociation(context.Context, core.CreateAssociationRequest) (core.WriteResult, error) {
	return core.WriteResult{}, u.notSupported("create_association")
}

func (u Unimplemented) ListCustomObjectRecords(context.Context, core.ListCustomObjectRecordsRequest) (core.RecordPage, error) {
	return core.RecordPage{}, u.notSupported("list_custom_object_records")
}

func (u Unimplemented) CreateCustomObjectRecord(context.Context, core.CreateCustomObjectRecordRequest) (core.WriteResult, error) {
	return core.WriteResult{}, u.notSupported("create_custom_object_record")
}

var _ core.ProviderAdapter = Unimplemented{}
