package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	ObjectTypeAccount     = "account"
	ObjectTypeContact     = "contact"
	ObjectTypeLead        = "lead"
	ObjectTypeOpportunity = "opportunity"
	ObjectTypeUser        = "user"
	ObjectTypeEmail       = "email"
	ObjectTypeCall        = "call"
	ObjectTypeNote        = "note"
	ObjectTypeSequence    = "sequence"
)

type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeObject   FieldType = "object"
)

// FieldSpec declares one canonical field. Default is the value a record
// carries when the provider had nothing for the field.
type FieldSpec struct {
	Name    string
	Type    FieldType
	Default any
}

// EntitySchema declares the canonical shape of one object type plus the
// upsert keys the schema admits for it.
type EntitySchema struct {
	ObjectType string
	Fields     []FieldSpec
	UpsertKeys []string
}

func (s EntitySchema) Field(name string) (FieldSpec, bool) {
	name = strings.TrimSpace(name)
	for _, field := range s.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldSpec{}, false
}

func (s EntitySchema) AllowsUpsertKey(name string) bool {
	name = strings.TrimSpace(name)
	for _, key := range s.UpsertKeys {
		if key == name {
			return true
		}
	}
	return false
}

// ApplyDefaults returns a total record: every declared field present, values
// from record where the provider produced one, declared defaults elsewhere.
// Undeclared keys on record pass through.
func (s EntitySchema) ApplyDefaults(record CanonicalRecord) CanonicalRecord {
	out := make(CanonicalRecord, len(s.Fields))
	for key, value := range record {
		out[key] = value
	}
	for _, field := range s.Fields {
		if _, ok := out[field.Name]; !ok {
			out[field.Name] = field.Default
		}
	}
	return out
}

// SchemaRegistry holds the canonical entity schemas. Object types outside the
// registry are custom objects and bypass schema defaulting.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]EntitySchema
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]EntitySchema)}
}

func (r *SchemaRegistry) Register(schema EntitySchema) error {
	objectType := strings.TrimSpace(schema.ObjectType)
	if objectType == "" {
		return fmt.Errorf("core: schema object type is required")
	}
	if len(schema.Fields) == 0 {
		return fmt.Errorf("core: schema for %s declares no fields", objectType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemas[objectType]; exists {
		return fmt.Errorf("core: schema already registered: %s", objectType)
	}
	schema.ObjectType = objectType
	r.schemas[objectType] = schema
	return nil
}

func (r *SchemaRegistry) Schema(objectType string) (EntitySchema, bool) {
	objectType = strings.TrimSpace(objectType)
	if objectType == "" {
		return EntitySchema{}, false
	}
	r.mu.RLock()
	schema, ok := r.schemas[objectType]
	r.mu.RUnlock()
	return schema, ok
}

func (r *SchemaRegistry) ObjectTypes() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.schemas))
	for objectType := range r.schemas {
		types = append(types, objectType)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}

// DefaultSchemaRegistry registers the canonical CRM and sales-engagement
// entities.
func DefaultSchemaRegistry() *SchemaRegistry {
	registry := NewSchemaRegistry()
	for _, schema := range defaultEntitySchemas() {
		if err := registry.Register(schema); err != nil {
			panic(err)
		}
	}
	return registry
}

func defaultEntitySchemas() []EntitySchema {
	str := func(name string) FieldSpec { return FieldSpec{Name: name, Type: FieldTypeString, Default: ""} }
	num := func(name string) FieldSpec { return FieldSpec{Name: name, Type: FieldTypeNumber, Default: float64(0)} }
	boolean := func(name string) FieldSpec {
		return FieldSpec{Name: name, Type: FieldTypeBoolean, Default: false}
	}
	datetime := func(name string) FieldSpec {
		return FieldSpec{Name: name, Type: FieldTypeDatetime, Default: nil}
	}

	return []EntitySchema{
		{
			ObjectType: ObjectTypeAccount,
			Fields: []FieldSpec{
				str("id"), str("name"), str("description"), str("industry"),
				str("website"), str("domain"), num("number_of_employees"),
				str("phone"), str("owner_id"), str("lifecycle_stage"),
				datetime("last_activity_at"), datetime("created_at"), datetime("updated_at"),
			},
			UpsertKeys: []string{"domain", "website"},
		},
		{
			ObjectType: ObjectTypeContact,
			Fields: []FieldSpec{
				str("id"), str("first_name"), str("last_name"), str("email"),
				str("phone"), str("account_id"), str("owner_id"), str("lifecycle_stage"),
				datetime("last_activity_at"), datetime("created_at"), datetime("updated_at"),
			},
			UpsertKeys: []string{"email"},
		},
		{
			ObjectType: ObjectTypeLead,
			Fields: []FieldSpec{
				str("id"), str("first_name"), str("last_name"), str("email"),
				str("company"), str("title"), str("lead_source"), str("owner_id"),
				str("converted_account_id"), str("converted_contact_id"),
				datetime("created_at"), datetime("updated_at"),
			},
		},
		{
			ObjectType: ObjectTypeOpportunity,
			Fields: []FieldSpec{
				str("id"), str("name"), str("description"), num("amount"),
				str("stage"), str("status"), datetime("close_date"), str("pipeline"),
				str("account_id"), str("owner_id"),
				datetime("last_activity_at"), datetime("created_at"), datetime("updated_at"),
			},
		},
		{
			ObjectType: ObjectTypeUser,
			Fields: []FieldSpec{
				str("id"), str("name"), str("email"), boolean("is_active"),
				datetime("created_at"), datetime("updated_at"),
			},
		},
		{
			ObjectType: ObjectTypeEmail,
			Fields: []FieldSpec{
				str("id"), str("subject"), str("body"), str("from_address"),
				str("to_address"), str("contact_id"), str("user_id"),
				datetime("sent_at"), datetime("created_at"), datetime("updated_at"),
			},
		},
		{
			ObjectType: ObjectTypeCall,
			Fields: []FieldSpec{
				str("id"), str("subject"), str("notes"), num("duration_seconds"),
				str("contact_id"), str("user_id"),
				datetime("occurred_at"), datetime("created_at"), datetime("updated_at"),
			},
		},
		{
			ObjectType: ObjectTypeNote,
			Fields: []FieldSpec{
				str("id"), str("content"), str("contact_id"), str("account_id"),
				str("opportunity_id"), str("owner_id"),
				datetime("created_at"), datetime("updated_at"),
			},
		},
		{
			ObjectType: ObjectTypeSequence,
			Fields: []FieldSpec{
				str("id"), str("name"), boolean("is_enabled"), num("num_steps"),
				str("owner_id"), datetime("created_at"), datetime("updated_at"),
			},
		},
	}
}

// AdapterRegistry holds one factory per provider name.
type AdapterRegistry struct {
	mu        sync.RWMutex
	factories map[string]AdapterFactory
}

func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{factories: make(map[string]AdapterFactory)}
}

func (r *AdapterRegistry) Register(factory AdapterFactory) error {
	if factory == nil {
		return fmt.Errorf("core: adapter factory is nil")
	}
	name := strings.TrimSpace(factory.ProviderName())
	if name == "" {
		return fmt.Errorf("core: adapter factory provider name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("core: adapter factory already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *AdapterRegistry) Get(providerName string) (AdapterFactory, bool) {
	name := strings.TrimSpace(providerName)
	if name == "" {
		return nil, false
	}
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	return factory, ok
}

func (r *AdapterRegistry) ProviderNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
