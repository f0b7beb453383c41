// Package mapping projects provider-native records onto the canonical schema
// and back. Maps are declarative: each canonical field is either an alias of a
// native field or a transform over the whole native record.
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-unified/core"
)

// Transform derives one canonical value from the full native record.
type Transform func(native map[string]any) any

// FieldRule binds one target field to its source. Exactly one of Alias or
// Transform is set.
type FieldRule struct {
	Alias     string
	Transform Transform
}

// Alias builds the common single-field rename rule.
func Alias(source string) FieldRule {
	return FieldRule{Alias: strings.TrimSpace(source)}
}

// Derive builds a rule computed from the whole native record.
func Derive(transform Transform) FieldRule {
	return FieldRule{Transform: transform}
}

// Convert builds a write rule that targets nativeField and converts the
// canonical values into the provider representation.
func Convert(nativeField string, transform Transform) FieldRule {
	return FieldRule{Alias: strings.TrimSpace(nativeField), Transform: transform}
}

// Mapper is the bidirectional field map for one object type on one provider.
type Mapper struct {
	objectType  string
	schema      core.EntitySchema
	toCanonical map[string]FieldRule
	toNative    map[string]FieldRule
}

// New builds a mapper over the canonical schema for objectType. Both maps are
// keyed by canonical field name. toNative mirrors toCanonical for writes:
// each rule names the native target field (Alias) and may carry a Transform
// converting the canonical values into the provider representation; fields
// reachable through an inverted toCanonical alias need no mirror rule.
func New(schema core.EntitySchema, toCanonical map[string]FieldRule, toNative map[string]FieldRule) (*Mapper, error) {
	objectType := strings.TrimSpace(schema.ObjectType)
	if objectType == "" {
		return nil, fmt.Errorf("mapping: schema object type is required")
	}
	for field, rule := range toCanonical {
		if _, ok := schema.Field(field); !ok {
			return nil, fmt.Errorf("mapping: %s: unknown canonical field %q", objectType, field)
		}
		if err := validateRule(objectType, field, rule); err != nil {
			return nil, err
		}
	}
	for field, rule := range toNative {
		if _, ok := schema.Field(field); !ok {
			return nil, fmt.Errorf("mapping: %s: unknown canonical field %q", objectType, field)
		}
		if strings.TrimSpace(rule.Alias) == "" {
			return nil, fmt.Errorf("mapping: %s: write rule for %q must name a native field", objectType, field)
		}
	}
	return &Mapper{
		objectType:  objectType,
		schema:      schema,
		toCanonical: toCanonical,
		toNative:    toNative,
	}, nil
}

func validateRule(objectType, field string, rule FieldRule) error {
	hasAlias := strings.TrimSpace(rule.Alias) != ""
	hasTransform := rule.Transform != nil
	if hasAlias == hasTransform {
		return fmt.Errorf("mapping: %s: field %q must declare exactly one of alias or transform", objectType, field)
	}
	return nil
}

func (m *Mapper) ObjectType() string {
	if m == nil {
		return ""
	}
	return m.objectType
}

// ToCanonical projects one native record onto the canonical schema. The
// result is total: every declared field is present, defaulted when the native
// record had nothing for it. Mapping never fails on missing source fields.
func (m *Mapper) ToCanonical(native map[string]any) core.CanonicalRecord {
	if m == nil {
		return core.CanonicalRecord{}
	}
	record := make(core.CanonicalRecord, len(m.toCanonical))
	for field, rule := range m.toCanonical {
		if rule.Transform != nil {
			record[field] = rule.Transform(native)
			continue
		}
		if value, ok := native[rule.Alias]; ok && value != nil {
			record[field] = value
		}
	}
	return m.schema.ApplyDefaults(record)
}

// ToNative projects canonical write values into the provider-native shape.
// Explicit toNative rules win over inverted aliases. Fields the provider
// cannot represent are dropped with a warning, never silently and never as an
// error.
func (m *Mapper) ToNative(values map[string]any) (map[string]any, []string) {
	if m == nil {
		return map[string]any{}, nil
	}
	inverted := make(map[string]string, len(m.toCanonical))
	for field, rule := range m.toCanonical {
		if strings.TrimSpace(rule.Alias) != "" {
			inverted[field] = rule.Alias
		}
	}

	native := make(map[string]any, len(values))
	var unsupported []string
	for field, value := range values {
		if rule, ok := m.toNative[field]; ok {
			if rule.Transform != nil {
				native[rule.Alias] = rule.Transform(values)
			} else {
				native[rule.Alias] = value
			}
			continue
		}
		if alias, ok := inverted[field]; ok {
			native[alias] = value
			continue
		}
		unsupported = append(unsupported, field)
	}
	sort.Strings(unsupported)

	var warnings []string
	for _, field := range unsupported {
		warnings = append(warnings, fmt.Sprintf("field %q is not supported by %s and was not written", field, m.objectType))
	}
	return native, warnings
}

// StringField reads a native field as a trimmed string, "" when absent or not
// string-shaped.
func StringField(native map[string]any, field string) string {
	value, ok := native[field]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

// FullName joins first/last style native fields the way most providers split
// person names.
func FullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
