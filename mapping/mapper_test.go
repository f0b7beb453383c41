package mapping

import (
	"strings"
	"testing"

	"github.com/goliatone/go-unified/core"
)

func contactMapper(t *testing.T) *Mapper {
	t.Helper()
	registry := core.DefaultSchemaRegistry()
	schema, ok := registry.Schema(core.ObjectTypeContact)
	if !ok {
		t.Fatalf("expected contact schema")
	}
	mapper, err := New(schema, map[string]FieldRule{
		"id":         Alias("vid"),
		"first_name": Alias("firstname"),
		"last_name":  Alias("lastname"),
		"email":      Alias("email_address"),
		"phone": Derive(func(native map[string]any) any {
			return StringField(native, "phone_number")
		}),
	}, nil)
	if err != nil {
		t.Fatalf("build mapper: %v", err)
	}
	return mapper
}

func TestToCanonical_IsTotalWithDefaults(t *testing.T) {
	mapper := contactMapper(t)

	record := mapper.ToCanonical(map[string]any{
		"vid":           "c-9",
		"email_address": "grace@example.com",
	})
	if record["id"] != "c-9" {
		t.Fatalf("expected aliased id, got %v", record["id"])
	}
	if record["email"] != "grace@example.com" {
		t.Fatalf("expected aliased email, got %v", record["email"])
	}
	if record["first_name"] != "" {
		t.Fatalf("expected defaulted first_name, got %v", record["first_name"])
	}
	if record["phone"] != "" {
		t.Fatalf("expected transform over missing field to default, got %v", record["phone"])
	}
	if _, ok := record["account_id"]; !ok {
		t.Fatalf("expected every declared field present")
	}
}

func TestToCanonical_RoundTripThroughToNative(t *testing.T) {
	mapper := contactMapper(t)

	native := map[string]any{
		"vid":           "c-1",
		"firstname":     "Grace",
		"lastname":      "Hopper",
		"email_address": "grace@example.com",
	}
	record := mapper.ToCanonical(native)
	back, warnings := mapper.ToNative(map[string]any{
		"first_name": record["first_name"],
		"last_name":  record["last_name"],
		"email":      record["email"],
	})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if back["firstname"] != "Grace" || back["lastname"] != "Hopper" || back["email_address"] != "grace@example.com" {
		t.Fatalf("unexpected native projection: %v", back)
	}
}

func TestToNative_WriteRuleMirrorsDerivedField(t *testing.T) {
	registry := core.DefaultSchemaRegistry()
	schema, ok := registry.Schema(core.ObjectTypeAccount)
	if !ok {
		t.Fatalf("expected account schema")
	}
	mapper, err := New(schema, map[string]FieldRule{
		"name": Alias("name"),
		"number_of_employees": Derive(func(native map[string]any) any {
			return StringField(native, "employee_count")
		}),
	}, map[string]FieldRule{
		"number_of_employees": Convert("employee_count", func(values map[string]any) any {
			return StringField(values, "number_of_employees")
		}),
	})
	if err != nil {
		t.Fatalf("build mapper: %v", err)
	}

	native, warnings := mapper.ToNative(map[string]any{
		"name":                "Globex",
		"number_of_employees": float64(42),
	})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for a mirrored field, got %v", warnings)
	}
	if native["employee_count"] != "42" {
		t.Fatalf("expected converted native value, got %#v", native)
	}
	if _, ok := native["number_of_employees"]; ok {
		t.Fatalf("canonical field name leaked into native payload: %#v", native)
	}
}

func TestToNative_WriteRuleWinsOverInvertedAlias(t *testing.T) {
	registry := core.DefaultSchemaRegistry()
	schema, ok := registry.Schema(core.ObjectTypeAccount)
	if !ok {
		t.Fatalf("expected account schema")
	}
	mapper, err := New(schema, map[string]FieldRule{
		"name": Alias("name"),
	}, map[string]FieldRule{
		"name": Alias("company_name"),
	})
	if err != nil {
		t.Fatalf("build mapper: %v", err)
	}

	native, warnings := mapper.ToNative(map[string]any{"name": "Globex"})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if native["company_name"] != "Globex" {
		t.Fatalf("expected explicit write rule to win, got %#v", native)
	}
}

func TestNew_RejectsWriteRuleWithoutNativeField(t *testing.T) {
	registry := core.DefaultSchemaRegistry()
	schema, _ := registry.Schema(core.ObjectTypeContact)
	_, err := New(schema, map[string]FieldRule{
		"email": Alias("email"),
	}, map[string]FieldRule{
		"email": Derive(func(map[string]any) any { return nil }),
	})
	if err == nil {
		t.Fatalf("expected write rule without a native field to fail")
	}
}

func TestToNative_UnsupportedFieldWarnsNeverDropsSilently(t *testing.T) {
	mapper := contactMapper(t)

	native, warnings := mapper.ToNative(map[string]any{
		"email":           "grace@example.com",
		"lifecycle_stage": "customer",
	})
	if _, ok := native["lifecycle_stage"]; ok {
		t.Fatalf("expected unsupported field to be dropped from payload")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "lifecycle_stage") {
		t.Fatalf("expected warning to name the dropped field, got %q", warnings[0])
	}
}

func TestNew_RejectsUnknownCanonicalField(t *testing.T) {
	registry := core.DefaultSchemaRegistry()
	schema, _ := registry.Schema(core.ObjectTypeContact)
	_, err := New(schema, map[string]FieldRule{
		"favorite_color": Alias("color"),
	}, nil)
	if err == nil {
		t.Fatalf("expected unknown canonical field to fail")
	}
}

func TestNew_RejectsAmbiguousRule(t *testing.T) {
	registry := core.DefaultSchemaRegistry()
	schema, _ := registry.Schema(core.ObjectTypeContact)
	_, err := New(schema, map[string]FieldRule{
		"email": {Alias: "email", Transform: func(map[string]any) any { return nil }},
	}, nil)
	if err == nil {
		t.Fatalf("expected rule with both alias and transform to fail")
	}
}
