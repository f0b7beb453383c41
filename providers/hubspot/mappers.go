package hubspot

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/mapping"
)

// objectPaths binds canonical object types to the CRM objects API paths.
// Leads and sequences have no HubSpot equivalent and stay unmapped.
var objectPaths = map[string]string{
	core.ObjectTypeAccount:     "companies",
	core.ObjectTypeContact:     "contacts",
	core.ObjectTypeOpportunity: "deals",
	core.ObjectTypeEmail:       "emails",
	core.ObjectTypeCall:        "calls",
	core.ObjectTypeNote:        "notes",
}

// modifiedAtProperty is the search filter property for incremental listing.
const modifiedAtProperty = "hs_lastmodifieddate"

func numberField(field string) mapping.Transform {
	return func(native map[string]any) any {
		raw := mapping.StringField(native, field)
		if raw == "" {
			return float64(0)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return float64(0)
		}
		return value
	}
}

func buildMappers(schemas *core.SchemaRegistry) (map[string]*mapping.Mapper, error) {
	rules := map[string]map[string]mapping.FieldRule{
		core.ObjectTypeAccount: {
			"id":                  mapping.Alias("id"),
			"name":                mapping.Alias("name"),
			"description":         mapping.Alias("description"),
			"industry":            mapping.Alias("industry"),
			"website":             mapping.Alias("website"),
			"domain":              mapping.Alias("domain"),
			"number_of_employees": mapping.Derive(numberField("numberofemployees")),
			"phone":               mapping.Alias("phone"),
			"owner_id":            mapping.Alias("hubspot_owner_id"),
			"lifecycle_stage":     mapping.Alias("lifecyclestage"),
			"last_activity_at":    mapping.Alias("notes_last_updated"),
			"created_at":          mapping.Alias("createdAt"),
			"updated_at":          mapping.Alias("updatedAt"),
		},
		core.ObjectTypeContact: {
			"id":               mapping.Alias("id"),
			"first_name":       mapping.Alias("firstname"),
			"last_name":        mapping.Alias("lastname"),
			"email":            mapping.Alias("email"),
			"phone":            mapping.Alias("phone"),
			"account_id":       mapping.Alias("associatedcompanyid"),
			"owner_id":         mapping.Alias("hubspot_owner_id"),
			"lifecycle_stage":  mapping.Alias("lifecyclestage"),
			"last_activity_at": mapping.Alias("notes_last_updated"),
			"created_at":       mapping.Alias("createdAt"),
			"updated_at":       mapping.Alias("updatedAt"),
		},
		core.ObjectTypeOpportunity: {
			"id":               mapping.Alias("id"),
			"name":             mapping.Alias("dealname"),
			"description":      mapping.Alias("description"),
			"amount":           mapping.Derive(numberField("amount")),
			"stage":            mapping.Alias("dealstage"),
			"status":           mapping.Alias("hs_deal_stage_probability_shadow"),
			"close_date":       mapping.Alias("closedate"),
			"pipeline":         mapping.Alias("pipeline"),
			"account_id":       mapping.Alias("associatedcompanyid"),
			"owner_id":         mapping.Alias("hubspot_owner_id"),
			"last_activity_at": mapping.Alias("notes_last_updated"),
			"created_at":       mapping.Alias("createdAt"),
			"updated_at":       mapping.Alias("updatedAt"),
		},
		core.ObjectTypeEmail: {
			"id":           mapping.Alias("id"),
			"subject":      mapping.Alias("hs_email_subject"),
			"body":         mapping.Alias("hs_email_text"),
			"from_address": mapping.Alias("hs_email_from_email"),
			"to_address":   mapping.Alias("hs_email_to_email"),
			"user_id":      mapping.Alias("hubspot_owner_id"),
			"sent_at":      mapping.Alias("hs_timestamp"),
			"created_at":   mapping.Alias("createdAt"),
			"updated_at":   mapping.Alias("updatedAt"),
		},
		core.ObjectTypeCall: {
			"id":               mapping.Alias("id"),
			"subject":          mapping.Alias("hs_call_title"),
			"notes":            mapping.Alias("hs_call_body"),
			"duration_seconds": mapping.Derive(callDurationSeconds),
			"user_id":          mapping.Alias("hubspot_owner_id"),
			"occurred_at":      mapping.Alias("hs_timestamp"),
			"created_at":       mapping.Alias("createdAt"),
			"updated_at":       mapping.Alias("updatedAt"),
		},
		core.ObjectTypeNote: {
			"id":         mapping.Alias("id"),
			"content":    mapping.Alias("hs_note_body"),
			"owner_id":   mapping.Alias("hubspot_owner_id"),
			"created_at": mapping.Alias("createdAt"),
			"updated_at": mapping.Alias("updatedAt"),
		},
		core.ObjectTypeUser: {
			"id":         mapping.Alias("id"),
			"name":       mapping.Derive(ownerFullName),
			"email":      mapping.Alias("email"),
			"is_active":  mapping.Derive(ownerIsActive),
			"created_at": mapping.Alias("createdAt"),
			"updated_at": mapping.Alias("updatedAt"),
		},
	}

	// Derive-mapped fields HubSpot still accepts on writes get mirrored
	// write rules; owner name/is_active stay read-only.
	writeRules := map[string]map[string]mapping.FieldRule{
		core.ObjectTypeAccount: {
			"number_of_employees": mapping.Convert("numberofemployees", writeNumber("number_of_employees")),
		},
		core.ObjectTypeOpportunity: {
			"amount": mapping.Convert("amount", writeNumber("amount")),
		},
		core.ObjectTypeCall: {
			"duration_seconds": mapping.Convert("hs_call_duration", writeCallDurationMillis),
		},
	}

	mappers := make(map[string]*mapping.Mapper, len(rules))
	for objectType, toCanonical := range rules {
		schema, ok := schemas.Schema(objectType)
		if !ok {
			continue
		}
		mapper, err := mapping.New(schema, toCanonical, writeRules[objectType])
		if err != nil {
			return nil, err
		}
		mappers[objectType] = mapper
	}
	return mappers, nil
}

// writeNumber renders a canonical number the way HubSpot properties carry
// them, as a decimal string.
func writeNumber(field string) mapping.Transform {
	return func(values map[string]any) any {
		raw := mapping.StringField(values, field)
		if raw == "" {
			return "0"
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "0"
		}
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
}

// writeCallDurationMillis converts canonical seconds back to the native
// hs_call_duration milliseconds.
func writeCallDurationMillis(values map[string]any) any {
	raw := mapping.StringField(values, "duration_seconds")
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "0"
	}
	return strconv.FormatFloat(seconds*1000, 'f', -1, 64)
}

// callDurationSeconds converts hs_call_duration milliseconds to seconds.
func callDurationSeconds(native map[string]any) any {
	raw := mapping.StringField(native, "hs_call_duration")
	if raw == "" {
		return float64(0)
	}
	millis, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return float64(0)
	}
	return millis / 1000
}

func ownerFullName(native map[string]any) any {
	return mapping.FullName(
		mapping.StringField(native, "firstName"),
		mapping.StringField(native, "lastName"),
	)
}

func ownerIsActive(native map[string]any) any {
	raw := strings.ToLower(mapping.StringField(native, "archived"))
	return raw != "true"
}

// requestProperties lists the native properties each read asks HubSpot for.
var requestProperties = map[string][]string{
	core.ObjectTypeAccount: {
		"name", "description", "industry", "website", "domain",
		"numberofemployees", "phone", "hubspot_owner_id", "lifecyclestage",
		"notes_last_updated",
	},
	core.ObjectTypeContact: {
		"firstname", "lastname", "email", "phone", "associatedcompanyid",
		"hubspot_owner_id", "lifecyclestage", "notes_last_updated",
	},
	core.ObjectTypeOpportunity: {
		"dealname", "description", "amount", "dealstage",
		"hs_deal_stage_probability_shadow", "closedate", "pipeline",
		"associatedcompanyid", "hubspot_owner_id", "notes_last_updated",
	},
	core.ObjectTypeEmail: {
		"hs_email_subject", "hs_email_text", "hs_email_from_email",
		"hs_email_to_email", "hubspot_owner_id", "hs_timestamp",
	},
	core.ObjectTypeCall: {
		"hs_call_title", "hs_call_body", "hs_call_duration",
		"hubspot_owner_id", "hs_timestamp",
	},
	core.ObjectTypeNote: {
		"hs_note_body", "hubspot_owner_id",
	},
}
