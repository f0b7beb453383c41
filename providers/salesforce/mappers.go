package salesforce

import (
	"strings"

	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/mapping"
)

// sobjectNames binds canonical object types to Salesforce SObject API names.
// Emails, calls and sequences stay unmapped.
var sobjectNames = map[string]string{
	core.ObjectTypeAccount:     "Account",
	core.ObjectTypeContact:     "Contact",
	core.ObjectTypeLead:        "Lead",
	core.ObjectTypeOpportunity: "Opportunity",
	core.ObjectTypeUser:        "User",
	core.ObjectTypeNote:        "Note",
}

// queryFields lists the SOQL select clause per object type. Order matters for
// nothing but readability.
var queryFields = map[string][]string{
	core.ObjectTypeAccount: {
		"Id", "Name", "Description", "Industry", "Website",
		"NumberOfEmployees", "Phone", "OwnerId", "LastActivityDate",
		"CreatedDate", "LastModifiedDate",
	},
	core.ObjectTypeContact: {
		"Id", "FirstName", "LastName", "Email", "Phone", "AccountId",
		"OwnerId", "LastActivityDate", "CreatedDate", "LastModifiedDate",
	},
	core.ObjectTypeLead: {
		"Id", "FirstName", "LastName", "Email", "Company", "Title",
		"LeadSource", "OwnerId", "ConvertedAccountId", "ConvertedContactId",
		"CreatedDate", "LastModifiedDate",
	},
	core.ObjectTypeOpportunity: {
		"Id", "Name", "Description", "Amount", "StageName", "IsClosed",
		"IsWon", "CloseDate", "AccountId", "OwnerId", "LastActivityDate",
		"CreatedDate", "LastModifiedDate",
	},
	core.ObjectTypeUser: {
		"Id", "Name", "Email", "IsActive", "CreatedDate", "LastModifiedDate",
	},
	core.ObjectTypeNote: {
		"Id", "Body", "ParentId", "OwnerId", "CreatedDate", "LastModifiedDate",
	},
}

func buildMappers(schemas *core.SchemaRegistry) (map[string]*mapping.Mapper, error) {
	rules := map[string]map[string]mapping.FieldRule{
		core.ObjectTypeAccount: {
			"id":                  mapping.Alias("Id"),
			"name":                mapping.Alias("Name"),
			"description":         mapping.Alias("Description"),
			"industry":            mapping.Alias("Industry"),
			"website":             mapping.Alias("Website"),
			"domain":              mapping.Derive(websiteDomain),
			"number_of_employees": mapping.Alias("NumberOfEmployees"),
			"phone":               mapping.Alias("Phone"),
			"owner_id":            mapping.Alias("OwnerId"),
			"last_activity_at":    mapping.Alias("LastActivityDate"),
			"created_at":          mapping.Alias("CreatedDate"),
			"updated_at":          mapping.Alias("LastModifiedDate"),
		},
		core.ObjectTypeContact: {
			"id":               mapping.Alias("Id"),
			"first_name":       mapping.Alias("FirstName"),
			"last_name":        mapping.Alias("LastName"),
			"email":            mapping.Alias("Email"),
			"phone":            mapping.Alias("Phone"),
			"account_id":       mapping.Alias("AccountId"),
			"owner_id":         mapping.Alias("OwnerId"),
			"last_activity_at": mapping.Alias("LastActivityDate"),
			"created_at":       mapping.Alias("CreatedDate"),
			"updated_at":       mapping.Alias("LastModifiedDate"),
		},
		core.ObjectTypeLead: {
			"id":                   mapping.Alias("Id"),
			"first_name":           mapping.Alias("FirstName"),
			"last_name":            mapping.Alias("LastName"),
			"email":                mapping.Alias("Email"),
			"company":              mapping.Alias("Company"),
			"title":                mapping.Alias("Title"),
			"lead_source":          mapping.Alias("LeadSource"),
			"owner_id":             mapping.Alias("OwnerId"),
			"converted_account_id": mapping.Alias("ConvertedAccountId"),
			"converted_contact_id": mapping.Alias("ConvertedContactId"),
			"created_at":           mapping.Alias("CreatedDate"),
			"updated_at":           mapping.Alias("LastModifiedDate"),
		},
		core.ObjectTypeOpportunity: {
			"id":               mapping.Alias("Id"),
			"name":             mapping.Alias("Name"),
			"description":      mapping.Alias("Description"),
			"amount":           mapping.Alias("Amount"),
			"stage":            mapping.Alias("StageName"),
			"status":           mapping.Derive(opportunityStatus),
			"close_date":       mapping.Alias("CloseDate"),
			"account_id":       mapping.Alias("AccountId"),
			"owner_id":         mapping.Alias("OwnerId"),
			"last_activity_at": mapping.Alias("LastActivityDate"),
			"created_at":       mapping.Alias("CreatedDate"),
			"updated_at":       mapping.Alias("LastModifiedDate"),
		},
		core.ObjectTypeUser: {
			"id":         mapping.Alias("Id"),
			"name":       mapping.Alias("Name"),
			"email":      mapping.Alias("Email"),
			"is_active":  mapping.Alias("IsActive"),
			"created_at": mapping.Alias("CreatedDate"),
			"updated_at": mapping.Alias("LastModifiedDate"),
		},
		core.ObjectTypeNote: {
			"id":         mapping.Alias("Id"),
			"content":    mapping.Alias("Body"),
			"account_id": mapping.Alias("ParentId"),
			"owner_id":   mapping.Alias("OwnerId"),
			"created_at": mapping.Alias("CreatedDate"),
			"updated_at": mapping.Alias("LastModifiedDate"),
		},
	}

	mappers := make(map[string]*mapping.Mapper, len(rules))
	for objectType, toCanonical := range rules {
		schema, ok := schemas.Schema(objectType)
		if !ok {
			continue
		}
		mapper, err := mapping.New(schema, toCanonical, nil)
		if err != nil {
			return nil, err
		}
		mappers[objectType] = mapper
	}
	return mappers, nil
}

// websiteDomain strips scheme and path from the Website field so accounts
// still carry a comparable domain value.
func websiteDomain(native map[string]any) any {
	website := mapping.StringField(native, "Website")
	if website == "" {
		return ""
	}
	domain := website
	if idx := strings.Index(domain, "://"); idx >= 0 {
		domain = domain[idx+3:]
	}
	if idx := strings.IndexByte(domain, '/'); idx >= 0 {
		domain = domain[:idx]
	}
	return strings.TrimPrefix(domain, "www.")
}

func opportunityStatus(native map[string]any) any {
	closed, _ := native["IsClosed"].(bool)
	won, _ := native["IsWon"].(bool)
	switch {
	case closed && won:
		return "won"
	case closed:
		return "lost"
	default:
		return "open"
	}
}
