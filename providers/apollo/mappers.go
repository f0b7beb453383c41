package apollo

import (
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/mapping"
)

func buildMappers(schemas *core.SchemaRegistry) (map[string]*mapping.Mapper, error) {
	rules := map[string]map[string]mapping.FieldRule{
		core.ObjectTypeAccount: {
			"id":         mapping.Alias("id"),
			"name":       mapping.Alias("name"),
			"website":    mapping.Alias("website_url"),
			"domain":     mapping.Alias("domain"),
			"phone":      mapping.Alias("phone"),
			"owner_id":   mapping.Alias("owner_id"),
			"created_at": mapping.Alias("created_at"),
		},
		core.ObjectTypeContact: {
			"id":         mapping.Alias("id"),
			"first_name": mapping.Alias("first_name"),
			"last_name":  mapping.Alias("last_name"),
			"email":      mapping.Alias("email"),
			"phone":      mapping.Alias("sanitized_phone"),
			"account_id": mapping.Alias("account_id"),
			"owner_id":   mapping.Alias("owner_id"),
			"created_at": mapping.Alias("created_at"),
			"updated_at": mapping.Alias("updated_at"),
		},
		core.ObjectTypeUser: {
			"id":         mapping.Alias("id"),
			"name":       mapping.Derive(userFullName),
			"email":      mapping.Alias("email"),
			"created_at": mapping.Alias("created_at"),
		},
		core.ObjectTypeSequence: {
			"id":         mapping.Alias("id"),
			"name":       mapping.Alias("name"),
			"is_enabled": mapping.Alias("active"),
			"num_steps":  mapping.Alias("num_steps"),
			"owner_id":   mapping.Alias("user_id"),
			"created_at": mapping.Alias("created_at"),
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

func userFullName(native map[string]any) any {
	return mapping.FullName(
		mapping.StringField(native, "first_name"),
		mapping.StringField(native, "last_name"),
	)
}
