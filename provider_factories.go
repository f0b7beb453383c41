package unified

import (
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/providers/apollo"
	"github.com/goliatone/go-unified/providers/hubspot"
	"github.com/goliatone/go-unified/providers/salesforce"
)

func HubSpotAdapter(options ...hubspot.Option) core.AdapterFactory {
	return hubspot.Factory(options...)
}

func SalesforceAdapter(options ...salesforce.Option) core.AdapterFactory {
	return salesforce.Factory(options...)
}

func ApolloAdapter(options ...apollo.Option) core.AdapterFactory {
	return apollo.Factory(options...)
}

// DefaultAdapterRegistry registers every built-in provider adapter.
func DefaultAdapterRegistry() (*core.AdapterRegistry, error) {
	registry := core.NewAdapterRegistry()
	factories := []core.AdapterFactory{
		HubSpotAdapter(),
		SalesforceAdapter(),
		ApolloAdapter(),
	}
	for _, factory := range factories {
		if err := registry.Register(factory); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
