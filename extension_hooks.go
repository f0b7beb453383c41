package unified

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-unified/core"
)

// AdapterPack groups provider adapter factories so downstream modules can
// register a whole vendor family at once.
type AdapterPack struct {
	Name      string
	Factories []core.AdapterFactory
}

// SchemaPack carries extra entity schemas, typically custom object
// definitions a deployment layers on top of the canonical set.
type SchemaPack struct {
	Name    string
	Schemas []core.EntitySchema
}

// CommandBundleFactory builds a caller-defined bundle of command and query
// handlers around an assembled facade.
type CommandBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	adapterPacks map[string]AdapterPack
	schemaPacks  map[string]SchemaPack
	bundles      map[string]CommandBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		adapterPacks: map[string]AdapterPack{},
		schemaPacks:  map[string]SchemaPack{},
		bundles:      map[string]CommandBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterAdapterPack(pack AdapterPack) error {
	if h == nil {
		return fmt.Errorf("unified: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("unified: adapter pack name is required")
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("unified: adapter pack %q has no factories", name)
	}

	normalized := AdapterPack{
		Name:      name,
		Factories: append([]core.AdapterFactory(nil), pack.Factories...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.adapterPacks[name]; exists {
		return fmt.Errorf("unified: adapter pack %q already registered", name)
	}
	h.adapterPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterSchemaPack(pack SchemaPack) error {
	if h == nil {
		return fmt.Errorf("unified: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("unified: schema pack name is required")
	}
	if len(pack.Schemas) == 0 {
		return fmt.Errorf("unified: schema pack %q has no schemas", name)
	}

	normalized := SchemaPack{
		Name:    name,
		Schemas: append([]core.EntitySchema(nil), pack.Schemas...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.schemaPacks[name]; exists {
		return fmt.Errorf("unified: schema pack %q already registered", name)
	}
	h.schemaPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandBundle(name string, factory CommandBundleFactory) error {
	if h == nil {
		return fmt.Errorf("unified: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("unified: command bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("unified: command bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("unified: command bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyAdapterPacks registers every packed factory into the adapter
// registry. Registration stops at the first conflicting provider name.
func (h *ExtensionHooks) ApplyAdapterPacks(registry *core.AdapterRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("unified: adapter registry is required")
	}

	for _, pack := range h.AdapterPacks() {
		for _, factory := range pack.Factories {
			if factory == nil {
				return fmt.Errorf("unified: adapter pack %q contains nil factory", pack.Name)
			}
			if err := registry.Register(factory); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplySchemaPacks registers every packed schema into the schema registry.
func (h *ExtensionHooks) ApplySchemaPacks(registry *core.SchemaRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("unified: schema registry is required")
	}

	for _, pack := range h.SchemaPacks() {
		for _, schema := range pack.Schemas {
			if err := registry.Register(schema); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildCommandBundles invokes each registered bundle factory against the
// facade, in name order.
func (h *ExtensionHooks) BuildCommandBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("unified: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) AdapterPacks() []AdapterPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.adapterPacks))
	for name := range h.adapterPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AdapterPack, 0, len(names))
	for _, name := range names {
		pack := h.adapterPacks[name]
		out = append(out, AdapterPack{
			Name:      pack.Name,
			Factories: append([]core.AdapterFactory(nil), pack.Factories...),
		})
	}
	return out
}

func (h *ExtensionHooks) SchemaPacks() []SchemaPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.schemaPacks))
	for name := range h.schemaPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]SchemaPack, 0, len(names))
	for _, name := range names {
		pack := h.schemaPacks[name]
		out = append(out, SchemaPack{
			Name:    pack.Name,
			Schemas: append([]core.EntitySchema(nil), pack.Schemas...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
