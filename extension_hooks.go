package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-lifecycle/core"
)

// ExtensionFactory builds one pipeline extension against the lifecycle
// service it will call back into.
type ExtensionFactory func(service CommandQueryService) (core.Extension, error)

// ExtensionPack is a named group of extension factories registered and
// applied together. Factory order inside a pack is preserved, so it decides
// registration order for equal-priority handlers.
type ExtensionPack struct {
	Name       string
	Extensions []ExtensionFactory
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	extensionPacks map[string]ExtensionPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		extensionPacks: map[string]ExtensionPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterExtensionPack(pack ExtensionPack) error {
	if h == nil {
		return fmt.Errorf("lifecycle: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("lifecycle: extension pack name is required")
	}
	if len(pack.Extensions) == 0 {
		return fmt.Errorf("lifecycle: extension pack %q has no extensions", name)
	}

	normalized := ExtensionPack{
		Name:       name,
		Extensions: append([]ExtensionFactory(nil), pack.Extensions...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.extensionPacks[name]; exists {
		return fmt.Errorf("lifecycle: extension pack %q already registered", name)
	}
	h.extensionPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("lifecycle: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("lifecycle: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("lifecycle: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("lifecycle: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyExtensionPacks builds every registered pack against the service and
// installs the extensions on the pipeline, packs in name order.
func (h *ExtensionHooks) ApplyExtensionPacks(pipeline *core.Pipeline, service CommandQueryService) error {
	if h == nil {
		return nil
	}
	if pipeline == nil {
		return fmt.Errorf("lifecycle: pipeline is required")
	}
	if service == nil {
		return fmt.Errorf("lifecycle: command/query service is required")
	}

	packs := h.ExtensionPacks()
	for _, pack := range packs {
		for _, factory := range pack.Extensions {
			if factory == nil {
				return fmt.Errorf("lifecycle: extension pack %q contains nil factory", pack.Name)
			}
			extension, err := factory(service)
			if err != nil {
				return err
			}
			if extension == nil {
				return fmt.Errorf("lifecycle: extension pack %q factory produced nil extension", pack.Name)
			}
			if err := pipeline.Register(extension); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("lifecycle: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ExtensionPacks() []ExtensionPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.extensionPacks))
	for name := range h.extensionPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ExtensionPack, 0, len(names))
	for _, name := range names {
		pack := h.extensionPacks[name]
		out = append(out, ExtensionPack{
			Name:       pack.Name,
			Extensions: append([]ExtensionFactory(nil), pack.Extensions...),
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
