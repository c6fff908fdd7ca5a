package detour

import (
	"fmt"
	"slices"
	"sync"
)

// Names of the built-in providers.
const (
	NativeName = "native"
	GohookName = "gohook"
)

// A Provider creates handles using one patching strategy.
type Provider struct {
	Name string

	// Create builds a handle for redirecting original to detour. Both may be
	// func values or raw addresses (uintptr or unsafe.Pointer). The target is
	// not touched until Prepare or Apply.
	Create func(original, detour any, opts ...Option) (Handle, error)
}

var (
	// Native patches machine code itself and works with any x86 function,
	// Go or not, whose first instructions can be relocated.
	Native = Provider{Name: NativeName, Create: newNativeHandle}

	// Gohook delegates to github.com/brahma-adshonor/gohook. It only takes
	// Go func values.
	Gohook = Provider{Name: GohookName, Create: newGohookHandle}
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Provider{
		NativeName: Native,
		GohookName: Gohook,
	}
)

// Register makes p available to Lookup under p.Name, replacing any provider
// already registered with that name.
func Register(p Provider) error {
	if p.Name == "" || p.Create == nil {
		return fmt.Errorf("provider needs a name and a Create function")
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name] = p
	return nil
}

// Lookup returns the provider registered under name.
func Lookup(name string) (Provider, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := registry[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Providers returns the registered provider names in sorted order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ProviderFor returns the provider named by cfg.Backend, defaulting to
// Native.
func ProviderFor(cfg Config) (Provider, error) {
	if cfg.Backend == "" {
		return Native, nil
	}
	return Lookup(cfg.Backend)
}

// New creates a handle with the native provider.
func New(original, detour any, opts ...Option) (Handle, error) {
	return Native.Create(original, detour, opts...)
}
