package agentkit

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shillcollin/agentkit/core"
)

// ProviderConfig is what a factory needs to build a provider client.
type ProviderConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Headers      map[string]string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Logger       *slog.Logger
}

// ProviderFactory builds completion models for one provider. Providers
// register a factory from init so that importing the package enables them:
//
//	func init() { agentkit.RegisterProvider("openai", Factory{}) }
type ProviderFactory interface {
	New(config ProviderConfig) (core.CompletionModel, error)
	// DefaultConfig reads credentials and endpoints from the environment.
	DefaultConfig() ProviderConfig
}

// EmbeddingFactory is implemented by factories whose provider serves
// embeddings.
type EmbeddingFactory interface {
	NewEmbedding(config ProviderConfig, model string) (core.EmbeddingModel, error)
}

// ProviderInfo describes a registered provider.
type ProviderInfo struct {
	Name       string
	Embeddings bool
	// Credentials reports whether DefaultConfig found an API key.
	Credentials bool
}

var (
	registryMu sync.RWMutex
	factories  = map[string]ProviderFactory{}
)

// RegisterProvider makes factory available under name, the prefix of
// "name/model" references. It panics on a nil factory, a duplicate name, or a
// name that is not lowercase letters, digits, '-' and '_'.
func RegisterProvider(name string, factory ProviderFactory) {
	if !validProviderName(name) {
		panic(fmt.Sprintf("agentkit: invalid provider name %q", name))
	}
	if factory == nil {
		panic(fmt.Sprintf("agentkit: nil factory for provider %q", name))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("agentkit: provider %q already registered", name))
	}
	factories[name] = factory
}

func validProviderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

func providerFactory(name string) (ProviderFactory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// registeredFactories returns a snapshot so callers can build providers
// without holding the registry lock.
func registeredFactories() map[string]ProviderFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make(map[string]ProviderFactory, len(factories))
	for name, f := range factories {
		out[name] = f
	}
	return out
}

// RegisteredProviders returns the registered provider names, sorted.
func RegisteredProviders() []string {
	snapshot := registeredFactories()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsProviderRegistered reports whether name has a factory.
func IsProviderRegistered(name string) bool {
	_, ok := providerFactory(name)
	return ok
}

// DescribeProviders lists every registered provider, sorted by name.
func DescribeProviders() []ProviderInfo {
	snapshot := registeredFactories()
	out := make([]ProviderInfo, 0, len(snapshot))
	for _, name := range RegisteredProviders() {
		f, ok := snapshot[name]
		if !ok {
			continue
		}
		_, embeds := f.(EmbeddingFactory)
		out = append(out, ProviderInfo{
			Name:        name,
			Embeddings:  embeds,
			Credentials: f.DefaultConfig().APIKey != "",
		})
	}
	return out
}

func clearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories = map[string]ProviderFactory{}
}
