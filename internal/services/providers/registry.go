package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a provider from user credentials.
type Constructor func(creds Credentials) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register makes a provider constructor available under name. It panics on
// duplicate registration; providers register once from init.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("provider %q registered twice", name))
	}
	registry[name] = constructor
}

// New builds the named provider with the given credentials. An unknown name
// is an error, never a silent fallback to some default backend.
func New(name string, creds Credentials) (Provider, error) {
	registryMu.RLock()
	constructor, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider %q (supported: %v)", name, Names())
	}
	return constructor(creds)
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("openai", func(creds Credentials) (Provider, error) {
		return newOpenAICompatible("openai", "https://api.openai.com/v1", creds)
	})
	Register("deepseek", func(creds Credentials) (Provider, error) {
		return newOpenAICompatible("deepseek", "https://api.deepseek.com/v1", creds)
	})
	Register("siliconflow", func(creds Credentials) (Provider, error) {
		return newOpenAICompatible("siliconflow", "https://api.siliconflow.cn/v1", creds)
	})
	Register("moonshot", func(creds Credentials) (Provider, error) {
		return newOpenAICompatible("moonshot", "https://api.moonshot.cn/v1", creds)
	})
	Register("qwen", func(creds Credentials) (Provider, error) {
		return newQwen(creds)
	})
}
