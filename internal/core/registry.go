package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry is the interface implemented by package registry clients.
type Registry interface {
	// Ecosystem returns the PURL type for this registry (e.g. "npm").
	Ecosystem() string

	// FetchPublishStats retrieves the publish time of the latest version.
	FetchPublishStats(ctx context.Context, name string) (*PublishStats, error)

	// URLs returns the URL builder for this registry.
	URLs() URLBuilder
}

// RepoSource is the interface implemented by code-hosting search clients.
type RepoSource interface {
	// Name identifies the source (e.g. "github").
	Name() string

	// FetchRepoStats retrieves stars and last update of the repository
	// matched for a package name.
	FetchRepoStats(ctx context.Context, name string) (*RepoStats, error)
}

// Factory creates a registry instance for a given base URL.
type Factory func(baseURL string, client *Client) Registry

// RepoSourceFactory creates a repository source for a given base URL.
type RepoSourceFactory func(baseURL string, client *Client) RepoSource

var (
	factories       = make(map[string]Factory)
	defaults        = make(map[string]string)
	sourceFactories = make(map[string]RepoSourceFactory)
	sourceDefaults  = make(map[string]string)
	mu              sync.RWMutex
)

// Register adds a registry factory.
// ecosystem is the PURL type, defaultURL the public registry endpoint.
func Register(ecosystem string, defaultURL string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[ecosystem] = factory
	defaults[ecosystem] = defaultURL
}

// RegisterRepoSource adds a repository source factory.
func RegisterRepoSource(name string, defaultURL string, factory RepoSourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	sourceFactories[name] = factory
	sourceDefaults[name] = defaultURL
}

// New creates a new registry for the given ecosystem.
// If baseURL is empty, the default registry URL is used.
func New(ecosystem string, baseURL string, client *Client) (Registry, error) {
	mu.RLock()
	factory, ok := factories[ecosystem]
	defaultURL := defaults[ecosystem]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown ecosystem: %s", ecosystem)
	}

	if baseURL == "" {
		baseURL = defaultURL
	}

	if client == nil {
		client = DefaultClient()
	}

	return factory(baseURL, client), nil
}

// NewRepoSource creates a repository source by name.
// If baseURL is empty, the source's default API URL is used.
func NewRepoSource(name string, baseURL string, client *Client) (RepoSource, error) {
	mu.RLock()
	factory, ok := sourceFactories[name]
	defaultURL := sourceDefaults[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown repository source: %s", name)
	}

	if baseURL == "" {
		baseURL = defaultURL
	}

	if client == nil {
		client = DefaultClient()
	}

	return factory(baseURL, client), nil
}

// SupportedEcosystems returns all registered ecosystem types, sorted.
func SupportedEcosystems() []string {
	mu.RLock()
	defer mu.RUnlock()

	ecosystems := make([]string, 0, len(factories))
	for eco := range factories {
		ecosystems = append(ecosystems, eco)
	}
	sort.Strings(ecosystems)
	return ecosystems
}

// IsSupported reports whether a registry is registered for ecosystem.
func IsSupported(ecosystem string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[ecosystem]
	return ok
}

// DefaultURL returns the default registry URL for an ecosystem.
func DefaultURL(ecosystem string) string {
	mu.RLock()
	defer mu.RUnlock()
	return defaults[ecosystem]
}

// DefaultRepoSourceURL returns the default API URL for a repository source.
func DefaultRepoSourceURL(name string) string {
	mu.RLock()
	defer mu.RUnlock()
	return sourceDefaults[name]
}
