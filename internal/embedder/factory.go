package embedder

import (
	"fmt"
	"os"
	"strings"
)

// ProviderNone disables embedding entirely; search runs lexical-only.
const ProviderNone = "none"

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. CONDOSEARCH_EMBEDDING_PROVIDER (jina, openai, local, none)
//  2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
//  3. Default to local if no API keys found
//
// A nil Embedder with a nil error means embedding is disabled.
func NewFromEnv() (Embedder, error) {
	provider := os.Getenv(EnvProvider)
	jinaKey := os.Getenv(EnvJinaAPIKey)
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	cache := NewCache(DefaultCacheSize)

	if provider != "" {
		switch strings.ToLower(provider) {
		case ProviderJina:
			return NewJinaProvider(jinaKey, cache)
		case ProviderOpenAI:
			return NewOpenAIProvider(openaiKey, cache)
		case ProviderLocal:
			return NewLocalProvider(cache)
		case ProviderNone:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrInvalidInput, provider)
		}
	}

	// Auto-detect based on available API keys
	if jinaKey != "" {
		return NewJinaProvider(jinaKey, cache)
	}
	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, cache)
	}

	return NewLocalProvider(cache)
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal:
		return NewLocalProvider(cache)
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrInvalidInput, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on the
// current environment.
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
