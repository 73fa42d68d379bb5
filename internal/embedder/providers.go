package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	MaxBatchSize = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// API endpoints
const (
	jinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	openaiEndpoint = "https://api.openai.com/v1/embeddings"
)

// HTTPProvider implements Embedder against an OpenAI-compatible embeddings
// endpoint. Jina and OpenAI share the same request and response shape.
type HTTPProvider struct {
	name       string
	model      string
	endpoint   string
	apiKey     string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

// NewJinaProvider creates an embedder backed by the Jina AI API.
func NewJinaProvider(apiKey string, cache *Cache) (*HTTPProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	return newHTTPProvider(ProviderJina, DefaultJinaModel, jinaEndpoint, apiKey, JinaDimension, cache), nil
}

// NewOpenAIProvider creates an embedder backed by the OpenAI API.
func NewOpenAIProvider(apiKey string, cache *Cache) (*HTTPProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return newHTTPProvider(ProviderOpenAI, DefaultOpenAIModel, openaiEndpoint, apiKey, OpenAIDimension, cache), nil
}

func newHTTPProvider(name, model, endpoint, apiKey string, dimension int, cache *Cache) *HTTPProvider {
	return &HTTPProvider{
		name:      name,
		model:     model,
		endpoint:  endpoint,
		apiKey:    apiKey,
		dimension: dimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	vectors := make([][]float32, len(texts))

	// Satisfy what we can from the in-memory cache; only misses hit the API.
	misses := make([]int, 0, len(texts))
	for i, text := range texts {
		if p.cache != nil {
			if v, ok := p.cache.Get(ComputeHash(text)); ok {
				vectors[i] = v
				continue
			}
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return vectors, nil
	}

	missTexts := make([]string, len(misses))
	for i, idx := range misses {
		missTexts[i] = texts[idx]
	}

	config := DefaultRetryConfig()
	fetched, err := retryWithBackoff(ctx, config, func() ([][]float32, error) {
		return p.callAPI(ctx, missTexts)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, MaxRetries, err)
	}
	if len(fetched) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(fetched), len(missTexts))
	}

	for i, idx := range misses {
		vectors[idx] = fetched[i]
		if p.cache != nil {
			p.cache.Set(ComputeHash(texts[idx]), fetched[i])
		}
	}
	return vectors, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": p.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (p *HTTPProvider) Available() bool {
	return p.apiKey != ""
}

func (p *HTTPProvider) Dimension() int {
	return p.dimension
}

func (p *HTTPProvider) Provider() string {
	return p.name
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider generates deterministic hash-derived vectors without any
// network dependency. The vectors carry no semantic signal; the provider
// exists for offline runs and tests.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{cache: cache}, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		hash := ComputeHash(text)
		if l.cache != nil {
			if v, ok := l.cache.Get(hash); ok {
				vectors[i] = v
				continue
			}
		}
		v := localVector(text)
		if l.cache != nil {
			l.cache.Set(hash, v)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// localVector derives a fixed vector from the text digest, so identical
// text always maps to the identical vector.
func localVector(text string) []float32 {
	vector := make([]float32, LocalDimension)
	digest := sha256.Sum256([]byte(text))
	for i := 0; i < LocalDimension; i++ {
		vector[i] = float32(digest[i%len(digest)]) / 255.0
	}
	return vector
}

func (l *LocalProvider) Available() bool {
	return true
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Close() error {
	return nil
}
