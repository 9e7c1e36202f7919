package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"ragqa/internal/domain"
	"ragqa/internal/embedding"
)

const (
	DefaultModel     = "text-embedding-004"
	DefaultBatchSize = 100
	DefaultTimeout   = 30 * time.Second
)

var modelDimensions = map[string]int{
	"text-embedding-004":   768,
	"gemini-embedding-001": 3072,
}

type Config struct {
	APIKey string
	// BaseURL overrides the Gemini API endpoint; empty uses the SDK default.
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// Client is the remote embedding tier backed by the Gemini API.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	dimension int
	// outputDim is sent as OutputDimensionality when the dimension was configured explicitly
	outputDim int32
	batchSize int
	timeout   time.Duration

	initOnce sync.Once
	client   *genai.Client
	initErr  error
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	dim := cfg.Dimension
	if dim == 0 {
		dim = modelDimensions[cfg.Model]
	}
	return &Client{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: dim,
		outputDim: int32(cfg.Dimension),
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
	}
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Model() string { return c.model }

func (c *Client) Available(ctx context.Context) error {
	if embedding.IsPlaceholderKey(c.apiKey) {
		return fmt.Errorf("gemini: %w: api key missing or placeholder", domain.ErrTierUnavailable)
	}
	return nil
}

// genaiClient builds the SDK client on first use. NewClient rejects an empty key,
// so construction waits until Available has passed.
func (c *Client) genaiClient(ctx context.Context) (*genai.Client, error) {
	c.initOnce.Do(func() {
		c.client, c.initErr = genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
			APIKey:      c.apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
		})
	})
	return c.client, c.initErr
}

func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := c.genaiClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	out := make([][]float32, 0, len(texts))
	for i, batch := range embedding.Batches(texts, c.batchSize) {
		vectors, err := c.embedBatch(ctx, client, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch %d: %w", i, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, client *genai.Client, batch []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(batch))
	for i, text := range batch {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}
	cfg := &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"}
	if c.outputDim > 0 {
		dim := c.outputDim
		cfg.OutputDimensionality = &dim
	}
	resp, err := client.Models.EmbedContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(batch))
	}
	vectors := make([][]float32, len(batch))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini returned empty embedding at %d", i)
		}
		vectors[i] = e.Values
	}
	return vectors, nil
}
