// Package remote implements the vector store on a managed Pinecone index over its REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ragqa/internal/domain"
	"ragqa/internal/vectorstore"
)

const (
	DefaultControlURL   = "https://api.pinecone.io"
	DefaultAPIVersion   = "2024-07"
	DefaultCloud        = "aws"
	DefaultRegion       = "us-east-1"
	DefaultBatchSize    = 100
	DefaultTimeout      = 15 * time.Second
	DefaultReadyTimeout = 2 * time.Minute
	DefaultPollInterval = 2 * time.Second
)

// Config contains connection details for a managed index.
type Config struct {
	APIKey    string
	IndexName string
	Dimension int
	Cloud     string
	Region    string
	Namespace string
	// ControlURL is the control-plane base URL.
	ControlURL string
	// Host overrides the data-plane host reported by the control plane.
	Host       string
	APIVersion string
	BatchSize  int
	// ContentChars > 0 stores the first ContentChars characters of each chunk under "text".
	ContentChars      int
	Timeout           time.Duration
	ReadyTimeout      time.Duration
	PollInterval      time.Duration
	RequestsPerSecond float64
}

// Storage is a minimal REST client to a Pinecone serverless index.
// It assumes cosine similarity and creates the index if missing.
type Storage struct {
	cfg     Config
	host    string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// APIError is a non-2xx response from the index service.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pinecone %s %s failed: %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// NewStorage validates cfg, connects to the named index and creates it when it does not exist.
// Every failure is returned to the caller.
func NewStorage(ctx context.Context, cfg Config, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("pinecone: api key is required")
	}
	if cfg.IndexName == "" {
		return nil, errors.New("pinecone: index name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("pinecone: index dimension must be positive")
	}
	applyDefaults(&cfg)
	s := &Storage{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	desc, err := s.ensureIndex(ctx)
	if err != nil {
		return nil, err
	}
	s.host = cfg.Host
	if s.host == "" {
		s.host = desc.Host
	}
	if s.host == "" {
		return nil, fmt.Errorf("pinecone: index %s has no host", cfg.IndexName)
	}
	if !strings.HasPrefix(s.host, "http://") && !strings.HasPrefix(s.host, "https://") {
		s.host = "https://" + s.host
	}
	logger.Info("pinecone index ready",
		zap.String("index", cfg.IndexName),
		zap.Int("dimension", cfg.Dimension),
		zap.String("host", s.host),
	)
	return s, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ControlURL == "" {
		cfg.ControlURL = DefaultControlURL
	}
	cfg.ControlURL = strings.TrimRight(cfg.ControlURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Cloud == "" {
		cfg.Cloud = DefaultCloud
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
}

func (s *Storage) Backend() vectorstore.Backend { return vectorstore.BackendRemote }

func (s *Storage) Dimension() int { return s.cfg.Dimension }

func (s *Storage) IndexName() string { return s.cfg.IndexName }

func (s *Storage) Host() string { return s.host }

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type createIndexRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Spec      struct {
		Serverless struct {
			Cloud  string `json:"cloud"`
			Region string `json:"region"`
		} `json:"serverless"`
	} `json:"spec"`
}

func (s *Storage) ensureIndex(ctx context.Context) (*indexDescription, error) {
	desc, err := s.describeIndex(ctx)
	var apiErr *APIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		desc, err = s.createIndex(ctx)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if desc.Dimension != s.cfg.Dimension {
		return nil, fmt.Errorf("pinecone index %s: %w: index has %d, configured %d",
			s.cfg.IndexName, domain.ErrDimensionMismatch, desc.Dimension, s.cfg.Dimension)
	}
	return desc, nil
}

func (s *Storage) describeIndex(ctx context.Context) (*indexDescription, error) {
	var desc indexDescription
	if err := s.doJSON(ctx, http.MethodGet, s.cfg.ControlURL+"/indexes/"+s.cfg.IndexName, nil, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (s *Storage) createIndex(ctx context.Context) (*indexDescription, error) {
	req := createIndexRequest{Name: s.cfg.IndexName, Dimension: s.cfg.Dimension, Metric: "cosine"}
	req.Spec.Serverless.Cloud = s.cfg.Cloud
	req.Spec.Serverless.Region = s.cfg.Region
	s.logger.Info("creating pinecone index",
		zap.String("index", s.cfg.IndexName),
		zap.Int("dimension", s.cfg.Dimension),
		zap.String("cloud", s.cfg.Cloud),
		zap.String("region", s.cfg.Region),
	)
	var desc indexDescription
	if err := s.doJSON(ctx, http.MethodPost, s.cfg.ControlURL+"/indexes", req, &desc); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return s.waitReady(ctx, &desc)
}

func (s *Storage) waitReady(ctx context.Context, desc *indexDescription) (*indexDescription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for !desc.Status.Ready {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("pinecone index %s not ready (state %q): %w", s.cfg.IndexName, desc.Status.State, ctx.Err())
		case <-ticker.C:
		}
		next, err := s.describeIndex(ctx)
		if err != nil {
			return nil, err
		}
		desc = next
	}
	return desc, nil
}

// vectorMetadata is the complete set of fields sent to the index.
// Chunk content is only included as a truncated snippet when ContentChars is set.
type vectorMetadata struct {
	Identifier string `json:"identifier,omitempty"`
	Title      string `json:"title"`
	Authors    string `json:"authors,omitempty"`
	Date       string `json:"date,omitempty"`
	Link       string `json:"link,omitempty"`
	Text       string `json:"text,omitempty"`
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata vectorMetadata `json:"metadata"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

func (s *Storage) metadataFor(doc domain.Document) vectorMetadata {
	m := vectorMetadata{
		Identifier: doc.Metadata.Identifier,
		Title:      doc.Metadata.Title,
		Authors:    doc.Metadata.Authors,
		Date:       doc.Metadata.Date,
		Link:       doc.Metadata.Link,
	}
	if s.cfg.ContentChars > 0 {
		m.Text = truncate(doc.Content, s.cfg.ContentChars)
	}
	return m
}

// Add upserts in batches. When a batch fails, vectors from earlier batches of the same call
// are deleted again before the error is returned.
func (s *Storage) Add(ctx context.Context, ids []string, vectors [][]float32, docs []domain.Document) error {
	if _, err := vectorstore.ValidateBatch(ids, vectors, docs, s.cfg.Dimension); err != nil {
		return err
	}
	var written []string
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ids))
		req := upsertRequest{Namespace: s.cfg.Namespace, Vectors: make([]vector, 0, end-start)}
		for i := start; i < end; i++ {
			req.Vectors = append(req.Vectors, vector{ID: ids[i], Values: vectors[i], Metadata: s.metadataFor(docs[i])})
		}
		var resp upsertResponse
		if err := s.doJSON(ctx, http.MethodPost, s.host+"/vectors/upsert", req, &resp); err != nil {
			s.rollback(ctx, written)
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		if resp.UpsertedCount != end-start {
			s.rollback(ctx, append(written, ids[start:end]...))
			return fmt.Errorf("upsert batch at %d: index reported %d upserted, sent %d", start, resp.UpsertedCount, end-start)
		}
		written = append(written, ids[start:end]...)
	}
	return nil
}

// rollback outlives the caller's cancellation; a cancelled Add is the usual reason to undo one.
func (s *Storage) rollback(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ids))
		req := deleteRequest{IDs: ids[start:end], Namespace: s.cfg.Namespace}
		if err := s.doJSON(ctx, http.MethodPost, s.host+"/vectors/delete", req, nil); err != nil {
			s.logger.Error("pinecone rollback failed", zap.Int("ids", end-start), zap.Error(err))
			return
		}
	}
	s.logger.Warn("pinecone upsert rolled back", zap.Int("ids", len(ids)))
}

type queryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	IncludeValues   bool      `json:"includeValues"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID       string          `json:"id"`
		Score    float64         `json:"score"`
		Metadata *vectorMetadata `json:"metadata"`
	} `json:"matches"`
}

// SimilaritySearch runs one top-k query. Content comes from the "text" metadata field and is
// empty unless the index was written with ContentChars set.
func (s *Storage) SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.Document, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidK
	}
	if len(query) != s.cfg.Dimension {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", domain.ErrDimensionMismatch, len(query), s.cfg.Dimension)
	}
	req := queryRequest{Vector: query, TopK: k, IncludeMetadata: true, Namespace: s.cfg.Namespace}
	var resp queryResponse
	if err := s.doJSON(ctx, http.MethodPost, s.host+"/query", req, &resp); err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if len(docs) == k {
			break
		}
		var md vectorMetadata
		if m.Metadata != nil {
			md = *m.Metadata
		}
		docs = append(docs, domain.Document{
			Content: md.Text,
			Metadata: domain.Metadata{
				Identifier: md.Identifier,
				Title:      md.Title,
				Authors:    md.Authors,
				Date:       md.Date,
				Link:       md.Link,
			},
		})
	}
	return docs, nil
}

func (s *Storage) doJSON(ctx context.Context, method, url string, body, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Pinecone-API-Version", s.cfg.APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode pinecone %s response: %w", method, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
