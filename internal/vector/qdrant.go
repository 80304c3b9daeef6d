package vector

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

	"docchat/internal/models"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantIndex talks to Qdrant over its REST API. Collections use cosine
// distance and point ids are the chunk uuids.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection when it does not exist yet.
func (s *QdrantIndex) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if err == nil {
		return nil
	}
	if status != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return fmt.Errorf("create qdrant collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		out[i] = map[string]any{
			"id":     p.Chunk.ChunkID,
			"vector": p.Vector,
			"payload": map[string]any{
				"chunk_id":    p.Chunk.ChunkID,
				"doc_id":      p.Chunk.DocID,
				"doc_name":    p.Chunk.DocName,
				"page_number": p.Chunk.PageNumber,
				"chunk_index": p.Chunk.ChunkIndex,
				"text":        p.Chunk.Text,
				"start_char":  p.Chunk.StartChar,
				"end_char":    p.Chunk.EndChar,
			},
		}
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]any{"points": out}, nil); err != nil {
		return fmt.Errorf("upsert qdrant points: %w", err)
	}
	return nil
}

type qdrantPayload struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	DocName    string `json:"doc_name"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
}

func (s *QdrantIndex) Search(ctx context.Context, vec []float32, topK int, f Filter) ([]models.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 6
	}
	req := map[string]any{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	if docID := strings.TrimSpace(f.DocID); docID != "" {
		req["filter"] = docFilter(docID)
	}
	var resp struct {
		Result []struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	results := make([]models.RetrievedChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, models.RetrievedChunk{
			Chunk: models.Chunk{
				ChunkID:    p.ChunkID,
				DocID:      p.DocID,
				DocName:    p.DocName,
				PageNumber: p.PageNumber,
				ChunkIndex: p.ChunkIndex,
				Text:       p.Text,
				StartChar:  p.StartChar,
				EndChar:    p.EndChar,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

func (s *QdrantIndex) DeleteByDocument(ctx context.Context, docID string) error {
	body := map[string]any{"filter": docFilter(docID)}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete qdrant points for %s: %w", docID, err)
	}
	return nil
}

func docFilter(docID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": "doc_id", "match": map[string]any{"value": docID}},
		},
	}
}

func (s *QdrantIndex) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends one JSON request and returns the HTTP status alongside any error.
func (s *QdrantIndex) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Ping checks that Qdrant answers its liveness endpoint.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.url+"/healthz", nil, nil)
	return err
}
