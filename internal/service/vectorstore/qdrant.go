// Package vectorstore talks to Qdrant over its REST API. The client is
// intentionally minimal: one collection, cosine distance, and the
// handful of point operations the similarity pipeline needs.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/config"
)

// Payload travels with every indexed fingerprint.
type Payload struct {
	DocumentID string `json:"documentId"`
	ExamID     string `json:"examId"`
	OwnerCode  string `json:"ownerCode"`
	TextLength int    `json:"textLength"`
}

// Point is one stored fingerprint.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit in the index's own ranking order.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload Payload
}

// Index is the vector database collaborator.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, point Point) error
	Retrieve(ctx context.Context, id string) (*Point, error)
	Search(ctx context.Context, vector []float32, examID string, threshold float64, excludeID string, limit int) ([]ScoredPoint, error)
	Scroll(ctx context.Context, examID string, limit int) ([]Point, error)
	Count(ctx context.Context, examID string) (int, error)
}

type Client struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg config.QdrantConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.VectorSize,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// EnsureCollection creates the collection if it is missing. Safe to
// call before every indexing operation.
func (c *Client) EnsureCollection(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/collections/%s", c.collection), nil, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.dimension,
			"distance": "Cosine",
		},
	}
	status, err = c.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", c.collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusConflict {
		return fmt.Errorf("qdrant create collection %s failed with status %d", c.collection, status)
	}

	c.logger.Info().Str("collection", c.collection).Int("dimension", c.dimension).Msg("Qdrant collection ready")
	return nil
}

// Upsert replaces the stored vector for the point's id. Re-indexing the
// same document overwrites, never appends.
func (c *Client) Upsert(ctx context.Context, point Point) error {
	body := map[string]any{
		"points": []map[string]any{
			{
				"id":      point.ID,
				"vector":  point.Vector,
				"payload": point.Payload,
			},
		},
	}

	status, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", c.collection), body, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant upsert failed with status %d", status)
	}
	return nil
}

func (c *Client) Retrieve(ctx context.Context, id string) (*Point, error) {
	body := map[string]any{
		"ids":          []string{id},
		"with_payload": true,
		"with_vector":  true,
	}

	var resp struct {
		Result []rawPoint `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points", c.collection), body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant retrieve failed with status %d", status)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}

	point := resp.Result[0].toPoint()
	return &point, nil
}

// Search returns every other point of the exam scoring at or above the
// threshold, ranked by the index. The queried document is excluded.
func (c *Client) Search(ctx context.Context, vector []float32, examID string, threshold float64, excludeID string, limit int) ([]ScoredPoint, error) {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "examId", "match": map[string]any{"value": examID}},
		},
	}
	if excludeID != "" {
		filter["must_not"] = []map[string]any{
			{"has_id": []string{excludeID}},
		}
	}

	body := map[string]any{
		"vector":          vector,
		"filter":          filter,
		"limit":           limit,
		"score_threshold": threshold,
		"with_payload":    true,
	}

	var resp struct {
		Result []struct {
			ID      string  `json:"id"`
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", c.collection), body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant search failed with status %d", status)
	}

	hits := make([]ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.ID == excludeID {
			continue
		}
		hits = append(hits, ScoredPoint{ID: r.ID, Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// Scroll pages through all points of an exam with their vectors, for
// in-process pairwise comparison.
func (c *Client) Scroll(ctx context.Context, examID string, limit int) ([]Point, error) {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "examId", "match": map[string]any{"value": examID}},
			},
		},
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}

	var resp struct {
		Result struct {
			Points []rawPoint `json:"points"`
		} `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/scroll", c.collection), body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant scroll failed with status %d", status)
	}

	points := make([]Point, 0, len(resp.Result.Points))
	for _, r := range resp.Result.Points {
		points = append(points, r.toPoint())
	}
	return points, nil
}

func (c *Client) Count(ctx context.Context, examID string) (int, error) {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "examId", "match": map[string]any{"value": examID}},
			},
		},
		"exact": true,
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/count", c.collection), body, &resp)
	if err != nil {
		return 0, err
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant count failed with status %d", status)
	}
	return resp.Result.Count, nil
}

type rawPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

func (r rawPoint) toPoint() Point {
	return Point{ID: r.ID, Vector: r.Vector, Payload: r.Payload}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}

	return resp.StatusCode, nil
}
