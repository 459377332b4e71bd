package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swdgrade/similarity-service/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.QdrantConfig{
		URL:        server.URL,
		Collection: "test_collection",
		VectorSize: 4,
	}, zerolog.Nop())
}

func TestEnsureCollectionAlreadyExists(t *testing.T) {
	var createCalled bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			createCalled = true
			w.WriteHeader(http.StatusOK)
		}
	})

	require.NoError(t, client.EnsureCollection(context.Background()))
	assert.False(t, createCalled)
}

func TestEnsureCollectionCreatesMissing(t *testing.T) {
	var created map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.Equal(t, "/collections/test_collection", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusOK)
		}
	})

	require.NoError(t, client.EnsureCollection(context.Background()))

	vectors, ok := created["vectors"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestUpsertSendsPointWithPayload(t *testing.T) {
	var body struct {
		Points []struct {
			ID      string    `json:"id"`
			Vector  []float32 `json:"vector"`
			Payload Payload   `json:"payload"`
		} `json:"points"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/test_collection/points", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	})

	point := Point{
		ID:     "doc-1",
		Vector: []float32{0.1, 0.2, 0.3, 0.4},
		Payload: Payload{
			DocumentID: "doc-1",
			ExamID:     "exam-1",
			OwnerCode:  "ab123",
			TextLength: 42,
		},
	}
	require.NoError(t, client.Upsert(context.Background(), point))

	require.Len(t, body.Points, 1)
	assert.Equal(t, "doc-1", body.Points[0].ID)
	assert.Equal(t, point.Payload, body.Points[0].Payload)
}

func TestUpsertSurfacesServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Upsert(context.Background(), Point{ID: "doc-1"})
	assert.ErrorContains(t, err, "status 500")
}

func TestSearchFiltersAndParsesHits(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/test_collection/points/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "doc-2", "score": 0.93, "payload": map[string]any{"documentId": "doc-2", "examId": "exam-1", "ownerCode": "cd456"}},
				{"id": "doc-3", "score": 0.85, "payload": map[string]any{"documentId": "doc-3", "examId": "exam-1", "ownerCode": "ef789"}},
			},
		})
	})

	hits, err := client.Search(context.Background(), []float32{1, 0, 0, 0}, "exam-1", 0.8, "doc-1", 10)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "doc-2", hits[0].ID)
	assert.InDelta(t, 0.93, hits[0].Score, 1e-9)
	assert.Equal(t, "cd456", hits[0].Payload.OwnerCode)

	assert.Equal(t, 0.8, body["score_threshold"])
	filter, ok := body["filter"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, filter, "must")
	assert.Contains(t, filter, "must_not")
}

func TestSearchDropsSelfHit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"id": "doc-1", "score": 1.0, "payload": map[string]any{"documentId": "doc-1"}},
				{"id": "doc-2", "score": 0.9, "payload": map[string]any{"documentId": "doc-2"}},
			},
		})
	})

	hits, err := client.Search(context.Background(), []float32{1, 0, 0, 0}, "exam-1", 0.8, "doc-1", 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "doc-2", hits[0].ID)
}

func TestScrollReturnsVectors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/test_collection/points/scroll", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["with_vector"])

		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"id": "doc-1", "vector": []float32{1, 0, 0, 0}, "payload": map[string]any{"documentId": "doc-1", "ownerCode": "ab123"}},
					{"id": "doc-2", "vector": []float32{0, 1, 0, 0}, "payload": map[string]any{"documentId": "doc-2", "ownerCode": "cd456"}},
				},
			},
		})
	})

	points, err := client.Scroll(context.Background(), "exam-1", 100)
	require.NoError(t, err)

	require.Len(t, points, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, points[0].Vector)
	assert.Equal(t, "cd456", points[1].Payload.OwnerCode)
}

func TestCountReturnsExamPointCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/test_collection/points/count", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"count": 7},
		})
	})

	count, err := client.Count(context.Background(), "exam-1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestClientSendsAPIKeyHeader(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("api-key")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := NewClient(config.QdrantConfig{
		URL:        server.URL,
		APIKey:     "secret",
		Collection: "test_collection",
		VectorSize: 4,
	}, zerolog.Nop())

	require.NoError(t, client.EnsureCollection(context.Background()))
	assert.Equal(t, "secret", gotKey)
}
