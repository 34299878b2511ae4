package weaviate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	adapter "hudhud/backend/internal/adapter/weaviate"
	"hudhud/backend/internal/epigraph"
	"hudhud/backend/internal/vector"
)

func mockWeaviate(t *testing.T, handler http.HandlerFunc) (*weaviate.Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/meta" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"version": "1.19.0"}`))
			return
		}
		handler(w, r)
	}))
	cfg := weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"}
	client, err := weaviate.NewClient(cfg)
	require.NoError(t, err)
	return client, ts
}

func embeddedChunk(id, epigraphID int) epigraph.Chunk {
	return epigraph.Chunk{
		ID:         id,
		EpigraphID: epigraphID,
		Text:       "ʾlmqh bʿl ʾwm",
		Type:       epigraph.ChunkTypeText,
		Index:      0,
		Metadata:   epigraph.ChunkMetadata{Title: "RES 4176", Period: "Early Sabaic"},
		Embedding:  []float32{0.1, 0.2},
	}
}

func TestStore_StoreChunks(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Objects []struct {
				Class      string                 `json:"class"`
				Properties map[string]interface{} `json:"properties"`
				Vector     []float32              `json:"vector"`
			} `json:"objects"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Objects, 1, "chunks without a vector are skipped")
		obj := body.Objects[0]
		assert.Equal(t, "EpigraphChunk", obj.Class)
		assert.Equal(t, float64(42), obj.Properties["epigraphId"])
		assert.Equal(t, "epigraph_text", obj.Properties["chunkType"])
		assert.Equal(t, true, obj.Properties["published"])
		assert.Equal(t, []float32{0.1, 0.2}, obj.Vector)

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"class": "EpigraphChunk", "result": map[string]interface{}{}},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	chunks := []epigraph.Chunk{
		embeddedChunk(1, 42),
		{ID: 2, EpigraphID: 42, Text: "no vector yet"},
	}
	assert.NoError(t, store.StoreChunks(context.Background(), chunks, true))
}

func TestStore_DeleteForEpigraph(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batch/objects", r.URL.Path)
		assert.Equal(t, http.MethodDelete, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		match := body["match"].(map[string]interface{})
		assert.Equal(t, "EpigraphChunk", match["class"])

		json.NewEncoder(w).Encode(map[string]interface{}{})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	assert.NoError(t, store.DeleteForEpigraph(context.Background(), 42))
}

func TestStore_NearestChunks(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/graphql", r.URL.Path)

		var body struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "nearVector")
		assert.Contains(t, body.Query, "distance")
		assert.Contains(t, body.Query, "published")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"EpigraphChunk": []interface{}{
						map[string]interface{}{
							"chunkId":     float64(1),
							"epigraphId":  float64(42),
							"text":        "ʾlmqh bʿl ʾwm",
							"chunkType":   "epigraph_text",
							"title":       "RES 4176",
							"_additional": map[string]interface{}{"distance": 0.25},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	hits, err := store.NearestChunks(context.Background(), []float32{0.1, 0.2}, 1.0, 30,
		vector.ChunkFilters{PublishedOnly: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].ChunkID)
	assert.Equal(t, 42, hits[0].EpigraphID)
	assert.Equal(t, "RES 4176", hits[0].Title)
	assert.InDelta(t, 0.75, hits[0].Similarity, 1e-9)
}

func TestStore_NearestEpigraphs_ExcludesSelf(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Get": map[string]interface{}{
					"Epigraph": []interface{}{
						map[string]interface{}{
							"epigraphId":  float64(42),
							"title":       "RES 4176",
							"_additional": map[string]interface{}{"distance": 0.0},
						},
						map[string]interface{}{
							"epigraphId":  float64(7),
							"title":       "CIH 1",
							"_additional": map[string]interface{}{"distance": 0.3},
						},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	hits, err := store.NearestEpigraphs(context.Background(), []float32{0.1}, 1.0, 5, 42)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 7, hits[0].EpigraphID)
	assert.InDelta(t, 0.7, hits[0].Similarity, 1e-9)
}

func TestStore_CountChunks(t *testing.T) {
	client, ts := mockWeaviate(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Aggregate": map[string]interface{}{
					"EpigraphChunk": []interface{}{
						map[string]interface{}{"meta": map[string]interface{}{"count": float64(128)}},
					},
				},
			},
		})
	})
	defer ts.Close()

	store := adapter.NewStore(client)
	n, err := store.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128, n)
}
