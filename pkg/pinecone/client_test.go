package pinecone

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestQueryResolvesHostOnce(t *testing.T) {
	var describes atomic.Int32
	var dataServer *httptest.Server

	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/indexes/edu", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("Api-Key"))
		describes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"host": dataServer.URL})
	}))
	defer control.Close()

	dataServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, 5, req.TopK)
		require.Equal(t, "Science", req.Filter["subject"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{{
				"id":       "chunk-1",
				"score":    0.91,
				"metadata": map[string]any{"textPreview": "Photosynthesis converts light", "chapter": 103.0},
			}},
		})
	}))
	defer dataServer.Close()

	c, err := New(Config{APIKey: "secret", IndexName: "edu", BaseURL: control.URL}, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		resp, err := c.Query(t.Context(), QueryRequest{
			Vector:          []float32{0.1, 0.2},
			TopK:            5,
			Filter:          map[string]any{"subject": "Science"},
			IncludeMetadata: true,
		})
		require.NoError(t, err)
		require.Len(t, resp.Matches, 1)
		require.Equal(t, "Photosynthesis converts light", resp.Matches[0].MetadataString("textPreview"))
		require.Equal(t, "103", resp.Matches[0].MetadataString("chapter"))
	}
	require.EqualValues(t, 1, describes.Load())
}

func TestQueryPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, err := New(Config{APIKey: "secret", Host: server.URL}, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Query(t.Context(), QueryRequest{Vector: []float32{1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{IndexName: "edu"}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNotConfigured)
}
