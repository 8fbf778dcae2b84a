package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aluiziolira/bookroad/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDeterministic(t *testing.T) {
	m := NewMock(8)
	a, err := m.EmbedText(context.Background(), "1 운영체제의 개요")
	require.NoError(t, err)
	b, err := m.EmbedText(context.Background(), "1 운영체제의 개요")
	require.NoError(t, err)
	c, err := m.EmbedText(context.Background(), "2 프로세스")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 8)
	for _, v := range a {
		assert.True(t, v >= -1 && v < 1, "component %v out of range", v)
	}
}

func TestHandleBatches(t *testing.T) {
	m := NewMock(4)
	h := NewHandle(m, 4, 2)

	texts := []string{"a", "b", "c", "d", "e"}
	vecs, err := h.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, 5, m.Texts())

	single, err := h.EmbedText(context.Background(), "c")
	require.NoError(t, err)
	assert.Equal(t, vecs[2], single)
}

func TestHandleDimensionCheck(t *testing.T) {
	h := NewHandle(NewMock(3), 768, 8)
	_, err := h.EmbedText(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "768")
	assert.Error(t, h.Probe(context.Background()))
}

func TestUnavailableHandle(t *testing.T) {
	cause := errors.New("model not loaded")
	h := Unavailable(cause)
	assert.False(t, h.Available())
	assert.Equal(t, cause, h.Err())

	_, err := h.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrUnavailable)

	var nilHandle *Handle
	assert.False(t, nilHandle.Available())
	assert.False(t, NewHandle(nil, 768, 1).Available())
}

func TestProviderErrorPropagates(t *testing.T) {
	m := NewMock(4)
	m.Err = errors.New("upstream down")
	h := NewHandle(m, 4, 8)
	_, err := h.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "upstream down")
}

func TestOpenDisabledProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EmbeddingProvider = "none"
	h := Open(context.Background(), cfg)
	assert.False(t, h.Available())
}

func TestOpenUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.EmbeddingHost = srv.URL + "/v1"
	h := Open(context.Background(), cfg)
	assert.False(t, h.Available())
	assert.Error(t, h.Err())
}

// embeddingServer answers OpenAI-style /embeddings requests with dims-length
// vectors whose first component is the input index.
func embeddingServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input json.RawMessage `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var inputs []string
		if err := json.Unmarshal(req.Input, &inputs); err != nil {
			var single string
			if err := json.Unmarshal(req.Input, &single); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			inputs = []string{single}
		}

		data := make([]map[string]any, len(inputs))
		for i := range inputs {
			vec := make([]float64, dims)
			vec[0] = float64(i)
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-model",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestLangchainEmbedder(t *testing.T) {
	srv := embeddingServer(t, 768)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.EmbeddingHost = srv.URL + "/v1"
	h := Open(context.Background(), cfg)
	require.True(t, h.Available(), "err: %v", h.Err())

	vecs, err := h.EmbedTexts(context.Background(), []string{"도서명: a", "도서명: b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[1], 768)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := embeddingServer(t, 768)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.EmbeddingProvider = "openai"
	cfg.EmbeddingAPIKey = "sk-test"
	cfg.EmbeddingHost = srv.URL + "/v1"
	cfg.FetchAttempts = 0
	h := Open(context.Background(), cfg)
	require.True(t, h.Available(), "err: %v", h.Err())

	vecs, err := h.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(2), vecs[2][0])
}

func TestOpenAIRequiresKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EmbeddingProvider = "openai"
	_, err := NewOpenAI(cfg)
	assert.Error(t, err)
}
