package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BackendName: "mlx", BaseURL: srv.URL}, nil)
}

func TestProbe_UsesModelsEndpoint(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))

	status, err := conn.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK)
	assert.Equal(t, "mlx", status.Backend)
}

func TestProbe_Unreachable(t *testing.T) {
	conn := New(Config{BackendName: "mlx", BaseURL: "http://127.0.0.1:1"}, nil)

	_, err := conn.Probe(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrConnectorUnreachable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestListModels(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "mlx-community/qwen2"}, {"id": ""}},
		})
	}))

	models, err := conn.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"mlx-community/qwen2"}, models)
}

func TestChat_Success(t *testing.T) {
	var captured chatRequest
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "sure thing"}},
			},
		})
	}))

	reply, err := conn.Chat(context.Background(), []connector.ChatMessage{
		{Role: connector.RoleUser, Content: "hi"},
	}, connector.ChatSettings{Model: "qwen2", MaxTokens: 64, Temperature: 0.3})

	require.NoError(t, err)
	assert.Equal(t, "sure thing", reply)
	assert.Equal(t, "qwen2", captured.Model)
	assert.Equal(t, 64, captured.MaxTokens)
	assert.False(t, captured.Stream)
}

func TestChat_EmptyChoices(t *testing.T) {
	conn := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))

	_, err := conn.Chat(context.Background(), nil, connector.ChatSettings{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, types.ErrConnectorEmptyReply, types.GetErrorCode(err))
}
