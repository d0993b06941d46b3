// =============================================================================
// BenchDuo OpenAI-Compatible Connector Base
// =============================================================================
// Shared implementation for backends exposing an OpenAI-compatible HTTP
// surface (MLX server, TensorRT-LLM server). Concrete connectors embed this
// and only override what differs (name, models endpoint, response shape).
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible connector.
type Config struct {
	// BackendName is the backend kind identifier (e.g. "mlx", "tensorrt").
	BackendName string

	// BaseURL is the backend base URL (e.g. "http://localhost:8080").
	BaseURL string

	// Timeout is the HTTP client timeout. Defaults to 30s if zero.
	Timeout time.Duration

	// ChatPath is the chat completions endpoint. Defaults to "/v1/chat/completions".
	ChatPath string

	// ModelsPath is the model list endpoint. Defaults to "/v1/models".
	ModelsPath string
}

// Connector is the base implementation for OpenAI-compatible backends.
type Connector struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates an OpenAI-compatible connector with the given config.
func New(cfg Config, logger *zap.Logger) *Connector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = "/v1/chat/completions"
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		Cfg:    cfg,
		Client: &http.Client{Timeout: cfg.Timeout},
		Logger: logger.With(zap.String("component", "connector"), zap.String("backend", cfg.BackendName)),
	}
}

// Name returns the backend kind identifier.
func (c *Connector) Name() string { return c.Cfg.BackendName }

// Endpoint builds the full URL for a given path.
func (c *Connector) Endpoint(path string) string {
	return strings.TrimRight(c.Cfg.BaseURL, "/") + path
}

// Probe checks the models endpoint for reachability.
func (c *Connector) Probe(ctx context.Context) (*connector.ProbeStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(c.Cfg.ModelsPath), nil)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable, "failed to build probe request").
			WithCause(err).WithBackend(c.Cfg.BackendName)
	}

	resp, err := c.Client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("%s probe failed: %v", c.Cfg.BackendName, err)).
			WithCause(err).WithBackend(c.Cfg.BackendName).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("%s probe failed: status=%d", c.Cfg.BackendName, resp.StatusCode)).
			WithBackend(c.Cfg.BackendName).WithRetryable(true)
	}

	return &connector.ProbeStatus{
		OK:       true,
		Backend:  c.Cfg.BackendName,
		Endpoint: c.Cfg.ModelsPath,
		Latency:  latency,
	}, nil
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ListModels returns the ids from the OpenAI-style /v1/models payload.
func (c *Connector) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint(c.Cfg.ModelsPath), nil)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable, "failed to build models request").
			WithCause(err).WithBackend(c.Cfg.BackendName)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to list %s models: %v", c.Cfg.BackendName, err)).
			WithCause(err).WithBackend(c.Cfg.BackendName).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to list %s models: status=%d", c.Cfg.BackendName, resp.StatusCode)).
			WithBackend(c.Cfg.BackendName).WithRetryable(true)
	}

	var payload modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to decode %s models: %v", c.Cfg.BackendName, err)).
			WithCause(err).WithBackend(c.Cfg.BackendName)
	}

	models := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

type chatRequest struct {
	Model       string                  `json:"model"`
	Messages    []connector.ChatMessage `json:"messages"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Temperature float64                 `json:"temperature,omitempty"`
	Seed        *int64                  `json:"seed,omitempty"`
	Stream      bool                    `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat performs one non-streaming chat completion.
func (c *Connector) Chat(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
	if settings.Model == "" {
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("%s chat requires a model in settings", c.Cfg.BackendName)).
			WithBackend(c.Cfg.BackendName)
	}

	body := chatRequest{
		Model:       settings.Model,
		Messages:    messages,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		Seed:        settings.Seed,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "failed to marshal chat request").
			WithCause(err).WithBackend(c.Cfg.BackendName)
	}

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(c.Cfg.ChatPath), bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrConnectorChatFailed, "failed to build chat request").
			WithCause(err).WithBackend(c.Cfg.BackendName)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrConnectorChatFailed,
			fmt.Sprintf("%s chat failed: %v", c.Cfg.BackendName, err)).
			WithCause(err).WithBackend(c.Cfg.BackendName).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", types.NewError(types.ErrConnectorChatFailed,
			fmt.Sprintf("%s chat failed: status=%d", c.Cfg.BackendName, resp.StatusCode)).
			WithBackend(c.Cfg.BackendName).WithRetryable(resp.StatusCode >= 500)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", types.NewError(types.ErrConnectorChatFailed,
			fmt.Sprintf("%s chat response is not valid JSON: %v", c.Cfg.BackendName, err)).
			WithCause(err).WithBackend(c.Cfg.BackendName)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", types.NewError(types.ErrConnectorEmptyReply,
			fmt.Sprintf("%s chat response missing assistant content", c.Cfg.BackendName)).
			WithBackend(c.Cfg.BackendName)
	}
	return parsed.Choices[0].Message.Content, nil
}
