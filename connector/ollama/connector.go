package ollama

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

// Config Ollama 连接器配置。
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Connector 通过 Ollama 原生 HTTP API 实现后端连接器。
// 探活依次尝试 /api/health 与 /version；模型列表走 /api/tags；
// 对话走 /api/chat（非流式）。
type Connector struct {
	cfg     Config
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// New 创建 Ollama 连接器。
func New(cfg Config, logger *zap.Logger) *Connector {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		cfg:     cfg,
		baseURL: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "connector"), zap.String("backend", "ollama")),
	}
}

func (c *Connector) Name() string { return string(types.BackendOllama) }

func (c *Connector) endpoint(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

// Probe 依次尝试健康端点，全部失败才算不可达。
func (c *Connector) Probe(ctx context.Context) (*connector.ProbeStatus, error) {
	start := time.Now()
	var lastErr error

	for _, path := range []string{"/api/health", "/version"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status=%d on %s", resp.StatusCode, path)
			continue
		}
		return &connector.ProbeStatus{
			OK:       true,
			Backend:  c.Name(),
			Endpoint: path,
			Latency:  time.Since(start),
		}, nil
	}

	return nil, types.NewError(types.ErrConnectorUnreachable,
		fmt.Sprintf("ollama probe failed: %v", lastErr)).
		WithCause(lastErr).WithBackend(c.Name()).WithRetryable(true)
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels 返回 /api/tags 中的模型名列表。
func (c *Connector) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/tags"), nil)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable, "failed to build tags request").
			WithCause(err).WithBackend(c.Name())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to list ollama models: %v", err)).
			WithCause(err).WithBackend(c.Name()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to list ollama models: status=%d", resp.StatusCode)).
			WithBackend(c.Name()).WithRetryable(true)
	}

	var payload tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to decode ollama tags: %v", err)).
			WithCause(err).WithBackend(c.Name())
	}

	models := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		if m.Name != "" {
			models = append(models, m.Name)
		}
	}
	return models, nil
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
}

type chatRequest struct {
	Model    string                  `json:"model"`
	Messages []connector.ChatMessage `json:"messages"`
	Stream   bool                    `json:"stream"`
	Options  chatOptions             `json:"options"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Chat 执行一次非流式对话补全并返回助手文本。
func (c *Connector) Chat(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error) {
	if settings.Model == "" {
		return "", types.NewError(types.ErrInvalidRequest, "ollama chat requires a model in settings").
			WithBackend(c.Name())
	}

	body := chatRequest{
		Model:    settings.Model,
		Messages: messages,
		Stream:   false,
	}
	if settings.Temperature != 0 {
		body.Options.Temperature = &settings.Temperature
	}
	if settings.MaxTokens != 0 {
		body.Options.NumPredict = &settings.MaxTokens
	}
	body.Options.Seed = settings.Seed

	payload, err := json.Marshal(body)
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "failed to marshal ollama chat request").
			WithCause(err).WithBackend(c.Name())
	}

	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/chat"), bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrConnectorChatFailed, "failed to build ollama chat request").
			WithCause(err).WithBackend(c.Name())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrConnectorChatFailed,
			fmt.Sprintf("ollama chat failed: %v", err)).
			WithCause(err).WithBackend(c.Name()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", types.NewError(types.ErrConnectorChatFailed,
			fmt.Sprintf("ollama chat failed: status=%d", resp.StatusCode)).
			WithBackend(c.Name()).WithRetryable(resp.StatusCode >= 500)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", types.NewError(types.ErrConnectorChatFailed,
			fmt.Sprintf("ollama chat response is not valid JSON: %v", err)).
			WithCause(err).WithBackend(c.Name())
	}

	if parsed.Message.Content == "" {
		return "", types.NewError(types.ErrConnectorEmptyReply, "ollama chat response missing message content").
			WithBackend(c.Name())
	}
	return parsed.Message.Content, nil
}
