package tensorrt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/benchduo/connector/openaicompat"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
)

// Config TensorRT-LLM 连接器配置。
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Connector 通过 TensorRT-LLM server 的 OpenAI 兼容接口实现后端连接器。
// 对话复用 openaicompat 基类；模型列表端点是 /models，
// 返回 {"models": ["..."]} 的扁平结构，因此覆写 ListModels。
type Connector struct {
	*openaicompat.Connector
}

// New 创建 TensorRT-LLM 连接器。
func New(cfg Config, logger *zap.Logger) *Connector {
	return &Connector{
		Connector: openaicompat.New(openaicompat.Config{
			BackendName: string(types.BackendTensorRT),
			BaseURL:     fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
			Timeout:     cfg.Timeout,
			ModelsPath:  "/models",
		}, logger),
	}
}

type modelsResponse struct {
	Models []string `json:"models"`
}

// ListModels 覆写基类实现以解析 TensorRT 的扁平模型列表。
func (c *Connector) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint("/models"), nil)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable, "failed to build models request").
			WithCause(err).WithBackend(c.Name())
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to list tensorrt models: %v", err)).
			WithCause(err).WithBackend(c.Name()).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to list tensorrt models: status=%d", resp.StatusCode)).
			WithBackend(c.Name()).WithRetryable(true)
	}

	var payload modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("failed to decode tensorrt models: %v", err)).
			WithCause(err).WithBackend(c.Name())
	}

	models := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		if m != "" {
			models = append(models, m)
		}
	}
	return models, nil
}
