package mlx

import (
	"fmt"
	"time"

	"github.com/BaSui01/benchduo/connector/openaicompat"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
)

// Config MLX 连接器配置。
type Config struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Connector 通过 MLX server 的 OpenAI 兼容接口实现后端连接器。
// 模型列表走 /v1/models，对话走 /v1/chat/completions，
// 全部行为继承自 openaicompat 基类。
type Connector struct {
	*openaicompat.Connector
}

// New 创建 MLX 连接器。
func New(cfg Config, logger *zap.Logger) *Connector {
	return &Connector{
		Connector: openaicompat.New(openaicompat.Config{
			BackendName: string(types.BackendMLX),
			BaseURL:     fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
			Timeout:     cfg.Timeout,
		}, logger),
	}
}
