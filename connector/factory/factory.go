// Package factory provides a centralized factory for creating backend
// Connector instances keyed on the stored backend enum. It imports all
// connector sub-packages and maps kinds to their constructors, keeping the
// kind switch in exactly one place instead of scattered string matching.
package factory

import (
	"fmt"
	"time"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/connector/mlx"
	"github.com/BaSui01/benchduo/connector/ollama"
	"github.com/BaSui01/benchduo/connector/tensorrt"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
)

// Builder 按地址构造一个连接器实例。
type Builder func(host string, port int) connector.Connector

// Factory 按后端类型创建连接器。作为进程级单例注入到
// duel / batch / status / evaluate 等组件，便于测试替换。
type Factory struct {
	timeout  time.Duration
	logger   *zap.Logger
	builders map[types.BackendKind]Builder
}

// New 创建连接器工厂。timeout 为 0 时使用各连接器默认超时。
func New(timeout time.Duration, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		timeout:  timeout,
		logger:   logger,
		builders: make(map[types.BackendKind]Builder),
	}
}

// Register 用自定义构造器覆盖指定后端类型，测试中用于注入桩连接器。
func (f *Factory) Register(kind types.BackendKind, b Builder) {
	f.builders[kind] = b
}

// ForHostPort 按显式的后端类型与地址创建连接器。
// 未知类型返回配置错误（在入队任何工作之前拒绝，绝不重试）。
func (f *Factory) ForHostPort(kind types.BackendKind, host string, port int) (connector.Connector, error) {
	if b, ok := f.builders[kind]; ok {
		return b(host, port), nil
	}
	switch kind {
	case types.BackendOllama:
		return ollama.New(ollama.Config{Host: host, Port: port, Timeout: f.timeout}, f.logger), nil
	case types.BackendMLX:
		return mlx.New(mlx.Config{Host: host, Port: port, Timeout: f.timeout}, f.logger), nil
	case types.BackendTensorRT:
		return tensorrt.New(tensorrt.Config{Host: host, Port: port, Timeout: f.timeout}, f.logger), nil
	default:
		return nil, types.NewError(types.ErrUnsupportedBackend,
			fmt.Sprintf("unsupported backend: %s", kind))
	}
}

// ForModel 为一条模型注册记录创建连接器。
func (f *Factory) ForModel(model *types.Model) (connector.Connector, error) {
	return f.ForHostPort(model.Backend, model.Host, model.Port)
}

// ForAgent 为 Agent 绑定的模型创建连接器；Model 未预加载时返回配置错误。
func (f *Factory) ForAgent(agent *types.Agent) (connector.Connector, error) {
	if agent.Model == nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("agent %d has no resolved model", agent.ID))
	}
	return f.ForModel(agent.Model)
}
