// =============================================================================
// 🎭 桩连接器
// =============================================================================
// StubConnector 以确定性方式实现 connector.Connector，供对局引擎、
// 调度与评估测试注入：默认对最后一条消息回显 "reply:" 前缀。
// =============================================================================
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/benchduo/connector"
)

// ChatCall 记录一次 Chat 调用的入参。
type ChatCall struct {
	Messages []connector.ChatMessage
	Settings connector.ChatSettings
}

// StubConnector 确定性桩连接器。
type StubConnector struct {
	mu    sync.Mutex
	calls []ChatCall

	// ChatFunc 覆盖默认回显行为。
	ChatFunc func(ctx context.Context, messages []connector.ChatMessage, settings connector.ChatSettings) (string, error)

	// ChatErr 非空时每次 Chat 直接返回该错误。
	ChatErr error

	// Models 是 ListModels 的返回值。
	Models []string

	// ProbeErr 非空时 Probe 返回该错误。
	ProbeErr error
}

// NewStubConnector 创建默认回显行为的桩连接器。
func NewStubConnector() *StubConnector {
	return &StubConnector{Models: []string{"stub-model"}}
}

func (s *StubConnector) Name() string { return "stub" }

// Probe 返回固定的可达状态。
func (s *StubConnector) Probe(ctx context.Context) (*connector.ProbeStatus, error) {
	if s.ProbeErr != nil {
		return nil, s.ProbeErr
	}
	return &connector.ProbeStatus{OK: true, Backend: "stub", Latency: time.Millisecond}, nil
}

// ListModels 返回配置的模型列表。
func (s *StubConnector) ListModels(ctx context.Context) ([]string, error) {
	if s.ProbeErr != nil {
		return nil, s.ProbeErr
	}
	return s.Models, nil
}

// Chat 记录调用并返回 "reply:" + 最后一条消息内容。
func (s *StubConnector) Chat(ctx context.Context, messages []connector.ChatMessage,
	settings connector.ChatSettings) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ChatCall{Messages: messages, Settings: settings})
	s.mu.Unlock()

	if s.ChatErr != nil {
		return "", s.ChatErr
	}
	if s.ChatFunc != nil {
		return s.ChatFunc(ctx, messages, settings)
	}
	if len(messages) == 0 {
		return "reply:", nil
	}
	return "reply:" + messages[len(messages)-1].Content, nil
}

// Calls 返回已记录的 Chat 调用快照。
func (s *StubConnector) Calls() []ChatCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount 返回 Chat 调用次数。
func (s *StubConnector) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
