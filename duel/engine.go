// =============================================================================
// 🥊 对局引擎
// =============================================================================
// 驱动一场 Conversation 跑满回合预算：严格交替选手，逐回合调用后端、
// 落库消息、向观众广播。回合严格串行；消息落库先于该回合的广播，
// 广播先于下一回合的后端调用。
// =============================================================================

package duel

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/benchduo/broadcast"
	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/internal/metrics"
	"github.com/BaSui01/benchduo/status"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Outcome 一场对局的执行摘要。
type Outcome struct {
	ConversationID uint          `json:"conversation_id"`
	Messages       int           `json:"messages"`
	Tokens         int           `json:"tokens"`
	Elapsed        time.Duration `json:"elapsed"`
}

// TokensPerSecond 返回吞吐估算（仅展示用途）。
func (o *Outcome) TokensPerSecond() float64 {
	secs := o.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(o.Tokens) / secs
}

// Engine 对局引擎。
type Engine struct {
	db      *gorm.DB
	factory *factory.Factory
	status  *status.Service
	bus     broadcast.Broadcaster
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewEngine 创建对局引擎。bus 为 nil 时事件被丢弃。
func NewEngine(db *gorm.DB, f *factory.Factory, st *status.Service,
	bus broadcast.Broadcaster, m *metrics.Collector, logger *zap.Logger) *Engine {
	if bus == nil {
		bus = broadcast.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:      db,
		factory: f,
		status:  st,
		bus:     bus,
		metrics: m,
		logger:  logger.With(zap.String("component", "duel_engine")),
	}
}

// RunConversation 执行一场对局，事件广播给全部观众。
func (e *Engine) RunConversation(ctx context.Context, conversationID uint, prompt string) (*Outcome, error) {
	return e.RunConversationFor(ctx, conversationID, prompt, "")
}

// RunConversationFor 执行一场对局直到回合预算耗尽。
// viewerID 非空时进度事件只定向给该观众会话，为空时广播给全部观众。
// 前置条件：对话状态为 pending 或 running，双方 Agent 可解析。
// 连接器报错时中止循环，已落库的消息保留，失败回合不写任何消息。
func (e *Engine) RunConversationFor(ctx context.Context, conversationID uint, prompt string, viewerID string) (*Outcome, error) {
	conv, err := e.loadConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == types.ConversationFinished {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("conversation %d already finished", conversationID))
	}

	agents := [2]*types.Agent{conv.Agent1, conv.Agent2}
	senders := [2]types.SenderRole{types.SenderAgent1, types.SenderAgent2}
	for _, agent := range agents {
		if err := e.preflight(ctx, agent); err != nil {
			return nil, err
		}
	}

	if conv.Status == types.ConversationPending {
		seedMsg := types.Message{
			ConversationID: conv.ID,
			SenderRole:     types.SenderUser,
			Content:        prompt,
			Tokens:         types.EstimateTokens(prompt),
		}
		if err := e.db.Create(&seedMsg).Error; err != nil {
			return nil, types.NewError(types.ErrDatabase, "failed to persist seed message").WithCause(err)
		}
	}
	if err := e.db.Model(conv).Update("status", types.ConversationRunning).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to mark conversation running").WithCause(err)
	}

	start := time.Now()
	outcome := &Outcome{ConversationID: conv.ID}
	currentText := prompt

	for t := 0; t < conv.TTL; t++ {
		agent := agents[t%2]
		sender := senders[t%2]
		done := t == conv.TTL-1

		reply, err := e.runTurn(ctx, conv, agent, currentText)
		if err != nil {
			e.bus.PublishEnd(broadcast.EndEvent{
				ConversationID: conv.ID,
				Status:         "failed",
				Error:          err.Error(),
				Stats:          e.stats(outcome, time.Since(start)),
				ViewerID:       viewerID,
			})
			return nil, types.NewError(types.ErrConversationFailed,
				fmt.Sprintf("turn %d (%s) failed", t, sender)).WithCause(err)
		}

		tokens := types.EstimateTokens(reply)
		msg := types.Message{
			ConversationID: conv.ID,
			SenderRole:     sender,
			AgentID:        &agent.ID,
			Content:        reply,
			Tokens:         tokens,
		}
		if err := e.db.Create(&msg).Error; err != nil {
			return nil, types.NewError(types.ErrDatabase,
				fmt.Sprintf("failed to persist turn %d", t)).WithCause(err)
		}

		outcome.Messages++
		outcome.Tokens += tokens
		if e.metrics != nil {
			e.metrics.ObserveTurn(string(agent.Model.Backend))
		}

		// 落库成功后才广播；广播先于下一回合的后端调用。
		e.bus.PublishTurn(broadcast.TurnEvent{
			ConversationID: conv.ID,
			Sender:         string(sender),
			Text:           reply,
			Done:           done,
			ViewerID:       viewerID,
		})

		currentText = reply
	}

	outcome.Elapsed = time.Since(start)
	now := time.Now().UTC()
	if err := e.db.Model(conv).Updates(map[string]any{
		"status":      types.ConversationFinished,
		"finished_at": &now,
	}).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to mark conversation finished").WithCause(err)
	}

	e.bus.PublishEnd(broadcast.EndEvent{
		ConversationID: conv.ID,
		Status:         string(types.ConversationFinished),
		Stats:          e.stats(outcome, outcome.Elapsed),
		ViewerID:       viewerID,
	})

	e.logger.Info("conversation finished",
		zap.Uint("conversation_id", conv.ID),
		zap.Int("turns", outcome.Messages),
		zap.Int("tokens", outcome.Tokens),
		zap.Duration("elapsed", outcome.Elapsed))
	return outcome, nil
}

// loadConversation 加载对话及双方 Agent（含模型）。
func (e *Engine) loadConversation(id uint) (*types.Conversation, error) {
	var conv types.Conversation
	err := e.db.
		Preload("Agent1.Model").
		Preload("Agent2.Model").
		First(&conv, id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, types.NewError(types.ErrNotFound,
			fmt.Sprintf("conversation %d not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to load conversation").WithCause(err)
	}
	if conv.Agent1 == nil || conv.Agent2 == nil {
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("conversation %d has unresolved agents", id))
	}
	return &conv, nil
}

// preflight 开局前检查 Agent 可用性。禁用是硬错误；
// 模型未就绪时尝试预热一次，预热失败不阻断开局，
// 由首回合的连接器调用自行快速失败。
func (e *Engine) preflight(ctx context.Context, agent *types.Agent) error {
	if !agent.Enabled() {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("agent %q is disabled", agent.Name))
	}
	if e.status == nil {
		return nil
	}
	readiness := e.status.ComputeReadiness(ctx, agent)
	if readiness == types.ReadinessReady {
		return nil
	}
	e.logger.Info("agent not ready, attempting warm-up",
		zap.String("agent", agent.Name),
		zap.String("readiness", string(readiness)))
	if err := e.status.WarmModel(ctx, agent.Model); err != nil {
		e.logger.Warn("pre-flight warm-up failed, proceeding anyway",
			zap.String("agent", agent.Name), zap.Error(err))
	}
	return nil
}

// runTurn 执行一个回合的后端调用，返回模型回复文本。
func (e *Engine) runTurn(ctx context.Context, conv *types.Conversation,
	agent *types.Agent, currentText string) (string, error) {
	conn, err := e.factory.ForAgent(agent)
	if err != nil {
		return "", err
	}

	messages := []connector.ChatMessage{
		{Role: connector.RoleSystem, Content: agent.SystemPrompt},
		{Role: connector.RoleUser, Content: currentText},
	}
	return conn.Chat(ctx, messages, connector.ChatSettings{
		Model:       agent.Model.TargetModel(),
		MaxTokens:   agent.MaxTokens,
		Temperature: agent.Temperature,
		Seed:        conv.RandomSeed,
	})
}

func (e *Engine) stats(o *Outcome, elapsed time.Duration) broadcast.ConversationStats {
	secs := elapsed.Seconds()
	tps := 0.0
	if secs > 0 {
		tps = float64(o.Tokens) / secs
	}
	return broadcast.ConversationStats{
		Messages:        o.Messages,
		Tokens:          o.Tokens,
		ElapsedSeconds:  secs,
		TokensPerSecond: tps,
	}
}
