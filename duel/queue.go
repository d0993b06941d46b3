package duel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
)

// queueCapacity 交互对局队列容量，打满直接拒绝而不是阻塞 HTTP 请求。
const queueCapacity = 64

// request 一条排队中的交互对局请求。
type request struct {
	conversationID uint
	prompt         string
	viewerID       string
}

// Queue 交互对局的单消费者队列。
// 同一时刻至多一场交互对局在跑；批处理队列与之相互独立。
type Queue struct {
	engine *Engine
	jobs   chan request
	logger *zap.Logger

	closed atomic.Bool
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewQueue 创建交互对局队列（尚未启动）。
func NewQueue(engine *Engine, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		engine: engine,
		jobs:   make(chan request, queueCapacity),
		logger: logger.With(zap.String("component", "duel_queue")),
	}
}

// Start 启动后台工作协程。
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.wg.Add(1)
	go q.worker(ctx)
	q.logger.Info("duel queue started")
}

// Stop 停止接收新请求并取消在途对局。排队中的请求被丢弃，
// 其对话保持 pending，可重新入队。
func (q *Queue) Stop() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	if q.cancel != nil {
		q.cancel()
	}
	close(q.jobs)
	q.wg.Wait()
	q.logger.Info("duel queue stopped")
}

// Enqueue 提交一场对局。viewerID 非空时进度事件只定向给该观众会话。
// 队列已关闭或已满时返回错误，从不阻塞调用方。
func (q *Queue) Enqueue(conversationID uint, prompt string, viewerID string) error {
	if q.closed.Load() {
		return types.NewError(types.ErrInternalError, "duel queue is stopped")
	}
	select {
	case q.jobs <- request{conversationID: conversationID, prompt: prompt, viewerID: viewerID}:
		return nil
	default:
		return types.NewError(types.ErrInternalError, "duel queue is full").WithRetryable(true)
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for req := range q.jobs {
		if ctx.Err() != nil {
			return
		}
		if _, err := q.engine.RunConversationFor(ctx, req.conversationID, req.prompt, req.viewerID); err != nil {
			q.logger.Error("conversation failed",
				zap.Uint("conversation_id", req.conversationID),
				zap.Error(err))
		}
	}
}
