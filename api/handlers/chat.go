package handlers

import (
	"net/http"

	"github.com/BaSui01/benchduo/duel"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 💬 交互对局接口 Handler
// =============================================================================

// ChatHandler 交互对局接口处理器。
// 对局请求入队后由单工作协程串行执行，回合进度通过 websocket 广播。
type ChatHandler struct {
	db     *gorm.DB
	queue  *duel.Queue
	engine *duel.Engine
	logger *zap.Logger

	// sync 为真时对局在请求内同步执行（测试用）。
	sync bool
}

// NewChatHandler 创建对局处理器
func NewChatHandler(db *gorm.DB, queue *duel.Queue, engine *duel.Engine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{db: db, queue: queue, engine: engine, logger: logger}
}

// NewSyncChatHandler 创建同步执行的对局处理器（测试用）。
func NewSyncChatHandler(db *gorm.DB, engine *duel.Engine, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{db: db, engine: engine, logger: logger, sync: true}
}

// startChatRequest 开局请求体。
// ViewerID 是 websocket 连接时下发的会话 id；携带时回合事件只定向给
// 该观众，缺省时广播给全部观众。
type startChatRequest struct {
	Agent1ID uint   `json:"agent1_id"`
	Agent2ID uint   `json:"agent2_id"`
	Prompt   string `json:"prompt"`
	TTL      int    `json:"ttl"`
	Seed     *int64 `json:"seed"`
	ViewerID string `json:"viewer_id"`
}

// HandleStart POST /api/chat：创建对话并入队执行。
func (h *ChatHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Agent1ID == 0 || req.Agent2ID == 0 || req.Prompt == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"agent1_id, agent2_id, and prompt are required", h.logger)
		return
	}

	var agent1, agent2 types.Agent
	if err := h.db.First(&agent1, req.Agent1ID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "agent1_id does not exist"), h.logger)
		return
	}
	if err := h.db.First(&agent2, req.Agent2ID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "agent2_id does not exist"), h.logger)
		return
	}

	ttl := req.TTL
	if ttl < 1 {
		ttl = 1
	}

	conv := types.Conversation{
		Agent1ID:   agent1.ID,
		Agent2ID:   agent2.ID,
		TTL:        ttl,
		RandomSeed: req.Seed,
		Status:     types.ConversationPending,
	}
	if err := h.db.Create(&conv).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to create conversation").WithCause(err), h.logger)
		return
	}

	if h.sync {
		if _, err := h.engine.RunConversationFor(r.Context(), conv.ID, req.Prompt, req.ViewerID); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
	} else if err := h.queue.Enqueue(conv.ID, req.Prompt, req.ViewerID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteCreated(w, map[string]any{"conversation_id": conv.ID})
}

// conversationStats 对话消息数与估算 Token 合计。
func (h *ChatHandler) conversationStats(conversationID uint) map[string]any {
	var messages []types.Message
	h.db.Where("conversation_id = ?", conversationID).Find(&messages)

	tokens := 0
	for _, m := range messages {
		tokens += m.Tokens
	}
	return map[string]any{
		"messages": len(messages),
		"tokens":   tokens,
	}
}

// HandleGet GET /api/conversations/{id}
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	var conv types.Conversation
	if err := h.db.First(&conv, "id = ?", r.PathValue("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteError(w, types.NewError(types.ErrNotFound, "conversation not found"), h.logger)
		} else {
			WriteError(w, types.NewError(types.ErrDatabase, "failed to load conversation").WithCause(err), h.logger)
		}
		return
	}

	var messages []types.Message
	if err := h.db.Where("conversation_id = ?", conv.ID).
		Order("created_at asc, id asc").Find(&messages).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to load messages").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, map[string]any{
		"id":          conv.ID,
		"status":      conv.Status,
		"agent1_id":   conv.Agent1ID,
		"agent2_id":   conv.Agent2ID,
		"ttl":         conv.TTL,
		"random_seed": conv.RandomSeed,
		"finished_at": conv.FinishedAt,
		"messages":    messages,
		"stats":       h.conversationStats(conv.ID),
	})
}
