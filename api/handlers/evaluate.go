package handlers

import (
	"net/http"

	"github.com/BaSui01/benchduo/evaluate"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// ⚖️ 评估接口 Handler
// =============================================================================

// EvaluateHandler 对话质量评估接口处理器。
// 评估在请求内同步执行，完成后返回任务 id。
type EvaluateHandler struct {
	db        *gorm.DB
	evaluator *evaluate.Evaluator
	logger    *zap.Logger
}

// NewEvaluateHandler 创建评估处理器
func NewEvaluateHandler(db *gorm.DB, ev *evaluate.Evaluator, logger *zap.Logger) *EvaluateHandler {
	return &EvaluateHandler{db: db, evaluator: ev, logger: logger}
}

// createEvaluationRequest 评估创建请求体。
type createEvaluationRequest struct {
	ConversationID uint   `json:"conversation_id"`
	MainModelID    uint   `json:"main_model_id"`
	JudgeModelIDs  []uint `json:"judge_model_ids"`
}

// HandleCreate POST /api/evaluate
func (h *EvaluateHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEvaluationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ConversationID == 0 || req.MainModelID == 0 || len(req.JudgeModelIDs) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"conversation_id, main_model_id, and judge_model_ids are required", h.logger)
		return
	}

	var conv types.Conversation
	if err := h.db.First(&conv, req.ConversationID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "conversation not found"), h.logger)
		return
	}
	var main types.Model
	if err := h.db.First(&main, req.MainModelID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "main model not found"), h.logger)
		return
	}
	var judgeCount int64
	if err := h.db.Model(&types.Model{}).Where("id IN ?", req.JudgeModelIDs).
		Count(&judgeCount).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to verify judge models").WithCause(err), h.logger)
		return
	}
	if int(judgeCount) != len(req.JudgeModelIDs) {
		WriteError(w, types.NewError(types.ErrNotFound, "one or more judge models were not found"), h.logger)
		return
	}

	job := types.EvaluationJob{
		ConversationID: conv.ID,
		MainModelID:    main.ID,
		JudgeModelIDs:  req.JudgeModelIDs,
		Status:         types.EvaluationPending,
	}
	if err := h.db.Create(&job).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to create evaluation job").WithCause(err), h.logger)
		return
	}

	if err := h.evaluator.Evaluate(r.Context(), job.ID); err != nil {
		// 任务状态已由评估器落库，这里只透传失败原因。
		WriteAnyError(w, err, h.logger)
		return
	}

	WriteCreated(w, map[string]any{"eval_job_id": job.ID})
}

// HandleGet GET /api/evaluate/{id}
func (h *EvaluateHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	var job types.EvaluationJob
	if err := h.db.First(&job, "id = ?", r.PathValue("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteError(w, types.NewError(types.ErrNotFound, "evaluation job not found"), h.logger)
		} else {
			WriteError(w, types.NewError(types.ErrDatabase, "failed to load evaluation job").WithCause(err), h.logger)
		}
		return
	}

	WriteSuccess(w, map[string]any{
		"id":               job.ID,
		"conversation_id":  job.ConversationID,
		"main_model_id":    job.MainModelID,
		"judge_model_ids":  job.JudgeModelIDs,
		"status":           job.Status,
		"judge_results":    job.JudgeResults,
		"aggregate_report": job.Report,
		"error_message":    job.ErrorMessage,
		"created_at":       job.CreatedAt,
	})
}
