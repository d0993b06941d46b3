package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/benchduo/status"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🎭 Agent 接口 Handler
// =============================================================================

// AgentHandler Agent 配置与状态接口处理器
type AgentHandler struct {
	db     *gorm.DB
	status *status.Service
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 处理器
func NewAgentHandler(db *gorm.DB, st *status.Service, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{db: db, status: st, logger: logger}
}

// agentRequest Agent 创建/更新请求体。
type agentRequest struct {
	Name         *string  `json:"name,omitempty"`
	ModelID      *uint    `json:"model_id,omitempty"`
	SystemPrompt *string  `json:"system_prompt,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Status       *string  `json:"status,omitempty"`
}

// HandleList GET /api/agents
func (h *AgentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var agents []types.Agent
	if err := h.db.Preload("Model").Order("id asc").Find(&agents).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to list agents").WithCause(err), h.logger)
		return
	}

	payloads := make([]status.AgentStatusPayload, 0, len(agents))
	for i := range agents {
		payloads = append(payloads, h.status.BuildAgentStatus(r.Context(), &agents[i], false))
	}
	WriteSuccess(w, payloads)
}

// HandleCreate POST /api/agents
func (h *AgentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == nil || req.ModelID == nil || req.SystemPrompt == nil ||
		req.MaxTokens == nil || req.Temperature == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"name, model_id, system_prompt, max_tokens, and temperature are required", h.logger)
		return
	}

	model, appErr := h.validateModelBinding(*req.ModelID)
	if appErr != nil {
		WriteError(w, appErr, h.logger)
		return
	}

	agent := types.Agent{
		Name:         *req.Name,
		ModelID:      model.ID,
		SystemPrompt: *req.SystemPrompt,
		MaxTokens:    *req.MaxTokens,
		Temperature:  *req.Temperature,
		Status:       types.AgentReady,
	}
	if req.Status != nil {
		agent.Status = types.AgentState(*req.Status)
	}

	if err := h.db.Create(&agent).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDuplicateName,
			"agent name must be unique").WithCause(err), h.logger)
		return
	}

	agent.Model = model
	WriteCreated(w, h.status.BuildAgentStatus(r.Context(), &agent, false))
}

// HandleUpdate PUT /api/agents/{id}
func (h *AgentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}

	var req agentRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.ModelID != nil {
		model, appErr := h.validateModelBinding(*req.ModelID)
		if appErr != nil {
			WriteError(w, appErr, h.logger)
			return
		}
		agent.ModelID = model.ID
		agent.Model = model
	}
	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.SystemPrompt != nil {
		agent.SystemPrompt = *req.SystemPrompt
	}
	if req.MaxTokens != nil {
		agent.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		agent.Temperature = *req.Temperature
	}
	if req.Status != nil {
		agent.Status = types.AgentState(*req.Status)
	}

	if err := h.db.Save(agent).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDuplicateName,
			"agent name must be unique").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, h.status.BuildAgentStatus(r.Context(), agent, false))
}

// HandleDelete DELETE /api/agents/{id}
func (h *AgentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}
	if err := h.db.Delete(agent).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to delete agent").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "Agent deleted"})
}

// HandleStatus GET /api/v1/agents/{id}/status
func (h *AgentHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	agent, ok := h.loadAgent(w, r)
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"
	payload := h.status.BuildAgentStatus(r.Context(), agent, force)
	WriteSuccess(w, map[string]any{
		"agent": map[string]any{
			"enabled":     agent.Enabled(),
			"status":      payload.Readiness,
			"color":       payload.Color,
			"diagnostics": payload.Tooltip,
		},
		"model": payload,
	})
}

// validateModelBinding 校验绑定模型存在且与活跃引擎后端一致。
// 活跃引擎是 id 最小的 status=green 模型；混用不同推理引擎会拒绝。
func (h *AgentHandler) validateModelBinding(modelID uint) (*types.Model, *types.Error) {
	var model types.Model
	if err := h.db.First(&model, modelID).Error; err != nil {
		return nil, types.NewError(types.ErrNotFound, "model_id does not exist")
	}

	var active types.Model
	err := h.db.Where("status = ?", types.EngineGreen).Order("id asc").First(&active).Error
	if err == nil && !strings.EqualFold(string(active.Backend), string(model.Backend)) {
		return nil, types.NewError(types.ErrEngineMismatch, "Engine mismatch")
	}
	return &model, nil
}

func (h *AgentHandler) loadAgent(w http.ResponseWriter, r *http.Request) (*types.Agent, bool) {
	var agent types.Agent
	if err := h.db.Preload("Model").First(&agent, "agents.id = ?", r.PathValue("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteError(w, types.NewError(types.ErrNotFound, "agent not found"), h.logger)
		} else {
			WriteError(w, types.NewError(types.ErrDatabase, "failed to load agent").WithCause(err), h.logger)
		}
		return nil, false
	}
	return &agent, true
}
