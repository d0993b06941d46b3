package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/status"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =============================================================================
// 🔧 模型注册接口 Handler
// =============================================================================

// ModelHandler 模型注册与状态接口处理器
type ModelHandler struct {
	db            *gorm.DB
	status        *status.Service
	factory       *factory.Factory
	detectTimeout time.Duration
	logger        *zap.Logger
}

// NewModelHandler 创建模型处理器
func NewModelHandler(db *gorm.DB, st *status.Service, f *factory.Factory,
	detectTimeout time.Duration, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{
		db:            db,
		status:        st,
		factory:       f,
		detectTimeout: detectTimeout,
		logger:        logger,
	}
}

// modelRequest 模型创建/更新请求体。Engine 与 Backend 互为别名。
type modelRequest struct {
	Name          *string `json:"name,omitempty"`
	Host          *string `json:"host,omitempty"`
	Port          *int    `json:"port,omitempty"`
	Engine        *string `json:"engine,omitempty"`
	Backend       *string `json:"backend,omitempty"`
	ModelName     *string `json:"model_name,omitempty"`
	SelectedModel *string `json:"selected_model,omitempty"`
}

func (req *modelRequest) backendKind() (types.BackendKind, bool) {
	raw := ""
	if req.Engine != nil {
		raw = *req.Engine
	} else if req.Backend != nil {
		raw = *req.Backend
	}
	if raw == "" {
		return types.BackendOllama, true
	}
	return types.NormalizeBackendKind(raw)
}

// HandleList GET /api/models：强制刷新全部引擎状态后返回模型列表。
func (h *ModelHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	payloads, err := h.status.RefreshAll(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, payloads)
}

// HandleCreate POST /api/models
func (h *ModelHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Name == nil || req.Host == nil || req.Port == nil || req.ModelName == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"name, host, port, and model_name are required", h.logger)
		return
	}
	kind, ok := req.backendKind()
	if !ok {
		WriteError(w, types.NewError(types.ErrUnsupportedBackend,
			"engine must be one of ollama, mlx, tensorrt"), h.logger)
		return
	}
	if *req.Port < 1 || *req.Port > 65535 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"port must be between 1 and 65535", h.logger)
		return
	}

	model := types.Model{
		Name:      *req.Name,
		Host:      *req.Host,
		Port:      *req.Port,
		Backend:   kind,
		ModelName: *req.ModelName,
		Status:    types.EngineRed,
	}
	if req.SelectedModel != nil {
		model.SelectedModel = *req.SelectedModel
	}

	if err := h.db.Create(&model).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDuplicateName,
			"model name must be unique").WithCause(err), h.logger)
		return
	}

	h.status.CheckEngine(r.Context(), &model)
	WriteCreated(w, h.status.BuildModelStatus(r.Context(), &model, false))
}

// HandleUpdate PUT /api/models/{id}
func (h *ModelHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	model, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	var req modelRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Engine != nil || req.Backend != nil {
		kind, valid := req.backendKind()
		if !valid {
			WriteError(w, types.NewError(types.ErrUnsupportedBackend,
				"engine must be one of ollama, mlx, tensorrt"), h.logger)
			return
		}
		model.Backend = kind
	}
	if req.Name != nil {
		model.Name = *req.Name
	}
	if req.Host != nil {
		model.Host = *req.Host
	}
	if req.Port != nil {
		model.Port = *req.Port
	}
	if req.ModelName != nil {
		model.ModelName = *req.ModelName
	}
	if req.SelectedModel != nil {
		model.SelectedModel = *req.SelectedModel
	}

	if err := h.db.Save(model).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDuplicateName,
			"model name must be unique").WithCause(err), h.logger)
		return
	}

	h.status.CheckEngine(r.Context(), model)
	WriteSuccess(w, h.status.BuildModelStatus(r.Context(), model, false))
}

// HandleDelete DELETE /api/models/{id}：级联删除其下所有 Agent。
func (h *ModelHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	model, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	if err := h.db.Select("Agents").Delete(model).Error; err != nil {
		WriteError(w, types.NewError(types.ErrDatabase, "failed to delete model").WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"message": "Model deleted"})
}

// probeRequest 后端探测请求体。
type probeRequest struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Engine string `json:"engine,omitempty"`
}

// HandleProbe POST /api/models/probe：按指定后端类型列出其已知模型。
func (h *ModelHandler) HandleProbe(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Port < 1 || req.Port > 65535 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"port must be between 1 and 65535", h.logger)
		return
	}
	kind, ok := types.NormalizeBackendKind(req.Engine)
	if !ok {
		WriteError(w, types.NewError(types.ErrUnsupportedBackend,
			fmt.Sprintf("unsupported engine: %s", req.Engine)), h.logger)
		return
	}

	conn, err := h.factory.ForHostPort(kind, req.Host, req.Port)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	models, err := conn.ListModels(r.Context())
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"models": models})
}

// HandleDetect POST /api/models/test：自动探测 host:port 上的后端类型。
func (h *ModelHandler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	var req probeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Port < 1 || req.Port > 65535 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"port must be between 1 and 65535", h.logger)
		return
	}

	result := connector.Detect(r.Context(), req.Host, req.Port, h.detectTimeout)
	if result == nil {
		WriteError(w, types.NewError(types.ErrConnectorUnreachable,
			fmt.Sprintf("no known backend responded at %s:%d", req.Host, req.Port)), h.logger)
		return
	}

	// 显式给定 engine 时，探测结果必须与之一致。
	if req.Engine != "" {
		want, ok := types.NormalizeBackendKind(req.Engine)
		if !ok {
			WriteError(w, types.NewError(types.ErrUnsupportedBackend,
				fmt.Sprintf("unsupported engine: %s", req.Engine)), h.logger)
			return
		}
		got, _ := types.NormalizeBackendKind(result.Backend)
		if got != want {
			WriteError(w, types.NewError(types.ErrEngineMismatch,
				fmt.Sprintf("expected %s but detected %s", want, got)), h.logger)
			return
		}
	}

	WriteSuccess(w, map[string]any{
		"backend":         result.Backend,
		"backend_version": result.Version,
		"models":          result.Models,
	})
}

// warmRequest 模型预热请求体。
type warmRequest struct {
	ModelID uint `json:"model_id"`
}

// HandleWarm POST /api/models/warm
func (h *ModelHandler) HandleWarm(w http.ResponseWriter, r *http.Request) {
	var req warmRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	var model types.Model
	if err := h.db.First(&model, req.ModelID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "model not found"), h.logger)
		return
	}

	warmErr := h.status.WarmModel(r.Context(), &model)
	message := "loaded ok"
	if warmErr != nil {
		message = "failed to load"
	}
	h.status.RecordModelLoad(&model, warmErr == nil, message)

	WriteSuccess(w, map[string]any{
		"model_id":    model.ID,
		"warm_status": model.WarmStatus,
		"message":     message,
	})
}

// HandleStatus GET /api/v1/models/{id}/status：结构化状态载荷（含日志环）。
func (h *ModelHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	model, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"
	payload := h.status.BuildModelStatus(r.Context(), model, force)
	WriteSuccess(w, map[string]any{
		"engine": payload.Engine,
		"model":  payload,
		"logs": map[string]any{
			"recent": h.status.Logs().Tail(model.Name),
		},
	})
}

// engineCheckRequest 强制引擎探活请求体。
type engineCheckRequest struct {
	ModelID uint `json:"model_id"`
}

// HandleEngineCheck POST /api/v1/engine/check：绕过复用窗口立即探活。
func (h *ModelHandler) HandleEngineCheck(w http.ResponseWriter, r *http.Request) {
	var req engineCheckRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	var model types.Model
	if err := h.db.First(&model, req.ModelID).Error; err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, "model not found"), h.logger)
		return
	}

	state := h.status.CheckEngine(r.Context(), &model)
	WriteSuccess(w, map[string]any{"engine": state, "status": model.Status})
}

// HandleReload POST /api/v1/models/{id}/reload：触发重新加载（预热）。
func (h *ModelHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	model, ok := h.loadModel(w, r)
	if !ok {
		return
	}

	warmErr := h.status.WarmModel(r.Context(), model)
	message := "reload ok"
	if warmErr != nil {
		message = fmt.Sprintf("reload failed: %v", warmErr)
	}
	h.status.RecordModelLoad(model, warmErr == nil, message)

	WriteSuccess(w, h.status.BuildModelStatus(r.Context(), model, true))
}

// loadModel 从路径通配符解析 id 并加载模型记录。
func (h *ModelHandler) loadModel(w http.ResponseWriter, r *http.Request) (*types.Model, bool) {
	var model types.Model
	if err := h.db.First(&model, "id = ?", r.PathValue("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteError(w, types.NewError(types.ErrNotFound, "model not found"), h.logger)
		} else {
			WriteError(w, types.NewError(types.ErrDatabase, "failed to load model").WithCause(err), h.logger)
		}
		return nil, false
	}
	return &model, true
}
