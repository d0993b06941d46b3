package status

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// =============================================================================
// 📊 状态服务
// =============================================================================
// 聚合引擎探活、模型加载判定与 Agent 就绪判定，产出前端状态面板
// 所需的完整载荷。探活结果落库（Status / LastEngineCheckAt /
// LastEngineMessage），分类本身始终走 readiness.go 的纯函数。
// =============================================================================

// engineCheckTTL 引擎探活结果的复用窗口，窗口内非强制查询直接读库。
const engineCheckTTL = 30 * time.Second

// Service 状态服务。
type Service struct {
	db      *gorm.DB
	factory *factory.Factory
	logs    *LogBuffer
	logger  *zap.Logger
}

// NewService 创建状态服务。
func NewService(db *gorm.DB, f *factory.Factory, logs *LogBuffer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if logs == nil {
		logs = NewLogBuffer()
	}
	return &Service{
		db:      db,
		factory: f,
		logs:    logs,
		logger:  logger.With(zap.String("component", "status")),
	}
}

// Logs 返回底层日志环（供 API 层拉取模型日志）。
func (s *Service) Logs() *LogBuffer { return s.logs }

// ModelStatusPayload 是模型状态面板的一行。
type ModelStatusPayload struct {
	ModelID        uint              `json:"model_id"`
	Name           string            `json:"name"`
	Backend        types.BackendKind `json:"backend"`
	TargetModel    string            `json:"target_model"`
	Engine         EngineState       `json:"engine"`
	ExistsOnDisk   bool              `json:"exists_on_disk"`
	LoadedInEngine bool              `json:"loaded_in_engine"`
	LoadState      types.LoadState   `json:"load_state"`
	WarmStatus     types.WarmStatus  `json:"warm_status"`
	Tooltip        string            `json:"tooltip"`
	LastWarmedAt   *time.Time        `json:"last_warmed_at,omitempty"`
}

// AgentStatusPayload 是 Agent 状态面板的一行。
type AgentStatusPayload struct {
	AgentID   uint                 `json:"agent_id"`
	Name      string               `json:"name"`
	ModelID   uint                 `json:"model_id"`
	ModelName string               `json:"model_name"`
	Readiness types.AgentReadiness `json:"effective_status"`
	Color     string               `json:"status_color"`
	Tooltip   string               `json:"tooltip"`
}

// CheckEngine 对模型所在引擎做一次探活并落库。
// 返回探活事实；探活失败不返回 error，体现在 Reachable=false。
func (s *Service) CheckEngine(ctx context.Context, model *types.Model) EngineState {
	now := time.Now().UTC()
	state := EngineState{LastChecked: &now, Host: model.Addr()}

	conn, err := s.factory.ForModel(model)
	if err != nil {
		state.Message = err.Error()
		state.Tooltip = fmt.Sprintf("%s 后端配置无效: %v", model.Backend, err)
		s.persistEngineCheck(model, state)
		return state
	}

	probe, err := conn.Probe(ctx)
	if err != nil {
		state.Message = err.Error()
		state.Tooltip = fmt.Sprintf("引擎 %s 不可达 (%s)", model.Addr(), types.GetErrorCode(err))
		s.logs.Append(model.Name, "engine check failed: %v", err)
	} else {
		state.Reachable = probe.OK
		state.Message = fmt.Sprintf("probe ok via %s (%.0fms)", probe.Endpoint, float64(probe.Latency.Milliseconds()))
		state.Tooltip = fmt.Sprintf("引擎 %s 可达，探活端点 %s", model.Addr(), probe.Endpoint)
		s.logs.Append(model.Name, "engine check ok via %s", probe.Endpoint)
	}

	s.persistEngineCheck(model, state)
	return state
}

// persistEngineCheck 把探活结果写回模型记录。
func (s *Service) persistEngineCheck(model *types.Model, state EngineState) {
	model.Status = types.EngineRed
	if state.Reachable {
		model.Status = types.EngineGreen
	}
	model.LastEngineCheckAt = state.LastChecked
	model.LastEngineMessage = state.Message

	if err := s.db.Model(model).Updates(map[string]any{
		"status":               model.Status,
		"last_engine_check_at": model.LastEngineCheckAt,
		"last_engine_message":  model.LastEngineMessage,
	}).Error; err != nil {
		s.logger.Warn("failed to persist engine check",
			zap.Uint("model_id", model.ID), zap.Error(err))
	}
}

// EngineStateOf 从已持久化的字段还原引擎状态，不做网络请求。
func (s *Service) EngineStateOf(model *types.Model) EngineState {
	state := EngineState{
		Reachable:   model.Status == types.EngineGreen,
		LastChecked: model.LastEngineCheckAt,
		Message:     model.LastEngineMessage,
		Host:        model.Addr(),
	}
	if state.Reachable {
		state.Tooltip = fmt.Sprintf("引擎 %s 可达", model.Addr())
	} else {
		state.Tooltip = fmt.Sprintf("引擎 %s 不可达", model.Addr())
	}
	return state
}

// engineState 决定复用库内结果还是重新探活。
// force 为真、或从未探活、或结果超出复用窗口时重新探活。
func (s *Service) engineState(ctx context.Context, model *types.Model, force bool) EngineState {
	if !force && model.LastEngineCheckAt != nil &&
		time.Since(*model.LastEngineCheckAt) < engineCheckTTL {
		return s.EngineStateOf(model)
	}
	return s.CheckEngine(ctx, model)
}

// loadedModels 尽力获取引擎已加载的模型列表；失败时返回空列表。
func (s *Service) loadedModels(ctx context.Context, model *types.Model, engine EngineState) []string {
	if !engine.Reachable {
		return nil
	}
	conn, err := s.factory.ForModel(model)
	if err != nil {
		return nil
	}
	models, err := conn.ListModels(ctx)
	if err != nil {
		s.logger.Debug("failed to list engine models",
			zap.Uint("model_id", model.ID), zap.Error(err))
		return nil
	}
	return models
}

// BuildModelStatus 为单个模型构建状态载荷。
func (s *Service) BuildModelStatus(ctx context.Context, model *types.Model, force bool) ModelStatusPayload {
	engine := s.engineState(ctx, model, force)
	loaded := s.loadedModels(ctx, model, engine)
	ms := ComputeModelStatus(model, engine, loaded)

	tooltip := engine.Tooltip
	switch ms.LoadState {
	case types.LoadStateWarm:
		tooltip = fmt.Sprintf("模型 %s 已在引擎中加载", model.TargetModel())
	case types.LoadStateNotPresent:
		tooltip = fmt.Sprintf("模型 %s 加载失败: %s", model.TargetModel(), model.LastLoadMessage)
	case types.LoadStateCold:
		if engine.Reachable {
			tooltip = fmt.Sprintf("模型 %s 存在但未加载", model.TargetModel())
		}
	}

	return ModelStatusPayload{
		ModelID:        model.ID,
		Name:           model.Name,
		Backend:        model.Backend,
		TargetModel:    model.TargetModel(),
		Engine:         engine,
		ExistsOnDisk:   ms.ExistsOnDisk,
		LoadedInEngine: ms.LoadedInEngine,
		LoadState:      ms.LoadState,
		WarmStatus:     model.WarmStatus,
		Tooltip:        tooltip,
		LastWarmedAt:   model.LastWarmedAt,
	}
}

// BuildAgentStatus 为单个 Agent 构建就绪载荷（要求 agent.Model 已预加载）。
func (s *Service) BuildAgentStatus(ctx context.Context, agent *types.Agent, force bool) AgentStatusPayload {
	payload := AgentStatusPayload{
		AgentID: agent.ID,
		Name:    agent.Name,
		ModelID: agent.ModelID,
	}

	if agent.Model == nil {
		payload.Readiness = types.ReadinessNotReady
		payload.Color = payload.Readiness.StatusColor()
		payload.Tooltip = "Agent 未绑定有效模型"
		return payload
	}

	engine := s.engineState(ctx, agent.Model, force)
	loaded := s.loadedModels(ctx, agent.Model, engine)
	ms := ComputeModelStatus(agent.Model, engine, loaded)
	readiness := ComputeAgentStatus(agent, ms, engine)

	payload.ModelName = agent.Model.Name
	payload.Readiness = readiness
	payload.Color = readiness.StatusColor()
	payload.Tooltip = s.agentTooltip(agent, readiness, engine)
	return payload
}

func (s *Service) agentTooltip(agent *types.Agent, r types.AgentReadiness, engine EngineState) string {
	switch r {
	case types.ReadinessReady:
		return fmt.Sprintf("Agent %s 就绪，模型已加载", agent.Name)
	case types.ReadinessPartiallyReady:
		return fmt.Sprintf("Agent %s 部分就绪: 引擎 %s 暂不可达", agent.Name, engine.Host)
	case types.ReadinessDisabled:
		return fmt.Sprintf("Agent %s 已禁用", agent.Name)
	default:
		return fmt.Sprintf("Agent %s 未就绪: 模型未加载", agent.Name)
	}
}

// ComputeReadiness 计算一个 Agent 的就绪判定（供对话引擎预检复用）。
func (s *Service) ComputeReadiness(ctx context.Context, agent *types.Agent) types.AgentReadiness {
	return s.BuildAgentStatus(ctx, agent, false).Readiness
}

// RecordModelLoad 记录一次模型加载尝试的结果。
func (s *Service) RecordModelLoad(model *types.Model, ok bool, message string) {
	now := time.Now().UTC()
	model.LastLoadAttemptAt = &now
	model.LastLoadMessage = message

	if err := s.db.Model(model).Updates(map[string]any{
		"last_load_attempt_at": model.LastLoadAttemptAt,
		"last_load_message":    model.LastLoadMessage,
	}).Error; err != nil {
		s.logger.Warn("failed to persist load attempt",
			zap.Uint("model_id", model.ID), zap.Error(err))
	}
	if ok {
		s.logs.Append(model.Name, "load ok: %s", message)
	} else {
		s.logs.Append(model.Name, "load failed: %s", message)
	}
}

// refreshConcurrency 并发探活上限，避免同一引擎被打爆。
const refreshConcurrency = 4

// RefreshAll 对全部模型强制探活，返回逐模型载荷（按 id 升序）。
func (s *Service) RefreshAll(ctx context.Context) ([]ModelStatusPayload, error) {
	var models []types.Model
	if err := s.db.Order("id asc").Find(&models).Error; err != nil {
		return nil, types.NewError(types.ErrDatabase, "failed to list models").WithCause(err)
	}

	payloads := make([]ModelStatusPayload, len(models))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for i := range models {
		g.Go(func() error {
			payloads[i] = s.BuildModelStatus(gctx, &models[i], true)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}
