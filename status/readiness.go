package status

import (
	"time"

	"github.com/BaSui01/benchduo/types"
)

// =============================================================================
// 就绪状态机（纯函数）
// =============================================================================
// 本文件只做分类，不做任何 I/O。输入是引擎探活事实、引擎已加载模型列表
// 与模型自身持久化的预热状态，输出是可落地的加载/就绪判定。
// 规则按声明顺序求值，首条命中即返回（严格决策表，不是打分）。
// =============================================================================

// EngineState 是一次引擎探活的事实快照。
type EngineState struct {
	Reachable   bool       `json:"reachable"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	Message     string     `json:"message,omitempty"`
	Host        string     `json:"host,omitempty"`
	Tooltip     string     `json:"tooltip,omitempty"`
}

// ModelStatus 是模型加载判定结果。
type ModelStatus struct {
	ExistsOnDisk   bool            `json:"exists_on_disk"`
	LoadedInEngine bool            `json:"loaded_in_engine"`
	LoadState      types.LoadState `json:"load_state"`
}

// ComputeModelStatus 将模型记录、引擎状态与已加载模型列表归并为加载判定。
//
// 决策表：
//  1. warm_status == error      → not_present（无论引擎是否可达）
//  2. 引擎可达且目标模型在列    → warm（已加载）
//  3. warm_status == warm       → 引擎可达则 warm，否则 cold
//  4. 其余                      → cold（存在但未加载）
func ComputeModelStatus(model *types.Model, engine EngineState, loadedModels []string) ModelStatus {
	if model.WarmStatus == types.WarmError {
		return ModelStatus{
			ExistsOnDisk:   false,
			LoadedInEngine: false,
			LoadState:      types.LoadStateNotPresent,
		}
	}

	if engine.Reachable && containsModel(loadedModels, model.TargetModel()) {
		return ModelStatus{
			ExistsOnDisk:   true,
			LoadedInEngine: true,
			LoadState:      types.LoadStateWarm,
		}
	}

	if model.WarmStatus == types.WarmWarm {
		state := types.LoadStateCold
		if engine.Reachable {
			state = types.LoadStateWarm
		}
		return ModelStatus{
			ExistsOnDisk:   true,
			LoadedInEngine: engine.Reachable,
			LoadState:      state,
		}
	}

	return ModelStatus{
		ExistsOnDisk:   true,
		LoadedInEngine: false,
		LoadState:      types.LoadStateCold,
	}
}

// ComputeAgentStatus 将 Agent 启用状态、模型加载判定与引擎状态归并为就绪判定。
//
// 决策表：
//  1. Agent 被禁用                        → disabled
//  2. 模型 warm 且引擎可达               → ready
//  3. 模型 warm/cold 但引擎不可达        → partially_ready
//  4. 其余                                → not_ready
func ComputeAgentStatus(agent *types.Agent, model ModelStatus, engine EngineState) types.AgentReadiness {
	if !agent.Enabled() {
		return types.ReadinessDisabled
	}
	if model.LoadState == types.LoadStateWarm && engine.Reachable {
		return types.ReadinessReady
	}
	if (model.LoadState == types.LoadStateWarm || model.LoadState == types.LoadStateCold) && !engine.Reachable {
		return types.ReadinessPartiallyReady
	}
	return types.ReadinessNotReady
}

func containsModel(models []string, target string) bool {
	for _, m := range models {
		if m == target {
			return true
		}
	}
	return false
}
