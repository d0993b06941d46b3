// =============================================================================
// 📦 测试夹具
// =============================================================================
// 预置常用的模型与 Agent 记录，供各包测试统一复用。
// =============================================================================
package fixtures

import (
	"testing"

	"github.com/BaSui01/benchduo/types"
	"gorm.io/gorm"
)

// GreenModel 一条引擎可达且已预热的模型记录。
func GreenModel(name string) types.Model {
	return types.Model{
		Name:       name,
		Host:       "127.0.0.1",
		Port:       11434,
		Backend:    types.BackendOllama,
		ModelName:  "qwen2:7b",
		Status:     types.EngineGreen,
		WarmStatus: types.WarmWarm,
	}
}

// RedModel 一条引擎不可达的模型记录。
func RedModel(name string) types.Model {
	return types.Model{
		Name:       name,
		Host:       "127.0.0.1",
		Port:       19999,
		Backend:    types.BackendOllama,
		ModelName:  "qwen2:7b",
		Status:     types.EngineRed,
		WarmStatus: types.WarmCold,
	}
}

// Agent 一个绑定到指定模型的启用 Agent。
func Agent(name string, modelID uint) types.Agent {
	return types.Agent{
		Name:         name,
		ModelID:      modelID,
		SystemPrompt: "You are a helpful debater.",
		MaxTokens:    256,
		Temperature:  0.7,
		Status:       types.AgentReady,
	}
}

// SeedPair 落库一条模型与两个 Agent，返回 Agent 记录。
func SeedPair(t *testing.T, db *gorm.DB) (types.Agent, types.Agent) {
	t.Helper()

	model := GreenModel("pair-model")
	if err := db.Create(&model).Error; err != nil {
		t.Fatalf("failed to seed model: %v", err)
	}

	a1 := Agent("agent-one", model.ID)
	a2 := Agent("agent-two", model.ID)
	if err := db.Create(&a1).Error; err != nil {
		t.Fatalf("failed to seed agent1: %v", err)
	}
	if err := db.Create(&a2).Error; err != nil {
		t.Fatalf("failed to seed agent2: %v", err)
	}
	return a1, a2
}
