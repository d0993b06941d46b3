package types

import (
	"fmt"
	"time"
)

// AgentState 表示 Agent 的启用状态（持久化字段）。
type AgentState string

const (
	AgentReady    AgentState = "ready"
	AgentDisabled AgentState = "disabled"
)

// AgentReadiness 是状态机输出的就绪判定（派生值，不持久化）。
type AgentReadiness string

const (
	ReadinessReady          AgentReadiness = "ready"
	ReadinessPartiallyReady AgentReadiness = "partially_ready"
	ReadinessNotReady       AgentReadiness = "not_ready"
	ReadinessDisabled       AgentReadiness = "disabled"
)

// StatusColor 将就绪判定映射为 UI 颜色。
func (r AgentReadiness) StatusColor() string {
	switch r {
	case ReadinessReady:
		return "green"
	case ReadinessPartiallyReady:
		return "yellow"
	case ReadinessDisabled:
		return "gray"
	default:
		return "red"
	}
}

// Agent 是绑定到一个 Model 的对话角色。
// 名称全局唯一；由其 Model 独占拥有（外键级联删除）。
type Agent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name         string     `json:"name" gorm:"uniqueIndex;size:255;not null"`
	ModelID      uint       `json:"model_id" gorm:"not null"`
	Model        *Model     `json:"-" gorm:"foreignKey:ModelID"`
	SystemPrompt string     `json:"system_prompt" gorm:"type:text"`
	MaxTokens    int        `json:"max_tokens" gorm:"not null"`
	Temperature  float64    `json:"temperature" gorm:"not null"`
	Status       AgentState `json:"status" gorm:"size:16;default:ready"`
}

// Enabled 返回 Agent 是否处于启用状态。
func (a *Agent) Enabled() bool {
	return a.Status != AgentDisabled
}

func addrOf(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
