package types

import "time"

// ConversationStatus 表示一场对话的生命周期状态。
type ConversationStatus string

const (
	ConversationPending  ConversationStatus = "pending"
	ConversationRunning  ConversationStatus = "running"
	ConversationFinished ConversationStatus = "finished"
)

// SenderRole 表示消息发送方角色。
type SenderRole string

const (
	SenderUser   SenderRole = "user"
	SenderAgent1 SenderRole = "agent1"
	SenderAgent2 SenderRole = "agent2"
)

// Conversation 是两个 Agent 之间的一场对局。
// TTL 是回合预算（>=1）；RandomSeed 用于可复现实验（可空）。
// 消息按插入顺序即对话顺序，由 Conversation 独占拥有（级联删除）。
type Conversation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Agent1ID uint   `json:"agent1_id" gorm:"not null"`
	Agent1   *Agent `json:"-" gorm:"foreignKey:Agent1ID"`
	Agent2ID uint   `json:"agent2_id" gorm:"not null"`
	Agent2   *Agent `json:"-" gorm:"foreignKey:Agent2ID"`

	TTL        int                `json:"ttl" gorm:"not null"`
	RandomSeed *int64             `json:"random_seed,omitempty"`
	Status     ConversationStatus `json:"status" gorm:"size:16;default:pending"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`

	Messages []Message `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// Message 是对话中的一条发言。写入后不可变，对其 Conversation 仅追加。
type Message struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ConversationID uint       `json:"conversation_id" gorm:"index;not null"`
	SenderRole     SenderRole `json:"sender_role" gorm:"size:16;not null"`
	AgentID        *uint      `json:"agent_id,omitempty"`
	Content        string     `json:"content" gorm:"type:text"`
	Tokens         int        `json:"tokens"`
	RawResponse    string     `json:"-" gorm:"type:text"`
}
