package types

import "time"

// BatchStatus 表示批量任务的生命周期状态。
// queued → running → {completed | cancelled | failed}，终态不可再变。
type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
	BatchFailed    BatchStatus = "failed"
)

// Terminal 返回该状态是否为终态。
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchCancelled, BatchFailed:
		return true
	}
	return false
}

// BatchJob 是"以相同配对/提示词/TTL 重复执行 N 场对话"的批量任务。
//
// CompletedRuns 是断点续跑的唯一事实来源：重新提交非终态任务时
// 从 CompletedRuns 继续，绝不重跑已完成的轮次，也不跳过轮次。
// CancelRequested 是粘性布尔，仅在轮次边界生效。
type BatchJob struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Agent1ID uint   `json:"agent1_id" gorm:"not null"`
	Agent2ID uint   `json:"agent2_id" gorm:"not null"`
	Prompt   string `json:"prompt" gorm:"type:text;not null"`
	TTL      int    `json:"ttl" gorm:"not null"`
	NumRuns  int    `json:"num_runs" gorm:"not null"`
	Seed     *int64 `json:"seed,omitempty"`

	Status          BatchStatus `json:"status" gorm:"size:16;default:queued;index"`
	CompletedRuns   int         `json:"completed_runs" gorm:"default:0"`
	CancelRequested bool        `json:"cancel_requested" gorm:"default:false"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// 汇总统计：随每轮提交原子累加。
	TotalElapsedSeconds float64 `json:"total_elapsed_seconds" gorm:"default:0"`
	TotalTokens         int64   `json:"total_tokens" gorm:"default:0"`
	TotalMessages       int64   `json:"total_messages" gorm:"default:0"`
	ConversationIDs     []uint  `json:"conversation_ids" gorm:"serializer:json"`
	ErrorMessage        string  `json:"error_message,omitempty" gorm:"size:2048"`
}

// EvaluationStatus 表示评估任务的生命周期状态。
type EvaluationStatus string

const (
	EvaluationPending   EvaluationStatus = "pending"
	EvaluationRunning   EvaluationStatus = "running"
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationFailed    EvaluationStatus = "failed"
)

// JudgeResult 是单个裁判模型对一场对话的归一化评审结果。
// 解析失败的裁判记 ParseFailed=true，贡献零问题与空分数，不中断整体评估。
type JudgeResult struct {
	JudgeModelID    uint         `json:"judge_model_id"`
	JudgeModelName  string       `json:"judge_model_name"`
	Issues          []JudgeIssue `json:"issues"`
	CompletionScore *float64     `json:"completion_score,omitempty"`
	RealisticScore  *float64     `json:"realistic_score,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	ParseFailed     bool         `json:"parse_failed,omitempty"`
}

// JudgeIssue 是裁判标记的一处问题。
type JudgeIssue struct {
	MessageIndex int    `json:"message_index"`
	Category     string `json:"category"`
	Excerpt      string `json:"excerpt"`
	Severity     int    `json:"severity"`
	JudgeModelID uint   `json:"judge_model_id,omitempty"`
}

// AggregateReport 是评估任务的最终汇总报告。
type AggregateReport struct {
	Summary         string        `json:"summary"`
	OverallScore    float64       `json:"overall_score"`
	TotalIssues     int           `json:"total_issues"`
	HighestSeverity int           `json:"highest_severity"`
	CompletionScore float64       `json:"completion_score"`
	RealisticScore  float64       `json:"realistic_score"`
	Flagged         []JudgeIssue  `json:"flagged_instances"`
	FlaggedLines    []FlaggedLine `json:"flagged_lines,omitempty"`
	Scores          *ScoreBlock   `json:"scores,omitempty"`
	Source          string        `json:"source,omitempty"` // "aggregator" 或 "code"
}

// ScoreBlock 把关键分数聚合成前端直接消费的结构。
type ScoreBlock struct {
	Overall         float64 `json:"overall"`
	Completion      float64 `json:"completion"`
	Realistic       float64 `json:"realistic"`
	HighestSeverity int     `json:"highest_severity"`
}

// FlaggedLine 将问题定位回具体消息（索引 + 消息 ID）。
type FlaggedLine struct {
	MessageID    uint   `json:"message_id"`
	MessageIndex int    `json:"message_index"`
	Reason       string `json:"reason"`
	Excerpt      string `json:"excerpt"`
	Severity     int    `json:"severity"`
}

// EvaluationJob 是针对一场已完成对话的质量评估任务。
// 引用但不拥有其 Conversation。
type EvaluationJob struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ConversationID uint   `json:"conversation_id" gorm:"index;not null"`
	MainModelID    uint   `json:"main_model_id" gorm:"not null"`
	JudgeModelIDs  []uint `json:"judge_model_ids" gorm:"serializer:json"`

	Status       EvaluationStatus `json:"status" gorm:"size:16;default:pending"`
	JudgeResults []JudgeResult    `json:"judge_results,omitempty" gorm:"serializer:json"`
	Report       *AggregateReport `json:"report,omitempty" gorm:"serializer:json"`
	ErrorMessage string           `json:"error_message,omitempty" gorm:"size:2048"`
}
