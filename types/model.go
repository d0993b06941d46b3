package types

import "time"

// BackendKind 表示推理后端类型。
type BackendKind string

const (
	BackendOllama   BackendKind = "ollama"
	BackendMLX      BackendKind = "mlx"
	BackendTensorRT BackendKind = "tensorrt"
)

// Valid 检查后端类型是否受支持。
func (k BackendKind) Valid() bool {
	switch k {
	case BackendOllama, BackendMLX, BackendTensorRT:
		return true
	}
	return false
}

// NormalizeBackendKind 归一化后端标识（tensorrt_llm / tensorrt-llm 等同 tensorrt）。
func NormalizeBackendKind(s string) (BackendKind, bool) {
	switch s {
	case "ollama":
		return BackendOllama, true
	case "mlx":
		return BackendMLX, true
	case "tensorrt", "tensorrt_llm", "tensorrt-llm":
		return BackendTensorRT, true
	}
	return "", false
}

// EngineStatus 表示引擎可达性状态（红绿灯）。
type EngineStatus string

const (
	EngineGreen  EngineStatus = "green"
	EngineYellow EngineStatus = "yellow"
	EngineRed    EngineStatus = "red"
)

// WarmStatus 表示模型权重在引擎内的加载状态。
type WarmStatus string

const (
	WarmCold    WarmStatus = "cold"
	WarmLoading WarmStatus = "loading"
	WarmWarm    WarmStatus = "warm"
	WarmError   WarmStatus = "error"
)

// LoadState 是状态机输出的加载判定。
type LoadState string

const (
	LoadStateNotPresent LoadState = "not_present"
	LoadStateCold       LoadState = "cold"
	LoadStateWarm       LoadState = "warm"
)

// Model 是一条推理后端注册记录。
// 名称全局唯一；删除时级联删除其下所有 Agent。
type Model struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string      `json:"name" gorm:"uniqueIndex;size:255;not null"`
	Host          string      `json:"host" gorm:"size:255;not null"`
	Port          int         `json:"port" gorm:"not null"`
	Backend       BackendKind `json:"backend" gorm:"size:32;not null"`
	ModelName     string      `json:"model_name" gorm:"size:255;not null"`
	SelectedModel string      `json:"selected_model,omitempty" gorm:"size:255"`

	Status     EngineStatus `json:"status" gorm:"size:16;default:red"`
	WarmStatus WarmStatus   `json:"warm_status" gorm:"size:16;default:cold"`

	LastWarmedAt      *time.Time `json:"last_warmed_at,omitempty"`
	LastLoadAttemptAt *time.Time `json:"last_load_attempt_at,omitempty"`
	LastLoadMessage   string     `json:"last_load_message,omitempty" gorm:"size:1024"`
	LastEngineCheckAt *time.Time `json:"last_engine_check_at,omitempty"`
	LastEngineMessage string     `json:"last_engine_message,omitempty" gorm:"size:1024"`

	Agents []Agent `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// TargetModel 返回实际用于推理的模型标识（SelectedModel 优先）。
func (m *Model) TargetModel() string {
	if m.SelectedModel != "" {
		return m.SelectedModel
	}
	return m.ModelName
}

// Addr 返回 host:port 形式的引擎地址。
func (m *Model) Addr() string {
	return addrOf(m.Host, m.Port)
}
