// =============================================================================
// BenchDuo Backend Connector Contract
// =============================================================================
// A Connector translates one chat exchange into a single REST call against a
// local/remote inference backend and extracts the assistant text. Connectors
// carry no orchestration logic: one call, one attempt, explicit errors.
// =============================================================================

package connector

import (
	"context"
	"time"
)

// Role constants for chat messages sent to a backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single message in a backend chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatSettings carries per-call generation parameters.
// Unset fields fall back to connector defaults.
type ChatSettings struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Seed        *int64        `json:"seed,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// ProbeStatus is the result of a successful backend probe.
type ProbeStatus struct {
	OK       bool          `json:"ok"`
	Backend  string        `json:"backend"`
	Endpoint string        `json:"endpoint,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// Connector is the capability interface over a configured backend.
// All methods are synchronous and blocking; any network or protocol
// failure is returned as a *types.Error with a connectivity code.
type Connector interface {
	// Probe checks backend availability and returns status metadata.
	Probe(ctx context.Context) (*ProbeStatus, error)

	// ListModels returns the identifiers currently known to the backend.
	ListModels(ctx context.Context) ([]string, error)

	// Chat runs one chat completion and returns the assistant text.
	Chat(ctx context.Context, messages []ChatMessage, settings ChatSettings) (string, error)

	// Name returns the backend kind identifier (e.g. "ollama").
	Name() string
}
