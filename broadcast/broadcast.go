// =============================================================================
// BenchDuo Event Broadcasting
// =============================================================================
// The duel engine and batch scheduler publish progress events through the
// Broadcaster interface. The websocket hub in hub.go is the production
// implementation; tests inject Recorder to assert on the event stream.
// =============================================================================

package broadcast

// Event type discriminators carried in the websocket envelope.
const (
	EventConnected = "connected"
	EventTurn      = "turn"
	EventEnd       = "end"
)

// TurnEvent is published after each persisted conversation turn.
// ViewerID is addressing metadata, not payload: when set, only that
// viewer session receives the event; when empty, all viewers do.
type TurnEvent struct {
	ConversationID uint   `json:"conversationId"`
	Sender         string `json:"sender"`
	Text           string `json:"text"`
	Done           bool   `json:"done"`
	ViewerID       string `json:"-"`
}

// ConversationStats summarizes a finished conversation.
type ConversationStats struct {
	Messages        int     `json:"messages"`
	Tokens          int     `json:"tokens"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

// EndEvent is published exactly once when a conversation terminates.
// ViewerID addresses a single viewer session; empty means broadcast.
type EndEvent struct {
	ConversationID uint              `json:"conversationId"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Stats          ConversationStats `json:"stats"`
	ViewerID       string            `json:"-"`
}

// Broadcaster delivers progress events to connected viewers.
// Implementations must be safe for concurrent use and must never block
// the publisher on a slow consumer.
type Broadcaster interface {
	PublishTurn(ev TurnEvent)
	PublishEnd(ev EndEvent)
}

// Nop discards all events.
type Nop struct{}

func (Nop) PublishTurn(TurnEvent) {}
func (Nop) PublishEnd(EndEvent)   {}
