package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// writeTimeout 单个观众连接的写超时，超时即判定为慢消费者并踢出。
const writeTimeout = 5 * time.Second

// envelope 是 websocket 上的统一事件封包。
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// viewer 一条观众连接。写操作通过 mutex 保护，
// 因为 WebSocket 不支持并发写。
type viewer struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (v *viewer) send(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return v.conn.Write(ctx, websocket.MessageText, data)
}

// Hub 把对话进度事件送达观众：带会话 id 的事件只投递给该会话，
// 其余扇出到全部观众。发布方从不因慢消费者阻塞：写失败的连接被直接摘除。
type Hub struct {
	mu      sync.RWMutex
	viewers map[string]*viewer
	logger  *zap.Logger
}

// NewHub 创建事件中枢。
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		viewers: make(map[string]*viewer),
		logger:  logger.With(zap.String("component", "broadcast_hub")),
	}
}

// ServeHTTP 将 HTTP 请求升级为 websocket 观众连接，并保持到对端断开。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	v := &viewer{id: uuid.NewString(), conn: conn}
	h.add(v)
	h.logger.Info("viewer connected", zap.String("viewer_id", v.id))

	// 先下发会话 id，客户端开局时用它定向接收事件。
	if err := v.send(envelope{Type: EventConnected, Data: map[string]string{"viewerId": v.id}}); err != nil {
		h.remove(v.id)
		conn.Close(websocket.StatusPolicyViolation, "write failed")
		return
	}

	// 观众只收不发；读循环只为感知断开。
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			break
		}
	}

	h.remove(v.id)
	conn.Close(websocket.StatusNormalClosure, "bye")
	h.logger.Info("viewer disconnected", zap.String("viewer_id", v.id))
}

func (h *Hub) add(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewers[v.id] = v
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.viewers, id)
}

// ViewerCount 返回当前观众数。
func (h *Hub) ViewerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// PublishTurn 实现 Broadcaster。
func (h *Hub) PublishTurn(ev TurnEvent) {
	h.publish(envelope{Type: EventTurn, Data: ev}, ev.ViewerID)
}

// PublishEnd 实现 Broadcaster。
func (h *Hub) PublishEnd(ev EndEvent) {
	h.publish(envelope{Type: EventEnd, Data: ev}, ev.ViewerID)
}

// publish 把事件送达目标观众。viewerID 非空时只投递给该会话，
// 会话已断开则静默丢弃；为空时扇出给全部观众。
func (h *Hub) publish(env envelope, viewerID string) {
	h.mu.RLock()
	targets := make([]*viewer, 0, len(h.viewers))
	if viewerID != "" {
		if v, ok := h.viewers[viewerID]; ok {
			targets = append(targets, v)
		}
	} else {
		for _, v := range h.viewers {
			targets = append(targets, v)
		}
	}
	h.mu.RUnlock()

	for _, v := range targets {
		if err := v.send(env); err != nil {
			h.logger.Warn("dropping slow viewer",
				zap.String("viewer_id", v.id), zap.Error(err))
			h.remove(v.id)
			v.conn.Close(websocket.StatusPolicyViolation, "write failed")
		}
	}
}

// Recorder 记录所有事件，供测试断言事件流。
type Recorder struct {
	mu    sync.Mutex
	Turns []TurnEvent
	Ends  []EndEvent
}

func (r *Recorder) PublishTurn(ev TurnEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Turns = append(r.Turns, ev)
}

func (r *Recorder) PublishEnd(ev EndEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Ends = append(r.Ends, ev)
}

// Snapshot 返回事件副本。
func (r *Recorder) Snapshot() ([]TurnEvent, []EndEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := make([]TurnEvent, len(r.Turns))
	copy(turns, r.Turns)
	ends := make([]EndEvent, len(r.Ends))
	copy(ends, r.Ends)
	return turns, ends
}
