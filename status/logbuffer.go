package status

import (
	"fmt"
	"sync"
	"time"
)

// logCapacity 每个模型保留的最近日志条数。
const logCapacity = 50

// LogEntry 一条带时间戳的状态日志。
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Line      string    `json:"line"`
}

// LogBuffer 按模型 key 维护定长环形日志，供前端状态面板拉取。
// 所有方法并发安全；超出容量时丢弃最旧的条目。
type LogBuffer struct {
	mu      sync.Mutex
	entries map[string][]LogEntry
}

// NewLogBuffer 创建空日志环。
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{entries: make(map[string][]LogEntry)}
}

// Append 追加一条日志。
func (b *LogBuffer) Append(key, format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := append(b.entries[key], LogEntry{
		Timestamp: time.Now().UTC(),
		Line:      fmt.Sprintf(format, args...),
	})
	if len(ring) > logCapacity {
		ring = ring[len(ring)-logCapacity:]
	}
	b.entries[key] = ring
}

// Tail 返回 key 下最近的日志副本（时间升序）。
func (b *LogBuffer) Tail(key string) []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := b.entries[key]
	out := make([]LogEntry, len(ring))
	copy(out, ring)
	return out
}

// Clear 清空 key 下的日志。
func (b *LogBuffer) Clear(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}
