package notify

import (
	"sync"
	"time"

	"Sonara/logger"
)

// EventType 转码生命周期事件类型
type EventType string

const (
	EventStarted      EventType = "transcode:started"  // 任务开始执行
	EventProgress     EventType = "transcode:progress" // 单个档位的编码进度
	EventTierFinished EventType = "transcode:tier"     // 单个档位完成
	EventAllFinished  EventType = "transcode:done"     // 全部档位完成
	EventFailed       EventType = "transcode:error"    // 任务失败
)

// Event 推送给客户端的事件载荷
type Event struct {
	Type      EventType `json:"type"`
	TrackID   string    `json:"trackId"`
	Quality   string    `json:"quality,omitempty"`
	Elapsed   float64   `json:"elapsed,omitempty"` // 已编码媒体时长，秒
	Error     string    `json:"error,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// subscriberBuffer 每个订阅通道的缓冲大小
// 写满即丢弃，进度事件丢几条无所谓，客户端只关心最新状态
const subscriberBuffer = 16

// Notifier 按会话ID扇出任务生命周期事件
// 纯观测用途：没有订阅者时事件静默丢弃，不回放不补发
type Notifier struct {
	mu sync.RWMutex
	// 会话ID -> 订阅通道集合
	subscribers map[string][]chan Event
}

// NewNotifier 创建事件通知器
func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe 订阅某个会话的事件流
// 返回只读通道和取消函数；取消后通道关闭
func (n *Notifier) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	n.mu.Lock()
	n.subscribers[sessionID] = append(n.subscribers[sessionID], ch)
	total := len(n.subscribers[sessionID])
	n.mu.Unlock()

	logger.Debug("会话订阅转码事件",
		logger.String("sessionId", sessionID),
		logger.Int("totalSubscribers", total))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.remove(sessionID, ch)
		})
	}
	return ch, cancel
}

// Unsubscribe 移除某个会话的全部订阅并关闭其通道
func (n *Notifier) Unsubscribe(sessionID string) {
	n.mu.Lock()
	chans := n.subscribers[sessionID]
	delete(n.subscribers, sessionID)
	// 关闭必须和 Emit 的发送互斥，只在持有写锁时进行
	for _, ch := range chans {
		close(ch)
	}
	n.mu.Unlock()

	if len(chans) > 0 {
		logger.Debug("会话取消订阅转码事件",
			logger.String("sessionId", sessionID),
			logger.Int("closed", len(chans)))
	}
}

// Emit 向会话的所有订阅者发送事件
// sessionID 为空或无订阅者时静默丢弃；通道写满同样丢弃，绝不阻塞发布方
func (n *Notifier) Emit(sessionID string, ev Event) {
	if sessionID == "" {
		return
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	// 发送期间持有读锁：关闭通道只发生在持有写锁时，
	// 二者互斥，发送绝不会落在已关闭的通道上
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subscribers[sessionID] {
		select {
		case ch <- ev:
		default:
			// 订阅方消费太慢，丢弃本条
		}
	}
}

// remove 摘除并关闭单个订阅通道
// 通道只在仍登记在册时关闭一次，Unsubscribe 之后再 cancel 不会重复关闭
func (n *Notifier) remove(sessionID string, target chan Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	chans := n.subscribers[sessionID]
	for i, ch := range chans {
		if ch == target {
			n.subscribers[sessionID] = append(chans[:i], chans[i+1:]...)
			close(ch)
			break
		}
	}
	if len(n.subscribers[sessionID]) == 0 {
		delete(n.subscribers, sessionID)
	}
}

// SubscriberCount 返回某个会话当前的订阅者数量
func (n *Notifier) SubscriberCount(sessionID string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers[sessionID])
}
