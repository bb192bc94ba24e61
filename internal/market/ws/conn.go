package ws

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"quotehub.com/internal/market/wsmetrics"
)

// Conn 一个客户端连接。
// 行情走 LatestOnly：channel|kind|symbol -> 最新 payload，按首次入队顺序写出；
// 应答单独排队，不参与合并。
type Conn struct {
	id string
	ws *websocket.Conn

	mu      sync.Mutex
	ctrl    [][]byte
	latest  map[string][]byte
	order   []string
	notify  chan struct{} // 缓冲 1：合并唤醒
	closed  atomic.Bool
	dropped atomic.Int64 // 被新值覆盖掉的条数
}

func NewConn(id string, ws *websocket.Conn) *Conn {
	return &Conn{
		id:     id,
		ws:     ws,
		latest: make(map[string][]byte, 64),
		notify: make(chan struct{}, 1),
	}
}

func (c *Conn) ID() string { return c.id }

// Offer 非阻塞；同一个 key 还没写出时直接覆盖
func (c *Conn) Offer(channel, key string, payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	k := channel + "|" + key
	c.mu.Lock()
	if _, ok := c.latest[k]; ok {
		c.dropped.Add(1)
		wsmetrics.DroppedTotal.WithLabelValues("coalesced").Inc()
	} else {
		c.order = append(c.order, k)
	}
	c.latest[k] = payload
	c.mu.Unlock()
	c.wake()
	return true
}

// Reply 订阅应答，保证送达顺序
func (c *Conn) Reply(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	c.mu.Lock()
	c.ctrl = append(c.ctrl, payload)
	c.mu.Unlock()
	c.wake()
	return true
}

// Pending 待写出的条数
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ctrl) + len(c.order)
}

func (c *Conn) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// flush 先取应答，再按顺序取最多 max 条行情；还有剩余时再唤醒一次
func (c *Conn) flush(max int) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]byte, 0, min(len(c.ctrl)+len(c.order), max))
	out = append(out, c.ctrl...)
	c.ctrl = c.ctrl[:0]

	n := 0
	for _, k := range c.order {
		if len(out) >= max {
			break
		}
		out = append(out, c.latest[k])
		delete(c.latest, k)
		n++
	}
	c.order = append(c.order[:0], c.order[n:]...)
	if len(c.order) > 0 {
		c.wake()
	}
	return out
}

func (c *Conn) close() {
	c.closed.Store(true)
}
