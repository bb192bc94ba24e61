package ws

import (
	"sync"

	"quotehub.com/internal/market/wsmetrics"
)

const snapshotKey = "snapshot"

// Hub channel -> 连接集合；榜单频道保留最后一份快照，新加入的连接立即回放
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Conn]struct{}
	last map[string][]byte
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*Conn]struct{}, 1024),
		last: make(map[string][]byte, 64),
	}
}

func (h *Hub) Join(c *Conn, channels []string) {
	h.mu.Lock()
	for _, ch := range channels {
		set := h.subs[ch]
		if set == nil {
			set = make(map[*Conn]struct{}, 16)
			h.subs[ch] = set
		}
		set[c] = struct{}{}
	}
	// 快照在同一把锁里取，避免加入后立刻 publish 却拿不到
	type snap struct {
		channel string
		data    []byte
	}
	snaps := make([]snap, 0, len(channels))
	for _, ch := range channels {
		if b := h.last[ch]; b != nil {
			snaps = append(snaps, snap{ch, b})
		}
	}
	h.mu.Unlock()

	for _, s := range snaps {
		c.Offer(s.channel, snapshotKey, s.data)
	}
}

func (h *Hub) Leave(c *Conn, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		if set := h.subs[ch]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, ch)
			}
		}
	}
}

func (h *Hub) RemoveConn(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, ch)
		}
	}
}

// Publish 推流事件：对每个连接非阻塞 Offer，慢客户端只会丢中间值
func (h *Hub) Publish(channel, key string, payload []byte) {
	h.fanout(channel, key, payload)
}

// PublishSnapshot 记下最新快照再广播
func (h *Hub) PublishSnapshot(channel string, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	h.mu.Lock()
	h.last[channel] = cp
	h.mu.Unlock()
	h.fanout(channel, snapshotKey, cp)
}

// Last 某频道最后一份快照
func (h *Hub) Last(channel string) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last[channel]
}

// Subscribers 频道当前连接数
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

func (h *Hub) fanout(channel, key string, payload []byte) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.subs[channel]))
	for c := range h.subs[channel] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		wsmetrics.DroppedTotal.WithLabelValues("no_subscriber").Inc()
		return
	}
	for _, c := range conns {
		if !c.Offer(channel, key, payload) {
			wsmetrics.DroppedTotal.WithLabelValues("closed").Inc()
		}
	}
}
