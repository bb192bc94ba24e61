package gateway

import (
	"context"
	"strings"
	"sync"
)

type memSub struct {
	topics []string
	ch     chan Message
}

// MemBroker 单进程广播，没有配置 NATS 时使用
type MemBroker struct {
	mu   sync.RWMutex
	subs map[*memSub]struct{}
}

func NewMemBroker() *MemBroker {
	return &MemBroker{subs: make(map[*memSub]struct{})}
}

func (b *MemBroker) Publish(_ context.Context, topic string, payload []byte) error {
	msg := Message{Topic: topic, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	// fanout：at-most-once，慢订阅者直接丢
	for s := range b.subs {
		if !s.matches(topic) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	s := &memSub{topics: append([]string(nil), topics...), ch: make(chan Message, 4096)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}()
	return s.ch, nil
}

func (b *MemBroker) Close() error { return nil }

func (s *memSub) matches(topic string) bool {
	for _, p := range s.topics {
		if Match(p, topic) {
			return true
		}
	}
	return false
}

// Match 'market:>' 匹配 'market:equity:gainers'；'*' 匹配单段
func Match(pattern, topic string) bool {
	ps := strings.Split(pattern, ":")
	ts := strings.Split(topic, ":")
	for i, p := range ps {
		if p == ">" {
			return i < len(ts)
		}
		if i >= len(ts) {
			return false
		}
		if p != "*" && p != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}
