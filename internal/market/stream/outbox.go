package stream

import "sync"

// Outbox 订阅变更的待发队列。Push 从不阻塞（引擎持锁调用），
// 写协程收到 Notify 后 Drain 出来发给上游。
type Outbox[T any] struct {
	mu      sync.Mutex
	pending []T
	notify  chan struct{} // 缓冲 1：合并唤醒
}

func NewOutbox[T any]() *Outbox[T] {
	return &Outbox[T]{notify: make(chan struct{}, 1)}
}

func (o *Outbox[T]) Push(v T) {
	o.mu.Lock()
	o.pending = append(o.pending, v)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *Outbox[T]) Notify() <-chan struct{} { return o.notify }

func (o *Outbox[T]) Drain() []T {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	return out
}

// Reset 丢掉积压；重连后会按 desired 全量回放，旧的增量没有意义
func (o *Outbox[T]) Reset() {
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	select {
	case <-o.notify:
	default:
	}
}
