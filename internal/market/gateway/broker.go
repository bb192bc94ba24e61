package gateway

import "context"

type Message struct {
	Topic   string
	Payload []byte
}

// Broker 快照通知的发布/订阅。topic 用 ':' 分段，末段 '>' 表示匹配剩余所有段
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// 订阅，ctx 结束时取消并关闭返回的 channel
	Subscribe(ctx context.Context, topics []string) (<-chan Message, error)
	Close() error
}
