package gateway

import (
	"context"
	"strings"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/subscription"
	"quotehub.com/internal/market/ws"
)

// SnapshotPattern 所有 market:{ac}:{dataType} 快照通知
const SnapshotPattern = "market:>"

// Resyncer 由 subscription.Engine 实现
type Resyncer interface {
	ApplySnapshot(ac model.AssetClass, kind subscription.ChannelKind, recs []model.Record) error
	Resync(ctx context.Context, ac model.AssetClass, kind subscription.ChannelKind) error
}

type Gateway struct {
	hub    *ws.Hub
	broker Broker
	engine Resyncer
	log    *zap.Logger
}

func NewGateway(hub *ws.Hub, broker Broker, engine Resyncer, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{hub: hub, broker: broker, engine: engine, log: log}
}

// Publish 缓存刷新后的快照通知发到 broker（单机=内存，多机=NATS），orchestrator 的 Notifier
func (g *Gateway) Publish(ctx context.Context, topic string, payload []byte) error {
	return g.broker.Publish(ctx, topic, payload)
}

// Run 订阅 broker 快照 -> 本地 hub 回放 + 引擎重算榜单频道的 symbol 集合
func (g *Gateway) Run(ctx context.Context) error {
	ch, err := g.Listen(ctx)
	if err != nil {
		return err
	}
	return g.Serve(ctx, ch)
}

// Listen 先挂上 broker 订阅，之后发布的快照不会丢；ctx 结束时订阅关闭
func (g *Gateway) Listen(ctx context.Context) (<-chan Message, error) {
	return g.broker.Subscribe(ctx, []string{SnapshotPattern})
}

// Serve 消费 Listen 拿到的快照通知，阻塞到 ctx 结束或订阅关闭
func (g *Gateway) Serve(ctx context.Context, ch <-chan Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			g.onSnapshot(ctx, m)
		}
	}
}

func (g *Gateway) onSnapshot(ctx context.Context, m Message) {
	ac, kind, ok := parseTopic(m.Topic)
	if !ok {
		return
	}
	frame, err := ws.EncodeSnapshot(m.Topic, m.Payload)
	if err != nil {
		g.log.Warn("encode snapshot", zap.String("topic", m.Topic), zap.Error(err))
		return
	}
	g.hub.PublishSnapshot(m.Topic, frame)

	// 通知本身带着快照，优先用它；解不开再回退到读缓存
	var recs []model.Record
	if err := json.Unmarshal(m.Payload, &recs); err == nil {
		err = g.engine.ApplySnapshot(ac, kind, recs)
		if err != nil {
			g.log.Warn("apply snapshot failed", zap.String("topic", m.Topic), zap.Error(err))
		}
		return
	}
	if err := g.engine.Resync(ctx, ac, kind); err != nil {
		g.log.Warn("resync channel failed", zap.String("topic", m.Topic), zap.Error(err))
	}
}

// Pump 引擎分发结果 -> hub
func (g *Gateway) Pump(ctx context.Context, in <-chan subscription.Broadcast) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			key, payload, err := ws.EncodeEvent(b.Channel, b.Event)
			if err != nil {
				g.log.Debug("encode event", zap.String("channel", b.Channel), zap.Error(err))
				continue
			}
			g.hub.Publish(b.Channel, key, payload)
		}
	}
}

// parseTopic 只认榜单类快照：market:{ac}:{most-active|gainers|losers|top-traded}
func parseTopic(topic string) (model.AssetClass, subscription.ChannelKind, bool) {
	parts := strings.Split(topic, ":")
	if len(parts) != 3 || parts[0] != "market" {
		return "", "", false
	}
	ac, err := model.ParseAssetClass(parts[1])
	if err != nil {
		return "", "", false
	}
	kind, err := subscription.ParseChannelKind(parts[2])
	if err != nil || !kind.Broadcast() {
		return "", "", false
	}
	return ac, kind, true
}
