package alpaca

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/internal/market/stream"
)

type subOp struct {
	action  string // subscribe | unsubscribe
	symbols []string
	kinds   []model.StreamKind
}

type subMsg struct {
	Action string   `json:"action"`
	Trades []string `json:"trades,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
	Bars   []string `json:"bars,omitempty"`
}

// Stream Alpaca 实时行情（trades / quotes / minute bars）
type Stream struct {
	url    string
	key    string
	secret string

	ReadLimit int64
	PongWait  time.Duration
	WriteWait time.Duration
	Dialer    *websocket.Dialer

	out     chan model.Event
	outbox  *stream.Outbox[subOp]
	desired func() []model.Interest
	runner  *stream.Runner
	log     *zap.Logger
}

func NewStream(cfg Config, log *zap.Logger) *Stream {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{
		url:       cfg.StreamURL,
		key:       cfg.Key,
		secret:    cfg.Secret,
		ReadLimit: 1 << 20,
		PongWait:  60 * time.Second,
		WriteWait: 5 * time.Second,
		Dialer:    websocket.DefaultDialer,
		out:       make(chan model.Event, 4096),
		outbox:    stream.NewOutbox[subOp](),
		desired:   func() []model.Interest { return nil },
		runner:    stream.NewRunner(log),
		log:       log,
	}
}

func (s *Stream) Name() string                 { return Name }
func (s *Stream) AssetClass() model.AssetClass { return model.Equity }
func (s *Stream) Events() <-chan model.Event   { return s.out }

func (s *Stream) BindDesired(fn func() []model.Interest) { s.desired = fn }

func (s *Stream) Subscribe(symbols []string, kinds []model.StreamKind, _ model.Timeframe) {
	s.outbox.Push(subOp{action: "subscribe", symbols: symbols, kinds: kinds})
}

func (s *Stream) Unsubscribe(symbols []string, kinds []model.StreamKind) {
	s.outbox.Push(subOp{action: "unsubscribe", symbols: symbols, kinds: kinds})
}

// Run 带重连，阻塞到 ctx 结束
func (s *Stream) Run(ctx context.Context) error {
	return s.runner.Run(ctx, s)
}

// RunOnce 一次连接生命周期（不做重连；重连交给 Runner）
func (s *Stream) RunOnce(ctx context.Context) error {
	c, _, err := s.Dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	c.SetReadLimit(s.ReadLimit)
	_ = c.SetReadDeadline(time.Now().Add(s.PongWait))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(s.PongWait))
		return nil
	})

	if err := s.authenticate(c); err != nil {
		return err
	}

	// 先清掉积压再取 desired：之后的增量都会进 outbox
	s.outbox.Reset()
	for _, m := range replayMessages(s.desired()) {
		if err := s.write(c, m); err != nil {
			return err
		}
	}
	s.log.Info("alpaca stream connected", zap.String("url", s.url))

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writeLoop(wctx, c) }()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			cancel()
			<-writeErr
			return err
		}
		_ = c.SetReadDeadline(time.Now().Add(s.PongWait))

		events, ctrl, err := decode(msg)
		if err != nil {
			s.log.Debug("alpaca decode", zap.Error(err))
			continue
		}
		for _, h := range ctrl {
			if h.T == "error" {
				s.log.Warn("alpaca stream error", zap.Int("code", h.Code), zap.String("msg", h.Msg))
			}
		}
		for _, ev := range events {
			if !stream.Emit(ctx, s.out, Name, ev) {
				cancel()
				<-writeErr
				return ctx.Err()
			}
		}
	}
}

func (s *Stream) authenticate(c *websocket.Conn) error {
	// 连上先收到 [{"T":"success","msg":"connected"}]
	if _, _, err := c.ReadMessage(); err != nil {
		return err
	}
	if err := s.write(c, map[string]string{"action": "auth", "key": s.key, "secret": s.secret}); err != nil {
		return err
	}
	_, msg, err := c.ReadMessage()
	if err != nil {
		return err
	}
	_, ctrl, err := decode(msg)
	if err != nil {
		return err
	}
	for _, h := range ctrl {
		if h.T == "success" && h.Msg == "authenticated" {
			return nil
		}
		if h.T == "error" {
			return fmt.Errorf("alpaca auth: %d %s", h.Code, h.Msg)
		}
	}
	return errors.New("alpaca auth: unexpected response")
}

func (s *Stream) writeLoop(ctx context.Context, c *websocket.Conn) error {
	ping := time.NewTicker(s.PongWait * 9 / 10)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			// 让阻塞中的 ReadMessage 立刻返回
			_ = c.Close()
			return ctx.Err()
		case <-s.outbox.Notify():
			for _, op := range s.outbox.Drain() {
				if err := s.write(c, toSubMsg(op.action, op.symbols, op.kinds)); err != nil {
					_ = c.Close()
					return err
				}
			}
		case <-ping.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.WriteWait)); err != nil {
				_ = c.Close()
				return err
			}
		}
	}
}

func (s *Stream) write(c *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = c.SetWriteDeadline(time.Now().Add(s.WriteWait))
	return c.WriteMessage(websocket.TextMessage, b)
}

func toSubMsg(action string, symbols []string, kinds []model.StreamKind) subMsg {
	m := subMsg{Action: action}
	for _, k := range kinds {
		switch k {
		case model.KindTrade:
			m.Trades = symbols
		case model.KindTicker:
			m.Quotes = symbols
		case model.KindCandle:
			m.Bars = symbols
		}
	}
	return m
}

// replayMessages 按 kind 组合分组，相同组合的 symbol 合成一条 subscribe
func replayMessages(desired []model.Interest) []subMsg {
	groups := make(map[string]*subOp)
	order := make([]string, 0, 4)
	for _, in := range desired {
		kinds := stream.KindSet(in.Kinds)
		if len(kinds) == 0 {
			continue
		}
		key := fmt.Sprint(kinds)
		g, ok := groups[key]
		if !ok {
			g = &subOp{action: "subscribe", kinds: kinds}
			groups[key] = g
			order = append(order, key)
		}
		g.symbols = append(g.symbols, in.Symbol)
	}
	out := make([]subMsg, 0, len(order))
	for _, k := range order {
		g := groups[k]
		out = append(out, toSubMsg(g.action, g.symbols, g.kinds))
	}
	return out
}

// decode 一帧是一个数组；控制消息放 ctrl，行情转成 Event
func decode(b []byte) ([]model.Event, []streamHeader, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, nil, err
	}
	var events []model.Event
	var ctrl []streamHeader
	for _, raw := range raws {
		var h streamHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			continue
		}
		switch h.T {
		case "t":
			var t streamTrade
			if json.Unmarshal(raw, &t) != nil {
				continue
			}
			events = append(events, model.Event{Kind: model.KindTrade, Record: model.Record{
				Asset: equityAsset(t.S, "", ""),
				Trade: &model.Trade{ID: fmt.Sprint(t.I), Price: t.P, Size: t.Z, Timestamp: parseMillis(t.T)},
			}})
		case "q":
			var q streamQuote
			if json.Unmarshal(raw, &q) != nil {
				continue
			}
			price := q.AP
			if price.IsZero() {
				price = q.BP
			}
			events = append(events, model.Event{Kind: model.KindTicker, Record: model.Record{
				Asset:  equityAsset(q.S, "", ""),
				Ticker: &model.Ticker{Price: price, Timestamp: parseMillis(q.T)},
			}})
		case "b":
			var bar streamBar
			if json.Unmarshal(raw, &bar) != nil {
				continue
			}
			events = append(events, model.Event{Kind: model.KindCandle, Record: model.Record{
				Asset: equityAsset(bar.S, "", ""),
				Candle: &model.Candle{
					Timeframe:  model.TF1Min,
					Open:       bar.O,
					High:       bar.H,
					Low:        bar.L,
					Close:      bar.C,
					Volume:     bar.V,
					TradeCount: bar.N,
					Start:      parseMillis(bar.T),
				},
			}})
		default:
			ctrl = append(ctrl, h)
		}
	}
	return events, ctrl, nil
}

var _ provider.StreamProvider = (*Stream)(nil)
