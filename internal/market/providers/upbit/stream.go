package upbit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/internal/market/stream"
)

// Stream Upbit 实时行情。
// Upbit 每次发送订阅都会整体替换当前订阅，所以这里不发增量，
// 每次变更都按 desired 重发全量。
type Stream struct {
	url string

	PingEvery   time.Duration
	ReadTimeout time.Duration
	WriteWait   time.Duration

	out     chan model.Event
	changed *stream.Outbox[struct{}]
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
		url:         cfg.StreamURL,
		PingEvery:   20 * time.Second,
		ReadTimeout: 60 * time.Second,
		WriteWait:   2 * time.Second,
		out:         make(chan model.Event, 4096),
		changed:     stream.NewOutbox[struct{}](),
		desired:     func() []model.Interest { return nil },
		runner:      stream.NewRunner(log),
		log:         log,
	}
}

func (s *Stream) Name() string                 { return Name }
func (s *Stream) AssetClass() model.AssetClass { return model.Crypto }
func (s *Stream) Events() <-chan model.Event   { return s.out }

func (s *Stream) BindDesired(fn func() []model.Interest) { s.desired = fn }

func (s *Stream) Subscribe([]string, []model.StreamKind, model.Timeframe) { s.changed.Push(struct{}{}) }
func (s *Stream) Unsubscribe([]string, []model.StreamKind)                { s.changed.Push(struct{}{}) }

func (s *Stream) Run(ctx context.Context) error {
	return s.runner.Run(ctx, s)
}

// RunOnce 没有任何订阅时不建连，等到有订阅再拨号；订阅清空后主动断开
func (s *Stream) RunOnce(ctx context.Context) error {
	s.changed.Reset()
	payload, ok := buildPayload(s.desired())
	for !ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.changed.Notify():
			s.changed.Drain()
			payload, ok = buildPayload(s.desired())
		}
	}

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	conn, _, err := websocket.Dial(dctx, s.url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	if err := s.write(ctx, conn, payload); err != nil {
		return err
	}
	s.log.Info("upbit stream connected", zap.String("url", s.url))

	errCh := make(chan error, 1)
	go func() { errCh <- s.readLoop(ctx, conn) }()

	ping := time.NewTicker(s.PingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-s.changed.Notify():
			s.changed.Drain()
			payload, ok := buildPayload(s.desired())
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "idle")
				return nil
			}
			if err := s.write(ctx, conn, payload); err != nil {
				return err
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, s.WriteWait)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		rctx, cancel := context.WithTimeout(ctx, s.ReadTimeout)
		_, raw, err := conn.Read(rctx)
		cancel()
		if err != nil {
			return err
		}
		ev, ok, err := decode(raw)
		if err != nil {
			s.log.Warn("upbit stream message", zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if !stream.Emit(ctx, s.out, Name, ev) {
			return ctx.Err()
		}
	}
}

func (s *Stream) write(ctx context.Context, conn *websocket.Conn, payload []byte) error {
	wctx, cancel := context.WithTimeout(ctx, s.WriteWait)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

// buildPayload 把 desired 转成一条完整订阅；集合为空返回 ok=false
//
//	[{"ticket":"..."},{"type":"ticker","codes":[...]},{"type":"trade","codes":[...]},{"type":"candle.1m","codes":[...]},{"format":"DEFAULT"}]
func buildPayload(desired []model.Interest) ([]byte, bool) {
	byKind := map[model.StreamKind][]string{}
	for _, in := range desired {
		for _, k := range stream.KindSet(in.Kinds) {
			byKind[k] = append(byKind[k], toMarket(in.Symbol))
		}
	}
	if len(byKind) == 0 {
		return nil, false
	}

	msg := []any{map[string]string{"ticket": "quotehub-" + uuid.NewString()}}
	for _, k := range []model.StreamKind{model.KindTicker, model.KindTrade, model.KindCandle} {
		codes, ok := byKind[k]
		if !ok {
			continue
		}
		msg = append(msg, map[string]any{"type": upbitType(k), "codes": codes})
	}
	msg = append(msg, map[string]string{"format": "DEFAULT"})

	b, err := json.Marshal(msg)
	if err != nil {
		return nil, false
	}
	return b, true
}

func upbitType(k model.StreamKind) string {
	switch k {
	case model.KindTrade:
		return "trade"
	case model.KindCandle:
		return "candle.1m"
	}
	return "ticker"
}

var errStreamError = errors.New("upbit stream error")

// decode 单条消息 -> Event；状态帧（{"status":"UP"}）返回 ok=false
func decode(raw []byte) (model.Event, bool, error) {
	var m streamMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.Event{}, false, err
	}
	if m.Error != nil {
		return model.Event{}, false, errors.Join(errStreamError, errors.New(m.Error.Name+": "+m.Error.Message))
	}

	asset := cryptoAsset(toSymbol(m.Code))
	switch m.Type {
	case "ticker":
		return model.Event{Kind: model.KindTicker, Record: model.Record{
			Asset: asset,
			Ticker: &model.Ticker{
				Price:         m.TradePrice,
				Change:        m.SignedChangePrice,
				ChangeRate:    m.SignedChangeRate,
				Volume:        m.AccTradeVolume24h,
				AccTradePrice: m.AccTradePrice24h,
				PrevClose:     m.PrevClosingPrice,
				Timestamp:     m.Timestamp,
			},
		}}, true, nil
	case "trade":
		ts := m.TradeTimestamp
		if ts == 0 {
			ts = m.Timestamp
		}
		return model.Event{Kind: model.KindTrade, Record: model.Record{
			Asset: asset,
			Trade: &model.Trade{
				ID:        strconv.FormatInt(m.SequentialID, 10),
				Price:     m.TradePrice,
				Size:      m.TradeVolume,
				Side:      side(m.AskBid),
				Timestamp: ts,
			},
		}}, true, nil
	case "candle.1m":
		return model.Event{Kind: model.KindCandle, Record: model.Record{
			Asset: asset,
			Candle: &model.Candle{
				Timeframe:     model.TF1Min,
				Open:          m.OpeningPrice,
				High:          m.HighPrice,
				Low:           m.LowPrice,
				Close:         m.TradePrice,
				Volume:        m.CandleAccTradeVolume,
				AccTradePrice: m.CandleAccTradePrice,
				Start:         parseCandleTime(m.CandleDateTimeUTC),
			},
		}}, true, nil
	}
	return model.Event{}, false, nil
}

var _ provider.StreamProvider = (*Stream)(nil)
