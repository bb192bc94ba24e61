package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/pkg/metrics"
	"quotehub.com/pkg/xerr"
)

// Broadcast 一条要投递到某个频道的事件
type Broadcast struct {
	Channel string
	Event   model.Event
}

// Snapshotter 由 orchestrator.Service 实现，只读缓存
type Snapshotter interface {
	Peek(ctx context.Context, ac model.AssetClass, dt model.DataType) ([]model.Record, bool, error)
}

type set = map[string]struct{}

type channel struct {
	id          string
	assetClass  model.AssetClass
	kind        ChannelKind
	timeframe   model.Timeframe
	kinds       kindSet
	subscribers set
	symbols     set
}

// upstreamSub 某个 symbol 在上游已经订阅的 kinds
type upstreamSub struct {
	kinds     kindSet
	timeframe model.Timeframe
}

// Engine 把客户端订阅收敛成最少的上游订阅，并把上游事件分发到频道。
// 所有索引只在 mu 下读写；是否调用上游 Subscribe/Unsubscribe 也在锁内决定并发出
// （adapter 的这两个方法不阻塞）。
type Engine struct {
	mu sync.RWMutex

	streamers map[model.AssetClass]provider.StreamProvider
	snaps     Snapshotter

	channels       map[string]*channel                           // channel -> subscribers/symbols/kinds
	clientChannels map[string]set                                // client -> channels
	symbolChannels map[model.AssetClass]map[string]set           // symbol -> channels
	upstream       map[model.AssetClass]map[string]*upstreamSub // symbol -> 上游已订阅

	out chan Broadcast
	log *zap.Logger
}

func NewEngine(streamers []provider.StreamProvider, snaps Snapshotter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		streamers:      make(map[model.AssetClass]provider.StreamProvider, len(streamers)),
		snaps:          snaps,
		channels:       make(map[string]*channel),
		clientChannels: make(map[string]set),
		symbolChannels: make(map[model.AssetClass]map[string]set),
		upstream:       make(map[model.AssetClass]map[string]*upstreamSub),
		out:            make(chan Broadcast, 8192),
		log:            log,
	}
	for _, s := range streamers {
		ac := s.AssetClass()
		e.streamers[ac] = s
		e.symbolChannels[ac] = make(map[string]set)
		e.upstream[ac] = make(map[string]*upstreamSub)
		s.BindDesired(func() []model.Interest { return e.Desired(ac) })
	}
	return e
}

// Broadcasts 分发结果，由传输层消费
func (e *Engine) Broadcasts() <-chan Broadcast { return e.out }

func (e *Engine) streamer(ac model.AssetClass) (provider.StreamProvider, error) {
	s, ok := e.streamers[ac]
	if !ok {
		return nil, xerr.Wrap(ErrUnsupportedAssetClass, xerr.UnsupportedRouting, fmt.Sprintf("no stream provider for %s", ac))
	}
	return s, nil
}

// Subscribe 返回加入的频道 id。symbols 频道每个 symbol 一个。
func (e *Engine) Subscribe(ctx context.Context, clientID string, p Payload) ([]string, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	if _, err := e.streamer(p.AssetClass); err != nil {
		return nil, err
	}

	// 榜单频道的 symbol 来自缓存快照，先在锁外读
	var snapshot []string
	if p.Channel.Broadcast() {
		if snapshot, _, err = e.snapshotSymbols(ctx, p.AssetClass, p.Channel); err != nil {
			return nil, err
		}
	}

	kinds := kindsOf(p.Kinds)
	e.mu.Lock()
	defer e.mu.Unlock()

	switch p.Channel {
	case ChannelSymbols:
		ids := make([]string, 0, len(p.Symbols))
		for _, sym := range p.Symbols {
			ch := e.join(clientID, ChannelID(p.AssetClass, p.Channel, sym), p, kinds)
			e.setSymbols(ch, union(ch.symbols, sym))
			ids = append(ids, ch.id)
		}
		return ids, nil
	case ChannelUserSymbols:
		// 私有频道：以最新一次请求的 symbols 为准
		ch := e.join(clientID, ChannelID(p.AssetClass, p.Channel, clientID), p, kinds)
		e.setSymbols(ch, p.Symbols)
		return []string{ch.id}, nil
	default:
		ch := e.join(clientID, ChannelID(p.AssetClass, p.Channel, ""), p, kinds)
		if len(ch.symbols) == 0 {
			e.setSymbols(ch, snapshot)
		} else {
			e.setSymbols(ch, keys(ch.symbols))
		}
		return []string{ch.id}, nil
	}
}

// Unsubscribe 离开频道；频道没人了就释放它的 symbol
func (e *Engine) Unsubscribe(_ context.Context, clientID string, p Payload) ([]string, error) {
	p, err := p.Normalize()
	// 离开私有频道不需要带 symbols
	if err != nil && !(p.Channel == ChannelUserSymbols && errors.Is(err, ErrMissingSymbol)) {
		return nil, err
	}
	if _, err := e.streamer(p.AssetClass); err != nil {
		return nil, err
	}

	var ids []string
	switch p.Channel {
	case ChannelSymbols:
		for _, sym := range p.Symbols {
			ids = append(ids, ChannelID(p.AssetClass, p.Channel, sym))
		}
	case ChannelUserSymbols:
		ids = []string{ChannelID(p.AssetClass, p.Channel, clientID)}
	default:
		ids = []string{ChannelID(p.AssetClass, p.Channel, "")}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		e.leave(clientID, id)
	}
	return ids, nil
}

// RemoveClient 连接断开时调用，离开所有频道
func (e *Engine) RemoveClient(clientID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.clientChannels[clientID] {
		e.leave(clientID, id)
	}
	delete(e.clientChannels, clientID)
}

// Resync 从缓存快照重算榜单频道的 symbol 集合；频道没人订阅时什么都不做。
// 缓存读失败或未命中时保持原集合，不释放上游订阅。
func (e *Engine) Resync(ctx context.Context, ac model.AssetClass, kind ChannelKind) error {
	if !kind.Broadcast() {
		return xerr.Wrap(ErrUnsupportedChannel, xerr.MissingRequiredParameter, fmt.Sprintf("channel %s has no snapshot", kind))
	}
	id := ChannelID(ac, kind, "")
	e.mu.RLock()
	_, ok := e.channels[id]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	syms, ok, err := e.snapshotSymbols(ctx, ac, kind)
	if err != nil || !ok {
		return err
	}
	e.resync(id, syms)
	return nil
}

// ApplySnapshot 用快照通知里的记录直接重算榜单频道，不再读缓存
func (e *Engine) ApplySnapshot(ac model.AssetClass, kind ChannelKind, recs []model.Record) error {
	if !kind.Broadcast() {
		return xerr.Wrap(ErrUnsupportedChannel, xerr.MissingRequiredParameter, fmt.Sprintf("channel %s has no snapshot", kind))
	}
	e.resync(ChannelID(ac, kind, ""), model.Symbols(recs))
	return nil
}

func (e *Engine) resync(id string, syms []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.channels[id]; ok {
		e.setSymbols(ch, syms)
	}
}

// Desired 当前上游应有的订阅集合，adapter 重连后按它回放
func (e *Engine) Desired(ac model.AssetClass) []model.Interest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ups := e.upstream[ac]
	out := make([]model.Interest, 0, len(ups))
	for sym, u := range ups {
		out = append(out, model.Interest{Symbol: sym, Kinds: u.kinds.list(), Timeframe: u.timeframe})
	}
	slices.SortFunc(out, func(a, b model.Interest) int { return compareStrings(a.Symbol, b.Symbol) })
	return out
}

// Run 每个 stream provider 一个分发协程（保证同一 symbol 的顺序），阻塞到 ctx 结束
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for ac, s := range e.streamers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.dispatch(ctx, ac, s.Events())
		}()
	}
	wg.Wait()
}

func (e *Engine) dispatch(ctx context.Context, ac model.AssetClass, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !e.Route(ctx, ac, ev) {
				return
			}
		}
	}
}

// Route 把一个事件投递给关心该 symbol 且订阅了该 kind 的每个频道，每个频道一次
func (e *Engine) Route(ctx context.Context, ac model.AssetClass, ev model.Event) bool {
	targets := e.targets(ac, ev)
	if len(targets) == 0 {
		metrics.EngineEventsTotal.WithLabelValues(string(ac), "dropped").Inc()
		return true
	}
	metrics.EngineEventsTotal.WithLabelValues(string(ac), "routed").Inc()
	for _, id := range targets {
		select {
		case e.out <- Broadcast{Channel: id, Event: ev}:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (e *Engine) targets(ac model.AssetClass, ev model.Event) []string {
	k := kindOf(ev.Kind)
	e.mu.RLock()
	defer e.mu.RUnlock()
	chans := e.symbolChannels[ac][ev.Symbol()]
	out := make([]string, 0, len(chans))
	for id := range chans {
		if ch := e.channels[id]; ch != nil && ch.kinds.has(k) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// snapshotSymbols ok=false 表示缓存里暂时没有可用快照
func (e *Engine) snapshotSymbols(ctx context.Context, ac model.AssetClass, kind ChannelKind) ([]string, bool, error) {
	recs, ok, err := e.snaps.Peek(ctx, ac, kind.DataType())
	if err != nil {
		if xerr.IsCode(err, xerr.UnsupportedRouting) {
			return nil, false, xerr.Wrap(ErrUnsupportedChannel, xerr.MissingRequiredParameter, fmt.Sprintf("channel %s not available for %s", kind, ac))
		}
		// 缓存不可用：新频道先给空集合，已有频道保持不变，等下一次快照通知
		e.log.Warn("peek snapshot failed", zap.String("asset_class", string(ac)), zap.String("channel", string(kind)), zap.Error(err))
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	return model.Symbols(recs), true, nil
}

// ---- 以下方法都要求持有 e.mu 写锁 ----

func (e *Engine) join(clientID, id string, p Payload, kinds kindSet) *channel {
	ch, ok := e.channels[id]
	if !ok {
		ch = &channel{
			id:          id,
			assetClass:  p.AssetClass,
			kind:        p.Channel,
			timeframe:   p.Timeframe,
			subscribers: set{},
			symbols:     set{},
		}
		e.channels[id] = ch
		metrics.EngineChannels.WithLabelValues(string(p.AssetClass)).Inc()
	}
	ch.kinds |= kinds
	if p.Timeframe != "" {
		ch.timeframe = p.Timeframe
	}
	ch.subscribers[clientID] = struct{}{}
	if e.clientChannels[clientID] == nil {
		e.clientChannels[clientID] = set{}
	}
	e.clientChannels[clientID][id] = struct{}{}
	return ch
}

func (e *Engine) leave(clientID, id string) {
	if cs := e.clientChannels[clientID]; cs != nil {
		delete(cs, id)
		if len(cs) == 0 {
			delete(e.clientChannels, clientID)
		}
	}
	ch, ok := e.channels[id]
	if !ok {
		return
	}
	if _, ok := ch.subscribers[clientID]; !ok {
		return
	}
	delete(ch.subscribers, clientID)
	if len(ch.subscribers) > 0 {
		return
	}
	e.setSymbols(ch, nil)
	delete(e.channels, id)
	metrics.EngineChannels.WithLabelValues(string(ch.assetClass)).Dec()
}

// setSymbols 把频道的 symbol 集合改成 target：
// 新增的走订阅转换（只补上游缺的 kinds），移除的走释放转换（symbol 没有任何频道时退订）。
// 对已有 symbol 也会补齐 kinds，频道 kinds 扩大时需要。
func (e *Engine) setSymbols(ch *channel, target []string) {
	ac := ch.assetClass
	want := make(set, len(target))
	for _, s := range target {
		want[s] = struct{}{}
	}

	var removed []string
	for s := range ch.symbols {
		if _, ok := want[s]; !ok {
			removed = append(removed, s)
		}
	}
	for _, s := range target {
		if _, ok := ch.symbols[s]; ok {
			continue
		}
		ch.symbols[s] = struct{}{}
		idx := e.symbolChannels[ac][s]
		if idx == nil {
			idx = set{}
			e.symbolChannels[ac][s] = idx
		}
		idx[ch.id] = struct{}{}
	}
	e.acquire(ac, keys(ch.symbols), ch.kinds, ch.timeframe)

	var released []string
	for _, s := range removed {
		delete(ch.symbols, s)
		idx := e.symbolChannels[ac][s]
		delete(idx, ch.id)
		if len(idx) == 0 {
			delete(e.symbolChannels[ac], s)
			released = append(released, s)
		}
	}
	e.release(ac, released)
}

// acquire 按缺失的 kinds 分组发上游订阅
func (e *Engine) acquire(ac model.AssetClass, symbols []string, kinds kindSet, tf model.Timeframe) {
	if len(symbols) == 0 || kinds == 0 {
		return
	}
	groups := map[kindSet][]string{}
	ups := e.upstream[ac]
	for _, s := range symbols {
		u := ups[s]
		if u == nil {
			u = &upstreamSub{timeframe: tf}
			ups[s] = u
		}
		missing := kinds &^ u.kinds
		if missing == 0 {
			continue
		}
		u.kinds |= missing
		groups[missing] = append(groups[missing], s)
	}
	if len(groups) == 0 {
		return
	}
	st := e.streamers[ac]
	for _, k := range sortedKindSets(groups) {
		syms := groups[k]
		slices.Sort(syms)
		st.Subscribe(syms, k.list(), tf)
		e.log.Debug("upstream subscribe", zap.String("asset_class", string(ac)), zap.Strings("symbols", syms), zap.Stringer("kinds", k))
	}
	metrics.UpstreamSymbols.WithLabelValues(string(ac)).Set(float64(len(ups)))
}

// release symbol 已经没有任何频道：按上游已订阅的 kinds 分组退订
func (e *Engine) release(ac model.AssetClass, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	groups := map[kindSet][]string{}
	ups := e.upstream[ac]
	for _, s := range symbols {
		u := ups[s]
		if u == nil {
			continue
		}
		delete(ups, s)
		if u.kinds != 0 {
			groups[u.kinds] = append(groups[u.kinds], s)
		}
	}
	st := e.streamers[ac]
	for _, k := range sortedKindSets(groups) {
		syms := groups[k]
		slices.Sort(syms)
		st.Unsubscribe(syms, k.list())
		e.log.Debug("upstream unsubscribe", zap.String("asset_class", string(ac)), zap.Strings("symbols", syms), zap.Stringer("kinds", k))
	}
	metrics.UpstreamSymbols.WithLabelValues(string(ac)).Set(float64(len(ups)))
}
