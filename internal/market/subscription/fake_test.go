package subscription

import (
	"context"
	"sync"

	"quotehub.com/internal/market/model"
	"quotehub.com/pkg/xerr"
)

type upstreamCall struct {
	op      string
	symbols []string
	kinds   []model.StreamKind
}

type fakeStreamer struct {
	ac     model.AssetClass
	events chan model.Event

	mu      sync.Mutex
	calls   []upstreamCall
	desired func() []model.Interest
}

func newFakeStreamer(ac model.AssetClass) *fakeStreamer {
	return &fakeStreamer{ac: ac, events: make(chan model.Event, 16)}
}

func (f *fakeStreamer) Name() string                              { return "fake-" + string(f.ac) }
func (f *fakeStreamer) AssetClass() model.AssetClass              { return f.ac }
func (f *fakeStreamer) Events() <-chan model.Event                { return f.events }
func (f *fakeStreamer) BindDesired(fn func() []model.Interest)    { f.desired = fn }
func (f *fakeStreamer) Run(ctx context.Context) error             { <-ctx.Done(); return ctx.Err() }

func (f *fakeStreamer) Subscribe(symbols []string, kinds []model.StreamKind, _ model.Timeframe) {
	f.record("subscribe", symbols, kinds)
}

func (f *fakeStreamer) Unsubscribe(symbols []string, kinds []model.StreamKind) {
	f.record("unsubscribe", symbols, kinds)
}

func (f *fakeStreamer) record(op string, symbols []string, kinds []model.StreamKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upstreamCall{
		op:      op,
		symbols: append([]string(nil), symbols...),
		kinds:   append([]model.StreamKind(nil), kinds...),
	})
}

func (f *fakeStreamer) ops(op string) []upstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []upstreamCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeStreamer) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// fakeSnaps 按 asset/dataType 返回固定榜单
type fakeSnaps struct {
	mu      sync.Mutex
	data    map[string][]model.Record
	evicted map[string]bool
	err     error
}

func newFakeSnaps() *fakeSnaps {
	return &fakeSnaps{data: map[string][]model.Record{}, evicted: map[string]bool{}}
}

func (f *fakeSnaps) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// evict 模拟缓存过期：数据类型可缓存但当前未命中
func (f *fakeSnaps) evict(ac model.AssetClass, dt model.DataType) {
	f.mu.Lock()
	f.evicted[string(ac)+"/"+string(dt)] = true
	f.mu.Unlock()
}

func (f *fakeSnaps) set(ac model.AssetClass, dt model.DataType, syms ...string) {
	recs := make([]model.Record, len(syms))
	for i, s := range syms {
		recs[i] = model.Record{Asset: model.Asset{Symbol: s}}
	}
	f.mu.Lock()
	f.data[string(ac)+"/"+string(dt)] = recs
	f.mu.Unlock()
}

func (f *fakeSnaps) Peek(_ context.Context, ac model.AssetClass, dt model.DataType) ([]model.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, false, f.err
	}
	key := string(ac) + "/" + string(dt)
	if f.evicted[key] {
		return nil, false, nil
	}
	recs, ok := f.data[key]
	if !ok {
		return nil, false, xerr.New(xerr.UnsupportedRouting, "not cacheable")
	}
	return recs, true, nil
}

func event(kind model.StreamKind, sym string) model.Event {
	return model.Event{Kind: kind, Record: model.Record{Asset: model.Asset{Symbol: sym}}}
}
