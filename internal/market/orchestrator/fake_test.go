package orchestrator

import (
	"context"
	"sync"
	"time"

	"quotehub.com/internal/market/model"
)

type fakeCaller struct {
	mu     sync.Mutex
	calls  []model.QueryParams
	data   map[model.DataType][]model.Record
	errs   map[model.DataType]error
	routes map[model.DataType]bool // nil = 全部支持
	gate   chan struct{}
	// 上游被调用时 ctx 是否已经取消
	ctxErrs []error
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{data: map[model.DataType][]model.Record{}, errs: map[model.DataType]error{}}
}

func (f *fakeCaller) Has(_ model.AssetClass, dt model.DataType) bool {
	return f.routes == nil || f.routes[dt]
}

func (f *fakeCaller) Call(ctx context.Context, _ model.AssetClass, dt model.DataType, q model.QueryParams) ([]model.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if err := f.errs[dt]; err != nil {
		return nil, err
	}
	// 复制一份，模拟每次上游返回新数据
	src := f.data[dt]
	out := make([]model.Record, len(src))
	copy(out, src)
	return out, nil
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCaller) dataTypes() []model.DataType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.DataType, len(f.calls))
	for i, q := range f.calls {
		out[i] = q.DataType
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type switchClock struct{ open bool }

func (c *switchClock) IsOpen(time.Time) bool { return c.open }

type published struct {
	topic string
	data  []byte
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []published
}

func (n *fakeNotifier) Publish(_ context.Context, topic string, data []byte) error {
	n.mu.Lock()
	n.got = append(n.got, published{topic, data})
	n.mu.Unlock()
	return nil
}

func rec(sym, name string) model.Record {
	return model.Record{Asset: model.Asset{Symbol: sym, Name: name}}
}
