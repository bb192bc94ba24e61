package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"quotehub.com/internal/market/model"
)

type flakySession struct {
	runs   atomic.Int32
	stop   int32
	cancel context.CancelFunc
}

func (f *flakySession) Name() string { return "flaky" }

func (f *flakySession) RunOnce(ctx context.Context) error {
	if f.runs.Add(1) >= f.stop {
		f.cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	return errors.New("read: connection reset")
}

func TestRunner_ReconnectsUntilCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := NewRunner(nil)
	r.BaseBackoff = time.Millisecond
	r.MaxBackoff = 5 * time.Millisecond

	s := &flakySession{stop: 4, cancel: cancel}
	err := r.Run(ctx, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(4), s.runs.Load())
}

func TestOutbox_NeverBlocks(t *testing.T) {
	o := NewOutbox[string]()
	for i := 0; i < 100; i++ {
		o.Push("x")
	}
	select {
	case <-o.Notify():
	default:
		t.Fatal("expected notify")
	}
	assert.Len(t, o.Drain(), 100)
	assert.Empty(t, o.Drain())

	o.Push("y")
	o.Reset()
	assert.Empty(t, o.Drain())
	select {
	case <-o.Notify():
		t.Fatal("notify should be cleared by reset")
	default:
	}
}

func TestKindSet(t *testing.T) {
	got := KindSet([]model.StreamKind{model.KindCandle, model.KindTicker, model.KindCandle})
	assert.Equal(t, []model.StreamKind{model.KindTicker, model.KindCandle}, got)
	assert.Empty(t, KindSet(nil))
}
