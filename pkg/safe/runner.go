package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"quotehub.com/pkg/logger"
)

// GoCtx 启动后台协程，panic 只记日志不拖垮进程；fn 应在 ctx 结束后返回
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer recoverAndLog(ctx)
		fn(ctx)
	}()
}

func recoverAndLog(ctx context.Context) {
	if r := recover(); r != nil {
		logger.Error(ctx, "goroutine panic recovered",
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
