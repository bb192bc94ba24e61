package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"quotehub.com/internal/market/app"
)

func main() {
	// 支持 Ctrl+C / kubernetes 停止信号的 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("market-service: %v", err)
	}
}
