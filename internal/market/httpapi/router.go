package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"quotehub.com/pkg/common"
	"quotehub.com/pkg/middleware"
	"quotehub.com/pkg/ratelimit"
)

type Options struct {
	Service string
	// Limiter 按 ip+路由限流，nil 不限
	Limiter *ratelimit.Store
	// Sentinel 已经在 bootstrap 里初始化时才打开
	Sentinel bool
	// Metrics 挂 ginprom（进程内只能注册一次）
	Metrics bool
	// WS websocket 升级入口，nil 不挂 /ws
	WS http.HandlerFunc
}

func NewRouter(svc MarketService, opt Options) *gin.Engine {
	r := gin.New()
	if opt.Metrics {
		p := ginprom.NewPrometheus(opt.Service)
		p.Use(r)
	}
	mws := []gin.HandlerFunc{
		otelgin.Middleware(opt.Service),
		middleware.ReqId(),
		cors.Default(),
		middleware.Recover(),
	}
	if opt.Limiter != nil {
		mws = append(mws, middleware.RateLimit(opt.Service, opt.Limiter))
	}
	if opt.Sentinel {
		mws = append(mws, middleware.Sentinel(opt.Service))
	}
	r.Use(mws...)

	r.GET("/healthz", func(c *gin.Context) { common.Success(c, gin.H{"status": "ok", "time": time.Now().UnixMilli()}) })
	if opt.WS != nil {
		r.GET("/ws", gin.WrapF(opt.WS))
	}

	h := &Market{svc: svc}
	market := r.Group("/api/market")
	{
		market.GET("/:assetClass/:dataType", h.Get)
		market.POST("/:assetClass/:dataType/refresh", h.Refresh)
	}
	return r
}
