package middleware

import (
	"errors"
	"net/http"

	sentinels "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"quotehub.com/pkg/common"
	"quotehub.com/pkg/logger"
	"quotehub.com/pkg/metrics"
	"quotehub.com/pkg/xerr"
)

var errServerStatus = errors.New("server error status")

// Sentinel 资源名用 "METHOD 路由模板"，规则在 bootstrap 里按这个名字配置
func Sentinel(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Request.Method + " " + routeOf(c)

		entry, blockErr := sentinels.Entry(resource, sentinels.WithTrafficType(base.Inbound))
		if blockErr != nil {
			logger.Warn(c.Request.Context(), "request blocked by sentinel",
				zap.String("resource", resource),
				zap.String("blockType", blockErr.BlockType().String()),
				zap.String("blockMsg", blockErr.Error()),
			)
			metrics.RateLimitBlockTotal.WithLabelValues(service, resource, "sentinel").Inc()
			common.Fail(c, http.StatusTooManyRequests, xerr.RateLimited, xerr.MapErrMsg(xerr.RateLimited))
			c.Abort()
			return
		}
		defer entry.Exit()

		c.Next()

		// 只有 5xx 算系统错误，参数错误不触发熔断
		if c.Writer.Status() >= http.StatusInternalServerError {
			sentinels.TraceError(entry, errServerStatus)
		}
	}
}
