package provider

import (
	"context"

	"quotehub.com/internal/market/model"
	"quotehub.com/pkg/metrics"
	"quotehub.com/pkg/ratelimit"
	"quotehub.com/pkg/xerr"
)

// Guard 每个 provider 一个令牌桶（上游的限额是按 key 算的），每个 provider.dataType 一个熔断器
func Guard(service string, limiter *ratelimit.Store, breakers *ratelimit.Manager) Wrapper {
	return func(providerName string, dt model.DataType, m Method) Method {
		name := providerName + "." + string(dt)
		return func(ctx context.Context, q model.QueryParams) ([]model.Record, error) {
			if limiter != nil {
				if err := limiter.Wait(ctx, providerName); err != nil {
					metrics.RateLimitBlockTotal.WithLabelValues(service, name, "upstream").Inc()
					return nil, xerr.Wrap(err, xerr.RateLimited, "upstream rate limit: "+providerName)
				}
			}
			if breakers == nil {
				return m(ctx, q)
			}
			out, err := breakers.Execute(name, func() (any, error) {
				return m(ctx, q)
			})
			if err != nil {
				return nil, err
			}
			recs, _ := out.([]model.Record)
			return recs, nil
		}
	}
}
