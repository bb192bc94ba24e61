package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"quotehub.com/internal/market/model"
	"quotehub.com/pkg/metrics"
	"quotehub.com/pkg/xerr"
)

var tracer = otel.Tracer("quotehub.com/internal/market/provider")

type route struct {
	provider string
	method   Method
}

// Registry assetClass x dataType -> provider method。只在启动组装阶段 Register，之后只读。
type Registry struct {
	// assetClass -> provider name -> dataType -> method
	routes map[model.AssetClass]map[string]map[model.DataType]Method
	// 每个 assetClass 第一个注册的 provider 是默认
	defaults map[model.AssetClass]string
}

func NewRegistry() *Registry {
	return &Registry{
		routes:   make(map[model.AssetClass]map[string]map[model.DataType]Method),
		defaults: make(map[model.AssetClass]string),
	}
}

// Wrapper 注册时包一层（限流、熔断）
type Wrapper func(providerName string, dt model.DataType, m Method) Method

func (r *Registry) Register(p Provider, wrappers ...Wrapper) {
	ac, name := p.AssetClass(), p.Name()
	byName := r.routes[ac]
	if byName == nil {
		byName = make(map[string]map[model.DataType]Method)
		r.routes[ac] = byName
	}
	methods := make(map[model.DataType]Method, len(p.Methods()))
	for dt, m := range p.Methods() {
		for _, w := range wrappers {
			m = w(name, dt, m)
		}
		methods[dt] = m
	}
	byName[name] = methods
	if _, ok := r.defaults[ac]; !ok {
		r.defaults[ac] = name
	}
}

func (r *Registry) resolve(ac model.AssetClass, dt model.DataType, providerName string) (route, error) {
	byName := r.routes[ac]
	if providerName == "" {
		providerName = r.defaults[ac]
	} else if _, ok := byName[providerName]; !ok {
		return route{}, xerr.Wrap(ErrUnsupportedProvider, xerr.UnsupportedRouting,
			fmt.Sprintf("provider %q not configured for %s", providerName, ac))
	}
	m, ok := byName[providerName][dt]
	if !ok {
		return route{}, xerr.Wrap(ErrUnsupportedDataType, xerr.UnsupportedRouting,
			fmt.Sprintf("%s/%s not supported", ac, dt))
	}
	return route{provider: providerName, method: m}, nil
}

// Has 是否存在 (assetClass, dataType) 的默认路由
func (r *Registry) Has(ac model.AssetClass, dt model.DataType) bool {
	_, err := r.resolve(ac, dt, "")
	return err == nil
}

// Call 找到负责的 provider 并调用；不做重试。上游错误统一包成 UpstreamFailure。
func (r *Registry) Call(ctx context.Context, ac model.AssetClass, dt model.DataType, q model.QueryParams) ([]model.Record, error) {
	rt, err := r.resolve(ac, dt, q.Provider)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "provider.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("market.asset_class", string(ac)),
		attribute.String("market.data_type", string(dt)),
		attribute.String("market.provider", rt.provider),
	)

	start := time.Now()
	q.AssetClass, q.DataType = ac, dt
	out, err := rt.method(ctx, q)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.UpstreamDuration.WithLabelValues(rt.provider, string(dt), status).Observe(time.Since(start).Seconds())

	if err != nil {
		if isCallerError(err) {
			return nil, err
		}
		return nil, xerr.Wrap(err, xerr.UpstreamFailure, fmt.Sprintf("%s %s/%s", rt.provider, ac, dt))
	}
	return out, nil
}

// 调用方错误和限流原样返回，不当成上游故障
func isCallerError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch xerr.CodeOf(err) {
	case xerr.RequestParamsError, xerr.MissingRequiredParameter, xerr.UnsupportedRouting, xerr.RateLimited:
		return true
	}
	return false
}
