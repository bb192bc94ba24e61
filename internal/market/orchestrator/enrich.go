package orchestrator

import (
	"context"
	"errors"
	"time"

	"quotehub.com/internal/market/cache"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/providers/logodev"
)

// Enricher 刷新后的后处理。返回错误时 Service 丢弃这一步的结果，继续用输入。
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, q model.QueryParams, cfg DataTypeConfig, recs []model.Record) ([]model.Record, error)
}

// NameEnricher 用缓存里的完整 assets 列表补名称
type NameEnricher struct {
	store cache.Store
}

func NewNameEnricher(store cache.Store) *NameEnricher {
	return &NameEnricher{store: store}
}

func (e *NameEnricher) Name() string { return "name" }

func (e *NameEnricher) Enrich(ctx context.Context, q model.QueryParams, _ DataTypeConfig, recs []model.Record) ([]model.Record, error) {
	if q.DataType == model.Assets {
		return recs, nil
	}
	base, _, err := cache.GetJSON[[]model.Record](ctx, e.store, cache.Key(model.QueryParams{AssetClass: q.AssetClass, DataType: model.Assets}))
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(base))
	for _, a := range base {
		if a.Name != "" && a.Name != a.Symbol {
			names[a.Symbol] = a.Name
		}
	}

	out := make([]model.Record, len(recs))
	for i, r := range recs {
		switch {
		case names[r.Symbol] != "":
			r.Name = names[r.Symbol]
		case r.Name == "":
			r.Name = r.Symbol
		}
		out[i] = r
	}
	return out, nil
}

// LogoSource 由 providers/logodev 实现
type LogoSource interface {
	Lookup(ctx context.Context, symbol string) (string, error)
}

const (
	logoNotFound  = "NOT_FOUND"
	logoTTL       = 7 * 24 * time.Hour
	maxLogoLookup = 100
)

// LogoEnricher symbol -> logo 的映射整体存一条缓存，未命中的每次最多查 maxLogoLookup 个
type LogoEnricher struct {
	store  cache.Store
	source LogoSource
}

func NewLogoEnricher(store cache.Store, source LogoSource) *LogoEnricher {
	return &LogoEnricher{store: store, source: source}
}

func (e *LogoEnricher) Name() string { return "logo" }

func (e *LogoEnricher) Enrich(ctx context.Context, q model.QueryParams, cfg DataTypeConfig, recs []model.Record) ([]model.Record, error) {
	if !cfg.WithLogo || len(recs) == 0 {
		return recs, nil
	}
	key := cache.LogoKey(q.AssetClass)
	logos, _, err := cache.GetJSON[map[string]string](ctx, e.store, key)
	if err != nil && !errors.Is(err, cache.ErrCorrupt) {
		return nil, err
	}
	if logos == nil {
		logos = map[string]string{}
	}

	lookups, dirty := 0, false
	out := make([]model.Record, len(recs))
	for i, r := range recs {
		logo, ok := logos[r.Symbol]
		if !ok && lookups < maxLogoLookup {
			lookups++
			u, err := e.source.Lookup(ctx, r.Symbol)
			switch {
			case err == nil && u != "":
				logo, ok = u, true
			case err == nil || errors.Is(err, logodev.ErrNotFound):
				logo, ok = logoNotFound, true
			}
			// 其他错误不落缓存，下次再查
			if ok {
				logos[r.Symbol] = logo
				dirty = true
			}
		}
		if ok && logo != logoNotFound {
			r.Logo = logo
		}
		out[i] = r
	}

	if dirty {
		if err := cache.SetJSON(ctx, e.store, key, logos, logoTTL); err != nil {
			return nil, err
		}
	}
	return out, nil
}
