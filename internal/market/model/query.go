package model

import (
	"slices"
	"strings"
)

// QueryParams 一次行情查询；进缓存 key 之前必须 Normalize
type QueryParams struct {
	AssetClass AssetClass `json:"assetClass"`
	DataType   DataType   `json:"dataType"`
	Symbols    []string   `json:"symbols,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Timeframe  Timeframe  `json:"timeframe,omitempty"`
	OrderBy    string     `json:"orderBy,omitempty"`
	Start      string     `json:"start,omitempty"`
	End        string     `json:"end,omitempty"`
	// Provider 为空表示该 assetClass 的默认 provider
	Provider string `json:"provider,omitempty"`
}

// Normalize 返回规范化后的副本：symbols 拆逗号、去空白、大写、去重、排序。幂等。
func (q QueryParams) Normalize() QueryParams {
	out := q
	out.Symbols = NormalizeSymbols(q.Symbols)
	out.Timeframe = Timeframe(strings.ToUpper(strings.TrimSpace(string(q.Timeframe))))
	out.OrderBy = strings.TrimSpace(q.OrderBy)
	out.Start = strings.TrimSpace(q.Start)
	out.End = strings.TrimSpace(q.End)
	out.Provider = strings.ToLower(strings.TrimSpace(q.Provider))
	if out.Limit < 0 {
		out.Limit = 0
	}
	return out
}

// Symbol 第一个 symbol，没有返回空串
func (q QueryParams) Symbol() string {
	if len(q.Symbols) == 0 {
		return ""
	}
	return q.Symbols[0]
}

func NormalizeSymbols(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}
