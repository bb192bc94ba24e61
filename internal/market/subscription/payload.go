package subscription

import (
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/encoding/json"
	"quotehub.com/internal/market/cache"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/stream"
	"quotehub.com/pkg/xerr"
)

var (
	ErrUnsupportedAssetClass = errors.New("unsupported asset class")
	ErrMissingSymbol         = errors.New("missing symbol")
	ErrUnsupportedChannel    = errors.New("unsupported channel")
)

type ChannelKind string

const (
	ChannelSymbols     ChannelKind = "symbols"      // 每个 symbol 一个频道，所有客户端共享
	ChannelUserSymbols ChannelKind = "user-symbols" // 每个客户端一个私有频道
	ChannelMostActive  ChannelKind = "most-active"
	ChannelGainers     ChannelKind = "gainers"
	ChannelLosers      ChannelKind = "losers"
	ChannelTopTraded   ChannelKind = "top-traded"
)

// ParseChannelKind 兼容旧客户端的 mostActive / userSymbols / symbol
func ParseChannelKind(s string) (ChannelKind, error) {
	switch strings.TrimSpace(s) {
	case "symbols", "symbol":
		return ChannelSymbols, nil
	case "user-symbols", "userSymbols":
		return ChannelUserSymbols, nil
	case "most-active", "mostActive":
		return ChannelMostActive, nil
	case "gainers":
		return ChannelGainers, nil
	case "losers":
		return ChannelLosers, nil
	case "top-traded", "topTraded":
		return ChannelTopTraded, nil
	}
	return "", xerr.Wrap(ErrUnsupportedChannel, xerr.MissingRequiredParameter, fmt.Sprintf("channel %q", s))
}

// Broadcast 榜单类频道：symbol 集合来自缓存快照
func (k ChannelKind) Broadcast() bool {
	switch k {
	case ChannelMostActive, ChannelGainers, ChannelLosers, ChannelTopTraded:
		return true
	}
	return false
}

// DataType 榜单频道对应的快照数据类型
func (k ChannelKind) DataType() model.DataType {
	return model.DataType(k)
}

// Payload 客户端订阅请求
type Payload struct {
	AssetClass model.AssetClass   `json:"assetClass"`
	Channel    ChannelKind        `json:"channel"`
	Symbols    []string           `json:"symbols,omitempty"`
	Kinds      []model.StreamKind `json:"kinds,omitempty"`
	Timeframe  model.Timeframe    `json:"timeframe,omitempty"`
}

type wirePayload struct {
	AssetClass  string   `json:"assetClass"`
	AssetType   string   `json:"assetType"` // 旧字段名
	Channel     string   `json:"channel"`
	Symbols     []string `json:"symbols"`
	Symbol      string   `json:"symbol"`      // 旧: channel=symbol
	UserSymbols []string `json:"userSymbols"` // 旧: channel=userSymbols
	Kinds       []string `json:"kinds"`
	Timeframe   string   `json:"timeframe"`
}

// UnmarshalJSON 只做字段映射，校验在 Normalize
func (p *Payload) UnmarshalJSON(b []byte) error {
	var w wirePayload
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ac := w.AssetClass
	if ac == "" {
		ac = w.AssetType
	}
	syms := append(append(w.Symbols, w.UserSymbols...), w.Symbol)
	kinds := make([]model.StreamKind, 0, len(w.Kinds))
	for _, k := range w.Kinds {
		kinds = append(kinds, model.StreamKind(k))
	}
	*p = Payload{
		AssetClass: model.AssetClass(ac),
		Channel:    ChannelKind(w.Channel),
		Symbols:    syms,
		Kinds:      kinds,
		Timeframe:  model.Timeframe(w.Timeframe),
	}
	return nil
}

// Normalize 解析枚举、规整 symbol、kinds 为空时默认 ticker
func (p Payload) Normalize() (Payload, error) {
	ac, err := model.ParseAssetClass(string(p.AssetClass))
	if err != nil {
		return p, xerr.Wrap(ErrUnsupportedAssetClass, xerr.UnsupportedRouting, err.Error())
	}
	ch, err := ParseChannelKind(string(p.Channel))
	if err != nil {
		return p, err
	}
	tf, err := model.ParseTimeframe(string(p.Timeframe))
	if err != nil {
		return p, xerr.New(xerr.RequestParamsError, err.Error())
	}
	kinds := make([]model.StreamKind, 0, len(p.Kinds))
	for _, k := range p.Kinds {
		sk, err := model.ParseStreamKind(string(k))
		if err != nil {
			return p, xerr.New(xerr.RequestParamsError, err.Error())
		}
		kinds = append(kinds, sk)
	}
	if len(kinds) == 0 {
		kinds = []model.StreamKind{model.KindTicker}
	}

	out := Payload{
		AssetClass: ac,
		Channel:    ch,
		Symbols:    model.NormalizeSymbols(p.Symbols),
		Kinds:      stream.KindSet(kinds),
		Timeframe:  tf,
	}
	if (ch == ChannelSymbols || ch == ChannelUserSymbols) && len(out.Symbols) == 0 {
		return out, xerr.Wrap(ErrMissingSymbol, xerr.MissingRequiredParameter, fmt.Sprintf("channel %s requires symbols", ch))
	}
	return out, nil
}

// ChannelID
//
//	market:{ac}:symbols:{SYM}
//	market:{ac}:user-symbols:{clientId}
//	market:{ac}:{most-active|gainers|losers|top-traded}   与快照 topic 相同
func ChannelID(ac model.AssetClass, kind ChannelKind, symbolOrClient string) string {
	if kind.Broadcast() {
		return cache.Topic(ac, kind.DataType())
	}
	return "market:" + string(ac) + ":" + string(kind) + ":" + symbolOrClient
}
