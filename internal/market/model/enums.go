package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEnum 解析 assetClass / dataType / timeframe / kind 失败
var ErrUnknownEnum = errors.New("unknown value")

type AssetClass string

const (
	Equity AssetClass = "equity"
	Crypto AssetClass = "crypto"
)

var AssetClasses = []AssetClass{Equity, Crypto}

func ParseAssetClass(s string) (AssetClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "equity", "stocks", "stock":
		return Equity, nil
	case "crypto":
		return Crypto, nil
	}
	return "", fmt.Errorf("asset class %q: %w", s, ErrUnknownEnum)
}

type DataType string

const (
	Assets         DataType = "assets"
	MostActive     DataType = "most-active"
	Gainers        DataType = "gainers"
	Losers         DataType = "losers"
	TopTraded      DataType = "top-traded"
	SymbolSnapshot DataType = "symbol-snapshot"
	Candles        DataType = "candles"
	Trades         DataType = "trades"
)

func ParseDataType(s string) (DataType, error) {
	switch strings.TrimSpace(s) {
	case "assets":
		return Assets, nil
	case "most-active", "mostActive":
		return MostActive, nil
	case "gainers":
		return Gainers, nil
	case "losers":
		return Losers, nil
	case "top-traded", "topTraded":
		return TopTraded, nil
	case "symbol-snapshot", "symbolSnapshot", "symbol":
		return SymbolSnapshot, nil
	case "candles":
		return Candles, nil
	case "trades":
		return Trades, nil
	}
	return "", fmt.Errorf("data type %q: %w", s, ErrUnknownEnum)
}

type Timeframe string

const (
	TF1Min    Timeframe = "1T"
	TF3Min    Timeframe = "3T"
	TF5Min    Timeframe = "5T"
	TF10Min   Timeframe = "10T"
	TF15Min   Timeframe = "15T"
	TF30Min   Timeframe = "30T"
	TF1Hour   Timeframe = "1H"
	TF1Day    Timeframe = "1D"
	TF1Week   Timeframe = "1W"
	TF1Month  Timeframe = "1M"
	TF12Month Timeframe = "12M"
)

// ParseTimeframe 空串合法，表示 provider 默认
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	switch tf {
	case "", TF1Min, TF3Min, TF5Min, TF10Min, TF15Min, TF30Min, TF1Hour, TF1Day, TF1Week, TF1Month, TF12Month:
		return tf, nil
	}
	return "", fmt.Errorf("timeframe %q: %w", s, ErrUnknownEnum)
}

// Minutes 分钟级周期的分钟数，非分钟级返回 0
func (tf Timeframe) Minutes() int {
	switch tf {
	case "", TF1Min:
		return 1
	case TF3Min:
		return 3
	case TF5Min:
		return 5
	case TF10Min:
		return 10
	case TF15Min:
		return 15
	case TF30Min:
		return 30
	case TF1Hour:
		return 60
	}
	return 0
}

type StreamKind string

const (
	KindTicker StreamKind = "ticker"
	KindTrade  StreamKind = "trade"
	KindCandle StreamKind = "candle"
)

func ParseStreamKind(s string) (StreamKind, error) {
	switch StreamKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindTicker:
		return KindTicker, nil
	case KindTrade:
		return KindTrade, nil
	case KindCandle:
		return KindCandle, nil
	}
	return "", fmt.Errorf("stream kind %q: %w", s, ErrUnknownEnum)
}
