package provider

import (
	"context"
	"errors"

	"quotehub.com/internal/market/model"
)

var (
	ErrUnsupportedDataType = errors.New("unsupported data type")
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Method 一个上游数据接口，返回统一后的记录
type Method func(ctx context.Context, q model.QueryParams) ([]model.Record, error)

// Provider 一个 REST 上游（alpaca / upbit ...）
type Provider interface {
	Name() string
	AssetClass() model.AssetClass
	Methods() map[model.DataType]Method
}

// StreamProvider 一个推流上游。Subscribe/Unsubscribe 不阻塞；重连由 adapter 自己负责，
// 重连后按 desired 回放当前订阅集合。
type StreamProvider interface {
	Name() string
	AssetClass() model.AssetClass
	Subscribe(symbols []string, kinds []model.StreamKind, tf model.Timeframe)
	Unsubscribe(symbols []string, kinds []model.StreamKind)
	Events() <-chan model.Event
	// BindDesired 注入引擎当前订阅集合的读取函数
	BindDesired(func() []model.Interest)
	Run(ctx context.Context) error
}
