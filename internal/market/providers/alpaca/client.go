package alpaca

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quotehub.com/pkg/httpx"
)

const (
	defaultDataURL    = "https://data.alpaca.markets"
	defaultTradingURL = "https://paper-api.alpaca.markets"
	defaultStreamURL  = "wss://stream.data.alpaca.markets/v2/iex"
)

type Config struct {
	Key        string  `mapstructure:"key"`
	Secret     string  `mapstructure:"secret"`
	DataURL    string  `mapstructure:"data_url"`
	TradingURL string  `mapstructure:"trading_url"`
	StreamURL  string  `mapstructure:"stream_url"`
	Rate       float64 `mapstructure:"rate"`  // 每秒请求数
	Burst      int     `mapstructure:"burst"` // 令牌桶容量
}

func (c Config) withDefaults() Config {
	if c.DataURL == "" {
		c.DataURL = defaultDataURL
	}
	if c.TradingURL == "" {
		c.TradingURL = defaultTradingURL
	}
	if c.StreamURL == "" {
		c.StreamURL = defaultStreamURL
	}
	c.DataURL = strings.TrimRight(c.DataURL, "/")
	c.TradingURL = strings.TrimRight(c.TradingURL, "/")
	return c
}

// Client Alpaca REST，只做请求和解码，不做归一化
type Client struct {
	cfg    Config
	http   httpx.Doer
	header http.Header
}

type Option func(*Client)

func WithHTTPClient(d httpx.Doer) Option {
	return func(c *Client) { c.http = d }
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		http:   httpx.New(10 * time.Second),
		header: http.Header{},
	}
	c.header.Set("APCA-API-KEY-ID", cfg.Key)
	c.header.Set("APCA-API-SECRET-KEY", cfg.Secret)
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, base, path string, q url.Values, out any) error {
	return httpx.GetJSON(ctx, c.http, base+path, q, c.header, out)
}

func (c *Client) Assets(ctx context.Context) ([]assetDTO, error) {
	var out []assetDTO
	q := url.Values{"status": {"active"}, "asset_class": {"us_equity"}}
	err := c.get(ctx, c.cfg.TradingURL, "/v2/assets", q, &out)
	return out, err
}

func (c *Client) MostActives(ctx context.Context, top int) ([]mostActiveDTO, error) {
	var out mostActivesResp
	q := url.Values{"by": {"volume"}, "top": {strconv.Itoa(top)}}
	err := c.get(ctx, c.cfg.DataURL, "/v1beta1/screener/stocks/most-actives", q, &out)
	return out.MostActives, err
}

func (c *Client) Movers(ctx context.Context, top int) (moversResp, error) {
	var out moversResp
	q := url.Values{"top": {strconv.Itoa(top)}}
	err := c.get(ctx, c.cfg.DataURL, "/v1beta1/screener/stocks/movers", q, &out)
	return out, err
}

func (c *Client) Snapshots(ctx context.Context, symbols []string) (map[string]snapshotDTO, error) {
	out := map[string]snapshotDTO{}
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	err := c.get(ctx, c.cfg.DataURL, "/v2/stocks/snapshots", q, &out)
	return out, err
}

type BarsQuery struct {
	Symbols   []string
	Timeframe string
	Limit     int
	Start     string
	End       string
}

func (c *Client) Bars(ctx context.Context, bq BarsQuery) (map[string][]barDTO, error) {
	var out barsResp
	q := url.Values{
		"symbols":   {strings.Join(bq.Symbols, ",")},
		"timeframe": {bq.Timeframe},
	}
	if bq.Limit > 0 {
		q.Set("limit", strconv.Itoa(bq.Limit))
	}
	if bq.Start != "" {
		q.Set("start", bq.Start)
	}
	if bq.End != "" {
		q.Set("end", bq.End)
	}
	err := c.get(ctx, c.cfg.DataURL, "/v2/stocks/bars", q, &out)
	return out.Bars, err
}

func (c *Client) Trades(ctx context.Context, symbols []string, limit int, start, end string) (map[string][]tradeDTO, error) {
	var out tradesResp
	q := url.Values{"symbols": {strings.Join(symbols, ",")}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if start != "" {
		q.Set("start", start)
	}
	if end != "" {
		q.Set("end", end)
	}
	err := c.get(ctx, c.cfg.DataURL, "/v2/stocks/trades", q, &out)
	return out.Trades, err
}
