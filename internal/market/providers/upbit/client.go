package upbit

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quotehub.com/pkg/httpx"
)

const (
	defaultRestURL   = "https://api.upbit.com/v1"
	defaultStreamURL = "wss://api.upbit.com/websocket/v1"
)

type Config struct {
	RestURL   string  `mapstructure:"rest_url"`
	StreamURL string  `mapstructure:"stream_url"`
	Rate      float64 `mapstructure:"rate"`
	Burst     int     `mapstructure:"burst"`
}

func (c Config) withDefaults() Config {
	if c.RestURL == "" {
		c.RestURL = defaultRestURL
	}
	if c.StreamURL == "" {
		c.StreamURL = defaultStreamURL
	}
	c.RestURL = strings.TrimRight(c.RestURL, "/")
	return c
}

// Client Upbit 公共行情 REST（无需鉴权）
type Client struct {
	base string
	http httpx.Doer
}

type Option func(*Client)

func WithHTTPClient(d httpx.Doer) Option {
	return func(c *Client) { c.http = d }
}

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{base: cfg.RestURL, http: httpx.New(10 * time.Second)}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return httpx.GetJSON(ctx, c.http, c.base+path, q, nil, out)
}

func (c *Client) Markets(ctx context.Context) ([]marketDTO, error) {
	var out []marketDTO
	err := c.get(ctx, "/market/all", nil, &out)
	return out, err
}

func (c *Client) Tickers(ctx context.Context, markets []string) ([]tickerDTO, error) {
	var out []tickerDTO
	err := c.get(ctx, "/ticker", url.Values{"markets": {strings.Join(markets, ",")}}, &out)
	return out, err
}

// Candles path: minutes/{unit} | days | weeks | months | years
func (c *Client) Candles(ctx context.Context, path, market string, count int, to string) ([]candleDTO, error) {
	var out []candleDTO
	q := url.Values{"market": {market}}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	if to != "" {
		q.Set("to", to)
	}
	err := c.get(ctx, "/candles/"+path, q, &out)
	return out, err
}

func (c *Client) Trades(ctx context.Context, market string, count int) ([]tradeDTO, error) {
	var out []tradeDTO
	q := url.Values{"market": {market}}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	err := c.get(ctx, "/trades/ticks", q, &out)
	return out, err
}
