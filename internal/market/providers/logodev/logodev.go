// Package logodev builds logo.dev image URLs for equity tickers.
package logodev

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

const baseURL = "https://img.logo.dev/ticker/"

var ErrNotFound = errors.New("logo not found")

type Config struct {
	Token string `mapstructure:"token"`
}

// Source 只拼 URL，不发请求；图片由客户端直接拉取
type Source struct {
	token string
}

func New(cfg Config) *Source {
	return &Source{token: strings.TrimSpace(cfg.Token)}
}

// Lookup BRK.B -> .../ticker/BRK-B?token=...&retina=true
func (s *Source) Lookup(_ context.Context, symbol string) (string, error) {
	if s.token == "" || symbol == "" {
		return "", ErrNotFound
	}
	q := url.Values{"token": {s.token}, "retina": {"true"}}
	return baseURL + url.PathEscape(strings.ReplaceAll(symbol, ".", "-")) + "?" + q.Encode(), nil
}
