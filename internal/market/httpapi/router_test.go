package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/provider"
	"quotehub.com/pkg/common"
	"quotehub.com/pkg/xerr"
)

type fakeService struct {
	got     model.QueryParams
	refresh struct {
		ac    model.AssetClass
		dt    model.DataType
		limit int
	}
	err error
}

func (f *fakeService) GetMarketData(_ context.Context, q model.QueryParams) ([]model.Record, error) {
	f.got = q
	if f.err != nil {
		return nil, f.err
	}
	return []model.Record{{Asset: model.Asset{Symbol: "AAPL", Name: "Apple Inc."}}}, nil
}

func (f *fakeService) RefreshCache(_ context.Context, ac model.AssetClass, dt model.DataType, limit int) ([]model.Record, error) {
	f.refresh.ac, f.refresh.dt, f.refresh.limit = ac, dt, limit
	if f.err != nil {
		return nil, f.err
	}
	return make([]model.Record, 3), nil
}

func do(t *testing.T, r http.Handler, method, path string) (*httptest.ResponseRecorder, common.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var resp common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func newTestRouter(svc MarketService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(svc, Options{Service: "market-test"})
}

func TestGet_ParsesQuery(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	w, resp := do(t, r, http.MethodGet, "/api/market/stocks/candles?symbols=aapl,msft&symbols=AAPL&limit=100&timeframe=1d&start=2025-03-03&provider=Alpaca")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.NotEmpty(t, w.Header().Get(common.HeaderRequestID))

	assert.Equal(t, model.Equity, svc.got.AssetClass)
	assert.Equal(t, model.Candles, svc.got.DataType)
	assert.Equal(t, []string{"aapl,msft", "AAPL"}, svc.got.Symbols)
	assert.Equal(t, 100, svc.got.Limit)
	assert.Equal(t, model.TF1Day, svc.got.Timeframe)
	assert.Equal(t, "2025-03-03", svc.got.Start)
	assert.Equal(t, "Alpaca", svc.got.Provider)

	data, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestGet_Errors(t *testing.T) {
	cases := []struct {
		path   string
		err    error
		status int
		code   int
	}{
		{"/api/market/forex/assets", nil, http.StatusNotFound, xerr.UnsupportedRouting},
		{"/api/market/equity/news", nil, http.StatusNotFound, xerr.UnsupportedRouting},
		{"/api/market/equity/assets?limit=-1", nil, http.StatusBadRequest, xerr.RequestParamsError},
		{"/api/market/equity/candles?timeframe=2H", nil, http.StatusBadRequest, xerr.RequestParamsError},
		{"/api/market/crypto/candles", xerr.Wrap(provider.ErrUnsupportedDataType, xerr.MissingRequiredParameter, "symbols required"), http.StatusBadRequest, xerr.MissingRequiredParameter},
		{"/api/market/equity/gainers", xerr.Wrap(fmt.Errorf("dial tcp: secret-host"), xerr.UpstreamFailure, "alpaca gainers"), http.StatusBadGateway, xerr.UpstreamFailure},
	}
	for _, c := range cases {
		t.Run(c.path, func(t *testing.T) {
			r := newTestRouter(&fakeService{err: c.err})
			w, resp := do(t, r, http.MethodGet, c.path)
			assert.Equal(t, c.status, w.Code)
			assert.Equal(t, c.code, resp.Code)
			assert.NotContains(t, resp.Message, "secret-host")
		})
	}
}

func TestRefresh(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	w, resp := do(t, r, http.MethodPost, "/api/market/crypto/top-traded/refresh?limit=20")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.Crypto, svc.refresh.ac)
	assert.Equal(t, model.TopTraded, svc.refresh.dt)
	assert.Equal(t, 20, svc.refresh.limit)
	assert.Equal(t, map[string]any{"count": float64(3)}, resp.Data)
}

func TestHealthzAndWS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := false
	r := NewRouter(&fakeService{}, Options{Service: "market-test", WS: func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	}})

	w, resp := do(t, r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp.Data.(map[string]any)["status"])

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.True(t, called)
}
