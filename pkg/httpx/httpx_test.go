package httpx_test

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"quotehub.com/pkg/httpx"
	"quotehub.com/pkg/httpx/httpxmock"
)

func TestGetJSON(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "KRW-BTC", req.URL.Query().Get("markets"))
			assert.Equal(t, "k", req.Header.Get("X-Key"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(`{"price":"1.5"}`)),
			}, nil
		}).
		Times(1)

	var out struct {
		Price string `json:"price"`
	}
	err := httpx.GetJSON(t.Context(), doer, "https://example.test/v1/ticker",
		url.Values{"markets": {"KRW-BTC"}}, http.Header{"X-Key": {"k"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "1.5", out.Price)
}

func TestGetJSON_StatusError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusTooManyRequests,
			Body:       io.NopCloser(strings.NewReader("slow down")),
		}, nil)

	var out map[string]any
	err := httpx.GetJSON(t.Context(), doer, "https://example.test/x", nil, nil, &out)
	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, "slow down", se.Body)
}
