package httpapi

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"quotehub.com/internal/market/model"
	"quotehub.com/pkg/common"
	"quotehub.com/pkg/logger"
	"quotehub.com/pkg/xerr"
)

// MarketService 由 orchestrator.Service 实现
type MarketService interface {
	GetMarketData(ctx context.Context, q model.QueryParams) ([]model.Record, error)
	RefreshCache(ctx context.Context, ac model.AssetClass, dt model.DataType, limit int) ([]model.Record, error)
}

type Market struct {
	svc MarketService
}

// Get GET /api/market/:assetClass/:dataType?symbols=&limit=&timeframe=&orderBy=&start=&end=&provider=
func (m *Market) Get(c *gin.Context) {
	ac, dt, err := pathParams(c)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	tf, err := model.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		common.FailFromErr(c, xerr.New(xerr.RequestParamsError, err.Error()))
		return
	}

	q := model.QueryParams{
		AssetClass: ac,
		DataType:   dt,
		Symbols:    c.QueryArray("symbols"),
		Limit:      limit,
		Timeframe:  tf,
		OrderBy:    c.Query("orderBy"),
		Start:      c.Query("start"),
		End:        c.Query("end"),
		Provider:   c.Query("provider"),
	}
	recs, err := m.svc.GetMarketData(c.Request.Context(), q)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	common.Success(c, recs)
}

// Refresh POST /api/market/:assetClass/:dataType/refresh?limit=
func (m *Market) Refresh(c *gin.Context) {
	ac, dt, err := pathParams(c)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	recs, err := m.svc.RefreshCache(c.Request.Context(), ac, dt, limit)
	if err != nil {
		common.FailFromErr(c, err)
		return
	}
	logger.Info(c.Request.Context(), "cache refreshed manually",
		zap.String("asset_class", string(ac)),
		zap.String("data_type", string(dt)),
		zap.Int("records", len(recs)),
	)
	common.Success(c, gin.H{"count": len(recs)})
}

func pathParams(c *gin.Context) (model.AssetClass, model.DataType, error) {
	ac, err := model.ParseAssetClass(c.Param("assetClass"))
	if err != nil {
		return "", "", xerr.Wrap(err, xerr.UnsupportedRouting, err.Error())
	}
	dt, err := model.ParseDataType(c.Param("dataType"))
	if err != nil {
		return "", "", xerr.Wrap(err, xerr.UnsupportedRouting, err.Error())
	}
	return ac, dt, nil
}

func limitParam(c *gin.Context) (int, error) {
	s := c.Query("limit")
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, xerr.New(xerr.RequestParamsError, "limit must be a non-negative integer")
	}
	return n, nil
}
