package api

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"BloomPull/internal/analytics"
	"BloomPull/internal/domain/models"
	"BloomPull/internal/domain/repository"
	"BloomPull/internal/usecase"
	xhttp "BloomPull/pkg/http"
	xlogger "BloomPull/pkg/logger"
	"BloomPull/pkg/util"
)

// MarketDataHandler exposes the read surface and the refresh trigger over
// Echo. All data endpoints serve cache or committed rows; only /refresh can
// cause upstream traffic, and even that goes through the orchestrator.
type MarketDataHandler struct {
	logger  *xlogger.Logger
	md      *usecase.MarketData
	refresh *usecase.Refresh
	ws      *StatusStream
}

func NewMarketDataHandler(logger *xlogger.Logger, md *usecase.MarketData, refresh *usecase.Refresh, ws *StatusStream) *MarketDataHandler {
	return &MarketDataHandler{logger: logger, md: md, refresh: refresh, ws: ws}
}

func (h *MarketDataHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Healthz)

	g := e.Group("/api/v1")
	g.GET("/instrument", h.Instrument)
	g.GET("/instruments", h.Instruments)
	g.GET("/series", h.Series)
	g.GET("/macro", h.Macro)
	g.GET("/news", h.News)
	g.GET("/metric", h.Metric)
	g.POST("/screener", h.Screener)
	g.GET("/movers", h.MoversTop)
	g.GET("/regime", h.Regime)
	g.GET("/status", h.Status)
	g.GET("/status/ws", h.StatusWS)
	g.POST("/refresh", h.Refresh)
}

func (h *MarketDataHandler) Healthz(c echo.Context) error {
	if err := h.md.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("storage unavailable"))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *MarketDataHandler) Instrument(c echo.Context) error {
	req := &InstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	key := models.NewInstrumentKey(req.Symbol, models.AssetClass(req.Class), req.Venue)
	ins, err := h.md.GetInstrument(c.Request().Context(), key)
	if errors.Is(err, models.ErrNotFound) {
		return xhttp.NotFoundResponse(c, key.String())
	}
	if err != nil {
		h.logger.Error("instrument usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, ins)
}

func (h *MarketDataHandler) Instruments(c echo.Context) error {
	req := &ListInstrumentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ins, err := h.md.ListInstruments(c.Request().Context(), models.AssetClass(req.Class))
	if err != nil {
		h.logger.Error("instruments usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, ins, int64(len(ins)))
}

func (h *MarketDataHandler) Series(c echo.Context) error {
	req := &SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !models.Source(req.Source).Valid() {
		return xhttp.BadRequestResponse(c, "unknown source "+req.Source)
	}

	r, ok := parseRange(req.From, req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid from/to")
	}
	if r.IsZero() && req.Lookback != "" {
		r = repository.NormalizeLookback(req.Lookback).RangeEnding(time.Now())
	}
	res, err := h.md.GetSeries(c.Request().Context(), req.seriesKey(), r, req.Limit)
	if err != nil {
		h.logger.Error("series usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketDataHandler) Macro(c echo.Context) error {
	req := &MacroRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	r, ok := parseRange(req.From, req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid from/to")
	}
	series, err := h.md.GetMacro(c.Request().Context(), models.Source(req.Provider), req.SeriesID, r)
	if errors.Is(err, models.ErrNotFound) {
		return xhttp.NotFoundResponse(c, req.SeriesID)
	}
	if err != nil {
		h.logger.Error("macro usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, series)
}

func (h *MarketDataHandler) News(c echo.Context) error {
	req := &NewsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	r, ok := parseRange(req.From, req.To)
	if !ok {
		return xhttp.BadRequestResponse(c, "invalid from/to")
	}
	items, err := h.md.GetNews(c.Request().Context(), r, req.Limit)
	if err != nil {
		h.logger.Error("news usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, items, int64(len(items)))
}

func (h *MarketDataHandler) Metric(c echo.Context) error {
	req := &MetricRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind := models.MetricKind(req.Kind)
	if !kind.Valid() {
		return xhttp.BadRequestResponse(c, "unknown metric kind "+req.Kind)
	}
	var asOf time.Time
	if req.AsOf != "" {
		t, ok := util.ParseTime(req.AsOf)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid asof")
		}
		asOf = t
	}

	res, err := h.md.GetMetric(c.Request().Context(), req.seriesKey(), models.MetricSpec{Kind: kind, Window: req.Window}, asOf)
	if err != nil {
		h.logger.Error("metric usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketDataHandler) Screener(c echo.Context) error {
	req := &ScreenerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.md.Screen(c.Request().Context(), analytics.ScreenerQuery{
		Predicates: req.Predicates,
		RankBy:     models.MetricKind(req.RankBy),
		RankWindow: req.RankWindow,
		Descending: req.Descending,
		Limit:      req.Limit,
	})
	if err != nil {
		h.logger.Error("screener usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *MarketDataHandler) MoversTop(c echo.Context) error {
	req := &MoversRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Universe != "" && req.Universe != h.md.UniverseName() {
		return xhttp.NotFoundResponse(c, "universe "+req.Universe)
	}

	movers, err := h.md.Movers(c.Request().Context(), req.N)
	if err != nil {
		h.logger.Error("movers usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, movers)
}

func (h *MarketDataHandler) Regime(c echo.Context) error {
	req := &RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	series := models.SeriesKey{
		Instrument: models.NewInstrumentKey(req.Symbol, models.AssetClass(req.Class), req.Venue),
		Source:     models.Source(req.Source),
	}
	snap, err := h.md.Regime(c.Request().Context(), series)
	if errors.Is(err, models.ErrInsufficientHistory) {
		return xhttp.NotFoundResponse(c, "no bars for "+series.String())
	}
	if err != nil {
		h.logger.Error("regime usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *MarketDataHandler) Status(c echo.Context) error {
	req := &StatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.md.Status(c.Request().Context(), req.Runs)
	if err != nil {
		h.logger.Error("status usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, report)
}

func (h *MarketDataHandler) StatusWS(c echo.Context) error {
	return h.ws.Serve(c)
}

// Refresh enqueues an ingestion job and returns its handle with 202. A scope
// already in flight returns the existing handle instead of a duplicate job.
func (h *MarketDataHandler) Refresh(c echo.Context) error {
	req := &RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	scope := models.Scope{
		Source:   models.Source(req.Source),
		Class:    models.AssetClass(req.Class),
		Venue:    req.Venue,
		Symbols:  req.Symbols,
		MacroIDs: req.MacroIDs,
	}
	if from, ok := util.ParseTime(req.From); ok {
		scope.Range.From = from
	}
	if to, ok := util.ParseTime(req.To); ok {
		scope.Range.To = to
	}

	view, deduped, err := h.refresh.Request(scope)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"job":     view,
		"deduped": deduped,
	})
}

// parseRange builds the half-open query window. Empty bounds stay zero and
// mean "unbounded" to the layers below.
func parseRange(from, to string) (models.DateRange, bool) {
	var r models.DateRange
	if from != "" {
		t, ok := util.ParseTime(from)
		if !ok {
			return r, false
		}
		r.From = t
	}
	if to != "" {
		t, ok := util.ParseTime(to)
		if !ok {
			return r, false
		}
		r.To = t.Add(24 * time.Hour)
	}
	return r, true
}
