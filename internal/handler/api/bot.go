package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	"BlockTrader/internal/services/market"
	xhttp "BlockTrader/pkg/http"
	"BlockTrader/pkg/http/middleware"
	xlogger "BlockTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// BotController is the slice of the decision engine the API drives.
type BotController interface {
	Status() models.BotStatus
	LastReport() (models.DecisionReport, bool)
	ScanPatterns(ctx context.Context, tf domrepo.Timeframe, count int) ([]models.ScoredPattern, error)
	MinScore() float64
	Start()
	Stop()
}

// ExecutionApplier applies execution events to trading state.
type ExecutionApplier interface {
	Apply(ctx context.Context, ev models.ExecutionEvent) error
}

// BotHandler serves status, reports and control endpoints.
type BotHandler struct {
	logger *xlogger.Logger
	bot    BotController
	exec   ExecutionApplier
	auth   echo.MiddlewareFunc
}

// NewBotHandler wires the handler. auth guards the mutating routes; nil
// leaves them open, which only tests should do.
func NewBotHandler(logger *xlogger.Logger, bot BotController, exec ExecutionApplier, auth echo.MiddlewareFunc) *BotHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &BotHandler{logger: logger, bot: bot, exec: exec, auth: auth}
}

func (h *BotHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/decisions/latest", h.LatestDecision)
	g.GET("/patterns", h.Patterns)

	var guard []echo.MiddlewareFunc
	if h.auth != nil {
		guard = append(guard, h.auth)
	}
	g.POST("/bot/start", h.StartBot, guard...)
	g.POST("/bot/stop", h.StopBot, guard...)
	g.POST("/executions", h.Execution, guard...)
}

func (h *BotHandler) Status(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.bot.Status())
}

func (h *BotHandler) LatestDecision(c echo.Context) error {
	r, ok := h.bot.LastReport()
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no decision cycle has run yet"))
	}
	return xhttp.SuccessResponse(c, r)
}

type patternsResponse struct {
	Timeframe   string                 `json:"timeframe"`
	MinScore    float64                `json:"min_score"`
	Patterns    []models.ScoredPattern `json:"patterns"`
	HighQuality int                    `json:"high_quality"`
}

func (h *BotHandler) Patterns(c echo.Context) error {
	req := &models.PatternsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	scored, err := h.bot.ScanPatterns(c.Request().Context(), tf, req.Count)
	if err != nil {
		h.logger.Warn("pattern scan failed", xlogger.String("tf", string(tf)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, scanError(err))
	}
	res := patternsResponse{Timeframe: string(tf), MinScore: h.bot.MinScore(), Patterns: scored}
	if res.Patterns == nil {
		res.Patterns = []models.ScoredPattern{}
	}
	for _, sp := range scored {
		if sp.Score >= res.MinScore {
			res.HighQuality++
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func scanError(err error) error {
	var dv *market.DataValidationError
	switch {
	case errors.Is(err, domrepo.ErrDataUnavailable):
		return xhttp.UnavailableError(err.Error()).WithError(err)
	case errors.As(err, &dv):
		return xhttp.InvalidDataError(dv.Field, err.Error()).WithError(err)
	default:
		return xhttp.InternalError("pattern scan failed").WithError(err)
	}
}

func (h *BotHandler) StartBot(c echo.Context) error {
	h.bot.Start()
	h.logger.Info("bot started via api", xlogger.String("subject", subject(c)))
	return xhttp.SuccessResponse(c, h.bot.Status())
}

func (h *BotHandler) StopBot(c echo.Context) error {
	h.bot.Stop()
	h.logger.Info("bot stopped via api", xlogger.String("subject", subject(c)))
	return xhttp.SuccessResponse(c, h.bot.Status())
}

func (h *BotHandler) Execution(c echo.Context) error {
	req := &models.ExecutionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ev := models.ExecutionEvent{
		Type:        models.ExecutionEventType(req.Type),
		OrderID:     req.OrderID,
		Side:        models.Side(strings.ToUpper(req.Side)),
		Quantity:    req.Quantity,
		FillPrice:   req.FillPrice,
		ExitPrice:   req.ExitPrice,
		RealizedPnL: req.RealizedPnL,
		Reason:      req.Reason,
		Timestamp:   time.Now().UTC(),
	}
	if err := h.exec.Apply(c.Request().Context(), ev); err != nil {
		h.logger.Error("execution apply failed", xlogger.String("type", req.Type), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	return xhttp.CreatedResponse(c, h.bot.Status().State)
}

func subject(c echo.Context) string {
	if claims, ok := c.Get(middleware.ClaimsKey).(interface{ GetSubject() (string, error) }); ok {
		if s, err := claims.GetSubject(); err == nil {
			return s
		}
	}
	return "anonymous"
}
