package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	models "FXForecast/internal/domain/models"
	"FXForecast/internal/service/ratelimit"
	"FXForecast/internal/usecase"
	xhttp "FXForecast/pkg/http"
	xlogger "FXForecast/pkg/logger"
)

// HealthCheck checks one infrastructure dependency.
type HealthCheck func(ctx context.Context) error

// ModelsEchoHandler serves health, model status and manual training triggers.
type ModelsEchoHandler struct {
	logger   *xlogger.Logger
	registry *usecase.Registry
	trainer  usecase.TrainRunner
	checks   map[string]HealthCheck
	rl       *ratelimit.Limiter
}

func NewModelsEchoHandler(logger *xlogger.Logger, registry *usecase.Registry, trainer usecase.TrainRunner, checks map[string]HealthCheck) *ModelsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ModelsEchoHandler{logger: logger, registry: registry, trainer: trainer, checks: checks}
}

// SetLimiter throttles manual training triggers per symbol.
func (h *ModelsEchoHandler) SetLimiter(rl *ratelimit.Limiter) { h.rl = rl }

func (h *ModelsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/models")
	g.GET("/status", h.Status)
	if h.trainer != nil {
		g.POST("/train", h.Train)
	}
}

func (h *ModelsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			deps[name] = err.Error()
			healthy = false
			continue
		}
		deps[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, deps)
	}
	return xhttp.SuccessResponse(c, deps)
}

func (h *ModelsEchoHandler) Status(c echo.Context) error {
	req := &models.StatusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Symbol == "" {
		return xhttp.SuccessResponse(c, h.registry.All())
	}
	st, ok := h.registry.Status(strings.ToUpper(req.Symbol))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no model status for %s", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, st)
}

// Train starts a training run in the background and returns immediately.
func (h *ModelsEchoHandler) Train(c echo.Context) error {
	req := &models.TrainHTTPRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := usecase.ParseTrainRequest(models.TrainRequest{Symbol: req.Symbol, From: req.From, To: req.To})
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%s", err.Error()))
	}
	if h.rl != nil && !h.rl.Allow(p.Symbol) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_RATE_LIMITED", "symbol",
			"training for "+p.Symbol+" was triggered recently", http.StatusTooManyRequests))
	}

	go func() {
		if _, err := h.trainer.Run(context.Background(), p); err != nil {
			h.logger.Error("manual training failed", xlogger.String("symbol", p.Symbol), xlogger.Error(err))
		}
	}()
	return xhttp.AcceptedResponse(c, map[string]string{"symbol": p.Symbol, "status": "accepted"})
}
