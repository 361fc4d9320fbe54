package controller

import (
	"context"
	"time"

	"rag-agent-be/internal/constant"
	"rag-agent-be/internal/dto"
	"rag-agent-be/internal/observability"
	"rag-agent-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Liveness(ctx *fiber.Ctx) error
	Readiness(ctx *fiber.Ctx) error
}

type healthController struct {
	checker *observability.HealthChecker
	metrics *observability.Metrics
}

func NewHealthController(checker *observability.HealthChecker, metrics *observability.Metrics) IHealthController {
	return &healthController{
		checker: checker,
		metrics: metrics,
	}
}

// RegisterRoutes mounts the probes at the root, outside /api.
func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/", c.Liveness)
	r.Get("/health", c.Readiness)
	if c.metrics != nil {
		r.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

func (c *healthController) Liveness(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"status": constant.LivenessStatus})
}

// Readiness answers 503 when a critical dependency is down. Non-critical
// failures report "degraded" with 200.
func (c *healthController) Readiness(ctx *fiber.Ctx) error {
	checkCtx, cancel := context.WithTimeout(ctx.UserContext(), 5*time.Second)
	defer cancel()

	report := c.checker.Check(checkCtx)

	res := dto.HealthResponse{
		Status: string(report.Status),
		Checks: make([]dto.HealthCheckResponse, 0, len(report.Checks)),
	}
	for _, r := range report.Checks {
		res.Checks = append(res.Checks, dto.HealthCheckResponse{
			Name:      r.Name,
			Status:    string(r.Status),
			Critical:  r.Critical,
			Message:   r.Message,
			LatencyMs: r.Duration.Milliseconds(),
		})
	}

	status := fiber.StatusOK
	if !report.Ready() {
		status = fiber.StatusServiceUnavailable
	}
	return ctx.Status(status).JSON(serverutils.BaseResponse[dto.HealthResponse]{
		Success: report.Ready(),
		Code:    status,
		Message: "Health report",
		Data:    res,
	})
}
