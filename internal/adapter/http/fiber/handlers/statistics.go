package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/ports"
)

type StatisticsHandler struct {
	service ports.ChargePointService
	log     *zap.Logger
}

func NewStatisticsHandler(service ports.ChargePointService, log *zap.Logger) *StatisticsHandler {
	return &StatisticsHandler{service: service, log: log}
}

func (h *StatisticsHandler) HeartbeatHistory(c *fiber.Ctx) error {
	from, to := windowFromQuery(c)
	events, err := h.service.HeartbeatTimeline(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}

func (h *StatisticsHandler) StatusTimeline(c *fiber.Ctx) error {
	from, to := windowFromQuery(c)
	events, err := h.service.StatusTimeline(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}
