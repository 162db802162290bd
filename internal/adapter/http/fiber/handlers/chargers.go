package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ports"
)

type ChargerHandler struct {
	service ports.ChargePointService
	log     *zap.Logger
}

func NewChargerHandler(service ports.ChargePointService, log *zap.Logger) *ChargerHandler {
	return &ChargerHandler{service: service, log: log}
}

func (h *ChargerHandler) List(c *fiber.Ctx) error {
	filter := map[string]interface{}{}
	if status := c.Query("physical_status"); status != "" {
		filter["physical_status"] = status
	}
	if status := c.Query("operational_status"); status != "" {
		filter["operational_status"] = status
	}
	if vendor := c.Query("vendor"); vendor != "" {
		filter["vendor"] = vendor
	}

	views, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"chargers": views, "count": len(views)})
}

func (h *ChargerHandler) Get(c *fiber.Ctx) error {
	view, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// ListPending serves the operator onboarding flow: chargers seen on a
// transport but not yet configured.
func (h *ChargerHandler) ListPending(c *fiber.Ctx) error {
	views, err := h.service.ListPending(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"chargers": views, "count": len(views)})
}

type createChargerRequest struct {
	ID          string   `json:"id"`
	Vendor      string   `json:"vendor"`
	Model       string   `json:"model"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Address     *string  `json:"address"`
	PricePerKWh *float64 `json:"price_per_kwh"`
	RateKW      *float64 `json:"rate_kw"`
}

func (h *ChargerHandler) Create(c *fiber.Ctx) error {
	var req createChargerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id is required")
	}

	cp := &domain.ChargePoint{
		ID:          req.ID,
		Vendor:      req.Vendor,
		Model:       req.Model,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
		PricePerKWh: req.PricePerKWh,
		RateKW:      req.RateKW,
	}
	if err := h.service.Provision(c.Context(), cp); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cp)
}

// Credentials returns the broker credentials for a provisioned device.
func (h *ChargerHandler) Credentials(c *fiber.Ctx) error {
	creds, err := h.service.Credentials(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(creds)
}

func (h *ChargerHandler) History(c *fiber.Ctx) error {
	from, to := windowFromQuery(c)
	sessions, err := h.service.History(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

// windowFromQuery parses the from/to query window, defaulting to the last
// 24 hours.
func windowFromQuery(c *fiber.Ctx) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now
	if v := c.Query("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			from = ts
		}
	}
	if v := c.Query("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			to = ts
		}
	}
	return from, to
}
