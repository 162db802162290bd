package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/ports"
)

// CommandHandler exposes the server-originated OCPP operations plus the
// local configuration mutations.
type CommandHandler struct {
	control  ports.ControlService
	chargers ports.ChargePointService
	log      *zap.Logger
}

func NewCommandHandler(control ports.ControlService, chargers ports.ChargePointService, log *zap.Logger) *CommandHandler {
	return &CommandHandler{control: control, chargers: chargers, log: log}
}

type remoteStartRequest struct {
	ChargePointID string `json:"chargePointId"`
	IdTag         string `json:"idTag"`
	ConnectorID   *int   `json:"connectorId"`
}

func (h *CommandHandler) RemoteStart(c *fiber.Ctx) error {
	var req remoteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ChargePointID == "" || req.IdTag == "" {
		return fiber.NewError(fiber.StatusBadRequest, "chargePointId and idTag are required")
	}

	status, err := h.control.RemoteStart(c.Context(), req.ChargePointID, req.IdTag, req.ConnectorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type remoteStopRequest struct {
	ChargePointID string `json:"chargePointId"`
	TransactionID *int   `json:"transactionId"`
}

func (h *CommandHandler) RemoteStop(c *fiber.Ctx) error {
	var req remoteStopRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ChargePointID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "chargePointId is required")
	}

	status, err := h.control.RemoteStop(c.Context(), req.ChargePointID, req.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type resetRequest struct {
	Type string `json:"type"`
}

func (h *CommandHandler) Reset(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := h.control.Reset(c.Context(), c.Params("id"), req.Type)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type changeAvailabilityRequest struct {
	ConnectorID int    `json:"connectorId"`
	Type        string `json:"type"`
}

func (h *CommandHandler) ChangeAvailability(c *fiber.Ctx) error {
	var req changeAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := h.control.ChangeAvailability(c.Context(), c.Params("id"), req.ConnectorID, req.Type)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type triggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage"`
}

func (h *CommandHandler) TriggerMessage(c *fiber.Ctx) error {
	var req triggerMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := h.control.TriggerMessage(c.Context(), c.Params("id"), req.RequestedMessage)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type unlockConnectorRequest struct {
	ConnectorID int `json:"connectorId"`
}

func (h *CommandHandler) UnlockConnector(c *fiber.Ctx) error {
	var req unlockConnectorRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	status, err := h.control.UnlockConnector(c.Context(), c.Params("id"), req.ConnectorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type getDiagnosticsRequest struct {
	Location string `json:"location"`
}

func (h *CommandHandler) GetDiagnostics(c *fiber.Ctx) error {
	var req getDiagnosticsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.control.GetDiagnostics(c.Context(), c.Params("id"), req.Location)
	if err != nil {
		return err
	}
	c.Set("Content-Type", "application/json")
	return c.Send(result)
}

type updateFirmwareRequest struct {
	Location     string    `json:"location"`
	RetrieveDate time.Time `json:"retrieveDate"`
}

func (h *CommandHandler) UpdateFirmware(c *fiber.Ctx) error {
	var req updateFirmwareRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.RetrieveDate.IsZero() {
		req.RetrieveDate = time.Now().UTC()
	}

	if err := h.control.UpdateFirmware(c.Context(), c.Params("id"), req.Location, req.RetrieveDate); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "Accepted"})
}

type updateLocationRequest struct {
	ChargePointID string  `json:"chargePointId"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Address       string  `json:"address"`
}

// UpdateLocation is local: no OCPP call leaves the server.
func (h *CommandHandler) UpdateLocation(c *fiber.Ctx) error {
	var req updateLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ChargePointID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "chargePointId is required")
	}

	if err := h.chargers.UpdateLocation(c.Context(), req.ChargePointID, req.Latitude, req.Longitude, req.Address); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type updatePriceRequest struct {
	ChargePointID string   `json:"chargePointId"`
	PricePerKWh   float64  `json:"pricePerKwh"`
	RateKW        *float64 `json:"rateKw"`
}

// UpdatePrice is local: no OCPP call leaves the server.
func (h *CommandHandler) UpdatePrice(c *fiber.Ctx) error {
	var req updatePriceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ChargePointID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "chargePointId is required")
	}

	if err := h.chargers.UpdatePricing(c.Context(), req.ChargePointID, req.PricePerKWh, req.RateKW); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
