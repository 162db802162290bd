package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ocpp"
)

// ErrorHandler maps engine errors onto HTTP responses. Charger-relayed
// CALLERRORs surface with their OCPP code so operators see what the
// hardware answered.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		kind := "InternalError"

		var fe *fiber.Error
		var ce *ocpp.CallError
		switch {
		case errors.As(err, &fe):
			code = fe.Code
			kind = "HTTPError"
		case errors.Is(err, domain.ErrNotFound):
			code = fiber.StatusNotFound
			kind = "NotFound"
		case errors.Is(err, domain.ErrChargerOffline):
			code = fiber.StatusConflict
			kind = "ChargerOffline"
		case errors.Is(err, domain.ErrChargerBusy):
			code = fiber.StatusTooManyRequests
			kind = "ChargerBusy"
		case errors.Is(err, domain.ErrCallTimeout):
			code = fiber.StatusGatewayTimeout
			kind = "Timeout"
		case errors.Is(err, domain.ErrChargerDisconnected):
			code = fiber.StatusConflict
			kind = "ChargerDisconnected"
		case errors.Is(err, domain.ErrNoActiveTransaction), errors.Is(err, domain.ErrAmbiguousTransaction):
			code = fiber.StatusConflict
			kind = "TransactionState"
		case errors.Is(err, domain.ErrInvalidCredentials):
			code = fiber.StatusUnauthorized
			kind = "Unauthorized"
		case errors.As(err, &ce):
			code = fiber.StatusBadGateway
			kind = string(ce.Code)
		}

		if code == fiber.StatusInternalServerError {
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
			"kind":  kind,
		})
	}
}
