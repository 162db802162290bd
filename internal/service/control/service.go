package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ocpp"
	"github.com/andescharge/csms/internal/ports"
)

// Service is the control API: it turns operator requests into
// server-originated OCPP calls through the router's dispatcher. Every OCPP
// operation rejects with ErrChargerOffline when the session is not online.
type Service struct {
	disp     ports.Dispatcher
	sessions ports.SessionRepository
	timeout  time.Duration
	log      *zap.Logger
}

func NewService(disp ports.Dispatcher, sessions ports.SessionRepository, callTimeout time.Duration, log *zap.Logger) ports.ControlService {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Service{
		disp:     disp,
		sessions: sessions,
		timeout:  callTimeout,
		log:      log,
	}
}

func (s *Service) dispatchStatus(ctx context.Context, chargerID, action string, payload interface{}) (string, error) {
	raw, err := s.disp.Dispatch(ctx, chargerID, action, payload, s.timeout)
	if err != nil {
		return "", err
	}
	var resp ocpp.GenericStatusResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("malformed %s result: %w", action, err)
	}
	return resp.Status, nil
}

func (s *Service) RemoteStart(ctx context.Context, chargerID, idTag string, connectorID *int) (string, error) {
	if idTag == "" {
		return "", fmt.Errorf("idTag is required")
	}
	status, err := s.dispatchStatus(ctx, chargerID, ocpp.ActionRemoteStartTransaction, ocpp.RemoteStartTransactionReq{
		IdTag:       idTag,
		ConnectorID: connectorID,
	})
	if err != nil {
		return "", err
	}
	s.log.Info("remote start dispatched",
		zap.String("charger_id", chargerID),
		zap.String("id_tag", idTag),
		zap.String("status", status),
	)
	return status, nil
}

// RemoteStop resolves the transaction to stop when the caller omits it: the
// charge point must then have exactly one active session.
func (s *Service) RemoteStop(ctx context.Context, chargerID string, transactionID *int) (string, error) {
	var txID int
	if transactionID != nil {
		txID = *transactionID
	} else {
		active, err := s.sessions.FindActiveByChargePoint(ctx, chargerID)
		if err != nil {
			return "", err
		}
		switch len(active) {
		case 0:
			return "", fmt.Errorf("charge point %s: %w", chargerID, domain.ErrNoActiveTransaction)
		case 1:
			txID = active[0].TransactionID
		default:
			return "", fmt.Errorf("charge point %s has %d active transactions: %w", chargerID, len(active), domain.ErrAmbiguousTransaction)
		}
	}

	status, err := s.dispatchStatus(ctx, chargerID, ocpp.ActionRemoteStopTransaction, ocpp.RemoteStopTransactionReq{
		TransactionID: txID,
	})
	if err != nil {
		return "", err
	}
	s.log.Info("remote stop dispatched",
		zap.String("charger_id", chargerID),
		zap.Int("transaction_id", txID),
		zap.String("status", status),
	)
	return status, nil
}

func (s *Service) Reset(ctx context.Context, chargerID, resetType string) (string, error) {
	if resetType != "Hard" && resetType != "Soft" {
		return "", fmt.Errorf("reset type must be Hard or Soft")
	}
	return s.dispatchStatus(ctx, chargerID, ocpp.ActionReset, ocpp.ResetReq{Type: resetType})
}

func (s *Service) ChangeAvailability(ctx context.Context, chargerID string, connectorID int, availabilityType string) (string, error) {
	if availabilityType != "Operative" && availabilityType != "Inoperative" {
		return "", fmt.Errorf("availability type must be Operative or Inoperative")
	}
	return s.dispatchStatus(ctx, chargerID, ocpp.ActionChangeAvailability, ocpp.ChangeAvailabilityReq{
		ConnectorID: connectorID,
		Type:        availabilityType,
	})
}

func (s *Service) TriggerMessage(ctx context.Context, chargerID, requestedMessage string) (string, error) {
	return s.dispatchStatus(ctx, chargerID, ocpp.ActionTriggerMessage, ocpp.TriggerMessageReq{
		RequestedMessage: requestedMessage,
	})
}

func (s *Service) UnlockConnector(ctx context.Context, chargerID string, connectorID int) (string, error) {
	if connectorID < 1 {
		return "", fmt.Errorf("connectorId must be >= 1")
	}
	return s.dispatchStatus(ctx, chargerID, ocpp.ActionUnlockConnector, ocpp.UnlockConnectorReq{
		ConnectorID: connectorID,
	})
}

func (s *Service) GetDiagnostics(ctx context.Context, chargerID, location string) (json.RawMessage, error) {
	if location == "" {
		return nil, fmt.Errorf("location is required")
	}
	return s.disp.Dispatch(ctx, chargerID, ocpp.ActionGetDiagnostics, ocpp.GetDiagnosticsReq{
		Location: location,
	}, s.timeout)
}

func (s *Service) UpdateFirmware(ctx context.Context, chargerID, location string, retrieveDate time.Time) error {
	if location == "" {
		return fmt.Errorf("location is required")
	}
	// UpdateFirmware has an empty CALLRESULT; progress arrives later as
	// FirmwareStatusNotification.
	_, err := s.disp.Dispatch(ctx, chargerID, ocpp.ActionUpdateFirmware, ocpp.UpdateFirmwareReq{
		Location:     location,
		RetrieveDate: retrieveDate.UTC().Format(time.RFC3339),
	}, s.timeout)
	return err
}
