package csms

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/adapter/cache"
	"github.com/andescharge/csms/internal/adapter/queue"
	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ocpp"
)

// handleCall applies one validated inbound CALL to the state machine and
// the store, returning either the response payload or a CALLERROR.
func (s *Session) handleCall(ctx context.Context, action string, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	switch action {
	case ocpp.ActionBootNotification:
		return s.handleBootNotification(ctx, payload)
	case ocpp.ActionHeartbeat:
		return s.handleHeartbeat(ctx)
	case ocpp.ActionStatusNotification:
		return s.handleStatusNotification(ctx, payload)
	case ocpp.ActionAuthorize:
		return s.handleAuthorize(ctx, payload)
	case ocpp.ActionStartTransaction:
		return s.handleStartTransaction(ctx, payload)
	case ocpp.ActionMeterValues:
		return s.handleMeterValues(ctx, payload)
	case ocpp.ActionStopTransaction:
		return s.handleStopTransaction(ctx, payload)
	case ocpp.ActionDataTransfer:
		return s.handleDataTransfer(ctx, payload)
	case ocpp.ActionFirmwareStatusNotification:
		return s.handleFirmwareStatus(ctx, payload)
	case ocpp.ActionDiagnosticsStatusNotification:
		return s.handleDiagnosticsStatus(ctx, payload)
	}
	return nil, ocpp.NewCallError(ocpp.ErrorNotImplemented, "action "+action+" is not known")
}

func (s *Session) handleBootNotification(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.BootNotificationReq
	json.Unmarshal(payload, &req)

	now := time.Now().UTC()
	reject := func() (interface{}, *ocpp.CallError) {
		s.store.audit(ctx, s.log, s.chargerID, domain.EventKindBootRejected, nil, req)
		return ocpp.BootNotificationResp{
			Status:      "Rejected",
			CurrentTime: now.Format(time.RFC3339),
			Interval:    int(s.cfg.HeartbeatInterval.Seconds()),
		}, nil
	}

	cp, err := s.store.ChargePoints.FindByID(ctx, s.chargerID)
	if err != nil {
		return nil, s.storeError(ctx, "boot lookup", err)
	}

	switch {
	case cp == nil && !s.cfg.AutoProvision:
		s.log.Warn("boot from unknown charger rejected")
		return reject()
	case cp == nil:
		cp = &domain.ChargePoint{
			ID:                s.chargerID,
			PhysicalStatus:    domain.PhysicalStatusAvailable,
			OperationalStatus: domain.OperationalEnabled,
		}
	case cp.OperationalStatus == domain.OperationalDisabled:
		s.log.Warn("boot from disabled charger rejected")
		return reject()
	}

	cp.Vendor = req.ChargePointVendor
	cp.Model = req.ChargePointModel
	cp.FirmwareVersion = req.FirmwareVersion
	cp.LastSeen = now
	if err := s.store.ChargePoints.Save(ctx, cp); err != nil {
		return nil, s.storeError(ctx, "boot save", err)
	}

	s.setState(StateOnline)
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindBootAccepted, nil, req)
	s.publish(queue.SubjectDeviceEvents, map[string]interface{}{
		"charge_point_id": s.chargerID,
		"event":           "boot",
		"vendor":          req.ChargePointVendor,
		"model":           req.ChargePointModel,
	})

	s.log.Info("boot notification accepted",
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
	)

	return ocpp.BootNotificationResp{
		Status:      "Accepted",
		CurrentTime: now.Format(time.RFC3339),
		Interval:    int(s.cfg.HeartbeatInterval.Seconds()),
	}, nil
}

func (s *Session) handleHeartbeat(ctx context.Context) (interface{}, *ocpp.CallError) {
	now := time.Now().UTC()
	s.store.ChargePoints.UpdateLastSeen(ctx, s.chargerID, now)
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindHeartbeat, nil, nil)
	return ocpp.HeartbeatResp{CurrentTime: now.Format(time.RFC3339)}, nil
}

func (s *Session) handleStatusNotification(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.StatusNotificationReq
	json.Unmarshal(payload, &req)

	status := domain.PhysicalStatus(req.Status)
	if req.ErrorCode != "NoError" && req.ErrorCode != "" {
		status = domain.PhysicalStatusFaulted
	}

	if req.ConnectorID == 0 {
		// Connector 0 addresses the charge point itself.
		if err := s.store.ChargePoints.UpdatePhysicalStatus(ctx, s.chargerID, status); err != nil {
			return nil, s.storeError(ctx, "status update", err)
		}
	} else {
		evse := &domain.EVSE{
			ChargePointID: s.chargerID,
			ConnectorID:   req.ConnectorID,
			Status:        status,
			LastErrorCode: req.ErrorCode,
		}
		if err := s.store.ChargePoints.UpsertEVSE(ctx, evse); err != nil {
			return nil, s.storeError(ctx, "evse update", err)
		}
	}

	aggregate := status
	if req.ConnectorID != 0 {
		evses, err := s.store.ChargePoints.FindEVSEs(ctx, s.chargerID)
		if err == nil && len(evses) > 0 {
			allFaulted := true
			for _, e := range evses {
				if e.Status != domain.PhysicalStatusFaulted {
					allFaulted = false
					break
				}
			}
			if allFaulted {
				aggregate = domain.PhysicalStatusFaulted
				s.store.ChargePoints.UpdatePhysicalStatus(ctx, s.chargerID, domain.PhysicalStatusFaulted)
			} else {
				aggregate = ""
			}
		} else {
			aggregate = ""
		}
	}

	switch aggregate {
	case domain.PhysicalStatusFaulted:
		s.setState(StateFaulted)
	case domain.PhysicalStatusUnavailable:
		s.setState(StateUnavailable)
	case "":
		// Connector-level change that does not fault the charge point;
		// recover from Faulted once a connector reports healthy again.
		if s.currentState() == StateFaulted {
			s.setState(StateOnline)
		}
	default:
		if st := s.currentState(); st == StateFaulted || st == StateUnavailable {
			s.setState(StateOnline)
		}
	}

	cctx, cancelFn := context.WithTimeout(ctx, 2*time.Second)
	s.cache.Set(cctx, cache.StatusKey(s.chargerID), string(status), 0)
	cancelFn()

	evseID := req.ConnectorID
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindStatusChanged, &evseID, req)
	s.publish(queue.SubjectDeviceEvents, map[string]interface{}{
		"charge_point_id": s.chargerID,
		"event":           "status",
		"connector_id":    req.ConnectorID,
		"status":          req.Status,
		"error_code":      req.ErrorCode,
	})

	return struct{}{}, nil
}

func (s *Session) handleAuthorize(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.AuthorizeReq
	json.Unmarshal(payload, &req)

	status := s.authorizeTag(ctx, req.IdTag)
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindAuthorize, nil, map[string]interface{}{
		"id_tag": req.IdTag,
		"status": string(status),
	})

	return ocpp.AuthorizeResp{IdTagInfo: ocpp.IdTagInfo{Status: string(status)}}, nil
}

// authorizeTag consults the store first and falls back to the per-session
// cache when the store cannot answer, so recently seen tags keep working
// through a store outage.
func (s *Session) authorizeTag(ctx context.Context, tag string) domain.AuthorizationStatus {
	t, err := s.store.IdTags.Find(ctx, tag)
	if err != nil {
		if cached, ok := s.auth.get(tag); ok {
			return cached
		}
		s.log.Warn("id tag lookup failed with cold cache", zap.String("id_tag", tag), zap.Error(err))
		return domain.AuthorizationInvalid
	}

	status := domain.AuthorizationInvalid
	if t != nil {
		status = t.EffectiveStatus(time.Now().UTC())
	}

	s.auth.put(tag, status)
	cctx, cancelFn := context.WithTimeout(ctx, 2*time.Second)
	s.cache.Set(cctx, cache.IdTagKey(tag), string(status), s.cfg.AuthCacheTTL)
	cancelFn()
	return status
}

func (s *Session) handleStartTransaction(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.StartTransactionReq
	json.Unmarshal(payload, &req)

	status := s.authorizeTag(ctx, req.IdTag)
	if status != domain.AuthorizationAccepted {
		s.log.Info("start transaction rejected",
			zap.String("id_tag", req.IdTag),
			zap.String("auth_status", string(status)),
		)
		return ocpp.StartTransactionResp{
			TransactionID: -1,
			IdTagInfo:     ocpp.IdTagInfo{Status: string(domain.AuthorizationInvalid)},
		}, nil
	}

	startTime := ocpp.ParseTimestamp(req.Timestamp, time.Now().UTC())
	session, err := s.store.Sessions.StartTransaction(ctx, s.chargerID, req.ConnectorID, req.IdTag, req.MeterStart, startTime)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentTransaction) {
			return ocpp.StartTransactionResp{
				TransactionID: -1,
				IdTagInfo:     ocpp.IdTagInfo{Status: string(domain.AuthorizationConcurrentTx)},
			}, nil
		}
		return nil, s.storeError(ctx, "start transaction", err)
	}

	evseID := req.ConnectorID
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindTxStarted, &evseID, map[string]interface{}{
		"transaction_id": session.TransactionID,
		"id_tag":         req.IdTag,
		"meter_start":    req.MeterStart,
	})
	s.publish(queue.SubjectTransactionStarted, map[string]interface{}{
		"charge_point_id": s.chargerID,
		"transaction_id":  session.TransactionID,
		"connector_id":    req.ConnectorID,
		"id_tag":          req.IdTag,
		"start_time":      startTime.Format(time.RFC3339),
	})

	s.log.Info("transaction started",
		zap.Int("transaction_id", session.TransactionID),
		zap.Int("connector_id", req.ConnectorID),
	)

	return ocpp.StartTransactionResp{
		TransactionID: session.TransactionID,
		IdTagInfo:     ocpp.IdTagInfo{Status: string(domain.AuthorizationAccepted)},
	}, nil
}

func (s *Session) handleMeterValues(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.MeterValuesReq
	json.Unmarshal(payload, &req)

	if req.TransactionID == nil {
		s.store.audit(ctx, s.log, s.chargerID, domain.EventKindOrphanMeter, nil, map[string]interface{}{
			"reason": "missing transactionId",
		})
		return struct{}{}, nil
	}

	session, err := s.store.Sessions.FindByTransactionID(ctx, s.chargerID, *req.TransactionID)
	if err != nil {
		return nil, s.storeError(ctx, "meter session lookup", err)
	}
	if session == nil || session.Status != domain.SessionStatusActive {
		// Never create orphan meter values: unknown or closed transactions
		// get their samples discarded, with an audit trail.
		s.store.audit(ctx, s.log, s.chargerID, domain.EventKindOrphanMeter, nil, map[string]interface{}{
			"transaction_id": *req.TransactionID,
		})
		return struct{}{}, nil
	}

	last, err := s.store.Meters.LastTimestamp(ctx, session.ID)
	if err != nil {
		return nil, s.storeError(ctx, "meter last timestamp", err)
	}

	for _, entry := range req.MeterValue {
		ts := ocpp.ParseTimestamp(entry.Timestamp, time.Now().UTC())
		if !last.IsZero() && ts.Before(last) {
			clamped := last.Add(time.Millisecond)
			s.store.audit(ctx, s.log, s.chargerID, domain.EventKindClockSkew, &req.ConnectorID, map[string]interface{}{
				"transaction_id": *req.TransactionID,
				"reported":       ts.Format(time.RFC3339Nano),
				"clamped":        clamped.Format(time.RFC3339Nano),
			})
			ts = clamped
		}
		last = ts

		raw, _ := json.Marshal(entry)
		mv := &domain.MeterValue{
			SessionID:    session.ID,
			ConnectorID:  req.ConnectorID,
			Timestamp:    ts,
			Value:        energyValue(entry),
			SampledValue: string(raw),
		}
		if err := s.store.Meters.Save(ctx, mv); err != nil {
			return nil, s.storeError(ctx, "meter save", err)
		}
	}

	return struct{}{}, nil
}

func (s *Session) handleStopTransaction(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.StopTransactionReq
	json.Unmarshal(payload, &req)

	accepted := ocpp.StopTransactionResp{IdTagInfo: &ocpp.IdTagInfo{Status: string(domain.AuthorizationAccepted)}}

	price := 0.0
	if cp, err := s.store.ChargePoints.FindByID(ctx, s.chargerID); err == nil && cp != nil && cp.PricePerKWh != nil {
		price = *cp.PricePerKWh
	}

	endTime := ocpp.ParseTimestamp(req.Timestamp, time.Now().UTC())
	session, order, err := s.store.Sessions.StopTransaction(ctx, s.chargerID, req.TransactionID, req.MeterStop, endTime, price)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveTransaction) {
			// Double stop or replay across the dedup window: accept
			// idempotently, mutate nothing.
			existing, ferr := s.store.Sessions.FindByTransactionID(ctx, s.chargerID, req.TransactionID)
			if ferr == nil && existing == nil {
				s.store.audit(ctx, s.log, s.chargerID, domain.EventKindOrphanStop, nil, map[string]interface{}{
					"transaction_id": req.TransactionID,
				})
			}
			return accepted, nil
		}
		return nil, s.storeError(ctx, "stop transaction", err)
	}

	evseID := session.EVSEID
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindTxStopped, &evseID, map[string]interface{}{
		"transaction_id": session.TransactionID,
		"meter_stop":     req.MeterStop,
		"energy_kwh":     session.EnergyKWh(),
		"reason":         req.Reason,
	})

	completed := map[string]interface{}{
		"charge_point_id": s.chargerID,
		"transaction_id":  session.TransactionID,
		"energy_kwh":      session.EnergyKWh(),
		"end_time":        endTime.Format(time.RFC3339),
	}
	if order != nil {
		completed["amount"] = order.Amount
		completed["currency"] = order.Currency
	}
	s.publish(queue.SubjectTransactionCompleted, completed)
	s.publish(queue.SubjectBillingEvents, completed)

	s.log.Info("transaction stopped",
		zap.Int("transaction_id", session.TransactionID),
		zap.Float64("energy_kwh", session.EnergyKWh()),
	)

	return accepted, nil
}

func (s *Session) handleDataTransfer(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.DataTransferReq
	json.Unmarshal(payload, &req)
	s.store.audit(ctx, s.log, s.chargerID, "data_transfer", nil, req)
	return ocpp.DataTransferResp{Status: "Accepted"}, nil
}

func (s *Session) handleFirmwareStatus(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.FirmwareStatusNotificationReq
	json.Unmarshal(payload, &req)
	s.store.audit(ctx, s.log, s.chargerID, "firmware_status", nil, req)
	return struct{}{}, nil
}

func (s *Session) handleDiagnosticsStatus(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.DiagnosticsStatusNotificationReq
	json.Unmarshal(payload, &req)
	s.store.audit(ctx, s.log, s.chargerID, "diagnostics_status", nil, req)
	return struct{}{}, nil
}

// storeError audits a failed durable write and maps it to InternalError so
// the transport-level redelivery can retry; the dedup cache keeps the retry
// idempotent once a reply has been produced.
func (s *Session) storeError(ctx context.Context, op string, err error) *ocpp.CallError {
	s.log.Error("store write failed", zap.String("op", op), zap.Error(err))
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindStoreError, nil, map[string]interface{}{
		"op":    op,
		"error": err.Error(),
	})
	return ocpp.NewCallError(ocpp.ErrorInternalError, op+" failed")
}

func (s *Session) publish(subject string, payload map[string]interface{}) {
	if s.mq == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// energyValue extracts the energy register reading in Wh from a meter entry.
// The register sample is the one without a measurand or with the OCPP
// default Energy.Active.Import.Register.
func energyValue(entry ocpp.MeterEntry) int {
	for _, sv := range entry.SampledValue {
		if sv.Measurand != "" && sv.Measurand != "Energy.Active.Import.Register" {
			continue
		}
		f, err := strconv.ParseFloat(sv.Value, 64)
		if err != nil {
			continue
		}
		if sv.Unit == "kWh" {
			f *= 1000
		}
		return int(f)
	}
	return 0
}
