package csms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/ocpp"
	"github.com/andescharge/csms/internal/ports"
)

func connect(t *testing.T, router *Router, kind ports.TransportKind, chargerID string) *fakeTransport {
	t.Helper()
	ft := newFakeTransport(kind, router)
	router.OnConnected(chargerID, ports.AuthClaim{ChargerID: chargerID}, ft)
	return ft
}

func price(v float64) *float64 { return &v }

func TestHappyPathCharge(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
		PhysicalStatus:    domain.PhysicalStatusAvailable,
		PricePerKWh:       price(500),
	})
	ms.addIdTag("T1", domain.AuthorizationAccepted)

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")

	// Boot handshake
	router.OnInbound(callFrame("CP-001", "m-1", "BootNotification",
		`{"chargePointVendor":"V","chargePointModel":"M"}`))
	boot := ft.waitFrame(t)
	if boot.Type != ocpp.MessageTypeCallResult {
		t.Fatalf("expected CALLRESULT, got %+v", boot)
	}
	var bootResp ocpp.BootNotificationResp
	json.Unmarshal(boot.Payload, &bootResp)
	if bootResp.Status != "Accepted" {
		t.Fatalf("expected boot Accepted, got %q", bootResp.Status)
	}
	if bootResp.Interval != 3600 {
		t.Errorf("expected interval 3600, got %d", bootResp.Interval)
	}

	// Connector reports Available
	router.OnInbound(callFrame("CP-001", "m-2", "StatusNotification",
		`{"connectorId":1,"status":"Available","errorCode":"NoError"}`))
	ft.waitFrame(t)

	// Operator triggers a remote start
	dispatchDone := make(chan error, 1)
	go func() {
		_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionRemoteStartTransaction,
			ocpp.RemoteStartTransactionReq{IdTag: "T1"}, time.Second)
		dispatchDone <- err
	}()

	remoteStart := ft.waitFrame(t)
	if remoteStart.Type != ocpp.MessageTypeCall || remoteStart.Action != ocpp.ActionRemoteStartTransaction {
		t.Fatalf("expected RemoteStartTransaction CALL, got %+v", remoteStart)
	}
	router.OnInbound(resultFrame("CP-001", remoteStart.MessageID, `{"status":"Accepted"}`))
	if err := <-dispatchDone; err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	// Charger starts the transaction
	router.OnInbound(callFrame("CP-001", "m-3", "StartTransaction",
		`{"connectorId":1,"idTag":"T1","meterStart":1000,"timestamp":"2025-01-01T00:00:00Z"}`))
	start := ft.waitFrame(t)
	var startResp ocpp.StartTransactionResp
	json.Unmarshal(start.Payload, &startResp)
	if startResp.TransactionID != 1 {
		t.Fatalf("expected transactionId 1, got %d", startResp.TransactionID)
	}
	if startResp.IdTagInfo.Status != "Accepted" {
		t.Fatalf("expected idTagInfo Accepted, got %q", startResp.IdTagInfo.Status)
	}

	// One meter sample, then stop
	router.OnInbound(callFrame("CP-001", "m-4", "MeterValues",
		`{"connectorId":1,"transactionId":1,"meterValue":[{"timestamp":"2025-01-01T00:02:00Z","sampledValue":[{"value":"1500"}]}]}`))
	ft.waitFrame(t)

	router.OnInbound(callFrame("CP-001", "m-5", "StopTransaction",
		`{"transactionId":1,"meterStop":1500,"timestamp":"2025-01-01T00:05:00Z"}`))
	stop := ft.waitFrame(t)
	var stopResp ocpp.StopTransactionResp
	json.Unmarshal(stop.Payload, &stopResp)
	if stopResp.IdTagInfo.Status != "Accepted" {
		t.Fatalf("expected stop Accepted, got %+v", stopResp)
	}

	if ms.sessionCount() != 1 {
		t.Fatalf("expected exactly one session, got %d", ms.sessionCount())
	}
	sess := ms.session(0)
	if sess.Status != domain.SessionStatusCompleted {
		t.Errorf("expected status completed, got %q", sess.Status)
	}
	if sess.MeterStart != 1000 || sess.MeterStop == nil || *sess.MeterStop != 1500 {
		t.Errorf("unexpected meter bounds: start=%d stop=%v", sess.MeterStart, sess.MeterStop)
	}
	if got := sess.EnergyKWh(); got != 0.5 {
		t.Errorf("expected 0.5 kWh, got %v", got)
	}
	if ms.meterCount() != 1 {
		t.Errorf("expected one meter value, got %d", ms.meterCount())
	}
	if ms.orderCount() != 1 {
		t.Fatalf("expected one order, got %d", ms.orderCount())
	}
	if got := ms.order(0).Amount; got != 250 {
		t.Errorf("expected cost 250 COP, got %v", got)
	}
}

func TestDuplicateMQTTDelivery(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-MQ",
		OperationalStatus: domain.OperationalEnabled,
	})
	ms.addIdTag("T1", domain.AuthorizationAccepted)

	ft := connect(t, router, ports.TransportMQTT, "CP-MQ")

	body := `{"action":"StartTransaction","messageId":"m-42","payload":{"connectorId":1,"idTag":"T1","meterStart":100,"timestamp":"2025-01-01T00:00:00Z"}}`
	inbound := ports.InboundFrame{
		ChargerID:  "CP-MQ",
		Raw:        []byte(body),
		ReceivedAt: time.Now().UTC(),
		Transport:  ports.TransportMQTT,
	}

	router.OnInbound(inbound)
	first := ft.waitRaw(t)

	router.OnInbound(inbound)
	second := ft.waitRaw(t)

	if !bytes.Equal(first, second) {
		t.Errorf("redelivery produced a different reply:\n%s\n%s", first, second)
	}
	if ms.sessionCount() != 1 {
		t.Errorf("expected exactly one session after duplicate delivery, got %d", ms.sessionCount())
	}
}

func TestReconnectMidTransaction(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})
	ms.addIdTag("T1", domain.AuthorizationAccepted)

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")
	router.OnInbound(callFrame("CP-001", "m-1", "StartTransaction",
		`{"connectorId":1,"idTag":"T1","meterStart":2000,"timestamp":"2025-01-01T00:00:00Z"}`))
	start := ft.waitFrame(t)
	var startResp ocpp.StartTransactionResp
	json.Unmarshal(start.Payload, &startResp)
	txID := startResp.TransactionID

	// Socket drops mid-charge; the session stays active.
	ft.Disconnect("CP-001", "socket closed")
	if router.IsOnline("CP-001") {
		t.Fatal("charger should be offline after disconnect")
	}
	if ms.session(0).Status != domain.SessionStatusActive {
		t.Fatalf("session should stay active across disconnect, got %q", ms.session(0).Status)
	}

	// Reconnect and stop the original transaction.
	ft2 := connect(t, router, ports.TransportWebSocket, "CP-001")
	router.OnInbound(callFrame("CP-001", "m-2", "StopTransaction",
		fmt.Sprintf(`{"transactionId":%d,"meterStop":2500,"timestamp":"2025-01-01T01:00:00Z"}`, txID)))
	ft2.waitFrame(t)

	if ms.sessionCount() != 1 {
		t.Fatalf("expected the existing session to be finalized, got %d sessions", ms.sessionCount())
	}
	if ms.session(0).Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed, got %q", ms.session(0).Status)
	}
}

func TestOfflineRemoteStart(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-002",
		OperationalStatus: domain.OperationalEnabled,
	})

	_, err := router.Dispatch(context.Background(), "CP-002", ocpp.ActionRemoteStartTransaction,
		ocpp.RemoteStartTransactionReq{IdTag: "T1"}, time.Second)
	if !errors.Is(err, domain.ErrChargerOffline) {
		t.Fatalf("expected ErrChargerOffline, got %v", err)
	}
}

func TestConcurrentStartOnSameConnector(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})
	ms.addIdTag("T1", domain.AuthorizationAccepted)
	ms.addIdTag("T2", domain.AuthorizationAccepted)

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")

	router.OnInbound(callFrame("CP-001", "m-1", "StartTransaction",
		`{"connectorId":1,"idTag":"T1","meterStart":0,"timestamp":"2025-01-01T00:00:00Z"}`))
	first := ft.waitFrame(t)
	var firstResp ocpp.StartTransactionResp
	json.Unmarshal(first.Payload, &firstResp)
	if firstResp.IdTagInfo.Status != "Accepted" {
		t.Fatalf("first start should be accepted, got %+v", firstResp)
	}

	router.OnInbound(callFrame("CP-001", "m-2", "StartTransaction",
		`{"connectorId":1,"idTag":"T2","meterStart":0,"timestamp":"2025-01-01T00:00:01Z"}`))
	second := ft.waitFrame(t)
	var secondResp ocpp.StartTransactionResp
	json.Unmarshal(second.Payload, &secondResp)
	if secondResp.IdTagInfo.Status != string(domain.AuthorizationConcurrentTx) {
		t.Fatalf("expected ConcurrentTx, got %+v", secondResp)
	}

	if ms.sessionCount() != 1 {
		t.Errorf("second start must not create a session, got %d", ms.sessionCount())
	}
}

func TestCallTimeoutReleasesQueue(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")

	start := time.Now()
	_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionReset,
		ocpp.ResetReq{Type: "Hard"}, 150*time.Millisecond)
	if !errors.Is(err, domain.ErrCallTimeout) {
		t.Fatalf("expected ErrCallTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("timeout fired too early: %v", elapsed)
	}

	reset := ft.waitFrame(t)
	if reset.Action != ocpp.ActionReset {
		t.Fatalf("expected Reset CALL on the wire, got %+v", reset)
	}

	// A late reply for the timed-out call is dropped without effect.
	router.OnInbound(resultFrame("CP-001", reset.MessageID, `{"status":"Accepted"}`))

	// The queue released: the next dispatch reaches the wire.
	done := make(chan error, 1)
	go func() {
		_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionTriggerMessage,
			ocpp.TriggerMessageReq{RequestedMessage: "Heartbeat"}, time.Second)
		done <- err
	}()
	next := ft.waitFrame(t)
	if next.Action != ocpp.ActionTriggerMessage {
		t.Fatalf("expected TriggerMessage CALL, got %+v", next)
	}
	router.OnInbound(resultFrame("CP-001", next.MessageID, `{"status":"Accepted"}`))
	if err := <-done; err != nil {
		t.Fatalf("second dispatch failed: %v", err)
	}
}

func TestAtMostOneCallInFlight(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")

	results := make(chan error, 2)
	go func() {
		_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionReset, ocpp.ResetReq{Type: "Soft"}, time.Second)
		results <- err
	}()

	first := ft.waitFrame(t)
	if first.Action != ocpp.ActionReset {
		t.Fatalf("expected Reset, got %s", first.Action)
	}

	go func() {
		_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionClearCache, struct{}{}, time.Second)
		results <- err
	}()

	// Second call must NOT hit the wire while the first is unresolved.
	select {
	case raw := <-ft.sent:
		t.Fatalf("second call sent while first in flight: %s", raw)
	case <-time.After(150 * time.Millisecond):
	}

	router.OnInbound(resultFrame("CP-001", first.MessageID, `{"status":"Accepted"}`))
	second := ft.waitFrame(t)
	if second.Action != ocpp.ActionClearCache {
		t.Fatalf("expected ClearCache after release, got %s", second.Action)
	}
	router.OnInbound(resultFrame("CP-001", second.MessageID, `{"status":"Accepted"}`))

	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("dispatch %d failed: %v", i, err)
		}
	}
}

func TestDisconnectCancelsPendingWaiters(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")

	done := make(chan error, 1)
	go func() {
		_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionReset, ocpp.ResetReq{Type: "Hard"}, 5*time.Second)
		done <- err
	}()
	ft.waitFrame(t)

	ft.Disconnect("CP-001", "carrier lost")

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrChargerDisconnected) {
			t.Fatalf("expected ErrChargerDisconnected, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not cancelled on disconnect")
	}
}

func TestStopUnknownTransactionIdempotent(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")
	router.OnInbound(callFrame("CP-001", "m-1", "StopTransaction",
		`{"transactionId":99,"meterStop":10,"timestamp":"2025-01-01T00:00:00Z"}`))
	resp := ft.waitFrame(t)

	var stopResp ocpp.StopTransactionResp
	json.Unmarshal(resp.Payload, &stopResp)
	if stopResp.IdTagInfo.Status != "Accepted" {
		t.Errorf("orphan stop should be accepted, got %+v", stopResp)
	}
	if ms.sessionCount() != 0 {
		t.Errorf("orphan stop must not create a session, got %d", ms.sessionCount())
	}
	if !ms.hasEvent(domain.EventKindOrphanStop) {
		t.Error("expected an orphan_stop audit event")
	}
}

func TestMeterValuesClampAndOrphans(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})
	ms.addIdTag("T1", domain.AuthorizationAccepted)

	ft := connect(t, router, ports.TransportWebSocket, "CP-001")
	router.OnInbound(callFrame("CP-001", "m-1", "StartTransaction",
		`{"connectorId":1,"idTag":"T1","meterStart":0,"timestamp":"2025-01-01T00:00:00Z"}`))
	ft.waitFrame(t)

	// Sample at T+10m, then one with an earlier clock: the second is
	// clamped, never rejected.
	router.OnInbound(callFrame("CP-001", "m-2", "MeterValues",
		`{"connectorId":1,"transactionId":1,"meterValue":[{"timestamp":"2025-01-01T00:10:00Z","sampledValue":[{"value":"100"}]}]}`))
	ft.waitFrame(t)
	router.OnInbound(callFrame("CP-001", "m-3", "MeterValues",
		`{"connectorId":1,"transactionId":1,"meterValue":[{"timestamp":"2025-01-01T00:05:00Z","sampledValue":[{"value":"200"}]}]}`))
	ft.waitFrame(t)

	if ms.meterCount() != 2 {
		t.Fatalf("expected both samples stored, got %d", ms.meterCount())
	}
	if !ms.hasEvent(domain.EventKindClockSkew) {
		t.Error("expected a clock-skew audit event")
	}
	ms.mu.Lock()
	first, second := ms.meters[0].Timestamp, ms.meters[1].Timestamp
	ms.mu.Unlock()
	if !second.After(first) {
		t.Errorf("timestamps not monotonic after clamp: %v then %v", first, second)
	}

	// Samples for an unknown transaction are discarded, never stored.
	router.OnInbound(callFrame("CP-001", "m-4", "MeterValues",
		`{"connectorId":1,"transactionId":77,"meterValue":[{"timestamp":"2025-01-01T00:20:00Z","sampledValue":[{"value":"300"}]}]}`))
	ft.waitFrame(t)
	if ms.meterCount() != 2 {
		t.Errorf("orphan sample must be discarded, got %d stored", ms.meterCount())
	}
	if !ms.hasEvent(domain.EventKindOrphanMeter) {
		t.Error("expected an orphan_meter audit event")
	}
}

func TestDecodeFailureStreakClosesChannel(t *testing.T) {
	router, ms := newTestRouter(t, testConfig())
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})
	connect(t, router, ports.TransportWebSocket, "CP-001")

	garbage := ports.InboundFrame{
		ChargerID:  "CP-001",
		Raw:        []byte("not json"),
		ReceivedAt: time.Now().UTC(),
		Transport:  ports.TransportWebSocket,
	}

	// A single malformed frame does not close the channel.
	router.OnInbound(garbage)
	if !router.IsOnline("CP-001") {
		t.Fatal("one decode failure must not close the channel")
	}

	for i := 0; i < 4; i++ {
		router.OnInbound(garbage)
	}
	if router.IsOnline("CP-001") {
		t.Fatal("five consecutive decode failures should close the channel")
	}
	if !ms.hasEvent(domain.EventKindDecodeError) {
		t.Error("expected decode_error audit events")
	}
}

func TestOutboundQueueBackpressure(t *testing.T) {
	cfg := testConfig()
	cfg.OutboundQueueDepth = 1
	router, ms := newTestRouter(t, cfg)
	ms.addChargePoint(&domain.ChargePoint{
		ID:                "CP-001",
		OperationalStatus: domain.OperationalEnabled,
	})
	ft := connect(t, router, ports.TransportWebSocket, "CP-001")

	// Occupy the single in-flight slot and the single queue slot.
	go router.Dispatch(context.Background(), "CP-001", ocpp.ActionReset, ocpp.ResetReq{Type: "Soft"}, 5*time.Second)
	ft.waitFrame(t)
	go router.Dispatch(context.Background(), "CP-001", ocpp.ActionClearCache, struct{}{}, 5*time.Second)

	// Give the second dispatch a moment to occupy the single queue slot,
	// then expect fail-fast.
	time.Sleep(200 * time.Millisecond)
	_, err := router.Dispatch(context.Background(), "CP-001", ocpp.ActionClearCache, struct{}{}, 5*time.Second)
	if !errors.Is(err, domain.ErrChargerBusy) {
		t.Fatalf("expected ErrChargerBusy, got %v", err)
	}
}
