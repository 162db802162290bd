package csms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/mocks"
	"github.com/andescharge/csms/internal/ocpp"
	"github.com/andescharge/csms/internal/ports"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeTransport records outbound frames and lets tests drive the handler.
type fakeTransport struct {
	kind    ports.TransportKind
	handler ports.TransportHandler

	mu   sync.Mutex
	sent chan []byte
	down map[string]bool
}

func newFakeTransport(kind ports.TransportKind, handler ports.TransportHandler) *fakeTransport {
	return &fakeTransport{
		kind:    kind,
		handler: handler,
		sent:    make(chan []byte, 64),
		down:    make(map[string]bool),
	}
}

func (f *fakeTransport) Kind() ports.TransportKind          { return f.kind }
func (f *fakeTransport) Start(ctx context.Context) error    { return nil }
func (f *fakeTransport) Close() error                       { return nil }
func (f *fakeTransport) Send(chargerID string, raw []byte) error {
	f.mu.Lock()
	gone := f.down[chargerID]
	f.mu.Unlock()
	if gone {
		return fmt.Errorf("send to %s: not connected", chargerID)
	}
	f.sent <- raw
	return nil
}

func (f *fakeTransport) Disconnect(chargerID, reason string) {
	f.mu.Lock()
	f.down[chargerID] = true
	f.mu.Unlock()
	f.handler.OnDisconnected(chargerID, reason)
}

func (f *fakeTransport) reconnect(chargerID string) {
	f.mu.Lock()
	delete(f.down, chargerID)
	f.mu.Unlock()
}

// waitFrame reads the next outbound frame with a deadline.
func (f *fakeTransport) waitFrame(t *testing.T) *ocpp.Frame {
	t.Helper()
	select {
	case raw := <-f.sent:
		var frame *ocpp.Frame
		var err error
		if f.kind == ports.TransportMQTT {
			frame, err = ocpp.DecodeEnvelope(raw)
		} else {
			frame, err = ocpp.Decode(raw)
		}
		if err != nil {
			t.Fatalf("transport received undecodable frame: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func (f *fakeTransport) waitRaw(t *testing.T) []byte {
	t.Helper()
	select {
	case raw := <-f.sent:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

// memStore is an in-memory Store good enough to exercise the engine's
// invariants without a database.
type memStore struct {
	mu       sync.Mutex
	cps      map[string]*domain.ChargePoint
	evses    map[string]*domain.EVSE
	sessions []*domain.ChargingSession
	meters   []*domain.MeterValue
	events   []*domain.DeviceEvent
	idTags   map[string]*domain.IdTag
	orders   []*domain.Order
	nextID   uint
}

func newMemStore() *memStore {
	return &memStore{
		cps:    make(map[string]*domain.ChargePoint),
		evses:  make(map[string]*domain.EVSE),
		idTags: make(map[string]*domain.IdTag),
	}
}

func (m *memStore) addIdTag(tag string, status domain.AuthorizationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idTags[tag] = &domain.IdTag{Tag: tag, Status: status}
}

func (m *memStore) addChargePoint(cp *domain.ChargePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.ID] = cp
}

func (m *memStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *memStore) session(i int) domain.ChargingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[i]
}

func (m *memStore) meterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.meters)
}

func (m *memStore) eventKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (m *memStore) hasEvent(kind string) bool {
	for _, k := range m.eventKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) order(i int) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[i]
}

// repositories backed by memStore

type memCPRepo struct{ s *memStore }

func (r memCPRepo) Save(ctx context.Context, cp *domain.ChargePoint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *cp
	r.s.cps[cp.ID] = &copied
	return nil
}

func (r memCPRepo) FindByID(ctx context.Context, id string) (*domain.ChargePoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp, ok := r.s.cps[id]
	if !ok {
		return nil, nil
	}
	copied := *cp
	return &copied, nil
}

func (r memCPRepo) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ChargePoint
	for _, cp := range r.s.cps {
		out = append(out, *cp)
	}
	return out, nil
}

func (r memCPRepo) FindPending(ctx context.Context) ([]domain.ChargePoint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ChargePoint
	for _, cp := range r.s.cps {
		if !cp.IsConfigured() {
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (r memCPRepo) UpdatePhysicalStatus(ctx context.Context, id string, status domain.PhysicalStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cp, ok := r.s.cps[id]; ok {
		cp.PhysicalStatus = status
	}
	return nil
}

func (r memCPRepo) UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cp, ok := r.s.cps[id]; ok {
		cp.OperationalStatus = status
	}
	return nil
}

func (r memCPRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cp, ok := r.s.cps[id]; ok {
		cp.LastSeen = at
	}
	return nil
}

func (r memCPRepo) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp, ok := r.s.cps[id]
	if !ok {
		return domain.ErrNotFound
	}
	cp.Latitude, cp.Longitude, cp.Address = &lat, &lng, &address
	return nil
}

func (r memCPRepo) UpdatePricing(ctx context.Context, id string, pricePerKWh float64, rateKW *float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp, ok := r.s.cps[id]
	if !ok {
		return domain.ErrNotFound
	}
	cp.PricePerKWh = &pricePerKWh
	cp.RateKW = rateKW
	return nil
}

func (r memCPRepo) UpsertEVSE(ctx context.Context, evse *domain.EVSE) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := fmt.Sprintf("%s/%d", evse.ChargePointID, evse.ConnectorID)
	copied := *evse
	r.s.evses[key] = &copied
	return nil
}

func (r memCPRepo) FindEVSEs(ctx context.Context, chargePointID string) ([]domain.EVSE, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.EVSE
	for _, e := range r.s.evses {
		if e.ChargePointID == chargePointID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memSessionRepo struct{ s *memStore }

func (r memSessionRepo) StartTransaction(ctx context.Context, chargePointID string, evseID int, idTag string, meterStart int, startTime time.Time) (*domain.ChargingSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	maxTx := 0
	for _, sess := range r.s.sessions {
		if sess.ChargePointID == chargePointID && sess.EVSEID == evseID && sess.Status == domain.SessionStatusActive {
			return nil, domain.ErrConcurrentTransaction
		}
		if sess.TransactionID > maxTx {
			maxTx = sess.TransactionID
		}
	}
	r.s.nextID++
	sess := &domain.ChargingSession{
		ID:            r.s.nextID,
		ChargePointID: chargePointID,
		EVSEID:        evseID,
		TransactionID: maxTx + 1,
		IdTag:         idTag,
		StartTime:     startTime,
		MeterStart:    meterStart,
		Status:        domain.SessionStatusActive,
	}
	r.s.sessions = append(r.s.sessions, sess)
	copied := *sess
	return &copied, nil
}

func (r memSessionRepo) StopTransaction(ctx context.Context, chargePointID string, transactionID int, meterStop int, endTime time.Time, pricePerKWh float64) (*domain.ChargingSession, *domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.ChargePointID == chargePointID && sess.TransactionID == transactionID && sess.Status == domain.SessionStatusActive {
			if endTime.Before(sess.StartTime) {
				endTime = sess.StartTime
			}
			if meterStop < sess.MeterStart {
				meterStop = sess.MeterStart
			}
			sess.EndTime = &endTime
			sess.MeterStop = &meterStop
			sess.Status = domain.SessionStatusCompleted

			order := &domain.Order{
				SessionID:   sess.ID,
				EnergyKWh:   sess.EnergyKWh(),
				PricePerKWh: pricePerKWh,
				Amount:      domain.RoundCost(sess.EnergyKWh() * pricePerKWh),
				Currency:    "COP",
			}
			r.s.orders = append(r.s.orders, order)
			copied := *sess
			copiedOrder := *order
			return &copied, &copiedOrder, nil
		}
	}
	return nil, nil, domain.ErrNoActiveTransaction
}

func (r memSessionRepo) FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.ChargePointID == chargePointID && sess.TransactionID == transactionID {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (r memSessionRepo) FindActive(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sess := range r.s.sessions {
		if sess.ChargePointID == chargePointID && sess.EVSEID == evseID && sess.Status == domain.SessionStatusActive {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (r memSessionRepo) FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ChargingSession
	for _, sess := range r.s.sessions {
		if sess.ChargePointID == chargePointID && sess.Status == domain.SessionStatusActive {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (r memSessionRepo) FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error) {
	return nil, nil
}

func (r memSessionRepo) InterruptStale(ctx context.Context, olderThan time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sess := range r.s.sessions {
		if sess.Status == domain.SessionStatusActive && sess.StartTime.Before(olderThan) {
			sess.Status = domain.SessionStatusInterrupted
			n++
		}
	}
	return n, nil
}

type memMeterRepo struct{ s *memStore }

func (r memMeterRepo) Save(ctx context.Context, mv *domain.MeterValue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *mv
	r.s.meters = append(r.s.meters, &copied)
	return nil
}

func (r memMeterRepo) LastTimestamp(ctx context.Context, sessionID uint) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var last time.Time
	for _, mv := range r.s.meters {
		if mv.SessionID == sessionID && mv.Timestamp.After(last) {
			last = mv.Timestamp
		}
	}
	return last, nil
}

func (r memMeterRepo) FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterValue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.MeterValue
	for _, mv := range r.s.meters {
		if mv.SessionID == sessionID {
			out = append(out, *mv)
		}
	}
	return out, nil
}

type memEventRepo struct{ s *memStore }

func (r memEventRepo) Append(ctx context.Context, ev *domain.DeviceEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *ev
	r.s.events = append(r.s.events, &copied)
	return nil
}

func (r memEventRepo) FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds []string) ([]domain.DeviceEvent, error) {
	return nil, nil
}

func (r memEventRepo) LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error) {
	return nil, nil
}

type memIdTagRepo struct{ s *memStore }

func (r memIdTagRepo) Find(ctx context.Context, tag string) (*domain.IdTag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.idTags[tag]
	if !ok {
		return nil, nil
	}
	copied := *t
	return &copied, nil
}

func (r memIdTagRepo) Save(ctx context.Context, t *domain.IdTag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *t
	r.s.idTags[t.Tag] = &copied
	return nil
}

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) Save(ctx context.Context, o *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	copied := *o
	r.s.orders = append(r.s.orders, &copied)
	return nil
}

func (r memOrderRepo) FindBySessionID(ctx context.Context, sessionID uint) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.SessionID == sessionID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

type memDeviceRepo struct{ s *memStore }

func (r memDeviceRepo) Save(ctx context.Context, d *domain.Device) error { return nil }
func (r memDeviceRepo) FindBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	return nil, nil
}

// newTestRouter wires a router over the in-memory store with fast timeouts.
func newTestRouter(t *testing.T, cfg Config) (*Router, *memStore) {
	t.Helper()
	ms := newMemStore()
	store := &Store{
		ChargePoints: memCPRepo{ms},
		Devices:      memDeviceRepo{ms},
		Sessions:     memSessionRepo{ms},
		Meters:       memMeterRepo{ms},
		Events:       memEventRepo{ms},
		IdTags:       memIdTagRepo{ms},
		Orders:       memOrderRepo{ms},
	}
	router := NewRouter(cfg, store, mocks.NewMockCache(), mocks.NewMockMessageQueue(), newTestLogger())
	t.Cleanup(router.Stop)
	return router, ms
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.OfflineTimeout = time.Hour
	return cfg
}

// callFrame builds an inbound CALL for the websocket transport.
func callFrame(chargerID, messageID, action, payload string) ports.InboundFrame {
	raw := []byte(fmt.Sprintf(`[2,%q,%q,%s]`, messageID, action, payload))
	return ports.InboundFrame{
		ChargerID:  chargerID,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
		Transport:  ports.TransportWebSocket,
	}
}

func resultFrame(chargerID, messageID, payload string) ports.InboundFrame {
	raw := []byte(fmt.Sprintf(`[3,%q,%s]`, messageID, payload))
	return ports.InboundFrame{
		ChargerID:  chargerID,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
		Transport:  ports.TransportWebSocket,
	}
}
