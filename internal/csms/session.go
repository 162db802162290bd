package csms

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/adapter/cache"
	"github.com/andescharge/csms/internal/adapter/queue"
	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/observability/telemetry"
	"github.com/andescharge/csms/internal/ocpp"
	"github.com/andescharge/csms/internal/ports"
)

// State is the session state machine position. Sessions outlive connections;
// there is no terminal state.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateBooting      State = "Booting"
	StateOnline       State = "Online"
	StateFaulted      State = "Faulted"
	StateUnavailable  State = "Unavailable"
)

const handlerTimeout = 10 * time.Second

type inboundCall struct {
	frame      *ocpp.Frame
	transport  ports.TransportKind
	receivedAt time.Time
}

// sessionHooks is the narrow router capability a session needs; sessions
// never hold a router back-pointer.
type sessionHooks interface {
	dedupLookup(chargerID, messageID string) ([]byte, bool)
	dedupStore(chargerID, messageID string, raw []byte)
}

// Session owns one charge point's state machine, authorization cache,
// heartbeat watchdog and ordered work queues. Inbound frames are processed
// strictly serially by a single worker; the outbound worker keeps at most
// one server-initiated call in flight.
type Session struct {
	chargerID string
	cfg       Config
	store     *Store
	cache     ports.Cache
	mq        queue.MessageQueue
	log       *zap.Logger
	hooks     sessionHooks

	mu        sync.Mutex
	state     State
	transport ports.Transport
	kind      ports.TransportKind
	watchdog  *time.Timer

	inbox    chan inboundCall
	outbound chan *pendingCall
	stopCh   chan struct{}
	stopOnce sync.Once

	auth *authCache
}

func newSession(chargerID string, cfg Config, store *Store, c ports.Cache, mq queue.MessageQueue, log *zap.Logger, hooks sessionHooks) *Session {
	s := &Session{
		chargerID: chargerID,
		cfg:       cfg,
		store:     store,
		cache:     c,
		mq:        mq,
		log:       log.With(zap.String("charger_id", chargerID)),
		hooks:     hooks,
		state:     StateDisconnected,
		inbox:     make(chan inboundCall, cfg.InboxDepth),
		outbound:  make(chan *pendingCall, cfg.OutboundQueueDepth),
		stopCh:    make(chan struct{}),
		auth:      newAuthCache(authCacheCap, cfg.AuthCacheTTL),
	}
	go s.inboxWorker()
	go s.outboundWorker()
	return s
}

// attach adopts a transport handle. First contact moves Disconnected to
// Booting; a charger already provisioned in the store resumes Online so the
// expected StopTransaction after a reconnect can flow without a new boot
// handshake. The authorization cache is preserved across reconnects.
func (s *Session) attach(t ports.Transport, claim ports.AuthClaim) {
	s.mu.Lock()
	s.transport = t
	s.kind = t.Kind()
	if s.state == StateDisconnected {
		s.state = StateBooting
	}
	s.mu.Unlock()
	s.resetWatchdog()

	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	cp, err := s.store.ChargePoints.FindByID(ctx, s.chargerID)
	if err != nil {
		s.log.Warn("failed to load charge point on attach", zap.Error(err))
		return
	}
	if cp != nil {
		s.mu.Lock()
		if s.state == StateBooting {
			s.state = StateOnline
		}
		s.mu.Unlock()
		s.store.ChargePoints.UpdateLastSeen(ctx, s.chargerID, time.Now().UTC())
	}
}

// detach marks the session Disconnected. Active charging sessions stay
// active until the charger stops them or the stale sweep interrupts them.
func (s *Session) detach(reason string) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.transport = nil
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.mu.Unlock()
	s.log.Info("session disconnected", zap.String("reason", reason))
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// isOnline reports whether server-initiated calls can be dispatched. Faulted
// and Unavailable chargers are still connected: Reset and ChangeAvailability
// must reach them.
func (s *Session) isOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateOnline, StateFaulted, StateUnavailable:
		return s.transport != nil
	}
	return false
}

func (s *Session) currentTransport() (ports.Transport, ports.TransportKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport, s.kind
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// enqueueInbound feeds the serial worker. When the inbox is full the oldest
// frame is dropped and audited, preferring liveness over completeness.
func (s *Session) enqueueInbound(call inboundCall) {
	select {
	case s.inbox <- call:
		return
	default:
	}
	select {
	case dropped := <-s.inbox:
		s.log.Warn("inbox full, dropping oldest call",
			zap.String("dropped_action", dropped.frame.Action),
		)
		ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
		s.store.audit(ctx, s.log, s.chargerID, domain.EventKindFrameDropped, nil, map[string]interface{}{
			"action":     dropped.frame.Action,
			"message_id": dropped.frame.MessageID,
		})
		cancelFn()
	default:
	}
	select {
	case s.inbox <- call:
	default:
	}
}

// enqueueOutbound adds a server-initiated call to the ordered queue, failing
// fast when the soft cap is reached.
func (s *Session) enqueueOutbound(p *pendingCall) error {
	select {
	case s.outbound <- p:
		return nil
	default:
		return domain.ErrChargerBusy
	}
}

// disconnectTransport tears down the current channel; the transport's
// Disconnected callback completes the state transition.
func (s *Session) disconnectTransport(reason string) {
	t, _ := s.currentTransport()
	if t != nil {
		t.Disconnect(s.chargerID, reason)
	}
}

// resetWatchdog (re)arms the heartbeat liveness deadline. Any inbound frame
// counts as liveness.
func (s *Session) resetWatchdog() {
	timeout := s.cfg.WatchdogTimeout()
	s.mu.Lock()
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.watchdog = time.AfterFunc(timeout, s.onWatchdogExpired)
	s.mu.Unlock()
}

func (s *Session) onWatchdogExpired() {
	s.mu.Lock()
	disconnected := s.state == StateDisconnected
	s.mu.Unlock()
	if disconnected {
		return
	}
	s.log.Warn("heartbeat watchdog expired")
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	s.store.audit(ctx, s.log, s.chargerID, domain.EventKindWatchdogExpired, nil, nil)
	cancelFn()
	s.disconnectTransport("heartbeat watchdog expired")
}

// touch refreshes liveness on every inbound frame.
func (s *Session) touch(at time.Time) {
	s.resetWatchdog()
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	s.cache.Set(ctx, cache.LastSeenKey(s.chargerID), at.UTC().Format(time.RFC3339), 0)
}

// inboxWorker drains the inbox serially: the n-th CALLRESULT is emitted
// before the (n+1)-th CALL is dispatched to a handler.
func (s *Session) inboxWorker() {
	for {
		select {
		case <-s.stopCh:
			return
		case call := <-s.inbox:
			s.processInbound(call)
		}
	}
}

func (s *Session) processInbound(call inboundCall) {
	s.touch(call.receivedAt)
	frame := call.frame

	// Redelivery inside the dedup window: resend the cached CALLRESULT
	// byte-identically, apply nothing.
	if cached, ok := s.hooks.dedupLookup(s.chargerID, frame.MessageID); ok {
		if err := s.sendResult(call.transport, frame.MessageID, json.RawMessage(cached)); err != nil {
			s.log.Warn("failed to resend cached result", zap.Error(err))
		}
		return
	}

	if ce := ocpp.ValidateCall(frame.Action, frame.Payload); ce != nil {
		s.sendCallError(call.transport, frame.MessageID, ce)
		return
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), handlerTimeout)
	resp, ce := s.handleCall(ctx, frame.Action, frame.Payload)
	cancelFn()

	if ce != nil {
		s.sendCallError(call.transport, frame.MessageID, ce)
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		// Do not reply at all; the charger's retry or heartbeat
		// resynchronizes.
		s.log.Error("failed to encode response payload", zap.String("action", frame.Action), zap.Error(err))
		ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
		s.store.audit(ctx, s.log, s.chargerID, domain.EventKindEncodeError, nil, map[string]interface{}{
			"action": frame.Action,
		})
		cancelFn()
		return
	}

	if err := s.sendResult(call.transport, frame.MessageID, payload); err != nil {
		s.log.Warn("failed to send call result", zap.String("action", frame.Action), zap.Error(err))
		return
	}
	s.hooks.dedupStore(s.chargerID, frame.MessageID, payload)
}

func (s *Session) sendResult(kind ports.TransportKind, messageID string, payload json.RawMessage) error {
	frame := &ocpp.Frame{Type: ocpp.MessageTypeCallResult, MessageID: messageID, Payload: payload}
	return s.sendFrame(kind, frame)
}

func (s *Session) sendCallError(kind ports.TransportKind, messageID string, ce *ocpp.CallError) {
	frame := &ocpp.Frame{
		Type:      ocpp.MessageTypeCallError,
		MessageID: messageID,
		ErrorCode: ce.Code,
		ErrorDesc: ce.Description,
	}
	if ce.Details != nil {
		if raw, err := json.Marshal(ce.Details); err == nil {
			frame.ErrorDetails = raw
		}
	}
	if err := s.sendFrame(kind, frame); err != nil {
		s.log.Warn("failed to send call error", zap.Error(err))
	}
	telemetry.CallErrorsSent.WithLabelValues(string(ce.Code)).Inc()
}

func (s *Session) sendFrame(kind ports.TransportKind, frame *ocpp.Frame) error {
	t, currentKind := s.currentTransport()
	if t == nil {
		return domain.ErrChargerDisconnected
	}
	if kind == "" {
		kind = currentKind
	}
	var raw []byte
	var err error
	if kind == ports.TransportMQTT {
		raw, err = ocpp.EncodeEnvelope(frame)
	} else {
		raw, err = frame.Encode()
	}
	if err != nil {
		return err
	}
	telemetry.MessagesTotal.WithLabelValues(string(kind), "out", frameLabel(frame)).Inc()
	return t.Send(s.chargerID, raw)
}

// outboundWorker serializes server-initiated calls: the next CALL leaves
// only after the previous waiter resolved, rejected or timed out.
func (s *Session) outboundWorker() {
	for {
		select {
		case <-s.stopCh:
			return
		case p := <-s.outbound:
			frame := &ocpp.Frame{Type: ocpp.MessageTypeCall, MessageID: p.messageID, Action: p.action}
			payload, err := json.Marshal(p.payload)
			if err != nil {
				p.settle(dispatchResult{err: err})
				continue
			}
			frame.Payload = payload

			if err := s.sendFrame("", frame); err != nil {
				p.settle(dispatchResult{err: err})
				continue
			}

			select {
			case <-p.done:
			case <-s.stopCh:
				return
			}
		}
	}
}
