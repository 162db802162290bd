package csms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/adapter/cache"
	"github.com/andescharge/csms/internal/adapter/queue"
	"github.com/andescharge/csms/internal/domain"
	"github.com/andescharge/csms/internal/observability/telemetry"
	"github.com/andescharge/csms/internal/ocpp"
	"github.com/andescharge/csms/internal/ports"
)

const (
	decodeFailureLimit  = 5
	decodeFailureWindow = 10 * time.Second
)

// Router owns the charger→session registry, the pending-call waiters for
// server-initiated traffic and the redelivery dedup cache. It is the
// TransportHandler for every transport variant and the Dispatcher for the
// control plane.
type Router struct {
	cfg   Config
	store *Store
	cache ports.Cache
	mq    queue.MessageQueue
	log   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	pending *pendingTable
	dedup   *dedupTable

	decodeMu sync.Mutex
	decode   map[string]*decodeStreak

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type decodeStreak struct {
	count int
	first time.Time
}

func NewRouter(cfg Config, store *Store, c ports.Cache, mq queue.MessageQueue, log *zap.Logger) *Router {
	cfg = cfg.normalized()
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		cfg:      cfg,
		store:    store,
		cache:    c,
		mq:       mq,
		log:      log,
		sessions: make(map[string]*Session),
		pending:  newPendingTable(),
		dedup:    newDedupTable(cfg.DedupWindow),
		decode:   make(map[string]*decodeStreak),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the dedup janitor and the stale-session sweeper.
func (r *Router) Start() {
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.DedupWindow / 2)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.dedup.sweep()
			}
		}
	}()
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.interruptStaleSessions()
			}
		}
	}()
}

// Stop tears down every session and background worker.
func (r *Router) Stop() {
	r.cancel()
	r.mu.Lock()
	for _, sess := range r.sessions {
		sess.stop()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// OnConnected creates the session on first contact or adopts the new
// transport handle on reconnect. In-flight waiters survive adoption with
// their original deadlines.
func (r *Router) OnConnected(chargerID string, claim ports.AuthClaim, t ports.Transport) {
	r.mu.Lock()
	sess, ok := r.sessions[chargerID]
	if !ok {
		sess = newSession(chargerID, r.cfg, r.store, r.cache, r.mq, r.log, r)
		r.sessions[chargerID] = sess
	}
	r.mu.Unlock()

	sess.attach(t, claim)
	telemetry.ConnectedChargers.Inc()

	ctx, cancelFn := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancelFn()
	r.cache.Set(ctx, cache.StatusKey(chargerID), "online", 0)
	r.cache.Set(ctx, cache.LastSeenKey(chargerID), time.Now().UTC().Format(time.RFC3339), 0)
	r.store.audit(ctx, r.log, chargerID, domain.EventKindConnected, nil, map[string]interface{}{
		"transport": string(t.Kind()),
	})
}

// OnDisconnected marks the session offline and cancels every pending waiter
// with ChargerDisconnected. Active charging sessions are left untouched; the
// charger's StopTransaction is expected on reconnect.
func (r *Router) OnDisconnected(chargerID string, reason string) {
	r.mu.RLock()
	sess := r.sessions[chargerID]
	r.mu.RUnlock()
	if sess == nil {
		return
	}

	sess.detach(reason)
	telemetry.ConnectedChargers.Dec()

	for _, p := range r.pending.removeAll(chargerID) {
		if p.settle(dispatchResult{err: domain.ErrChargerDisconnected}) {
			r.clearPendingCacheEntry(chargerID, p.messageID)
		}
	}

	ctx, cancelFn := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancelFn()
	r.cache.Set(ctx, cache.StatusKey(chargerID), "offline", 0)
	r.store.audit(ctx, r.log, chargerID, domain.EventKindDisconnected, nil, map[string]interface{}{
		"reason": reason,
	})
}

// OnInbound decodes a raw frame and routes it: CALLs to the owning session's
// inbox, CALLRESULT/CALLERROR to the matching waiter.
func (r *Router) OnInbound(frame ports.InboundFrame) {
	decoded, err := r.decodeFrame(frame)
	if err != nil {
		r.onDecodeFailure(frame, err)
		return
	}
	r.resetDecodeStreak(frame.ChargerID)

	telemetry.MessagesTotal.WithLabelValues(string(frame.Transport), "in", frameLabel(decoded)).Inc()

	switch decoded.Type {
	case ocpp.MessageTypeCall:
		r.mu.RLock()
		sess := r.sessions[frame.ChargerID]
		r.mu.RUnlock()
		if sess == nil {
			// Transports announce Connected before the first inbound; a miss
			// here means the charger raced a shutdown.
			r.log.Warn("inbound call for unknown session", zap.String("charger_id", frame.ChargerID))
			return
		}
		sess.enqueueInbound(inboundCall{frame: decoded, transport: frame.Transport, receivedAt: frame.ReceivedAt})
	case ocpp.MessageTypeCallResult, ocpp.MessageTypeCallError:
		p := r.pending.remove(frame.ChargerID, decoded.MessageID)
		if p == nil {
			// A reply after the waiter timed out. Drop it.
			r.log.Info("dropping spurious reply",
				zap.String("charger_id", frame.ChargerID),
				zap.String("message_id", decoded.MessageID),
			)
			return
		}
		var res dispatchResult
		if decoded.Type == ocpp.MessageTypeCallResult {
			res = dispatchResult{payload: decoded.Payload}
		} else {
			res = dispatchResult{err: callErrorFromFrame(decoded)}
		}
		if p.settle(res) {
			r.clearPendingCacheEntry(frame.ChargerID, decoded.MessageID)
		}
	}
}

// Dispatch issues a server-originated CALL and blocks until the correlated
// CALLRESULT, a CALLERROR, the deadline, or ctx cancellation.
func (r *Router) Dispatch(ctx context.Context, chargerID, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if !ocpp.IsServerAction(action) {
		return nil, fmt.Errorf("action %q is not server-initiated", action)
	}
	if timeout <= 0 {
		timeout = r.cfg.CallTimeout
	}

	r.mu.RLock()
	sess := r.sessions[chargerID]
	r.mu.RUnlock()
	if sess == nil || !sess.isOnline() {
		return nil, fmt.Errorf("dispatch %s to %s: %w", action, chargerID, domain.ErrChargerOffline)
	}

	messageID := uuid.NewString()
	p := newPendingCall(chargerID, messageID, action, payload, time.Now().Add(timeout))
	r.pending.add(p)
	p.timer = time.AfterFunc(timeout, func() { r.timeoutPending(chargerID, messageID) })

	if err := sess.enqueueOutbound(p); err != nil {
		r.pending.remove(chargerID, messageID)
		p.settle(dispatchResult{err: err})
		<-p.resultCh
		return nil, fmt.Errorf("dispatch %s to %s: %w", action, chargerID, err)
	}

	cctx, cancelFn := context.WithTimeout(r.ctx, 2*time.Second)
	r.cache.SAdd(cctx, cache.PendingCallsKey(chargerID), messageID)
	cancelFn()

	start := time.Now()
	select {
	case res := <-p.resultCh:
		telemetry.CallDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	case <-ctx.Done():
		if q := r.pending.remove(chargerID, messageID); q != nil {
			q.settle(dispatchResult{err: ctx.Err()})
			r.clearPendingCacheEntry(chargerID, messageID)
		}
		return nil, ctx.Err()
	}
}

// IsOnline reports whether the charger currently has an online session.
func (r *Router) IsOnline(chargerID string) bool {
	r.mu.RLock()
	sess := r.sessions[chargerID]
	r.mu.RUnlock()
	return sess != nil && sess.isOnline()
}

// SessionState exposes the state machine position for views and tests.
func (r *Router) SessionState(chargerID string) State {
	r.mu.RLock()
	sess := r.sessions[chargerID]
	r.mu.RUnlock()
	if sess == nil {
		return StateDisconnected
	}
	return sess.currentState()
}

func (r *Router) timeoutPending(chargerID, messageID string) {
	p := r.pending.remove(chargerID, messageID)
	if p == nil {
		return
	}
	if p.settle(dispatchResult{err: domain.ErrCallTimeout}) {
		r.clearPendingCacheEntry(chargerID, messageID)
		telemetry.CallTimeouts.Inc()
		ctx, cancelFn := context.WithTimeout(r.ctx, 5*time.Second)
		defer cancelFn()
		r.store.audit(ctx, r.log, chargerID, domain.EventKindCallTimeout, nil, map[string]interface{}{
			"message_id": messageID,
			"action":     p.action,
		})
	}
}

func (r *Router) clearPendingCacheEntry(chargerID, messageID string) {
	ctx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFn()
	r.cache.SRem(ctx, cache.PendingCallsKey(chargerID), messageID)
}

func (r *Router) decodeFrame(frame ports.InboundFrame) (*ocpp.Frame, error) {
	if frame.Transport == ports.TransportMQTT {
		return ocpp.DecodeEnvelope(frame.Raw)
	}
	return ocpp.Decode(frame.Raw)
}

// onDecodeFailure audits the malformed frame and closes the channel after
// five consecutive failures inside the ten-second window.
func (r *Router) onDecodeFailure(frame ports.InboundFrame, err error) {
	r.log.Warn("discarding malformed frame",
		zap.String("charger_id", frame.ChargerID),
		zap.Error(err),
	)
	telemetry.DecodeFailures.Inc()

	ctx, cancelFn := context.WithTimeout(r.ctx, 5*time.Second)
	r.store.audit(ctx, r.log, frame.ChargerID, domain.EventKindDecodeError, nil, map[string]interface{}{
		"error": err.Error(),
	})
	cancelFn()

	now := time.Now()
	r.decodeMu.Lock()
	streak := r.decode[frame.ChargerID]
	if streak == nil || now.Sub(streak.first) > decodeFailureWindow {
		streak = &decodeStreak{first: now}
		r.decode[frame.ChargerID] = streak
	}
	streak.count++
	tripped := streak.count >= decodeFailureLimit
	if tripped {
		delete(r.decode, frame.ChargerID)
	}
	r.decodeMu.Unlock()

	if tripped {
		r.mu.RLock()
		sess := r.sessions[frame.ChargerID]
		r.mu.RUnlock()
		if sess != nil {
			sess.disconnectTransport("too many malformed frames")
		}
	}
}

func (r *Router) resetDecodeStreak(chargerID string) {
	r.decodeMu.Lock()
	delete(r.decode, chargerID)
	r.decodeMu.Unlock()
}

func (r *Router) interruptStaleSessions() {
	cutoff := time.Now().Add(-r.cfg.SessionStaleTimeout)
	ctx, cancelFn := context.WithTimeout(r.ctx, 30*time.Second)
	defer cancelFn()
	n, err := r.store.Sessions.InterruptStale(ctx, cutoff)
	if err != nil {
		r.log.Error("stale-session sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("interrupted stale charging sessions", zap.Int64("count", n))
	}
}

// dedupLookup and dedupStore implement the session-side hooks.
func (r *Router) dedupLookup(chargerID, messageID string) ([]byte, bool) {
	return r.dedup.lookup(chargerID, messageID)
}

func (r *Router) dedupStore(chargerID, messageID string, raw []byte) {
	r.dedup.store(chargerID, messageID, raw)
}

func frameLabel(f *ocpp.Frame) string {
	switch f.Type {
	case ocpp.MessageTypeCall:
		return f.Action
	case ocpp.MessageTypeCallResult:
		return "CallResult"
	default:
		return "CallError"
	}
}
