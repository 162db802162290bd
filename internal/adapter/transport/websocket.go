package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/ports"
)

const ocppSubprotocol = "ocpp1.6"

// WebSocketConfig holds the listener settings.
type WebSocketConfig struct {
	ListenAddr    string
	InboundDepth  int
	OutboundDepth int
	WriteTimeout  time.Duration
}

// WebSocketTransport accepts persistent OCPP 1.6J sockets at /ocpp/{id} and
// /ocpp?id={id}. One socket is one channel; a second socket for the same
// charger replaces the first.
type WebSocketTransport struct {
	cfg     WebSocketConfig
	handler ports.TransportHandler
	log     *zap.Logger

	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.RWMutex
	conns map[string]*wsConn
}

type wsConn struct {
	chargerID string
	conn      *websocket.Conn
	sendCh    chan []byte
	inboundCh chan ports.InboundFrame
	closeOnce sync.Once
	done      chan struct{}
}

func NewWebSocketTransport(cfg WebSocketConfig, handler ports.TransportHandler, log *zap.Logger) *WebSocketTransport {
	if cfg.InboundDepth <= 0 {
		cfg.InboundDepth = 256
	}
	if cfg.OutboundDepth <= 0 {
		cfg.OutboundDepth = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WebSocketTransport{
		cfg:     cfg,
		handler: handler,
		log:     log,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{ocppSubprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*wsConn),
	}
}

func (t *WebSocketTransport) Kind() ports.TransportKind { return ports.TransportWebSocket }

func (t *WebSocketTransport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp/", t.handleUpgrade)
	mux.HandleFunc("/ocpp", t.handleUpgrade)

	t.server = &http.Server{Addr: t.cfg.ListenAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		t.Close()
	}()

	t.log.Info("OCPP WebSocket transport listening", zap.String("addr", t.cfg.ListenAddr))
	if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket transport: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	chargerID := chargerIDFromRequest(r)
	if chargerID == "" {
		http.Error(w, "missing charger id", http.StatusBadRequest)
		return
	}

	if !clientOffersSubprotocol(r, ocppSubprotocol) {
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.Error("WebSocket upgrade failed", zap.String("charger_id", chargerID), zap.Error(err))
		return
	}
	if conn.Subprotocol() != ocppSubprotocol {
		// Negotiation failed; one diagnostic frame, then close.
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "subprotocol ocpp1.6 required"), deadline)
		conn.Close()
		return
	}

	wc := &wsConn{
		chargerID: chargerID,
		conn:      conn,
		sendCh:    make(chan []byte, t.cfg.OutboundDepth),
		inboundCh: make(chan ports.InboundFrame, t.cfg.InboundDepth),
		done:      make(chan struct{}),
	}

	t.mu.Lock()
	if prev, ok := t.conns[chargerID]; ok {
		prev.shutdown()
	}
	t.conns[chargerID] = wc
	t.mu.Unlock()

	t.log.Info("charge point connected",
		zap.String("charger_id", chargerID),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	t.handler.OnConnected(chargerID, ports.AuthClaim{ChargerID: chargerID, Authenticated: false}, t)

	go t.writePump(wc)
	go t.dispatchPump(wc)
	t.readPump(wc)
}

// readPump owns the socket read side. It feeds the bounded inbound buffer,
// dropping the oldest frame when the session cannot keep up.
func (t *WebSocketTransport) readPump(wc *wsConn) {
	defer func() {
		wc.shutdown()
		t.mu.Lock()
		current := t.conns[wc.chargerID] == wc
		if current {
			delete(t.conns, wc.chargerID)
		}
		t.mu.Unlock()
		if current {
			t.handler.OnDisconnected(wc.chargerID, "socket closed")
			t.log.Info("charge point disconnected", zap.String("charger_id", wc.chargerID))
		}
	}()

	for {
		msgType, raw, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn("WebSocket read error", zap.String("charger_id", wc.chargerID), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			t.log.Warn("binary frame rejected", zap.String("charger_id", wc.chargerID))
			continue
		}

		frame := ports.InboundFrame{
			ChargerID:  wc.chargerID,
			Raw:        raw,
			ReceivedAt: time.Now().UTC(),
			Transport:  ports.TransportWebSocket,
		}
		select {
		case wc.inboundCh <- frame:
		default:
			// Buffer full: drop the oldest, keep the newest. Liveness over
			// completeness for a misbehaving charger.
			select {
			case <-wc.inboundCh:
			default:
			}
			t.log.Warn("inbound buffer full, dropping oldest frame", zap.String("charger_id", wc.chargerID))
			select {
			case wc.inboundCh <- frame:
			default:
			}
		}
	}
}

func (t *WebSocketTransport) dispatchPump(wc *wsConn) {
	for {
		select {
		case frame := <-wc.inboundCh:
			t.handler.OnInbound(frame)
		case <-wc.done:
			return
		}
	}
}

func (t *WebSocketTransport) writePump(wc *wsConn) {
	for {
		select {
		case raw := <-wc.sendCh:
			wc.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
			if err := wc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				t.log.Warn("WebSocket write failed", zap.String("charger_id", wc.chargerID), zap.Error(err))
				wc.shutdown()
				return
			}
		case <-wc.done:
			return
		}
	}
}

func (t *WebSocketTransport) Send(chargerID string, raw []byte) error {
	t.mu.RLock()
	wc, ok := t.conns[chargerID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", chargerID, errNotConnected)
	}
	select {
	case wc.sendCh <- raw:
		return nil
	case <-wc.done:
		return fmt.Errorf("send to %s: %w", chargerID, errNotConnected)
	default:
		return fmt.Errorf("send to %s: outbound buffer full", chargerID)
	}
}

// Disconnect closes the charger's socket, if any.
func (t *WebSocketTransport) Disconnect(chargerID, reason string) {
	t.mu.RLock()
	wc, ok := t.conns[chargerID]
	t.mu.RUnlock()
	if !ok {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = wc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	wc.shutdown()
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	for id, wc := range t.conns {
		wc.shutdown()
		delete(t.conns, id)
	}
	t.mu.Unlock()
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

func (wc *wsConn) shutdown() {
	wc.closeOnce.Do(func() {
		close(wc.done)
		wc.conn.Close()
	})
}

var errNotConnected = errors.New("charger not connected")

func chargerIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/ocpp")
	path = strings.Trim(path, "/")
	if path == "" || strings.Contains(path, "/") {
		return ""
	}
	return path
}

func clientOffersSubprotocol(r *http.Request, want string) bool {
	for _, header := range r.Header.Values("Sec-Websocket-Protocol") {
		for _, proto := range strings.Split(header, ",") {
			if strings.TrimSpace(proto) == want {
				return true
			}
		}
	}
	return false
}
