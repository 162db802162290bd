package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/ports"
)

type recordingHandler struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	frames       []ports.InboundFrame
	frameCh      chan ports.InboundFrame
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{frameCh: make(chan ports.InboundFrame, 16)}
}

func (h *recordingHandler) OnConnected(chargerID string, claim ports.AuthClaim, t ports.Transport) {
	h.mu.Lock()
	h.connected = append(h.connected, chargerID)
	h.mu.Unlock()
}

func (h *recordingHandler) OnInbound(frame ports.InboundFrame) {
	h.mu.Lock()
	h.frames = append(h.frames, frame)
	h.mu.Unlock()
	h.frameCh <- frame
}

func (h *recordingHandler) OnDisconnected(chargerID string, reason string) {
	h.mu.Lock()
	h.disconnected = append(h.disconnected, chargerID)
	h.mu.Unlock()
}

func httpHandlerFunc(fn func(w http.ResponseWriter, r *http.Request)) http.Handler {
	return http.HandlerFunc(fn)
}

func TestWebSocketConnectAndEcho(t *testing.T) {
	handler := newRecordingHandler()
	logger, _ := zap.NewDevelopment()
	tr := NewWebSocketTransport(WebSocketConfig{ListenAddr: ":0"}, handler, logger)
	defer tr.Close()

	srv := httptest.NewServer(httpHandlerFunc(tr.handleUpgrade))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ocpp/CP-001"
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if conn.Subprotocol() != "ocpp1.6" {
		t.Fatalf("expected negotiated subprotocol ocpp1.6, got %q", conn.Subprotocol())
	}

	frame := `[2,"m-1","Heartbeat",{}]`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-handler.frameCh:
		if got.ChargerID != "CP-001" {
			t.Errorf("expected charger CP-001, got %q", got.ChargerID)
		}
		if string(got.Raw) != frame {
			t.Errorf("frame mangled: %s", got.Raw)
		}
		if got.Transport != ports.TransportWebSocket {
			t.Errorf("expected websocket transport kind, got %q", got.Transport)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound frame never reached the handler")
	}

	// Outbound delivery through Send
	reply := []byte(`[3,"m-1",{"currentTime":"2025-01-01T00:00:00Z"}]`)
	if err := tr.Send("CP-001", reply); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(reply) {
		t.Errorf("outbound frame mangled: %s", got)
	}
}

func TestWebSocketRejectsMissingSubprotocol(t *testing.T) {
	handler := newRecordingHandler()
	logger, _ := zap.NewDevelopment()
	tr := NewWebSocketTransport(WebSocketConfig{ListenAddr: ":0"}, handler, logger)
	defer tr.Close()

	srv := httptest.NewServer(httpHandlerFunc(tr.handleUpgrade))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ocpp/CP-001"
	dialer := websocket.Dialer{} // no subprotocol offered
	_, resp, err := dialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail without ocpp1.6 subprotocol")
	}
	if resp != nil && resp.StatusCode != 400 {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.connected) != 0 {
		t.Error("rejected socket must not produce a Connected event")
	}
}

func TestWebSocketDisconnectObserved(t *testing.T) {
	handler := newRecordingHandler()
	logger, _ := zap.NewDevelopment()
	tr := NewWebSocketTransport(WebSocketConfig{ListenAddr: ":0"}, handler, logger)
	defer tr.Close()

	srv := httptest.NewServer(httpHandlerFunc(tr.handleUpgrade))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ocpp?id=CP-002"
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		handler.mu.Lock()
		n := len(handler.disconnected)
		handler.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Disconnected event never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
