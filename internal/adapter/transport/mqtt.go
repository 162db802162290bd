package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/andescharge/csms/internal/ports"
)

// MQTTConfig holds broker settings for the topic-addressed transport.
type MQTTConfig struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	OfflineTimeout time.Duration
	SweepInterval  time.Duration
}

// MQTTTransport speaks OCPP over a broker: inbound on
// {type_code}/{serial}/user/up, outbound on {type_code}/{serial}/user/down.
// A charger counts as connected from its first inbound message until no
// traffic has been observed for the offline timeout.
type MQTTTransport struct {
	cfg     MQTTConfig
	handler ports.TransportHandler
	log     *zap.Logger

	client mqtt.Client
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	chargers map[string]*mqttCharger
}

type mqttCharger struct {
	serial      string
	typeCode    string
	lastInbound time.Time
}

func NewMQTTTransport(cfg MQTTConfig, handler ports.TransportHandler, log *zap.Logger) *MQTTTransport {
	if cfg.ClientID == "" {
		cfg.ClientID = "csms-core"
	}
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	if cfg.OfflineTimeout <= 0 {
		cfg.OfflineTimeout = 30 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	return &MQTTTransport{
		cfg:      cfg,
		handler:  handler,
		log:      log,
		chargers: make(map[string]*mqttCharger),
	}
}

func (t *MQTTTransport) Kind() ports.TransportKind { return ports.TransportMQTT }

func (t *MQTTTransport) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	t.ctx = watchCtx
	t.cancel = cancel

	// Reconnects are driven by our own full-jitter loop, not paho's
	// deterministic scheme.
	opts := mqtt.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.cfg.ClientID).
		SetUsername(t.cfg.Username).
		SetPassword(t.cfg.Password).
		SetAutoReconnect(false).
		SetOrderMatters(true).
		SetCleanSession(false)

	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe("+/+/user/up", t.cfg.QoS, t.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			t.log.Error("MQTT subscribe failed", zap.Error(err))
			return
		}
		t.log.Info("MQTT transport subscribed", zap.String("filter", "+/+/user/up"))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		t.log.Warn("MQTT connection lost", zap.Error(err))
		go t.reconnectLoop()
	}

	t.client = mqtt.NewClient(opts)

	token := t.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		cancel()
		return fmt.Errorf("mqtt connect: %w", err)
	}

	go t.offlineWatchdog(watchCtx)

	t.log.Info("MQTT transport connected", zap.String("broker", t.cfg.BrokerURL))
	return nil
}

// reconnectLoop redials the broker after a lost connection, sleeping a
// full-jitter exponential delay (0.5s base, 30s cap) between attempts.
func (t *MQTTTransport) reconnectLoop() {
	for attempt := 0; ; attempt++ {
		select {
		case <-t.ctx.Done():
			return
		case <-time.After(nextBackoff(attempt)):
		}

		token := t.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			t.log.Warn("MQTT reconnect failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		t.log.Info("MQTT transport reconnected", zap.Int("attempts", attempt+1))
		return
	}
}

// onMessage handles one publication on {type}/{serial}/user/up. The charger
// identity comes from the topic; a first message synthesizes Connected.
func (t *MQTTTransport) onMessage(_ mqtt.Client, msg mqtt.Message) {
	typeCode, serial, ok := parseUpTopic(msg.Topic())
	if !ok {
		t.log.Warn("message on unrecognized topic", zap.String("topic", msg.Topic()))
		return
	}

	now := time.Now().UTC()

	t.mu.Lock()
	ch, known := t.chargers[serial]
	if !known {
		ch = &mqttCharger{serial: serial, typeCode: typeCode}
		t.chargers[serial] = ch
	}
	ch.lastInbound = now
	ch.typeCode = typeCode
	t.mu.Unlock()

	if !known {
		t.handler.OnConnected(serial, ports.AuthClaim{
			ChargerID:     serial,
			TypeCode:      typeCode,
			Authenticated: true, // broker credentials already vetted the device
		}, t)
	}

	t.handler.OnInbound(ports.InboundFrame{
		ChargerID:  serial,
		Raw:        msg.Payload(),
		ReceivedAt: now,
		Transport:  ports.TransportMQTT,
	})
}

// offlineWatchdog synthesizes Disconnected for chargers with no traffic
// within the offline timeout.
func (t *MQTTTransport) offlineWatchdog(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var gone []string
			t.mu.Lock()
			for serial, ch := range t.chargers {
				if now.Sub(ch.lastInbound) > t.cfg.OfflineTimeout {
					delete(t.chargers, serial)
					gone = append(gone, serial)
				}
			}
			t.mu.Unlock()
			for _, serial := range gone {
				t.log.Info("charger offline (no MQTT traffic)", zap.String("charger_id", serial))
				t.handler.OnDisconnected(serial, "offline timeout")
			}
		}
	}
}

func (t *MQTTTransport) Send(chargerID string, raw []byte) error {
	t.mu.RLock()
	ch, ok := t.chargers[chargerID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", chargerID, errNotConnected)
	}
	topic := fmt.Sprintf("%s/%s/user/down", ch.typeCode, ch.serial)
	token := t.client.Publish(topic, t.cfg.QoS, false, raw)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Disconnect drops the synthetic connection state for one charger.
func (t *MQTTTransport) Disconnect(chargerID, reason string) {
	t.mu.Lock()
	_, ok := t.chargers[chargerID]
	delete(t.chargers, chargerID)
	t.mu.Unlock()
	if ok {
		t.handler.OnDisconnected(chargerID, reason)
	}
}

func (t *MQTTTransport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
	return nil
}

func parseUpTopic(topic string) (typeCode, serial string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[2] != "user" || parts[3] != "up" {
		return "", "", false
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
