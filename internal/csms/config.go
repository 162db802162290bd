package csms

import "time"

// Config carries the protocol timing and backpressure knobs for the engine.
type Config struct {
	HeartbeatInterval time.Duration
	// OfflineTimeout is the heartbeat-watchdog deadline. When zero it is
	// derived as 2*HeartbeatInterval + WatchdogGrace.
	OfflineTimeout      time.Duration
	WatchdogGrace       time.Duration
	CallTimeout         time.Duration
	DedupWindow         time.Duration
	AuthCacheTTL        time.Duration
	SessionStaleTimeout time.Duration
	OutboundQueueDepth  int
	InboxDepth          int
	// AutoProvision creates a ChargePoint row on the first BootNotification
	// from an unknown charger instead of rejecting it.
	AutoProvision bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:   60 * time.Second,
		OfflineTimeout:      90 * time.Second,
		WatchdogGrace:       30 * time.Second,
		CallTimeout:         30 * time.Second,
		DedupWindow:         120 * time.Second,
		AuthCacheTTL:        300 * time.Second,
		SessionStaleTimeout: 24 * time.Hour,
		OutboundQueueDepth:  64,
		InboxDepth:          256,
		AutoProvision:       true,
	}
}

// WatchdogTimeout is the liveness deadline for a session with no inbound
// traffic.
func (c Config) WatchdogTimeout() time.Duration {
	if c.OfflineTimeout > 0 {
		return c.OfflineTimeout
	}
	return 2*c.HeartbeatInterval + c.WatchdogGrace
}

func (c Config) normalized() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 60 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 120 * time.Second
	}
	if c.AuthCacheTTL <= 0 {
		c.AuthCacheTTL = 300 * time.Second
	}
	if c.SessionStaleTimeout <= 0 {
		c.SessionStaleTimeout = 24 * time.Hour
	}
	if c.OutboundQueueDepth <= 0 {
		c.OutboundQueueDepth = 64
	}
	if c.InboxDepth <= 0 {
		c.InboxDepth = 256
	}
	return c
}
