package config

import "time"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	OCPP     OCPPConfig     `mapstructure:"ocpp"`
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Queue    QueueConfig    `mapstructure:"queue"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// OCPPConfig carries the protocol timing and backpressure settings.
type OCPPConfig struct {
	WSListenAddr             string `mapstructure:"ws_listen_addr"`
	HeartbeatIntervalSeconds int    `mapstructure:"heartbeat_interval_seconds"`
	OfflineTimeoutSeconds    int    `mapstructure:"offline_timeout_seconds"`
	CallTimeoutSeconds       int    `mapstructure:"call_timeout_seconds"`
	DedupWindowSeconds       int    `mapstructure:"dedup_window_seconds"`
	SessionStaleTimeoutHours int    `mapstructure:"session_stale_timeout_hours"`
	AuthorizeCacheTTLSeconds int    `mapstructure:"authorize_cache_ttl_seconds"`
	OutboundQueueDepth       int    `mapstructure:"outbound_queue_depth"`
	InboundBufferDepth       int    `mapstructure:"inbound_buffer_depth"`
	AutoProvision            bool   `mapstructure:"auto_provision"`
}

func (c OCPPConfig) HeartbeatInterval() time.Duration {
	return secondsOr(c.HeartbeatIntervalSeconds, 60)
}

func (c OCPPConfig) OfflineTimeout() time.Duration {
	return secondsOr(c.OfflineTimeoutSeconds, 90)
}

func (c OCPPConfig) CallTimeout() time.Duration {
	return secondsOr(c.CallTimeoutSeconds, 30)
}

func (c OCPPConfig) DedupWindow() time.Duration {
	return secondsOr(c.DedupWindowSeconds, 120)
}

func (c OCPPConfig) AuthorizeCacheTTL() time.Duration {
	return secondsOr(c.AuthorizeCacheTTLSeconds, 300)
}

func (c OCPPConfig) SessionStaleTimeout() time.Duration {
	hours := c.SessionStaleTimeoutHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

type StoreConfig struct {
	URL         string `mapstructure:"url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type CacheConfig struct {
	URL string `mapstructure:"url"`
}

type MQTTConfig struct {
	BrokerURL             string `mapstructure:"broker_url"`
	ClientID              string `mapstructure:"client_id"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	QoS                   int    `mapstructure:"qos"`
	OfflineTimeoutSeconds int    `mapstructure:"offline_timeout_seconds"`
}

func (c MQTTConfig) OfflineTimeout() time.Duration {
	return secondsOr(c.OfflineTimeoutSeconds, 30)
}

// QueueConfig selects the event bus implementation: "nats" or "rabbitmq".
type QueueConfig struct {
	Kind        string `mapstructure:"kind"`
	NATSURL     string `mapstructure:"nats_url"`
	RabbitMQURL string `mapstructure:"rabbitmq_url"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
