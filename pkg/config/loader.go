package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("store.url", "DATABASE_URL", "APP_STORE_URL")
	viper.BindEnv("cache.url", "REDIS_URL", "APP_CACHE_URL")
	viper.BindEnv("queue.nats_url", "NATS_URL", "APP_QUEUE_NATS_URL")
	viper.BindEnv("queue.rabbitmq_url", "RABBITMQ_URL")
	viper.BindEnv("mqtt.broker_url", "MQTT_BROKER_URL", "APP_MQTT_BROKER_URL")
	viper.BindEnv("mqtt.username", "MQTT_USERNAME")
	viper.BindEnv("mqtt.password", "MQTT_PASSWORD")
	viper.BindEnv("ocpp.ws_listen_addr", "WS_LISTEN_ADDR")
	viper.BindEnv("jwt.secret", "JWT_SECRET", "APP_JWT_SECRET")
	viper.BindEnv("vault.address", "VAULT_ADDR")
	viper.BindEnv("vault.token", "VAULT_TOKEN")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	viper.SetDefault("ocpp.ws_listen_addr", ":9000")
	viper.SetDefault("ocpp.heartbeat_interval_seconds", 60)
	viper.SetDefault("ocpp.offline_timeout_seconds", 90)
	viper.SetDefault("ocpp.call_timeout_seconds", 30)
	viper.SetDefault("ocpp.dedup_window_seconds", 120)
	viper.SetDefault("ocpp.session_stale_timeout_hours", 24)
	viper.SetDefault("ocpp.authorize_cache_ttl_seconds", 300)
	viper.SetDefault("ocpp.outbound_queue_depth", 64)
	viper.SetDefault("ocpp.inbound_buffer_depth", 256)
	viper.SetDefault("ocpp.auto_provision", true)
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.offline_timeout_seconds", 30)
	viper.SetDefault("queue.kind", "nats")
	viper.SetDefault("http.port", 8080)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file: env vars and defaults only
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
