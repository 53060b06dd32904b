// Package config loads service configuration from environment variables:
// trigger selection, store-and-forward tuning, and the MQTT/message-bus
// connection settings, with defaults applied and a single validation pass
// before the config is handed to the service assembly.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/appfunctions-sdk/internal/common"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	TriggerType string // "http", "messagebus", "mqtt", or a user-registered name
	TargetType  string // default pipeline decode target: "raw" or "event"; custom types are set in code

	HTTPAddr string

	MessageBusBrokers      []string
	MessageBusGroupID      string
	MessageBusBaseTopic    string
	MessageBusTopics       []string
	MessageBusPublishTopic string

	MQTTBrokerURL              string
	MQTTClientID               string
	MQTTBaseTopic              string
	MQTTTopics                 []string
	MQTTPublishTopic           string
	MQTTQoS                    byte
	MQTTRetain                 bool
	MQTTKeepAlive              time.Duration
	MQTTConnectTimeout         time.Duration
	MQTTConnectRetryInterval   time.Duration
	MQTTConnectRetryMaxElapsed time.Duration
	MQTTAutoReconnect          bool
	MQTTMaxReconnectInterval   time.Duration
	MQTTAuthMode               string
	MQTTSecretName             string

	StoreForwardEnabled       bool
	StoreForwardDBPath        string
	StoreForwardInterval      time.Duration
	StoreForwardMaxRetryCount int

	LogLevel  string
	LogFormat string

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset, and validates the result.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	keepAlive, err := parseDuration("MQTT_KEEP_ALIVE", "30s")
	if err != nil {
		return nil, err
	}
	connectTimeout, err := parseDuration("MQTT_CONNECT_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	connectRetryInterval, err := parseDuration("MQTT_CONNECT_RETRY_INTERVAL", "2s")
	if err != nil {
		return nil, err
	}
	connectRetryMaxElapsed, err := parseDuration("MQTT_CONNECT_RETRY_MAX_ELAPSED", "60s")
	if err != nil {
		return nil, err
	}
	maxReconnectInterval, err := parseDuration("MQTT_MAX_RECONNECT_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}
	storeInterval, err := parseDuration("STORE_FORWARD_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	maxRetryCount := 0
	if s := os.Getenv("STORE_FORWARD_MAX_RETRY_COUNT"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n < 0 {
			return nil, errors.New("invalid STORE_FORWARD_MAX_RETRY_COUNT")
		}
		maxRetryCount = n
	}

	qos := 0
	if s := os.Getenv("MQTT_QOS"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil || n < 0 || n > 2 {
			return nil, errors.New("invalid MQTT_QOS: must be 0, 1, or 2")
		}
		qos = n
	}

	cfg := &Config{
		TriggerType: envOrDefault("TRIGGER_TYPE", "http"),
		TargetType:  envOrDefault("TARGET_TYPE", "event"),

		HTTPAddr: envOrDefault("HTTP_ADDR", ":59700"),

		MessageBusBrokers:      splitCSV(envOrDefault("MESSAGEBUS_BROKERS", "localhost:9092")),
		MessageBusGroupID:      envOrDefault("MESSAGEBUS_GROUP_ID", "appfunctions-sdk"),
		MessageBusBaseTopic:    envOrDefault("MESSAGEBUS_BASE_TOPIC", ""),
		MessageBusTopics:       splitCSV(envOrDefault("MESSAGEBUS_TOPICS", "events")),
		MessageBusPublishTopic: envOrDefault("MESSAGEBUS_PUBLISH_TOPIC", ""),

		MQTTBrokerURL:              envOrDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:               envOrDefault("MQTT_CLIENT_ID", "appfunctions-sdk"),
		MQTTBaseTopic:              envOrDefault("MQTT_BASE_TOPIC", ""),
		MQTTTopics:                 splitCSV(envOrDefault("MQTT_TOPICS", "events/#")),
		MQTTPublishTopic:           envOrDefault("MQTT_PUBLISH_TOPIC", ""),
		MQTTQoS:                    byte(qos),
		MQTTRetain:                 envBool("MQTT_RETAIN", false),
		MQTTKeepAlive:              keepAlive,
		MQTTConnectTimeout:         connectTimeout,
		MQTTConnectRetryInterval:   connectRetryInterval,
		MQTTConnectRetryMaxElapsed: connectRetryMaxElapsed,
		MQTTAutoReconnect:          envBool("MQTT_AUTO_RECONNECT", true),
		MQTTMaxReconnectInterval:   maxReconnectInterval,
		MQTTAuthMode:               envOrDefault("MQTT_AUTH_MODE", "none"),
		MQTTSecretName:             envOrDefault("MQTT_SECRET_NAME", "mqtt"),

		StoreForwardEnabled:       envBool("STORE_FORWARD_ENABLED", false),
		StoreForwardDBPath:        envOrDefault("STORE_FORWARD_DB_PATH", "store-forward.db"),
		StoreForwardInterval:      storeInterval,
		StoreForwardMaxRetryCount: maxRetryCount,

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.TriggerType) {
	case "http":
		if c.HTTPAddr == "" {
			return errors.New("HTTP_ADDR is required when TRIGGER_TYPE=http")
		}
	case "messagebus":
		if len(c.MessageBusBrokers) == 0 {
			return errors.New("MESSAGEBUS_BROKERS is required when TRIGGER_TYPE=messagebus")
		}
		if len(c.MessageBusTopics) == 0 {
			return errors.New("MESSAGEBUS_TOPICS is required when TRIGGER_TYPE=messagebus")
		}
	case "mqtt":
		if c.MQTTBrokerURL == "" {
			return errors.New("MQTT_BROKER_URL is required when TRIGGER_TYPE=mqtt")
		}
		if len(c.MQTTTopics) == 0 {
			return errors.New("MQTT_TOPICS is required when TRIGGER_TYPE=mqtt")
		}
	default:
		// A user-registered custom trigger type: no built-in settings to
		// validate.
	}

	switch strings.ToLower(c.TargetType) {
	case "raw", "event":
	default:
		return fmt.Errorf("invalid TARGET_TYPE %q: must be raw or event", c.TargetType)
	}

	if c.StoreForwardEnabled && c.StoreForwardDBPath == "" {
		return errors.New("STORE_FORWARD_DB_PATH is required when STORE_FORWARD_ENABLED=true")
	}
	return nil
}

// LogOverrides logs every environment variable this package reads that the
// caller actually set, redacting sensitive-looking values.
func LogOverrides(logger *slog.Logger) {
	for _, key := range recognizedEnvVars {
		if v, ok := os.LookupEnv(key); ok {
			logger.Info("configuration override", "var", key, "value", common.RedactEnvValue(key, v))
		}
	}
}

var recognizedEnvVars = []string{
	"TRIGGER_TYPE", "TARGET_TYPE", "HTTP_ADDR",
	"MESSAGEBUS_BROKERS", "MESSAGEBUS_GROUP_ID", "MESSAGEBUS_BASE_TOPIC", "MESSAGEBUS_TOPICS", "MESSAGEBUS_PUBLISH_TOPIC",
	"MQTT_BROKER_URL", "MQTT_CLIENT_ID", "MQTT_BASE_TOPIC", "MQTT_TOPICS", "MQTT_PUBLISH_TOPIC",
	"MQTT_QOS", "MQTT_RETAIN", "MQTT_KEEP_ALIVE", "MQTT_CONNECT_TIMEOUT",
	"MQTT_CONNECT_RETRY_INTERVAL", "MQTT_CONNECT_RETRY_MAX_ELAPSED", "MQTT_AUTO_RECONNECT", "MQTT_MAX_RECONNECT_INTERVAL",
	"MQTT_AUTH_MODE", "MQTT_SECRET_NAME",
	"STORE_FORWARD_ENABLED", "STORE_FORWARD_DB_PATH", "STORE_FORWARD_INTERVAL", "STORE_FORWARD_MAX_RETRY_COUNT",
	"LOG_LEVEL", "LOG_FORMAT", "SHUTDOWN_TIMEOUT",
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true"
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
