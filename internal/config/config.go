package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreBackend            string `mapstructure:"STORE_BACKEND"`
	FirebaseDatabaseURL     string `mapstructure:"FIREBASE_DATABASE_URL"`
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	DBMaxConns              int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns              int32  `mapstructure:"DB_MIN_CONNS"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`

	AuthUsername     string        `mapstructure:"AUTH_USERNAME"`
	AuthPassword     string        `mapstructure:"AUTH_PASSWORD"`
	AuthPasswordHash string        `mapstructure:"AUTH_PASSWORD_HASH"`
	AuthToken        string        `mapstructure:"AUTH_TOKEN"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthTokenTTL     time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	AuthEnforce      bool          `mapstructure:"AUTH_ENFORCE"`

	LiveSource            string        `mapstructure:"LIVE_SOURCE"`
	BLEDeviceName         string        `mapstructure:"BLE_DEVICE_NAME"`
	BLECharacteristicUUID string        `mapstructure:"BLE_CHARACTERISTIC_UUID"`
	BLEScanTimeout        time.Duration `mapstructure:"BLE_SCAN_TIMEOUT"`
	BLEIdleTimeout        time.Duration `mapstructure:"BLE_IDLE_TIMEOUT"`
	MQTTBroker            string        `mapstructure:"MQTT_BROKER"`
	MQTTTopic             string        `mapstructure:"MQTT_TOPIC"`
	MQTTClientID          string        `mapstructure:"MQTT_CLIENT_ID"`

	SampleInterval time.Duration `mapstructure:"SAMPLE_INTERVAL"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
}

var defaults = map[string]any{
	"PORT":                    "8000",
	"ENV":                     "development",
	"LOG_LEVEL":               "info",
	"STORE_BACKEND":           "firebase",
	"DB_MAX_CONNS":            10,
	"DB_MIN_CONNS":            2,
	"CORS_ORIGINS":            "http://localhost:3000",
	"RATE_LIMIT_RPS":          50,
	"RATE_LIMIT_BURST":        100,
	"AUTH_USERNAME":           "user",
	"AUTH_PASSWORD":           "password",
	"AUTH_TOKEN":              "mysecrettoken",
	"AUTH_TOKEN_TTL":          "12h",
	"AUTH_ENFORCE":            false,
	"LIVE_SOURCE":             "ble",
	"BLE_DEVICE_NAME":         "ESP32_Sensor",
	"BLE_CHARACTERISTIC_UUID": "beb5483e-36e1-4688-b7f5-ea07361b26a8",
	"BLE_SCAN_TIMEOUT":        "10s",
	"BLE_IDLE_TIMEOUT":        "0s",
	"MQTT_BROKER":             "tcp://localhost:1883",
	"MQTT_TOPIC":              "reabilita/sensor/raw",
	"MQTT_CLIENT_ID":          "reabilita-server",
	"SAMPLE_INTERVAL":         "2s",
	"TRACING_ENABLED":         false,
	"TRACING_EXPORTER":        "stdout",
}

// Keys without a default that must still be read from the environment.
var optional = []string{
	"FIREBASE_DATABASE_URL",
	"FIREBASE_CREDENTIALS_FILE",
	"DATABASE_URL",
	"AUTH_PASSWORD_HASH",
	"AUTH_SIGNING_KEY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
		v.BindEnv(key)
	}
	for _, key := range optional {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the selected store backend and live source have the
// settings they need.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "firebase":
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("FIREBASE_DATABASE_URL is required when STORE_BACKEND is \"firebase\"")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is \"postgres\"")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"firebase\", \"postgres\", or \"memory\", got %q", c.StoreBackend)
	}

	switch c.LiveSource {
	case "ble":
		if c.BLEDeviceName == "" || c.BLECharacteristicUUID == "" {
			return fmt.Errorf("BLE_DEVICE_NAME and BLE_CHARACTERISTIC_UUID are required when LIVE_SOURCE is \"ble\"")
		}
	case "mqtt":
		if c.MQTTBroker == "" || c.MQTTTopic == "" {
			return fmt.Errorf("MQTT_BROKER and MQTT_TOPIC are required when LIVE_SOURCE is \"mqtt\"")
		}
	default:
		return fmt.Errorf("LIVE_SOURCE must be \"ble\" or \"mqtt\", got %q", c.LiveSource)
	}

	if c.AuthUsername == "" {
		return fmt.Errorf("AUTH_USERNAME must not be empty")
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL must be positive, got %s", c.SampleInterval)
	}
	return nil
}
