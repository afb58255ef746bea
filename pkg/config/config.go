package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvAllowedAddresses = "ALLOWED_ADDRESSES"
	EnvMQTTURL          = "BLUEGATE_MQTT_URL"
	EnvSerialPort       = "BLUEGATE_SERIAL_PORT"
	EnvLogLevel         = "BLUEGATE_LOG_LEVEL"
)

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" json:"log_level" default:"info"`
	Serial   SerialConfig  `yaml:"serial" json:"serial"`
	MQTT     MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Session  SessionConfig `yaml:"session" json:"session"`
	Relay    RelayConfig   `yaml:"relay" json:"relay"`
	HTTP     HTTPConfig    `yaml:"http" json:"http"`
}

type SerialConfig struct {
	// Port bypasses USB discovery when set.
	Port      string `yaml:"port" json:"port"`
	VendorID  string `yaml:"vendor_id" json:"vendor_id" default:"2dcf"`
	ProductID string `yaml:"product_id" json:"product_id" default:"6002"`
	BaudRate  int    `yaml:"baud_rate" json:"baud_rate" default:"57600"`
}

type MQTTConfig struct {
	URL            string        `yaml:"url" json:"url" default:"mqtt://emqx:1883"`
	ClientID       string        `yaml:"client_id" json:"client_id" default:"edgeware"`
	Username       string        `yaml:"username" json:"username"`
	Password       string        `yaml:"password" json:"-"`
	RequestsTopic  string        `yaml:"requests_topic" json:"requests_topic" default:"ble/requests"`
	ResponsesTopic string        `yaml:"responses_topic" json:"responses_topic" default:"ble/responses"`
	AdvTopic       string        `yaml:"adv_topic" json:"adv_topic" default:"ble/adv"`
	KeepAlive      time.Duration `yaml:"keep_alive" json:"keep_alive" default:"20s"`
}

type SessionConfig struct {
	BringUpDelay        time.Duration `yaml:"bring_up_delay" json:"bring_up_delay" default:"100ms"`
	SettleDelay         time.Duration `yaml:"settle_delay" json:"settle_delay" default:"50ms"`
	DisconnectDelay     time.Duration `yaml:"disconnect_delay" json:"disconnect_delay" default:"350ms"`
	DisconnectTimeout   time.Duration `yaml:"disconnect_timeout" json:"disconnect_timeout" default:"3s"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"1s"`
	NotificationTimeout time.Duration `yaml:"notification_timeout" json:"notification_timeout" default:"1s"`
	OperationTimeout    time.Duration `yaml:"operation_timeout" json:"operation_timeout" default:"10s"`
	FirmwareTimeout     time.Duration `yaml:"firmware_timeout" json:"firmware_timeout" default:"5s"`
	TransferUnit        int           `yaml:"transfer_unit" json:"transfer_unit" default:"20"`
}

type RelayConfig struct {
	// AllowedAddresses is ";" or "," separated; empty or "*" relays everything.
	AllowedAddresses string  `yaml:"allowed_addresses" json:"allowed_addresses" default:"*"`
	BufferSize       int     `yaml:"buffer_size" json:"buffer_size" default:"256"`
	MaxRate          float64 `yaml:"max_rate" json:"max_rate" default:"0"`
}

type HTTPConfig struct {
	// Listen is the status endpoint address; empty disables it.
	Listen string `yaml:"listen" json:"listen" default:":8080"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration from defaults, the YAML file at path (if any)
// and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays values found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAllowedAddresses); ok {
		c.Relay.AllowedAddresses = v
	}
	if v, ok := lookup(EnvMQTTURL); ok && v != "" {
		c.MQTT.URL = v
	}
	if v, ok := lookup(EnvSerialPort); ok {
		c.Serial.Port = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate))
	}
	if c.Serial.Port == "" && (c.Serial.VendorID == "" || c.Serial.ProductID == "") {
		errs = append(errs, errors.New("serial: either port or vendor_id and product_id are required"))
	}

	if u, err := url.Parse(c.MQTT.URL); err != nil {
		errs = append(errs, fmt.Errorf("mqtt.url: %w", err))
	} else if !supportedScheme(u.Scheme) {
		errs = append(errs, fmt.Errorf("mqtt.url: unsupported scheme %q", u.Scheme))
	}
	for name, topic := range map[string]string{
		"mqtt.requests_topic":  c.MQTT.RequestsTopic,
		"mqtt.responses_topic": c.MQTT.ResponsesTopic,
		"mqtt.adv_topic":       c.MQTT.AdvTopic,
	} {
		if topic == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", name))
		} else if strings.ContainsAny(topic, "+#") && name != "mqtt.requests_topic" {
			errs = append(errs, fmt.Errorf("%s must not contain wildcards", name))
		}
	}

	for name, d := range map[string]time.Duration{
		"session.bring_up_delay":       c.Session.BringUpDelay,
		"session.settle_delay":         c.Session.SettleDelay,
		"session.disconnect_delay":     c.Session.DisconnectDelay,
		"session.disconnect_timeout":   c.Session.DisconnectTimeout,
		"session.connect_timeout":      c.Session.ConnectTimeout,
		"session.notification_timeout": c.Session.NotificationTimeout,
		"session.operation_timeout":    c.Session.OperationTimeout,
		"session.firmware_timeout":     c.Session.FirmwareTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Session.TransferUnit <= 0 {
		errs = append(errs, fmt.Errorf("session.transfer_unit must be positive, got %d", c.Session.TransferUnit))
	}

	if c.Relay.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("relay.buffer_size must be positive, got %d", c.Relay.BufferSize))
	}
	if c.Relay.MaxRate < 0 {
		errs = append(errs, fmt.Errorf("relay.max_rate must not be negative, got %g", c.Relay.MaxRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func supportedScheme(scheme string) bool {
	switch scheme {
	case "mqtt", "tcp", "mqtts", "ssl", "tls", "ws", "wss":
		return true
	}
	return false
}

// Level returns the parsed log level, falling back to info.
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
