package gateway

import (
	"github.com/Edgewaretech/edgeware-bluegate/internal/broker"
	"github.com/Edgewaretech/edgeware-bluegate/internal/serialport"
	"github.com/Edgewaretech/edgeware-bluegate/internal/session"
	"github.com/Edgewaretech/edgeware-bluegate/pkg/config"
	"github.com/Edgewaretech/edgeware-bluegate/scanner"
)

// SerialOptions maps the serial section onto port options.
func SerialOptions(cfg *config.Config) *serialport.Options {
	opts := serialport.DefaultOptions()
	opts.Path = cfg.Serial.Port
	opts.VendorID = cfg.Serial.VendorID
	opts.ProductID = cfg.Serial.ProductID
	opts.BaudRate = cfg.Serial.BaudRate
	return opts
}

// BrokerOptions maps the mqtt section onto client options.
func BrokerOptions(cfg *config.Config) *broker.Options {
	opts := broker.DefaultOptions()
	opts.URL = cfg.MQTT.URL
	opts.ClientID = cfg.MQTT.ClientID
	opts.Username = cfg.MQTT.Username
	opts.Password = cfg.MQTT.Password
	opts.RequestsTopic = cfg.MQTT.RequestsTopic
	opts.ResponsesTopic = cfg.MQTT.ResponsesTopic
	opts.KeepAlive = cfg.MQTT.KeepAlive
	return opts
}

// SessionOptions maps the session section onto protocol timing.
func SessionOptions(cfg *config.Config) *session.Options {
	opts := session.DefaultOptions()
	opts.BringUpDelay = cfg.Session.BringUpDelay
	opts.SettleDelay = cfg.Session.SettleDelay
	opts.DisconnectDelay = cfg.Session.DisconnectDelay
	opts.DisconnectTimeout = cfg.Session.DisconnectTimeout
	opts.ConnectTimeout = cfg.Session.ConnectTimeout
	opts.NotificationTimeout = cfg.Session.NotificationTimeout
	opts.OperationTimeout = cfg.Session.OperationTimeout
	opts.FirmwareTimeout = cfg.Session.FirmwareTimeout
	opts.TransferUnit = cfg.Session.TransferUnit
	return opts
}

// RelayOptions maps the relay section onto relay options.
func RelayOptions(cfg *config.Config) *scanner.Options {
	opts := scanner.DefaultOptions()
	opts.Topic = cfg.MQTT.AdvTopic
	opts.BufferSize = cfg.Relay.BufferSize
	opts.MaxRate = cfg.Relay.MaxRate
	return opts
}
