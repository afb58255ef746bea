package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Edgewaretech/edgeware-bluegate/internal/gateway"
	"github.com/Edgewaretech/edgeware-bluegate/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Open the BleuIO radio, connect to the MQTT broker and serve BLE requests until
interrupted.

Settings come from the defaults, then the YAML file given with --config, then the
environment (ALLOWED_ADDRESSES, BLUEGATE_MQTT_URL, BLUEGATE_SERIAL_PORT,
BLUEGATE_LOG_LEVEL), then the flags below.

When started by systemd with Type=notify the gateway reports readiness once the
radio is identified, and pings the watchdog if WatchdogSec is set.`,
	Example: `  bluegate serve --config /etc/bluegate/bluegate.yaml
  bluegate serve --port /dev/ttyACM0 --mqtt-url mqtt://localhost:1883 --allow AA:BB:CC:DD:EE:FF`,
	RunE: runServe,
}

var (
	serveConfigPath string
	servePort       string
	serveMQTTURL    string
	serveAllow      string
	serveHTTP       string
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "YAML configuration file")
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Serial device of the radio (skips USB discovery)")
	serveCmd.Flags().StringVar(&serveMQTTURL, "mqtt-url", "", "MQTT broker URL")
	serveCmd.Flags().StringVar(&serveAllow, "allow", "", "Addresses whose advertisements are relayed, separated by ';' (\"*\" for all)")
	serveCmd.Flags().StringVar(&serveHTTP, "http", "", "Status endpoint listen address (\"off\" disables it)")
}

// loadServeConfig merges the config file, environment and flags.
func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = servePort
	}
	if flags.Changed("mqtt-url") {
		cfg.MQTT.URL = serveMQTTURL
	}
	if flags.Changed("allow") {
		cfg.Relay.AllowedAddresses = serveAllow
	}
	if flags.Changed("http") {
		cfg.HTTP.Listen = serveHTTP
		if serveHTTP == "off" {
			cfg.HTTP.Listen = ""
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"version":  formatVersion(version),
		"broker":   cfg.MQTT.URL,
		"requests": cfg.MQTT.RequestsTopic,
		"adv":      cfg.MQTT.AdvTopic,
	}).Info("Starting bluegate")

	app := gateway.New(cfg, logger, gateway.WithVersion(formatVersion(version)))
	go notifySystemd(ctx, app, logger)

	err = app.Run(ctx)
	if _, nerr := daemon.SdNotify(false, daemon.SdNotifyStopping); nerr != nil {
		logger.WithError(nerr).Debug("sd_notify STOPPING failed")
	}
	return err
}

// notifySystemd reports readiness and keeps the watchdog fed while the
// gateway runs. Without NOTIFY_SOCKET every call is a no-op.
func notifySystemd(ctx context.Context, app *gateway.App, logger *logrus.Logger) {
	select {
	case <-app.Ready():
	case <-ctx.Done():
		return
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.WithError(err).Warn("sd_notify READY failed")
	} else if sent {
		logger.Debug("Notified systemd of readiness")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.WithError(err).Debug("sd_notify WATCHDOG failed")
			}
		}
	}
}
