// Package gateway wires the radio session, the advertisement relay, the MQTT
// client and the status endpoint into one process.
package gateway

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/broker"
	"github.com/Edgewaretech/edgeware-bluegate/internal/groutine"
	"github.com/Edgewaretech/edgeware-bluegate/internal/serialport"
	"github.com/Edgewaretech/edgeware-bluegate/internal/session"
	"github.com/Edgewaretech/edgeware-bluegate/internal/status"
	"github.com/Edgewaretech/edgeware-bluegate/pkg/config"
	"github.com/Edgewaretech/edgeware-bluegate/scanner"
)

const drainTimeout = 5 * time.Second

// Broker is the subset of the MQTT client the gateway uses.
type Broker interface {
	Connect(ctx context.Context) error
	Connected() bool
	Disconnect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Replier
}

// PortOpener opens the radio's serial port.
type PortOpener func(opts *serialport.Options, logger *logrus.Logger) (io.ReadWriteCloser, error)

// BrokerFactory creates the MQTT client; handler receives every request.
type BrokerFactory func(opts *broker.Options, handler broker.Handler, logger *logrus.Logger) Broker

// Option customizes an App.
type Option func(*App)

// WithPortOpener replaces serial port discovery.
func WithPortOpener(open PortOpener) Option {
	return func(a *App) { a.openPort = open }
}

// WithBrokerFactory replaces the MQTT client.
func WithBrokerFactory(factory BrokerFactory) Option {
	return func(a *App) { a.newBroker = factory }
}

// WithVersion sets the version reported on /status.
func WithVersion(version string) Option {
	return func(a *App) { a.version = version }
}

// App is the gateway process.
type App struct {
	cfg       *config.Config
	logger    *logrus.Logger
	version   string
	openPort  PortOpener
	newBroker BrokerFactory

	ready     chan struct{}
	readyOnce sync.Once
	firmware  string

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup

	session *session.Session
	relay   *scanner.Relay
	broker  Broker
	handler *Handler
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) *App {
	if logger == nil {
		logger = cfg.NewLogger()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		openPort: func(opts *serialport.Options, logger *logrus.Logger) (io.ReadWriteCloser, error) {
			return serialport.Open(opts, logger)
		},
		newBroker: func(opts *broker.Options, handler broker.Handler, logger *logrus.Logger) Broker {
			return broker.New(opts, handler, logger)
		},
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ready is closed once the radio has identified itself and scanning started.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Firmware returns the detected firmware once Ready is closed.
func (a *App) Firmware() string {
	select {
	case <-a.ready:
		return a.firmware
	default:
		return ""
	}
}

// Run starts every component and blocks until ctx is cancelled or the
// session fails. Cancellation is a clean stop and returns nil; session
// failures are returned so the process exits non-zero.
func (a *App) Run(ctx context.Context) error {
	allow, err := scanner.ParseAllowList(a.cfg.Relay.AllowedAddresses)
	if err != nil {
		return fmt.Errorf("invalid allow-list: %w", err)
	}

	port, err := a.openPort(SerialOptions(a.cfg), a.logger)
	if err != nil {
		return err
	}

	// the broker outlives ctx so that rejected requests still get a reply
	brokerCtx, stopBroker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBroker()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var group groutine.Group
	defer group.Wait()

	a.broker = a.newBroker(BrokerOptions(a.cfg), a.handle, a.logger)
	a.relay = scanner.NewRelay(a.broker, allow, RelayOptions(a.cfg), a.logger)
	a.session = session.New(port, a.relay, SessionOptions(a.cfg), a.logger)
	a.session.OnReady(func(firmware string) {
		a.readyOnce.Do(func() {
			a.firmware = firmware
			close(a.ready)
		})
	})

	a.handler = NewHandler(a.session, a.broker, a.logger)

	serialport.StartReader(runCtx, &group, port, a.session, a.logger)

	sessionErr := make(chan error, 1)
	group.Go(runCtx, "session", func(ctx context.Context) {
		sessionErr <- a.session.Run(ctx)
	})

	relayErr := make(chan error, 1)
	group.Go(runCtx, "adv-relay", func(ctx context.Context) {
		relayErr <- a.relay.Run(ctx)
	})

	group.Go(brokerCtx, "mqtt-connect", func(ctx context.Context) {
		if err := a.broker.Connect(ctx); err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Error("MQTT connection failed")
		}
	})

	if listen := a.cfg.HTTP.Listen; listen != "" {
		srv := status.New(status.Sources{
			Session: a.session,
			Relay:   a.relay,
			Broker:  a.broker,
			Version: a.version,
		}, a.logger)
		group.Go(runCtx, "status-http", func(ctx context.Context) {
			if err := srv.ListenAndServe(ctx, listen); err != nil {
				a.logger.WithError(err).Error("Status endpoint stopped")
			}
		})
	}

	var result error
	select {
	case <-runCtx.Done():
		a.logger.Info("Shutting down")
		stop()
		result = <-sessionErr
	case err := <-sessionErr:
		result = err
	case err := <-relayErr:
		result = err
		stop()
		<-sessionErr
	}
	stop()
	a.relay.Close()

	a.drain()
	disconnectCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.broker.Disconnect(disconnectCtx); err != nil {
		a.logger.WithError(err).Debug("MQTT disconnect")
	}
	stopBroker()

	if result != nil {
		a.logger.WithError(result).Error("Gateway stopped")
	}
	return result
}

func (a *App) handle(ctx context.Context, msg *broker.Message) {
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		a.logger.WithField("topic", msg.Topic).Debug("Dropped request received during shutdown")
		return
	}
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	a.handler.Handle(ctx, msg)
}

// drain waits for in-flight handlers to publish their replies.
func (a *App) drain() {
	a.mu.Lock()
	a.draining = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		a.logger.Warn("Timed out waiting for in-flight requests")
	}
}
