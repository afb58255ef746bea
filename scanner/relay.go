// Package scanner relays advertisements observed by the radio while it scans.
package scanner

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-ble/ble/linux/adv"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
	"github.com/Edgewaretech/edgeware-bluegate/internal/groutine"
	"github.com/Edgewaretech/edgeware-bluegate/internal/ringchan"
)

// Publisher delivers a JSON payload to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Options configures a Relay.
type Options struct {
	Topic      string `default:"ble/adv"`
	BufferSize int    `default:"256"`
	// MaxRate caps publishes per second; zero means unlimited.
	MaxRate float64 `default:"0"`
	Burst   int     `default:"16"`
}

// DefaultOptions returns the relay defaults.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Stats counts relay traffic.
type Stats struct {
	Offered   int64 `json:"offered"`
	Filtered  int64 `json:"filtered"`
	Dropped   int64 `json:"dropped"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Relay filters advertisements through an AllowList and publishes them.
// Offer never blocks; when the publisher falls behind the oldest pending
// advertisements are discarded.
type Relay struct {
	publisher Publisher
	allow     *AllowList
	opts      *Options
	logger    *logrus.Logger

	pending *ringchan.RingChannel[bleuio.AdvRssiData]
	limiter *rate.Limiter

	offered   atomic.Int64
	filtered  atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
}

// NewRelay creates a relay. A nil allow-list admits every address.
func NewRelay(publisher Publisher, allow *AllowList, opts *Options, logger *logrus.Logger) *Relay {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}

	limit := rate.Inf
	if opts.MaxRate > 0 {
		limit = rate.Limit(opts.MaxRate)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Relay{
		publisher: publisher,
		allow:     allow,
		opts:      opts,
		logger:    logger,
		pending:   ringchan.New[bleuio.AdvRssiData](opts.BufferSize),
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// Offer queues adv for publishing if its address is allowed.
func (r *Relay) Offer(a bleuio.AdvRssiData) {
	r.offered.Add(1)
	if !r.allow.Allows(a.Address) {
		r.filtered.Add(1)
		return
	}
	if r.pending.ForceSend(a) {
		r.logger.WithField("address", a.Address).Debug("Relay buffer full, dropped oldest advertisement")
	}
}

// Run publishes queued advertisements until ctx is cancelled. Publish
// failures are logged and do not stop the relay.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.WithFields(logrus.Fields{
		"topic":      r.opts.Topic,
		"allow_list": r.allow.String(),
	}).Info("Advertisement relay started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-r.pending.C():
			if !ok {
				return nil
			}
			if err := r.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("relay rate limiter: %w", err)
			}
			r.publish(ctx, a)
		}
	}
}

// Start runs the relay in a named goroutine and returns a channel that
// receives its result.
func (r *Relay) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	groutine.Go(ctx, "adv-relay", func(ctx context.Context) {
		errCh <- r.Run(ctx)
	})
	return errCh
}

// Close stops accepting advertisements.
func (r *Relay) Close() {
	r.pending.Close()
}

// Stats returns the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Offered:   r.offered.Load(),
		Filtered:  r.filtered.Load(),
		Dropped:   r.pending.Stats().Overwritten,
		Published: r.published.Load(),
		Failed:    r.failed.Load(),
	}
}

func (r *Relay) publish(ctx context.Context, a bleuio.AdvRssiData) {
	entry := r.logger.WithFields(logrus.Fields{"address": a.Address, "rssi": a.RSSI})
	if r.logger.IsLevelEnabled(logrus.TraceLevel) {
		if name := LocalName(a.AdvFields); name != "" {
			entry = entry.WithField("name", name)
		}
	}

	payload, err := json.Marshal(a)
	if err != nil {
		r.failed.Add(1)
		entry.WithError(err).Warn("Failed to encode advertisement")
		return
	}
	if err := r.publisher.Publish(ctx, r.opts.Topic, payload); err != nil {
		r.failed.Add(1)
		if !errors.Is(err, context.Canceled) {
			entry.WithError(err).Warn("Failed to publish advertisement")
		}
		return
	}
	r.published.Add(1)
	entry.Trace("Advertisement published")
}

// LocalName returns the complete or shortened local name carried by fields,
// or "" if there is none.
func LocalName(fields bleuio.AdvFields) string {
	if fields == nil {
		return ""
	}
	var raw []byte
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		typ, err := hex.DecodeString(pair.Key)
		if err != nil || len(typ) != 1 {
			continue
		}
		data, err := hex.DecodeString(pair.Value)
		if err != nil || len(data) > 254 {
			continue
		}
		raw = append(raw, byte(len(data)+1), typ[0])
		raw = append(raw, data...)
	}
	if len(raw) == 0 {
		return ""
	}

	p := adv.NewRawPacket(raw)
	return p.LocalName()
}
