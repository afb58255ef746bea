package session

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
	"github.com/Edgewaretech/edgeware-bluegate/internal/request"
)

// Request phases.
const (
	phaseIdle        = "idle"
	phaseConnecting  = "connecting"
	phaseConnected   = "connected"
	phaseSubscribing = "subscribing"
	phaseAwaiting    = "awaiting"
	phaseDraining    = "draining"
	phaseWriting     = "writing"
	phaseWritten     = "written"
)

// Phase transitions.
const (
	evConnect   = "connect"
	evLinkUp    = "link_up"
	evSubscribe = "subscribe"
	evAwait     = "await"
	evDrain     = "drain"
	evWrite     = "write"
	evWritten   = "written"
)

var allPhases = []string{
	phaseIdle, phaseConnecting, phaseConnected, phaseSubscribing,
	phaseAwaiting, phaseDraining, phaseWriting, phaseWritten,
}

type outcome struct {
	result *request.Result
	err    error
}

// activeRequest is the single in-flight operation. Only the loop touches it.
type activeRequest struct {
	id      string
	gen     uint64
	spec    *request.Spec
	logger  *logrus.Entry
	phase   *fsm.FSM
	started time.Time

	writeRequested bool
	writeComplete  bool
	pending        string
	notifications  []string

	connectTimer    *timer
	notifyTimer     *timer
	disconnectTimer *timer
	guardTimer      *timer

	staged  *request.Result
	done    chan outcome
	settled bool
}

func newActiveRequest(id string, gen uint64, spec *request.Spec, done chan outcome, logger *logrus.Logger) *activeRequest {
	req := &activeRequest{
		id:      id,
		gen:     gen,
		spec:    spec,
		done:    done,
		started: time.Now(),
		logger: logger.WithFields(logrus.Fields{
			"request_id": id,
			"address":    bleuio.DeviceAddr(spec.Address).String(),
		}),
	}

	req.phase = fsm.NewFSM(
		phaseIdle,
		fsm.Events{
			{Name: evConnect, Src: allPhases, Dst: phaseConnecting},
			{Name: evLinkUp, Src: []string{phaseIdle, phaseConnecting}, Dst: phaseConnected},
			{Name: evSubscribe, Src: []string{phaseConnected}, Dst: phaseSubscribing},
			{Name: evAwait, Src: []string{phaseSubscribing}, Dst: phaseAwaiting},
			{Name: evDrain, Src: []string{phaseAwaiting}, Dst: phaseDraining},
			{Name: evWrite, Src: []string{phaseConnected}, Dst: phaseWriting},
			{Name: evWritten, Src: []string{phaseWriting}, Dst: phaseWritten},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				req.logger.WithFields(logrus.Fields{"from": e.Src, "to": e.Dst}).Debug("Request phase changed")
			},
		},
	)
	return req
}

// transition moves the phase along ev. Events that do not apply to the
// current phase leave it unchanged.
func (r *activeRequest) transition(ev string) {
	err := r.phase.Event(context.Background(), ev)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	r.logger.WithError(err).WithField("event", ev).Debug("Phase transition skipped")
}

func (r *activeRequest) is(phase string) bool {
	return r.phase.Is(phase)
}

// linked reports whether the GAP link was established for this attempt.
func (r *activeRequest) linked() bool {
	return !r.is(phaseIdle) && !r.is(phaseConnecting)
}

func (r *activeRequest) stopTimers() {
	r.connectTimer.Cancel()
	r.notifyTimer.Cancel()
	r.disconnectTimer.Cancel()
	r.guardTimer.Cancel()
}

// settle delivers o to the waiting caller. Only the first call has an effect.
func (r *activeRequest) settle(o outcome) bool {
	if r.settled {
		return false
	}
	r.settled = true
	r.done <- o
	return true
}

// connect starts (or restarts) the link attempt for req.
func (s *Session) connect(req *activeRequest) {
	req.transition(evConnect)
	s.writeFor(req, bleuio.ConnectCommand(req.spec.Address, req.spec.IsPublicAddress))
	s.armConnectTimer(req)
}

func (s *Session) armConnectTimer(req *activeRequest) {
	req.connectTimer.Cancel()
	req.connectTimer = s.after(req.spec.ConnectTimeout(s.opts.ConnectTimeout), func() {
		if s.active != req {
			return
		}
		req.logger.Debug("Connect timer expired")
		s.writeFor(req, bleuio.CmdCancelConnect)
		s.handleEvent(bleuio.Timeout{})
	})
}

// armGuard rejects req once OperationTimeout plus its connect and
// notification windows have passed without it settling.
func (s *Session) armGuard(req *activeRequest) {
	d := s.opts.OperationTimeout + req.spec.ConnectTimeout(s.opts.ConnectTimeout)
	if req.spec.WantsNotifications() {
		d += req.spec.NotificationTimeout(s.opts.NotificationTimeout)
	}
	req.guardTimer = s.later(req, d, func() {
		req.logger.WithFields(logrus.Fields{
			"phase":   req.phase.Current(),
			"timeout": d,
		}).Warn("Request did not complete in time")
		switch {
		case req.linked():
			s.writeFor(req, bleuio.CmdDisconnect)
		case req.is(phaseConnecting):
			s.writeFor(req, bleuio.CmdCancelConnect)
		}
		s.finish(req, outcome{err: request.ErrOpTimeout})
	})
}

// later runs fn after d if req is still the active request by then.
func (s *Session) later(req *activeRequest, d time.Duration, fn func()) *timer {
	return s.after(d, func() {
		if s.active == nil || s.active.gen != req.gen {
			return
		}
		fn()
	})
}

// sendDisconnect asks the radio to drop the link and bounds the wait for it.
func (s *Session) sendDisconnect(req *activeRequest) {
	s.writeFor(req, bleuio.CmdDisconnect)
	if req.disconnectTimer.active() {
		return
	}
	req.disconnectTimer = s.later(req, s.opts.DisconnectTimeout, func() {
		req.logger.Warn("Link did not drop after disconnect")
		s.handleEvent(bleuio.Disconnected{})
	})
}

// handleEvent advances the active request on one command-mode event.
func (s *Session) handleEvent(ev bleuio.Event) {
	req := s.active
	if req == nil {
		return
	}

	switch e := ev.(type) {
	case bleuio.Timeout:
		s.onTimeout(req)
	case bleuio.Connected:
		s.onConnected(req)
	case bleuio.Reconnecting:
		s.onReconnecting(req)
	case bleuio.Disconnected:
		s.onDisconnected(req)
	case bleuio.ConnectionIntervalUpdated:
		s.onIntervalUpdated(req)
	case bleuio.DataWritten:
		s.onDataWritten(req)
	case bleuio.WriteCompleted:
		s.onWriteCompleted(req)
	case bleuio.NotificationHexData:
		s.collect(req, e.Data, "")
	case bleuio.AsciiData:
		text := printable(e.Data)
		if text == "" {
			return
		}
		s.collect(req, hex.EncodeToString([]byte(text)), text)
	}
}

func (s *Session) onTimeout(req *activeRequest) {
	if req.is(phaseAwaiting) || req.is(phaseDraining) {
		// collection window closed, the link drop finalizes the request
		req.transition(evDrain)
		s.sendDisconnect(req)
		return
	}
	s.finish(req, outcome{err: request.ErrConnectTimeout})
}

func (s *Session) onConnected(req *activeRequest) {
	req.transition(evLinkUp)
	req.connectTimer.Cancel()
	req.logger.Debug("Link up")

	if !req.spec.WantsNotifications() || !req.is(phaseConnected) {
		return
	}
	req.transition(evSubscribe)
	req.pending = req.spec.WriteData
	s.later(req, s.opts.SettleDelay, func() {
		s.writeFor(req, bleuio.SubscribeCommand(req.spec.NotifyCharHandle))
	})
}

func (s *Session) onReconnecting(req *activeRequest) {
	req.logger.Info("Radio is re-establishing the link")
	req.transition(evConnect)
	req.writeRequested = false
	req.notifyTimer.Cancel()
	if !req.connectTimer.active() {
		s.armConnectTimer(req)
	}
}

func (s *Session) onDisconnected(req *activeRequest) {
	if !req.linked() {
		return
	}

	switch {
	case req.staged != nil:
		s.finish(req, outcome{result: req.staged})
	case req.notifications != nil:
		s.finish(req, outcome{result: request.WithNotifications(req.notifications)})
	case bleuio.RetriesDroppedLinks(s.firmware):
		req.logger.Info("Link dropped, reconnecting")
		req.transition(evConnect)
		req.writeRequested = false
		req.disconnectTimer.Cancel()
		s.later(req, s.opts.SettleDelay, func() {
			s.writeFor(req, bleuio.ConnectCommand(req.spec.Address, req.spec.IsPublicAddress))
			s.armConnectTimer(req)
		})
	default:
		s.finish(req, outcome{err: request.ErrConnectionLost})
	}
}

func (s *Session) onIntervalUpdated(req *activeRequest) {
	if req.spec.WantsNotifications() || req.writeRequested || !req.linked() {
		return
	}
	req.writeRequested = true
	req.transition(evWrite)
	s.later(req, s.opts.SettleDelay, func() {
		s.writeFor(req, bleuio.WriteWithResponseCommand(req.spec.WriteCharHandle, req.spec.WriteData))
	})
}

func (s *Session) onDataWritten(req *activeRequest) {
	if req.spec.WantsNotifications() || req.writeComplete {
		return
	}
	req.writeComplete = true
	req.transition(evWritten)
	req.staged = request.Success()
	s.later(req, s.opts.DisconnectDelay, func() {
		s.sendDisconnect(req)
	})
}

func (s *Session) onWriteCompleted(req *activeRequest) {
	if !req.spec.WantsNotifications() {
		return
	}
	if req.is(phaseSubscribing) {
		req.transition(evAwait)
		req.notifications = []string{}
		req.notifyTimer = s.later(req, req.spec.NotificationTimeout(s.opts.NotificationTimeout), func() {
			req.logger.Debug("Notification window closed")
			s.handleEvent(bleuio.Timeout{})
		})
	}
	if req.pending == "" {
		return
	}

	n := 2 * req.spec.ChunkSize(s.opts.TransferUnit)
	if n > len(req.pending) {
		n = len(req.pending)
	}
	chunk := req.pending[:n]
	req.pending = req.pending[n:]
	s.writeFor(req, bleuio.WriteCommand(req.spec.WriteCharHandle, chunk))
}

// collect records one notification while awaiting and stops the collection
// once the expected last value or the maximum count is seen.
func (s *Session) collect(req *activeRequest, value, text string) {
	if !req.is(phaseAwaiting) {
		return
	}
	req.notifications = append(req.notifications, value)

	last := req.spec.LastNotification
	matched := last != "" && (strings.EqualFold(value, last) || (text != "" && text == last))
	full := req.spec.MaxNotifications > 0 && len(req.notifications) >= req.spec.MaxNotifications
	if !matched && !full {
		return
	}

	req.logger.WithField("count", len(req.notifications)).Debug("Notification collection complete")
	req.transition(evDrain)
	req.notifyTimer.Cancel()
	s.sendDisconnect(req)
}

// printable drops everything outside the printable ASCII range.
func printable(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 0x20 && c <= 0x7e {
			b.WriteByte(c)
		}
	}
	return b.String()
}
