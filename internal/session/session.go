package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
	"github.com/Edgewaretech/edgeware-bluegate/internal/request"
)

// Fatal session errors. Run returns one of these, wrapped with detail.
var (
	ErrPortClosed          = errors.New("serial port closed")
	ErrPortFailure         = errors.New("serial port failure")
	ErrUnsupportedFirmware = errors.New("unsupported firmware")
	ErrFirmwareNotDetected = errors.New("firmware not detected")
	ErrAlreadyRunning      = errors.New("session already running")
)

// AdvSink receives advertisements observed while scanning. Offer is called
// from the session loop and must not block.
type AdvSink interface {
	Offer(adv bleuio.AdvRssiData)
}

// Status is a point-in-time view of the session for diagnostics.
type Status struct {
	Firmware      string     `json:"firmware"`
	Scanning      bool       `json:"scanning"`
	RequestID     string     `json:"requestId,omitempty"`
	RequestTarget string     `json:"requestAddress,omitempty"`
	RequestPhase  string     `json:"requestPhase,omitempty"`
	RequestSince  *time.Time `json:"requestSince,omitempty"`
}

// Session owns the radio. All state below is confined to the goroutine
// executing Run; everything else talks to it through the mailbox.
type Session struct {
	port    io.Writer
	sink    AdvSink
	opts    *Options
	logger  *logrus.Logger
	onReady func(firmware string)

	mailbox chan any
	done    chan struct{}
	running atomic.Bool
	status  atomic.Pointer[Status]

	firmware      string
	scanning      bool
	active        *activeRequest
	gen           uint64
	firmwareTimer *timer
	fatal         error
}

type lineMsg struct {
	line string
}

type portDownMsg struct {
	err    error
	closed bool
}

type submitMsg struct {
	spec *request.Spec
	id   string
	done chan outcome
}

// New creates a session writing commands to port and forwarding
// advertisements to sink.
func New(port io.Writer, sink AdvSink, opts *Options, logger *logrus.Logger) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 256
	}

	s := &Session{
		port:    port,
		sink:    sink,
		opts:    opts,
		logger:  logger,
		mailbox: make(chan any, opts.MailboxSize),
		done:    make(chan struct{}),
	}
	s.status.Store(&Status{})
	return s
}

// OnReady registers fn to be called from the loop once the firmware is
// accepted and scanning starts. It must be set before Run.
func (s *Session) OnReady(fn func(firmware string)) {
	s.onReady = fn
}

// Status returns the latest published snapshot.
func (s *Session) Status() Status {
	return *s.status.Load()
}

// HandleLine queues a trimmed, non-empty line received from the radio.
func (s *Session) HandleLine(line string) {
	s.post(lineMsg{line: line})
}

// PortClosed reports that the serial port went away.
func (s *Session) PortClosed(err error) {
	s.post(portDownMsg{err: err, closed: true})
}

// PortFailed reports a serial I/O error.
func (s *Session) PortFailed(err error) {
	s.post(portDownMsg{err: err})
}

// Submit admits spec and blocks until it resolves or is rejected. The spec
// must already be validated. Cancelling ctx abandons the wait only; the
// operation still runs to its own terminal state.
func (s *Session) Submit(ctx context.Context, spec *request.Spec) (*request.Result, error) {
	done := make(chan outcome, 1)
	if !s.post(submitMsg{spec: spec, id: uuid.NewString(), done: done}) {
		return nil, request.ErrShuttingDown
	}

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		select {
		case o := <-done:
			return o.result, o.err
		default:
			return nil, request.ErrShuttingDown
		}
	}
}

func (s *Session) post(m any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.mailbox <- m:
		return true
	case <-s.done:
		return false
	}
}

// Run brings the radio up and processes messages until ctx is cancelled or a
// fatal condition occurs. It returns nil on cancellation and the fatal error
// otherwise; in both cases an active request is rejected first.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)

	s.bringUp(0)
	s.armFirmwareTimer()

	for {
		select {
		case <-ctx.Done():
			s.abort(request.ErrShuttingDown)
			s.logger.Info("Session stopped")
			return nil
		case m := <-s.mailbox:
			s.dispatch(m)
			if s.fatal != nil {
				return s.fatal
			}
		}
	}
}

func (s *Session) dispatch(m any) {
	switch msg := m.(type) {
	case lineMsg:
		s.route(msg.line)
	case submitMsg:
		s.admit(msg)
	case timerMsg:
		s.fire(msg.timer)
	case portDownMsg:
		if msg.closed {
			s.fail(fmt.Errorf("%w: %v", ErrPortClosed, msg.err), request.ErrSerialClosed)
		} else {
			s.fail(fmt.Errorf("%w: %v", ErrPortFailure, msg.err), request.ErrSerialFailure)
		}
	default:
		s.logger.WithField("message", fmt.Sprintf("%T", m)).Warn("Unknown session message")
	}
	s.publishStatus()
}

func (s *Session) route(line string) {
	switch {
	case s.firmware == "":
		s.detectFirmware(line)
	case s.scanning:
		s.handleScanLine(line)
	case s.active != nil:
		ev := bleuio.ParseCommandLine(line)
		s.active.logger.WithField("event", ev.Kind()).Debugf("uart < %s", line)
		s.handleEvent(ev)
	default:
		s.logger.WithField("line", line).Debug("Ignored uart line")
	}
}

func (s *Session) handleScanLine(line string) {
	switch ev := bleuio.ParseScanLine(line).(type) {
	case bleuio.ScanComplete:
		s.scanning = false
		s.logger.Debug("Scan complete")
		switch {
		case s.active == nil:
			// nothing is waiting for the radio, keep relaying advertisements
			s.startScan()
		case s.active.is(phaseIdle):
			s.connect(s.active)
		}
	case bleuio.AdvRssiData:
		if s.sink != nil {
			s.sink.Offer(ev)
		}
	case bleuio.DeviceError:
		s.logger.WithField("line", line).Warn("Radio reported an error while scanning")
	}
}

func (s *Session) startScan() {
	if s.scanning || s.fatal != nil {
		return
	}
	s.write(bleuio.CmdScan)
	s.scanning = true
	s.logger.Debug("Started scanning")
}

func (s *Session) admit(msg submitMsg) {
	switch {
	case s.firmware == "":
		msg.done <- outcome{err: request.ErrNotReady}
		return
	case s.active != nil:
		msg.done <- outcome{err: request.ErrBusy}
		return
	}

	s.gen++
	req := newActiveRequest(msg.id, s.gen, msg.spec, msg.done, s.logger)
	s.active = req
	req.logger.WithField("scanning", s.scanning).Info("Request admitted")
	s.armGuard(req)

	if s.scanning {
		// connect once the radio confirms the scan stopped
		s.write(bleuio.CmdEscape)
		return
	}
	s.connect(req)
}

// write sends one command. A write failure is fatal.
func (s *Session) write(cmd string) {
	if s.fatal != nil {
		return
	}
	s.logger.Debugf("uart > %q", cmd)
	if _, err := io.WriteString(s.port, cmd+"\r"); err != nil {
		s.fail(fmt.Errorf("%w: %v", ErrPortFailure, err), request.ErrSerialFailure)
	}
}

// writeFor sends cmd only if req is still the active request.
func (s *Session) writeFor(req *activeRequest, cmd string) {
	if s.active != req {
		s.logger.WithField("command", cmd).Debug("Dropped command for finished request")
		return
	}
	s.write(cmd)
}

// fail records a fatal error and rejects the active request with reason.
func (s *Session) fail(err error, reason *request.OperationError) {
	if s.fatal != nil {
		return
	}
	s.fatal = err
	s.logger.WithError(err).Error("Session failed")
	s.abort(reason)
}

// abort rejects the active request without touching the radio.
func (s *Session) abort(reason *request.OperationError) {
	if s.active == nil {
		return
	}
	req := s.active
	s.active = nil
	req.stopTimers()
	req.settle(outcome{err: reason})
}

// finish settles the active request and hands the radio back to scanning.
func (s *Session) finish(req *activeRequest, o outcome) {
	if s.active != req {
		return
	}
	req.stopTimers()
	s.active = nil
	if req.settle(o) {
		entry := req.logger.WithField("elapsed", time.Since(req.started).Round(time.Millisecond))
		if o.err != nil {
			entry.WithError(o.err).Warn("Request rejected")
		} else {
			entry.Info("Request resolved")
		}
	}
	s.startScan()
}

func (s *Session) publishStatus() {
	st := &Status{Firmware: s.firmware, Scanning: s.scanning}
	if req := s.active; req != nil {
		st.RequestID = req.id
		st.RequestTarget = req.spec.Address
		st.RequestPhase = req.phase.Current()
		since := req.started
		st.RequestSince = &since
	}
	s.status.Store(st)
}
