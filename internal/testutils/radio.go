package testutils

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/ringbuffer"
	"github.com/stretchr/testify/require"
)

// FakeRadio stands in for the serial port of a BleuIO dongle.
//
// Commands written by the gateway are split on carriage returns and recorded.
// Lines queued with Emit are served to Read, which blocks until output is
// available or the radio is closed.
type FakeRadio struct {
	mu       sync.Mutex
	partial  strings.Builder
	commands []string
	writeErr error

	output *ringbuffer.RingBuffer
}

// NewFakeRadio creates a radio with an empty transcript.
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{output: ringbuffer.New(64 * 1024).SetBlocking(true)}
}

// Write records every complete command in p.
func (r *FakeRadio) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return 0, r.writeErr
	}

	for _, b := range p {
		if b == '\r' {
			r.commands = append(r.commands, r.partial.String())
			r.partial.Reset()
			continue
		}
		r.partial.WriteByte(b)
	}
	return len(p), nil
}

// Read serves emitted output.
func (r *FakeRadio) Read(p []byte) (int, error) {
	return r.output.Read(p)
}

// Close ends the output stream. Reads drain what was emitted, then return
// io.EOF.
func (r *FakeRadio) Close() error {
	r.output.CloseWriter()
	return nil
}

// CloseWithError fails pending and future reads with err, discarding
// output not yet read.
func (r *FakeRadio) CloseWithError(err error) {
	r.output.CloseWithError(err)
}

// Emit queues lines as radio output, each terminated by CRLF.
func (r *FakeRadio) Emit(lines ...string) {
	for _, line := range lines {
		_, _ = r.output.Write([]byte(line + "\r\n"))
	}
}

// FailWrites makes every following Write return err.
func (r *FakeRadio) FailWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErr = err
}

// Commands returns a copy of the commands written so far.
func (r *FakeRadio) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

// CommandsSince returns commands written after the first n.
func (r *FakeRadio) CommandsSince(n int) []string {
	cmds := r.Commands()
	if n >= len(cmds) {
		return nil
	}
	return cmds[n:]
}

// Count returns how many times cmd was written.
func (r *FakeRadio) Count(cmd string) int {
	n := 0
	for _, c := range r.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// Transcript renders the commands one per line, with the escape byte shown
// as <ESC>.
func (r *FakeRadio) Transcript() string {
	cmds := r.Commands()
	for i, c := range cmds {
		cmds[i] = strings.ReplaceAll(c, "\x03", "<ESC>")
	}
	return strings.Join(cmds, "\n")
}

// WaitForCommand blocks until cmd has been written at least times times.
func (r *FakeRadio) WaitForCommand(t testing.TB, cmd string, times int, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.Count(cmd) >= times
	}, timeout, time.Millisecond, "radio MUST receive %q %d time(s), got:\n%s", cmd, times, r.Transcript())
}

// WaitForPrefix blocks until a command starting with prefix has been written.
func (r *FakeRadio) WaitForPrefix(t testing.TB, prefix string, timeout time.Duration) string {
	t.Helper()
	var found string
	require.Eventually(t, func() bool {
		for _, c := range r.Commands() {
			if strings.HasPrefix(c, prefix) {
				found = c
				return true
			}
		}
		return false
	}, timeout, time.Millisecond, "radio MUST receive a command starting with %q, got:\n%s", prefix, r.Transcript())
	return found
}

// ErrRadioUnplugged is a convenient write failure for tests.
var ErrRadioUnplugged = errors.New("radio unplugged")
