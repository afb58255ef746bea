package serialport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"

	"github.com/Edgewaretech/edgeware-bluegate/internal/groutine"
	"github.com/Edgewaretech/edgeware-bluegate/internal/testutils"
)

type lineRecorder struct {
	mu     sync.Mutex
	lines  []string
	closed error
	failed error
	done   chan struct{}
}

func newLineRecorder() *lineRecorder {
	return &lineRecorder{done: make(chan struct{})}
}

func (r *lineRecorder) HandleLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) PortClosed(err error) {
	r.mu.Lock()
	r.closed = err
	r.mu.Unlock()
	close(r.done)
}

func (r *lineRecorder) PortFailed(err error) {
	r.mu.Lock()
	r.failed = err
	r.mu.Unlock()
	close(r.done)
}

func (r *lineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *lineRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader MUST report the end of input")
	}
}

func TestReadLines_TrimsAndSkipsEmpty(t *testing.T) {
	radio := testutils.NewFakeRadio()
	rec := newLineRecorder()

	radio.Emit("", "  Firmware Version: 2.1.3  ", "SCAN COMPLETE", "\t")
	radio.Close()
	ReadLines(context.Background(), radio, rec, testutils.NewSilentLogger())

	rec.wait(t)
	assert.Equal(t, []string{"Firmware Version: 2.1.3", "SCAN COMPLETE"}, rec.Lines())
	assert.ErrorIs(t, rec.closed, io.EOF, "end of input MUST be reported as closed")
	assert.Nil(t, rec.failed)
}

func TestReadLines_ReportsFailure(t *testing.T) {
	radio := testutils.NewFakeRadio()
	rec := newLineRecorder()
	boom := errors.New("framing error")

	go ReadLines(context.Background(), radio, rec, testutils.NewSilentLogger())
	radio.Emit("handle_evt_gap_connected")
	require.Eventually(t, func() bool { return len(rec.Lines()) == 1 }, 2*time.Second, time.Millisecond)
	radio.CloseWithError(boom)

	rec.wait(t)
	assert.Equal(t, []string{"handle_evt_gap_connected"}, rec.Lines())
	assert.ErrorIs(t, rec.failed, boom)
}

func TestReadLines_SilentAfterCancel(t *testing.T) {
	radio := testutils.NewFakeRadio()
	rec := newLineRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	radio.Close()
	ReadLines(ctx, radio, rec, testutils.NewSilentLogger())

	select {
	case <-rec.done:
		t.Fatal("shutdown MUST NOT be reported as a port failure")
	default:
	}
}

func TestStartReader_ClosesOnCancel(t *testing.T) {
	radio := testutils.NewFakeRadio()
	rec := newLineRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	var g groutine.Group

	StartReader(ctx, &g, radio, rec, testutils.NewSilentLogger())
	radio.Emit("SCAN COMPLETE")
	require.Eventually(t, func() bool { return len(rec.Lines()) == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	stopped := make(chan struct{})
	go func() {
		g.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutines MUST stop once the port is closed")
	}

	select {
	case <-rec.done:
		t.Fatal("closing the port on shutdown MUST NOT be reported")
	default:
	}
}

func TestReadLines_OverPseudoTerminal(t *testing.T) {
	// GOAL: Verify CRLF framed output from a real tty is split into lines and a
	// hang-up is reported as a closed port
	//
	// TEST SCENARIO: raw pty → write radio output on master → read on slave → close master

	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pseudo-terminals unavailable: %v", err)
	}
	defer tty.Close()

	_, err = term.MakeRaw(int(tty.Fd()))
	require.NoError(t, err, "slave MUST switch to raw mode")

	rec := newLineRecorder()
	go ReadLines(context.Background(), tty, rec, testutils.NewSilentLogger())

	_, err = ptmx.Write([]byte("\r\nSmart Sensor Devices AB DA14683 Firmware Version: 2.2.1\r\n\r\nRSSI: -67 [AA:BB:CC:DD:EE:FF] Device Data [ADV]: 020106\r\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.Lines()) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{
		"Smart Sensor Devices AB DA14683 Firmware Version: 2.2.1",
		"RSSI: -67 [AA:BB:CC:DD:EE:FF] Device Data [ADV]: 020106",
	}, rec.Lines())

	require.NoError(t, ptmx.Close())
	rec.wait(t)
	assert.NotNil(t, rec.closed, "hang-up MUST be reported as closed, failed with %v", rec.failed)
}
