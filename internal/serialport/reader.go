package serialport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Edgewaretech/edgeware-bluegate/internal/groutine"
)

const maxLineLength = 64 * 1024

// LineHandler receives the radio's output.
type LineHandler interface {
	HandleLine(line string)
	PortClosed(err error)
	PortFailed(err error)
}

// ReadLines splits r on newlines and hands every non-empty, trimmed line to h
// until r fails. End of input and disconnects are reported as PortClosed,
// other errors as PortFailed. Nothing is reported once ctx is done, so
// closing the port during shutdown stays silent.
func ReadLines(ctx context.Context, r io.Reader, h LineHandler, logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.New()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxLineLength)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Tracef("uart < %s", line)
		h.HandleLine(line)
	}

	if ctx.Err() != nil {
		return
	}

	err := scanner.Err()
	switch {
	case err == nil:
		logger.Warn("Serial port reached end of input")
		h.PortClosed(io.EOF)
	case errors.Is(err, bufio.ErrTooLong):
		logger.WithError(err).Error("Serial line too long")
		h.PortFailed(err)
	case IsDisconnect(err):
		logger.WithError(err).Warn("Serial port disconnected")
		h.PortClosed(err)
	default:
		logger.WithError(err).Error("Serial port read failed")
		h.PortFailed(err)
	}
}

// StartReader runs ReadLines on rc in a goroutine tracked by g. rc is closed
// when ctx is done, which unblocks the reader.
func StartReader(ctx context.Context, g *groutine.Group, rc io.ReadCloser, h LineHandler, logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.New()
	}
	g.Go(ctx, "serial-reader", func(ctx context.Context) {
		ReadLines(ctx, rc, h, logger)
	})
	g.Go(ctx, "serial-closer", func(ctx context.Context) {
		<-ctx.Done()
		if err := rc.Close(); err != nil {
			logger.WithError(err).Debug("Closing serial port")
		}
	})
}
