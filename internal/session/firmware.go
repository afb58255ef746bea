package session

import (
	"fmt"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
	"github.com/Edgewaretech/edgeware-bluegate/internal/request"
)

// bringUp sends the configuration sequence one command per BringUpDelay.
func (s *Session) bringUp(step int) {
	if step >= len(bleuio.BringUpSequence) || s.fatal != nil {
		return
	}
	s.write(bleuio.BringUpSequence[step])
	s.after(s.opts.BringUpDelay, func() { s.bringUp(step + 1) })
}

// armFirmwareTimer fails the session if the radio never identifies itself.
func (s *Session) armFirmwareTimer() {
	s.firmwareTimer = s.after(s.opts.FirmwareTimeout, func() {
		if s.firmware == "" {
			s.fail(fmt.Errorf("%w within %s", ErrFirmwareNotDetected, s.opts.FirmwareTimeout), request.ErrNotReady)
		}
	})
}

func (s *Session) detectFirmware(line string) {
	version, ok := bleuio.ParseFirmwareVersion(line)
	if !ok {
		s.logger.WithField("line", line).Debug("Ignored uart line before firmware detection")
		return
	}
	if !bleuio.IsSupportedFirmware(version) {
		s.fail(fmt.Errorf("%w: %s", ErrUnsupportedFirmware, version), request.ErrUnsupported)
		return
	}

	s.firmware = version
	s.firmwareTimer.Cancel()
	s.logger.WithField("firmware", version).Info("Detected BLE firmware")
	if s.onReady != nil {
		s.onReady(version)
	}
	s.startScan()
}
