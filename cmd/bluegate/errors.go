package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
	"github.com/Edgewaretech/edgeware-bluegate/internal/serialport"
	"github.com/Edgewaretech/edgeware-bluegate/internal/session"
	"github.com/Edgewaretech/edgeware-bluegate/pkg/config"
)

// FormatUserError turns an error into a message an operator can act on.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, serialport.ErrPortNotFound):
		return fmt.Sprintf("%v\n  Plug in the BleuIO dongle, or set serial.port (or %s) to its device path. Run 'bluegate ports' to list candidates.",
			err, config.EnvSerialPort)
	case serialport.IsPermissionDenied(err):
		return fmt.Sprintf("%v\n  The current user cannot open the serial port; add it to the dialout group.", err)
	case errors.Is(err, session.ErrUnsupportedFirmware):
		return fmt.Sprintf("%v\n  Supported firmware versions: %s.", err, strings.Join(bleuio.SupportedFirmware, ", "))
	case errors.Is(err, session.ErrFirmwareNotDetected):
		return fmt.Sprintf("%v\n  The device did not answer ATI; check that it is a BleuIO dongle in its default mode.", err)
	case errors.Is(err, session.ErrPortClosed):
		return fmt.Sprintf("%v\n  The radio was unplugged or reset.", err)
	}
	return err.Error()
}
