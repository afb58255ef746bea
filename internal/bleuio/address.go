package bleuio

import (
	"regexp"
	"strings"

	"github.com/go-ble/ble"
)

var (
	bareAddressRegex  = regexp.MustCompile(`^[0-9a-f]{12}$`)
	colonAddressRegex = regexp.MustCompile(`^[0-9a-f]{2}(:[0-9a-f]{2}){5}$`)
	handleRegex       = regexp.MustCompile(`^[0-9a-fA-F]{4}$`)
	hexPayloadRegex   = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// NormalizeAddress returns the canonical internal form of a BD address:
// 12 lowercase hex digits without separators. Both bare and colon-separated
// input are accepted in any case. Anything else yields "".
func NormalizeAddress(address string) string {
	address = strings.ToLower(address)
	switch {
	case bareAddressRegex.MatchString(address):
		return address
	case colonAddressRegex.MatchString(address):
		return strings.ReplaceAll(address, ":", "")
	}
	return ""
}

// ColonAddress returns the form the radio expects in commands: uppercase
// octets separated by colons. Invalid input yields "".
func ColonAddress(address string) string {
	bare := NormalizeAddress(address)
	if bare == "" {
		return ""
	}
	octets := make([]string, 0, 6)
	for i := 0; i < len(bare); i += 2 {
		octets = append(octets, bare[i:i+2])
	}
	return strings.ToUpper(strings.Join(octets, ":"))
}

// DeviceAddr wraps a normalized address as a go-ble address.
func DeviceAddr(address string) ble.Addr {
	return ble.NewAddr(ColonAddress(address))
}

// IsValidHandle reports whether s is a 4 hex digit characteristic handle.
func IsValidHandle(s string) bool {
	return handleRegex.MatchString(s)
}

// IsValidHexData reports whether s is a non-empty hex string of whole bytes.
func IsValidHexData(s string) bool {
	return len(s)%2 == 0 && hexPayloadRegex.MatchString(s)
}
