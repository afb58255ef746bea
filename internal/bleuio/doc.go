// Package bleuio implements the text protocol spoken by BleuIO-style USB BLE
// dongles:
//   - classification of received lines under the scan and command grammars
//   - decoding of length-prefixed advertisement payloads
//   - BD address and characteristic handle normalization
//   - construction of the AT commands sent to the radio
//
// The package is pure: it performs no I/O and holds no state.
package bleuio
