package bleuio

import (
	"encoding/hex"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// AdvFields maps a 2-hex-character AD type code to its hex-encoded value.
// Insertion order follows the first appearance of each type in the payload,
// and marshals to a JSON object in that order.
type AdvFields = *orderedmap.OrderedMap[string, string]

// NewAdvFields returns an empty field set.
func NewAdvFields() AdvFields {
	return orderedmap.New[string, string]()
}

// DecodeAdvData walks a hex-encoded, length-prefixed advertisement payload.
//
// Each record is a length byte L followed by L bytes: a type byte and L-1 value
// bytes. The walk stops at a zero length byte, at the end of the buffer, or at
// the first record that does not fit. A later record with the same type
// replaces the earlier value. Malformed input never returns an error; decoding
// simply stops early.
func DecodeAdvData(payload string) AdvFields {
	fields := NewAdvFields()
	buf := decodeHexPrefix(payload)

	// Keys and values are sliced from the payload so the radio's hex case is kept.
	for offset := 0; offset < len(buf); {
		n := int(buf[offset])
		if n == 0 {
			break
		}
		end := offset + 1 + n
		// a record running past the payload is dropped, not shortened
		if end > len(buf) {
			break
		}
		typ := payload[2*offset+2 : 2*offset+4]
		fields.Set(typ, payload[2*offset+4:2*end])
		offset = end
	}

	return fields
}

// decodeHexPrefix decodes the longest prefix of s made of valid hex pairs.
func decodeHexPrefix(s string) []byte {
	out := make([]byte, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		b, err := hex.DecodeString(s[i : i+2])
		if err != nil {
			break
		}
		out = append(out, b[0])
	}
	return out
}
