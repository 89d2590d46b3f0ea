// Package framing encodes device-bound writes into the serial wire format:
//
//	[0x01][hardware address][0x02][payload...][0x03][0x04]
package framing

const (
	Start     byte = 0x01
	TextStart byte = 0x02
	TextEnd   byte = 0x03
	End       byte = 0x04

	// Separator delimits fields inside a payload. Encode never inserts it.
	Separator byte = 0x1F
)

// Overhead is the number of framing bytes around the payload.
const Overhead = 5

// Encode frames payload for the component at hardwareAddress. Only the low
// 8 bits of the address are transmitted.
func Encode(hardwareAddress int, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+Overhead)
	out = append(out, Start, byte(hardwareAddress&0xFF), TextStart)
	out = append(out, payload...)
	return append(out, TextEnd, End)
}

// JoinFields concatenates fields with Separator, for callers that need a
// multi-field payload.
func JoinFields(fields ...[]byte) []byte {
	if len(fields) == 0 {
		return nil
	}
	n := len(fields) - 1
	for _, f := range fields {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for i, f := range fields {
		if i > 0 {
			out = append(out, Separator)
		}
		out = append(out, f...)
	}
	return out
}
