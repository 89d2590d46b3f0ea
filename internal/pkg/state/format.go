package state

import (
	"math"
	"strconv"
)

// DefaultScale is the number of decimal places kept by float variables.
const DefaultScale = 4

// Round returns a formatter keeping scale decimal places, rounding half to even.
func Round(scale int) func(float64) float64 {
	if scale < 0 {
		scale = 0
	}
	factor := math.Pow(10, float64(scale))
	return func(v float64) float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return v
		}
		return math.RoundToEven(v*factor) / factor
	}
}

// EncodeFloat renders v in its shortest decimal form.
func EncodeFloat(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'f', -1, 64))
}

// EncodeBool renders true as "1" and false as "0".
func EncodeBool(v bool) []byte {
	if v {
		return []byte("1")
	}
	return []byte("0")
}

// EncodeString returns the raw bytes of v.
func EncodeString(v string) []byte {
	return []byte(v)
}
