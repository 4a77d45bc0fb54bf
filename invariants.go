package hdrify

import (
	"math"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

// ensureNonNegativeFinite implements C11's pixel container invariant:
// NaN/Infinity is always a NumericDomain error; negative RGB values
// are replaced with 0, unless strict is true, in which case a negative
// value is a NumericDomain error too. Alpha is clamped to [0, 1] in
// both modes. ReadExr, WriteExr, ReadHdr, WriteHdr and EncodeGainMap
// call this before using or returning pixel data.
func ensureNonNegativeFinite(data []float32, strict bool) error {
	for i := 0; i < len(data); i++ {
		v := data[i]
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return codecerr.New(codecerr.NumericDomain, "non-finite pixel value at index %d", i)
		}
		isAlpha := i%4 == 3
		if isAlpha {
			data[i] = clamp01(v)
			continue
		}
		if v < 0 {
			if strict {
				return codecerr.New(codecerr.NumericDomain, "negative pixel value %v at index %d", v, i)
			}
			data[i] = 0
		}
	}
	return nil
}
