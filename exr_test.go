package hdrify

import (
	"errors"
	"math"
	"testing"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

func makeTestHdrifyImage(w, h int) *HdrifyImage {
	img := &HdrifyImage{
		Width:      w,
		Height:     h,
		Data:       make([]float32, w*h*4),
		ColorSpace: LinearRec709,
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := float32(x) / float32(w)
			g := float32(y) / float32(h)
			b := float32(0.25) * (1 + float32(math.Sin(float64(x+y))))
			img.Set(x, y, r, g, b, 1)
		}
	}
	return img
}

func TestExrRoundTripUncompressed(t *testing.T) {
	img := makeTestHdrifyImage(8, 6)
	data, err := WriteExr(img, CompressionNone)
	if err != nil {
		t.Fatalf("WriteExr: %v", err)
	}
	got, err := ReadExr(data)
	if err != nil {
		t.Fatalf("ReadExr: %v", err)
	}
	if got.Width != img.Width || got.Height != img.Height {
		t.Fatalf("dims mismatch: got %dx%d, want %dx%d", got.Width, got.Height, img.Width, img.Height)
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			wr, wg, wb, wa := img.At(x, y)
			gr, gg, gb, ga := got.At(x, y)
			if !closeEnough(wr, gr) || !closeEnough(wg, gg) || !closeEnough(wb, gb) || !closeEnough(wa, ga) {
				t.Fatalf("pixel (%d,%d) mismatch: got (%v,%v,%v,%v) want (%v,%v,%v,%v)", x, y, gr, gg, gb, ga, wr, wg, wb, wa)
			}
		}
	}
}

func TestExrRoundTripAllCompressions(t *testing.T) {
	compressions := []struct {
		name string
		c    byte
	}{
		{"none", CompressionNone},
		{"RLE", CompressionRLE},
		{"ZIPS", CompressionZIPS},
		{"ZIP", CompressionZIP},
		{"PIZ", CompressionPIZ},
		{"PXR24", CompressionPXR24},
	}
	// A block height spanning multiple block-encoded scanlines (ZIP
	// and PIZ batch 16/32 lines per block) needs more than one block
	// to exercise the offset table and per-block loop meaningfully.
	img := makeTestHdrifyImage(20, 40)
	for _, tc := range compressions {
		t.Run(tc.name, func(t *testing.T) {
			data, err := WriteExr(img, tc.c)
			if err != nil {
				t.Fatalf("WriteExr(%s): %v", tc.name, err)
			}
			got, err := ReadExr(data)
			if err != nil {
				t.Fatalf("ReadExr(%s): %v", tc.name, err)
			}
			if got.Width != img.Width || got.Height != img.Height {
				t.Fatalf("%s: dims mismatch: got %dx%d, want %dx%d", tc.name, got.Width, got.Height, img.Width, img.Height)
			}
			tol := float32(1e-3)
			if tc.c == CompressionPXR24 {
				// WriteExr writes HALF channels, which PXR24 stores whole;
				// this case still runs with a looser bound.
				tol = 5e-3
			}
			for y := 0; y < img.Height; y++ {
				for x := 0; x < img.Width; x++ {
					wr, wg, wb, wa := img.At(x, y)
					gr, gg, gb, ga := got.At(x, y)
					if absDiff(wr, gr) > tol || absDiff(wg, gg) > tol || absDiff(wb, gb) > tol || absDiff(wa, ga) > tol {
						t.Fatalf("%s: pixel (%d,%d) mismatch: got (%v,%v,%v,%v) want (%v,%v,%v,%v)",
							tc.name, x, y, gr, gg, gb, ga, wr, wg, wb, wa)
					}
				}
			}
		})
	}
}

func absDiff(a, b float32) float32 {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

func TestReadExrInvalidMagic(t *testing.T) {
	data := make([]byte, 16)
	_, err := ReadExr(data)
	if err == nil {
		t.Fatal("expected error for invalid magic, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.InvalidMagic)) {
		t.Fatalf("expected InvalidMagic, got %v", err)
	}
}

func TestReadExrInvalidCompressionByte(t *testing.T) {
	img := makeTestHdrifyImage(4, 4)
	data, err := WriteExr(img, CompressionNone)
	if err != nil {
		t.Fatalf("WriteExr: %v", err)
	}
	corrupted := patchCompressionByte(t, data, 6)
	_, err = ReadExr(corrupted)
	if err == nil {
		t.Fatal("expected error for out-of-range compression byte, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.UnsupportedVariant)) {
		t.Fatalf("expected UnsupportedVariant, got %v", err)
	}
}

// patchCompressionByte finds the single-byte value of the
// "compression"/"compression" header attribute and overwrites it,
// to exercise ReadExr's out-of-range compression rejection without
// hand-rolling a full header writer.
func patchCompressionByte(t *testing.T, data []byte, newValue byte) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	marker := []byte("compression\x00compression\x00")
	idx := bytesIndex(out, marker)
	if idx < 0 {
		t.Fatal("compression attribute not found in encoded EXR header")
	}
	// attribute value follows name\0 type\0 size(u32); size is 1 for
	// the "compression" enum type, and the byte immediately after it
	// is the compression value itself.
	valueOffset := idx + len(marker) + 4
	out[valueOffset] = newValue
	return out
}

func bytesIndex(haystack, needle []byte) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func TestMapChannelRolesMissingRGB(t *testing.T) {
	h := &exrHeader{
		Channels: []exrChannel{
			{Name: "Y", PixelType: exrPixelFloat, XSampling: 1, YSampling: 1},
		},
	}
	_, _, _, _, err := mapChannelRoles(h)
	if err == nil {
		t.Fatal("expected error for non-RGB channel set, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.ChannelMismatch)) {
		t.Fatalf("expected ChannelMismatch, got %v", err)
	}
}

func closeEnough(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-3
}
