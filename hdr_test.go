package hdrify

import (
	"errors"
	"testing"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

func TestHdrRoundTrip(t *testing.T) {
	img := makeTestHdrifyImage(10, 7)
	data, err := WriteHdr(img)
	if err != nil {
		t.Fatalf("WriteHdr: %v", err)
	}
	got, err := ReadHdr(data, ReadHdrOptions{})
	if err != nil {
		t.Fatalf("ReadHdr: %v", err)
	}
	if got.Width != img.Width || got.Height != img.Height {
		t.Fatalf("dims mismatch: got %dx%d, want %dx%d", got.Width, got.Height, img.Width, img.Height)
	}
	// RGBE stores an 8-bit mantissa per channel under one shared
	// exponent, so every channel is accurate to one mantissa step of
	// the pixel's largest channel, which is at most max/128.
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			wr, wg, wb, _ := img.At(x, y)
			gr, gg, gb, ga := got.At(x, y)
			tol := max3(wr, wg, wb) / 128
			if absDiff(wr, gr) > tol || absDiff(wg, gg) > tol || absDiff(wb, gb) > tol {
				t.Fatalf("pixel (%d,%d) mismatch: got (%v,%v,%v) want (%v,%v,%v)", x, y, gr, gg, gb, wr, wg, wb)
			}
			if ga != 1 {
				t.Fatalf("pixel (%d,%d): alpha = %v, want 1", x, y, ga)
			}
		}
	}
}

func withinRelative(want, got, tol float32) bool {
	if want == 0 {
		return got <= tol
	}
	d := (got - want) / want
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestReadHdrMalformedMagic(t *testing.T) {
	_, err := ReadHdr([]byte("not a radiance file\n"), ReadHdrOptions{})
	if err == nil {
		t.Fatal("expected error for malformed magic, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.MalformedHeader)) {
		t.Fatalf("expected MalformedHeader, got %v", err)
	}
}

func TestReadHdrXYZFormatUnsupported(t *testing.T) {
	data := []byte("#?RADIANCE\nFORMAT=32-bit_rle_xyze\n\n-Y 1 +X 1\n")
	_, err := ReadHdr(data, ReadHdrOptions{})
	if err == nil {
		t.Fatal("expected error for XYZ format, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.UnsupportedVariant)) {
		t.Fatalf("expected UnsupportedVariant, got %v", err)
	}
}

func TestReadHdrMissingFormat(t *testing.T) {
	data := []byte("#?RADIANCE\n\n-Y 1 +X 1\n")
	_, err := ReadHdr(data, ReadHdrOptions{})
	if err == nil {
		t.Fatal("expected error for missing FORMAT, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.MalformedHeader)) {
		t.Fatalf("expected MalformedHeader, got %v", err)
	}
}

func TestReadHdrEmptyFile(t *testing.T) {
	_, err := ReadHdr(nil, ReadHdrOptions{})
	if err == nil {
		t.Fatal("expected error for empty file, got nil")
	}
	if !errors.Is(err, codecerr.Sentinel(codecerr.MalformedHeader)) {
		t.Fatalf("expected MalformedHeader, got %v", err)
	}
}
