package hdrify

import "testing"

func TestWriteReadJpegGainMapRoundTrip(t *testing.T) {
	img := makeTestHdrifyImage(16, 16)
	enc, err := EncodeGainMap(img, reinhardToneMap, DefaultGainMapOptions())
	if err != nil {
		t.Fatalf("EncodeGainMap: %v", err)
	}

	container, err := WriteJpegGainMap(enc, JpegGainMapOptions{Format: FormatUltraHDR, PrimaryQuality: 90, GainmapQuality: 85})
	if err != nil {
		t.Fatalf("WriteJpegGainMap: %v", err)
	}
	if len(container) < 4 || container[0] != markerStart || container[1] != markerSOI {
		t.Fatal("container missing SOI")
	}

	decoded, err := ReadJpegGainMap(container)
	if err != nil {
		t.Fatalf("ReadJpegGainMap: %v", err)
	}
	if decoded.Width != img.Width || decoded.Height != img.Height {
		t.Fatalf("dims mismatch: got %dx%d, want %dx%d", decoded.Width, decoded.Height, img.Width, img.Height)
	}

	// JPEG is lossy on both legs (primary + gain map), so allow more
	// slack than the raw gain-map math round-trip test.
	const maxAbsErr = 0.1
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			wr, wg, wb, _ := img.At(x, y)
			gr, gg, gb, _ := decoded.At(x, y)
			if absDiff(wr, gr) > maxAbsErr || absDiff(wg, gg) > maxAbsErr || absDiff(wb, gb) > maxAbsErr {
				t.Fatalf("pixel (%d,%d) mismatch beyond JPEG tolerance: got (%v,%v,%v) want (%v,%v,%v)", x, y, gr, gg, gb, wr, wg, wb)
			}
		}
	}
}

func TestWriteJpegGainMapAdobeVariantRoundTrip(t *testing.T) {
	img := makeTestHdrifyImage(8, 8)
	enc, err := EncodeGainMap(img, reinhardToneMap, DefaultGainMapOptions())
	if err != nil {
		t.Fatalf("EncodeGainMap: %v", err)
	}

	container, err := WriteJpegGainMap(enc, JpegGainMapOptions{Format: FormatAdobeGainMap})
	if err != nil {
		t.Fatalf("WriteJpegGainMap: %v", err)
	}

	decoded, err := ReadJpegGainMap(container)
	if err != nil {
		t.Fatalf("ReadJpegGainMap (adobe-gainmap): %v", err)
	}
	if decoded.Width != img.Width || decoded.Height != img.Height {
		t.Fatalf("dims mismatch: got %dx%d, want %dx%d", decoded.Width, decoded.Height, img.Width, img.Height)
	}
}

func TestWriteJpegGainMapNilEncoding(t *testing.T) {
	if _, err := WriteJpegGainMap(nil, JpegGainMapOptions{}); err == nil {
		t.Fatal("expected error for nil encoding result, got nil")
	}
}

func TestReadJpegGainMapRejectsInvalidContainer(t *testing.T) {
	if _, err := ReadJpegGainMap([]byte{0x00, 0x01, 0x02}); err == nil {
		t.Fatal("expected error for invalid container bytes, got nil")
	}
}
