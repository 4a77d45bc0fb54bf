package hdrify

import "testing"

func reinhardToneMap(r, g, b float32) (float32, float32, float32) {
	tone := func(v float32) float32 { return v / (1 + v) }
	return tone(r), tone(g), tone(b)
}

func TestEncodeDecodeGainMapRoundTrip(t *testing.T) {
	img := makeTestHdrifyImage(16, 16)
	enc, err := EncodeGainMap(img, reinhardToneMap, DefaultGainMapOptions())
	if err != nil {
		t.Fatalf("EncodeGainMap: %v", err)
	}
	if enc.Width != img.Width || enc.Height != img.Height {
		t.Fatalf("encoding dims mismatch: got %dx%d, want %dx%d", enc.Width, enc.Height, img.Width, img.Height)
	}
	if enc.GainGray {
		t.Fatal("EncodeGainMap should emit an RGBA gain map, not grayscale")
	}

	decoded, err := DecodeGainMap(enc.SDR, enc.Width, enc.Height, enc.GainMap, enc.Width, enc.Height, enc.GainGray, enc.Metadata, 0)
	if err != nil {
		t.Fatalf("DecodeGainMap: %v", err)
	}
	if decoded.Width != img.Width || decoded.Height != img.Height {
		t.Fatalf("decoded dims mismatch: got %dx%d, want %dx%d", decoded.Width, decoded.Height, img.Width, img.Height)
	}

	// Spec's mandatory gain-map round-trip bound: at most 1% maximum
	// absolute error per channel on Rec.709 content with default
	// options.
	const maxAbsErr = 0.01
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			wr, wg, wb, _ := img.At(x, y)
			gr, gg, gb, _ := decoded.At(x, y)
			if absDiff(wr, gr) > maxAbsErr || absDiff(wg, gg) > maxAbsErr || absDiff(wb, gb) > maxAbsErr {
				t.Fatalf("pixel (%d,%d) exceeds 1%% bound: got (%v,%v,%v) want (%v,%v,%v)", x, y, gr, gg, gb, wr, wg, wb)
			}
		}
	}
}

func TestDecodeGainMapUpscalesMismatchedGainMap(t *testing.T) {
	img := makeTestHdrifyImage(16, 16)
	enc, err := EncodeGainMap(img, reinhardToneMap, DefaultGainMapOptions())
	if err != nil {
		t.Fatalf("EncodeGainMap: %v", err)
	}

	// Downsample the gain map to a quarter resolution by nearest
	// sampling, mimicking a container whose gain map was stored
	// smaller than its SDR base.
	halfW, halfH := enc.Width/2, enc.Height/2
	half := make([]byte, halfW*halfH*4)
	for y := 0; y < halfH; y++ {
		for x := 0; x < halfW; x++ {
			srcOff := (y*2*enc.Width + x*2) * 4
			dstOff := (y*halfW + x) * 4
			copy(half[dstOff:dstOff+4], enc.GainMap[srcOff:srcOff+4])
		}
	}

	decoded, err := DecodeGainMap(enc.SDR, enc.Width, enc.Height, half, halfW, halfH, false, enc.Metadata, 0)
	if err != nil {
		t.Fatalf("DecodeGainMap with mismatched gain map dims: %v", err)
	}
	if decoded.Width != enc.Width || decoded.Height != enc.Height {
		t.Fatalf("decoded dims should follow the SDR base: got %dx%d, want %dx%d", decoded.Width, decoded.Height, enc.Width, enc.Height)
	}
}

func TestDecodeGainMapGrayscale(t *testing.T) {
	img := makeTestHdrifyImage(8, 8)
	enc, err := EncodeGainMap(img, reinhardToneMap, DefaultGainMapOptions())
	if err != nil {
		t.Fatalf("EncodeGainMap: %v", err)
	}

	gray := make([]byte, enc.Width*enc.Height)
	for p := 0; p < enc.Width*enc.Height; p++ {
		gray[p] = enc.GainMap[p*4] // use the red channel's gain as luma
	}

	decoded, err := DecodeGainMap(enc.SDR, enc.Width, enc.Height, gray, enc.Width, enc.Height, true, enc.Metadata, 0)
	if err != nil {
		t.Fatalf("DecodeGainMap (grayscale): %v", err)
	}
	if decoded.Width != enc.Width || decoded.Height != enc.Height {
		t.Fatalf("dims mismatch: got %dx%d, want %dx%d", decoded.Width, decoded.Height, enc.Width, enc.Height)
	}
}
