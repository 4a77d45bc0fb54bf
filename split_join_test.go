package hdrify

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func makeTestJPEG(t *testing.T, w, h int, fill color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func testGainMapMetadata() GainMapMetadata {
	return GainMapMetadata{
		Gamma:          Broadcast(1),
		OffsetSdr:      Broadcast(1.0 / 64),
		OffsetHdr:      Broadcast(1.0 / 64),
		GainMapMin:     Broadcast(0),
		GainMapMax:     Broadcast(3),
		HDRCapacityMin: 0,
		HDRCapacityMax: 3,
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	primary := makeTestJPEG(t, 16, 16, color.RGBA{R: 200, G: 150, B: 100, A: 255})
	gainmap := makeTestJPEG(t, 16, 16, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	meta := testGainMapMetadata()

	container, err := Join(primary, gainmap, meta)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(container) < 4 || container[0] != 0xFF || container[1] != 0xD8 {
		t.Fatalf("container missing SOI")
	}

	gotPrimary, gotGainmap, gotMeta, err := Split(container)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(gotPrimary)); err != nil {
		t.Fatalf("decode split primary: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(gotGainmap)); err != nil {
		t.Fatalf("decode split gainmap: %v", err)
	}
	if gotMeta.HDRCapacityMax != meta.HDRCapacityMax || gotMeta.HDRCapacityMin != meta.HDRCapacityMin {
		t.Fatalf("hdr capacity mismatch: got %+v want %+v", gotMeta, meta)
	}
	if gotMeta.GainMapMax != meta.GainMapMax || gotMeta.GainMapMin != meta.GainMapMin {
		t.Fatalf("gain map bounds mismatch: got %+v want %+v", gotMeta, meta)
	}
}

func TestJoinAdobeGainMapVariantRoundTrip(t *testing.T) {
	primary := makeTestJPEG(t, 8, 8, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	gainmap := makeTestJPEG(t, 8, 8, color.RGBA{R: 64, G: 64, B: 64, A: 255})
	meta := testGainMapMetadata()

	container, err := JoinAdobeGainMap(primary, gainmap, meta)
	if err != nil {
		t.Fatalf("JoinAdobeGainMap: %v", err)
	}
	_, _, gotMeta, err := Split(container)
	if err != nil {
		t.Fatalf("Split adobe-gainmap variant: %v", err)
	}
	if gotMeta.HDRCapacityMax != meta.HDRCapacityMax {
		t.Fatalf("hdr capacity mismatch in adobe-gainmap variant")
	}
}

func TestSplitMissingGainMapImage(t *testing.T) {
	primary := makeTestJPEG(t, 8, 8, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	if _, _, _, err := Split(primary); err == nil {
		t.Fatal("expected error splitting a lone JPEG")
	}
}

func TestSplitWithSegmentsRoundTrip(t *testing.T) {
	primary := makeTestJPEG(t, 8, 8, color.RGBA{R: 5, G: 6, B: 7, A: 255})
	gainmap := makeTestJPEG(t, 8, 8, color.RGBA{R: 8, G: 9, B: 10, A: 255})
	meta := testGainMapMetadata()

	container, err := Join(primary, gainmap, meta)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	_, _, _, segs, err := SplitWithSegments(container)
	if err != nil {
		t.Fatalf("SplitWithSegments: %v", err)
	}
	if len(segs.PrimaryXMP) == 0 {
		t.Fatal("expected primary XMP segment")
	}
	if len(segs.SecondaryXMP) == 0 {
		t.Fatal("expected secondary XMP segment")
	}
}

func TestResizeUltraHDRRoundTrip(t *testing.T) {
	primary := makeTestJPEG(t, 32, 24, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	gainmap := makeTestJPEG(t, 32, 24, color.RGBA{R: 128, G: 128, B: 128, A: 255})
	container, err := Join(primary, gainmap, testGainMapMetadata())
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	res, err := ResizeUltraHDR(container, 16, 12, func(opt *ResizeOptions) {
		opt.Interpolation = InterpolationBilinear
	})
	if err != nil {
		t.Fatalf("ResizeUltraHDR: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.Primary))
	if err != nil {
		t.Fatalf("decode resized primary config: %v", err)
	}
	if cfg.Width != 16 || cfg.Height != 12 {
		t.Fatalf("resized primary dims = %dx%d, want 16x12", cfg.Width, cfg.Height)
	}

	if _, _, _, err := Split(res.Container); err != nil {
		t.Fatalf("split resized container: %v", err)
	}
}

