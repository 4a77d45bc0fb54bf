package hdrify

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func makeBatchTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode sample jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestResizeJPEGBatchOutputDimensions(t *testing.T) {
	data := makeBatchTestJPEG(t, 64, 48)

	assertDims := func(wantW, wantH int) func([]byte, error) {
		return func(d []byte, err error) {
			if err != nil {
				t.Fatalf("assert data: %v", err)
			}
			cfg, _, err := image.DecodeConfig(bytes.NewReader(d))
			if err != nil {
				t.Fatalf("decode config: %v", err)
			}
			if cfg.Width != wantW || cfg.Height != wantH {
				t.Fatalf("wrong dimensions: %dx%d, want %dx%d", cfg.Width, cfg.Height, wantW, wantH)
			}
		}
	}

	specs := []ResizeSpec{
		{Width: 32, Height: 24, Quality: 85, Interpolation: InterpolationLanczos2, KeepMeta: true, ReceiveResult: assertDims(32, 24)},
		{Width: 16, Height: 12, Quality: 82, Interpolation: InterpolationLanczos2, KeepMeta: false, ReceiveResult: assertDims(16, 12)},
		{Width: 8, Height: 6, Quality: 78, Interpolation: InterpolationBilinear, KeepMeta: false, ReceiveResult: assertDims(8, 6)},
		{Width: 8, Height: 6, Quality: 92, Interpolation: InterpolationBilinear, KeepMeta: false, ReceiveResult: assertDims(8, 6)},
	}

	if err := ResizeJPEGBatch(data, specs); err != nil {
		t.Fatalf("batch resize: %v", err)
	}
}

func TestResizeJPEGBatchInvalid(t *testing.T) {
	data := makeBatchTestJPEG(t, 16, 16)

	if err := ResizeJPEGBatch(data, nil); err == nil {
		t.Fatal("expected error for empty specs")
	}

	if err := ResizeJPEGBatch(data, []ResizeSpec{{Width: 0, Height: 100, Quality: 80}}); err == nil {
		t.Fatal("expected error for zero width")
	}
}
