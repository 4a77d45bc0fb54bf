package hdrify

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

// RebaseOptions controls gain-map rebase behavior.
type RebaseOptions struct {
	BaseQuality    int
	GainmapQuality int
}

const (
	defaultRebasePrimaryQuality = 90
	defaultRebaseGainmapQuality = 85
)

// RebaseResult contains the rebased container and its component JPEGs.
type RebaseResult struct {
	Container []byte
	Primary   []byte
	Gainmap   []byte
}

// RebaseUltraHDR replaces a JPEG-R container's primary SDR image with
// newSDR, recomputing the gain map so the HDR reconstruction it implies
// is preserved: for each pixel, the HDR value implied by the old SDR
// and its gain map is held fixed, and a new gain value is solved for
// against the new SDR pixel.
func RebaseUltraHDR(data []byte, newSDR image.Image, opt *RebaseOptions) (*RebaseResult, error) {
	if newSDR == nil {
		return nil, errors.New("new SDR image is nil")
	}
	primaryJPEG, gainmapJPEG, meta, err := Split(data)
	if err != nil {
		return nil, err
	}
	oldSDR, _, err := image.Decode(bytes.NewReader(primaryJPEG))
	if err != nil {
		return nil, err
	}
	gainmapImg, _, err := image.Decode(bytes.NewReader(gainmapJPEG))
	if err != nil {
		return nil, err
	}
	ob, nb := oldSDR.Bounds(), newSDR.Bounds()
	if ob.Dx() != nb.Dx() || ob.Dy() != nb.Dy() {
		return nil, codecerr.New(codecerr.ChannelMismatch, "new SDR dimensions must match original")
	}

	gainmapOut := rebaseGainMap(oldSDR, newSDR, gainmapImg, meta)

	baseQ, gainQ := defaultRebasePrimaryQuality, defaultRebaseGainmapQuality
	if opt != nil {
		if opt.BaseQuality > 0 {
			baseQ = opt.BaseQuality
		}
		if opt.GainmapQuality > 0 {
			gainQ = opt.GainmapQuality
		}
	}
	primaryOut, err := encodeWithQuality(newSDR, baseQ)
	if err != nil {
		return nil, err
	}
	gainmapOutJPEG, err := encodeWithQuality(gainmapOut, gainQ)
	if err != nil {
		return nil, err
	}

	_, icc, err := extractExifAndIcc(primaryJPEG)
	if err != nil {
		icc = nil
	}
	container, err := assembleJpegGainMap(primaryOut, gainmapOutJPEG, collectICC(icc), meta, FormatUltraHDR)
	if err != nil {
		return nil, err
	}
	return &RebaseResult{Container: container, Primary: primaryOut, Gainmap: gainmapOutJPEG}, nil
}

// RebaseUltraHDRFile reads a JPEG-R container, rebases it onto
// newSDRPath's image, and writes the result to outPath.
func RebaseUltraHDRFile(inPath, newSDRPath, outPath string, opt *RebaseOptions, primaryOut, gainmapOut string) error {
	data, err := os.ReadFile(filepath.Clean(inPath))
	if err != nil {
		return err
	}
	newSDRFile, err := os.Open(filepath.Clean(newSDRPath))
	if err != nil {
		return err
	}
	defer newSDRFile.Close()
	newSDR, _, err := image.Decode(newSDRFile)
	if err != nil {
		return err
	}
	res, err := RebaseUltraHDR(data, newSDR, opt)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(outPath), res.Container, 0o644); err != nil {
		return err
	}
	if primaryOut != "" {
		if err := os.WriteFile(filepath.Clean(primaryOut), res.Primary, 0o644); err != nil {
			return err
		}
	}
	if gainmapOut != "" {
		if err := os.WriteFile(filepath.Clean(gainmapOut), res.Gainmap, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func rebaseGainMap(oldSDR, newSDR, gainmap image.Image, meta GainMapMetadata) image.Image {
	b := newSDR.Bounds()
	w, h := b.Dx(), b.Dy()
	gb := gainmap.Bounds()
	gw, gh := gb.Dx(), gb.Dy()

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		gy := y * gh / h
		for x := 0; x < w; x++ {
			gx := x * gw / w
			oldPix := sampleLinearSRGB(oldSDR, b.Min.X+x, b.Min.Y+y)
			newPix := sampleLinearSRGB(newSDR, b.Min.X+x, b.Min.Y+y)
			gr, gg, gbv, _ := gainmap.At(gb.Min.X+gx, gb.Min.Y+gy).RGBA()
			gainBytes := [3]byte{byte(gr >> 8), byte(gg >> 8), byte(gbv >> 8)}

			var outByte [3]byte
			for c := 0; c < 3; c++ {
				gamma := meta.Gamma[c]
				logRecovery := float32(gainBytes[c]) / 255
				if gamma != 1 {
					logRecovery = float32pow(logRecovery, 1/gamma)
				}
				logBoost := meta.GainMapMin[c]*(1-logRecovery) + meta.GainMapMax[c]*logRecovery
				gainFactor := exp2f(logBoost)
				hdrC := (oldPix[c]+meta.OffsetSdr[c])*gainFactor - meta.OffsetHdr[c]

				denom := newPix[c] + meta.OffsetSdr[c]
				if denom <= 0 {
					denom = 1e-6
				}
				newGain := (hdrC + meta.OffsetHdr[c]) / denom
				newLogBoost := log2f(newGain)
				span := meta.GainMapMax[c] - meta.GainMapMin[c]
				newRecovery := float32(0)
				if span != 0 {
					newRecovery = clamp01((newLogBoost - meta.GainMapMin[c]) / span)
				}
				v := newRecovery
				if gamma != 1 {
					v = float32pow(newRecovery, gamma)
				}
				outByte[c] = byte(clamp(roundf(255*v), 0, 255))
			}
			out.SetRGBA(x, y, color.RGBA{R: outByte[0], G: outByte[1], B: outByte[2], A: 0xFF})
		}
	}
	return out
}

func sampleLinearSRGB(img image.Image, x, y int) [3]float32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]float32{
		sRGBToLinear(float32(r>>8) / 255),
		sRGBToLinear(float32(g>>8) / 255),
		sRGBToLinear(float32(b>>8) / 255),
	}
}
