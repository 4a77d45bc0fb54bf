package hdrify

import (
	"image"
	"image/color"

	internalresize "github.com/bhouston/hdrify-sub000/internal/resize"
)

// ToneMapFunc is the external collaborator EncodeGainMap calls to
// compress a linear-light HDR pixel down to an SDR pixel in [0, 1].
// Callers own the tone-mapping operator; this package only feeds it
// pixels and consumes its output.
type ToneMapFunc func(r, g, b float32) (float32, float32, float32)

// GainMapOptions parameterizes EncodeGainMap. Zero-value fields fall
// back to DefaultGainMapOptions' defaults via normalizeGainMapOptions.
type GainMapOptions struct {
	Exposure        float32
	OffsetSdr       Triplet
	OffsetHdr       Triplet
	Gamma           Triplet
	MinContentBoost *float32
}

// DefaultGainMapOptions returns the spec-mandated defaults: exposure
// 1, offsets 1/64 per channel, gamma 1 per channel.
func DefaultGainMapOptions() GainMapOptions {
	return GainMapOptions{
		Exposure:  1,
		OffsetSdr: Broadcast(1.0 / 64),
		OffsetHdr: Broadcast(1.0 / 64),
		Gamma:     Broadcast(1),
	}
}

func normalizeGainMapOptions(o GainMapOptions) GainMapOptions {
	if o.Exposure == 0 {
		o.Exposure = 1
	}
	zero := Triplet{}
	if o.OffsetSdr == zero {
		o.OffsetSdr = Broadcast(1.0 / 64)
	}
	if o.OffsetHdr == zero {
		o.OffsetHdr = Broadcast(1.0 / 64)
	}
	if o.Gamma == zero {
		o.Gamma = Broadcast(1)
	}
	return o
}

// EncodeGainMap runs the fixed-point gain-map encode pipeline of
// spec §4.8: tone-map to SDR, quantize, then derive per-pixel gain
// bytes that recover the original HDR from the quantized SDR.
func EncodeGainMap(img *HdrifyImage, toneMap ToneMapFunc, opts GainMapOptions) (*EncodingResult, error) {
	opts = normalizeGainMapOptions(opts)

	hdr := append([]float32(nil), img.Data...)
	if err := ensureNonNegativeFinite(hdr, false); err != nil {
		return nil, err
	}
	if m := linearToLinearMatrix(img.ColorSpace, LinearRec709); m != nil {
		applyMatrixRGBA(hdr, m)
	}
	w, h := img.Width, img.Height
	n := w * h

	exposed := make([]float32, len(hdr))
	for i, v := range hdr {
		if i%4 == 3 {
			exposed[i] = v
			continue
		}
		exposed[i] = v * opts.Exposure
	}

	sdrLin := make([]float32, n*3)
	sdrByte := make([]byte, n*4)
	for p := 0; p < n; p++ {
		r, g, b := exposed[p*4], exposed[p*4+1], exposed[p*4+2]
		sr, sg, sb := toneMap(r, g, b)
		sdrLin[p*3], sdrLin[p*3+1], sdrLin[p*3+2] = sr, sg, sb
		sdrByte[p*4] = quantizeSRGB(sr)
		sdrByte[p*4+1] = quantizeSRGB(sg)
		sdrByte[p*4+2] = quantizeSRGB(sb)
		sdrByte[p*4+3] = 255
	}

	maxContentBoost := float32(1.0001)
	for p := 0; p < n; p++ {
		for c := 0; c < 3; c++ {
			hdrC := exposed[p*4+c]
			boost := (hdrC + opts.OffsetHdr[c]) / (sdrLin[p*3+c] + opts.OffsetSdr[c])
			if boost > maxContentBoost {
				maxContentBoost = boost
			}
		}
	}
	minContentBoost := float32(1)
	if opts.MinContentBoost != nil {
		minContentBoost = *opts.MinContentBoost
	}
	minLog2 := log2f(minContentBoost)
	maxLog2 := log2f(maxContentBoost)
	if maxLog2 == minLog2 {
		maxLog2 += 1e-6
	}

	gainMap := make([]byte, n*4)
	for p := 0; p < n; p++ {
		for c := 0; c < 3; c++ {
			relin := sRGBToLinear(float32(sdrByte[p*4+c]) / 255)
			hdrC := exposed[p*4+c]
			pixelGain := (hdrC + opts.OffsetHdr[c]) / (relin + opts.OffsetSdr[c])
			logRecovery := (log2f(pixelGain) - minLog2) / (maxLog2 - minLog2)
			logRecovery = clamp01(logRecovery)
			gamma := opts.Gamma[c]
			v := logRecovery
			if gamma != 1 {
				v = float32pow(logRecovery, gamma)
			}
			gainMap[p*4+c] = byte(clamp(roundf(255*v), 0, 255))
		}
		gainMap[p*4+3] = 255
	}

	meta := GainMapMetadata{
		Gamma:          opts.Gamma,
		OffsetSdr:      opts.OffsetSdr,
		OffsetHdr:      opts.OffsetHdr,
		GainMapMin:     Broadcast(minLog2),
		GainMapMax:     Broadcast(maxLog2),
		HDRCapacityMin: minLog2,
		HDRCapacityMax: maxLog2,
	}

	return &EncodingResult{
		Width:    w,
		Height:   h,
		SDR:      sdrByte,
		GainMap:  gainMap,
		GainGray: false,
		Metadata: meta,
	}, nil
}

func quantizeSRGB(linear float32) byte {
	return byte(clamp(roundf(255*linearToSRGB(clamp01(linear))), 0, 255))
}

func float32pow(base, exp float32) float32 {
	return exp2f(exp * log2f(base))
}

// DecodeGainMap reconstructs a linear HDR image from an sRGB-encoded
// SDR base (RGBA8) and its paired gain map (RGBA8, or single-channel
// luma when gainGray is true), per spec §4.8 decode. When the gain
// map's dimensions differ from the SDR's, it is nearest-neighbor
// upscaled first.
func DecodeGainMap(sdr []byte, sdrW, sdrH int, gain []byte, gainW, gainH int, gainGray bool, meta GainMapMetadata, maxDisplayBoost float32) (*HdrifyImage, error) {
	if gainW != sdrW || gainH != sdrH {
		gain = upscaleGainMapNearest(gain, gainW, gainH, sdrW, sdrH, gainGray)
		gainW, gainH = sdrW, sdrH
	}

	if maxDisplayBoost <= 0 {
		maxDisplayBoost = exp2f(meta.HDRCapacityMax)
	}
	weightFactor := float32(1)
	if meta.HDRCapacityMax != meta.HDRCapacityMin {
		weightFactor = clamp01((log2f(maxDisplayBoost) - meta.HDRCapacityMin) / (meta.HDRCapacityMax - meta.HDRCapacityMin))
	}

	out := &HdrifyImage{
		Width:      sdrW,
		Height:     sdrH,
		Data:       make([]float32, sdrW*sdrH*4),
		ColorSpace: LinearRec709,
	}

	n := sdrW * sdrH
	for p := 0; p < n; p++ {
		for c := 0; c < 3; c++ {
			sdrLin := sRGBToLinear(float32(sdr[p*4+c]) / 255)
			var gainByte byte
			if gainGray {
				gainByte = gain[p]
			} else {
				gainByte = gain[p*4+c]
			}
			gamma := meta.Gamma[c]
			logRecovery := float32(gainByte) / 255
			if gamma != 1 {
				logRecovery = float32pow(logRecovery, 1/gamma)
			}
			logBoost := meta.GainMapMin[c]*(1-logRecovery) + meta.GainMapMax[c]*logRecovery
			hdrC := (sdrLin+meta.OffsetSdr[c])*exp2f(logBoost*weightFactor) - meta.OffsetHdr[c]
			out.Data[p*4+c] = clamp(hdrC, 0, 65504)
		}
		out.Data[p*4+3] = 1
	}
	return out, nil
}

func upscaleGainMapNearest(gain []byte, srcW, srcH, dstW, dstH int, gray bool) []byte {
	if gray {
		img := image.NewGray(image.Rect(0, 0, srcW, srcH))
		for y := 0; y < srcH; y++ {
			for x := 0; x < srcW; x++ {
				img.SetGray(x, y, color.Gray{Y: gain[y*srcW+x]})
			}
		}
		scaled := internalresize.NearestNeighbor(img, uint(dstW), uint(dstH))
		out := make([]byte, dstW*dstH)
		for y := 0; y < dstH; y++ {
			for x := 0; x < dstW; x++ {
				g, _, _, _ := scaled.At(x, y).RGBA()
				out[y*dstW+x] = byte(g >> 8)
			}
		}
		return out
	}

	img := image.NewNRGBA(image.Rect(0, 0, srcW, srcH))
	copy(img.Pix, gain)
	scaled := internalresize.NearestNeighbor(img, uint(dstW), uint(dstH))
	out := make([]byte, dstW*dstH*4)
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			r, g, b, a := scaled.At(x, y).RGBA()
			i := (y*dstW + x) * 4
			out[i] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(b >> 8)
			out[i+3] = byte(a >> 8)
		}
	}
	return out
}
