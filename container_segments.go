package hdrify

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

var defaultSRGBICC = buildDefaultSRGBICC()

// JPEGContainerFormat selects the gain-map container layout
// WriteJpegGainMap emits.
type JPEGContainerFormat int

const (
	FormatUltraHDR JPEGContainerFormat = iota
	FormatAdobeGainMap
)

// JpegGainMapOptions controls WriteJpegGainMap.
type JpegGainMapOptions struct {
	Format         JPEGContainerFormat
	PrimaryQuality int
	GainmapQuality int
	ICC            []byte
}

const (
	defaultWriteJpegGainMapPrimaryQuality = 90
	defaultWriteJpegGainMapGainmapQuality = 85
)

// WriteJpegGainMap is the library's top-level encode entry point
// (spec §4.9): it JPEG-compresses an EncodeGainMap result's SDR base
// and gain map and stitches them into a JPEG-R container via
// assembleJpegGainMap.
func WriteJpegGainMap(enc *EncodingResult, opts JpegGainMapOptions) ([]byte, error) {
	if enc == nil {
		return nil, errors.New("nil encoding result")
	}
	primaryQ := opts.PrimaryQuality
	if primaryQ == 0 {
		primaryQ = defaultWriteJpegGainMapPrimaryQuality
	}
	gainQ := opts.GainmapQuality
	if gainQ == 0 {
		gainQ = defaultWriteJpegGainMapGainmapQuality
	}

	primaryJPEG, err := encodeWithQuality(rgbaImageFromBytes(enc.Width, enc.Height, enc.SDR), primaryQ)
	if err != nil {
		return nil, fmt.Errorf("encode primary: %w", err)
	}

	var gainImg image.Image
	if enc.GainGray {
		gainImg = grayImageFromBytes(enc.Width, enc.Height, enc.GainMap)
	} else {
		gainImg = rgbaImageFromBytes(enc.Width, enc.Height, enc.GainMap)
	}
	gainmapJPEG, err := encodeWithQuality(gainImg, gainQ)
	if err != nil {
		return nil, fmt.Errorf("encode gain map: %w", err)
	}

	return assembleJpegGainMap(primaryJPEG, gainmapJPEG, opts.ICC, enc.Metadata, opts.Format)
}

// ReadJpegGainMap is the library's top-level decode entry point
// (spec §4.10): it splits a JPEG-R container, JPEG-decodes its
// primary and gain-map images, and runs DecodeGainMap to recover a
// linear HdrifyImage.
func ReadJpegGainMap(data []byte) (*HdrifyImage, error) {
	primaryJPEG, gainmapJPEG, meta, err := Split(data)
	if err != nil {
		return nil, err
	}
	primaryImg, err := jpeg.Decode(bytes.NewReader(primaryJPEG))
	if err != nil {
		return nil, fmt.Errorf("decode primary jpeg: %w", err)
	}
	gainImg, err := jpeg.Decode(bytes.NewReader(gainmapJPEG))
	if err != nil {
		return nil, fmt.Errorf("decode gain map jpeg: %w", err)
	}

	sdrW, sdrH := primaryImg.Bounds().Dx(), primaryImg.Bounds().Dy()
	sdr := rgbaBytesFromImage(primaryImg)

	var gainBytes []byte
	var gainW, gainH int
	var gainGray bool
	if gray, ok := gainImg.(*image.Gray); ok {
		gainGray = true
		gainW, gainH = gray.Bounds().Dx(), gray.Bounds().Dy()
		gainBytes = grayBytesFromImage(gray)
	} else {
		gainW, gainH = gainImg.Bounds().Dx(), gainImg.Bounds().Dy()
		gainBytes = rgbaBytesFromImage(gainImg)
	}

	return DecodeGainMap(sdr, sdrW, sdrH, gainBytes, gainW, gainH, gainGray, meta, 0)
}

func rgbaImageFromBytes(w, h int, data []byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, data)
	return img
}

func grayImageFromBytes(w, h int, data []byte) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, data)
	return img
}

func rgbaBytesFromImage(img image.Image) []byte {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return append([]byte(nil), rgba.Pix...)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out[i] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(bl >> 8)
			out[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return out
}

func grayBytesFromImage(img *image.Gray) []byte {
	if img.Rect.Min == (image.Point{}) && img.Stride == img.Rect.Dx() {
		return append([]byte(nil), img.Pix...)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h)
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			out[i] = c.Y
			i++
		}
	}
	return out
}

// assembleJpegGainMap writes the segment sequence spec §4.9 mandates:
// SOI, primary XMP, MPF, ICC, the primary JPEG's body, a second SOI,
// the secondary XMP, and the gain-map JPEG's body. In the
// adobe-gainmap variant the MPF index is omitted; the two images are
// still located by the extractor's SOI-scanning fallback.
func assembleJpegGainMap(primaryJPEG, gainmapJPEG []byte, icc []byte, meta GainMapMetadata, format JPEGContainerFormat) ([]byte, error) {
	if len(primaryJPEG) < 2 || primaryJPEG[0] != markerStart || primaryJPEG[1] != markerSOI {
		return nil, codecerr.New(codecerr.MalformedHeader, "invalid primary JPEG data")
	}
	if len(gainmapJPEG) < 2 || gainmapJPEG[0] != markerStart || gainmapJPEG[1] != markerSOI {
		return nil, codecerr.New(codecerr.MalformedHeader, "invalid gain-map JPEG data")
	}

	secondaryXMP := buildGainmapXMP(meta)
	secondaryImageSize := len(gainmapJPEG) - 2 + appSize(secondaryXMP)
	primaryXMP := buildPrimaryXMP(secondaryImageSize)

	var out bytes.Buffer
	writeSOI := func() {
		out.WriteByte(markerStart)
		out.WriteByte(markerSOI)
	}

	var iccPayload []byte
	if len(icc) > 0 {
		iccPayload = append(append(append([]byte(nil), iccSig...), 1, 1), icc...)
	}

	writeSOI()
	writeAppSegment(&out, markerAPP1, primaryXMP)

	if format == FormatUltraHDR {
		mpfLen := 2 + calculateMpfSize()
		primaryImageSize := out.Len() + mpfLen + (len(primaryJPEG) - 2)
		if len(iccPayload) > 0 {
			primaryImageSize += 2 + 2 + len(iccPayload)
		}
		secondaryOffset := primaryImageSize - out.Len() - 8
		mpf := generateMpf(primaryImageSize, secondaryImageSize, secondaryOffset)
		writeAppSegment(&out, markerAPP2, mpf)
	}

	if len(iccPayload) > 0 {
		writeAppSegment(&out, markerAPP2, iccPayload)
	}

	out.Write(primaryJPEG[2:])

	writeSOI()
	writeAppSegment(&out, markerAPP1, secondaryXMP)
	out.Write(gainmapJPEG[2:])

	final := out.Bytes()
	if format == FormatUltraHDR {
		if err := replaceMpfPayload(final); err != nil {
			return nil, err
		}
	}
	return final, nil
}

func replaceMpfPayload(data []byte) error {
	mpfStart, mpfLen := findMpfPayload(data)
	if mpfStart < 0 {
		return codecerr.New(codecerr.MalformedHeader, "mpf segment not found")
	}

	ranges, err := scanJPEGs(data)
	if err != nil || len(ranges) < 2 {
		return codecerr.New(codecerr.MalformedHeader, "jpeg ranges not found while patching mpf")
	}
	primarySize := ranges[0][1] - ranges[0][0]
	secondarySize := ranges[1][1] - ranges[1][0]
	secondaryOffset := ranges[1][0] - (mpfStart + len(mpfSig))

	newMpf := generateMpf(primarySize, secondarySize, secondaryOffset)
	if len(newMpf) != mpfLen {
		return codecerr.New(codecerr.MalformedHeader, "mpf payload size mismatch")
	}
	copy(data[mpfStart:mpfStart+mpfLen], newMpf)
	return nil
}

func findMpfPayload(data []byte) (start, length int) {
	i := 2
	for i+3 < len(data) {
		if data[i] != markerStart {
			i++
			continue
		}
		for i < len(data) && data[i] == markerStart {
			i++
		}
		if i >= len(data) {
			break
		}
		marker := data[i]
		i++
		if marker == markerSOS || marker == markerEOI {
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			continue
		}
		if i+1 >= len(data) {
			break
		}
		segLen := int(data[i])<<8 | int(data[i+1])
		segStart := i + 2
		segEnd := i + segLen
		if segEnd > len(data) {
			break
		}
		if marker == markerAPP2 && bytes.HasPrefix(data[segStart:segEnd], mpfSig) {
			return segStart, segEnd - segStart
		}
		i = segEnd
	}
	return -1, 0
}

func appSize(payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	return 4 + len(payload)
}

// buildDefaultSRGBICC returns a minimal 456-byte placeholder sRGB ICC
// profile. WriteJpegGainMap does not fall back to it: an ICC segment
// is written only when JpegGainMapOptions.ICC is non-empty, and then
// with the caller's bytes.
func buildDefaultSRGBICC() []byte {
	const size = 456
	profile := make([]byte, size)
	copy(profile, []byte{0, 0, 1, 200})
	copy(profile[4:], []byte("hdrify"))
	copy(profile[36:], []byte("RGB "))
	copy(profile[40:], []byte("XYZ "))
	return profile
}
