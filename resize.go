package hdrify

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
)

// ResizeOptions controls the UltraHDR resize behavior.
type ResizeOptions struct {
	PrimaryQuality int
	GainmapQuality int
	// Interpolation selects the built-in interpolation mode for the primary image and gainmap.
	Interpolation Interpolation
	OnResult      func(res *ResizeResult)
	PrimaryOut    string
	GainmapOut    string
}

// ResizeResult contains the resized container and its component JPEGs.
type ResizeResult struct {
	Container []byte
	Primary   []byte
	Gainmap   []byte
}

// ResizeSpec describes one output variant for ResizeJPEGBatch.
type ResizeSpec struct {
	Width         uint
	Height        uint
	Quality       int
	Interpolation Interpolation
	KeepMeta      bool
	ReceiveResult func(data []byte, err error)
}

// ResizeUltraHDR resizes a JPEG-R container to the requested dimensions,
// rescaling the primary image and the gain map together and
// reassembling the container.
func ResizeUltraHDR(data []byte, width, height uint, opts ...func(o *ResizeOptions)) (*ResizeResult, error) {
	if width == 0 || height == 0 {
		return nil, errors.New("invalid target dimensions")
	}
	primaryJPEG, gainmapJPEG, meta, err := Split(data)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	opt := ResizeOptions{
		PrimaryQuality: 85,
		GainmapQuality: 75,
		Interpolation:  InterpolationNearest,
	}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}

	primaryThumb, err := resizeJPEG(primaryJPEG, width, height, opt.PrimaryQuality, opt.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("resize primary: %w", err)
	}
	gainmapThumb, err := resizeJPEG(gainmapJPEG, width, height, opt.GainmapQuality, opt.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("resize gainmap: %w", err)
	}
	_, icc, err := extractExifAndIcc(primaryJPEG)
	if err != nil {
		return nil, fmt.Errorf("extract icc: %w", err)
	}

	container, err := assembleJpegGainMap(primaryThumb, gainmapThumb, collectICC(icc), meta, FormatUltraHDR)
	if err != nil {
		return nil, fmt.Errorf("assemble container: %w", err)
	}

	res := ResizeResult{Container: container, Primary: primaryThumb, Gainmap: gainmapThumb}
	if opt.OnResult != nil {
		opt.OnResult(&res)
	}
	return &res, nil
}

func collectICC(segs [][]byte) []byte {
	var out []byte
	for _, s := range segs {
		if len(s) > len(iccSig)+2 {
			out = append(out, s[len(iccSig)+2:]...)
		}
	}
	return out
}

// ResizeJPEG resizes a single JPEG to the requested dimensions. When
// keepMeta is true, EXIF and ICC segments are copied from the source
// into the output.
func ResizeJPEG(data []byte, width, height uint, quality int, interp Interpolation, keepMeta bool) ([]byte, error) {
	var res []byte
	var outErr error
	specs := []ResizeSpec{{
		Width: width, Height: height, Quality: quality, Interpolation: interp, KeepMeta: keepMeta,
		ReceiveResult: func(d []byte, e error) { res, outErr = d, e },
	}}
	if err := ResizeJPEGBatch(data, specs); err != nil {
		return nil, err
	}
	return res, outErr
}

// ResizeJPEGBatch resizes one JPEG into multiple outputs with a single
// source decode.
func ResizeJPEGBatch(data []byte, specs []ResizeSpec) error {
	if len(specs) == 0 {
		return errors.New("no resize specs provided")
	}
	for _, s := range specs {
		if s.Width == 0 || s.Height == 0 {
			return errors.New("invalid target dimensions")
		}
	}

	exif, icc, err := extractExifAndIcc(data)
	if err != nil {
		exif, icc = nil, nil
	}
	keepMetaSegs := make([]appSegment, 0, 1+len(icc))
	if exif != nil {
		keepMetaSegs = append(keepMetaSegs, appSegment{marker: markerAPP1, payload: exif})
	}
	for _, seg := range icc {
		keepMetaSegs = append(keepMetaSegs, appSegment{marker: markerAPP2, payload: seg})
	}

	srcImg, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	type resizedKey struct {
		w, h   int
		interp Interpolation
	}
	resizedCache := map[resizedKey]image.Image{}

	for _, spec := range specs {
		rk := resizedKey{w: int(spec.Width), h: int(spec.Height), interp: spec.Interpolation}
		resized, ok := resizedCache[rk]
		if !ok {
			resized = resizeImageInterpolated(srcImg, rk.w, rk.h, rk.interp)
			resizedCache[rk] = resized
		}

		out, encErr := encodeWithQuality(resized, spec.Quality)
		if encErr == nil && spec.KeepMeta && len(keepMetaSegs) > 0 {
			out, encErr = insertAppSegments(out, keepMetaSegs)
		}
		if spec.ReceiveResult != nil {
			spec.ReceiveResult(out, encErr)
		}
	}
	return nil
}

// ResizeUltraHDRFile reads a JPEG-R container from inPath, resizes it,
// and writes the container to outPath. PrimaryOut/GainmapOut, when set,
// also receive the resized component JPEGs.
func ResizeUltraHDRFile(inPath, outPath string, width, height uint, opts ...func(opt *ResizeOptions)) error {
	data, err := os.ReadFile(filepath.Clean(inPath))
	if err != nil {
		return err
	}
	resized, err := ResizeUltraHDR(data, width, height, opts...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(outPath), resized.Container, 0o644); err != nil {
		return err
	}

	opt := ResizeOptions{}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	if opt.PrimaryOut != "" {
		if err := os.WriteFile(filepath.Clean(opt.PrimaryOut), resized.Primary, 0o644); err != nil {
			return fmt.Errorf("write primary: %w", err)
		}
	}
	if opt.GainmapOut != "" {
		if err := os.WriteFile(filepath.Clean(opt.GainmapOut), resized.Gainmap, 0o644); err != nil {
			return fmt.Errorf("write gainmap: %w", err)
		}
	}
	return nil
}

// Interpolation selects the built-in interpolation mode.
type Interpolation int

const (
	InterpolationNearest Interpolation = iota
	InterpolationBilinear
	InterpolationBicubic
	InterpolationMitchellNetravali
	InterpolationLanczos2
	InterpolationLanczos3
)

func resizeJPEG(jpegData []byte, w, h uint, quality int, interp Interpolation) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, err
	}
	resized := resizeImageInterpolated(img, int(w), int(h), interp)
	return encodeWithQuality(resized, quality)
}

func resizeImageInterpolated(img image.Image, w, h int, interp Interpolation) image.Image {
	switch src := img.(type) {
	case *image.YCbCr:
		return resizeYCbCrInterpolated(src, w, h, interp)
	case *image.Gray:
		return resizeGrayInterpolated(src, w, h, interp)
	case *image.Gray16:
		return resizeGray16Interpolated(src, w, h, interp)
	case *image.RGBA:
		return resizeRGBAInterpolated(src, w, h, interp)
	case *image.NRGBA:
		return resizeNRGBAInterpolated(src, w, h, interp)
	case *image.RGBA64:
		return resizeRGBA64Interpolated(src, w, h, interp)
	case *image.NRGBA64:
		return resizeNRGBA64Interpolated(src, w, h, interp)
	default:
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		nearestScale(dst, img)
		return dst
	}
}

func resizeYCbCrNearest(src *image.YCbCr, w, h int) *image.YCbCr {
	dst := image.NewYCbCr(image.Rect(0, 0, w, h), src.SubsampleRatio)
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()

	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sw/w
			dst.Y[y*dst.YStride+x] = src.Y[(sy-sb.Min.Y)*src.YStride+(sx-sb.Min.X)]
		}
	}

	dstCbW, dstCbH := chromaSize(dst.Rect, dst.SubsampleRatio)
	srcCbW, srcCbH := chromaSize(src.Rect, src.SubsampleRatio)
	for y := 0; y < dstCbH; y++ {
		sy := y * srcCbH / dstCbH
		for x := 0; x < dstCbW; x++ {
			sx := x * srcCbW / dstCbW
			dst.Cb[y*dst.CStride+x] = src.Cb[sy*src.CStride+sx]
			dst.Cr[y*dst.CStride+x] = src.Cr[sy*src.CStride+sx]
		}
	}
	return dst
}

func chromaSize(r image.Rectangle, subsample image.YCbCrSubsampleRatio) (cw, ch int) {
	w, h := r.Dx(), r.Dy()
	switch subsample {
	case image.YCbCrSubsampleRatio444:
		return w, h
	case image.YCbCrSubsampleRatio422:
		return (w + 1) / 2, h
	case image.YCbCrSubsampleRatio440:
		return w, (h + 1) / 2
	default:
		return (w + 1) / 2, (h + 1) / 2
	}
}

func nearestScale(dst draw.Image, src image.Image) {
	sb := src.Bounds()
	db := dst.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	dw, dh := db.Dx(), db.Dy()
	for y := 0; y < dh; y++ {
		sy := sb.Min.Y + y*sh/dh
		for x := 0; x < dw; x++ {
			sx := sb.Min.X + x*sw/dw
			dst.Set(x, y, src.At(sx, sy))
		}
	}
}

func encodeWithQuality(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
