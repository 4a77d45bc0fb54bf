package hdrify

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
	"github.com/bhouston/hdrify-sub000/internal/hlog"
)

// nextHdrLine splits off the next '\n'-terminated ASCII line starting
// at data[pos:], returning the line (without its terminator) and the
// offset of the byte following the terminator.
func nextHdrLine(data []byte, pos int) (string, int, bool) {
	if pos >= len(data) {
		return "", pos, false
	}
	nl := bytes.IndexByte(data[pos:], '\n')
	if nl < 0 {
		return string(bytes.TrimRight(data[pos:], "\r")), len(data), true
	}
	line := data[pos : pos+nl]
	line = bytes.TrimRight(line, "\r")
	return string(line), pos + nl + 1, true
}

// HdrOutputMode selects whether ReadHdr returns raw decoded radiance
// or divides by the cumulative EXPOSURE to recover physical radiance.
type HdrOutputMode string

const (
	HdrOutputRaw              HdrOutputMode = "raw"
	HdrOutputPhysicalRadiance HdrOutputMode = "physicalRadiance"
)

// ReadHdrOptions controls ReadHdr.
type ReadHdrOptions struct {
	// HeaderStrict requires the first header line to be exactly
	// "#?RADIANCE"; when false, any "#?PROGRAMTYPE" first line is
	// accepted.
	HeaderStrict bool
	Output       HdrOutputMode
}

// ReadHdr decodes a Radiance HDR (RGBE) file into a HdrifyImage.
func ReadHdr(data []byte, opts ReadHdrOptions) (*HdrifyImage, error) {
	pos := 0
	first, pos, ok := nextHdrLine(data, pos)
	if !ok {
		return nil, codecerr.New(codecerr.MalformedHeader, "HDR file is empty")
	}
	if !strings.HasPrefix(first, "#?") {
		return nil, codecerr.New(codecerr.MalformedHeader, "malformed #? token: %q", first)
	}
	if opts.HeaderStrict && first != "#?RADIANCE" {
		return nil, codecerr.New(codecerr.MalformedHeader, "strict header requires #?RADIANCE, got %q", first)
	}

	attrs := map[string]string{}
	exposure := float32(1)
	haveFormat := false
	for {
		line, next, ok := nextHdrLine(data, pos)
		if !ok {
			return nil, codecerr.New(codecerr.MalformedHeader, "missing resolution line")
		}
		pos = next
		if line == "" {
			break
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := line[:eq]
		val := line[eq+1:]
		if key == "EXPOSURE" {
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 32)
			if err == nil {
				exposure *= float32(f)
			}
		}
		attrs[key] = val
		if key == "FORMAT" {
			haveFormat = true
		}
	}
	if !haveFormat {
		return nil, codecerr.New(codecerr.MalformedHeader, "missing FORMAT attribute")
	}
	if attrs["FORMAT"] == "32-bit_rle_xyze" {
		return nil, codecerr.New(codecerr.UnsupportedVariant, "XYZ format is not supported")
	}

	resLine, next, ok := nextHdrLine(data, pos)
	if !ok {
		return nil, codecerr.New(codecerr.MalformedHeader, "missing resolution line")
	}
	pos = next
	var h, w int
	if n, err := fmt.Sscanf(resLine, "-Y %d +X %d", &h, &w); err != nil || n != 2 {
		return nil, codecerr.New(codecerr.UnsupportedVariant, "Unsupported resolution format: %q", resLine)
	}

	body := data[pos:]
	pix := make([]float32, 4*w*h)
	bodyPos := 0
	for y := 0; y < h; y++ {
		scan, n, err := decodeHdrScanline(body[bodyPos:], w)
		if err != nil {
			return nil, err
		}
		bodyPos += n
		for x := 0; x < w; x++ {
			r, g, b, e := scan[x*4], scan[x*4+1], scan[x*4+2], scan[x*4+3]
			fr, fg, fb := rgbeToLinear(r, g, b, e)
			if opts.Output == HdrOutputPhysicalRadiance && exposure != 1 && exposure != 0 {
				fr /= exposure
				fg /= exposure
				fb /= exposure
			}
			i := (y*w + x) * 4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = fr, fg, fb, 1
		}
	}

	hlog.L.Debug().Int("width", w).Int("height", h).Msg("hdr decoded")
	img := &HdrifyImage{Width: w, Height: h, Data: pix, ColorSpace: LinearRec709, Metadata: attrs}
	if err := ensureNonNegativeFinite(img.Data, false); err != nil {
		return nil, err
	}
	return img, nil
}

func rgbeToLinear(r, g, b, e byte) (float32, float32, float32) {
	if e == 0 {
		return 0, 0, 0
	}
	scale := exp2f(float32(int(e)-128)) / 255
	return float32(r) * scale, float32(g) * scale, float32(b) * scale
}

// decodeHdrScanline decodes one scanline of w pixels starting at buf,
// returning the RGBE bytes (4*w) and the number of input bytes
// consumed.
func decodeHdrScanline(buf []byte, w int) ([]byte, int, error) {
	if len(buf) >= 4 && buf[0] == 2 && buf[1] == 2 && int(buf[2])&0x80 == 0 {
		declaredW := int(buf[2])*256 + int(buf[3])
		if declaredW == w && w >= 8 && w <= 32767 {
			return decodeAdaptiveRLEScanline(buf, w)
		}
	}
	if len(buf) >= 4*w {
		return decodeOldRLEOrFlatScanline(buf, w)
	}
	return nil, 0, codecerr.New(codecerr.Truncated, "truncated scanline: need at least %d bytes", 4*w)
}

func decodeAdaptiveRLEScanline(buf []byte, w int) ([]byte, int, error) {
	pos := 4
	planes := make([][]byte, 4)
	for c := 0; c < 4; c++ {
		plane := make([]byte, 0, w)
		for len(plane) < w {
			if pos >= len(buf) {
				return nil, 0, codecerr.New(codecerr.Truncated, "truncated adaptive RLE plane %d", c)
			}
			code := buf[pos]
			pos++
			if code > 128 {
				if pos >= len(buf) {
					return nil, 0, codecerr.New(codecerr.Truncated, "truncated adaptive RLE repeat run")
				}
				v := buf[pos]
				pos++
				count := int(code) - 128
				for i := 0; i < count; i++ {
					plane = append(plane, v)
				}
			} else {
				count := int(code)
				if pos+count > len(buf) {
					return nil, 0, codecerr.New(codecerr.Truncated, "truncated adaptive RLE literal run")
				}
				plane = append(plane, buf[pos:pos+count]...)
				pos += count
			}
		}
		if len(plane) != w {
			return nil, 0, codecerr.New(codecerr.DecodeFault, "RLE decompression produced wrong size: got %d want %d", len(plane), w)
		}
		planes[c] = plane
	}
	out := make([]byte, 4*w)
	for x := 0; x < w; x++ {
		out[x*4] = planes[0][x]
		out[x*4+1] = planes[1][x]
		out[x*4+2] = planes[2][x]
		out[x*4+3] = planes[3][x]
	}
	return out, pos, nil
}

func decodeOldRLEOrFlatScanline(buf []byte, w int) ([]byte, int, error) {
	out := make([]byte, 0, 4*w)
	pos := 0
	var prev [4]byte
	havePrev := false
	for len(out) < 4*w {
		if pos+4 > len(buf) {
			return nil, 0, codecerr.New(codecerr.Truncated, "truncated scanline pixel")
		}
		r, g, b, e := buf[pos], buf[pos+1], buf[pos+2], buf[pos+3]
		pos += 4
		if r == 255 && g == 255 && b == 255 {
			if !havePrev {
				return nil, 0, codecerr.New(codecerr.DecodeFault, "repeat marker with no previous pixel")
			}
			count := int(e)
			shift := uint(8)
			for pos+4 <= len(buf) && buf[pos] == 255 && buf[pos+1] == 255 && buf[pos+2] == 255 {
				count += int(buf[pos+3]) << shift
				shift += 8
				pos += 4
			}
			for i := 0; i < count && len(out) < 4*w; i++ {
				out = append(out, prev[0], prev[1], prev[2], prev[3])
			}
			continue
		}
		out = append(out, r, g, b, e)
		prev = [4]byte{r, g, b, e}
		havePrev = true
	}
	return out, pos, nil
}

// WriteHdr encodes a HdrifyImage as a Radiance HDR (RGBE) file.
func WriteHdr(img *HdrifyImage) ([]byte, error) {
	if err := ensureNonNegativeFinite(img.Data, true); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("#?RADIANCE\n")
	buf.WriteString("FORMAT=32-bit_rle_rgbe\n")
	if g, ok := img.Metadata["GAMMA"]; ok {
		fmt.Fprintf(&buf, "GAMMA=%s\n", g)
	}
	if e, ok := img.Metadata["EXPOSURE"]; ok {
		fmt.Fprintf(&buf, "EXPOSURE=%s\n", e)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "-Y %d +X %d\n", img.Height, img.Width)

	w, h := img.Width, img.Height
	for y := 0; y < h; y++ {
		planes := [4][]byte{make([]byte, w), make([]byte, w), make([]byte, w), make([]byte, w)}
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(x, y)
			rb, gb, bb, eb := linearToRGBE(r, g, b)
			planes[0][x], planes[1][x], planes[2][x], planes[3][x] = rb, gb, bb, eb
		}
		if w >= 8 && w <= 32767 {
			buf.WriteByte(2)
			buf.WriteByte(2)
			buf.WriteByte(byte(w >> 8))
			buf.WriteByte(byte(w & 0xff))
			for c := 0; c < 4; c++ {
				encodeRunPlane(&buf, planes[c])
			}
		} else {
			for x := 0; x < w; x++ {
				buf.WriteByte(planes[0][x])
				buf.WriteByte(planes[1][x])
				buf.WriteByte(planes[2][x])
				buf.WriteByte(planes[3][x])
			}
		}
	}
	return buf.Bytes(), nil
}

func linearToRGBE(r, g, b float32) (byte, byte, byte, byte) {
	m := max3(r, g, b)
	if m <= 1e-32 {
		return 0, 0, 0, 0
	}
	e := 128
	for {
		scale := exp2f(float32(e-128)) / 255
		rb, gb, bb := r/scale, g/scale, b/scale
		if rb <= 255 && gb <= 255 && bb <= 255 {
			if rb >= 128 || gb >= 128 || bb >= 128 || e <= 1 {
				return byte(roundf(clamp(rb, 0, 255))), byte(roundf(clamp(gb, 0, 255))), byte(roundf(clamp(bb, 0, 255))), byte(e)
			}
			e--
			continue
		}
		e++
		if e > 255 {
			e = 255
			scale = exp2f(float32(e-128)) / 255
			rb, gb, bb = r/scale, g/scale, b/scale
			return byte(roundf(clamp(rb, 0, 255))), byte(roundf(clamp(gb, 0, 255))), byte(roundf(clamp(bb, 0, 255))), byte(e)
		}
	}
}

// encodeRunPlane emits one RGBE channel plane using repeat runs (>=4
// identical bytes, max run length 127) and literal runs (max length
// 128), per the adaptive RLE writer rules.
func encodeRunPlane(buf *bytes.Buffer, plane []byte) {
	n := len(plane)
	pos := 0
	for pos < n {
		runLen := 1
		for pos+runLen < n && runLen < 127 && plane[pos+runLen] == plane[pos] {
			runLen++
		}
		if runLen >= 4 {
			buf.WriteByte(byte(128 + runLen))
			buf.WriteByte(plane[pos])
			pos += runLen
			continue
		}
		// literal run: collect bytes until a run of >=4 identical
		// values begins, or we hit the 128-byte literal cap.
		litStart := pos
		litLen := 0
		for pos < n && litLen < 128 {
			run := 1
			for pos+run < n && run < 127 && plane[pos+run] == plane[pos] {
				run++
			}
			if run >= 4 {
				break
			}
			pos++
			litLen++
		}
		buf.WriteByte(byte(litLen))
		buf.Write(plane[litStart : litStart+litLen])
	}
}
