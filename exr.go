package hdrify

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
	"github.com/bhouston/hdrify-sub000/internal/hlog"
)

// blockHeightFor returns the scanlines-per-block for a compression
// kind, per spec's block height table.
func blockHeightFor(compression byte) int {
	switch compression {
	case CompressionZIP:
		return 16
	case CompressionPIZ:
		return 32
	case CompressionPXR24:
		return 16
	default: // none, RLE, ZIPS
		return 1
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ReadExr decodes an OpenEXR single-part scanline file into a
// HdrifyImage.
func ReadExr(data []byte) (*HdrifyImage, error) {
	header, bodyStart, err := parseEXRHeader(data)
	if err != nil {
		return nil, err
	}
	width := header.DataWindow.width()
	height := header.DataWindow.height()
	if width <= 0 || height <= 0 {
		return nil, codecerr.New(codecerr.MalformedHeader, "EXR dataWindow has non-positive dimensions")
	}

	blockHeight := blockHeightFor(header.Compression)
	blockCount := ceilDiv(height, blockHeight)
	hlog.L.Debug().
		Int("width", width).
		Int("height", height).
		Uint8("compression", header.Compression).
		Int("blockCount", blockCount).
		Msg("exr header parsed")

	r := &byteReader{buf: data, pos: bodyStart}
	offsets := make([]uint64, blockCount)
	for i := range offsets {
		off, err := r.u64()
		if err != nil {
			return nil, codecerr.Wrap(codecerr.Truncated, err, "truncated EXR offset table")
		}
		offsets[i] = off
	}

	if blockCount >= 2 && blockHeight > 1 {
		y0, ok0 := peekFirstLineY(data, offsets[0])
		y1, ok1 := peekFirstLineY(data, offsets[1])
		if ok0 && ok1 && y1-y0 == 1 {
			blockHeight = 1
			want := height
			if want > len(offsets) {
				extra := want - len(offsets)
				for i := 0; i < extra; i++ {
					off, err := r.u64()
					if err != nil {
						break
					}
					offsets = append(offsets, off)
				}
			}
			if len(offsets) > height {
				offsets = offsets[:height]
			}
			blockCount = len(offsets)
		}
	}

	rIdx, gIdx, bIdx, aIdx, err := mapChannelRoles(header)
	if err != nil {
		return nil, err
	}

	img := &HdrifyImage{
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*4),
	}
	for i := 3; i < len(img.Data); i += 4 {
		img.Data[i] = 1
	}

	for _, off := range offsets {
		if off == 0 {
			continue
		}
		pos, err := resolveBlockOffset(off, data, bodyStart, blockCount)
		if err != nil {
			return nil, err
		}
		br := &byteReader{buf: data, pos: pos}
		firstLineY, err := br.i32()
		if err != nil {
			return nil, codecerr.Wrap(codecerr.Truncated, err, "truncated EXR block header")
		}
		dataSize, err := br.u32()
		if err != nil {
			return nil, codecerr.Wrap(codecerr.Truncated, err, "truncated EXR block header")
		}
		if dataSize == 0 || int(dataSize) > br.remaining() {
			return nil, codecerr.New(codecerr.MalformedHeader, "EXR block dataSize %d invalid", dataSize)
		}
		raw, err := br.bytes(int(dataSize))
		if err != nil {
			return nil, err
		}

		startY := int(firstLineY) - int(header.DataWindow.YMin)
		if startY < 0 || startY >= height {
			return nil, codecerr.New(codecerr.MalformedHeader, "EXR block firstLineY out of range")
		}
		lineCount := blockHeight
		if startY+lineCount > height {
			lineCount = height - startY
		}

		planes, err := decodeExrBlock(header, raw, width, lineCount)
		if err != nil {
			return nil, err
		}
		hlog.L.Trace().
			Uint64("offset", off).
			Int("firstLineY", startY).
			Int("lineCount", lineCount).
			Uint32("dataSize", dataSize).
			Msg("exr block decoded")
		writeBlockIntoImage(img, planes, rIdx, gIdx, bIdx, aIdx, startY, width, lineCount)
	}

	if err := ensureNonNegativeFinite(img.Data, false); err != nil {
		return nil, err
	}
	img.ColorSpace = colorSpaceFromChromaticities(header.Chromaticities)
	return img, nil
}

func peekFirstLineY(data []byte, offset uint64) (int32, bool) {
	if offset+4 > uint64(len(data)) {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(data[offset:])), true
}

func resolveBlockOffset(off uint64, data []byte, bodyStart, blockCount int) (int, error) {
	headerFloor := uint64(bodyStart + 8*blockCount)
	if off < headerFloor || off >= uint64(len(data)) {
		low := off & 0xFFFFFFFF
		if low >= headerFloor && low < uint64(len(data)) {
			return int(low), nil
		}
		return 0, codecerr.New(codecerr.MalformedHeader, "EXR block offset %d out of range", off)
	}
	return int(off), nil
}

// mapChannelRoles locates the R, G, B (required) and A (optional,
// defaults to 1.0) channel indices by case-insensitive name or alias.
// PXR24 files with exactly three channels are remapped positionally as
// B, G, R (header indices 0, 1, 2) without looking at the channel
// names, per the observed writer convention spec documents as an open
// question.
func mapChannelRoles(h *exrHeader) (rIdx, gIdx, bIdx, aIdx int, err error) {
	rIdx, gIdx, bIdx, aIdx = -1, -1, -1, -1
	if h.Compression == CompressionPXR24 && len(h.Channels) == 3 {
		return 2, 1, 0, -1, nil
	}
	for i, c := range h.Channels {
		switch strings.ToLower(c.Name) {
		case "r", "red":
			rIdx = i
		case "g", "green":
			gIdx = i
		case "b", "blue":
			bIdx = i
		case "a", "alpha":
			aIdx = i
		}
	}
	if rIdx < 0 || gIdx < 0 || bIdx < 0 {
		return 0, 0, 0, 0, codecerr.New(codecerr.ChannelMismatch, "EXR channels missing required R/G/B")
	}
	return rIdx, gIdx, bIdx, aIdx, nil
}

func colorSpaceFromChromaticities(c *Chromaticities) LinearColorSpace {
	if c == nil {
		return LinearRec709
	}
	candidates := []struct {
		cs LinearColorSpace
		c  Chromaticities
	}{
		{LinearRec709, Rec709Chromaticities},
		{LinearP3, P3Chromaticities},
		{LinearRec2020, Rec2020Chromaticities},
	}
	for _, cand := range candidates {
		if chromaticitiesClose(*c, cand.c) {
			return cand.cs
		}
	}
	return LinearRec709
}

func chromaticitiesClose(a, b Chromaticities) bool {
	const eps = 1e-3
	near := func(x, y float32) bool {
		d := x - y
		if d < 0 {
			d = -d
		}
		return d < eps
	}
	return near(a.RedX, b.RedX) && near(a.RedY, b.RedY) &&
		near(a.GreenX, b.GreenX) && near(a.GreenY, b.GreenY) &&
		near(a.BlueX, b.BlueX) && near(a.BlueY, b.BlueY) &&
		near(a.WhiteX, b.WhiteX) && near(a.WhiteY, b.WhiteY)
}

func channelSampleSize(pixelType int32) int {
	if pixelType == exrPixelHalf {
		return 2
	}
	return 4
}

func decodeSample(pixelType int32, b []byte) float32 {
	switch pixelType {
	case exrPixelHalf:
		return decodeHalf(binary.LittleEndian.Uint16(b))
	case exrPixelFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	default: // uint
		return float32(binary.LittleEndian.Uint32(b))
	}
}

// decodeExrBlock decompresses raw per the header's compression and
// parses the result into one []float32 plane per channel, each
// width*lineCount samples, row-major.
func decodeExrBlock(h *exrHeader, raw []byte, width, lineCount int) ([][]float32, error) {
	channels := h.Channels
	switch h.Compression {
	case CompressionNone:
		expected := 0
		for _, c := range channels {
			expected += width * lineCount * channelSampleSize(c.PixelType)
		}
		if len(raw) != expected {
			return nil, codecerr.New(codecerr.DecodeFault, "uncompressed EXR block has wrong size: got %d want %d", len(raw), expected)
		}
		planes := make([][]float32, len(channels))
		for ci := range planes {
			planes[ci] = make([]float32, width*lineCount)
		}
		pos := 0
		for row := 0; row < lineCount; row++ {
			for x := 0; x < width; x++ {
				for ci, c := range channels {
					n := channelSampleSize(c.PixelType)
					planes[ci][row*width+x] = decodeSample(c.PixelType, raw[pos:pos+n])
					pos += n
				}
			}
		}
		return planes, nil

	case CompressionRLE, CompressionZIPS, CompressionZIP:
		expected := 0
		for _, c := range channels {
			expected += width * lineCount * channelSampleSize(c.PixelType)
		}
		var plain []byte
		var err error
		if h.Compression == CompressionRLE {
			plain, err = rleDecompress(raw)
			if err != nil {
				return nil, err
			}
			if len(plain) != expected {
				return nil, codecerr.New(codecerr.DecodeFault, "RLE EXR block has wrong size: got %d want %d", len(plain), expected)
			}
			predictorDecode(plain)
			plain = reorderRead(plain)
		} else {
			plain, err = zipDecompress(raw, expected)
			if err != nil {
				return nil, err
			}
		}
		return planarBytesToFloatPlanes(plain, channels, width, lineCount), nil

	case CompressionPXR24:
		expected := 0
		for _, c := range channels {
			expected += width * lineCount * pxr24SampleSize(c.PixelType)
		}
		plain, err := inflate(raw)
		if err != nil {
			return nil, codecerr.Wrap(codecerr.DecodeFault, err, "PXR24: inflate failed")
		}
		if len(plain) != expected {
			return nil, codecerr.New(codecerr.DecodeFault, "PXR24: inflated size %d does not match expected %d", len(plain), expected)
		}
		planes := make([][]float32, len(channels))
		for ci := range planes {
			planes[ci] = make([]float32, width*lineCount)
		}
		pos := 0
		for row := 0; row < lineCount; row++ {
			for ci, c := range channels {
				n := pxr24SampleSize(c.PixelType)
				seg := plain[pos : pos+width*n]
				pos += width * n
				samples, err := pxr24DecodeSegment(seg, width, n)
				if err != nil {
					return nil, err
				}
				for x := 0; x < width; x++ {
					half, f, u := pxr24Dequantize(c.PixelType, samples[x])
					switch c.PixelType {
					case exrPixelHalf:
						planes[ci][row*width+x] = decodeHalf(half)
					case exrPixelFloat:
						planes[ci][row*width+x] = f
					default:
						planes[ci][row*width+x] = float32(u)
					}
				}
			}
		}
		return planes, nil

	case CompressionPIZ:
		planar, err := pizDecompress(raw, width, lineCount, len(channels))
		if err != nil {
			return nil, err
		}
		planeSize := width * lineCount
		planes := make([][]float32, len(channels))
		for ci := range planes {
			planes[ci] = make([]float32, planeSize)
			for i := 0; i < planeSize; i++ {
				planes[ci][i] = decodeHalf(planar[ci*planeSize+i])
			}
		}
		return planes, nil

	default:
		return nil, codecerr.New(codecerr.UnsupportedVariant, "unsupported EXR compression %d", h.Compression)
	}
}

// planarBytesToFloatPlanes parses the channel-major, line-major byte
// stream RLE/ZIP/ZIPS decompress into per-channel float planes.
func planarBytesToFloatPlanes(plain []byte, channels []exrChannel, width, lineCount int) [][]float32 {
	planes := make([][]float32, len(channels))
	for ci := range planes {
		planes[ci] = make([]float32, width*lineCount)
	}
	pos := 0
	for row := 0; row < lineCount; row++ {
		for ci, c := range channels {
			n := channelSampleSize(c.PixelType)
			for x := 0; x < width; x++ {
				planes[ci][row*width+x] = decodeSample(c.PixelType, plain[pos:pos+n])
				pos += n
			}
		}
	}
	return planes
}

func writeBlockIntoImage(img *HdrifyImage, planes [][]float32, rIdx, gIdx, bIdx, aIdx, startY, width, lineCount int) {
	for row := 0; row < lineCount; row++ {
		y := startY + row
		for x := 0; x < width; x++ {
			si := row*width + x
			r := planes[rIdx][si]
			g := planes[gIdx][si]
			b := planes[bIdx][si]
			a := float32(1)
			if aIdx >= 0 {
				a = planes[aIdx][si]
			}
			img.Set(x, y, r, g, b, a)
		}
	}
}

// WriteExr encodes img as a single-part scanline OpenEXR file using
// the given compression (one of the Compression* constants).
func WriteExr(img *HdrifyImage, compression byte) ([]byte, error) {
	if err := ensureNonNegativeFinite(img.Data, false); err != nil {
		return nil, err
	}
	width, height := img.Width, img.Height
	pixelType := int32(exrPixelFloat)
	if compression != CompressionNone {
		pixelType = exrPixelHalf
	}

	names := []string{"A", "B", "G", "R"} // lexicographic order
	sort.Strings(names)
	channels := make([]exrChannel, len(names))
	for i, n := range names {
		channels[i] = exrChannel{Name: n, PixelType: pixelType, XSampling: 1, YSampling: 1}
	}
	chromas := chromaticitiesFor(img.ColorSpace)

	header := &exrHeader{
		DisplayWindow:    box2i{0, 0, int32(width - 1), int32(height - 1)},
		DataWindow:       box2i{0, 0, int32(width - 1), int32(height - 1)},
		Channels:         channels,
		Compression:      compression,
		Chromaticities:   &chromas,
		LineOrder:        0,
		PixelAspectRatio: 1,
	}

	hw := &byteWriter{}
	writeEXRHeader(hw, header)
	bodyStart := len(hw.buf)

	blockHeight := blockHeightFor(compression)
	blockCount := ceilDiv(height, blockHeight)
	hlog.L.Debug().
		Int("width", width).
		Int("height", height).
		Uint8("compression", compression).
		Int("blockCount", blockCount).
		Msg("exr header written")

	offsetTablePos := bodyStart
	blockBodies := make([][]byte, blockCount)
	firstLines := make([]int32, blockCount)
	for bi := 0; bi < blockCount; bi++ {
		firstY := bi * blockHeight
		lineCount := blockHeight
		if firstY+lineCount > height {
			lineCount = height - firstY
		}
		firstLines[bi] = int32(firstY)
		body, err := encodeExrBlock(img, channels, pixelType, compression, firstY, width, lineCount)
		if err != nil {
			return nil, err
		}
		blockBodies[bi] = body
		hlog.L.Trace().
			Int("firstLineY", firstY).
			Int("lineCount", lineCount).
			Int("encodedSize", len(body)).
			Msg("exr block encoded")
	}

	bodyOffset := offsetTablePos + 8*blockCount
	offsets := make([]uint64, blockCount)
	cursor := bodyOffset
	for bi := 0; bi < blockCount; bi++ {
		offsets[bi] = uint64(cursor)
		cursor += 4 + 4 + len(blockBodies[bi])
	}

	out := &byteWriter{buf: append([]byte(nil), hw.buf...)}
	for _, off := range offsets {
		out.u64(off)
	}
	for bi := 0; bi < blockCount; bi++ {
		out.i32(firstLines[bi])
		out.u32(uint32(len(blockBodies[bi])))
		out.bytes(blockBodies[bi])
	}
	return out.buf, nil
}

func encodeExrBlock(img *HdrifyImage, channels []exrChannel, pixelType int32, compression byte, firstY, width, lineCount int) ([]byte, error) {
	sample := func(ci, x, y int) float32 {
		r, g, b, a := img.At(x, y)
		switch channels[ci].Name {
		case "R":
			return r
		case "G":
			return g
		case "B":
			return b
		default:
			return a
		}
	}
	serialize := func(v float32) []byte {
		if pixelType == exrPixelHalf {
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], encodeHalf(v))
			return b[:]
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
		return b[:]
	}

	switch compression {
	case CompressionNone:
		var plain []byte
		for row := 0; row < lineCount; row++ {
			y := firstY + row
			for x := 0; x < width; x++ {
				for ci := range channels {
					plain = append(plain, serialize(sample(ci, x, y))...)
				}
			}
		}
		return plain, nil

	case CompressionRLE, CompressionZIPS, CompressionZIP:
		var plain []byte
		for row := 0; row < lineCount; row++ {
			y := firstY + row
			for ci := range channels {
				for x := 0; x < width; x++ {
					plain = append(plain, serialize(sample(ci, x, y))...)
				}
			}
		}
		if compression == CompressionRLE {
			shuffled := reorderWrite(plain)
			predictorEncode(shuffled)
			return rleCompress(shuffled), nil
		}
		return zipCompress(plain)

	case CompressionPXR24:
		var segments []byte
		for row := 0; row < lineCount; row++ {
			y := firstY + row
			for ci, c := range channels {
				samples := make([][]byte, width)
				for x := 0; x < width; x++ {
					v := sample(ci, x, y)
					var half uint16
					if c.PixelType == exrPixelHalf {
						half = encodeHalf(v)
					}
					samples[x] = pxr24Quantize(c.PixelType, half, v, uint32(v))
				}
				segments = append(segments, pxr24EncodeSegment(samples, pxr24SampleSize(c.PixelType))...)
			}
		}
		return deflate(segments)

	case CompressionPIZ:
		planeSize := width * lineCount
		planar := make([]uint16, planeSize*len(channels))
		for ci := range channels {
			for row := 0; row < lineCount; row++ {
				y := firstY + row
				for x := 0; x < width; x++ {
					planar[ci*planeSize+row*width+x] = encodeHalf(sample(ci, x, y))
				}
			}
		}
		return pizCompress(planar, width, lineCount, len(channels))

	default:
		return nil, codecerr.New(codecerr.UnsupportedVariant, "unsupported EXR compression %d", compression)
	}
}
