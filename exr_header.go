package hdrify

import (
	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

const exrMagic = 0x01312f76 // "20000630" read little-endian, per spec §4.5/§6

const (
	exrVersionTiled      = 0x200
	exrVersionDeep       = 0x800
	exrVersionMultipart  = 0x1000
	exrVersionNumberMask = 0xff
)

// EXR pixel types.
const (
	exrPixelUint  = 0
	exrPixelHalf  = 1
	exrPixelFloat = 2
)

// EXR compression bytes.
const (
	CompressionNone  = 0
	CompressionRLE   = 1
	CompressionZIPS  = 2
	CompressionZIP   = 3
	CompressionPIZ   = 4
	CompressionPXR24 = 5
)

func compressionName(c byte) string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionRLE:
		return "RLE"
	case CompressionZIPS:
		return "ZIPS"
	case CompressionZIP:
		return "ZIP"
	case CompressionPIZ:
		return "PIZ"
	case CompressionPXR24:
		return "PXR24"
	default:
		return "unknown"
	}
}

// box2i is an inclusive pixel-coordinate rectangle.
type box2i struct {
	XMin, YMin, XMax, YMax int32
}

func (b box2i) width() int  { return int(b.XMax-b.XMin) + 1 }
func (b box2i) height() int { return int(b.YMax-b.YMin) + 1 }

// exrChannel is one entry of a chlist attribute.
type exrChannel struct {
	Name      string
	PixelType int32
	PLinear   byte
	XSampling int32
	YSampling int32
}

// exrHeader is the decoded set of EXR header attributes this reader
// understands.
type exrHeader struct {
	DisplayWindow   box2i
	DataWindow      box2i
	Channels        []exrChannel
	Compression     byte
	Chromaticities  *Chromaticities
	LineOrder       byte
	PixelAspectRatio float32
}

// parseEXRHeader validates the magic/version and reads the attribute
// stream, returning the decoded header and the byte offset
// immediately after the header terminator.
func parseEXRHeader(data []byte) (*exrHeader, int, error) {
	r := newByteReader(data)
	magic, err := r.u32()
	if err != nil {
		return nil, 0, codecerr.New(codecerr.InvalidMagic, "Invalid EXR file: buffer too short for magic number")
	}
	if magic != exrMagic {
		return nil, 0, codecerr.New(codecerr.InvalidMagic, "Invalid EXR file: incorrect magic number 0x%08x", magic)
	}
	version, err := r.u32()
	if err != nil {
		return nil, 0, codecerr.New(codecerr.Truncated, "truncated EXR version field")
	}
	if version&exrVersionTiled != 0 || version&exrVersionDeep != 0 || version&exrVersionMultipart != 0 {
		return nil, 0, codecerr.New(codecerr.UnsupportedVariant, "Multi-part, tiled, and deep data not supported")
	}
	versionNumber := version & exrVersionNumberMask
	if versionNumber < 1 || versionNumber > 2 {
		return nil, 0, codecerr.New(codecerr.UnsupportedVariant, "unsupported EXR version number %d", versionNumber)
	}

	h := &exrHeader{PixelAspectRatio: 1, LineOrder: 0}
	haveDisplay, haveData, haveChannels := false, false, false

	for {
		name, err := r.nullString()
		if err != nil {
			return nil, 0, err
		}
		if name == "" {
			break
		}
		typ, err := r.nullString()
		if err != nil {
			return nil, 0, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, 0, err
		}
		valStart := r.pos
		if err := r.skip(int(size)); err != nil {
			return nil, 0, err
		}
		val := data[valStart : valStart+int(size)]
		vr := newByteReader(val)

		switch {
		case name == "displayWindow" && typ == "box2i":
			b, err := readBox2i(vr)
			if err != nil {
				return nil, 0, err
			}
			h.DisplayWindow = b
			haveDisplay = true
		case name == "dataWindow" && typ == "box2i":
			b, err := readBox2i(vr)
			if err != nil {
				return nil, 0, err
			}
			h.DataWindow = b
			haveData = true
		case name == "channels" && typ == "chlist":
			chans, err := readChannelList(vr)
			if err != nil {
				return nil, 0, err
			}
			h.Channels = chans
			haveChannels = true
		case name == "compression" && typ == "compression":
			c, err := vr.u8()
			if err != nil {
				return nil, 0, err
			}
			if c > CompressionPXR24 {
				return nil, 0, codecerr.New(codecerr.UnsupportedVariant,
					"Unsupported EXR compression: %d. This reader supports: none, RLE, ZIPS, ZIP, PIZ, PXR24", c)
			}
			h.Compression = c
		case name == "chromaticities" && typ == "chromaticities":
			var c Chromaticities
			vals := [8]*float32{&c.RedX, &c.RedY, &c.GreenX, &c.GreenY, &c.BlueX, &c.BlueY, &c.WhiteX, &c.WhiteY}
			for _, p := range vals {
				f, err := vr.f32()
				if err != nil {
					return nil, 0, err
				}
				*p = f
			}
			h.Chromaticities = &c
		case name == "lineOrder" && typ == "lineOrder":
			lo, err := vr.u8()
			if err != nil {
				return nil, 0, err
			}
			h.LineOrder = lo
		case name == "pixelAspectRatio" && typ == "float":
			f, err := vr.f32()
			if err != nil {
				return nil, 0, err
			}
			h.PixelAspectRatio = f
		default:
			// unrecognized or uninteresting attribute: already
			// consumed by the skip above.
		}
	}

	if !haveDisplay || !haveData || !haveChannels {
		return nil, 0, codecerr.New(codecerr.MalformedHeader, "missing required header attributes")
	}
	if h.DataWindow.XMin > h.DataWindow.XMax || h.DataWindow.YMin > h.DataWindow.YMax {
		return nil, 0, codecerr.New(codecerr.MalformedHeader, "dataWindow has xMin>xMax or yMin>yMax")
	}
	for _, c := range h.Channels {
		if c.XSampling != 1 || c.YSampling != 1 {
			return nil, 0, codecerr.New(codecerr.UnsupportedVariant, "channel %q has subsampling, which is not supported", c.Name)
		}
		if c.PixelType != exrPixelUint && c.PixelType != exrPixelHalf && c.PixelType != exrPixelFloat {
			return nil, 0, codecerr.New(codecerr.MalformedHeader, "channel %q has unknown pixel type %d", c.Name, c.PixelType)
		}
	}
	return h, r.pos, nil
}

func readBox2i(r *byteReader) (box2i, error) {
	xmin, err := r.i32()
	if err != nil {
		return box2i{}, err
	}
	ymin, err := r.i32()
	if err != nil {
		return box2i{}, err
	}
	xmax, err := r.i32()
	if err != nil {
		return box2i{}, err
	}
	ymax, err := r.i32()
	if err != nil {
		return box2i{}, err
	}
	return box2i{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}, nil
}

func readChannelList(r *byteReader) ([]exrChannel, error) {
	var chans []exrChannel
	for {
		name, err := r.nullString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		pixelType, err := r.i32()
		if err != nil {
			return nil, err
		}
		pLinear, err := r.u8()
		if err != nil {
			return nil, err
		}
		if err := r.skip(3); err != nil {
			return nil, err
		}
		xs, err := r.i32()
		if err != nil {
			return nil, err
		}
		ys, err := r.i32()
		if err != nil {
			return nil, err
		}
		chans = append(chans, exrChannel{Name: name, PixelType: pixelType, PLinear: pLinear, XSampling: xs, YSampling: ys})
	}
	return chans, nil
}

// writeEXRHeader emits the attribute stream for a single-part
// scanline EXR file, sorted/shaped the way WriteExr needs it.
func writeEXRHeader(w *byteWriter, h *exrHeader) {
	w.u32(exrMagic)
	w.u32(2) // version 2, single-part scanline, no flag bits set

	writeAttrHeader := func(name, typ string, size uint32) {
		w.nullString(name)
		w.nullString(typ)
		w.u32(size)
	}

	writeAttrHeader("displayWindow", "box2i", 16)
	writeBox2i(w, h.DisplayWindow)
	writeAttrHeader("dataWindow", "box2i", 16)
	writeBox2i(w, h.DataWindow)

	chlistSize := uint32(1)
	for _, c := range h.Channels {
		chlistSize += uint32(len(c.Name)) + 1 + 4 + 1 + 3 + 4 + 4
	}
	writeAttrHeader("channels", "chlist", chlistSize)
	for _, c := range h.Channels {
		w.nullString(c.Name)
		w.i32(c.PixelType)
		w.u8(c.PLinear)
		w.u8(0)
		w.u8(0)
		w.u8(0)
		w.i32(c.XSampling)
		w.i32(c.YSampling)
	}
	w.u8(0) // empty name terminates chlist

	writeAttrHeader("compression", "compression", 1)
	w.u8(h.Compression)

	writeAttrHeader("lineOrder", "lineOrder", 1)
	w.u8(h.LineOrder)

	writeAttrHeader("pixelAspectRatio", "float", 4)
	w.f32(h.PixelAspectRatio)

	writeAttrHeader("screenWindowCenter", "v2f", 8)
	w.f32(0)
	w.f32(0)

	writeAttrHeader("screenWindowWidth", "float", 4)
	w.f32(1)

	if h.Chromaticities != nil {
		writeAttrHeader("chromaticities", "chromaticities", 32)
		c := h.Chromaticities
		for _, v := range []float32{c.RedX, c.RedY, c.GreenX, c.GreenY, c.BlueX, c.BlueY, c.WhiteX, c.WhiteY} {
			w.f32(v)
		}
	}

	w.u8(0) // empty name terminates the header attribute list

	// Single-part EXR omits any further trailing null between the
	// header and the offset table (unlike multi-part, which adds one
	// more to terminate the list of part headers); the reader above
	// only ever consumes the one terminator above per header.
}

func writeBox2i(w *byteWriter, b box2i) {
	w.i32(b.XMin)
	w.i32(b.YMin)
	w.i32(b.XMax)
	w.i32(b.YMax)
}
