package hdrify

// LinearColorSpace names the linear RGB working space HdrifyImage
// pixel data lives in.
type LinearColorSpace int

const (
	LinearRec709 LinearColorSpace = iota
	LinearP3
	LinearRec2020
)

func (s LinearColorSpace) String() string {
	switch s {
	case LinearRec709:
		return "linear-rec709"
	case LinearP3:
		return "linear-p3"
	case LinearRec2020:
		return "linear-rec2020"
	default:
		return "linear-rec709"
	}
}

// HdrifyImage is the canonical in-memory entity every reader produces
// and every writer consumes: linear RGBA float pixels, four values
// per pixel, row-major.
//
// Invariants: len(Data) == 4*Width*Height; every channel value is
// finite and >= 0; RGB values live in the linear light domain of
// ColorSpace; alpha is in [0, 1]. Data is exclusively owned by the
// image — readers allocate fresh buffers, encoders allocate the
// buffers they return, and pixel buffers are never shared mutably
// across components.
type HdrifyImage struct {
	Width      int
	Height     int
	Data       []float32
	ColorSpace LinearColorSpace
	Metadata   map[string]string
}

// At returns the RGBA value of the pixel at (x, y).
func (img *HdrifyImage) At(x, y int) (r, g, b, a float32) {
	i := (y*img.Width + x) * 4
	return img.Data[i], img.Data[i+1], img.Data[i+2], img.Data[i+3]
}

// Set assigns the RGBA value of the pixel at (x, y).
func (img *HdrifyImage) Set(x, y int, r, g, b, a float32) {
	i := (y*img.Width + x) * 4
	img.Data[i], img.Data[i+1], img.Data[i+2], img.Data[i+3] = r, g, b, a
}

// Chromaticities are the CIE xy coordinates of an RGB color space's
// red/green/blue primaries and white point.
type Chromaticities struct {
	RedX, RedY     float32
	GreenX, GreenY float32
	BlueX, BlueY   float32
	WhiteX, WhiteY float32
}

// Rec709Chromaticities, P3Chromaticities and Rec2020Chromaticities are
// the canonical primaries/white point for the three linear spaces this
// module supports.
var (
	Rec709Chromaticities = Chromaticities{
		RedX: 0.6400, RedY: 0.3300,
		GreenX: 0.3000, GreenY: 0.6000,
		BlueX: 0.1500, BlueY: 0.0600,
		WhiteX: 0.3127, WhiteY: 0.3290,
	}
	P3Chromaticities = Chromaticities{
		RedX: 0.6800, RedY: 0.3200,
		GreenX: 0.2650, GreenY: 0.6900,
		BlueX: 0.1500, BlueY: 0.0600,
		WhiteX: 0.3127, WhiteY: 0.3290,
	}
	Rec2020Chromaticities = Chromaticities{
		RedX: 0.7080, RedY: 0.2920,
		GreenX: 0.1700, GreenY: 0.7970,
		BlueX: 0.1310, BlueY: 0.0460,
		WhiteX: 0.3127, WhiteY: 0.3290,
	}
)

func chromaticitiesFor(cs LinearColorSpace) Chromaticities {
	switch cs {
	case LinearP3:
		return P3Chromaticities
	case LinearRec2020:
		return Rec2020Chromaticities
	default:
		return Rec709Chromaticities
	}
}

// Triplet is a per-channel (R, G, B) parameter. Callers supplying a
// scalar get it broadcast to all three channels; XMP serialization
// collapses a triplet back to a scalar when all three channels are
// equal.
type Triplet [3]float32

// Broadcast returns a Triplet with all three channels set to v.
func Broadcast(v float32) Triplet {
	return Triplet{v, v, v}
}

// Collapsed reports whether every channel of t is equal, and the
// shared value if so.
func (t Triplet) Collapsed() (float32, bool) {
	return t[0], t[0] == t[1] && t[1] == t[2]
}

// GainMapMetadata is the per-channel parameterization of a gain map
// relative to its SDR base: HDR = (SDR + offsetSdr) * 2^gainBoost -
// offsetHdr per channel, where gainBoost interpolates between
// gainMapMin and gainMapMax (both log2) by the decoded gain byte.
type GainMapMetadata struct {
	Gamma          Triplet
	OffsetSdr      Triplet
	OffsetHdr      Triplet
	GainMapMin     Triplet // log2
	GainMapMax     Triplet // log2
	HDRCapacityMin float32 // log2
	HDRCapacityMax float32 // log2
}

// EncodingResult is the output of EncodeGainMap: an sRGB-encoded SDR
// base image ready for direct JPEG embedding, plus its gain map and
// metadata.
type EncodingResult struct {
	Width    int
	Height   int
	SDR      []byte // RGBA8, sRGB-encoded
	GainMap  []byte // RGBA8, or one luma byte per pixel when GainGray; post-gamma
	GainGray bool   // true when GainMap is a single-channel (luma) map
	Metadata GainMapMetadata
}

// MetadataSegments holds raw APP payload bytes (including namespace
// prefix) for the primary/secondary XMP blocks of a JPEG-R container.
type MetadataSegments struct {
	PrimaryXMP   []byte
	SecondaryXMP []byte
}
