package hdrify

import "math"

// mat3 is a row-major 3x3 matrix.
type mat3 [9]float64

func (m mat3) mulVec(x, y, z float64) (float64, float64, float64) {
	return m[0]*x + m[1]*y + m[2]*z,
		m[3]*x + m[4]*y + m[5]*z,
		m[6]*x + m[7]*y + m[8]*z
}

func (m mat3) mul(o mat3) mat3 {
	var r mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += m[i*3+k] * o[k*3+j]
			}
			r[i*3+j] = s
		}
	}
	return r
}

func (m mat3) inverse() mat3 {
	a, b, c := m[0], m[1], m[2]
	d, e, f := m[3], m[4], m[5]
	g, h, i := m[6], m[7], m[8]

	A := e*i - f*h
	B := -(d*i - f*g)
	C := d*h - e*g
	det := a*A + b*B + c*C

	D := -(b*i - c*h)
	E := a*i - c*g
	F := -(a*h - b*g)
	G := b*f - c*e
	H := -(a*f - c*d)
	I := a*e - b*d

	inv := 1.0 / det
	return mat3{
		A * inv, D * inv, G * inv,
		B * inv, E * inv, H * inv,
		C * inv, F * inv, I * inv,
	}
}

// chromaticitiesToRgbXyz builds the 3x3 matrix that converts linear
// RGB (primaries + white point given by ch) to CIE XYZ, using
// Lindbloom's method: solve for the primary scale factors that make
// the white point map correctly, then scale the primary-chromaticity
// matrix columns by them.
func chromaticitiesToRgbXyz(ch Chromaticities) mat3 {
	xyzFromXy := func(x, y float32) (float64, float64, float64) {
		X := float64(x) / float64(y)
		Y := 1.0
		Z := (1 - float64(x) - float64(y)) / float64(y)
		return X, Y, Z
	}
	Xr, Yr, Zr := xyzFromXy(ch.RedX, ch.RedY)
	Xg, Yg, Zg := xyzFromXy(ch.GreenX, ch.GreenY)
	Xb, Yb, Zb := xyzFromXy(ch.BlueX, ch.BlueY)
	Xw, Yw, Zw := xyzFromXy(ch.WhiteX, ch.WhiteY)

	primaries := mat3{
		Xr, Xg, Xb,
		Yr, Yg, Yb,
		Zr, Zg, Zb,
	}
	sr, sg, sb := primaries.inverse().mulVec(Xw, Yw, Zw)

	return mat3{
		Xr * sr, Xg * sg, Xb * sb,
		Yr * sr, Yg * sg, Yb * sb,
		Zr * sr, Zg * sg, Zb * sb,
	}
}

// space3 caches the RGB->XYZ matrix for each of the three supported
// linear spaces, process-wide and read-only after init.
var space3 = [3]mat3{
	chromaticitiesToRgbXyz(Rec709Chromaticities),
	chromaticitiesToRgbXyz(P3Chromaticities),
	chromaticitiesToRgbXyz(Rec2020Chromaticities),
}

// linearToLinearCache holds the six precomputed non-identity
// conversion matrices between Rec.709/P3/Rec.2020.
var linearToLinearCache [3][3]*mat3

func init() {
	for from := 0; from < 3; from++ {
		for to := 0; to < 3; to++ {
			if from == to {
				continue
			}
			m := space3[to].inverse().mul(space3[from])
			linearToLinearCache[from][to] = &m
		}
	}
}

// linearToLinearMatrix returns the matrix converting linear RGB from
// one working space to another, or nil when from == to (caller skips
// the multiply).
func linearToLinearMatrix(from, to LinearColorSpace) *mat3 {
	if from == to {
		return nil
	}
	return linearToLinearCache[from][to]
}

// applyMatrixRGBA multiplies the RGB triplet of every pixel in a
// stride-4 buffer by m, in place; alpha passes through unchanged.
func applyMatrixRGBA(data []float32, m *mat3) {
	if m == nil {
		return
	}
	for i := 0; i+3 < len(data); i += 4 {
		r, g, b := float64(data[i]), float64(data[i+1]), float64(data[i+2])
		nr, ng, nb := m.mulVec(r, g, b)
		data[i] = float32(nr)
		data[i+1] = float32(ng)
		data[i+2] = float32(nb)
	}
}

const srgbKnee = 0.04045
const srgbLinearKnee = 0.0031308

// sRGBToLinear applies the IEC 61966-2-1 EOTF to a single channel
// value in [0, 1].
func sRGBToLinear(x float32) float32 {
	if x <= srgbKnee {
		return x / 12.92
	}
	return float32(math.Pow((float64(x)+0.055)/1.055, 2.4))
}

// linearToSRGB applies the IEC 61966-2-1 OETF to a single channel
// value in [0, 1].
func linearToSRGB(x float32) float32 {
	if x <= srgbLinearKnee {
		return x * 12.92
	}
	return float32(1.055*math.Pow(float64(x), 1/2.4) - 0.055)
}
