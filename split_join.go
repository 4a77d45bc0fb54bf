package hdrify

import "github.com/bhouston/hdrify-sub000/internal/codecerr"

// Split extracts the primary and gain-map JPEG images and the gain-map
// metadata from a JPEG-R container (spec §4.10).
func Split(data []byte) (primaryJPEG []byte, gainmapJPEG []byte, meta GainMapMetadata, err error) {
	ranges, err := scanJPEGs(data)
	if err != nil {
		return nil, nil, GainMapMetadata{}, err
	}
	if len(ranges) < 2 {
		return nil, nil, GainMapMetadata{}, codecerr.New(codecerr.GainMapMissing, "gain map image not found")
	}
	primaryJPEG = append([]byte(nil), data[ranges[0][0]:ranges[0][1]]...)
	gainmapJPEG = append([]byte(nil), data[ranges[1][0]:ranges[1][1]]...)

	app1, _, err := extractAppSegments(gainmapJPEG)
	if err != nil {
		return nil, nil, GainMapMetadata{}, err
	}
	xmp := findXMP(app1)
	if xmp == nil {
		return nil, nil, GainMapMetadata{}, codecerr.New(codecerr.GainMapMissing, "Not a valid JPEG with gain map: missing gain map metadata")
	}
	m, err := parseGainmapXMP(xmp)
	if err != nil {
		return nil, nil, GainMapMetadata{}, err
	}
	return primaryJPEG, gainmapJPEG, *m, nil
}

// SplitWithSegments extracts primary/gain-map JPEGs, metadata, and the
// raw XMP segments carrying it, for callers that need to round-trip
// exact container XML.
func SplitWithSegments(data []byte) (primaryJPEG []byte, gainmapJPEG []byte, meta GainMapMetadata, segs MetadataSegments, err error) {
	primaryJPEG, gainmapJPEG, meta, err = Split(data)
	if err != nil {
		return nil, nil, GainMapMetadata{}, MetadataSegments{}, err
	}
	hApp1, _, err := extractContainerHeaderSegments(data)
	if err != nil {
		return nil, nil, GainMapMetadata{}, MetadataSegments{}, err
	}
	segs.PrimaryXMP = findXMP(hApp1)
	gApp1, _, err := extractAppSegments(gainmapJPEG)
	if err != nil {
		return nil, nil, GainMapMetadata{}, MetadataSegments{}, err
	}
	segs.SecondaryXMP = findXMP(gApp1)
	return primaryJPEG, gainmapJPEG, meta, segs, nil
}

// Join assembles a JPEG-R container from a primary JPEG, a gain-map
// JPEG, and gain-map metadata (spec §4.9).
func Join(primaryJPEG, gainmapJPEG []byte, meta GainMapMetadata) ([]byte, error) {
	_, icc, err := extractExifAndIcc(primaryJPEG)
	if err != nil {
		icc = nil
	}
	return assembleJpegGainMap(primaryJPEG, gainmapJPEG, collectICC(icc), meta, FormatUltraHDR)
}

// JoinAdobeGainMap assembles a JPEG-R container using the adobe-gainmap
// variant layout: no MPF index, the two images located purely by
// SOI-scanning (spec §4.9's final paragraph).
func JoinAdobeGainMap(primaryJPEG, gainmapJPEG []byte, meta GainMapMetadata) ([]byte, error) {
	_, icc, err := extractExifAndIcc(primaryJPEG)
	if err != nil {
		icc = nil
	}
	return assembleJpegGainMap(primaryJPEG, gainmapJPEG, collectICC(icc), meta, FormatAdobeGainMap)
}
