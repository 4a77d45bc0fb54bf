package hdrify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bhouston/hdrify-sub000/internal/codecerr"
)

const hdrgmVersion = "1.0"

var (
	reGainMapMin    = regexp.MustCompile(`hdrgm:GainMapMin="([^"]+)"`)
	reGainMapMax    = regexp.MustCompile(`hdrgm:GainMapMax="([^"]+)"`)
	reGamma         = regexp.MustCompile(`hdrgm:Gamma="([^"]+)"`)
	reOffsetSDR     = regexp.MustCompile(`hdrgm:OffsetSDR="([^"]+)"`)
	reOffsetHDR     = regexp.MustCompile(`hdrgm:OffsetHDR="([^"]+)"`)
	reHDRCapMin     = regexp.MustCompile(`hdrgm:HDRCapacityMin="([^"]+)"`)
	reHDRCapMax     = regexp.MustCompile(`hdrgm:HDRCapacityMax="([^"]+)"`)
	reGainMapMinSeq = regexp.MustCompile(`(?s)<hdrgm:GainMapMin>.*?<rdf:Seq>(.*?)</rdf:Seq>.*?</hdrgm:GainMapMin>`)
	reGainMapMaxSeq = regexp.MustCompile(`(?s)<hdrgm:GainMapMax>.*?<rdf:Seq>(.*?)</rdf:Seq>.*?</hdrgm:GainMapMax>`)
	reGammaSeq      = regexp.MustCompile(`(?s)<hdrgm:Gamma>.*?<rdf:Seq>(.*?)</rdf:Seq>.*?</hdrgm:Gamma>`)
	reOffsetSDRSeq  = regexp.MustCompile(`(?s)<hdrgm:OffsetSDR>.*?<rdf:Seq>(.*?)</rdf:Seq>.*?</hdrgm:OffsetSDR>`)
	reOffsetHDRSeq  = regexp.MustCompile(`(?s)<hdrgm:OffsetHDR>.*?<rdf:Seq>(.*?)</rdf:Seq>.*?</hdrgm:OffsetHDR>`)
	reRdfLi         = regexp.MustCompile(`(?s)<rdf:li>([^<]+)</rdf:li>`)
	reHasHdrgm      = regexp.MustCompile(`hdrgm:`)
)

func getFloatAttr(xml string, re *regexp.Regexp) (float32, bool) {
	m := re.FindStringSubmatch(xml)
	if len(m) != 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 32)
	if err != nil {
		return 0, false
	}
	return float32(v), true
}

func getSeqTriplet(xml string, re *regexp.Regexp) (Triplet, bool) {
	m := re.FindStringSubmatch(xml)
	if len(m) != 2 {
		return Triplet{}, false
	}
	items := reRdfLi.FindAllStringSubmatch(m[1], -1)
	var t Triplet
	for i, it := range items {
		if i >= 3 || len(it) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(it[1]), 32)
		if err != nil {
			return Triplet{}, false
		}
		t[i] = float32(v)
	}
	if len(items) == 0 {
		return Triplet{}, false
	}
	return t, true
}

// parseTriplet reads an hdrgm attribute that may be serialized either
// as a scalar attribute or, when the three channels differ, as an
// rdf:Seq element.
func parseTriplet(xml string, attrRe, seqRe *regexp.Regexp, fallback Triplet) Triplet {
	if v, ok := getFloatAttr(xml, attrRe); ok {
		return Broadcast(v)
	}
	if t, ok := getSeqTriplet(xml, seqRe); ok {
		return t
	}
	return fallback
}

// isGainMapXMPBlock reports whether an x:xmpmeta block is the gain-map
// descriptor: it must carry at least one hdrgm:* attribute and
// provide hdrgm:HDRCapacityMax, per spec §4.10.
func isGainMapXMPBlock(xml string) bool {
	return reHasHdrgm.MatchString(xml) && reHDRCapMax.MatchString(xml)
}

// parseGainmapXMP extracts GainMapMetadata from the secondary XMP
// block's raw APP1 payload (namespace-prefixed, null-terminated).
func parseGainmapXMP(app1 []byte) (*GainMapMetadata, error) {
	prefix := []byte(xmpNamespace + "\x00")
	if !strings.HasPrefix(string(app1), string(prefix)) {
		return nil, codecerr.New(codecerr.MalformedHeader, "xmp namespace mismatch")
	}
	xml := string(app1[len(prefix):])
	if !isGainMapXMPBlock(xml) {
		return nil, codecerr.New(codecerr.GainMapMissing, "Not a valid JPEG with gain map: missing gain map metadata")
	}

	maxCap, ok := getFloatAttr(xml, reHDRCapMax)
	if !ok {
		return nil, codecerr.New(codecerr.GainMapMissing, "Not a valid JPEG with gain map: missing gain map metadata")
	}
	minCap, _ := getFloatAttr(xml, reHDRCapMin)

	meta := &GainMapMetadata{
		GainMapMin:     parseTriplet(xml, reGainMapMin, reGainMapMinSeq, Broadcast(0)),
		GainMapMax:     parseTriplet(xml, reGainMapMax, reGainMapMaxSeq, Broadcast(1)),
		Gamma:          parseTriplet(xml, reGamma, reGammaSeq, Broadcast(1)),
		OffsetSdr:      parseTriplet(xml, reOffsetSDR, reOffsetSDRSeq, Broadcast(1.0/64)),
		OffsetHdr:      parseTriplet(xml, reOffsetHDR, reOffsetHDRSeq, Broadcast(1.0/64)),
		HDRCapacityMin: minCap,
		HDRCapacityMax: maxCap,
	}
	return meta, nil
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 6, 32)
}

// tripletAttrOrElem renders a GainMapMetadata field either as a plain
// XML attribute (all channels equal) or a child rdf:Seq element.
func tripletAttrOrElem(name string, t Triplet) (attr, elem string) {
	if v, ok := t.Collapsed(); ok {
		return fmt.Sprintf(` hdrgm:%s="%s"`, name, formatFloat(v)), ""
	}
	return "", fmt.Sprintf(`<hdrgm:%s><rdf:Seq><rdf:li>%s</rdf:li><rdf:li>%s</rdf:li><rdf:li>%s</rdf:li></rdf:Seq></hdrgm:%s>`,
		name, formatFloat(t[0]), formatFloat(t[1]), formatFloat(t[2]), name)
}

// buildGainmapXMP renders the secondary XMP block's hdrgm: attributes
// per spec §4.9 step 6.
func buildGainmapXMP(meta GainMapMetadata) []byte {
	var attrs, elems strings.Builder
	for _, f := range []struct {
		name string
		t    Triplet
	}{
		{"GainMapMin", meta.GainMapMin},
		{"GainMapMax", meta.GainMapMax},
		{"Gamma", meta.Gamma},
		{"OffsetSDR", meta.OffsetSdr},
		{"OffsetHDR", meta.OffsetHdr},
	} {
		a, e := tripletAttrOrElem(f.name, f.t)
		attrs.WriteString(a)
		elems.WriteString(e)
	}
	attrs.WriteString(fmt.Sprintf(` hdrgm:HDRCapacityMin="%s" hdrgm:HDRCapacityMax="%s" hdrgm:BaseRenditionIsHDR="False"`,
		formatFloat(meta.HDRCapacityMin), formatFloat(meta.HDRCapacityMax)))

	xml := fmt.Sprintf(
		`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="hdrify"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/"%s>%s</rdf:Description></rdf:RDF></x:xmpmeta>`,
		attrs.String(), elems.String(),
	)
	return appendNamespacedXML(xmpNamespace, xml)
}

// buildPrimaryXMP renders the primary XMP block's Container:Directory
// listing, per spec §4.9 step 1.
func buildPrimaryXMP(secondaryImageSize int) []byte {
	xml := fmt.Sprintf(
		`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="hdrify"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description xmlns:Container="http://ns.google.com/photos/1.0/container/" xmlns:Item="http://ns.google.com/photos/1.0/container/item/" xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/" hdrgm:Version="%s"><Container:Directory><rdf:Seq><rdf:li rdf:parseType="Resource"><Container:Item Item:Semantic="Primary" Item:Mime="image/jpeg"/></rdf:li><rdf:li rdf:parseType="Resource"><Container:Item Item:Semantic="GainMap" Item:Mime="image/jpeg" Item:Length="%d"/></rdf:li></rdf:Seq></Container:Directory></rdf:Description></rdf:RDF></x:xmpmeta>`,
		hdrgmVersion, secondaryImageSize,
	)
	return appendNamespacedXML(xmpNamespace, xml)
}

func appendNamespacedXML(namespace, xml string) []byte {
	out := make([]byte, 0, len(namespace)+1+len(xml))
	out = append(out, []byte(namespace)...)
	out = append(out, 0)
	out = append(out, xml...)
	return out
}
