// Command hdrify is a thin CLI wrapper around the hdrify library's
// JPEG-R resize, rebase, detect, and split/join operations.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	hdrify "github.com/bhouston/hdrify-sub000"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "resize":
		err = runResize(os.Args[2:])
	case "rebase":
		err = runRebase(os.Args[2:])
	case "detect":
		err = runDetect(os.Args[2:])
	case "split":
		err = runSplit(os.Args[2:])
	case "join":
		err = runJoin(os.Args[2:])
	case "encode":
		err = runEncode(os.Args[2:])
	case "decode":
		err = runDecode(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: hdrify <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  resize -in input.jpg -out output.jpg -w 2400 -h 1600 [-q 85] [-gq 75] [-primary-out p.jpg] [-gainmap-out g.jpg]")
	fmt.Fprintln(os.Stderr, "  rebase -in uhdr.jpg -primary better_sdr.jpg -out output.jpg [-q 90] [-gq 85] [-primary-out p.jpg] [-gainmap-out g.jpg]")
	fmt.Fprintln(os.Stderr, "  detect -in input.jpg")
	fmt.Fprintln(os.Stderr, "  split  -in input.jpg -primary-out primary.jpg -gainmap-out gainmap.jpg [-meta-out meta.json]")
	fmt.Fprintln(os.Stderr, "  join   -meta meta.json -primary primary.jpg -gainmap gainmap.jpg -out output.jpg")
	fmt.Fprintln(os.Stderr, "  encode -in scene.hdr -out output.jpg [-q 90] [-gq 85] [-adobe-gainmap]")
	fmt.Fprintln(os.Stderr, "  decode -in input.jpg -out scene.hdr")
}

func runResize(args []string) error {
	fs := flag.NewFlagSet("resize", flag.ContinueOnError)
	inPath := fs.String("in", "", "input JPEG-R container")
	outPath := fs.String("out", "", "output JPEG-R container")
	width := fs.Int("w", 0, "target width")
	height := fs.Int("h", 0, "target height")
	q := fs.Int("q", 85, "primary quality")
	gq := fs.Int("gq", 75, "gainmap quality")
	primaryOut := fs.String("primary-out", "", "write resized primary JPEG")
	gainmapOut := fs.String("gainmap-out", "", "write resized gainmap JPEG")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" || *width <= 0 || *height <= 0 {
		return errors.New("missing required arguments")
	}
	return hdrify.ResizeUltraHDRFile(*inPath, *outPath, uint(*width), uint(*height), func(opt *hdrify.ResizeOptions) {
		opt.PrimaryQuality = *q
		opt.GainmapQuality = *gq
		opt.PrimaryOut = *primaryOut
		opt.GainmapOut = *gainmapOut
	})
}

func runRebase(args []string) error {
	fs := flag.NewFlagSet("rebase", flag.ContinueOnError)
	inPath := fs.String("in", "", "input JPEG-R container")
	primaryPath := fs.String("primary", "", "replacement SDR image")
	outPath := fs.String("out", "", "output JPEG-R container")
	q := fs.Int("q", 90, "primary quality")
	gq := fs.Int("gq", 85, "gainmap quality")
	primaryOut := fs.String("primary-out", "", "write rebased primary JPEG")
	gainmapOut := fs.String("gainmap-out", "", "write rebased gainmap JPEG")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *primaryPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	opts := &hdrify.RebaseOptions{BaseQuality: *q, GainmapQuality: *gq}
	return hdrify.RebaseUltraHDRFile(*inPath, *primaryPath, *outPath, opts, *primaryOut, *gainmapOut)
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	inPath := fs.String("in", "", "input JPEG")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return errors.New("missing required arguments")
	}
	f, err := os.Open(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	defer f.Close()
	ok, err := hdrify.IsUltraHDR(f)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(os.Stdout, "ultrahdr")
	} else {
		fmt.Fprintln(os.Stdout, "not ultrahdr")
	}
	return nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	inPath := fs.String("in", "", "input JPEG-R container")
	primaryOut := fs.String("primary-out", "", "primary output JPEG")
	gainmapOut := fs.String("gainmap-out", "", "gainmap output JPEG")
	metaOut := fs.String("meta-out", "", "gain map metadata JSON output")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *primaryOut == "" || *gainmapOut == "" {
		return errors.New("missing required arguments")
	}
	data, err := os.ReadFile(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	primary, gainmap, meta, err := hdrify.Split(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(*primaryOut), primary, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(*gainmapOut), gainmap, 0o644); err != nil {
		return err
	}
	if *metaOut != "" {
		payload, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Clean(*metaOut), payload, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func runJoin(args []string) error {
	fs := flag.NewFlagSet("join", flag.ContinueOnError)
	metaPath := fs.String("meta", "", "gain map metadata JSON")
	primaryPath := fs.String("primary", "", "primary JPEG")
	gainmapPath := fs.String("gainmap", "", "gainmap JPEG")
	outPath := fs.String("out", "", "output JPEG-R container")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *metaPath == "" || *primaryPath == "" || *gainmapPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	primary, err := os.ReadFile(filepath.Clean(*primaryPath))
	if err != nil {
		return err
	}
	gainmap, err := os.ReadFile(filepath.Clean(*gainmapPath))
	if err != nil {
		return err
	}
	metaData, err := os.ReadFile(filepath.Clean(*metaPath))
	if err != nil {
		return err
	}
	var meta hdrify.GainMapMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return err
	}
	container, err := hdrify.Join(primary, gainmap, meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(*outPath), container, 0o644)
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	inPath := fs.String("in", "", "input HDR scene (.hdr or .exr)")
	outPath := fs.String("out", "", "output JPEG-R container")
	q := fs.Int("q", 90, "primary quality")
	gq := fs.Int("gq", 85, "gainmap quality")
	adobeGainMap := fs.Bool("adobe-gainmap", false, "write the adobe-gainmap variant instead of ultrahdr")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	data, err := os.ReadFile(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	img, err := decodeHdrScene(*inPath, data)
	if err != nil {
		return err
	}
	enc, err := hdrify.EncodeGainMap(img, defaultToneMap, hdrify.DefaultGainMapOptions())
	if err != nil {
		return err
	}
	format := hdrify.FormatUltraHDR
	if *adobeGainMap {
		format = hdrify.FormatAdobeGainMap
	}
	container, err := hdrify.WriteJpegGainMap(enc, hdrify.JpegGainMapOptions{
		Format:         format,
		PrimaryQuality: *q,
		GainmapQuality: *gq,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(*outPath), container, 0o644)
}

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	inPath := fs.String("in", "", "input JPEG-R container")
	outPath := fs.String("out", "", "output HDR scene (.hdr or .exr)")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	data, err := os.ReadFile(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	img, err := hdrify.ReadJpegGainMap(data)
	if err != nil {
		return err
	}
	var out []byte
	if strings.EqualFold(filepath.Ext(*outPath), ".exr") {
		out, err = hdrify.WriteExr(img, hdrify.CompressionZIP)
	} else {
		out, err = hdrify.WriteHdr(img)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(*outPath), out, 0o644)
}

func decodeHdrScene(path string, data []byte) (*hdrify.HdrifyImage, error) {
	if strings.EqualFold(filepath.Ext(path), ".exr") {
		return hdrify.ReadExr(data)
	}
	return hdrify.ReadHdr(data, hdrify.ReadHdrOptions{})
}

// defaultToneMap is a simple global Reinhard operator (x/(1+x)) used
// when the encode command has no application-specific tone-mapping
// operator to call. Library callers are expected to supply their own.
func defaultToneMap(r, g, b float32) (float32, float32, float32) {
	tone := func(v float32) float32 { return v / (1 + v) }
	return tone(r), tone(g), tone(b)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
