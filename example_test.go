package hdrify_test

import (
	"os"
	"path/filepath"

	"github.com/bhouston/hdrify-sub000"
)

func ExampleIsUltraHDR() {
	f, err := os.Open(filepath.FromSlash("testdata/uhdr.jpg"))
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = hdrify.IsUltraHDR(f)
}

func ExampleSplit() {
	data, err := os.ReadFile(filepath.FromSlash("testdata/uhdr.jpg"))
	if err != nil {
		return
	}
	primary, gainmap, meta, err := hdrify.Split(data)
	if err != nil {
		return
	}
	_, _ = hdrify.Join(primary, gainmap, meta)
}

func ExampleResizeUltraHDR() {
	data, err := os.ReadFile(filepath.FromSlash("testdata/uhdr.jpg"))
	if err != nil {
		return
	}
	_, _ = hdrify.ResizeUltraHDR(data, 2400, 1600, func(opt *hdrify.ResizeOptions) {
		opt.PrimaryQuality = 85
		opt.GainmapQuality = 75
	})
}
