// Package hdrify is a pure-runtime library for reading and writing
// three high-dynamic-range image formats and converting between their
// in-memory representations: Radiance HDR (RGBE), OpenEXR (scanline,
// none/RLE/ZIPS/ZIP/PIZ/PXR24), and Ultra HDR / Adobe Gain Map JPEG.
//
// Every format reduces to a single canonical in-memory type,
// HdrifyImage: linear-RGBA float pixels tagged with the linear color
// space they were decoded into. Reading always produces a fresh
// HdrifyImage; writing always consumes one.
//
// The codecs do no file-system I/O (only the ResizeUltraHDRFile and
// RebaseUltraHDRFile helpers read and write files), leave no
// goroutines running, and emit no warnings on the happy path: every
// failure is returned as an error, never logged-and-swallowed.
// Structured diagnostics go through the internal/hlog logger, which
// is disabled by default; being internal, it cannot be switched on
// from outside this module.
package hdrify
