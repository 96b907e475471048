package arv

import "fmt"

// PixelFormatBitsPerPixel and PixelFormatName are the supplemented
// pixel-format helpers (arvtools-equivalent convenience absent from
// the retrieved original_source slice's arvtools.c, which only covers
// histogram/string/GValue helpers there). The bits-per-pixel
// extraction follows PFNC's public convention of packing the pixel
// size into bits 16-23 of the 32-bit code, the convention
// Camera.GetPayload relies on (internal/fakecamera.bitsPerPixel uses
// its own Mono8/Mono16 table instead); this file gives it one public,
// named home.
type PixelFormat uint32

// BitsPerPixel extracts the PFNC bits-per-pixel field packed into the
// pixel format code (spec's "get_payload() reads ... PixelFormat").
func (f PixelFormat) BitsPerPixel() int {
	return int((uint32(f) >> 16) & 0xff)
}

// PixelFormatBitsPerPixel is the function form of PixelFormat.BitsPerPixel,
// for callers holding a bare code rather than a PixelFormat value.
func PixelFormatBitsPerPixel(code uint32) int {
	return PixelFormat(code).BitsPerPixel()
}

// pixelFormatNames covers the formats internal/fakecamera's embedded
// description and this module's GVSP/UVSP decoders actually produce;
// it is not the full PFNC registry.
var pixelFormatNames = map[PixelFormat]string{
	0x01080001: "Mono8",
	0x01100007: "Mono16",
	0x02180014: "RGB8",
	0x02180015: "BGR8",
	0x01080008: "BayerGR8",
	0x01080009: "BayerRG8",
	0x0108000a: "BayerGB8",
	0x0108000b: "BayerBG8",
}

// PixelFormatName returns the PFNC symbolic name for code, or the hex
// code itself when not in pixelFormatNames.
func PixelFormatName(code uint32) string {
	if name, ok := pixelFormatNames[PixelFormat(code)]; ok {
		return name
	}
	return fmt.Sprintf("0x%08x", code)
}
