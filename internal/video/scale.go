// Package video converts a console's raw ARGB frame buffer into a scaled
// image.RGBA for presentation or screenshot export. It deliberately does
// not own a window or GL surface (that's internal/graphics's Non-goal
// reference implementation over ebiten); it's the one piece of the
// presentation path small and host-agnostic enough to be genuinely
// shared by both the NES (256x240) and handheld (160x144) cores.
package video

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// FrameToImage packs a row-major ARGB (0xAARRGGBB, alpha ignored) frame
// buffer of the given dimensions into an *image.RGBA.
func FrameToImage(buffer []uint32, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, pixel := range buffer {
		if i >= width*height {
			break
		}
		r := uint8(pixel >> 16)
		g := uint8(pixel >> 8)
		b := uint8(pixel)
		img.SetRGBA(i%width, i/width, color.RGBA{R: r, G: g, B: b, A: 0xFF})
	}
	return img
}

// Scale resizes src by the given factor using nearest-neighbor
// interpolation, matching the blocky upscaling both consoles' tile-based
// graphics are conventionally displayed with. A factor <= 0 is treated as
// 1 (no scaling).
func Scale(src *image.RGBA, factor float64) *image.RGBA {
	if factor <= 0 {
		factor = 1
	}
	bounds := src.Bounds()
	dstW := int(float64(bounds.Dx()) * factor)
	dstH := int(float64(bounds.Dy()) * factor)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}

// ScaleFrame is the combined FrameToImage + Scale convenience entry point
// used by the CLI's screenshot/headless export path for the `--scale`
// flag (spec §6).
func ScaleFrame(buffer []uint32, width, height int, factor float64) *image.RGBA {
	return Scale(FrameToImage(buffer, width, height), factor)
}
