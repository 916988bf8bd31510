package compose

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/transform"
)

// Mirror flips img horizontally, the way a selfie camera preview looks.
func Mirror(img image.Image) *image.RGBA {
	return transform.FlipH(img)
}

// FitSize returns the largest size with the aspect ratio of (w, h) that fits inside (maxW, maxH).
// Sizes that already fit are returned unchanged.
func FitSize(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	// Compare w/h against maxW/maxH without floating point.
	if w*maxH > h*maxW {
		nh := h * maxW / w
		if nh < 1 {
			nh = 1
		}
		return maxW, nh
	}
	nw := w * maxH / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxH
}

// Fit downscales img with Lanczos so it fits inside (maxW, maxH), preserving aspect ratio.
// It never upscales. The result is always a new image.
func Fit(img image.Image, maxW, maxH int) *image.RGBA {
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return toRGBA(img)
	}
	return transform.Resize(img, w, h, transform.Lanczos)
}

// Overlay alpha-composites overlay onto base. The overlay is resampled to base's size with Lanczos.
func Overlay(base image.Image, overlay image.Image) *image.RGBA {
	dst := toRGBA(base)
	if overlay == nil {
		return dst
	}
	ob := overlay.Bounds()
	if ob.Dx() != dst.Bounds().Dx() || ob.Dy() != dst.Bounds().Dy() {
		overlay = transform.Resize(overlay, dst.Bounds().Dx(), dst.Bounds().Dy(), transform.Lanczos)
	}
	draw.Draw(dst, dst.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
	return dst
}

// toRGBA copies img into a new RGBA image whose bounds start at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
