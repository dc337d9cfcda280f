// Package raster turns detector regions into the fixed-size grayscale
// rasters used for training and recognition.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ErrEmptyRegion is returned when a region does not overlap the frame.
var ErrEmptyRegion = errors.New("region is empty after clipping to frame bounds")

// Square returns a size with equal width and height.
func Square(n int) image.Point {
	return image.Pt(n, n)
}

// Normalize crops region out of frame, converts it to grayscale and
// resizes it to size.
func Normalize(frame image.Image, region image.Rectangle, size image.Point) (*image.Gray, error) {
	cropped, err := Crop(frame, region)
	if err != nil {
		return nil, err
	}
	return Fit(ToGray(cropped), size), nil
}

// Crop returns the part of img inside r. The region is clipped to the
// image bounds first.
func Crop(img image.Image, r image.Rectangle) (image.Image, error) {
	r = r.Canon().Intersect(img.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	if sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(r), nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}

// ToGray converts an image to 8-bit grayscale using the ITU-R BT.601 luma
// formula. The result always has its origin at (0, 0).
func ToGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	if src, ok := img.(*image.Gray); ok {
		for y := range bounds.Dy() {
			srcOff := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+bounds.Dx()], src.Pix[srcOff:srcOff+bounds.Dx()])
		}
		return gray
	}

	for y := range bounds.Dy() {
		for x := range bounds.Dx() {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			gray.SetGray(x, y, color.Gray{Y: uint8(luma + 0.5)})
		}
	}
	return gray
}

// Fit returns g unchanged when it already has exactly size and a zero
// origin, otherwise a bilinear-scaled copy.
func Fit(g *image.Gray, size image.Point) *image.Gray {
	if g.Bounds() == image.Rect(0, 0, size.X, size.Y) {
		return g
	}
	return Resize(g, size.X, size.Y)
}

// Resize scales a grayscale image to the specified dimensions.
func Resize(src image.Image, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// CheckSize returns an error unless g is exactly size.
func CheckSize(g *image.Gray, size image.Point) error {
	if got := g.Bounds().Size(); got != size {
		return fmt.Errorf("raster is %dx%d, want %dx%d", got.X, got.Y, size.X, size.Y)
	}
	return nil
}
