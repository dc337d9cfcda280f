package lbph

import (
	"image"

	"gonum.org/v1/gonum/floats"
)

const (
	// GridX and GridY split a raster into cells, each with its own histogram.
	GridX = 8
	GridY = 8

	bins = 256
)

// neighbour offsets at radius 1, clockwise from the top-left pixel.
var neighbours = [8]image.Point{
	{-1, -1}, {0, -1}, {1, -1}, {1, 0},
	{1, 1}, {0, 1}, {-1, 1}, {-1, 0},
}

// Codes computes the 8-neighbour local binary pattern of g. Border pixels
// have no full neighbourhood, so the result is two pixels smaller on
// each axis.
func Codes(g *image.Gray) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx()-2, b.Dy()-2
	if w <= 0 || h <= 0 {
		return image.NewGray(image.Rectangle{})
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			cx, cy := b.Min.X+x+1, b.Min.Y+y+1
			center := g.Pix[g.PixOffset(cx, cy)]
			var code uint8
			for i, n := range neighbours {
				if g.Pix[g.PixOffset(cx+n.X, cy+n.Y)] >= center {
					code |= 1 << uint(7-i)
				}
			}
			out.Pix[y*out.Stride+x] = code
		}
	}
	return out
}

// Histogram returns the spatial LBP histogram of g: GridX*GridY cells of
// 256 bins, each cell normalized to sum to one.
func Histogram(g *image.Gray) []float32 {
	codes := Codes(g)
	w, h := codes.Bounds().Dx(), codes.Bounds().Dy()

	out := make([]float32, GridX*GridY*bins)
	cell := make([]float64, bins)
	for gy := range GridY {
		for gx := range GridX {
			for i := range cell {
				cell[i] = 0
			}
			x0, x1 := gx*w/GridX, (gx+1)*w/GridX
			y0, y1 := gy*h/GridY, (gy+1)*h/GridY
			for y := y0; y < y1; y++ {
				row := codes.Pix[y*codes.Stride:]
				for x := x0; x < x1; x++ {
					cell[row[x]]++
				}
			}
			if sum := floats.Sum(cell); sum > 0 {
				floats.Scale(1/sum, cell)
			}
			base := (gy*GridX + gx) * bins
			for i, v := range cell {
				out[base+i] = float32(v)
			}
		}
	}
	return out
}

// ChiSquare is the symmetric chi-square distance between two histograms,
// sum of 2(a-b)^2/(a+b). Identical histograms are at distance 0; for the
// normalized histograms above the maximum is 4 per cell.
func ChiSquare(a, b []float32) float32 {
	var d float32
	for i := range a {
		s := a[i] + b[i]
		if s <= 0 {
			continue
		}
		diff := a[i] - b[i]
		d += 2 * diff * diff / s
	}
	return d
}
