package detector

import (
	"image"
	"sort"
)

// IoU calculates Intersection over Union between two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	intersection := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Suppress drops regions that overlap a larger region by more than
// threshold IoU, so one face yields one region. Larger regions win.
func Suppress(regions []image.Rectangle, threshold float64) []image.Rectangle {
	if len(regions) < 2 {
		return regions
	}

	sorted := make([]image.Rectangle, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return area(sorted[i]) > area(sorted[j])
	})

	kept := make([]image.Rectangle, 0, len(sorted))
	for _, r := range sorted {
		overlaps := false
		for _, k := range kept {
			if IoU(r, k) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	return kept
}

// Clip limits regions to bounds and drops the ones that become empty or
// smaller than minSize on either side.
func Clip(regions []image.Rectangle, bounds image.Rectangle, minSize int) []image.Rectangle {
	out := regions[:0:0]
	for _, r := range regions {
		r = r.Canon().Intersect(bounds)
		if r.Empty() || r.Dx() < minSize || r.Dy() < minSize {
			continue
		}
		out = append(out, r)
	}
	return out
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
