package motion

import "image"

// MergeOverlapping repeatedly replaces every pair of touching or overlapping
// rectangles with their union until no two rectangles overlap.
//
// Rectangles that share only an edge are treated as overlapping, so blobs split
// by a single eroded column collapse into one region. The input slice is not
// modified.
//
// Arguments:
//   - rects: Bounding boxes of the foreground contours.
//
// Returns:
//   - []image.Rectangle: Disjoint merged regions.
func MergeOverlapping(rects []image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		if !r.Empty() {
			out = append(out, r.Canon())
		}
	}

	for merged := true; merged; {
		merged = false
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				if !touches(out[i], out[j]) {
					continue
				}
				out[i] = out[i].Union(out[j])
				out = append(out[:j], out[j+1:]...)
				merged = true
				j = i
			}
		}
	}

	return out
}

// touches reports whether a and b overlap or share an edge.
func touches(a, b image.Rectangle) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y
}
