// Package mask derives a binary edit mask from a base photograph and a
// user-edited copy of it. Comparison is similarity-based rather than a raw
// pixel difference so that re-encoding artifacts introduced by the chat
// transport do not light up the whole frame.
package mask

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"imagebot/internal/domain"
)

const (
	// Comparison happens on a downscaled copy capped to this bounding box.
	maxCompareWidth  = 500
	maxCompareHeight = 800

	// Dimension slack per axis before the pair is rejected as incomparable.
	dimensionTolerance = 10

	// Connected regions at or below this area are discarded as noise.
	minRegionArea = 10

	ssimWindowRadius = 3 // 7x7 window

	ssimC1 = 6.5025  // (0.01 * 255)^2
	ssimC2 = 58.5225 // (0.03 * 255)^2
)

// Diff compares a base image against a user-edited copy and returns a binary
// mask at the base image's resolution: white where the images differ, black
// elsewhere. Dimension drift within the tolerance is corrected by resampling
// the edited image; anything beyond it fails with domain.ErrDimensionMismatch.
func Diff(base, edited image.Image) (*image.Gray, error) {
	bw, bh := base.Bounds().Dx(), base.Bounds().Dy()
	ew, eh := edited.Bounds().Dx(), edited.Bounds().Dy()

	if abs(bw-ew) > dimensionTolerance || abs(bh-eh) > dimensionTolerance {
		return nil, fmt.Errorf("mask: base %dx%d vs edited %dx%d: %w", bw, bh, ew, eh, domain.ErrDimensionMismatch)
	}
	if bw != ew || bh != eh {
		edited = resample(edited, bw, bh)
	}

	cw, ch := fitDims(bw, bh, maxCompareWidth, maxCompareHeight)
	baseSmall, editedSmall := base, edited
	if cw != bw || ch != bh {
		baseSmall = resample(base, cw, ch)
		editedSmall = resample(edited, cw, ch)
	}

	bg := intensities(baseSmall)
	eg := intensities(editedSmall)

	sim := ssimBytes(bg, eg, cw, ch)
	changed := thresholdInverted(sim)
	small := surviveRegions(changed, cw, ch)

	if cw == bw && ch == bh {
		return small, nil
	}
	return expandMask(small, bw, bh), nil
}

// FitWithin downscales img so it fits the given bounding box, preserving
// aspect ratio. Images already inside the box are returned unchanged.
func FitWithin(img image.Image, maxW, maxH int) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cw, ch := fitDims(w, h, maxW, maxH)
	if cw == w && ch == h {
		return img
	}
	return resample(img, cw, ch)
}

func fitDims(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	cw, ch := int(float64(w)*scale), int(float64(h)*scale)
	if cw < 1 {
		cw = 1
	}
	if ch < 1 {
		ch = 1
	}
	return cw, ch
}

func resample(img image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

// intensities converts an image to a single-channel luminance plane.
func intensities(img image.Image) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]float64, w*h)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out[i] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			i++
		}
	}
	return out
}

// ssimBytes computes a per-pixel structural-similarity map over a sliding
// window, scaled to bytes. 255 means locally identical.
func ssimBytes(a, b []float64, w, h int) []uint8 {
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			y0, y1 := max(0, y-ssimWindowRadius), min(h-1, y+ssimWindowRadius)
			x0, x1 := max(0, x-ssimWindowRadius), min(w-1, x+ssimWindowRadius)

			var sumA, sumB float64
			n := float64((y1 - y0 + 1) * (x1 - x0 + 1))
			for wy := y0; wy <= y1; wy++ {
				row := wy * w
				for wx := x0; wx <= x1; wx++ {
					sumA += a[row+wx]
					sumB += b[row+wx]
				}
			}
			muA, muB := sumA/n, sumB/n

			var varA, varB, cov float64
			for wy := y0; wy <= y1; wy++ {
				row := wy * w
				for wx := x0; wx <= x1; wx++ {
					da, db := a[row+wx]-muA, b[row+wx]-muB
					varA += da * da
					varB += db * db
					cov += da * db
				}
			}
			varA /= n
			varB /= n
			cov /= n

			s := ((2*muA*muB + ssimC1) * (2*cov + ssimC2)) /
				((muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2))

			v := s * 255
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out[y*w+x] = uint8(v)
		}
	}
	return out
}

// thresholdInverted marks low-similarity pixels as changed, picking the cut
// automatically by maximizing between-class variance (Otsu). A uniform map
// yields no changed pixels.
func thresholdInverted(sim []uint8) []bool {
	var hist [256]int
	lo, hi := sim[0], sim[0]
	for _, v := range sim {
		hist[v]++
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	changed := make([]bool, len(sim))
	if lo == hi {
		return changed
	}

	t := otsu(hist, len(sim))
	for i, v := range sim {
		changed[i] = v <= t
	}
	return changed
}

func otsu(hist [256]int, total int) uint8 {
	var sum float64
	for v, c := range hist {
		sum += float64(v) * float64(c)
	}

	var sumBack, weightBack float64
	var best float64
	var threshold uint8
	for t := 0; t < 256; t++ {
		weightBack += float64(hist[t])
		if weightBack == 0 {
			continue
		}
		weightFore := float64(total) - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * float64(hist[t])
		muBack := sumBack / weightBack
		muFore := (sum - sumBack) / weightFore
		between := weightBack * weightFore * (muBack - muFore) * (muBack - muFore)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

// surviveRegions extracts 8-connected changed regions, drops those at or
// below the minimum area, and renders the survivors filled white.
func surviveRegions(changed []bool, w, h int) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, w, h))
	visited := make([]bool, len(changed))
	var stack []int
	region := make([]int, 0, 256)

	for start := range changed {
		if !changed[start] || visited[start] {
			continue
		}
		region = region[:0]
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			region = append(region, idx)
			px, py := idx%w, idx/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if changed[n] && !visited[n] {
						visited[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
		if len(region) > minRegionArea {
			for _, idx := range region {
				mask.Pix[idx] = 255
			}
		}
	}
	return mask
}

// expandMask re-expresses a compare-resolution mask at the base image's
// original resolution, keeping it strictly binary.
func expandMask(small *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	for i, v := range dst.Pix {
		if v > 127 {
			dst.Pix[i] = 255
		} else {
			dst.Pix[i] = 0
		}
	}
	return dst
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
