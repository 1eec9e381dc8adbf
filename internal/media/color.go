package media

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultColor is returned for images without a vivid region.
const DefaultColor = "#ffffff"

const (
	// sampleEdge bounds the longer side of the image colours are read from.
	sampleEdge = 64

	// Pixels are grouped by the top bucketBits of each channel.
	bucketBits = 4

	minAlpha      = 128
	minSaturation = 0.35
	minLightness  = 0.2
	maxLightness  = 0.8
)

type bucket struct {
	n, r, g, b int
}

// DominantColor returns the most common vivid colour of img as "#rrggbb".
// Pixels are grouped into coarse RGB buckets and the largest bucket whose
// mean colour is saturated, and neither too dark nor too light, wins.
func DominantColor(img image.Image) string {
	sample := downsample(img)

	const shift = 8 - bucketBits
	var buckets [1 << (3 * bucketBits)]bucket

	bounds := sample.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := sample.RGBAAt(x, y)
			if c.A < minAlpha {
				continue
			}
			r, g, b := unpremultiply(c.R, c.A), unpremultiply(c.G, c.A), unpremultiply(c.B, c.A)
			k := (r>>shift)<<(2*bucketBits) | (g>>shift)<<bucketBits | b>>shift

			bk := &buckets[k]
			bk.n++
			bk.r += r
			bk.g += g
			bk.b += b
		}
	}

	best := -1
	for i := range buckets {
		bk := &buckets[i]
		if bk.n == 0 || (best >= 0 && bk.n <= buckets[best].n) {
			continue
		}
		if vivid(bk.r/bk.n, bk.g/bk.n, bk.b/bk.n) {
			best = i
		}
	}
	if best < 0 {
		return DefaultColor
	}

	bk := buckets[best]
	return fmt.Sprintf("#%02x%02x%02x", bk.r/bk.n, bk.g/bk.n, bk.b/bk.n)
}

// downsample copies img into an RGBA image no larger than sampleEdge on
// either side.
func downsample(img image.Image) *image.RGBA {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()

	if w <= sampleEdge && h <= sampleEdge {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
		return dst
	}

	if w >= h {
		w, h = sampleEdge, max(1, h*sampleEdge/w)
	} else {
		w, h = max(1, w*sampleEdge/h), sampleEdge
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

func unpremultiply(v, a uint8) int {
	if a == 0xff {
		return int(v)
	}
	return min(0xff, int(v)*0xff/int(a))
}

// vivid reports whether the colour is saturated with a mid lightness, in
// HSL terms.
func vivid(r, g, b int) bool {
	hi := max(r, g, b)
	lo := min(r, g, b)

	l := float64(hi+lo) / 2 / 0xff
	if l < minLightness || l > maxLightness || hi == lo {
		return false
	}

	d := float64(hi-lo) / 0xff
	s := d / (1 - math.Abs(2*l-1))
	return s >= minSaturation
}
