package recognize

import (
	"image"
	"math"
)

// glyphColor classifies a card glyph under a four-color deck: black
// spades, red hearts, blue diamonds, green clubs. Two-color decks rely on
// the template tier instead.
type glyphColor int

const (
	colorNone glyphColor = iota
	colorBlack
	colorRed
	colorBlue
	colorGreen
)

// rgbToHSV converts 8-bit RGB to hue (degrees), saturation and value in [0,1].
func rgbToHSV(r, g, b uint8) (float64, float64, float64) {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var h float64
	switch {
	case delta == 0:
		h = 0
	case maxC == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	var s float64
	if maxC > 0 {
		s = delta / maxC
	}
	return h, s, maxC
}

// pixelStats summarises a card slot: fraction of near-white face pixels
// and counts per glyph color class.
type pixelStats struct {
	total     int
	faceRatio float64
	counts    map[glyphColor]int
}

func analyzePixels(img image.Image) pixelStats {
	b := img.Bounds()
	stats := pixelStats{counts: make(map[glyphColor]int)}
	face := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r, g, bl := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)
			stats.total++

			h, s, v := rgbToHSV(r, g, bl)
			switch {
			case v > 0.85 && s < 0.15:
				face++
			case v < 0.35 && s < 0.5:
				stats.counts[colorBlack]++
			case s > 0.35 && (h < 20 || h > 340):
				stats.counts[colorRed]++
			case s > 0.35 && h > 200 && h < 260:
				stats.counts[colorBlue]++
			case s > 0.35 && h > 90 && h < 160:
				stats.counts[colorGreen]++
			}
		}
	}
	if stats.total > 0 {
		stats.faceRatio = float64(face) / float64(stats.total)
	}
	return stats
}

// dominantGlyph returns the most common glyph color and its pixel count.
func (p pixelStats) dominantGlyph() (glyphColor, int) {
	best, bestCount := colorNone, 0
	for c, n := range p.counts {
		if n > bestCount {
			best, bestCount = c, n
		}
	}
	return best, bestCount
}

// suitForColor maps a four-color-deck glyph color to its suit letter.
func suitForColor(c glyphColor) (byte, bool) {
	switch c {
	case colorBlack:
		return 's', true
	case colorRed:
		return 'h', true
	case colorBlue:
		return 'd', true
	case colorGreen:
		return 'c', true
	default:
		return 0, false
	}
}

// glyphMask marks pixels belonging to any glyph color class.
func glyphMask(img image.Image) ([][]bool, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	mask := make([][]bool, h)
	marked := 0
	for y := 0; y < h; y++ {
		mask[y] = make([]bool, w)
		for x := 0; x < w; x++ {
			r16, g16, b16, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			r, g, bl := uint8(r16>>8), uint8(g16>>8), uint8(b16>>8)
			hh, s, v := rgbToHSV(r, g, bl)
			isGlyph := (v < 0.35 && s < 0.5) ||
				(s > 0.35 && (hh < 20 || hh > 340)) ||
				(s > 0.35 && hh > 200 && hh < 260) ||
				(s > 0.35 && hh > 90 && hh < 160)
			if isGlyph {
				mask[y][x] = true
				marked++
			}
		}
	}
	return mask, marked
}

// countBlobs counts 4-connected components in the mask with at least
// minSize pixels. Used for pip counting.
func countBlobs(mask [][]bool, minSize int) int {
	if len(mask) == 0 {
		return 0
	}
	h, w := len(mask), len(mask[0])
	visited := make([][]bool, h)
	for i := range visited {
		visited[i] = make([]bool, w)
	}

	blobs := 0
	var stack []image.Point
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y][x] || visited[y][x] {
				continue
			}
			size := 0
			stack = append(stack[:0], image.Pt(x, y))
			visited[y][x] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				size++
				for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := p.X+d.X, p.Y+d.Y
					if nx >= 0 && nx < w && ny >= 0 && ny < h && mask[ny][nx] && !visited[ny][nx] {
						visited[ny][nx] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}
			if size >= minSize {
				blobs++
			}
		}
	}
	return blobs
}

// hueMaskCentroid finds the centroid and pixel count of the region whose
// hue falls in [hueMin, hueMax] with the given saturation/value floors.
func hueMaskCentroid(img image.Image, hueMin, hueMax, satMin, valMin float64) (image.Point, int) {
	b := img.Bounds()
	sumX, sumY, count := 0, 0, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			h, s, v := rgbToHSV(uint8(r16>>8), uint8(g16>>8), uint8(b16>>8))
			if h >= hueMin && h <= hueMax && s >= satMin && v >= valMin {
				sumX += x
				sumY += y
				count++
			}
		}
	}
	if count == 0 {
		return image.Point{}, 0
	}
	return image.Pt(sumX/count, sumY/count), count
}
