package inference

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
)

const (
	// DarkThreshold is the highest luma counted as dark.
	DarkThreshold   = 40
	// MinRegionArea is the pixel area a dark region must exceed to be circled.
	MinRegionArea   = 50
	circleThickness = 3
)

// Circle is a region's minimum enclosing circle in pixel coordinates.
type Circle struct {
	X, Y, R float64
}

// luma is the BT.601 grayscale value of c.
func luma(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	y := (299*float64(r>>8) + 587*float64(g>>8) + 114*float64(b>>8)) / 1000
	return uint8(math.Round(y))
}

// DarkRegions finds the outer dark regions of img: pixels at or below
// DarkThreshold grouped by 8-connectivity, with enclosed holes filled so a
// region nested inside another is not reported twice. Regions with area up to
// MinRegionArea are dropped.
func DarkRegions(img image.Image) []Circle {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask[y*w+x] = luma(img.At(b.Min.X+x, b.Min.Y+y)) <= DarkThreshold
		}
	}
	fillHoles(mask, w, h)

	seen := make([]bool, w*h)
	var circles []Circle
	var stack []int
	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		var boundary []point
		area := 0
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x, y := i%w, i/w
			edge := false
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						edge = true
						continue
					}
					j := ny*w + nx
					if !mask[j] {
						edge = true
						continue
					}
					if !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
			if edge {
				boundary = append(boundary, point{float64(x), float64(y)})
			}
		}
		if area > MinRegionArea {
			circles = append(circles, minEnclosingCircle(boundary))
		}
	}
	return circles
}

// fillHoles marks background pixels that cannot reach the image border
// through 4-connected background as foreground.
func fillHoles(mask []bool, w, h int) {
	outside := make([]bool, w*h)
	var stack []int
	push := func(i int) {
		if !mask[i] && !outside[i] {
			outside[i] = true
			stack = append(stack, i)
		}
	}
	for x := 0; x < w; x++ {
		push(x)
		push((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		push(y * w)
		push(y*w + w - 1)
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%w, i/w
		if x > 0 {
			push(i - 1)
		}
		if x < w-1 {
			push(i + 1)
		}
		if y > 0 {
			push(i - w)
		}
		if y < h-1 {
			push(i + w)
		}
	}
	for i := range mask {
		if !outside[i] {
			mask[i] = true
		}
	}
}

// CircleDarkRegions copies img and outlines each dark region in black.
func CircleDarkRegions(img image.Image) (*image.RGBA, int) {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	circles := DarkRegions(img)
	for _, c := range circles {
		drawCircle(out, int(c.X), int(c.Y), int(c.R), circleThickness)
	}
	return out, len(circles)
}

func drawCircle(img *image.RGBA, cx, cy, r, thickness int) {
	half := float64(thickness) / 2
	outer := r + thickness
	b := img.Bounds()
	for y := cy - outer; y <= cy+outer; y++ {
		for x := cx - outer; x <= cx+outer; x++ {
			if !(image.Point{X: x, Y: y}).In(b) {
				continue
			}
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if math.Abs(d-float64(r)) < half {
				img.SetRGBA(x, y, color.RGBA{A: 0xff})
			}
		}
	}
}

type point struct {
	x, y float64
}

func (c Circle) contains(p point) bool {
	return math.Hypot(p.x-c.X, p.y-c.Y) <= c.R+1e-7
}

// minEnclosingCircle is Welzl's algorithm in its iterative form over a
// shuffled copy of pts.
func minEnclosingCircle(pts []point) Circle {
	if len(pts) == 0 {
		return Circle{}
	}
	ps := make([]point, len(pts))
	copy(ps, pts)
	rng := rand.New(rand.NewSource(int64(len(ps))))
	rng.Shuffle(len(ps), func(i, j int) { ps[i], ps[j] = ps[j], ps[i] })

	c := Circle{X: ps[0].x, Y: ps[0].y}
	for i := 1; i < len(ps); i++ {
		if c.contains(ps[i]) {
			continue
		}
		c = Circle{X: ps[i].x, Y: ps[i].y}
		for j := 0; j < i; j++ {
			if c.contains(ps[j]) {
				continue
			}
			c = circleFrom2(ps[i], ps[j])
			for k := 0; k < j; k++ {
				if !c.contains(ps[k]) {
					c = circleFrom3(ps[i], ps[j], ps[k])
				}
			}
		}
	}
	return c
}

func circleFrom2(a, b point) Circle {
	return Circle{
		X: (a.x + b.x) / 2,
		Y: (a.y + b.y) / 2,
		R: math.Hypot(a.x-b.x, a.y-b.y) / 2,
	}
}

// circleFrom3 is the circumcircle of a, b and c. Collinear points fall back to
// the circle over the farthest pair.
func circleFrom3(a, b, c point) Circle {
	bx, by := b.x-a.x, b.y-a.y
	cx, cy := c.x-a.x, c.y-a.y
	d := 2 * (bx*cy - by*cx)
	if math.Abs(d) < 1e-12 {
		best := circleFrom2(a, b)
		for _, cand := range []Circle{circleFrom2(a, c), circleFrom2(b, c)} {
			if cand.R > best.R {
				best = cand
			}
		}
		return best
	}
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	ux := (cy*b2 - by*c2) / d
	uy := (bx*c2 - cx*b2) / d
	return Circle{X: ux + a.x, Y: uy + a.y, R: math.Hypot(ux, uy)}
}
