// Package calibrate maps raw classifier probabilities to calibrated
// confidence values using isotonic regression. Raw softmax
// probabilities are known to be overconfident; calibration keeps the
// auto-post threshold semantically meaningful, so that "0.90
// confidence" tracks roughly 90% real-world accuracy.
package calibrate

import (
	"fmt"
	"sort"
	"sync"
)

// Point is one held-out observation: the raw probability the model
// reported and whether the model's choice turned out to be correct.
type Point struct {
	Raw     float64
	Correct bool
}

// MinPoints is the smallest held-out set a fit will accept. Below this
// the step function is noise.
const MinPoints = 10

// Calibrator applies a monotonic piecewise-linear mapping fit offline.
// The zero-block calibrator is the identity mapping, used until the
// first fit completes.
type Calibrator struct {
	mu sync.RWMutex
	xs []float64 // block centers, strictly ascending
	ys []float64 // calibrated values, non-decreasing
}

// Identity returns a calibrator that passes raw probabilities through
// unchanged (clamped to [0,1]).
func Identity() *Calibrator {
	return &Calibrator{}
}

// Fit runs pool-adjacent-violators over a held-out labeled set and
// returns a monotonic calibrator. Fitting happens periodically offline,
// never per-request.
func Fit(points []Point) (*Calibrator, error) {
	if len(points) < MinPoints {
		return nil, fmt.Errorf("calibration needs at least %d held-out points, have %d", MinPoints, len(points))
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Raw < sorted[j].Raw })

	type block struct {
		x, y   float64 // weighted means
		weight float64
	}

	blocks := make([]block, 0, len(sorted))
	for _, p := range sorted {
		y := 0.0
		if p.Correct {
			y = 1.0
		}
		blocks = append(blocks, block{x: p.Raw, y: y, weight: 1})

		// Pool while the sequence violates monotonicity.
		for len(blocks) > 1 {
			last := blocks[len(blocks)-1]
			prev := blocks[len(blocks)-2]
			if prev.y <= last.y {
				break
			}
			w := prev.weight + last.weight
			merged := block{
				x:      (prev.x*prev.weight + last.x*last.weight) / w,
				y:      (prev.y*prev.weight + last.y*last.weight) / w,
				weight: w,
			}
			blocks = blocks[:len(blocks)-2]
			blocks = append(blocks, merged)
		}
	}

	c := &Calibrator{
		xs: make([]float64, 0, len(blocks)),
		ys: make([]float64, 0, len(blocks)),
	}
	for _, b := range blocks {
		// Collapse duplicate x coordinates, keeping the later (higher) y.
		if n := len(c.xs); n > 0 && b.x <= c.xs[n-1] {
			c.ys[n-1] = b.y
			continue
		}
		c.xs = append(c.xs, b.x)
		c.ys = append(c.ys, b.y)
	}
	return c, nil
}

// Apply maps a raw probability to calibrated confidence. The mapping is
// guaranteed monotonic: rawA > rawB implies Apply(rawA) >= Apply(rawB).
func (c *Calibrator) Apply(raw float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.xs) == 0 {
		return clamp(raw)
	}
	if raw <= c.xs[0] {
		return clamp(c.ys[0])
	}
	if raw >= c.xs[len(c.xs)-1] {
		return clamp(c.ys[len(c.ys)-1])
	}

	i := sort.SearchFloat64s(c.xs, raw)
	// raw sits between xs[i-1] and xs[i]; interpolate linearly.
	x0, x1 := c.xs[i-1], c.xs[i]
	y0, y1 := c.ys[i-1], c.ys[i]
	t := (raw - x0) / (x1 - x0)
	return clamp(y0 + t*(y1-y0))
}

// Replace swaps in a newly fit mapping. Used by the offline re-fit job
// so the live path never sees a half-built calibrator.
func (c *Calibrator) Replace(fitted *Calibrator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.xs = fitted.xs
	c.ys = fitted.ys
}

// Fitted reports whether a mapping has been installed.
func (c *Calibrator) Fitted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.xs) > 0
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
