// Package recognize turns named sub-images into typed table fields.
// Every recognizer is an ordered cascade of independent strategies tried
// until one clears the confidence floor; exhaustion yields "absent",
// never an error. Caches are engine-owned so multiple tables can run
// side by side without interference.
package recognize

import (
	"context"
	"crypto/md5"
	"image"
	"image/draw"
	"log/slog"
	"sync"
)

// DefaultConfidenceFloor is the minimum strategy confidence accepted by a
// cascade unless configured otherwise.
const DefaultConfidenceFloor = 0.60

// Strategy is one recognition attempt. Attempt returns the value, its
// confidence in [0,1], and an error when the strategy cannot produce a
// result at all (missing capability, OCR failure). A low-confidence
// result and an error are treated the same: the cascade moves on.
type Strategy[T any] interface {
	Name() string
	Attempt(ctx context.Context, img image.Image) (T, float64, error)
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc[T any] struct {
	StrategyName string
	Fn           func(ctx context.Context, img image.Image) (T, float64, error)
}

// Name returns the strategy name.
func (s StrategyFunc[T]) Name() string { return s.StrategyName }

// Attempt invokes the wrapped function.
func (s StrategyFunc[T]) Attempt(ctx context.Context, img image.Image) (T, float64, error) {
	return s.Fn(ctx, img)
}

// Cascade runs strategies in order and memoizes results per input region.
type Cascade[T any] struct {
	name       string
	floor      float64
	strategies []Strategy[T]
	cache      *Cache[T]
}

// NewCascade builds a cascade. cache may be nil to disable memoization.
func NewCascade[T any](name string, floor float64, cache *Cache[T], strategies ...Strategy[T]) *Cascade[T] {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Cascade[T]{name: name, floor: floor, strategies: strategies, cache: cache}
}

// Run tries each strategy until one clears the floor. ok is false when
// every strategy failed; the field is then absent and the caller reduces
// overall confidence instead of erroring.
func (c *Cascade[T]) Run(ctx context.Context, img image.Image) (T, float64, bool) {
	var zero T
	if img == nil {
		return zero, 0, false
	}

	var key [md5.Size]byte
	if c.cache != nil {
		key = hashPixels(img)
		if val, conf, hit := c.cache.get(key); hit {
			return val, conf, conf >= c.floor
		}
	}

	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, 0, false
		}
		val, conf, err := s.Attempt(ctx, img)
		if err != nil {
			slog.Debug("strategy failed", "recognizer", c.name, "strategy", s.Name(), "error", err)
			continue
		}
		if conf >= c.floor {
			if c.cache != nil {
				c.cache.put(key, val, conf)
			}
			return val, conf, true
		}
		slog.Debug("strategy below floor", "recognizer", c.name, "strategy", s.Name(), "confidence", conf)
	}

	if c.cache != nil {
		c.cache.put(key, zero, 0)
	}
	return zero, 0, false
}

// Cache memoizes recognition results keyed by a content hash of the
// region, so a visually unchanged region costs one hash per frame.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[[md5.Size]byte]cacheEntry[T]
	max     int
}

type cacheEntry[T any] struct {
	val  T
	conf float64
}

// NewCache creates a cache bounded at max entries (cleared when full).
func NewCache[T any](max int) *Cache[T] {
	if max <= 0 {
		max = 256
	}
	return &Cache[T]{entries: make(map[[md5.Size]byte]cacheEntry[T]), max: max}
}

func (c *Cache[T]) get(key [md5.Size]byte) (T, float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, 0, false
	}
	return e.val, e.conf, true
}

func (c *Cache[T]) put(key [md5.Size]byte, val T, conf float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		c.entries = make(map[[md5.Size]byte]cacheEntry[T])
	}
	c.entries[key] = cacheEntry[T]{val: val, conf: conf}
}

// Len reports the number of cached regions.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// hashPixels digests the raw pixel data of a region.
func hashPixels(img image.Image) [md5.Size]byte {
	if rgba, ok := img.(*image.RGBA); ok {
		return md5.Sum(rgba.Pix)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return md5.Sum(rgba.Pix)
}
