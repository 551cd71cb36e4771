package recognize

import (
	"context"
	"errors"
	"image"
	"testing"
)

func strat(name string, val int, conf float64, err error, calls *int) Strategy[int] {
	return StrategyFunc[int]{
		StrategyName: name,
		Fn: func(ctx context.Context, img image.Image) (int, float64, error) {
			if calls != nil {
				*calls++
			}
			return val, conf, err
		},
	}
}

func testRegion() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 16, 16))
}

func TestCascadeFirstConfidentWins(t *testing.T) {
	var first, second int
	c := NewCascade("test", 0.6, nil,
		strat("a", 1, 0.9, nil, &first),
		strat("b", 2, 0.9, nil, &second),
	)

	val, conf, ok := c.Run(context.Background(), testRegion())
	if !ok || val != 1 || conf != 0.9 {
		t.Errorf("Run = %d,%v,%v want 1,0.9,true", val, conf, ok)
	}
	if second != 0 {
		t.Error("later strategy should not run after a confident result")
	}
}

func TestCascadeFallsThroughOnErrorAndLowConfidence(t *testing.T) {
	c := NewCascade("test", 0.6, nil,
		strat("err", 0, 0, errors.New("boom"), nil),
		strat("weak", 7, 0.3, nil, nil),
		strat("good", 9, 0.8, nil, nil),
	)

	val, _, ok := c.Run(context.Background(), testRegion())
	if !ok || val != 9 {
		t.Errorf("Run = %d,%v want 9,true", val, ok)
	}
}

func TestCascadeExhaustionIsAbsentNotError(t *testing.T) {
	c := NewCascade("test", 0.6, nil,
		strat("err", 0, 0, errors.New("boom"), nil),
		strat("weak", 5, 0.2, nil, nil),
	)

	val, conf, ok := c.Run(context.Background(), testRegion())
	if ok || val != 0 || conf != 0 {
		t.Errorf("Run = %d,%v,%v want absent", val, conf, ok)
	}
}

func TestCascadeCachesByContent(t *testing.T) {
	calls := 0
	cache := NewCache[int](16)
	c := NewCascade("test", 0.6, cache, strat("a", 4, 0.9, nil, &calls))

	img := testRegion()
	for i := 0; i < 3; i++ {
		if _, _, ok := c.Run(context.Background(), img); !ok {
			t.Fatal("expected confident result")
		}
	}
	if calls != 1 {
		t.Errorf("strategy ran %d times for identical input, want 1", calls)
	}

	// Different content misses the cache.
	other := testRegion()
	other.Pix[0] = 255
	c.Run(context.Background(), other)
	if calls != 2 {
		t.Errorf("strategy ran %d times after distinct input, want 2", calls)
	}
}

func TestCascadeCachesMisses(t *testing.T) {
	calls := 0
	cache := NewCache[int](16)
	c := NewCascade("test", 0.6, cache, strat("weak", 1, 0.1, nil, &calls))

	img := testRegion()
	c.Run(context.Background(), img)
	c.Run(context.Background(), img)
	if calls != 1 {
		t.Errorf("failed recognition re-ran %d times for identical input, want 1", calls)
	}
}

func TestCacheBounded(t *testing.T) {
	cache := NewCache[int](2)
	c := NewCascade("test", 0.6, cache, strat("a", 1, 0.9, nil, nil))

	for i := 0; i < 5; i++ {
		img := testRegion()
		img.Pix[0] = uint8(i)
		c.Run(context.Background(), img)
	}
	if cache.Len() > 2 {
		t.Errorf("cache holds %d entries, want <= 2", cache.Len())
	}
}

func TestCascadeNilImage(t *testing.T) {
	c := NewCascade("test", 0.6, nil, strat("a", 1, 0.9, nil, nil))
	if _, _, ok := c.Run(context.Background(), nil); ok {
		t.Error("nil image should be absent")
	}
}
