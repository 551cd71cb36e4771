// Package engine runs the capture loop: poll a frame source, slice the
// frame into the site's regions, run the recognizers, assemble and seal
// a table state, and publish it over the bridge when it differs from
// the last published one.
package engine

import (
	"context"
	"image"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/tablesight/tablesight/internal/bridge"
	"github.com/tablesight/tablesight/internal/capture"
	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/geometry"
	"github.com/tablesight/tablesight/internal/ocr"
	"github.com/tablesight/tablesight/internal/recognize"
	"github.com/tablesight/tablesight/internal/resilience"
	"github.com/tablesight/tablesight/internal/sites"
	"github.com/tablesight/tablesight/internal/state"
	"github.com/tablesight/tablesight/internal/syncx"
	"github.com/tablesight/tablesight/internal/trace"
)

// Phase is the loop's observable position in the cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCapturing   Phase = "capturing"
	PhaseRecognizing Phase = "recognizing"
	PhaseValidating  Phase = "validating"
)

const (
	// HashSkipDistance is the perception-hash distance at or below which
	// two consecutive frames count as identical and recognition is skipped.
	HashSkipDistance = 2

	// CalibrationMinFit bounds both calibration checks: the fraction of
	// configured regions that must lie inside the frame, and the fraction
	// of expected fields the recognizers must populate.
	CalibrationMinFit = 0.5

	stopTimeout = 5 * time.Second
	ewmaAlpha   = 0.2
)

// Config tunes the poll loop.
type Config struct {
	PollInterval    time.Duration
	CaptureTimeout  time.Duration
	ConfidenceFloor float64
	Workers         int
	HistorySize     int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 3 * time.Second
	}
	if c.ConfidenceFloor <= 0 {
		c.ConfidenceFloor = recognize.DefaultConfidenceFloor
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 32
	}
	return c
}

// Stats is a point-in-time snapshot of loop counters.
type Stats struct {
	Captures     uint64  `json:"captures"`
	Successes    uint64  `json:"successes"`
	Errors       uint64  `json:"errors"`
	Skipped      uint64  `json:"skipped"`
	Published    uint64  `json:"published"`
	AvgProcessMS float64 `json:"avg_process_ms"`
	LastError    string  `json:"last_error,omitempty"`
	Phase        Phase   `json:"phase"`
	Calibrated   bool    `json:"calibrated"`
	MemoryRSS    uint64  `json:"memory_rss_bytes,omitempty"`
}

// Engine owns the capture loop for one table.
type Engine struct {
	cfg    Config
	site   *sites.SiteConfig
	source capture.Source
	ocr    ocr.Client
	bus    *bridge.Bridge

	cards   *recognize.CardRecognizer
	numbers *recognize.NumberRecognizer
	markers *recognize.MarkerDetector

	breaker *resilience.Breaker

	phase      *syncx.Cell[Phase]
	calibrated *syncx.Cell[bool]
	lastHash   *syncx.Cell[*goimagehash.ImageHash]
	lastSig    *syncx.Cell[string]
	lastErr    *syncx.Cell[string]
	avgMS      *syncx.Cell[float64]
	history    *syncx.Ring[state.TableState]

	captures  atomic.Uint64
	successes atomic.Uint64
	errors    atomic.Uint64
	skipped   atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New assembles an engine. ocrClient may be a disabled stub and
// templates may be nil; recognition then runs on the heuristic tiers.
func New(source capture.Source, ocrClient ocr.Client, site *sites.SiteConfig, templates *recognize.TemplateCatalog, bus *bridge.Bridge, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:        cfg,
		site:       site,
		source:     capture.WithTimeout(source, cfg.CaptureTimeout),
		ocr:        ocrClient,
		bus:        bus,
		cards:      recognize.NewCardRecognizer(ocrClient, site, templates, recognize.NewCache[state.Card](0)),
		numbers:    recognize.NewNumberRecognizer(ocrClient, site, recognize.NewCache[float64](0)),
		markers:    recognize.NewMarkerDetector(site, templates),
		breaker:    resilience.New(resilience.CaptureConfig()),
		phase:      syncx.NewCell(PhaseIdle),
		calibrated: syncx.NewCell(false),
		lastHash:   syncx.NewCell[*goimagehash.ImageHash](nil),
		lastSig:    syncx.NewCell(""),
		lastErr:    syncx.NewCell(""),
		avgMS:      syncx.NewCell(0.0),
		history:    syncx.NewRing[state.TableState](cfg.HistorySize),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the poll loop. It returns immediately; the loop stops
// when ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	slog.Info("engine started",
		"site", e.site.Name,
		"interval", e.cfg.PollInterval,
		"workers", e.cfg.Workers)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if _, err := e.cycle(ctx, false); err != nil {
				slog.Debug("cycle failed", "error", err)
			}
		}
	}
}

// Stop halts the loop and closes the source, waiting up to a bound for
// the in-flight cycle to finish.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	select {
	case <-e.done:
	case <-time.After(stopTimeout):
		slog.Warn("engine stop timed out")
	}
	if err := e.source.Close(); err != nil {
		slog.Warn("source close failed", "error", err)
	}
	e.phase.Store(PhaseIdle)
}

// ForceUpdate runs one full cycle immediately, bypassing the
// frame-dedup skip, and returns the state. An unchanged state is still
// returned but not republished.
func (e *Engine) ForceUpdate(ctx context.Context) (state.TableState, error) {
	ctx, span := trace.StartSpan(ctx, "force_update")
	defer span.End()
	return e.cycle(ctx, true)
}

// cycle performs one capture-recognize-publish pass.
func (e *Engine) cycle(ctx context.Context, force bool) (state.TableState, error) {
	start := time.Now()
	e.captures.Add(1)
	e.phase.Store(PhaseCapturing)
	defer e.phase.Store(PhaseIdle)

	frame, err := resilience.ExecuteWithResult(e.breaker, func() (image.Image, error) {
		return e.source.Capture(ctx)
	})
	if err != nil {
		e.errors.Add(1)
		e.lastErr.Store(err.Error())
		return state.TableState{}, err
	}

	if !force && e.unchangedFrame(frame) {
		// First frame after a restart can hash equal with nothing
		// published yet; only then fall through and recognize it.
		if last, ok := e.bus.Latest(); ok {
			e.skipped.Add(1)
			return last, nil
		}
	}

	e.phase.Store(PhaseRecognizing)
	ts := e.recognizeFrame(ctx, frame)

	e.phase.Store(PhaseValidating)
	ts.Calibrated = e.calibrated.Load()
	ts.Seal(time.Now().UTC())

	e.successes.Add(1)
	e.observeDuration(start)

	if ts.HashSignature == e.lastSig.Load() {
		return ts, nil
	}
	e.lastSig.Store(ts.HashSignature)
	e.history.Push(ts)
	e.bus.Publish(ts)

	slog.Debug("state published",
		"signature", ts.HashSignature,
		"stage", ts.Stage,
		"pot", ts.PotSize,
		"confidence", ts.Confidence)
	return ts, nil
}

// unchangedFrame hashes the frame and reports whether it is close
// enough to the previous one to skip recognition. The hash is recorded
// either way.
func (e *Engine) unchangedFrame(frame image.Image) bool {
	h, err := goimagehash.PerceptionHash(frame)
	if err != nil {
		return false
	}
	prev := e.lastHash.Swap(h)
	if prev == nil {
		return false
	}
	dist, err := h.Distance(prev)
	if err != nil {
		return false
	}
	return dist <= HashSkipDistance
}

// recognizeFrame runs the region recognizers over one frame with a
// bounded worker pool and assembles the raw state. Absent fields stay
// zero and drag the confidence down; they never error the cycle.
func (e *Engine) recognizeFrame(ctx context.Context, frame image.Image) state.TableState {
	var mu sync.Mutex
	ts := state.TableState{HeroSeat: e.site.HeroSeat}
	var confs []float64

	record := func(conf float64, fn func()) {
		mu.Lock()
		defer mu.Unlock()
		confs = append(confs, conf)
		if fn != nil {
			fn()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	g.Go(func() error {
		if region, ok := e.region(frame, sites.RegionPot); ok {
			v, conf, found := e.numbers.Extract(gctx, region)
			if found {
				record(conf, func() { ts.PotSize = v })
			} else {
				record(0, nil)
			}
		}
		return nil
	})

	g.Go(func() error {
		if region, ok := e.region(frame, sites.RegionCurrentBet); ok {
			v, conf, found := e.numbers.Extract(gctx, region)
			if found {
				record(conf, func() { ts.CurrentBet = v })
			} else {
				record(0, nil)
			}
		}
		return nil
	})

	g.Go(func() error {
		if region, ok := e.region(frame, sites.RegionHeroCards); ok {
			cards, conf := e.cards.RecognizeRow(gctx, region, recognize.HeroCardSlots)
			record(conf, func() { ts.HeroCards = cards })
		}
		return nil
	})

	g.Go(func() error {
		if region, ok := e.region(frame, sites.RegionBoardCards); ok {
			cards, conf := e.cards.RecognizeRow(gctx, region, recognize.BoardCardSlots)
			record(conf, func() { ts.BoardCards = cards })
		}
		return nil
	})

	g.Go(func() error {
		seat, conf, found := e.markers.FindDealerButton(gctx, frame)
		if found {
			record(conf, func() { ts.DealerSeat = seat })
		}
		return nil
	})

	seatNumbers := e.site.SeatNumbers()
	seatInfos := make([]state.SeatInfo, len(seatNumbers))
	for i, n := range seatNumbers {
		seatInfos[i] = state.SeatInfo{SeatNumber: n, IsHero: n == e.site.HeroSeat}
	}
	for i := range seatInfos {
		info := &seatInfos[i]
		g.Go(func() error {
			e.readSeat(gctx, frame, info)
			return nil
		})
	}

	_ = g.Wait()

	ts.Seats = seatInfos
	e.assignBlinds(&ts)

	if len(confs) > 0 {
		total := 0.0
		for _, c := range confs {
			total += c
		}
		ts.Confidence = total / float64(len(confs))
	}
	return ts
}

// readSeat fills one seat's stack, name and activity. A seat with a
// readable stack is active.
func (e *Engine) readSeat(ctx context.Context, frame image.Image, info *state.SeatInfo) {
	if box, ok := e.site.StackRegion(info.SeatNumber); ok {
		if stack, conf, found := e.numbers.Extract(ctx, geometry.Extract(frame, box)); found {
			info.StackSize = stack
			info.IsActive = true
			info.Confidence = conf
		}
	}
	if box, ok := e.site.NameRegion(info.SeatNumber); ok && e.ocr != nil {
		if name, err := e.ocr.ExtractText(ctx, geometry.Extract(frame, box), ""); err == nil {
			info.PlayerName = name
		}
	}
	if info.IsHero {
		info.IsActive = true
	}
}

// assignBlinds marks the dealer and derives blinds positionally: the
// next active seat clockwise of the button posts the small blind, the
// one after it the big blind. Heads-up the dealer posts the small blind.
func (e *Engine) assignBlinds(ts *state.TableState) {
	if ts.DealerSeat == 0 {
		return
	}

	actives := ts.ActiveSeatNumbers()
	for i := range ts.Seats {
		if ts.Seats[i].SeatNumber == ts.DealerSeat {
			ts.Seats[i].HasDealerButton = true
		}
	}
	if len(actives) < 2 {
		return
	}

	dealerIdx := -1
	for i, n := range actives {
		if n == ts.DealerSeat {
			dealerIdx = i
			break
		}
	}
	if dealerIdx < 0 {
		return
	}

	var sb, bb int
	if len(actives) == 2 {
		sb = actives[dealerIdx]
		bb = actives[(dealerIdx+1)%2]
	} else {
		sb = actives[(dealerIdx+1)%len(actives)]
		bb = actives[(dealerIdx+2)%len(actives)]
	}
	for i := range ts.Seats {
		switch ts.Seats[i].SeatNumber {
		case sb:
			ts.Seats[i].IsSmallBlind = true
		case bb:
			ts.Seats[i].IsBigBlind = true
		}
	}
}

// region extracts a named region, reporting false when it is not
// configured.
func (e *Engine) region(frame image.Image, name string) (image.Image, bool) {
	box, ok := e.site.Region(name)
	if !ok {
		return nil, false
	}
	return geometry.Extract(frame, box), true
}

// Calibrate captures one reference frame and checks it two ways: the
// configured region catalog must fit the frame (critical regions
// entirely so), and a full recognizer pass over it must populate enough
// of the expected fields. Until it passes, states publish with
// Calibrated false.
func (e *Engine) Calibrate(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "calibrate")
	defer span.End()

	frame, err := e.source.Capture(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeCalibrationFailed, "calibration capture")
	}

	bounds := frame.Bounds()
	fit := 0
	for name, box := range e.site.Regions {
		if box.Rect().In(bounds) {
			fit++
		} else if e.site.IsCritical(name) {
			e.calibrated.Store(false)
			return apperrors.Newf(apperrors.CodeCalibrationFailed,
				"critical region %s outside %dx%d frame", name, bounds.Dx(), bounds.Dy())
		}
	}
	if len(e.site.Regions) > 0 && float64(fit)/float64(len(e.site.Regions)) < CalibrationMinFit {
		e.calibrated.Store(false)
		return apperrors.Newf(apperrors.CodeCalibrationFailed,
			"only %d of %d regions fit the frame", fit, len(e.site.Regions))
	}

	ts := e.recognizeFrame(ctx, frame)
	populated, expected := e.fieldScore(ts)
	if expected > 0 && float64(populated)/float64(expected) < CalibrationMinFit {
		e.calibrated.Store(false)
		return apperrors.Newf(apperrors.CodeCalibrationFailed,
			"recognizers populated %d of %d expected fields", populated, expected)
	}

	e.calibrated.Store(true)
	trace.Logger(ctx).Info("calibration passed",
		"site", e.site.Name, "fields", populated, "expected", expected)
	return nil
}

// fieldScore counts the fields a recognizer pass filled against the
// fields the region catalog promises. The board stays empty preflop and
// the button disc is often obscured, so neither alone fails calibration.
func (e *Engine) fieldScore(ts state.TableState) (populated, expected int) {
	count := func(configured, filled bool) {
		if !configured {
			return
		}
		expected++
		if filled {
			populated++
		}
	}
	_, ok := e.site.Region(sites.RegionPot)
	count(ok, ts.PotSize > 0)
	_, ok = e.site.Region(sites.RegionCurrentBet)
	count(ok, ts.CurrentBet > 0)
	_, ok = e.site.Region(sites.RegionHeroCards)
	count(ok, len(ts.HeroCards) > 0)
	_, ok = e.site.Region(sites.RegionBoardCards)
	count(ok, len(ts.BoardCards) > 0)
	_, ok = e.site.Region(sites.RegionDealerArea)
	count(ok, ts.DealerSeat != 0)
	for _, seat := range ts.Seats {
		_, ok = e.site.StackRegion(seat.SeatNumber)
		count(ok, seat.StackSize > 0)
	}
	return populated, expected
}

// CaptureFrame grabs one raw frame through the breaker-guarded source,
// for baseline capture and drift checks.
func (e *Engine) CaptureFrame(ctx context.Context) (image.Image, error) {
	return resilience.ExecuteWithResult(e.breaker, func() (image.Image, error) {
		return e.source.Capture(ctx)
	})
}

// Calibrated reports whether the last calibration passed.
func (e *Engine) Calibrated() bool { return e.calibrated.Load() }

// History returns the recent published states, oldest first.
func (e *Engine) History() []state.TableState { return e.history.Snapshot() }

func (e *Engine) observeDuration(start time.Time) {
	ms := float64(time.Since(start).Microseconds()) / 1000
	e.avgMS.Update(func(avg *float64) {
		if *avg == 0 {
			*avg = ms
			return
		}
		*avg = (1-ewmaAlpha)*(*avg) + ewmaAlpha*ms
	})
}

// Stats snapshots the loop counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Captures:     e.captures.Load(),
		Successes:    e.successes.Load(),
		Errors:       e.errors.Load(),
		Skipped:      e.skipped.Load(),
		Published:    e.bus.Published(),
		AvgProcessMS: e.avgMS.Load(),
		LastError:    e.lastErr.Load(),
		Phase:        e.phase.Load(),
		Calibrated:   e.calibrated.Load(),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := p.MemoryInfo(); err == nil {
			s.MemoryRSS = mem.RSS
		}
	}
	return s
}
