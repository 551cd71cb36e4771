// Package sites holds per-site region catalogs: where each semantic field
// of the table (pot, cards, seats, markers) renders for a given site,
// resolution and theme. Catalogs are loaded once and never mutated;
// recalibration produces a new instance.
package sites

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/geometry"
)

// Well-known region names the engine looks up. Seat regions follow the
// "seat_N" / "seat_N_stack" / "seat_N_name" pattern.
const (
	RegionPot         = "pot"
	RegionCurrentBet  = "current_bet"
	RegionBoardCards  = "board_cards"
	RegionHeroCards   = "hero_cards"
	RegionDealerArea  = "dealer_button_area"
	seatRegionPrefix  = "seat_"
	stackRegionSuffix = "_stack"
	nameRegionSuffix  = "_name"
)

// ColorThresholds tunes the heuristic (non-OCR) recognition tiers.
type ColorThresholds struct {
	// Minimum fraction of near-white pixels for a card face to count as present.
	CardFaceMin float64 `yaml:"card_face_min"`
	// Red vs black glyph ratio above which a card reads as a red suit.
	RedRatioMin float64 `yaml:"red_ratio_min"`
	// Hue window (degrees) and saturation/value floors for the dealer button disc.
	ButtonHueMin float64 `yaml:"button_hue_min"`
	ButtonHueMax float64 `yaml:"button_hue_max"`
	ButtonSatMin float64 `yaml:"button_sat_min"`
	ButtonValMin float64 `yaml:"button_val_min"`
	// Minimum matching-pixel count for a marker blob.
	ButtonMinArea int `yaml:"button_min_area"`
}

// OCRParams tunes text extraction per site.
type OCRParams struct {
	NumberWhitelist string `yaml:"number_whitelist"`
	RankWhitelist   string `yaml:"rank_whitelist"`
	UpscaleMinDim   int    `yaml:"upscale_min_dim"`
}

// SiteConfig is the immutable catalog for one (site, theme) pair.
type SiteConfig struct {
	Name            string                          `yaml:"name"`
	Theme           string                          `yaml:"theme"`
	Resolution      string                          `yaml:"resolution"`
	SeatCount       int                             `yaml:"seat_count"`
	HeroSeat        int                             `yaml:"hero_seat"`
	Regions         map[string]geometry.BoundingBox `yaml:"regions"`
	CriticalRegions []string                        `yaml:"critical_regions"`
	Colors          ColorThresholds                 `yaml:"colors"`
	OCR             OCRParams                       `yaml:"ocr"`
}

// Region looks up a named box.
func (c *SiteConfig) Region(name string) (geometry.BoundingBox, bool) {
	box, ok := c.Regions[name]
	return box, ok
}

// SeatRegion returns the box for seat n.
func (c *SiteConfig) SeatRegion(n int) (geometry.BoundingBox, bool) {
	return c.Region(fmt.Sprintf("seat_%d", n))
}

// StackRegion returns the stack-size box for seat n.
func (c *SiteConfig) StackRegion(n int) (geometry.BoundingBox, bool) {
	return c.Region(fmt.Sprintf("seat_%d_stack", n))
}

// NameRegion returns the player-name box for seat n.
func (c *SiteConfig) NameRegion(n int) (geometry.BoundingBox, bool) {
	return c.Region(fmt.Sprintf("seat_%d_name", n))
}

// SeatNumbers returns configured seat numbers in ascending order.
func (c *SiteConfig) SeatNumbers() []int {
	var seats []int
	for n := 1; n <= c.SeatCount; n++ {
		if _, ok := c.SeatRegion(n); ok {
			seats = append(seats, n)
		}
	}
	sort.Ints(seats)
	return seats
}

// IsCritical reports whether a region is marked critical for drift checks.
func (c *SiteConfig) IsCritical(name string) bool {
	for _, r := range c.CriticalRegions {
		if r == name {
			return true
		}
	}
	return false
}

// Key identifies the catalog within a multi-site catalog set.
func (c *SiteConfig) Key() string {
	if c.Theme == "" {
		return c.Name
	}
	return c.Name + "/" + c.Theme
}

func (c *SiteConfig) validate() error {
	if c.Name == "" {
		return apperrors.New(apperrors.CodeConfigInvalid, "site config missing name")
	}
	if c.SeatCount <= 0 {
		return apperrors.Newf(apperrors.CodeConfigInvalid, "site %s: seat_count must be positive", c.Name)
	}
	for name, box := range c.Regions {
		if box.Width < 0 || box.Height < 0 {
			return apperrors.Newf(apperrors.CodeConfigInvalid,
				"site %s: region %s has negative dimensions", c.Name, name)
		}
	}
	return nil
}

func (c *SiteConfig) applyDefaults() {
	if c.Colors.CardFaceMin == 0 {
		c.Colors.CardFaceMin = 0.35
	}
	if c.Colors.RedRatioMin == 0 {
		c.Colors.RedRatioMin = 0.5
	}
	if c.Colors.ButtonHueMax == 0 {
		c.Colors.ButtonHueMin = 35
		c.Colors.ButtonHueMax = 65
	}
	if c.Colors.ButtonSatMin == 0 {
		c.Colors.ButtonSatMin = 0.4
	}
	if c.Colors.ButtonValMin == 0 {
		c.Colors.ButtonValMin = 0.5
	}
	if c.Colors.ButtonMinArea == 0 {
		c.Colors.ButtonMinArea = 40
	}
	if c.OCR.NumberWhitelist == "" {
		c.OCR.NumberWhitelist = "0123456789.,$"
	}
	if c.OCR.RankWhitelist == "" {
		c.OCR.RankWhitelist = "A23456789TJQK10"
	}
	if c.OCR.UpscaleMinDim == 0 {
		c.OCR.UpscaleMinDim = 150
	}
	// Propagate names into the boxes so extraction warnings identify the region.
	for name, box := range c.Regions {
		if box.Name == "" {
			box.Name = name
			c.Regions[name] = box
		}
	}
}

// Load reads a single site config from a YAML file.
func Load(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "read site config %s", path)
	}
	var cfg SiteConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "parse site config %s", path)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Catalog is a set of site configs keyed by site and optional theme.
type Catalog struct {
	configs map[string]*SiteConfig
}

// NewCatalog builds a catalog from explicit configs. The built-in demo
// layout is always present so a fresh install has something to run against.
func NewCatalog(configs ...*SiteConfig) *Catalog {
	cat := &Catalog{configs: make(map[string]*SiteConfig)}
	demo := Demo()
	cat.configs[demo.Key()] = demo
	for _, c := range configs {
		cat.configs[c.Key()] = c
	}
	return cat
}

// LoadDir loads every *.yaml file in dir into a catalog. A missing
// directory is not an error; the catalog then only holds the demo layout.
func LoadDir(dir string) (*Catalog, error) {
	cat := NewCatalog()
	if dir == "" {
		return cat, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return cat, nil
		}
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "read sites dir %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		cfg, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		cat.configs[cfg.Key()] = cfg
	}
	return cat, nil
}

// Lookup finds the config for (site, theme), falling back to the
// themeless entry for the site.
func (c *Catalog) Lookup(site, theme string) (*SiteConfig, bool) {
	if theme != "" {
		if cfg, ok := c.configs[site+"/"+theme]; ok {
			return cfg, true
		}
	}
	cfg, ok := c.configs[site]
	return cfg, ok
}

// Sites lists configured catalog keys.
func (c *Catalog) Sites() []string {
	keys := make([]string, 0, len(c.configs))
	for k := range c.configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Demo returns the built-in 6-max 800x600 layout used by tests and
// first-run setups.
func Demo() *SiteConfig {
	cfg := &SiteConfig{
		Name:       "demo",
		Resolution: "800x600",
		SeatCount:  6,
		HeroSeat:   1,
		Regions: map[string]geometry.BoundingBox{
			RegionPot:        {X: 340, Y: 200, Width: 120, Height: 30},
			RegionCurrentBet: {X: 340, Y: 240, Width: 120, Height: 25},
			RegionBoardCards: {X: 250, Y: 270, Width: 300, Height: 80},
			RegionHeroCards:  {X: 350, Y: 420, Width: 110, Height: 75},
			RegionDealerArea: {X: 150, Y: 120, Width: 500, Height: 360},
			"seat_1":         {X: 350, Y: 500, Width: 100, Height: 60},
			"seat_2":         {X: 80, Y: 380, Width: 100, Height: 60},
			"seat_3":         {X: 80, Y: 140, Width: 100, Height: 60},
			"seat_4":         {X: 350, Y: 40, Width: 100, Height: 60},
			"seat_5":         {X: 620, Y: 140, Width: 100, Height: 60},
			"seat_6":         {X: 620, Y: 380, Width: 100, Height: 60},
			"seat_1_stack":   {X: 350, Y: 560, Width: 100, Height: 20},
			"seat_2_stack":   {X: 80, Y: 440, Width: 100, Height: 20},
			"seat_3_stack":   {X: 80, Y: 200, Width: 100, Height: 20},
			"seat_4_stack":   {X: 350, Y: 100, Width: 100, Height: 20},
			"seat_5_stack":   {X: 620, Y: 200, Width: 100, Height: 20},
			"seat_6_stack":   {X: 620, Y: 440, Width: 100, Height: 20},
		},
		CriticalRegions: []string{RegionHeroCards, RegionBoardCards},
	}
	cfg.applyDefaults()
	return cfg
}
