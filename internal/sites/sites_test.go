package sites

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDemoConfig(t *testing.T) {
	cfg := Demo()

	if cfg.Name != "demo" || cfg.SeatCount != 6 {
		t.Fatalf("unexpected demo config: %s seats=%d", cfg.Name, cfg.SeatCount)
	}
	for _, name := range []string{RegionPot, RegionCurrentBet, RegionBoardCards, RegionHeroCards, RegionDealerArea} {
		if _, ok := cfg.Region(name); !ok {
			t.Errorf("demo config missing region %s", name)
		}
	}
	if got := cfg.SeatNumbers(); len(got) != 6 {
		t.Errorf("SeatNumbers() = %v, want 6 seats", got)
	}
	if !cfg.IsCritical(RegionHeroCards) {
		t.Error("hero cards should be a critical region")
	}
	if cfg.IsCritical(RegionPot) {
		t.Error("pot should not be a critical region")
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg := Demo()
	if cfg.OCR.NumberWhitelist == "" || cfg.OCR.UpscaleMinDim == 0 {
		t.Error("OCR defaults not applied")
	}
	if cfg.Colors.ButtonHueMax <= cfg.Colors.ButtonHueMin {
		t.Error("button hue window not applied")
	}
	if box, _ := cfg.Region(RegionPot); box.Name != RegionPot {
		t.Errorf("region name not propagated into box: %q", box.Name)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: acme
theme: dark
resolution: 1024x768
seat_count: 2
hero_seat: 1
regions:
  pot: {x: 10, y: 20, width: 100, height: 30}
  seat_1: {x: 0, y: 0, width: 50, height: 50}
  seat_2: {x: 100, y: 0, width: 50, height: 50}
critical_regions: [pot]
`
	path := filepath.Join(dir, "acme_dark.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Key() != "acme/dark" {
		t.Errorf("Key() = %q, want acme/dark", cfg.Key())
	}
	box, ok := cfg.Region(RegionPot)
	if !ok || box.Width != 100 {
		t.Errorf("pot region = %+v ok=%v", box, ok)
	}
	if seats := cfg.SeatNumbers(); len(seats) != 2 {
		t.Errorf("SeatNumbers() = %v", seats)
	}
}

func TestLoadRejectsNegativeDims(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: bad
seat_count: 2
regions:
  pot: {x: 0, y: 0, width: -5, height: 10}
`
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for negative width")
	}
}

func TestCatalogLookupFallback(t *testing.T) {
	cat := NewCatalog()

	if _, ok := cat.Lookup("demo", "default"); !ok {
		t.Error("lookup with unknown theme should fall back to themeless site entry")
	}
	if _, ok := cat.Lookup("nosuch", ""); ok {
		t.Error("unknown site should not resolve")
	}
}

func TestLoadDirMissingIsNotError(t *testing.T) {
	cat, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("LoadDir on missing dir: %v", err)
	}
	if _, ok := cat.Lookup("demo", ""); !ok {
		t.Error("demo layout should always be present")
	}
}
