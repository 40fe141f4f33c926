package classifier

import "strings"

// Categories.
const (
	CategoryBattery    = "battery"
	CategoryCharging   = "charging"
	CategoryClimate    = "climate"
	CategoryDoor       = "door"
	CategoryLocation   = "location"
	CategoryMotor      = "motor"
	CategoryTrip       = "trip"
	CategoryDevice     = "device"
	CategoryDiagnostic = "diagnostic"
	CategoryPower      = "power"
	CategoryNetwork    = "network"
	CategorySystem     = "system"
	CategoryTire       = "tire"
)

// categoryNames are matched literally against path segments before prefixes.
var categoryNames = map[string]struct{}{
	CategoryBattery: {}, CategoryCharging: {}, CategoryClimate: {}, CategoryDoor: {},
	CategoryLocation: {}, CategoryMotor: {}, CategoryTrip: {}, CategoryDevice: {},
	CategoryDiagnostic: {}, CategoryPower: {}, CategoryNetwork: {}, CategorySystem: {},
	CategoryTire: {},
}

// prefixCategories maps dotted path prefixes to categories. The longest
// matching prefix wins, so "v.e.cabin" beats "v.e".
var prefixCategories = map[string]string{
	"v.b":       CategoryBattery,
	"v.c":       CategoryCharging,
	"v.d":       CategoryDoor,
	"v.e.cabin": CategoryClimate,
	"v.e":       CategoryDiagnostic,
	"v.g":       CategoryPower,
	"v.i":       CategoryMotor,
	"v.m":       CategoryMotor,
	"v.p":       CategoryLocation,
	"v.t":       CategoryTire,
	"m.net":     CategoryNetwork,
	"m":         CategorySystem,
	"s":         CategorySystem,
}

// CategoryFor returns the category of a dotted metric path.
//
// A segment that is literally a category name wins. Otherwise the longest
// prefix in the prefix table decides (see prefixCategory).
func CategoryFor(path string) string {
	path = strings.ToLower(path)
	for seg := range strings.SplitSeq(path, ".") {
		if _, ok := categoryNames[seg]; ok {
			return seg
		}
	}
	return prefixCategory(path)
}

// prefixCategory picks the category of the longest matching prefix.
// Vendor-prefixed paths are matched with the vendor namespace stripped.
// The default is CategorySystem.
//
// Dictionary metrics use it directly: "v.b.power" is battery, not power.
func prefixCategory(path string) string {
	path = strings.ToLower(path)
	if vendor, rest, ok := strings.Cut(path, "."); ok {
		if _, known := VendorPrefixes[vendor]; known {
			if c := longestPrefixCategory(rest); c != "" {
				return c
			}
			if c := longestPrefixCategory("v." + rest); c != "" {
				return c
			}
		}
	}

	if c := longestPrefixCategory(path); c != "" {
		return c
	}
	return CategorySystem
}

func longestPrefixCategory(path string) string {
	best, bestLen := "", -1
	for prefix, category := range prefixCategories {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = category, len(prefix)
		}
	}
	return best
}
