package classifier

import (
	"regexp"
	"slices"
	"strings"

	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/parser"
)

// Pattern is a keyword that identifies a class of metric when the exact
// path is not in the dictionary.
type Pattern struct {
	Keyword     string
	Name        string
	Unit        string
	Family      parser.Family
	DeviceClass string
	Icon        string
	Type        entity.Type
}

// Patterns is evaluated in order. A segment equal to a keyword is preferred
// over a segment containing it.
var Patterns = []Pattern{
	{Keyword: "soc", Name: "State of Charge", Unit: unitPercent, DeviceClass: "battery", Icon: "mdi:battery"},
	{Keyword: "range", Name: "Range", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:map-marker-distance"},
	{Keyword: "temp", Name: "Temperature", Unit: unitCelsius, DeviceClass: "temperature", Icon: "mdi:thermometer"},
	{Keyword: "voltage", Name: "Voltage", Unit: unitVolt, DeviceClass: "voltage", Icon: "mdi:flash"},
	{Keyword: "current", Name: "Current", Unit: unitAmp, DeviceClass: "current", Icon: "mdi:current-ac"},
	{Keyword: "power", Name: "Power", Unit: unitKW, DeviceClass: "power", Icon: "mdi:flash"},
	{Keyword: "energy", Name: "Energy", Unit: unitKWh, DeviceClass: "energy", Icon: "mdi:flash"},
	{Keyword: "speed", Name: "Speed", Unit: unitKmh, DeviceClass: "speed", Icon: "mdi:speedometer"},
	{Keyword: "odometer", Name: "Odometer", Unit: unitKm, DeviceClass: "distance", Icon: "mdi:counter"},
	{Keyword: "pressure", Name: "Pressure", Unit: unitKPa, Family: parser.FamilyPressure, DeviceClass: "pressure", Icon: "mdi:gauge"},
	{Keyword: "signal", Name: "Signal Strength", Unit: unitDBm, DeviceClass: "signal_strength", Icon: "mdi:signal"},
	{Keyword: "door", Name: "Door", DeviceClass: "door", Icon: "mdi:car-door", Type: entity.TypeBoolean},
	{Keyword: "lock", Name: "Lock", DeviceClass: "lock", Icon: "mdi:lock", Type: entity.TypeBoolean},
	{Keyword: "charging", Name: "Charging", DeviceClass: "battery_charging", Icon: "mdi:battery-charging", Type: entity.TypeBoolean},
	{Keyword: "trunk", Name: "Trunk", DeviceClass: "door", Icon: "mdi:car-back", Type: entity.TypeBoolean},
	{Keyword: "hood", Name: "Hood", DeviceClass: "door", Icon: "mdi:car-lifted-pickup", Type: entity.TypeBoolean},
	{Keyword: "alert", Name: "Alert", DeviceClass: "problem", Icon: "mdi:alert", Type: entity.TypeBoolean},
	{Keyword: "timer", Name: "Timer", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer"},
	{Keyword: "duration", Name: "Duration", Unit: unitSecond, Family: parser.FamilyDuration, DeviceClass: "duration", Icon: "mdi:timer"},
	{Keyword: "timestamp", Name: "Timestamp", Family: parser.FamilyTimestamp, DeviceClass: "timestamp", Icon: "mdi:clock"},
	{Keyword: "climate", Name: "Climate Control", Icon: "mdi:air-conditioner"},
	{Keyword: "fan", Name: "Fan", Icon: "mdi:fan"},
	{Keyword: "version", Name: "Version", Icon: "mdi:package-up"},
	{Keyword: "status", Name: "Status", Icon: "mdi:information-outline"},
}

// matchPattern finds the first pattern whose keyword equals a segment, then
// the first whose keyword is contained in a segment, then one contained in
// the display name. Boolean patterns are skipped for paths that name a
// quantity ("charging.duration" is a duration, not a flag).
func matchPattern(segments []string, displayName string) (*Pattern, bool) {
	quantity := hasBooleanExclusion(strings.Join(segments, "."))
	usable := func(p *Pattern) bool {
		return !quantity || p.Type != entity.TypeBoolean
	}

	for i := range Patterns {
		if !usable(&Patterns[i]) {
			continue
		}
		for _, seg := range segments {
			if seg == Patterns[i].Keyword {
				return &Patterns[i], true
			}
		}
	}
	for i := range Patterns {
		if !usable(&Patterns[i]) {
			continue
		}
		for _, seg := range segments {
			if strings.Contains(seg, Patterns[i].Keyword) {
				return &Patterns[i], true
			}
		}
	}
	name := strings.ToLower(displayName)
	for i := range Patterns {
		if usable(&Patterns[i]) && strings.Contains(name, Patterns[i].Keyword) {
			return &Patterns[i], true
		}
	}
	return nil, false
}

// Structural heuristic keyword sets.
var (
	coordinateNames = map[string]struct{}{
		"latitude": {}, "longitude": {}, "lat": {}, "lon": {}, "lng": {},
	}

	booleanKeywords = []string{
		"door", "lock", "charging", "running", "connected", "active", "enabled",
	}

	booleanExclusions = []string{
		"power", "energy", "duration", "consumption", "acceleration", "direction", "monotonic",
	}

	commandKeywords = []string{
		"switch", "toggle", "set", "enable", "disable",
	}

	onWord = regexp.MustCompile(`(^|[._\s])on($|[._\s])`)
)

// IsCoordinate reports whether the last segment of a path names a latitude or
// longitude, and which.
func IsCoordinate(path string) (latitude bool, ok bool) {
	segs := strings.Split(strings.ToLower(path), ".")
	last := segs[len(segs)-1]
	if _, found := coordinateNames[last]; !found {
		return false, false
	}
	return last == "latitude" || last == "lat", true
}

func looksBoolean(path string) bool {
	p := strings.ToLower(path)
	hit := onWord.MatchString(p)
	if !hit {
		for _, kw := range booleanKeywords {
			if strings.Contains(p, kw) {
				hit = true
				break
			}
		}
	}
	return hit && !hasBooleanExclusion(p)
}

func hasBooleanExclusion(path string) bool {
	p := strings.ToLower(path)
	for _, ex := range booleanExclusions {
		if strings.Contains(p, ex) {
			return true
		}
	}
	return false
}

// looksCommand matches whole words only, so "reset" is not "set".
func looksCommand(segments []string) bool {
	for _, seg := range segments {
		if seg == "command" {
			return true
		}
		for w := range strings.FieldsFuncSeq(seg, func(r rune) bool { return r == '_' || r == '-' }) {
			if slices.Contains(commandKeywords, w) {
				return true
			}
		}
	}
	return false
}

// AccuracyFeed identifies a GPS quality metric that feeds positional accuracy.
type AccuracyFeed int

// Accuracy feeds.
const (
	AccuracyNone AccuracyFeed = iota
	AccuracyHDOP
	AccuracySignalQuality
)

// AccuracyFeedOf reports whether a path is a GPS quality feed.
func AccuracyFeedOf(path string) AccuracyFeed {
	segs := strings.Split(strings.ToLower(path), ".")
	switch segs[len(segs)-1] {
	case "gpshdop", "hdop":
		return AccuracyHDOP
	case "gpssq":
		return AccuracySignalQuality
	default:
		return AccuracyNone
	}
}
