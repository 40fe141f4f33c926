package parser

import (
	"time"
	"unicode/utf8"
)

// MaxStateLength caps text values kept on an object.
const MaxStateLength = 255

// truncationMarker is appended to text cut at MaxStateLength.
const truncationMarker = "..."

// Kind identifies which field of a Value carries the result.
type Kind int

// Value kinds.
const (
	KindNone Kind = iota
	KindNumber
	KindText
	KindTime
	KindStructure
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindTime:
		return "time"
	case KindStructure:
		return "structure"
	default:
		return "none"
	}
}

// Family is a unit family hint that selects dedicated parsing.
type Family int

// Unit families.
const (
	FamilyNone Family = iota
	FamilyPressure
	FamilyDuration
	FamilyTimestamp
)

// Hints tells Parse what the caller expects.
type Hints struct {
	// Numeric requires a numeric result; anything else becomes NoValue.
	Numeric bool

	// Family selects pressure conversion, duration or timestamp parsing.
	Family Family

	// Unit is the canonical unit of the metric (e.g. "kPa", "min").
	// Duration parsing uses it to scale bare numbers.
	Unit string
}

// Value is the typed result of parsing one payload.
type Value struct {
	Kind      Kind
	Number    float64
	Text      string
	Time      time.Time
	Structure any

	// Attributes carries derived data (list statistics, extra JSON keys).
	Attributes map[string]any

	// Failed marks a ParseFailure: the payload could not be typed.
	// Attributes["raw_value"] holds the original string.
	Failed bool
}

// IsNone reports whether the value carries no usable state.
func (v Value) IsNone() bool {
	return v.Kind == KindNone
}

// Interface returns the value as a plain Go value: nil, float64, string,
// time.Time or the decoded JSON structure.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindText:
		return v.Text
	case KindTime:
		return v.Time
	case KindStructure:
		return v.Structure
	default:
		return nil
	}
}

// NoValue returns an empty Value.
func NoValue() Value {
	return Value{Kind: KindNone}
}

// Number returns a numeric Value.
func Number(n float64) Value {
	return Value{Kind: KindNumber, Number: n}
}

// Text returns a text Value capped at MaxStateLength.
func Text(s string) Value {
	return Value{Kind: KindText, Text: Truncate(s, MaxStateLength)}
}

// failure builds a ParseFailure value that keeps the raw payload.
func failure(raw string) Value {
	return Value{
		Kind:       KindNone,
		Failed:     true,
		Attributes: map[string]any{"raw_value": Truncate(raw, MaxStateLength)},
	}
}

// Truncate caps s at limit bytes, marking the cut with "..." and never
// splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
