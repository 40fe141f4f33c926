package parser

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// specialValues map to NoValue when a numeric result is required.
var specialValues = map[string]struct{}{
	"unavailable": {},
	"unknown":     {},
	"none":        {},
	"":            {},
	"null":        {},
	"nan":         {},
}

// Pressure conversion factors to kPa.
const (
	psiToKPa = 6.89476
	barToKPa = 100.0
)

// embeddedUnit matches a number directly followed by a known unit, such as
// "-101dBm" or "12.4 V".
var embeddedUnit = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*(dBm|kWh|kPa|psi|bar|°C|km|Sec|V|A|W|%)$`)

// IsSpecial reports whether s is one of the placeholder strings the vehicle
// publishes when a metric has no reading.
func IsSpecial(s string) bool {
	_, ok := specialValues[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// Parse converts a raw payload into a typed Value.
//
// Attempts, in order:
//  1. Placeholder strings become NoValue when numeric
//  2. yes/no style keywords become 1/0 when numeric
//  3. Comma or semicolon separated numeric lists, reduced to their mean
//  4. Timestamp and duration families, when hinted
//  5. JSON objects, arrays and scalars
//  6. Plain numbers
//  7. Numbers with an embedded unit
//
// If nothing matches a numeric metric the result is a ParseFailure (NoValue
// with a raw_value attribute). Otherwise the original string is kept.
func Parse(raw string, hints Hints) Value {
	s := strings.TrimSpace(raw)

	if hints.Numeric && IsSpecial(s) {
		return NoValue()
	}

	if hints.Numeric {
		if n, ok := boolKeyword(s); ok {
			return Number(n)
		}
	}

	if v, ok := parseList(s, hints); ok {
		return v
	}

	switch hints.Family {
	case FamilyTimestamp:
		if t, ok := ParseTimestamp(s); ok {
			return Value{Kind: KindTime, Time: t}
		}
	case FamilyDuration:
		if secs, ok := ParseDuration(s, hints.Unit); ok {
			return durationValue(secs, hints.Unit)
		}
	}

	if v, ok := parseJSON(s, hints); ok {
		return v
	}

	if n, ok := parseNumber(s); ok {
		return Number(n)
	}

	if n, ok := parseEmbeddedUnit(s); ok {
		return Number(n)
	}

	if hints.Numeric {
		return failure(raw)
	}
	return Text(s)
}

// boolKeyword maps yes/no style keywords to 1/0.
func boolKeyword(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "yes", "on", "true", "enabled":
		return 1, true
	case "no", "off", "false", "disabled":
		return 0, true
	}
	return 0, false
}

// parseNumber parses a finite float.
func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// parseEmbeddedUnit extracts the number from strings like "-101dBm".
// Pressure units are converted to kPa.
func parseEmbeddedUnit(s string) (float64, bool) {
	m := embeddedUnit.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, ok := parseNumber(m[1])
	if !ok {
		return 0, false
	}
	return convertPressure(n, strings.ToLower(m[2])), true
}

// convertPressure converts a reading in unit to kPa. Unknown units pass through.
func convertPressure(n float64, unit string) float64 {
	switch unit {
	case "psi":
		return n * psiToKPa
	case "bar":
		return n * barToKPa
	default:
		return n
	}
}

// pressureSuffixes are the unit suffixes accepted on list payloads.
var pressureSuffixes = []string{"psi", "kpa", "bar"}

// parseList handles "1.2,3.4,5.6" and "30.1;29.8 psi".
func parseList(s string, hints Hints) (Value, bool) {
	if !strings.ContainsAny(s, ",;") {
		return Value{}, false
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		return Value{}, false
	}

	body := s
	unit := ""
	lower := strings.ToLower(s)
	for _, suffix := range pressureSuffixes {
		if strings.HasSuffix(lower, suffix) {
			unit = suffix
			body = strings.TrimSpace(s[:len(s)-len(suffix)])
			break
		}
	}

	fields := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ';' })
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, ok := parseNumber(field)
		if !ok {
			return Value{}, false
		}
		values = append(values, convertPressure(n, unit))
	}
	if len(values) == 0 {
		return Value{}, false
	}

	v := reduceList(values)
	if unit != "" {
		v.Attributes["source_unit"] = unit
	}
	return v, true
}

// parseJSON unwraps JSON payloads. It reports false when s is not JSON.
func parseJSON(s string, hints Hints) (Value, bool) {
	if s == "" || !json.Valid([]byte(s)) {
		return Value{}, false
	}

	switch s[0] {
	case '{':
		return parseJSONObject(s, hints), true
	case '[':
		return parseJSONArray(s, hints), true
	case '"':
		var str string
		if err := json.Unmarshal([]byte(s), &str); err != nil {
			return Value{}, false
		}
		return parseScalarString(str, hints), true
	case 't', 'f':
		b := s == "true"
		if hints.Numeric {
			if b {
				return Number(1), true
			}
			return Number(0), true
		}
		return Text(s), true
	case 'n':
		return NoValue(), true
	default:
		n, ok := parseNumber(s)
		if !ok {
			return Value{}, false
		}
		return Number(n), true
	}
}

// parseScalarString types a string taken out of a JSON document.
func parseScalarString(s string, hints Hints) Value {
	if IsSpecial(s) {
		if hints.Numeric {
			return NoValue()
		}
		return Text(s)
	}
	if n, ok := parseNumber(s); ok {
		return Number(n)
	}
	if hints.Numeric {
		if n, ok := boolKeyword(s); ok {
			return Number(n)
		}
		return failure(s)
	}
	return Text(s)
}

// field is one key of a JSON object in document order.
type field struct {
	key string
	raw json.RawMessage
}

// decodeOrdered decodes a JSON object keeping key order, which the
// "first numeric field" rule depends on.
func decodeOrdered(s string) ([]field, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, raw: raw})
	}
	return fields, nil
}

// parseJSONObject prefers "value", then "state", then the first numeric field.
// Remaining keys become attributes.
func parseJSONObject(s string, hints Hints) Value {
	fields, err := decodeOrdered(s)
	if err != nil {
		if hints.Numeric {
			return failure(s)
		}
		return Text(s)
	}

	chosen := -1
	for _, preferred := range []string{"value", "state"} {
		for i, f := range fields {
			if f.key == preferred {
				chosen = i
				break
			}
		}
		if chosen >= 0 {
			break
		}
	}
	if chosen < 0 {
		for i, f := range fields {
			if _, ok := parseNumber(string(bytes.TrimSpace(f.raw))); ok {
				chosen = i
				break
			}
		}
	}

	attrs := make(map[string]any, len(fields))
	for i, f := range fields {
		if i == chosen || f.key == "data" {
			continue
		}
		var decoded any
		if err := json.Unmarshal(f.raw, &decoded); err == nil {
			attrs[f.key] = decoded
		}
	}

	var v Value
	if chosen >= 0 {
		inner, ok := parseJSON(string(bytes.TrimSpace(fields[chosen].raw)), hints)
		switch {
		case !ok && hints.Numeric:
			v = failure(s)
		case !ok:
			v = Text(string(fields[chosen].raw))
		default:
			v = inner
		}
	} else if hints.Numeric {
		v = failure(s)
	} else {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return Text(s)
		}
		return Value{Kind: KindStructure, Structure: decoded, Attributes: attrs}
	}

	if v.Attributes == nil {
		v.Attributes = attrs
	} else {
		for k, a := range attrs {
			if _, exists := v.Attributes[k]; !exists {
				v.Attributes[k] = a
			}
		}
	}
	return v
}

// parseJSONArray reduces numeric arrays like a delimited list.
func parseJSONArray(s string, hints Hints) Value {
	var items []any
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		if hints.Numeric {
			return failure(s)
		}
		return Text(s)
	}

	values := make([]float64, 0, len(items))
	for _, item := range items {
		n, ok := item.(float64)
		if !ok {
			values = nil
			break
		}
		values = append(values, n)
	}
	if len(values) > 0 {
		return reduceList(values)
	}

	if hints.Numeric {
		return failure(s)
	}
	return Value{
		Kind:       KindStructure,
		Structure:  items,
		Attributes: map[string]any{"items": items, "count": len(items)},
	}
}

// ParseBool converts a payload to a boolean state. The second result is false
// when the payload carries no usable state. inverted flips the result for
// metrics whose wire meaning is the opposite of the object's.
func ParseBool(raw string, inverted bool) (bool, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if IsSpecial(s) {
		return false, false
	}

	var state bool
	switch s {
	case "true", "on", "yes", "1", "open", "locked", "connected", "online", "active", "enabled":
		state = true
	case "false", "off", "no", "0", "closed", "unlocked", "disconnected", "offline", "inactive", "disabled":
		state = false
	default:
		n, ok := parseNumber(s)
		if !ok {
			return false, false
		}
		state = n > 0
	}

	if inverted {
		state = !state
	}
	return state, true
}
