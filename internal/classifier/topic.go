package classifier

import (
	"fmt"
	"strings"
)

// TopicKind tells the classifier how to treat a parsed topic.
type TopicKind int

const (
	// KindMetric is a metric topic ("metric/v/b/soc").
	KindMetric TopicKind = iota

	// KindStatus is the vehicle presence topic ("status").
	KindStatus

	// KindOther is any other data subtree, joined with dots.
	KindOther
)

// Topic subtrees with special handling.
const (
	segMetric = "metric"
	segClient = "client"
	segEvent  = "event"
	segStatus = "status"
)

// ParsedTopic is a wire topic with the vehicle structure prefix removed.
type ParsedTopic struct {
	Topic     string
	Account   string
	VehicleID string
	Kind      TopicKind

	// Path is the canonical dotted path ("v.b.soc").
	Path string

	// Segments are the lower-cased dotted path segments.
	Segments []string
}

// ParseTopic strips "{prefix}/{account}/{vehicleID}" (or "{prefix}/{vehicleID}"
// when the account level is absent) from topic.
//
// Returns ErrForeignTopic for topics of another prefix or vehicle, and
// ErrSkippedTopic for command traffic, events and empty paths.
func ParseTopic(topic, prefix, vehicleID string) (ParsedTopic, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != prefix {
		return ParsedTopic{}, fmt.Errorf("%w: %s", ErrForeignTopic, topic)
	}

	pt := ParsedTopic{Topic: topic, VehicleID: vehicleID}
	var rest []string
	switch {
	case len(parts) >= 4 && parts[2] == vehicleID:
		pt.Account = parts[1]
		rest = parts[3:]
	case parts[1] == vehicleID:
		rest = parts[2:]
	default:
		return ParsedTopic{}, fmt.Errorf("%w: %s", ErrForeignTopic, topic)
	}

	rest = dropEmpty(rest)
	if len(rest) == 0 {
		return ParsedTopic{}, fmt.Errorf("%w: empty path in %s", ErrSkippedTopic, topic)
	}

	switch rest[0] {
	case segClient:
		return ParsedTopic{}, fmt.Errorf("%w: command traffic %s", ErrSkippedTopic, topic)
	case segEvent:
		return ParsedTopic{}, fmt.Errorf("%w: event %s", ErrSkippedTopic, topic)
	case segStatus:
		if len(rest) == 1 {
			pt.Kind = KindStatus
			pt.Path = segStatus
			pt.Segments = []string{segStatus}
			return pt, nil
		}
		pt.Kind = KindOther
	case segMetric:
		rest = rest[1:]
		if len(rest) == 0 {
			return ParsedTopic{}, fmt.Errorf("%w: empty metric path in %s", ErrSkippedTopic, topic)
		}
		pt.Kind = KindMetric
	default:
		pt.Kind = KindOther
	}

	pt.Path = strings.ToLower(strings.Join(rest, "."))
	pt.Segments = strings.Split(pt.Path, ".")
	return pt, nil
}

func dropEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
