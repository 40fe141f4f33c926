package classifier

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nerrad567/ovms-bridge/internal/entity"
	"github.com/nerrad567/ovms-bridge/internal/parser"
)

// Rule is one variant of the ordered classification rule list.
type Rule interface {
	// Kind identifies the variant on the resulting Metric.
	Kind() entity.Rule

	// Apply returns a metric when the rule matches.
	Apply(pt ParsedTopic, payload string) (entity.Metric, bool)
}

// DefaultRules is the rule order used by New. Earlier rules win ties.
func DefaultRules() []Rule {
	return []Rule{ExactMatch{}, PatternMatch{}, StructuralHeuristic{}}
}

// Config identifies the vehicle whose topics are classified.
type Config struct {
	TopicPrefix string
	VehicleID   string
	VehicleName string
}

// Classifier maps topics to metrics. Results are cached per topic, so
// repeated calls for one topic return identical metrics.
//
// Thread Safety: all methods are safe for concurrent use.
type Classifier struct {
	cfg   Config
	rules []Rule
	cache *gocache.Cache
}

// New creates a classifier with the default rules.
func New(cfg Config) *Classifier {
	if cfg.VehicleName == "" {
		cfg.VehicleName = cfg.VehicleID
	}
	return &Classifier{
		cfg:   cfg,
		rules: DefaultRules(),
		// No expiry and no janitor goroutine: a topic's classification never changes.
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Classify returns the metric for a topic.
//
// Parameters:
//   - topic: full wire topic
//   - payload: first payload seen on the topic; used only by the structural
//     heuristic to decide whether an unknown scalar is numeric
//
// Returns:
//   - entity.Metric: cached classification
//   - error: ErrForeignTopic or ErrSkippedTopic (wrapped)
func (c *Classifier) Classify(topic string, payload []byte) (entity.Metric, error) {
	if cached, ok := c.cache.Get(topic); ok {
		return cached.(entity.Metric), nil //nolint:forcetypeassert // only entity.Metric is stored
	}

	pt, err := ParseTopic(topic, c.cfg.TopicPrefix, c.cfg.VehicleID)
	if err != nil {
		return entity.Metric{}, err
	}

	var m entity.Metric
	if pt.Kind == KindStatus {
		m = c.connectivityMetric(pt)
	} else {
		m = c.applyRules(pt, strings.TrimSpace(string(payload)))
	}

	if err := c.cache.Add(topic, m, gocache.NoExpiration); err != nil {
		// Lost a race with a concurrent first classification; keep the winner.
		if cached, ok := c.cache.Get(topic); ok {
			return cached.(entity.Metric), nil //nolint:forcetypeassert // only entity.Metric is stored
		}
	}
	return m, nil
}

// Cached returns the number of cached classifications.
func (c *Classifier) Cached() int {
	return c.cache.ItemCount()
}

func (c *Classifier) applyRules(pt ParsedTopic, payload string) entity.Metric {
	var m entity.Metric
	for _, r := range c.rules {
		if got, ok := r.Apply(pt, payload); ok {
			m = got
			break
		}
	}

	m.Topic = pt.Topic
	m.Path = pt.Path
	if m.Type == "" {
		m.Type = entity.TypeScalar
	}
	if m.Category == "" {
		m.Category = CategoryFor(pt.Path)
	}
	if vendor := VendorOf(pt.Path); vendor != "" && !strings.HasPrefix(m.Name, vendor) {
		m.Name = vendor + " " + m.Name
	}
	m.Priority = priorityFor(m)
	return m
}

func (c *Classifier) connectivityMetric(pt ParsedTopic) entity.Metric {
	return entity.Metric{
		Topic:       pt.Topic,
		Path:        pt.Path,
		Name:        c.cfg.VehicleName + " Connection",
		Category:    CategoryDiagnostic,
		DeviceClass: "connectivity",
		Icon:        "mdi:car-connected",
		Type:        entity.TypeBoolean,
		Priority:    entity.PriorityDefault,
		Rule:        entity.RuleExactMatch,
	}
}

func priorityFor(m entity.Metric) int {
	switch {
	case m.Type == entity.TypePositionalFix:
		return entity.PriorityLocation
	case strings.Contains(m.Path, "version"):
		return entity.PriorityVersion
	default:
		return entity.PriorityDefault
	}
}

// =============================================================================
// Rule variants
// =============================================================================

// ExactMatch looks the path up in the metric dictionary.
type ExactMatch struct{}

// Kind implements Rule.
func (ExactMatch) Kind() entity.Rule { return entity.RuleExactMatch }

// Apply implements Rule.
func (ExactMatch) Apply(pt ParsedTopic, _ string) (entity.Metric, bool) {
	def := LookupMetric(pt.Path)
	if def == nil {
		return entity.Metric{}, false
	}
	typ := def.Type
	if typ == "" {
		typ = entity.TypeScalar
	}
	category := def.Category
	if category == "" {
		category = prefixCategory(pt.Path)
	}
	return entity.Metric{
		Name:        def.Name,
		Unit:        def.Unit,
		Family:      def.Family,
		Category:    category,
		DeviceClass: def.DeviceClass,
		Icon:        def.Icon,
		Numeric:     def.numeric(),
		Type:        typ,
		Inverted:    def.Inverted,
		Rule:        entity.RuleExactMatch,
	}, true
}

// PatternMatch matches keywords against path segments, then the display name.
type PatternMatch struct{}

// Kind implements Rule.
func (PatternMatch) Kind() entity.Rule { return entity.RulePatternMatch }

// Apply implements Rule.
func (PatternMatch) Apply(pt ParsedTopic, _ string) (entity.Metric, bool) {
	name := displayName(pt.Segments)
	p, ok := matchPattern(pt.Segments, name)
	if !ok {
		return entity.Metric{}, false
	}
	if isCoordinatePath(pt.Path) {
		// A coordinate is never reclassified by a looser keyword.
		return entity.Metric{}, false
	}
	typ := p.Type
	if typ == "" {
		typ = entity.TypeScalar
	}
	if last := pt.Segments[len(pt.Segments)-1]; last == p.Keyword {
		name = p.Name
	}
	return entity.Metric{
		Name:        name,
		Unit:        p.Unit,
		Family:      p.Family,
		DeviceClass: p.DeviceClass,
		Icon:        p.Icon,
		Numeric:     typ == entity.TypeScalar && p.Unit != "" && p.Family != parser.FamilyTimestamp,
		Type:        typ,
		Rule:        entity.RulePatternMatch,
	}, true
}

// StructuralHeuristic classifies by the shape of the path. It always matches.
type StructuralHeuristic struct{}

// Kind implements Rule.
func (StructuralHeuristic) Kind() entity.Rule { return entity.RuleStructuralHeuristic }

// Apply implements Rule.
func (StructuralHeuristic) Apply(pt ParsedTopic, payload string) (entity.Metric, bool) {
	m := entity.Metric{
		Name: displayName(pt.Segments),
		Rule: entity.RuleStructuralHeuristic,
	}

	switch {
	case isCoordinatePath(pt.Path):
		m.Type = entity.TypePositionalFix
		m.Unit = unitDegree
		m.Icon = "mdi:map-marker"
		m.Numeric = true
	case looksBoolean(pt.Path):
		m.Type = entity.TypeBoolean
	case looksCommand(pt.Segments):
		m.Type = entity.TypeActuator
	default:
		m.Type = entity.TypeScalar
		_, err := strconv.ParseFloat(payload, 64)
		m.Numeric = err == nil
	}
	return m, true
}

func isCoordinatePath(path string) bool {
	_, ok := IsCoordinate(path)
	return ok
}

// displayName builds a title-cased name from path segments, dropping the
// vendor namespace and one-letter namespace segments ("v.b.cell.temp" →
// "Cell Temp").
func displayName(segments []string) string {
	segs := segments
	if len(segs) > 1 {
		if _, vendor := VendorPrefixes[segs[0]]; vendor {
			segs = segs[1:]
		}
	}
	for len(segs) > 1 && len(segs[0]) <= 1 {
		segs = segs[1:]
	}

	words := make([]string, 0, len(segs))
	for _, seg := range segs {
		for w := range strings.FieldsFuncSeq(seg, func(r rune) bool { return r == '_' || r == '-' }) {
			r, size := utf8.DecodeRuneInString(w)
			words = append(words, string(unicode.ToUpper(r))+w[size:])
		}
	}
	if len(words) == 0 {
		return "Unknown"
	}
	return strings.Join(words, " ")
}
