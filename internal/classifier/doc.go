// Package classifier maps OVMS topics to classified metrics.
//
// A topic is first stripped of its "{prefix}/{account}/{vehicle}" structure
// (ParseTopic), then run through an ordered rule list:
//
//  1. ExactMatch: the dotted path is looked up in the metric dictionary,
//     with vendor namespaces (xvu, xmg, xsq, xnl, xrt) retried stripped.
//  2. PatternMatch: keyword table against segments, then the display name.
//  3. StructuralHeuristic: coordinates, boolean keyword families, command
//     keywords, else a scalar.
//
// The first matching rule wins. Every metric carries a category derived from
// the longest dotted prefix, and the result is cached per topic.
package classifier
