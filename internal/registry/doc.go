// Package registry tracks which objects are bound to which topics and how
// objects relate to each other.
//
// A topic can carry several objects (a raw coordinate reading and the
// positional fix it feeds, for example). The highest-priority claim is the
// primary object; lower claims are refused and earlier claims that were
// outranked stay bound as secondaries.
package registry
