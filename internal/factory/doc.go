// Package factory creates objects for topics the bridge has not seen before
// and binds them in the registry, including the composite positional fix
// derived from the latitude and longitude feeds.
package factory
