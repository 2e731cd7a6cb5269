// Package activation is a compiled activation engine for dependency
// injection: given a set of registered exports, each described by an
// immutable Descriptor, it resolves and constructs object graphs on demand,
// applying lifestyle caching (transient, singleton, scoped, weak),
// conditional eligibility, and scope-owned disposal.
//
// A Descriptor is compiled once into an activation function and cached for
// reuse; the compiled function performs constructor invocation, property and
// method injection, activation hooks, and enrichment, and registers any
// disposable result with the active Scope. Lifestyle caching is layered
// outside the compiled function, so exactly one instance is constructed per
// invocation of the function itself.
//
// The Container type has comprehensive documentation about how resolution
// works. There are also generic helper functions (Locate, LocateAll,
// MustLocate) that make using this more concise.
package activation
