package activation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Catalog is the strategy catalog: the registry of export descriptors the
// engine resolves against. Registrations may occur from a different
// goroutine than resolution; readers always observe a consistent snapshot
// because the per-type candidate slices are copied on append, never mutated
// in place.
type Catalog struct {
	mu      sync.RWMutex
	exports map[reflect.Type][]*Descriptor
	all     []*Descriptor
	seq     int
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		exports: map[reflect.Type][]*Descriptor{},
	}
}

// Register adds a descriptor to the catalog. The descriptor must not be
// mutated afterward. Basic shape errors (missing activation type, a
// non-function constructor) fail registration; a constructor whose
// parameters have no registered providers does not - that failure is
// deferred to activation time because providers may still be registered
// later.
func (c *Catalog) Register(d *Descriptor) error {
	if d == nil {
		panic("descriptor must not be nil")
	}
	if d.ActivationType == nil {
		return fmt.Errorf("descriptor has no activation type")
	}
	if d.Constructor != nil {
		if reflect.TypeOf(d.Constructor).Kind() != reflect.Func {
			return fmt.Errorf("constructor for %v must be a function, got %T", d.ActivationType, d.Constructor)
		}
	} else if d.ActivationType.Kind() != reflect.Pointer || d.ActivationType.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("export %v has no constructor and is not a pointer to a struct", d.ActivationType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	d.registration = c.seq

	for _, t := range c.indexTypes(d) {
		existing := c.exports[t]
		// Copy-on-append so concurrent readers holding the old slice see a
		// consistent snapshot.
		updated := make([]*Descriptor, len(existing), len(existing)+1)
		copy(updated, existing)
		c.exports[t] = append(updated, d)
	}
	c.all = append(c.all[:len(c.all):len(c.all)], d)
	return nil
}

func (c *Catalog) indexTypes(d *Descriptor) []reflect.Type {
	if len(d.ExportTypes) == 0 {
		return []reflect.Type{d.ActivationType}
	}
	types := make([]reflect.Type, 0, len(d.ExportTypes)+1)
	types = append(types, d.ExportTypes...)
	seen := false
	for _, t := range types {
		if t == d.ActivationType {
			seen = true
			break
		}
	}
	if !seen {
		types = append(types, d.ActivationType)
	}
	return types
}

// candidates returns the registration-ordered descriptors that could satisfy
// the requested type, before conditions or keys are considered.
func (c *Catalog) candidates(t reflect.Type) []*Descriptor {
	c.mu.RLock()
	indexed := c.exports[t]
	all := c.all
	c.mu.RUnlock()

	if t.Kind() != reflect.Interface {
		return indexed
	}

	// Interface requests also match by assignability of the activation
	// type, not only explicit export types.
	var result []*Descriptor
	for _, d := range all {
		if containsDescriptor(indexed, d) || canAssign(d.ActivationType, t) {
			result = append(result, d)
		}
	}
	return result
}

func containsDescriptor(ds []*Descriptor, d *Descriptor) bool {
	for _, e := range ds {
		if e == d {
			return true
		}
	}
	return false
}

// eligible applies key matching, the request's export filter, and the
// candidate's own conditions.
func eligible(d *Descriptor, key any, filter func(*Descriptor) bool, ictx *InjectionContext) bool {
	if d.Key != key {
		return false
	}
	if filter != nil && !filter(d) {
		return false
	}
	for _, cond := range d.Conditions {
		if !cond.Evaluate(d, ictx) {
			return false
		}
	}
	return true
}

// FindBest returns the best-matching export for the requested type and key,
// or nil when no candidate is eligible. Higher declared priority wins; on a
// priority tie the most-recently-registered export wins.
func (c *Catalog) FindBest(t reflect.Type, key any, filter func(*Descriptor) bool, ictx *InjectionContext) *Descriptor {
	var best *Descriptor
	for _, d := range c.candidates(t) {
		if !eligible(d, key, filter, ictx) {
			continue
		}
		if best == nil ||
			d.Priority > best.Priority ||
			(d.Priority == best.Priority && d.registration > best.registration) {
			best = d
		}
	}
	return best
}

// FindAll returns every eligible export for the requested type and key,
// ordered by descending priority and then registration order. Callers with
// a comparer re-order the activated instances themselves.
func (c *Catalog) FindAll(t reflect.Type, key any, filter func(*Descriptor) bool, ictx *InjectionContext) []*Descriptor {
	var result []*Descriptor
	for _, d := range c.candidates(t) {
		if eligible(d, key, filter, ictx) {
			result = append(result, d)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].registration < result[j].registration
	})
	return result
}

// snapshot returns the registration-ordered descriptor list as of this
// moment.
func (c *Catalog) snapshot() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.all
}

// Status is a diagnostic tool that returns a string describing every
// registered export: its activation type, lifestyle, and declaration
// details. The output is sorted by type name for stable comparisons.
func (c *Catalog) Status() string {
	c.mu.RLock()
	all := c.all
	c.mu.RUnlock()

	lines := make([]string, 0, len(all))
	for _, d := range all {
		builder := strings.Builder{}
		builder.WriteString(fmt.Sprintf("%v - %s", d.ActivationType, lifestyleName(d.Lifestyle)))
		if d.Key != nil {
			builder.WriteString(fmt.Sprintf(" - key: %v", d.Key))
		}
		if d.Priority != 0 {
			builder.WriteString(fmt.Sprintf(" - priority: %d", d.Priority))
		}
		if len(d.Conditions) > 0 {
			builder.WriteString(fmt.Sprintf(" - conditions: %d", len(d.Conditions)))
		}
		if d.ExternallyOwned {
			builder.WriteString(" - externally owned")
		}
		lines = append(lines, builder.String())
	}

	sort.Strings(lines)
	return strings.Join(lines, "\n")
}
