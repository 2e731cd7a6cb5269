package activation

import (
	"io"
	"reflect"
)

// Disposable can be implemented by an activated instance to participate in
// scope teardown. Instances that instead implement io.Closer are closed the
// same way, with any Close error collected into the scope's aggregate
// disposal error.
type Disposable interface {
	Dispose()
}

// Descriptor is the immutable metadata describing how to construct and
// finish one export. A Descriptor is produced by the configuration layer,
// registered with a Catalog, and referenced - not copied - by the compiled
// activation plan.
//
// Once a Descriptor has been registered it must never be mutated: compiled
// plans and lifestyle caches are keyed by descriptor identity, so mutation
// after registration would corrupt cached behavior.
type Descriptor struct {
	// ActivationType is the concrete type that activation produces,
	// typically a pointer to a struct.
	ActivationType reflect.Type

	// ExportTypes lists the types this export satisfies. If empty, the
	// export is registered under ActivationType alone; interface requests
	// still match by assignability.
	ExportTypes []reflect.Type

	// Key makes this a keyed export. Keyed exports are only eligible for
	// requests carrying an equal key. Keys must be comparable; named
	// exports use their name string as the key.
	Key any

	// Priority breaks ties between multiple eligible exports: higher wins.
	// Exports with equal priority resolve last-registration-wins.
	Priority int

	// Lifestyle is the caching policy for activated instances. A nil
	// Lifestyle means transient: every request constructs a new instance.
	Lifestyle Lifestyle

	// ExternallyOwned suppresses disposal tracking: the caller, not the
	// scope, owns the instance's lifetime.
	ExternallyOwned bool

	// CreatesNewContext starts a fresh injection context chain for this
	// export's subtree. Cycle detection still spans the whole locate call.
	CreatesNewContext bool

	// Constructor is the function invoked to produce the instance. It may
	// take any parameters resolvable from the container (plus
	// context.Context, *Scope, and *InjectionContext, which are ambient)
	// and must return the instance, optionally followed by an error. If nil,
	// ActivationType must be a pointer to a struct and a zero value is
	// allocated instead.
	Constructor any

	// ConstructorParams optionally describes the constructor's parameters,
	// positionally. When empty, every parameter is treated as a required
	// unnamed import of its declared type.
	ConstructorParams []ParameterSpec

	// CustomConstructorEnrichment, when set, replaces parameter resolution
	// entirely: it must return one argument per constructor parameter.
	CustomConstructorEnrichment func(ictx *InjectionContext) ([]any, error)

	// Properties and Methods are post-construction injection points.
	// Properties and methods form two independent ordered sequences; they
	// are not interleaved with each other.
	Properties []PropertyImport
	Methods    []MethodImport

	// ActivationHooks run after construction and before-construction
	// imports, in registration order.
	ActivationHooks []func(ictx *InjectionContext, instance any) error

	// Enrichments transform the finished instance, in registration order,
	// each wrapping the previous result. An enrichment may return the same
	// instance or a replacement.
	Enrichments []func(ictx *InjectionContext, instance any) (any, error)

	// Cleanup is the ordered list of disposal-time callbacks. Multiple
	// registrations are invoked sequentially in registration order when the
	// owning scope is disposed.
	Cleanup []func(instance any)

	// Conditions gate this export's eligibility for a given request. All
	// conditions must pass.
	Conditions []Condition

	// registration is the catalog-assigned sequence number, used for
	// last-registration-wins ordering.
	registration int
}

// ParameterSpec describes one import site: a constructor parameter, a
// property, or a method parameter. The zero value is a required, unnamed
// import of the type declared at the injection site.
type ParameterSpec struct {
	// Name identifies the parameter for diagnostics. For properties this is
	// the field name and is required.
	Name string

	// Type overrides the type taken from the injection site's signature.
	// Usually nil.
	Type reflect.Type

	// Optional imports resolve to the type's zero value when no candidate
	// is found instead of failing with MissingDependencyError.
	Optional bool

	// ImportName locates a named export: it is used as the locate key when
	// LocateKeyProvider is not set.
	ImportName string

	// ValueProvider overrides container resolution entirely.
	ValueProvider func(ictx *InjectionContext) (any, error)

	// ExportFilter restricts which candidates may satisfy this import.
	ExportFilter func(d *Descriptor) bool

	// Comparer orders collection-typed imports: it reports whether a sorts
	// before b. Only consulted for slice-typed imports.
	Comparer func(a, b any) bool

	// LocateKeyProvider computes a runtime key for keyed lookups.
	LocateKeyProvider func(ictx *InjectionContext) any
}

// PropertyImport is a post-construction field injection.
type PropertyImport struct {
	Spec ParameterSpec

	// AfterConstruction defers the injection until after activation hooks
	// have run.
	AfterConstruction bool
}

// MethodImport is a post-construction method invocation with resolved
// arguments.
type MethodImport struct {
	// Name is the method name on the activation type.
	Name string

	// Params optionally describes the method's parameters, positionally,
	// the same way ConstructorParams does for the constructor.
	Params []ParameterSpec

	// AfterConstruction defers the invocation until after activation hooks
	// have run.
	AfterConstruction bool
}

// IsTransient reports whether activation produces a new instance per
// request. True unless a Lifestyle is attached.
func (d *Descriptor) IsTransient() bool {
	return d.Lifestyle == nil
}

// TrackDisposable reports whether the compiled plan registers activated
// instances with the active scope for disposal: the export must not be
// externally owned, must be transient (lifestyle caches own their instances'
// disposal themselves), and must expose a disposal contract.
func (d *Descriptor) TrackDisposable() bool {
	return !d.ExternallyOwned && d.IsTransient() && d.hasDisposalContract()
}

func (d *Descriptor) hasDisposalContract() bool {
	if len(d.Cleanup) > 0 {
		return true
	}
	info := getTypeInfo(d.ActivationType)
	return info.implementsDisposable || info.implementsCloser
}

// disposerFor builds the composed disposal callback for an activated
// instance: cleanup delegates in registration order, then the instance's own
// disposal contract.
func (d *Descriptor) disposerFor(instance any) func() error {
	return func() error {
		for _, cleanup := range d.Cleanup {
			cleanup(instance)
		}
		switch v := instance.(type) {
		case Disposable:
			v.Dispose()
		case io.Closer:
			return v.Close()
		}
		return nil
	}
}

// TypeFor returns the reflect.Type of T. It is a convenience for building
// descriptors and conditions; interfaces resolve to the interface type, not
// a concrete implementation.
func TypeFor[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
