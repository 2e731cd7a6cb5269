package activation

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// TimingMode controls activation timing instrumentation.
type TimingMode int

const (
	// TimingDisable will disable timing for all activations.
	TimingDisable TimingMode = iota

	// TimingActivations will start a timing context for each activation
	// that is performed. This is useful to see where all time of a locate
	// call is being spent, and shows the exact activation stack.
	TimingActivations
)

var EnableTiming = TimingDisable

// ContainerOption is a functional option for configuring a Container.
type ContainerOption func(*Container)

// WithLogger attaches a structured logger to the container. Registration,
// activation failures, and scope lifecycle are logged at debug level. The
// default is a no-op logger.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithCatalog uses an existing strategy catalog instead of a fresh one. The
// catalog may be shared between containers; compiled plans are not.
func WithCatalog(catalog *Catalog) ContainerOption {
	return func(c *Container) {
		c.catalog = catalog
	}
}

// Container owns the strategy catalog, the compiled-plan cache, and the root
// of the scope tree. Locate calls are synchronous: resolution and
// construction run on the caller's goroutine, and the only blocking is a
// caller waiting on another's in-flight singleton construction.
type Container struct {
	catalog *Catalog
	logger  *zap.Logger
	plans   sync.Map // *Descriptor -> *compiledPlan
	root    *Scope
}

// NewContainer creates a container with an empty catalog and a root scope.
func NewContainer(opts ...ContainerOption) *Container {
	c := &Container{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog == nil {
		c.catalog = NewCatalog()
	}
	c.root = newScope(c, nil, "root")
	return c
}

// Register adds export descriptors to the container's catalog. Registration
// may happen concurrently with resolution from other goroutines; in-flight
// locates observe a consistent snapshot. A locate that failed for a missing
// provider succeeds once a satisfying export is registered.
func (c *Container) Register(descriptors ...*Descriptor) error {
	for _, d := range descriptors {
		if err := c.catalog.Register(d); err != nil {
			return err
		}
		c.logger.Debug("export registered",
			zap.Stringer("type", d.ActivationType),
			zap.String("lifestyle", lifestyleName(d.Lifestyle)))
	}
	return nil
}

// Catalog returns the container's strategy catalog.
func (c *Container) Catalog() *Catalog {
	return c.catalog
}

// RootScope returns the container-lifetime scope. Singleton instances with a
// disposal contract are tracked here.
func (c *Container) RootScope() *Scope {
	return c.root
}

// CreateScope creates a child of the root scope.
func (c *Container) CreateScope(name string) *Scope {
	return c.root.CreateChild(name)
}

// Dispose tears down the whole scope tree, including any disposable
// singletons tracked by the root scope.
func (c *Container) Dispose() error {
	return c.root.Dispose()
}

// WarmUp eagerly constructs every singleton export so that first-request
// latency is paid up front. Unlike lazy activation, warm-up failures surface
// immediately; the first failing export aborts the warm-up.
func (c *Container) WarmUp(ctx context.Context) error {
	for _, d := range c.catalog.snapshot() {
		if _, ok := d.Lifestyle.(*Singleton); !ok {
			continue
		}
		ictx := newInjectionContext(ctx, c.root, d.ActivationType, d.Key)
		if _, err := c.root.activate(d, ictx); err != nil {
			return err
		}
	}
	return nil
}

// Status is a diagnostic tool that returns a string describing every
// registered export.
func (c *Container) Status() string {
	return c.catalog.Status()
}

// locateRequest carries per-call options.
type locateRequest struct {
	key any
}

// LocateOption is a per-call option for Locate and LocateAll.
type LocateOption func(*locateRequest)

// WithKey restricts the lookup to exports registered with an equal key.
func WithKey(key any) LocateOption {
	return func(r *locateRequest) {
		r.key = key
	}
}

func newLocateRequest(opts []LocateOption) locateRequest {
	var req locateRequest
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

// Locate resolves an instance of type T from the scope. It behaves exactly
// like Scope.Locate with the type supplied as a type parameter.
func Locate[T any](ctx context.Context, s *Scope, opts ...LocateOption) (T, error) {
	var zero T
	instance, err := s.Locate(ctx, TypeFor[T](), opts...)
	if err != nil {
		return zero, err
	}
	if instance == nil {
		return zero, nil
	}
	return instance.(T), nil
}

// MustLocate behaves like Locate except it panics if the resolution fails.
// The typical behavior for a missing dependency is returning an error or
// panicking on the caller's side, so this presents a simplified interface
// for getting required dependencies.
func MustLocate[T any](ctx context.Context, s *Scope, opts ...LocateOption) T {
	instance, err := Locate[T](ctx, s, opts...)
	if err != nil {
		panic(err)
	}
	return instance
}

// LocateAll resolves every eligible export of type T, ordered by priority
// and registration order.
func LocateAll[T any](ctx context.Context, s *Scope, opts ...LocateOption) ([]T, error) {
	instances, err := s.LocateAll(ctx, TypeFor[T](), opts...)
	if err != nil {
		return nil, err
	}
	result := make([]T, 0, len(instances))
	for _, instance := range instances {
		result = append(result, instance.(T))
	}
	return result, nil
}
