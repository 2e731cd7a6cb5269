package activation

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Scope is a node in the container's scope tree. It bounds the lifetime of
// scoped singletons and owns the disposal of instances constructed within
// it. Scopes are created from the container (children of the root) or from
// another scope, and are torn down explicitly with Dispose.
type Scope struct {
	id        string
	name      string
	container *Container
	parent    *Scope

	mu          sync.Mutex
	children    []*Scope
	disposables []func() error
	caches      map[*Descriptor]*singletonSlot
	disposed    bool
}

func newScope(container *Container, parent *Scope, name string) *Scope {
	s := &Scope{
		id:        uuid.NewString(),
		name:      name,
		container: container,
		parent:    parent,
		caches:    map[*Descriptor]*singletonSlot{},
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	container.logger.Debug("scope created",
		zap.String("scope", s.id),
		zap.String("name", name))
	return s
}

// ID returns the scope's unique identifier.
func (s *Scope) ID() string { return s.id }

// Name returns the name given at creation, if any.
func (s *Scope) Name() string { return s.name }

// Parent returns the parent scope, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Container returns the owning container.
func (s *Scope) Container() *Container { return s.container }

// CreateChild creates a child scope. Disposing this scope tears the child
// down first.
func (s *Scope) CreateChild(name string) *Scope {
	return newScope(s.container, s, name)
}

func (s *Scope) root() *Scope {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// slotFor returns the scope-local cache slot for a scoped-singleton
// descriptor, creating it on first use.
func (s *Scope) slotFor(d *Descriptor) *singletonSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.caches[d]
	if !ok {
		slot = &singletonSlot{}
		s.caches[d] = slot
	}
	return slot
}

// track registers the instance's disposal with this scope. Registration
// happens before the instance is returned to the caller, so a failure on the
// caller's side never leaks an untracked disposable. Tracking against an
// already-disposed scope disposes the instance immediately rather than
// leaking it.
func (s *Scope) track(d *Descriptor, instance any) {
	disposer := d.disposerFor(instance)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		s.container.logger.Debug("instance tracked against disposed scope; disposing immediately",
			zap.String("scope", s.id),
			zap.Stringer("type", d.ActivationType))
		_ = invokeDisposer(disposer)
		return
	}
	s.disposables = append(s.disposables, disposer)
	s.mu.Unlock()
}

// Locate resolves an instance of the requested type from this scope. It is
// the non-generic entry point; Locate[T] is usually more convenient.
func (s *Scope) Locate(ctx context.Context, t reflect.Type, opts ...LocateOption) (any, error) {
	req := newLocateRequest(opts)
	ictx := newInjectionContext(ctx, s, t, req.key)
	return s.locate(ictx, t, req.key, nil)
}

// LocateAll resolves every eligible export of the requested type, ordered by
// priority and registration order.
func (s *Scope) LocateAll(ctx context.Context, t reflect.Type, opts ...LocateOption) ([]any, error) {
	req := newLocateRequest(opts)
	ictx := newInjectionContext(ctx, s, t, req.key)
	descriptors := s.container.catalog.FindAll(t, req.key, nil, ictx)
	result := make([]any, 0, len(descriptors))
	for _, d := range descriptors {
		instance, err := s.activate(d, ictx)
		if err != nil {
			return nil, err
		}
		result = append(result, instance)
	}
	return result, nil
}

// locate finds the best-matching export and activates it.
func (s *Scope) locate(ictx *InjectionContext, t reflect.Type, key any, filter func(*Descriptor) bool) (any, error) {
	d := s.container.catalog.FindBest(t, key, filter, ictx)
	if d == nil {
		return nil, &MissingDependencyError{
			Type:   t,
			Key:    key,
			Status: s.container.catalog.Status(),
		}
	}
	return s.activate(d, ictx)
}

// activate runs the full activation pipeline for one descriptor: cycle
// bookkeeping, plan compilation (cached), lifestyle caching, and breadcrumb
// wrapping of any failure.
func (s *Scope) activate(d *Descriptor, ictx *InjectionContext) (any, error) {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return nil, fmt.Errorf("locate on disposed scope %s", s.id)
	}

	if d.CreatesNewContext {
		ictx = ictx.fresh(d.ActivationType)
	}

	exit, err := ictx.cycle.enter(d)
	if err != nil {
		return nil, wrapActivation(err, d, ictx.Depth())
	}
	defer exit()

	plan, err := s.container.planFor(d)
	if err != nil {
		return nil, wrapActivation(err, d, ictx.Depth())
	}

	var instance any
	if d.Lifestyle == nil {
		instance, err = plan(ictx)
	} else {
		instance, err = d.Lifestyle.provide(ictx, d, plan)
	}
	if err != nil {
		s.container.logger.Debug("activation failed",
			zap.String("scope", s.id),
			zap.Stringer("type", d.ActivationType),
			zap.Error(err))
		return nil, wrapActivation(err, d, ictx.Depth())
	}
	return instance, nil
}

// Dispose tears the scope down: child scopes first, depth-first, then this
// scope's tracked instances in reverse registration order, then the caches.
// A failing disposal never aborts the teardown of the remaining instances;
// failures are collected and surfaced as one AggregateDisposalError after
// everything has been torn down.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	children := s.children
	disposables := s.disposables
	s.children = nil
	s.disposables = nil
	s.caches = map[*Descriptor]*singletonSlot{}
	s.mu.Unlock()

	var errs error
	for _, child := range children {
		errs = multierr.Append(errs, child.Dispose())
	}

	for i := len(disposables) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, invokeDisposer(disposables[i]))
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	s.container.logger.Debug("scope disposed",
		zap.String("scope", s.id),
		zap.String("name", s.name),
		zap.Int("instances", len(disposables)))

	if errs != nil {
		return &AggregateDisposalError{
			ScopeID:   s.id,
			ScopeName: s.name,
			Err:       errs,
		}
	}
	return nil
}

func (s *Scope) removeChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// invokeDisposer runs one disposal callback, converting a panic into an
// error so teardown of the remaining instances continues.
func invokeDisposer(disposer func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during disposal: %v", r)
		}
	}()
	return disposer()
}
