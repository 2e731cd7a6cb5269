package activation

import (
	"context"
	"reflect"
	"sync"
)

// InjectionContext is the transient, per-locate-call value carried through
// the activation chain. It identifies the requesting type (for conditional
// filtering), the explicit locate key, the scope owning disposal
// registration, and the parent chain for diagnostics. A fresh context is
// created per top-level locate call, and again at any descriptor marked
// CreatesNewContext; it is discarded when the call returns.
type InjectionContext struct {
	ctx            context.Context
	scope          *Scope
	targetType     reflect.Type
	requestingType reflect.Type
	key            any
	parent         *InjectionContext
	depth          int
	cycle          *cycleChecker
}

func newInjectionContext(ctx context.Context, scope *Scope, target reflect.Type, key any) *InjectionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &InjectionContext{
		ctx:        ctx,
		scope:      scope,
		targetType: target,
		key:        key,
		cycle:      newCycleChecker(),
	}
}

// Context returns the caller's context.Context for this locate call.
func (ic *InjectionContext) Context() context.Context {
	return ic.ctx
}

// Scope returns the scope the locate call entered at; disposable results are
// registered here.
func (ic *InjectionContext) Scope() *Scope {
	return ic.scope
}

// TargetType is the type being requested at this point in the chain.
func (ic *InjectionContext) TargetType() reflect.Type {
	return ic.targetType
}

// RequestingType is the activation type that requested the current
// dependency, or nil for a top-level locate call.
func (ic *InjectionContext) RequestingType() reflect.Type {
	return ic.requestingType
}

// Key returns the explicit locate key for this request, if any.
func (ic *InjectionContext) Key() any {
	return ic.key
}

// Parent returns the injection context this one was derived from, or nil.
func (ic *InjectionContext) Parent() *InjectionContext {
	return ic.parent
}

// Depth is the distance from the top-level locate call.
func (ic *InjectionContext) Depth() int {
	return ic.depth
}

// child derives the context for a nested dependency request. The cycle
// checker is shared down the whole chain so cycles are caught even across
// fresh-context boundaries.
func (ic *InjectionContext) child(target reflect.Type, key any, requesting reflect.Type) *InjectionContext {
	return &InjectionContext{
		ctx:            ic.ctx,
		scope:          ic.scope,
		targetType:     target,
		requestingType: requesting,
		key:            key,
		parent:         ic,
		depth:          ic.depth + 1,
		cycle:          ic.cycle,
	}
}

// fresh starts a new context chain for a CreatesNewContext subtree. Depth
// and the cycle checker carry over; the parent chain does not.
func (ic *InjectionContext) fresh(target reflect.Type) *InjectionContext {
	return &InjectionContext{
		ctx:        ic.ctx,
		scope:      ic.scope,
		targetType: target,
		depth:      ic.depth,
		cycle:      ic.cycle,
	}
}

// withContext swaps the context.Context, leaving everything else intact.
// Used when a timing sub-context is started around an activation.
func (ic *InjectionContext) withContext(ctx context.Context) *InjectionContext {
	clone := *ic
	clone.ctx = ctx
	return &clone
}

// cycleChecker tracks the descriptors currently being activated on one
// locate call so a cyclic registration graph fails with
// CyclicDependencyError instead of deadlocking.
type cycleChecker struct {
	lock      sync.Mutex
	inProcess map[*Descriptor]bool
	path      []reflect.Type
}

func newCycleChecker() *cycleChecker {
	return &cycleChecker{
		inProcess: map[*Descriptor]bool{},
	}
}

type unlocker func()

// enter marks the descriptor as in-process for this call chain. It returns
// an unlocker that must be called when activation of the descriptor
// completes, or an error if the descriptor is already being activated.
func (c *cycleChecker) enter(d *Descriptor) (unlocker, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.inProcess[d] {
		path := make([]reflect.Type, len(c.path), len(c.path)+1)
		copy(path, c.path)
		path = append(path, d.ActivationType)
		return nil, &CyclicDependencyError{
			Type: d.ActivationType,
			Path: path,
		}
	}
	c.inProcess[d] = true
	c.path = append(c.path, d.ActivationType)

	return func() {
		c.lock.Lock()
		delete(c.inProcess, d)
		if n := len(c.path); n > 0 {
			c.path = c.path[:n-1]
		}
		c.lock.Unlock()
	}, nil
}
