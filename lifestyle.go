package activation

import (
	"sync"
	"time"
)

// Lifestyle is a caching policy layered outside a compiled activation
// function. The policy decides whether to invoke the function or return a
// previously constructed instance; the compiled function itself never
// caches. A nil Lifestyle on a descriptor means transient: no caching at
// all.
type Lifestyle interface {
	// provide returns the instance for this request, invoking activate at
	// most as often as the policy allows. If activate fails, no cache entry
	// is written and the next call retries construction.
	provide(ictx *InjectionContext, d *Descriptor, activate ActivationFunc) (any, error)

	// name identifies the policy in diagnostics output.
	name() string
}

func lifestyleName(l Lifestyle) string {
	if l == nil {
		return "transient"
	}
	return l.name()
}

// singletonSlot holds one lazily constructed instance. Concurrent first
// calls serialize on the mutex: exactly one caller constructs, the rest
// block and reuse the completed instance. Failed constructions leave the
// slot empty so the next call retries.
type singletonSlot struct {
	mu    sync.Mutex
	done  bool
	value any
}

func (s *singletonSlot) get(activate func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.value, nil
	}
	value, err := activate()
	if err != nil {
		return nil, err
	}
	s.value = value
	s.done = true
	return value, nil
}

// Singleton caches the first successful construction for the container's
// entire lifetime; all subsequent requests from any scope return the cached
// instance. Disposable singletons not marked externally owned are registered
// with the container's root scope, so disposing a child scope never touches
// them but tearing down the container still releases them.
type Singleton struct {
	slot singletonSlot
}

// NewSingleton returns a container-lifetime caching policy. Each descriptor
// needs its own instance; lifestyle state is keyed by descriptor identity.
func NewSingleton() *Singleton {
	return &Singleton{}
}

func (s *Singleton) provide(ictx *InjectionContext, d *Descriptor, activate ActivationFunc) (any, error) {
	return s.slot.get(func() (any, error) {
		instance, err := activate(ictx)
		if err != nil {
			return nil, err
		}
		if !d.ExternallyOwned && d.hasDisposalContract() {
			ictx.Scope().root().track(d, instance)
		}
		return instance, nil
	})
}

func (s *Singleton) name() string { return "singleton" }

// ScopedSingleton caches one instance per scope, lazily created on first
// request within that scope. A child scope does not inherit its parent's
// cached instance. The per-scope cache lives on the scope node and is torn
// down with it.
type ScopedSingleton struct{}

// NewScopedSingleton returns a per-scope caching policy.
func NewScopedSingleton() *ScopedSingleton {
	return &ScopedSingleton{}
}

func (s *ScopedSingleton) provide(ictx *InjectionContext, d *Descriptor, activate ActivationFunc) (any, error) {
	scope := ictx.Scope()
	return scope.slotFor(d).get(func() (any, error) {
		instance, err := activate(ictx)
		if err != nil {
			return nil, err
		}
		if !d.ExternallyOwned && d.hasDisposalContract() {
			scope.track(d, instance)
		}
		return instance, nil
	})
}

func (s *ScopedSingleton) name() string { return "scoped singleton" }

// WeakSingleton caches a single instance through a non-owning slot: the
// cached instance can be invalidated (explicitly, or by an optional idle
// TTL), after which the next request re-activates and refreshes the cache.
//
// True weak-reference semantics are not expressible for values typed as
// `any`, so the reclaimable reference is modeled as an owned slot with an
// explicit invalidation policy. No disposal tracking is attached to
// weak-singleton instances; ownership is not exclusive.
type WeakSingleton struct {
	mu         sync.Mutex
	value      any
	lastAccess time.Time
	idleTTL    time.Duration
	now        func() time.Time
}

// NewWeakSingleton returns a weakly cached policy. An idleTTL of zero means
// the cached instance only goes away through Invalidate.
func NewWeakSingleton(idleTTL time.Duration) *WeakSingleton {
	return &WeakSingleton{
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Invalidate drops the cached instance. The next request re-invokes the
// activation function.
func (w *WeakSingleton) Invalidate() {
	w.mu.Lock()
	w.value = nil
	w.mu.Unlock()
}

func (w *WeakSingleton) provide(ictx *InjectionContext, _ *Descriptor, activate ActivationFunc) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.value != nil {
		if w.idleTTL == 0 || w.now().Sub(w.lastAccess) <= w.idleTTL {
			w.lastAccess = w.now()
			return w.value, nil
		}
		// Idle too long; treat as reclaimed.
		w.value = nil
	}

	instance, err := activate(ictx)
	if err != nil {
		return nil, err
	}
	w.value = instance
	w.lastAccess = w.now()
	return instance, nil
}

func (w *WeakSingleton) name() string { return "weak singleton" }
