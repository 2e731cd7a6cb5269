package activation

import (
	"context"
	"io"
	"reflect"
	"sync"
)

// typeInfo caches expensive reflection operations for a type.
type typeInfo struct {
	isError              bool
	isInterface          bool
	implementsDisposable bool
	implementsCloser     bool
}

var (
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	disposableType = reflect.TypeOf((*Disposable)(nil)).Elem()
	closerType     = reflect.TypeOf((*io.Closer)(nil)).Elem()
	scopeType      = reflect.TypeOf((*Scope)(nil))
	ictxType       = reflect.TypeOf((*InjectionContext)(nil))
)

// Global type cache to avoid repeated reflection operations.
var globalTypeCache sync.Map // map[reflect.Type]*typeInfo

// getTypeInfo returns cached type information, computing it if necessary.
func getTypeInfo(t reflect.Type) *typeInfo {
	if cached, ok := globalTypeCache.Load(t); ok {
		return cached.(*typeInfo)
	}

	info := &typeInfo{
		isError:              t.AssignableTo(errorType),
		isInterface:          t.Kind() == reflect.Interface,
		implementsDisposable: t.Implements(disposableType),
		implementsCloser:     t.Implements(closerType),
	}

	actual, _ := globalTypeCache.LoadOrStore(t, info)
	return actual.(*typeInfo)
}

// interfaceCache caches which concrete types implement which interfaces.
type interfaceCache struct {
	mu    sync.RWMutex
	cache map[interfaceCacheKey]bool
}

type interfaceCacheKey struct {
	concrete reflect.Type
	iface    reflect.Type
}

var globalInterfaceCache = &interfaceCache{
	cache: make(map[interfaceCacheKey]bool),
}

// canAssign checks if the concrete type can be assigned to the requested
// type, with caching for the interface case.
func canAssign(concrete, requested reflect.Type) bool {
	if requested.Kind() != reflect.Interface {
		return concrete == requested
	}

	key := interfaceCacheKey{concrete: concrete, iface: requested}

	// Fast path: check cache
	globalInterfaceCache.mu.RLock()
	if result, ok := globalInterfaceCache.cache[key]; ok {
		globalInterfaceCache.mu.RUnlock()
		return result
	}
	globalInterfaceCache.mu.RUnlock()

	// Slow path: compute and cache
	result := concrete.AssignableTo(requested)

	globalInterfaceCache.mu.Lock()
	globalInterfaceCache.cache[key] = result
	globalInterfaceCache.mu.Unlock()

	return result
}
