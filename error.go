package activation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// MissingDependencyError is returned when a required parameter, property, or
// method import has no satisfying candidate at activation time. The engine
// never substitutes a default instance for a missing required dependency.
type MissingDependencyError struct {
	// Type is the requested type that could not be satisfied.
	Type reflect.Type

	// Name is the parameter or property name at the failing import site,
	// if one was declared.
	Name string

	// Key is the locate key of the failed lookup, if any.
	Key any

	// Status is a snapshot of the catalog at the time of the failure.
	Status string
}

func (e *MissingDependencyError) Error() string {
	msg := fmt.Sprintf("no export found for required dependency: %v", e.Type)
	if e.Name != "" {
		msg += fmt.Sprintf(" (parameter %q)", e.Name)
	}
	if e.Key != nil {
		msg += fmt.Sprintf(" (key %v)", e.Key)
	}
	return msg
}

// PlanCompilationError is returned when a descriptor's metadata is
// inconsistent at plan-build time: a bad constructor shape, an unknown
// property or method, or conflicting overrides. A missing provider is not a
// compilation error; that failure is deferred to activation time.
type PlanCompilationError struct {
	Type    reflect.Type
	Message string
}

func (e *PlanCompilationError) Error() string {
	return fmt.Sprintf("cannot compile activation plan for %v: %s", e.Type, e.Message)
}

// CyclicDependencyError is returned when a locate call re-enters an export
// that is already being activated on the same call chain. The original
// design would deadlock or overflow on cyclic required dependencies; this
// engine fails explicitly instead.
type CyclicDependencyError struct {
	// Type is the export whose re-entry closed the cycle.
	Type reflect.Type

	// Path is the chain of activation types from the top-level locate to
	// the re-entered export.
	Path []reflect.Type
}

func (e *CyclicDependencyError) Error() string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("cyclic dependency activating %v", e.Type))
	if len(e.Path) > 0 {
		builder.WriteString(": ")
		for i, t := range e.Path {
			if i > 0 {
				builder.WriteString(" -> ")
			}
			builder.WriteString(t.String())
		}
	}
	return builder.String()
}

// Breadcrumb identifies one strategy on the activation call chain at the
// time of a failure.
type Breadcrumb struct {
	Type  reflect.Type
	Depth int
}

// ActivationError wraps any failure raised during the recursive
// resolution/construction chain: user constructor or hook faults, missing
// dependencies from nested imports, or captured panics. Breadcrumbs
// accumulate outward as the failure propagates, so the surfaced error
// carries the full chain from the failing leaf to the top-level locate call
// in leaf-to-root order. The original failure remains reachable through
// errors.Is / errors.As.
type ActivationError struct {
	// Breadcrumbs is the chain of strategies being activated, leaf first.
	Breadcrumbs []Breadcrumb

	// Cause is the underlying failure.
	Cause error
}

func (e *ActivationError) Error() string {
	builder := strings.Builder{}
	builder.WriteString("activation failed: ")
	builder.WriteString(e.Cause.Error())
	for _, b := range e.Breadcrumbs {
		builder.WriteString(fmt.Sprintf("; strategy being activated: %v at depth %d", b.Type, b.Depth))
	}
	return builder.String()
}

func (e *ActivationError) Unwrap() error {
	return e.Cause
}

// wrapActivation adds a breadcrumb for the given descriptor to err. An
// existing ActivationError accumulates the breadcrumb; any other error is
// wrapped, not replaced.
func wrapActivation(err error, d *Descriptor, depth int) error {
	crumb := Breadcrumb{Type: d.ActivationType, Depth: depth}
	var ae *ActivationError
	if errors.As(err, &ae) {
		ae.Breadcrumbs = append(ae.Breadcrumbs, crumb)
		return err
	}
	return &ActivationError{
		Breadcrumbs: []Breadcrumb{crumb},
		Cause:       err,
	}
}

// AggregateDisposalError is returned from Scope.Dispose when one or more
// tracked disposables faulted during teardown. Teardown always completes;
// individual failures are collected, not fail-fast.
type AggregateDisposalError struct {
	// ScopeID is the uuid of the scope whose teardown faulted.
	ScopeID string

	// ScopeName is the scope's name, if one was given.
	ScopeName string

	// Err holds the collected disposal failures.
	Err error
}

func (e *AggregateDisposalError) Error() string {
	name := e.ScopeName
	if name == "" {
		name = e.ScopeID
	}
	return fmt.Sprintf("disposal of scope %s completed with errors: %v", name, e.Err)
}

func (e *AggregateDisposalError) Unwrap() error {
	return e.Err
}
