package activation

import "reflect"

// Condition is a predicate gating an export's eligibility for a given
// injection site. All conditions attached to a descriptor must pass (logical
// AND) for the export to be considered.
type Condition interface {
	// Evaluate reports whether the candidate export is eligible for the
	// request described by the injection context.
	Evaluate(candidate *Descriptor, ictx *InjectionContext) bool
}

type predicateCondition struct {
	predicate func(candidate *Descriptor, ictx *InjectionContext) bool
	negate    bool
}

func (c *predicateCondition) Evaluate(candidate *Descriptor, ictx *InjectionContext) bool {
	result := c.predicate(candidate, ictx)
	if c.negate {
		return !result
	}
	return result
}

// When builds a condition from an arbitrary predicate over the candidate
// export and the requesting context.
func When(predicate func(candidate *Descriptor, ictx *InjectionContext) bool) Condition {
	return &predicateCondition{predicate: predicate}
}

// Unless is the logical negation of When, evaluated identically otherwise.
func Unless(predicate func(candidate *Descriptor, ictx *InjectionContext) bool) Condition {
	return &predicateCondition{predicate: predicate, negate: true}
}

type injectedIntoCondition struct {
	allowed []reflect.Type
}

func (c *injectedIntoCondition) Evaluate(_ *Descriptor, ictx *InjectionContext) bool {
	requesting := ictx.RequestingType()
	if requesting == nil {
		// Top-level locate calls have no requesting type and never match
		// an injection-site allow-list.
		return false
	}
	for _, t := range c.allowed {
		if requesting == t || canAssign(requesting, t) {
			return true
		}
	}
	return false
}

// WhenInjectedInto restricts an export to injection sites whose requesting
// type is one of the given types. The allow-list is captured at declaration
// time. Multiple WhenInjectedInto conditions on the same export combine as
// AND like any other conditions: each declaration's own allow-list must
// independently admit the requesting type.
func WhenInjectedInto(types ...reflect.Type) Condition {
	allowed := make([]reflect.Type, len(types))
	copy(allowed, types)
	return &injectedIntoCondition{allowed: allowed}
}
