package activation

import (
	"fmt"
	"reflect"

	"github.com/gburgyan/go-timing"
)

// ActivationFunc is a compiled activation plan: invoked with an injection
// context, it constructs and finishes exactly one instance. The function
// performs no caching; lifestyle policies layer caching outside it.
type ActivationFunc func(ictx *InjectionContext) (any, error)

type compiledPlan struct {
	fn  ActivationFunc
	err error
}

// planFor returns the cached compiled plan for the descriptor, building it
// on first use. Plans are cached by descriptor identity, which is why
// descriptors must never be mutated after registration.
func (c *Container) planFor(d *Descriptor) (ActivationFunc, error) {
	if cached, ok := c.plans.Load(d); ok {
		plan := cached.(*compiledPlan)
		return plan.fn, plan.err
	}
	fn, err := c.buildPlan(d)
	actual, _ := c.plans.LoadOrStore(d, &compiledPlan{fn: fn, err: err})
	plan := actual.(*compiledPlan)
	return plan.fn, plan.err
}

// compiledProperty is a property import resolved to a struct field at
// compile time.
type compiledProperty struct {
	spec  ParameterSpec
	index []int
	typ   reflect.Type
}

// compiledMethod is a method import resolved to a method at compile time.
type compiledMethod struct {
	name      string
	index     int
	specs     []ParameterSpec
	paramTyps []reflect.Type
	errIndex  int
}

// buildPlan compiles a descriptor into an ActivationFunc. Metadata
// inconsistencies fail here with PlanCompilationError; a missing provider
// for a required parameter does not - that failure is deferred to the first
// invocation, because providers may still be registered later.
func (c *Container) buildPlan(d *Descriptor) (ActivationFunc, error) {
	var ctorVal reflect.Value
	var ctorType reflect.Type
	resultIndex, errIndex := -1, -1

	if d.Constructor != nil {
		ctorType = reflect.TypeOf(d.Constructor)
		if ctorType.Kind() != reflect.Func {
			return nil, &PlanCompilationError{Type: d.ActivationType, Message: "constructor is not a function"}
		}
		ctorVal = reflect.ValueOf(d.Constructor)

		for i := 0; i < ctorType.NumOut(); i++ {
			if ctorType.Out(i).AssignableTo(errorType) {
				if errIndex >= 0 {
					return nil, &PlanCompilationError{Type: d.ActivationType, Message: "multiple error results on constructor not permitted"}
				}
				errIndex = i
			} else {
				if resultIndex >= 0 {
					return nil, &PlanCompilationError{Type: d.ActivationType, Message: "constructor must return exactly one instance"}
				}
				resultIndex = i
			}
		}
		if resultIndex < 0 {
			return nil, &PlanCompilationError{Type: d.ActivationType, Message: "constructor has no instance result"}
		}
		resultType := ctorType.Out(resultIndex)
		if resultType != d.ActivationType && !canAssign(resultType, d.ActivationType) {
			return nil, &PlanCompilationError{
				Type:    d.ActivationType,
				Message: fmt.Sprintf("constructor returns %v which does not satisfy the activation type", resultType),
			}
		}
		if len(d.ConstructorParams) > 0 && len(d.ConstructorParams) != ctorType.NumIn() {
			return nil, &PlanCompilationError{
				Type: d.ActivationType,
				Message: fmt.Sprintf("explicit constructor takes %d parameters but %d parameter specs are recorded",
					ctorType.NumIn(), len(d.ConstructorParams)),
			}
		}
		for i, spec := range d.ConstructorParams {
			if spec.Type != nil && spec.Type != ctorType.In(i) && !spec.Type.AssignableTo(ctorType.In(i)) {
				return nil, &PlanCompilationError{
					Type: d.ActivationType,
					Message: fmt.Sprintf("parameter spec %d resolves %v which is not assignable to constructor parameter %v",
						i, spec.Type, ctorType.In(i)),
				}
			}
		}
	} else if len(d.ConstructorParams) > 0 {
		return nil, &PlanCompilationError{Type: d.ActivationType, Message: "constructor parameter specs recorded without a constructor"}
	}

	propsBefore, propsAfter, err := compileProperties(d)
	if err != nil {
		return nil, err
	}
	methodsBefore, methodsAfter, err := compileMethods(d)
	if err != nil {
		return nil, err
	}

	fn := func(ictx *InjectionContext) (instance any, err error) {
		if EnableTiming == TimingActivations {
			tCtx, complete := timing.Start(ictx.Context(), "activate:"+d.ActivationType.String())
			defer complete()
			ictx = ictx.withContext(tCtx)
		}

		// Non-container faults raised by user code - constructors, hooks,
		// enrichments - are captured at the plan boundary and surfaced
		// through the same failure taxonomy as everything else.
		defer func() {
			if r := recover(); r != nil {
				instance = nil
				err = fmt.Errorf("panic during activation of %v: %v", d.ActivationType, r)
			}
		}()

		var instVal reflect.Value
		if d.Constructor != nil {
			args, argErr := c.resolveConstructorArgs(ictx, d, ctorType)
			if argErr != nil {
				return nil, argErr
			}
			results := ctorVal.Call(args)
			if errIndex >= 0 && !results[errIndex].IsNil() {
				return nil, results[errIndex].Interface().(error)
			}
			instVal = results[resultIndex]
		} else {
			instVal = reflect.New(d.ActivationType.Elem())
		}
		instance = instVal.Interface()

		// A constructor declared to return an interface still activates the
		// concrete type; injection sites are compiled against the
		// activation type, so re-anchor the value at its dynamic type.
		if instVal.Type() != d.ActivationType &&
			len(propsBefore)+len(propsAfter)+len(methodsBefore)+len(methodsAfter) > 0 {
			instVal = reflect.ValueOf(instance)
			if instVal.Type() != d.ActivationType {
				return nil, fmt.Errorf("constructor for %v produced %v, which cannot receive its imports",
					d.ActivationType, instVal.Type())
			}
		}

		if err := c.applyProperties(ictx, d, instVal, propsBefore); err != nil {
			return nil, err
		}
		if err := c.applyMethods(ictx, d, instVal, methodsBefore); err != nil {
			return nil, err
		}

		for _, hook := range d.ActivationHooks {
			if err := hook(ictx, instance); err != nil {
				return nil, err
			}
		}

		if err := c.applyProperties(ictx, d, instVal, propsAfter); err != nil {
			return nil, err
		}
		if err := c.applyMethods(ictx, d, instVal, methodsAfter); err != nil {
			return nil, err
		}

		for _, enrich := range d.Enrichments {
			enriched, err := enrich(ictx, instance)
			if err != nil {
				return nil, err
			}
			if enriched != nil {
				instance = enriched
			}
		}

		// Disposal is registered before the instance is handed back so a
		// failure on the caller's side never leaks an untracked disposable.
		if d.TrackDisposable() {
			ictx.Scope().track(d, instance)
		}

		return instance, nil
	}

	return fn, nil
}

func compileProperties(d *Descriptor) (before, after []compiledProperty, err error) {
	if len(d.Properties) == 0 {
		return nil, nil, nil
	}
	if d.ActivationType.Kind() != reflect.Pointer || d.ActivationType.Elem().Kind() != reflect.Struct {
		return nil, nil, &PlanCompilationError{Type: d.ActivationType, Message: "property imports require a pointer-to-struct activation type"}
	}
	structType := d.ActivationType.Elem()
	for _, prop := range d.Properties {
		if prop.Spec.Name == "" {
			return nil, nil, &PlanCompilationError{Type: d.ActivationType, Message: "property import has no field name"}
		}
		field, ok := structType.FieldByName(prop.Spec.Name)
		if !ok {
			return nil, nil, &PlanCompilationError{
				Type:    d.ActivationType,
				Message: fmt.Sprintf("property import references unknown field %q", prop.Spec.Name),
			}
		}
		if field.PkgPath != "" {
			return nil, nil, &PlanCompilationError{
				Type:    d.ActivationType,
				Message: fmt.Sprintf("property import references unexported field %q", prop.Spec.Name),
			}
		}
		compiled := compiledProperty{spec: prop.Spec, index: field.Index, typ: field.Type}
		if prop.AfterConstruction {
			after = append(after, compiled)
		} else {
			before = append(before, compiled)
		}
	}
	return before, after, nil
}

func compileMethods(d *Descriptor) (before, after []compiledMethod, err error) {
	for _, m := range d.Methods {
		method, ok := d.ActivationType.MethodByName(m.Name)
		if !ok {
			return nil, nil, &PlanCompilationError{
				Type:    d.ActivationType,
				Message: fmt.Sprintf("method import references unknown method %q", m.Name),
			}
		}
		mt := method.Func.Type()
		paramCount := mt.NumIn() - 1 // receiver
		if len(m.Params) > 0 && len(m.Params) != paramCount {
			return nil, nil, &PlanCompilationError{
				Type: d.ActivationType,
				Message: fmt.Sprintf("method %q takes %d parameters but %d parameter specs are recorded",
					m.Name, paramCount, len(m.Params)),
			}
		}
		compiled := compiledMethod{
			name:     m.Name,
			index:    method.Index,
			errIndex: -1,
		}
		for i := 0; i < paramCount; i++ {
			compiled.paramTyps = append(compiled.paramTyps, mt.In(i+1))
			if len(m.Params) > 0 {
				compiled.specs = append(compiled.specs, m.Params[i])
			} else {
				compiled.specs = append(compiled.specs, ParameterSpec{})
			}
		}
		for i := 0; i < mt.NumOut(); i++ {
			if mt.Out(i).AssignableTo(errorType) {
				compiled.errIndex = i
				break
			}
		}
		if m.AfterConstruction {
			after = append(after, compiled)
		} else {
			before = append(before, compiled)
		}
	}
	return before, after, nil
}

// resolveConstructorArgs produces the constructor argument list, either from
// the custom constructor enrichment override or by resolving each parameter
// spec.
func (c *Container) resolveConstructorArgs(ictx *InjectionContext, d *Descriptor, ctorType reflect.Type) ([]reflect.Value, error) {
	numIn := ctorType.NumIn()

	if d.CustomConstructorEnrichment != nil {
		raw, err := d.CustomConstructorEnrichment(ictx)
		if err != nil {
			return nil, err
		}
		if len(raw) != numIn {
			return nil, fmt.Errorf("custom constructor enrichment for %v returned %d arguments, constructor takes %d",
				d.ActivationType, len(raw), numIn)
		}
		args := make([]reflect.Value, numIn)
		for i, v := range raw {
			if v == nil {
				args[i] = reflect.Zero(ctorType.In(i))
				continue
			}
			val := reflect.ValueOf(v)
			if !val.Type().AssignableTo(ctorType.In(i)) {
				return nil, fmt.Errorf("custom constructor enrichment for %v returned %v for parameter %d of type %v",
					d.ActivationType, val.Type(), i, ctorType.In(i))
			}
			args[i] = val
		}
		return args, nil
	}

	args := make([]reflect.Value, numIn)
	for i := 0; i < numIn; i++ {
		var spec ParameterSpec
		if len(d.ConstructorParams) > 0 {
			spec = d.ConstructorParams[i]
		}
		val, err := c.resolveSpec(ictx, spec, ctorType.In(i), d.ActivationType)
		if err != nil {
			return nil, err
		}
		args[i] = val
	}
	return args, nil
}

func (c *Container) applyProperties(ictx *InjectionContext, d *Descriptor, instVal reflect.Value, props []compiledProperty) error {
	for _, prop := range props {
		val, err := c.resolveSpec(ictx, prop.spec, prop.typ, d.ActivationType)
		if err != nil {
			return err
		}
		instVal.Elem().FieldByIndex(prop.index).Set(val)
	}
	return nil
}

func (c *Container) applyMethods(ictx *InjectionContext, d *Descriptor, instVal reflect.Value, methods []compiledMethod) error {
	for _, m := range methods {
		args := make([]reflect.Value, len(m.paramTyps))
		for i, pt := range m.paramTyps {
			val, err := c.resolveSpec(ictx, m.specs[i], pt, d.ActivationType)
			if err != nil {
				return err
			}
			args[i] = val
		}
		results := instVal.Method(m.index).Call(args)
		if m.errIndex >= 0 && !results[m.errIndex].IsNil() {
			return results[m.errIndex].Interface().(error)
		}
	}
	return nil
}
