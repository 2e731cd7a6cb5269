package activation

import (
	"fmt"
	"reflect"
	"sort"
)

// resolveSpec locates the value for one import site. Resolution order:
// ambient types (context.Context, *Scope, *InjectionContext), the spec's
// value provider, collection imports, and finally a catalog lookup using the
// spec's type, key, and filter. A missing candidate fails with
// MissingDependencyError for required imports and resolves to the type's
// zero value for optional ones.
func (c *Container) resolveSpec(ictx *InjectionContext, spec ParameterSpec, siteType reflect.Type, requesting reflect.Type) (reflect.Value, error) {
	resolvedType := siteType
	if spec.Type != nil {
		resolvedType = spec.Type
	}

	switch resolvedType {
	case contextType:
		return reflect.ValueOf(ictx.Context()), nil
	case scopeType:
		return reflect.ValueOf(ictx.Scope()), nil
	case ictxType:
		return reflect.ValueOf(ictx), nil
	}

	if spec.ValueProvider != nil {
		value, err := spec.ValueProvider(ictx)
		if err != nil {
			return reflect.Value{}, err
		}
		return valueForSite(value, siteType, spec.Name)
	}

	if resolvedType.Kind() == reflect.Slice {
		return c.resolveCollection(ictx, spec, resolvedType, requesting)
	}

	key := c.locateKey(ictx, spec)
	childCtx := ictx.child(resolvedType, key, requesting)
	d := c.catalog.FindBest(resolvedType, key, spec.ExportFilter, childCtx)
	if d == nil {
		if spec.Optional {
			return reflect.Zero(siteType), nil
		}
		return reflect.Value{}, &MissingDependencyError{
			Type:   resolvedType,
			Name:   spec.Name,
			Key:    key,
			Status: c.catalog.Status(),
		}
	}

	instance, err := ictx.Scope().activate(d, childCtx)
	if err != nil {
		return reflect.Value{}, err
	}
	return valueForSite(instance, siteType, spec.Name)
}

// resolveCollection activates every eligible export of the slice's element
// type. With a comparer on the spec the instances are ordered by it;
// otherwise catalog order (priority, then registration) is preserved.
func (c *Container) resolveCollection(ictx *InjectionContext, spec ParameterSpec, sliceType reflect.Type, requesting reflect.Type) (reflect.Value, error) {
	elemType := sliceType.Elem()
	key := c.locateKey(ictx, spec)
	childCtx := ictx.child(elemType, key, requesting)

	descriptors := c.catalog.FindAll(elemType, key, spec.ExportFilter, childCtx)
	if len(descriptors) == 0 && !spec.Optional {
		return reflect.Value{}, &MissingDependencyError{
			Type:   sliceType,
			Name:   spec.Name,
			Key:    key,
			Status: c.catalog.Status(),
		}
	}

	instances := make([]any, 0, len(descriptors))
	for _, d := range descriptors {
		instance, err := ictx.Scope().activate(d, childCtx)
		if err != nil {
			return reflect.Value{}, err
		}
		instances = append(instances, instance)
	}

	if spec.Comparer != nil {
		sort.SliceStable(instances, func(i, j int) bool {
			return spec.Comparer(instances[i], instances[j])
		})
	}

	result := reflect.MakeSlice(sliceType, 0, len(instances))
	for _, instance := range instances {
		value, err := valueForSite(instance, elemType, spec.Name)
		if err != nil {
			return reflect.Value{}, err
		}
		result = reflect.Append(result, value)
	}
	return result, nil
}

// locateKey computes the lookup key for an import: the runtime key provider
// wins, then the import-name alias, then no key.
func (c *Container) locateKey(ictx *InjectionContext, spec ParameterSpec) any {
	if spec.LocateKeyProvider != nil {
		return spec.LocateKeyProvider(ictx)
	}
	if spec.ImportName != "" {
		return spec.ImportName
	}
	return nil
}

// valueForSite converts a resolved instance to a reflect.Value assignable to
// the injection site.
func valueForSite(instance any, siteType reflect.Type, name string) (reflect.Value, error) {
	if instance == nil {
		return reflect.Zero(siteType), nil
	}
	value := reflect.ValueOf(instance)
	if !value.Type().AssignableTo(siteType) {
		if name != "" {
			return reflect.Value{}, fmt.Errorf("resolved %v is not assignable to parameter %q of type %v", value.Type(), name, siteType)
		}
		return reflect.Value{}, fmt.Errorf("resolved %v is not assignable to %v", value.Type(), siteType)
	}
	return value, nil
}
