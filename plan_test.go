package activation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqWidget struct {
	Before string
	After  string
	calls  []string
}

func (w *seqWidget) InjectBefore(v string) { w.calls = append(w.calls, "method-before:"+v) }
func (w *seqWidget) InjectAfter(v string)  { w.calls = append(w.calls, "method-after:"+v) }

func Test_PlanOrdering(t *testing.T) {
	var events []string
	record := func(name, value string) func(*InjectionContext) (any, error) {
		return func(*InjectionContext) (any, error) {
			events = append(events, name)
			return value, nil
		}
	}

	c := NewContainer()
	err := c.Register(&Descriptor{
		ActivationType: TypeFor[*seqWidget](),
		Properties: []PropertyImport{
			{Spec: ParameterSpec{Name: "Before", ValueProvider: record("prop-before", "b")}},
			{Spec: ParameterSpec{Name: "After", ValueProvider: record("prop-after", "a")}, AfterConstruction: true},
		},
		Methods: []MethodImport{
			{Name: "InjectBefore", Params: []ParameterSpec{{ValueProvider: record("method-before", "b")}}},
			{Name: "InjectAfter", Params: []ParameterSpec{{ValueProvider: record("method-after", "a")}}, AfterConstruction: true},
		},
		ActivationHooks: []func(*InjectionContext, any) error{
			func(_ *InjectionContext, _ any) error {
				events = append(events, "hook")
				return nil
			},
		},
		Enrichments: []func(*InjectionContext, any) (any, error){
			func(_ *InjectionContext, instance any) (any, error) {
				events = append(events, "enrich")
				return instance, nil
			},
		},
	})
	require.NoError(t, err)

	w := MustLocate[*seqWidget](context.Background(), c.RootScope())

	assert.Equal(t, []string{
		"prop-before", "method-before", "hook", "prop-after", "method-after", "enrich",
	}, events)
	assert.Equal(t, "b", w.Before)
	assert.Equal(t, "a", w.After)
	assert.Equal(t, []string{"method-before:b", "method-after:a"}, w.calls)
}

func Test_EnrichmentReplacesInstance(t *testing.T) {
	type inner struct{ wrapped bool }

	c := NewContainer()
	err := c.Register(&Descriptor{
		ActivationType: TypeFor[*inner](),
		Constructor:    func() *inner { return &inner{} },
		Enrichments: []func(*InjectionContext, any) (any, error){
			func(_ *InjectionContext, _ any) (any, error) {
				return &inner{wrapped: true}, nil
			},
		},
	})
	require.NoError(t, err)

	got := MustLocate[*inner](context.Background(), c.RootScope())
	assert.True(t, got.wrapped)
}

func Test_MissingProviderDeferredToLocateTime(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*testWidget](),
		Constructor: func(g iGadget) *testWidget {
			return &testWidget{gadget: g}
		},
	}))

	// Registration and plan compilation succeed with no gadget provider;
	// the failure happens at locate time.
	_, err := Locate[*testWidget](context.Background(), c.RootScope())
	require.Error(t, err)

	var missing *MissingDependencyError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, TypeFor[iGadget](), missing.Type)

	// Registering the provider afterward makes the same locate succeed.
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*testGadget](),
		ExportTypes:    []reflect.Type{TypeFor[iGadget]()},
		Constructor:    func() *testGadget { return &testGadget{name: "late"} },
	}))

	w, err := Locate[*testWidget](context.Background(), c.RootScope())
	require.NoError(t, err)
	assert.Equal(t, "late", w.gadget.GadgetName())
}

func Test_PlanCompilationErrors(t *testing.T) {
	type plain struct{ Value string }

	cases := []struct {
		name       string
		descriptor *Descriptor
	}{
		{
			name: "constructor with no instance result",
			descriptor: &Descriptor{
				ActivationType: TypeFor[*plain](),
				Constructor:    func() error { return nil },
			},
		},
		{
			name: "constructor with multiple error results",
			descriptor: &Descriptor{
				ActivationType: TypeFor[*plain](),
				Constructor:    func() (*plain, error, error) { return nil, nil, nil },
			},
		},
		{
			name: "constructor returning unrelated type",
			descriptor: &Descriptor{
				ActivationType: TypeFor[*plain](),
				Constructor:    func() int { return 0 },
			},
		},
		{
			name: "parameter spec count mismatch",
			descriptor: &Descriptor{
				ActivationType:    TypeFor[*plain](),
				Constructor:       func(a, b string) *plain { return &plain{} },
				ConstructorParams: []ParameterSpec{{Name: "only"}},
			},
		},
		{
			name: "unknown property",
			descriptor: &Descriptor{
				ActivationType: TypeFor[*plain](),
				Constructor:    func() *plain { return &plain{} },
				Properties:     []PropertyImport{{Spec: ParameterSpec{Name: "Nope"}}},
			},
		},
		{
			name: "unknown method",
			descriptor: &Descriptor{
				ActivationType: TypeFor[*plain](),
				Constructor:    func() *plain { return &plain{} },
				Methods:        []MethodImport{{Name: "Nope"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewContainer()
			require.NoError(t, c.Register(tc.descriptor))

			_, err := c.RootScope().Locate(context.Background(), tc.descriptor.ActivationType)
			require.Error(t, err)

			var compilation *PlanCompilationError
			assert.True(t, errors.As(err, &compilation), "expected PlanCompilationError, got %v", err)
		})
	}
}

func Test_ConstructorPanicIsCaptured(t *testing.T) {
	type boom struct{}

	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*boom](),
		Constructor:    func() *boom { panic("kaboom") },
	}))

	_, err := Locate[*boom](context.Background(), c.RootScope())
	require.Error(t, err)

	var activation *ActivationError
	require.True(t, errors.As(err, &activation))
	assert.Contains(t, err.Error(), "kaboom")
}

func Test_ConstructorErrorSurfaces(t *testing.T) {
	type faulty struct{}
	sentinel := fmt.Errorf("db unavailable")

	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*faulty](),
		Constructor:    func() (*faulty, error) { return nil, sentinel },
	}))

	_, err := Locate[*faulty](context.Background(), c.RootScope())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sentinel))
}

func Test_CustomConstructorEnrichment(t *testing.T) {
	type custom struct{ value string }

	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*custom](),
		Constructor:    func(v string) *custom { return &custom{value: v} },
		CustomConstructorEnrichment: func(_ *InjectionContext) ([]any, error) {
			return []any{"handcrafted"}, nil
		},
	}))

	got := MustLocate[*custom](context.Background(), c.RootScope())
	assert.Equal(t, "handcrafted", got.value)
}

func Test_ZeroConstruction(t *testing.T) {
	type bare struct {
		Named string
	}

	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*bare](),
		Properties: []PropertyImport{
			{Spec: ParameterSpec{Name: "Named", ValueProvider: func(*InjectionContext) (any, error) {
				return "filled", nil
			}}},
		},
	}))

	got := MustLocate[*bare](context.Background(), c.RootScope())
	assert.Equal(t, "filled", got.Named)
}

func Test_FreshContextSubtree(t *testing.T) {
	type isolated struct{}

	var seenParent *InjectionContext
	sawHook := false

	c := NewContainer()
	require.NoError(t, c.Register(
		&Descriptor{
			ActivationType:    TypeFor[*isolated](),
			CreatesNewContext: true,
			Constructor:       func() *isolated { return &isolated{} },
			ActivationHooks: []func(*InjectionContext, any) error{
				func(ictx *InjectionContext, _ any) error {
					sawHook = true
					seenParent = ictx.Parent()
					return nil
				},
			},
		},
		&Descriptor{
			ActivationType: TypeFor[*testWidget](),
			Constructor: func(_ *isolated) *testWidget {
				return &testWidget{}
			},
		},
	))

	// Even when requested as a nested dependency, the isolated export's
	// subtree starts a fresh context chain.
	_ = MustLocate[*testWidget](context.Background(), c.RootScope())
	assert.True(t, sawHook)
	assert.Nil(t, seenParent)
}
