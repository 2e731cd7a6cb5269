package activation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_DisposalReverseOrder(t *testing.T) {
	rec := &disposeRecorder{}
	c := NewContainer()

	nextID := 0
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*testWidget](),
		Constructor: func() *testWidget {
			nextID++
			return &testWidget{id: nextID, recorder: rec}
		},
	}))

	scope := c.CreateScope("ordered")
	for i := 0; i < 3; i++ {
		_ = MustLocate[*testWidget](context.Background(), scope)
	}

	require.NoError(t, scope.Dispose())
	assert.Equal(t, []string{"widget:3", "widget:2", "widget:1"}, rec.entries())
}

func Test_ChildScopesDisposedFirst(t *testing.T) {
	rec := &disposeRecorder{}
	c := NewContainer()

	names := []string{"parent", "child", "grandchild"}
	idx := 0
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*testGadget](),
		Constructor: func() *testGadget {
			g := &testGadget{name: names[idx], recorder: rec}
			idx++
			return g
		},
	}))

	parent := c.CreateScope("parent")
	child := parent.CreateChild("child")
	grandchild := child.CreateChild("grandchild")

	_ = MustLocate[*testGadget](context.Background(), parent)
	_ = MustLocate[*testGadget](context.Background(), child)
	_ = MustLocate[*testGadget](context.Background(), grandchild)

	require.NoError(t, parent.Dispose())
	assert.Equal(t, []string{"gadget:child", "gadget:grandchild", "gadget:parent"}, rec.entries())
}

type faultyCloser struct {
	rec  *disposeRecorder
	name string
}

func (f *faultyCloser) Close() error {
	f.rec.add("close:" + f.name)
	if f.name == "bad" {
		return fmt.Errorf("close failed for %s", f.name)
	}
	return nil
}

func Test_DisposalAggregatesFailures(t *testing.T) {
	rec := &disposeRecorder{}
	c := NewContainer()

	names := []string{"first", "bad", "last"}
	idx := 0
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*faultyCloser](),
		Constructor: func() *faultyCloser {
			f := &faultyCloser{rec: rec, name: names[idx]}
			idx++
			return f
		},
	}))

	scope := c.CreateScope("faulty")
	for range names {
		_ = MustLocate[*faultyCloser](context.Background(), scope)
	}

	err := scope.Dispose()
	require.Error(t, err)

	var aggregate *AggregateDisposalError
	require.True(t, errors.As(err, &aggregate))
	assert.Equal(t, scope.ID(), aggregate.ScopeID)

	// The failing Close never aborts the teardown of the rest.
	assert.Equal(t, []string{"close:last", "close:bad", "close:first"}, rec.entries())
}

type panickyDisposable struct{}

func (p *panickyDisposable) Dispose() { panic("disposal panic") }

func Test_DisposalPanicIsCollected(t *testing.T) {
	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*panickyDisposable](),
		Constructor:    func() *panickyDisposable { return &panickyDisposable{} },
	}))

	scope := c.CreateScope("panicky")
	_ = MustLocate[*panickyDisposable](context.Background(), scope)

	err := scope.Dispose()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic during disposal")
}

func Test_CleanupDelegatesRunInRegistrationOrder(t *testing.T) {
	type resource struct{}

	var order []string
	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*resource](),
		Constructor:    func() *resource { return &resource{} },
		Cleanup: []func(any){
			func(any) { order = append(order, "cleanup-1") },
			func(any) { order = append(order, "cleanup-2") },
		},
	}))

	scope := c.CreateScope("cleanup")
	_ = MustLocate[*resource](context.Background(), scope)

	require.NoError(t, scope.Dispose())
	assert.Equal(t, []string{"cleanup-1", "cleanup-2"}, order)
}

func Test_ExternallyOwnedNotTracked(t *testing.T) {
	rec := &disposeRecorder{}
	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType:  TypeFor[*testGadget](),
		ExternallyOwned: true,
		Constructor:     func() *testGadget { return &testGadget{name: "external", recorder: rec} },
	}))

	scope := c.CreateScope("external")
	_ = MustLocate[*testGadget](context.Background(), scope)

	require.NoError(t, scope.Dispose())
	assert.Empty(t, rec.entries())
}

func Test_LocateOnDisposedScopeFails(t *testing.T) {
	type thing struct{}

	c := NewContainer()
	require.NoError(t, c.Register(&Descriptor{
		ActivationType: TypeFor[*thing](),
		Constructor:    func() *thing { return &thing{} },
	}))

	scope := c.CreateScope("gone")
	require.NoError(t, scope.Dispose())

	_, err := Locate[*thing](context.Background(), scope)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disposed scope")
}

func Test_DisposeIsIdempotent(t *testing.T) {
	c := NewContainer()
	scope := c.CreateScope("twice")
	require.NoError(t, scope.Dispose())
	require.NoError(t, scope.Dispose())
}
