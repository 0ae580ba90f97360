package tracking

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// TestStore_UniqueIDs verifies 10,000 sequential tracks yield distinct ids.
func TestStore_UniqueIDs(t *testing.T) {
	s := New()
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		id := s.Track(types.VariableSelection{Name: fmt.Sprintf("v%d", i)})
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
	assert.Equal(t, 10000, s.Len())
}

// TestStore_UntrackRemovesOnlyThatEntry verifies untrack is precise.
func TestStore_UntrackRemovesOnlyThatEntry(t *testing.T) {
	s := New()
	a := s.Track(types.VariableSelection{Name: "a"})
	b := s.Track(types.ExpressionSelection{Expression: "b + 1"})

	s.Untrack(a)

	_, ok := s.Lookup(a)
	assert.False(t, ok)

	sel, ok := s.Lookup(b)
	require.True(t, ok)
	assert.Equal(t, types.ExpressionSelection{Expression: "b + 1"}, sel)
	assert.Equal(t, 1, s.Len())
}

// TestStore_UntrackUnknownIsNoop verifies removing a missing id changes nothing.
func TestStore_UntrackUnknownIsNoop(t *testing.T) {
	s := New()
	id := s.Track(types.VariableSelection{Name: "a"})

	assert.NotPanics(t, func() { s.Untrack("no-such-id") })
	assert.Equal(t, 1, s.Len())

	s.Untrack(id)
	s.Untrack(id)
	assert.Zero(t, s.Len())
}

// TestStore_CollisionRegenerates verifies a colliding id is replaced.
func TestStore_CollisionRegenerates(t *testing.T) {
	ids := []string{"same", "same", "same", "fresh"}
	s := New(WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))

	first := s.Track(types.VariableSelection{Name: "a"})
	second := s.Track(types.VariableSelection{Name: "b"})

	assert.Equal(t, "same", first)
	assert.Equal(t, "fresh", second)

	sel, ok := s.Lookup("same")
	require.True(t, ok)
	assert.Equal(t, types.VariableSelection{Name: "a"}, sel)
}

// TestStore_Resolve verifies the NotFound error for unknown ids.
func TestStore_Resolve(t *testing.T) {
	s := New()
	id := s.Track(types.VariableSelection{Name: "img", FrameID: types.Frame(3)})

	sel, err := s.Resolve(id)
	require.NoError(t, err)
	frame, pinned := sel.Frame()
	assert.True(t, pinned)
	assert.Equal(t, 3, frame)

	_, err = s.Resolve("missing")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

// TestStore_Concurrent verifies concurrent track/untrack keeps the mapping consistent.
func TestStore_Concurrent(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	kept := make([]string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			drop := s.Track(types.VariableSelection{Name: "tmp"})
			kept[i] = s.Track(types.VariableSelection{Name: fmt.Sprintf("v%d", i)})
			s.Untrack(drop)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, s.Len())
	for i, id := range kept {
		sel, ok := s.Lookup(id)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", i), sel.Source())
	}
}
