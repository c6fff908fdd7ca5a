//go:build amd64

package detour

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	var buf bytes.Buffer
	s := NewSet(Native, WithLogger(NewLogger(&buf, Config{LogLevel: "info"})))

	orig := fixture(t, addPrologue...)
	repl := fixture(t, subtract...)
	short := fixture(t, 0x31, 0xc0, 0xff, 0xc0, 0xc3)
	add := asFunc[func(a, b int) int](t, orig)

	require.NoError(s.Install(add, asFunc[func(a, b int) int](t, repl)))
	assert.Equal(1, s.Len())
	assert.Equal(-1, add(2, 3))
	assert.Contains(buf.String(), "detour installed")

	assert.Error(s.Install(orig, repl), "installing twice must fail")

	// Failures are logged and skipped.
	assert.ErrorIs(s.Install(short, repl), ErrInsufficientBytes)
	assert.Equal(1, s.Len())
	assert.Contains(buf.String(), "cannot be detoured")

	assert.Equal(5, Original(s, add)(2, 3))

	h, ok := s.Handle(orig)
	require.True(ok)
	assert.Equal(Applied, h.State())

	_, ok = s.Handle(short)
	assert.False(ok)

	require.NoError(s.UndoAll())
	assert.Equal(5, add(2, 3))
	assert.Equal(Prepared, h.State())

	require.NoError(h.Apply())
	assert.Equal(-1, add(2, 3))

	require.NoError(s.FreeAll())
	assert.Equal(0, s.Len())
	assert.Equal(Freed, h.State())
	assert.Equal(5, add(2, 3))
}

func TestSet_Original(t *testing.T) {
	assert := assert.New(t)

	s := NewSet(Native)
	orig := fixture(t, addPrologue...)
	add := asFunc[func(a, b int) int](t, orig)

	// Not detoured: the function itself comes back.
	assert.Equal(5, Original(s, add)(2, 3))
	assert.Nil(Original[any](s, 42))
}

func TestSet_Remove(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	s := NewSet(Native)
	orig := fixture(t, addPrologue...)
	repl := fixture(t, subtract...)
	add := asFunc[func(a, b int) int](t, orig)

	require.NoError(s.Install(orig, repl))
	assert.Equal(-1, add(2, 3))

	require.NoError(s.Remove(orig))
	assert.Equal(5, add(2, 3))
	assert.Equal(0, s.Len())

	assert.Error(s.Remove(orig))
	assert.ErrorIs(s.Remove("nope"), ErrNotFunc)
}

func TestNative_DebugLog(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(&buf, Config{LogLevel: "debug", LogPrefix: "test"})

	h, err := New(fixture(t, addPrologue...), fixture(t, subtract...), WithLogger(lg))
	require.NoError(t, err)
	t.Cleanup(func() { h.Free() })
	require.NoError(t, h.Prepare())

	assert.Regexp(t, `Original: 0x[0-9a-f]+, Trampoline: 0x[0-9a-f]+, diff: 0x[0-9a-f]+`, buf.String())
	assert.Contains(t, buf.String(), "push rbp")
}

func TestSet_ConcurrentUndoAll(t *testing.T) {
	require := require.New(t)

	s := NewSet(Native)
	for range 4 {
		require.NoError(s.Install(fixture(t, addPrologue...), fixture(t, subtract...)))
	}
	t.Cleanup(func() { s.FreeAll() })

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.UndoAll())
		}()
	}
	wg.Wait()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.handles {
		assert.Equal(t, Prepared, h.State())
	}
}
