package detour

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

//go:noinline
func a() string {
	return "a"
}

func b() string {
	return "b"
}

func TestResolve(t *testing.T) {
	assert := assert.New(t)

	fn, err := resolve(a)
	if assert.NoError(err) {
		assert.Equal(reflect.ValueOf(a).Pointer(), fn.addr)
		assert.Equal(reflect.TypeOf(a), fn.typ)
	}

	raw, err := resolve(uintptr(0x401000))
	if assert.NoError(err) {
		assert.Equal(uintptr(0x401000), raw.addr)
		assert.Nil(raw.typ)
	}

	ptr, err := resolve(unsafe.Pointer(fn.addr))
	if assert.NoError(err) {
		assert.Equal(fn.addr, ptr.addr)
	}
}

func TestResolve_NotAFunction(t *testing.T) {
	var nilFunc func()

	cases := map[string]struct {
		original, detour any
	}{
		"first arg not a function":  {"not a function", b},
		"second arg not a function": {a, 42},
		"both args not functions":   {[]int{1, 2, 3}, map[string]int{}},
		"nil first arg":             {nil, b},
		"nil second arg":            {a, nil},
		"nil func":                  {nilFunc, b},
		"zero address":              {uintptr(0), b},
		"nil pointer":               {a, unsafe.Pointer(nil)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := resolvePair(tc.original, tc.detour)
			assert.ErrorIs(t, err, ErrNotFunc)
		})
	}
}

func TestResolve_SignatureMismatch(t *testing.T) {
	cases := map[string]struct {
		fn1, fn2 any
		msg      string
	}{
		"different number of inputs": {
			fn1: func(x int) int { return x },
			fn2: func(x, y int) int { return x + y },
			msg: "argument 1: <nil> != int",
		},
		"different number of outputs": {
			fn1: func() int { return 1 },
			fn2: func() (int, error) { return 1, nil },
			msg: "output 1: <nil> != error",
		},
		"different input types": {
			fn1: func(x int) int { return x },
			fn2: func(x string) int { return len(x) },
			msg: "argument 0: int != string",
		},
		"different output types": {
			fn1: func() int { return 1 },
			fn2: func() string { return "1" },
			msg: "output 0: int != string",
		},
		"variadic": {
			fn1: func(x ...int) {},
			fn2: func(x []int) {},
			msg: "variadic mismatch",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := resolvePair(tc.fn1, tc.fn2)
			assert.ErrorIs(t, err, ErrSignatureMismatch)
			assert.ErrorContains(t, err, tc.msg)
		})
	}
}

func TestResolve_MixedKinds(t *testing.T) {
	// Signatures can only be compared when both sides are func values.
	orig, repl, err := resolvePair(a, uintptr(0x401000))
	assert.NoError(t, err)
	assert.NotNil(t, orig.typ)
	assert.Nil(t, repl.typ)

	_, _, err = resolvePair(a, b)
	assert.NoError(t, err)
}

func TestFuncLength(t *testing.T) {
	assert := assert.New(t)

	n, ok := funcLength(reflect.ValueOf(a).Pointer())
	assert.True(ok)
	assert.Greater(n, 0)

	// Not an entry point.
	_, ok = funcLength(reflect.ValueOf(a).Pointer() + 1)
	assert.False(ok)

	_, ok = funcLength(0x10)
	assert.False(ok)

	assert.Equal(DefaultScanLimit, scanWindow(0x10, DefaultScanLimit))
	assert.LessOrEqual(scanWindow(reflect.ValueOf(a).Pointer(), 4096), n)
}
