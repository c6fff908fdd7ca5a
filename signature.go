package detour

import (
	"errors"
	"fmt"
	"reflect"
)

type funcDifferences struct {
	In  []*argDifference
	Out []*argDifference

	variadic bool
}

type argDifference struct {
	A reflect.Type
	B reflect.Type
}

func (d *funcDifferences) empty() bool {
	if d.variadic {
		return false
	}
	for _, arg := range d.In {
		if arg != nil {
			return false
		}
	}
	for _, out := range d.Out {
		if out != nil {
			return false
		}
	}
	return true
}

func (d *funcDifferences) Error() error {
	errs := []error{}
	for i, arg := range d.In {
		if arg != nil {
			errs = append(errs, fmt.Errorf("argument %d: %v != %v", i, arg.A, arg.B))
		}
	}
	for i, out := range d.Out {
		if out != nil {
			errs = append(errs, fmt.Errorf("output %d: %v != %v", i, out.A, out.B))
		}
	}
	if d.variadic {
		errs = append(errs, errors.New("variadic mismatch"))
	}

	return errors.Join(errs...)
}

// diffTypes lists the positions where two func types disagree. A position
// missing from one side is reported with a nil type.
func diffTypes(at, bt reflect.Type) *funcDifferences {
	return &funcDifferences{
		In:       diffList(at.NumIn(), bt.NumIn(), at.In, bt.In),
		Out:      diffList(at.NumOut(), bt.NumOut(), at.Out, bt.Out),
		variadic: at.IsVariadic() != bt.IsVariadic(),
	}
}

func diffList(na, nb int, a, b func(int) reflect.Type) []*argDifference {
	diff := make([]*argDifference, max(na, nb))
	for i := range diff {
		var at, bt reflect.Type
		if i < na {
			at = a(i)
		}
		if i < nb {
			bt = b(i)
		}
		if at != bt {
			diff[i] = &argDifference{A: at, B: bt}
		}
	}
	return diff
}

func checkSignatures(at, bt reflect.Type) error {
	diff := diffTypes(at, bt)
	if diff.empty() {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSignatureMismatch, diff.Error())
}
