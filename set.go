package detour

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/pboyd/detour/internal/x86"
)

// Set installs and tracks many detours, keyed by original address. A Set
// is safe for concurrent use.
type Set struct {
	provider Provider
	opts     []Option
	log      *log.Logger

	mu      sync.RWMutex
	handles map[uintptr]Handle
	order   []uintptr
}

// NewSet returns an empty Set that creates handles with p.
func NewSet(p Provider, opts ...Option) *Set {
	return &Set{
		provider: p,
		opts:     opts,
		log:      newOptions(opts).logger,
		handles:  map[uintptr]Handle{},
	}
}

// Install redirects original to detour. A hook that cannot be installed is
// logged and skipped: the Set is left as it was and the error is returned.
// Installing over an original that is already in the Set fails.
func (s *Set) Install(original, detour any, opts ...Option) error {
	orig, err := resolve(original)
	if err != nil {
		s.log.Error("skipping hook", "err", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handles[orig.addr]; ok {
		err := fmt.Errorf("%#x is already detoured", orig.addr)
		s.log.Error("skipping hook", "err", err)
		return err
	}

	all := append(append([]Option{}, s.opts...), opts...)
	h, err := s.provider.Create(original, detour, all...)
	if err == nil {
		err = h.Apply()
		if err != nil {
			h.Free()
		}
	}
	if err != nil {
		if x86.IsFatal(err) {
			s.log.Warn("target cannot be detoured, skipping", "target", fmt.Sprintf("%#x", orig.addr), "err", err)
		} else {
			s.log.Error("skipping hook", "target", fmt.Sprintf("%#x", orig.addr), "err", err)
		}
		return err
	}

	s.handles[orig.addr] = h
	s.order = append(s.order, orig.addr)
	s.log.Info("detour installed", "target", fmt.Sprintf("%#x", orig.addr), "provider", s.provider.Name)
	return nil
}

// Handle returns the handle for original, if it has been installed.
func (s *Set) Handle(original any) (Handle, bool) {
	orig, err := resolve(original)
	if err != nil {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[orig.addr]
	return h, ok
}

// Remove undoes and frees the detour on original.
func (s *Set) Remove(original any) error {
	orig, err := resolve(original)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[orig.addr]
	if !ok {
		return fmt.Errorf("%#x is not detoured", orig.addr)
	}
	if err := h.Free(); err != nil {
		return err
	}
	delete(s.handles, orig.addr)
	s.order = deleteAddr(s.order, orig.addr)
	return nil
}

// Len returns the number of installed detours.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// UndoAll restores every target, newest first. The handles stay in the Set
// and can be applied again.
func (s *Set) UndoAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		addr := s.order[i]
		if err := s.handles[addr].Undo(); err != nil {
			errs = append(errs, fmt.Errorf("%#x: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// FreeAll undoes and frees every detour, newest first. Handles that fail to
// free stay in the Set.
func (s *Set) FreeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		addr := s.order[i]
		if err := s.handles[addr].Free(); err != nil {
			errs = append(errs, fmt.Errorf("%#x: %w", addr, err))
			continue
		}
		delete(s.handles, addr)
		s.order = deleteAddr(s.order, addr)
	}
	return errors.Join(errs...)
}

// Original returns a function with the behavior of fn before it was
// detoured in s. If fn is not detoured, fn itself is returned.
//
// If the trampoline cannot be built Original returns the zero value.
func Original[T any](s *Set, fn T) T {
	var zero T
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return zero
	}

	h, ok := s.Handle(fn)
	if !ok {
		return fn
	}

	orig, err := Trampoline[T](h)
	if err != nil {
		s.log.Error("no trampoline", "target", fmt.Sprintf("%#x", h.OriginalAddress()), "err", err)
		return zero
	}
	return orig
}

func deleteAddr(addrs []uintptr, addr uintptr) []uintptr {
	for i, a := range addrs {
		if a == addr {
			return append(addrs[:i], addrs[i+1:]...)
		}
	}
	return addrs
}
