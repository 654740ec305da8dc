package traceback

import (
	"fmt"
	"reflect"
	"sync"
)

// ErrorType is the wire identity of an error's type: import path ("module"),
// type name, and a display string. The (module, name) pair is the resolution
// key; Repr is a human fallback shown when nothing better is available.
//
// A resolved ErrorType additionally carries a constructor for the matching
// locally-registered type; an unresolved one constructs placeholders.
type ErrorType struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Repr   string `json:"repr"`

	ctor func(msg string) error
}

// PlaceholderError stands in for a remote error whose type has no local
// registration. It keeps the remote identity so display and re-serialization
// reproduce the original, but it is never equal to any locally-defined type.
type PlaceholderError struct {
	Module string
	Name   string
	Repr   string
	Msg    string
}

func (e *PlaceholderError) Error() string {
	if e.Msg == "" {
		return e.Name + "()"
	}
	return e.Msg
}

type typeKey struct {
	module string
	name   string
}

var (
	typesMu sync.RWMutex
	types   = make(map[typeKey]func(msg string) error)
)

// RegisterType makes an error type resolvable by its (module, name) identity.
// The constructor is used to rebuild a local instance when a matching remote
// failure is unwrapped, so errors.Is / errors.As work across the boundary.
// Registering the same identity twice replaces the earlier constructor.
func RegisterType(module, name string, ctor func(msg string) error) {
	typesMu.Lock()
	defer typesMu.Unlock()
	types[typeKey{module, name}] = ctor
}

// TypeOf captures the type identity of a live error.
func TypeOf(err error) ErrorType {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	et := ErrorType{}
	if t != nil {
		et.Module = t.PkgPath()
		et.Name = t.Name()
	}
	if et.Name == "" {
		et.Name = fmt.Sprintf("%T", err)
	}
	et.Repr = fmt.Sprintf("<class '%s'>", et.qualified())
	if ph, ok := err.(*PlaceholderError); ok {
		// keep the original remote identity alive through re-serialization
		et.Module, et.Name, et.Repr = ph.Module, ph.Name, ph.Repr
	}
	return et.resolve()
}

// Resolve looks up a decoded type identity against the local registry.
// It never fails: an unknown identity comes back unresolved and constructs
// placeholder instances instead of real ones.
func Resolve(et ErrorType) ErrorType {
	return et.resolve()
}

func (et ErrorType) resolve() ErrorType {
	typesMu.RLock()
	et.ctor = types[typeKey{et.Module, et.Name}]
	typesMu.RUnlock()
	return et
}

// Resolved reports whether a locally-registered type matched this identity.
func (et ErrorType) Resolved() bool {
	return et.ctor != nil
}

// New constructs a local instance for this identity: the registered type when
// resolved, a PlaceholderError otherwise.
func (et ErrorType) New(msg string) error {
	if et.ctor != nil {
		return et.ctor(msg)
	}
	return &PlaceholderError{Module: et.Module, Name: et.Name, Repr: et.Repr, Msg: msg}
}

// qualified is the display name used in formatted traceback text:
// "module.Name", or bare "Name" for builtin-ish modules.
func (et ErrorType) qualified() string {
	if et.Module == "" || et.Module == "builtins" || et.Module == "__main__" {
		return et.Name
	}
	return et.Module + "." + et.Name
}

func (et ErrorType) String() string {
	return et.qualified()
}
