package vm

// NativeFunc is a host-side implementation of a native method. args
// includes the receiver for instance methods. Returning a *Raise makes
// the interpreter throw the wrapped handle through the caller's
// exception table; any other error aborts the run as a host failure.
type NativeFunc func(rt *Runtime, args []Value) (Value, error)

type nativeKey struct {
	class      string
	name       string
	descriptor string
}

type defaultKey struct {
	name       string
	descriptor string
}

// Bridge maps native method declarations to host functions. Exact
// bindings are keyed by declaring class, name and descriptor; default
// bindings match by name and descriptor alone, so a host service like
// print can serve any class that declares it. Overloads are distinct
// bindings because the descriptor is part of the key.
type Bridge struct {
	exact    map[nativeKey]NativeFunc
	defaults map[defaultKey]NativeFunc
}

func NewBridge() *Bridge {
	return &Bridge{
		exact:    make(map[nativeKey]NativeFunc),
		defaults: make(map[defaultKey]NativeFunc),
	}
}

// Register binds a native to one declaring class.
func (b *Bridge) Register(class, name, descriptor string, fn NativeFunc) {
	b.exact[nativeKey{class, name, descriptor}] = fn
}

// RegisterDefault binds a native for any declaring class.
func (b *Bridge) RegisterDefault(name, descriptor string, fn NativeFunc) {
	b.defaults[defaultKey{name, descriptor}] = fn
}

// Lookup resolves a native call site, exact binding first.
func (b *Bridge) Lookup(class, name, descriptor string) (NativeFunc, bool) {
	if fn, ok := b.exact[nativeKey{class, name, descriptor}]; ok {
		return fn, true
	}
	fn, ok := b.defaults[defaultKey{name, descriptor}]
	return fn, ok
}
