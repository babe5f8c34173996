package vm

import "fmt"

// Load/link-time failures. These abort the run; they are never visible
// to bytecode exception handlers.

// ClassNotFoundError reports an unresolved symbolic class reference.
type ClassNotFoundError struct {
	Name string
	Err  error
}

func (e *ClassNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("class not found: %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("class not found: %s", e.Name)
}

func (e *ClassNotFoundError) Unwrap() error { return e.Err }

// NoSuchFieldError reports an unresolved symbolic field reference.
type NoSuchFieldError struct {
	Class      string
	Name       string
	Descriptor string
}

func (e *NoSuchFieldError) Error() string {
	return fmt.Sprintf("no such field: %s.%s:%s", e.Class, e.Name, e.Descriptor)
}

// NoSuchMethodError reports an unresolved symbolic method reference.
type NoSuchMethodError struct {
	Class      string
	Name       string
	Descriptor string
}

func (e *NoSuchMethodError) Error() string {
	return fmt.Sprintf("no such method: %s.%s%s", e.Class, e.Name, e.Descriptor)
}

// LinkageError reports an incompatible override or a malformed
// hierarchy discovered at link time.
type LinkageError struct {
	Class  string
	Detail string
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("linkage error in %s: %s", e.Class, e.Detail)
}

// UncaughtException reports a bytecode throwable that escaped the
// outermost frame. The run terminates with a non-zero status.
type UncaughtException struct {
	Class   string
	Message string
}

func (e *UncaughtException) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("uncaught exception: %s: %s", e.Class, e.Message)
	}
	return fmt.Sprintf("uncaught exception: %s", e.Class)
}

// Raise wraps a throwable handle so a native-bridge function can
// explicitly surface a bytecode exception subject to the caller's
// exception table. Any other error returned by a native is a host
// failure and aborts the run.
type Raise struct {
	Exception Handle
}

func (e *Raise) Error() string {
	return fmt.Sprintf("raised exception (handle %d)", e.Exception)
}
