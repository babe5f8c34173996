package vm

import (
	"fmt"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// thrown carries an in-flight throwable during unwinding. It crosses
// Invoke boundaries as a Go error so nested activations (class
// initializers, host callbacks) can keep unwinding in their callers.
type thrown struct {
	class *Class
	ref   Handle
}

func (t *thrown) Error() string {
	return fmt.Sprintf("unhandled throwable %s", t.class.Name)
}

// Interp executes bytecode on an explicit frame stack. Each Interp is
// single-threaded; nested activations for class initializers get their
// own Interp but share the initiation token so reentrant
// initialization is tolerated.
type Interp struct {
	rt    *Runtime
	token *initToken
	// frames is the activation stack, innermost last. Its locals and
	// operand stacks are garbage-collection roots.
	frames []*Frame
}

func newInterp(rt *Runtime, token *initToken) *Interp {
	return &Interp{rt: rt, token: token}
}

// Invoke runs a method to completion with the given arguments, which
// must already include the receiver for instance methods. The returned
// error is either a host-level failure or a *thrown that escaped every
// handler in this activation.
func (in *Interp) Invoke(m *Method, args []Value) (Value, error) {
	if m.hostFn != nil {
		return m.hostFn(in.rt, args)
	}
	if m.IsNative() {
		return in.callNative(m, args)
	}

	base := len(in.frames)
	if err := in.pushFrame(m, args); err != nil {
		return Value{}, err
	}

	var result Value
	for len(in.frames) > base {
		f := in.frames[len(in.frames)-1]

		if f.PC >= len(f.Code) {
			// Fell off the end: implicit void return.
			in.frames = in.frames[:len(in.frames)-1]
			continue
		}

		f.opPC = f.PC
		op := f.Code[f.PC]
		f.PC++

		ret, returned, err := in.exec(f, op)
		if err != nil {
			t, ok := err.(*thrown)
			if !ok {
				in.frames = in.frames[:base]
				return Value{}, err
			}
			if !in.unwind(base, t) {
				return Value{}, t
			}
			continue
		}
		if returned {
			in.frames = in.frames[:len(in.frames)-1]
			if len(in.frames) > base {
				if f.Method.Descriptor.HasReturn() {
					in.frames[len(in.frames)-1].Push(ret)
				}
			} else {
				result = ret
			}
		}

		if in.rt.Heap.ShouldCollect() {
			in.rt.collect()
		}
	}
	return result, nil
}

// pushFrame creates the activation for m and seats its arguments in
// the local table, longs taking two slots. Exceeding the configured
// frame depth raises a catchable stack overflow condition rather than
// crashing the host.
func (in *Interp) pushFrame(m *Method, args []Value) error {
	if len(in.frames) >= in.rt.MaxFrameDepth {
		return in.throwNamed(StackOverflowErrorName, fmt.Sprintf("frame depth limit %d exceeded", in.rt.MaxFrameDepth))
	}
	if m.Code == nil {
		return fmt.Errorf("method %s.%s%s has no code", m.Class.Name, m.Name, m.Descriptor.Raw)
	}
	f := NewFrame(m)
	slot := 0
	for _, a := range args {
		f.SetLocal(slot, a)
		if a.Kind == KindLong {
			slot += 2
		} else {
			slot++
		}
	}
	in.frames = append(in.frames, f)
	return nil
}

// unwind searches the exception tables of the active frames, innermost
// first, popping each frame whose method has no matching handler. On a
// match the operand stack is cleared, the throwable pushed and control
// transferred. Returns false when the throwable escapes this
// activation's base.
func (in *Interp) unwind(base int, t *thrown) bool {
	for len(in.frames) > base {
		f := in.frames[len(in.frames)-1]
		if pc, ok := in.findHandler(f, t); ok {
			f.ClearStack()
			f.Push(ObjectValue(t.ref))
			f.PC = pc
			return true
		}
		in.frames = in.frames[:len(in.frames)-1]
	}
	return false
}

func (in *Interp) findHandler(f *Frame, t *thrown) (int, bool) {
	code := f.Method.Code
	for _, h := range code.ExceptionHandlers {
		if f.opPC < int(h.StartPC) || f.opPC >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true
		}
		name, err := classfile.GetClassName(f.Class.File.ConstantPool, h.CatchType)
		if err != nil {
			continue
		}
		catch, err := in.rt.Registry.Resolve(name)
		if err != nil {
			continue
		}
		if t.class.IsSubclassOf(catch) {
			return int(h.HandlerPC), true
		}
	}
	return 0, false
}

// throwNamed allocates an instance of a built-in throwable, fills its
// message and returns it as an in-flight *thrown.
func (in *Interp) throwNamed(name, message string) error {
	c, ok := in.rt.Registry.Lookup(name)
	if !ok {
		return fmt.Errorf("built-in throwable %s is not registered", name)
	}
	ref := in.rt.Heap.Allocate(c)
	obj, err := in.rt.Heap.Object(ref)
	if err != nil {
		return err
	}
	if f := c.ResolveField("message", "Ljava/lang/String;"); f != nil {
		obj.Fields[f.Slot] = StringValue(message)
	}
	return &thrown{class: c, ref: ref}
}

// throwRef wraps an already-allocated throwable (athrow, native Raise).
func (in *Interp) throwRef(ref Handle) error {
	obj, err := in.rt.Heap.Object(ref)
	if err != nil {
		return err
	}
	return &thrown{class: obj.Class, ref: ref}
}

// callNative dispatches a native method through the bridge, exact
// binding first, then the default table. A native may reject the call
// or raise a throwable of its own.
func (in *Interp) callNative(m *Method, args []Value) (Value, error) {
	fn, ok := in.rt.Bridge.Lookup(m.Class.Name, m.Name, m.Descriptor.Raw)
	if !ok {
		return Value{}, fmt.Errorf("no native binding for %s.%s%s", m.Class.Name, m.Name, m.Descriptor.Raw)
	}
	v, err := fn(in.rt, args)
	if err != nil {
		if r, ok := err.(*Raise); ok {
			return Value{}, in.throwRef(r.Exception)
		}
		return Value{}, fmt.Errorf("native %s.%s%s: %w", m.Class.Name, m.Name, m.Descriptor.Raw, err)
	}
	return v, nil
}

// invoke resolves a call target, pops its arguments and transfers
// control. Bytecode targets become a new frame on this stack; native
// and host targets run to completion and push their result directly.
func (in *Interp) invoke(f *Frame, m *Method, withReceiver bool) error {
	n := len(m.Descriptor.Params)
	total := n
	if withReceiver {
		total++
	}
	args := make([]Value, total)
	for i := n - 1; i >= 0; i-- {
		idx := i
		if withReceiver {
			idx++
		}
		args[idx] = f.Pop()
	}
	if withReceiver {
		recv := f.Pop()
		if recv.IsNull() {
			return in.throwNamed(NullPointerExceptionName, fmt.Sprintf("invoking %s.%s on null", m.Class.Name, m.Name))
		}
		args[0] = recv
	}

	if m.hostFn != nil || m.IsNative() {
		v, err := in.Invoke(m, args)
		if err != nil {
			return err
		}
		if m.Descriptor.HasReturn() {
			f.Push(v)
		}
		return nil
	}
	return in.pushFrame(m, args)
}

// ensureInitialized runs a class's static initializer exactly once,
// before its first active use. Reentry from the initializing token
// proceeds (partial statics are observable, matching the usual
// class-initialization contract); other tokens block until the
// initializer settles.
func (in *Interp) ensureInitialized(c *Class) error {
	if c == nil {
		return nil
	}
	c.initMu.Lock()
	for {
		switch c.initState {
		case initDone:
			c.initMu.Unlock()
			return nil
		case initFailed:
			c.initMu.Unlock()
			return &LinkageError{Class: c.Name, Detail: "class initialization previously failed"}
		case initInProgress:
			if c.initBy == in.token {
				c.initMu.Unlock()
				return nil
			}
			c.initCond.Wait()
		case initNew:
			c.initState = initInProgress
			c.initBy = in.token
			c.initMu.Unlock()

			// Superclass first, then this class's <clinit> on a fresh
			// activation sharing our token.
			err := in.ensureInitialized(c.Super)
			if err == nil {
				if clinit := c.DeclaredMethod(MethodSlot{Name: "<clinit>", Descriptor: "()V"}); clinit != nil {
					sub := newInterp(in.rt, in.token)
					in.rt.track(sub)
					_, err = sub.Invoke(clinit, nil)
					in.rt.untrack(sub)
				}
			}

			c.initMu.Lock()
			if err != nil {
				c.initState = initFailed
			} else {
				c.initState = initDone
			}
			c.initBy = nil
			c.initCond.Broadcast()
			c.initMu.Unlock()
			if err != nil {
				log.Errorf("class initializer for %s failed: %s", c.Name, err)
			}
			return err
		}
	}
}

// roots appends every value slice this interpreter can reach.
func (in *Interp) roots(dst [][]Value) [][]Value {
	for _, f := range in.frames {
		dst = append(dst, f.Locals, f.Stack[:f.SP])
	}
	return dst
}
