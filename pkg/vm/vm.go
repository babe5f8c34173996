package vm

import (
	"fmt"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// Field access and invocation instructions. These resolve symbolic
// constant-pool references through the registry, trigger class
// initialization on first active use and dispatch per the invocation
// policy of the opcode.

func (in *Interp) execLdc(f *Frame, index uint16) error {
	pool := f.Class.File.ConstantPool
	entry, err := classfile.GetEntry(pool, index)
	if err != nil {
		return fmt.Errorf("ldc: %w", err)
	}
	switch c := entry.(type) {
	case *classfile.ConstantInteger:
		f.Push(IntValue(c.Value))
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return fmt.Errorf("ldc: resolving string: %w", err)
		}
		f.Push(StringValue(s))
	default:
		return fmt.Errorf("ldc: unsupported constant tag %d at index %d", entry.Tag(), index)
	}
	return nil
}

func (in *Interp) execGetstatic(f *Frame) error {
	ref, err := classfile.ResolveFieldref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("getstatic: %w", err)
	}
	fld, err := in.resolveStatic(ref)
	if err != nil {
		return err
	}
	if err := in.ensureInitialized(fld.Class); err != nil {
		return err
	}
	f.Push(convertForStack(fld.Class.StaticValue(fld)))
	return nil
}

func (in *Interp) execPutstatic(f *Frame) error {
	ref, err := classfile.ResolveFieldref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("putstatic: %w", err)
	}
	fld, err := in.resolveStatic(ref)
	if err != nil {
		return err
	}
	if err := in.ensureInitialized(fld.Class); err != nil {
		return err
	}
	fld.Class.SetStaticValue(fld, f.Pop())
	return nil
}

func (in *Interp) resolveStatic(ref *classfile.RefInfo) (*Field, error) {
	c, err := in.rt.Registry.Resolve(ref.ClassName)
	if err != nil {
		return nil, err
	}
	fld := c.ResolveStaticField(ref.Name, ref.Descriptor)
	if fld == nil {
		return nil, &NoSuchFieldError{Class: ref.ClassName, Name: ref.Name, Descriptor: ref.Descriptor}
	}
	return fld, nil
}

func (in *Interp) execGetfield(f *Frame) error {
	ref, err := classfile.ResolveFieldref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("getfield: %w", err)
	}
	obj, err := in.popObject(f, "reading field "+ref.Name)
	if err != nil {
		return err
	}
	fld, err := in.resolveInstanceField(ref)
	if err != nil {
		return err
	}
	f.Push(convertForStack(obj.Fields[fld.Slot]))
	return nil
}

func (in *Interp) execPutfield(f *Frame) error {
	ref, err := classfile.ResolveFieldref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("putfield: %w", err)
	}
	value := f.Pop()
	obj, err := in.popObject(f, "writing field "+ref.Name)
	if err != nil {
		return err
	}
	fld, err := in.resolveInstanceField(ref)
	if err != nil {
		return err
	}
	obj.Fields[fld.Slot] = convertForField(fld.Kind, value)
	return nil
}

// resolveInstanceField looks the field up starting at the class the
// instruction names, so a shadowing declaration in a subclass never hides
// the superclass slot a superclass method refers to.
func (in *Interp) resolveInstanceField(ref *classfile.RefInfo) (*Field, error) {
	cls, err := in.rt.Registry.Resolve(ref.ClassName)
	if err != nil {
		return nil, err
	}
	fld := cls.ResolveField(ref.Name, ref.Descriptor)
	if fld == nil {
		return nil, &NoSuchFieldError{Class: ref.ClassName, Name: ref.Name, Descriptor: ref.Descriptor}
	}
	return fld, nil
}

func (in *Interp) execInvokestatic(f *Frame) error {
	ref, err := classfile.ResolveMethodref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("invokestatic: %w", err)
	}
	c, err := in.rt.Registry.Resolve(ref.ClassName)
	if err != nil {
		return err
	}
	m := c.LookupMethod(MethodSlot{Name: ref.Name, Descriptor: ref.Descriptor})
	if m == nil || !m.IsStatic() {
		return &NoSuchMethodError{Class: ref.ClassName, Name: ref.Name, Descriptor: ref.Descriptor}
	}
	if err := in.ensureInitialized(m.Class); err != nil {
		return err
	}
	return in.invoke(f, m, false)
}

// invokespecial binds the exact method named by the reference: used
// for constructors and super-calls, which must not re-dispatch on the
// receiver's runtime class.
func (in *Interp) execInvokespecial(f *Frame) error {
	ref, err := classfile.ResolveMethodref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("invokespecial: %w", err)
	}
	c, err := in.rt.Registry.Resolve(ref.ClassName)
	if err != nil {
		return err
	}
	m := c.LookupMethod(MethodSlot{Name: ref.Name, Descriptor: ref.Descriptor})
	if m == nil || m.IsStatic() {
		return &NoSuchMethodError{Class: ref.ClassName, Name: ref.Name, Descriptor: ref.Descriptor}
	}
	return in.invoke(f, m, true)
}

func (in *Interp) execInvokevirtual(f *Frame) error {
	return in.invokeOnReceiver(f, "invokevirtual", 0)
}

// invokeinterface carries a historical count operand and a zero pad
// byte; dispatch itself is the same receiver-class lookup as
// invokevirtual.
func (in *Interp) execInvokeinterface(f *Frame) error {
	return in.invokeOnReceiver(f, "invokeinterface", 2)
}

func (in *Interp) invokeOnReceiver(f *Frame, op string, pad int) error {
	ref, err := classfile.ResolveMethodref(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for i := 0; i < pad; i++ {
		f.ReadU8()
	}
	desc, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Peek at the receiver under the arguments to pick the dispatch
	// class; invoke pops everything afterwards.
	recv := f.Stack[f.SP-1-len(desc.Params)]
	if recv.IsNull() {
		for i := 0; i <= len(desc.Params); i++ {
			f.Pop()
		}
		return in.throwNamed(NullPointerExceptionName, fmt.Sprintf("invoking %s.%s on null", ref.ClassName, ref.Name))
	}
	if recv.Kind != KindObject {
		return fmt.Errorf("%s: receiver for %s is %s, not an object", op, ref, recv.Kind)
	}
	obj, err := in.rt.Heap.Object(recv.Ref)
	if err != nil {
		return err
	}
	m := obj.Class.LookupVirtual(MethodSlot{Name: ref.Name, Descriptor: ref.Descriptor})
	if m == nil {
		return &NoSuchMethodError{Class: obj.Class.Name, Name: ref.Name, Descriptor: ref.Descriptor}
	}
	return in.invoke(f, m, true)
}

func (in *Interp) execNew(f *Frame) error {
	name, err := classfile.GetClassName(f.Class.File.ConstantPool, f.ReadU16())
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}
	c, err := in.rt.Registry.Resolve(name)
	if err != nil {
		return err
	}
	if err := in.ensureInitialized(c); err != nil {
		return err
	}
	f.Push(ObjectValue(in.rt.Heap.Allocate(c)))
	return nil
}

func (in *Interp) popObject(f *Frame, what string) (*Object, error) {
	v := f.Pop()
	if v.IsNull() {
		return nil, in.throwNamed(NullPointerExceptionName, what+" on null")
	}
	if v.Kind != KindObject {
		return nil, fmt.Errorf("%s: operand is %s, not an object", what, v.Kind)
	}
	return in.rt.Heap.Object(v.Ref)
}

func (in *Interp) popArray(f *Frame) (*Array, error) {
	v := f.Pop()
	if v.IsNull() {
		return nil, in.throwNamed(NullPointerExceptionName, "array access on null")
	}
	if v.Kind != KindArray {
		return nil, fmt.Errorf("operand is %s, not an array", v.Kind)
	}
	return in.rt.Heap.Array(v.Ref)
}

// isInstance implements the checkcast/instanceof subtype test for the
// value kinds that carry a class identity.
func (in *Interp) isInstance(v Value, className string) (bool, error) {
	switch v.Kind {
	case KindString:
		return className == StringClassName || className == RootClassName, nil
	case KindArray:
		return className == RootClassName, nil
	case KindObject:
		obj, err := in.rt.Heap.Object(v.Ref)
		if err != nil {
			return false, err
		}
		target, err := in.rt.Registry.Resolve(className)
		if err != nil {
			return false, err
		}
		return obj.Class.IsSubclassOf(target), nil
	default:
		return false, nil
	}
}
