package vm

import (
	"sync"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// MethodSlot is the identity used for override matching: a subclass
// method overrides a superclass method iff name and descriptor match
// exactly.
type MethodSlot struct {
	Name       string
	Descriptor string
}

func (s MethodSlot) String() string {
	return s.Name + s.Descriptor
}

// Field is one declared field. Its identity as a slot is (declaring
// class, name, descriptor): same-named fields in different hierarchy
// classes are distinct storage (shadowing, not overriding). For
// instance fields Slot is the index into the flattened ancestor-first
// instance layout; for static fields it indexes the declaring class's
// static table.
type Field struct {
	Class      *Class
	Name       string
	Descriptor string
	Kind       classfile.TypeKind
	Static     bool
	Slot       int
}

// Method is one linked method. Code is nil for natives and for
// registry-synthesized built-in methods carried by a host function.
type Method struct {
	Class       *Class
	Name        string
	Descriptor  *classfile.MethodDescriptor
	AccessFlags uint16
	Code        *classfile.CodeAttribute

	// hostFn implements registry built-ins (root constructor,
	// throwable plumbing) without bytecode or bridge registration.
	hostFn func(rt *Runtime, args []Value) (Value, error)
}

// Slot returns the method's identity slot.
func (m *Method) Slot() MethodSlot {
	return MethodSlot{Name: m.Name, Descriptor: m.Descriptor.Raw}
}

// IsStatic reports whether the method is declared static.
func (m *Method) IsStatic() bool {
	return m.AccessFlags&classfile.AccStatic != 0
}

// IsNative reports whether the method is bridged to the host.
func (m *Method) IsNative() bool {
	return m.AccessFlags&classfile.AccNative != 0
}

type initState int

const (
	initNew initState = iota
	initInProgress
	initDone
	initFailed
)

// Class is a linked class descriptor. Immutable once linked, except
// for the static table contents and the one-time initialization state.
// Owned exclusively by the Registry.
type Class struct {
	Name  string
	Super *Class
	File  *classfile.ClassFile // nil for registry built-ins

	// Declared instance fields in declaration order, and the full
	// flattened layout: every ancestor's declared fields root-first,
	// declaration order preserved within each class.
	fields []*Field
	layout []*Field

	// Declared methods and the link-time dispatch table. dispatch maps
	// every MethodSlot reachable from this class to the implementation
	// chosen by an ancestor walk starting at this class.
	methods  map[MethodSlot]*Method
	dispatch map[MethodSlot]*Method

	// Static table: declared static fields and their values. Allocated
	// at link time, populated by <clinit> on first active use.
	staticFields []*Field
	statics      []Value

	initMu    sync.Mutex
	initCond  *sync.Cond
	initState initState
	initBy    *initToken
}

// initToken identifies one logical execution so that a reentrant
// initialization trigger (a cycle through initializers) is recognized
// and proceeds instead of deadlocking.
type initToken struct{}

// InstanceSize returns the number of field slots in the flattened
// instance layout.
func (c *Class) InstanceSize() int {
	return len(c.layout)
}

// Layout returns the flattened ancestor-first field layout.
func (c *Class) Layout() []*Field {
	return c.layout
}

// DeclaredFields returns the instance fields declared by this class
// alone, in declaration order.
func (c *Class) DeclaredFields() []*Field {
	return c.fields
}

// IsSubclassOf reports whether c is other or a descendant of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for k := c; k != nil; k = k.Super {
		if k == other {
			return true
		}
	}
	return false
}

// DeclaredMethod returns the method declared by this class itself, or
// nil.
func (c *Class) DeclaredMethod(slot MethodSlot) *Method {
	return c.methods[slot]
}

// LookupMethod resolves a method starting at c and walking ancestors.
// Used by static and special invocation, where resolution starts at
// the class named in the instruction.
func (c *Class) LookupMethod(slot MethodSlot) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.methods[slot]; m != nil {
			return m
		}
	}
	return nil
}

// LookupVirtual resolves a method against the link-time dispatch
// table, i.e. starting at the receiver's runtime class. This is the
// override mechanism.
func (c *Class) LookupVirtual(slot MethodSlot) *Method {
	return c.dispatch[slot]
}

// ResolveField resolves an instance field reference starting at c and
// walking ancestors; the first declaring class wins, so a shadowed
// superclass field stays reachable through its own declaring class.
func (c *Class) ResolveField(name, descriptor string) *Field {
	for k := c; k != nil; k = k.Super {
		for _, f := range k.fields {
			if f.Name == name && f.Descriptor == descriptor {
				return f
			}
		}
	}
	return nil
}

// ResolveStaticField resolves a static field reference starting at c
// and walking ancestors. The returned field belongs to its declaring
// class's static table.
func (c *Class) ResolveStaticField(name, descriptor string) *Field {
	for k := c; k != nil; k = k.Super {
		for _, f := range k.staticFields {
			if f.Name == name && f.Descriptor == descriptor {
				return f
			}
		}
	}
	return nil
}

// StaticValue returns the current value of a static field slot on its
// declaring class.
func (c *Class) StaticValue(f *Field) Value {
	return f.Class.statics[f.Slot]
}

// SetStaticValue stores into a static field slot on its declaring
// class, converting per the field's declared kind.
func (c *Class) SetStaticValue(f *Field, v Value) {
	f.Class.statics[f.Slot] = convertForField(f.Kind, v)
}

// StaticRoots exposes the static table for garbage-collection root
// scanning.
func (c *Class) StaticRoots() []Value {
	return c.statics
}

// Initialized reports whether <clinit> has completed.
func (c *Class) Initialized() bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.initState == initDone
}

// zeroValue returns the zero/false/null value for a field kind.
func zeroValue(kind classfile.TypeKind) Value {
	switch kind {
	case classfile.KindInt:
		return IntValue(0)
	case classfile.KindLong:
		return LongValue(0)
	case classfile.KindBoolean:
		return BoolValue(false)
	default:
		return NullValue()
	}
}

// convertForField narrows a stack value into field storage. Booleans
// travel as ints on the operand stack and are stored as booleans; this
// is the only conversion field stores perform.
func convertForField(kind classfile.TypeKind, v Value) Value {
	if kind == classfile.KindBoolean && v.Kind == KindInt {
		return BoolValue(v.Int != 0)
	}
	return v
}

// convertForStack widens field storage back onto the operand stack.
func convertForStack(v Value) Value {
	if v.Kind == KindBool {
		if v.Bool {
			return IntValue(1)
		}
		return IntValue(0)
	}
	return v
}
