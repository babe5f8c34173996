package vm

import (
	"sync"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// Throwable class names raised by the interpreter itself.
const (
	ThrowableClassName             = "java/lang/Throwable"
	NullPointerExceptionName       = "java/lang/NullPointerException"
	ArithmeticExceptionName        = "java/lang/ArithmeticException"
	ClassCastExceptionName         = "java/lang/ClassCastException"
	ArrayIndexOutOfBoundsName      = "java/lang/ArrayIndexOutOfBoundsException"
	NegativeArraySizeExceptionName = "java/lang/NegativeArraySizeException"
	StackOverflowErrorName         = "java/lang/StackOverflowError"
)

// SystemClassName holds the native entry points every program can
// reach without a class file on the class path.
const SystemClassName = "java/lang/System"

// StringClassName exists so checkcast and instanceof can name it;
// string values themselves live outside the heap.
const StringClassName = "java/lang/String"

// installBuiltins synthesizes the root class and the throwable
// hierarchy in memory. User class files may still reference them as
// superclasses and catch types; they link like any loaded class.
func (r *Registry) installBuiltins() {
	object := r.defineBuiltin(RootClassName, nil, nil)
	object.defineHostMethod("<init>", "()V", func(rt *Runtime, args []Value) (Value, error) {
		return Value{}, nil
	})

	throwable := r.defineBuiltin(ThrowableClassName, object, []builtinField{
		{Name: "message", Descriptor: "Ljava/lang/String;"},
	})
	msg := throwable.fields[0]
	throwable.defineHostMethod("<init>", "()V", func(rt *Runtime, args []Value) (Value, error) {
		return Value{}, nil
	})
	throwable.defineHostMethod("<init>", "(Ljava/lang/String;)V", func(rt *Runtime, args []Value) (Value, error) {
		obj, err := rt.Heap.Object(args[0].Ref)
		if err != nil {
			return Value{}, err
		}
		obj.Fields[msg.Slot] = args[1]
		return Value{}, nil
	})
	throwable.defineHostMethod("getMessage", "()Ljava/lang/String;", func(rt *Runtime, args []Value) (Value, error) {
		obj, err := rt.Heap.Object(args[0].Ref)
		if err != nil {
			return Value{}, err
		}
		return obj.Fields[msg.Slot], nil
	})

	exception := r.defineBuiltin("java/lang/Exception", throwable, nil)
	runtimeEx := r.defineBuiltin("java/lang/RuntimeException", exception, nil)
	errClass := r.defineBuiltin("java/lang/Error", throwable, nil)

	r.defineBuiltin(NullPointerExceptionName, runtimeEx, nil)
	r.defineBuiltin(ArithmeticExceptionName, runtimeEx, nil)
	r.defineBuiltin(ClassCastExceptionName, runtimeEx, nil)
	r.defineBuiltin(ArrayIndexOutOfBoundsName, runtimeEx, nil)
	r.defineBuiltin(NegativeArraySizeExceptionName, runtimeEx, nil)
	r.defineBuiltin(StackOverflowErrorName, errClass, nil)

	r.defineBuiltin(StringClassName, object, nil)

	system := r.defineBuiltin(SystemClassName, object, nil)
	system.defineNativeMethod("currentTimeMillis", "()J", classfile.AccStatic|classfile.AccNative)
}

type builtinField struct {
	Name       string
	Descriptor string
}

func (r *Registry) defineBuiltin(name string, super *Class, fields []builtinField) *Class {
	c := &Class{
		Name:      name,
		Super:     super,
		methods:   make(map[MethodSlot]*Method),
		dispatch:  make(map[MethodSlot]*Method),
		initState: initDone,
	}
	c.initCond = sync.NewCond(&c.initMu)
	base := 0
	if super != nil {
		c.layout = append(c.layout, super.layout...)
		base = len(super.layout)
		for slot, m := range super.dispatch {
			c.dispatch[slot] = m
		}
	}
	for i, bf := range fields {
		kind, err := classfile.ParseFieldKind(bf.Descriptor)
		if err != nil {
			panic(err)
		}
		f := &Field{
			Class:      c,
			Name:       bf.Name,
			Descriptor: bf.Descriptor,
			Kind:       kind,
			Slot:       base + i,
		}
		c.fields = append(c.fields, f)
		c.layout = append(c.layout, f)
	}
	r.classes[name] = c
	return c
}

// defineHostMethod installs a method backed by a Go function instead of
// bytecode. Host methods participate in dispatch like any other.
func (c *Class) defineHostMethod(name, descriptor string, fn func(rt *Runtime, args []Value) (Value, error)) {
	desc, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		panic(err)
	}
	m := &Method{
		Class:      c,
		Name:       name,
		Descriptor: desc,
		hostFn:     fn,
	}
	c.methods[m.Slot()] = m
	if name != "<init>" && name != "<clinit>" {
		c.dispatch[m.Slot()] = m
	}
}

// defineNativeMethod installs a method that resolves through the native
// bridge at call time, like a native method declared in a class file.
func (c *Class) defineNativeMethod(name, descriptor string, flags uint16) {
	desc, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		panic(err)
	}
	m := &Method{
		Class:       c,
		Name:        name,
		Descriptor:  desc,
		AccessFlags: flags,
	}
	c.methods[m.Slot()] = m
	if !m.IsStatic() && name != "<init>" && name != "<clinit>" {
		c.dispatch[m.Slot()] = m
	}
}
