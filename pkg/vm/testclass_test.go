package vm

import (
	"github.com/gavel-vm/gavel/pkg/classfile"
)

// classBuilder assembles ClassFile structures for tests: a constant
// pool with interned entries plus field and method declarations. Tests
// feed the result to a MapLoader, so programs exercise the same
// resolution path as classes parsed from disk.
type classBuilder struct {
	pool    []classfile.ConstantPoolEntry
	utf8s   map[string]uint16
	classes map[string]uint16
	this    uint16
	super   uint16
	fields  []classfile.FieldInfo
	methods []classfile.MethodInfo
}

func newClass(name, super string) *classBuilder {
	b := &classBuilder{
		pool:    []classfile.ConstantPoolEntry{nil}, // index 0 unused
		utf8s:   make(map[string]uint16),
		classes: make(map[string]uint16),
	}
	b.this = b.classRef(name)
	if super != "" {
		b.super = b.classRef(super)
	}
	return b
}

func (b *classBuilder) add(e classfile.ConstantPoolEntry) uint16 {
	b.pool = append(b.pool, e)
	return uint16(len(b.pool) - 1)
}

func (b *classBuilder) utf8(s string) uint16 {
	if i, ok := b.utf8s[s]; ok {
		return i
	}
	i := b.add(&classfile.ConstantUtf8{Value: s})
	b.utf8s[s] = i
	return i
}

func (b *classBuilder) classRef(name string) uint16 {
	if i, ok := b.classes[name]; ok {
		return i
	}
	i := b.add(&classfile.ConstantClass{NameIndex: b.utf8(name)})
	b.classes[name] = i
	return i
}

func (b *classBuilder) nameAndType(name, desc string) uint16 {
	return b.add(&classfile.ConstantNameAndType{NameIndex: b.utf8(name), DescriptorIndex: b.utf8(desc)})
}

func (b *classBuilder) fieldRef(class, name, desc string) uint16 {
	return b.add(&classfile.ConstantFieldref{ClassIndex: b.classRef(class), NameAndTypeIndex: b.nameAndType(name, desc)})
}

func (b *classBuilder) methodRef(class, name, desc string) uint16 {
	return b.add(&classfile.ConstantMethodref{ClassIndex: b.classRef(class), NameAndTypeIndex: b.nameAndType(name, desc)})
}

func (b *classBuilder) stringConst(s string) uint16 {
	return b.add(&classfile.ConstantString{StringIndex: b.utf8(s)})
}

func (b *classBuilder) intConst(v int32) uint16 {
	return b.add(&classfile.ConstantInteger{Value: v})
}

func (b *classBuilder) longConst(v int64) uint16 {
	i := b.add(&classfile.ConstantLong{Value: v})
	b.pool = append(b.pool, nil) // longs take two slots
	return i
}

func (b *classBuilder) field(name, desc string, flags uint16) *classBuilder {
	b.utf8(name)
	b.utf8(desc)
	b.fields = append(b.fields, classfile.FieldInfo{AccessFlags: flags, Name: name, Descriptor: desc})
	return b
}

func (b *classBuilder) method(name, desc string, flags uint16, maxStack, maxLocals uint16, code []byte, handlers ...classfile.ExceptionHandler) *classBuilder {
	b.utf8(name)
	b.utf8(desc)
	m := classfile.MethodInfo{AccessFlags: flags, Name: name, Descriptor: desc}
	if code != nil {
		m.Code = &classfile.CodeAttribute{
			MaxStack:          maxStack,
			MaxLocals:         maxLocals,
			Code:              code,
			ExceptionHandlers: handlers,
		}
	}
	return b.methodInfo(m)
}

func (b *classBuilder) nativeMethod(name, desc string, flags uint16) *classBuilder {
	b.utf8(name)
	b.utf8(desc)
	return b.methodInfo(classfile.MethodInfo{AccessFlags: flags | classfile.AccNative, Name: name, Descriptor: desc})
}

func (b *classBuilder) methodInfo(m classfile.MethodInfo) *classBuilder {
	b.methods = append(b.methods, m)
	return b
}

func (b *classBuilder) build() *classfile.ClassFile {
	return &classfile.ClassFile{
		MinorVersion: 0,
		MajorVersion: 52,
		ConstantPool: b.pool,
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
		ThisClass:    b.this,
		SuperClass:   b.super,
		Fields:       b.fields,
		Methods:      b.methods,
	}
}

// u16 splits a 16-bit operand into its big-endian bytes for inline
// bytecode assembly.
func u16(v uint16) (byte, byte) {
	return byte(v >> 8), byte(v)
}
