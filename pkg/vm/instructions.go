package vm

import (
	"fmt"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// Opcodes
const (
	OpNop             = 0x00
	OpAconstNull      = 0x01
	OpIconstM1        = 0x02
	OpIconst0         = 0x03
	OpIconst1         = 0x04
	OpIconst2         = 0x05
	OpIconst3         = 0x06
	OpIconst4         = 0x07
	OpIconst5         = 0x08
	OpLconst0         = 0x09
	OpLconst1         = 0x0A
	OpBipush          = 0x10
	OpSipush          = 0x11
	OpLdc             = 0x12
	OpLdcW            = 0x13
	OpLdc2W           = 0x14
	OpIload           = 0x15
	OpLload           = 0x16
	OpAload           = 0x19
	OpIload0          = 0x1A
	OpIload1          = 0x1B
	OpIload2          = 0x1C
	OpIload3          = 0x1D
	OpLload0          = 0x1E
	OpLload1          = 0x1F
	OpLload2          = 0x20
	OpLload3          = 0x21
	OpAload0          = 0x2A
	OpAload1          = 0x2B
	OpAload2          = 0x2C
	OpAload3          = 0x2D
	OpIaload          = 0x2E
	OpLaload          = 0x2F
	OpAaload          = 0x32
	OpBaload          = 0x33
	OpCaload          = 0x34
	OpSaload          = 0x35
	OpIstore          = 0x36
	OpLstore          = 0x37
	OpAstore          = 0x3A
	OpIstore0         = 0x3B
	OpIstore1         = 0x3C
	OpIstore2         = 0x3D
	OpIstore3         = 0x3E
	OpLstore0         = 0x3F
	OpLstore1         = 0x40
	OpLstore2         = 0x41
	OpLstore3         = 0x42
	OpAstore0         = 0x4B
	OpAstore1         = 0x4C
	OpAstore2         = 0x4D
	OpAstore3         = 0x4E
	OpIastore         = 0x4F
	OpLastore         = 0x50
	OpAastore         = 0x53
	OpBastore         = 0x54
	OpCastore         = 0x55
	OpSastore         = 0x56
	OpPop             = 0x57
	OpPop2            = 0x58
	OpDup             = 0x59
	OpDupX1           = 0x5A
	OpDupX2           = 0x5B
	OpDup2            = 0x5C
	OpSwap            = 0x5F
	OpIadd            = 0x60
	OpLadd            = 0x61
	OpIsub            = 0x64
	OpLsub            = 0x65
	OpImul            = 0x68
	OpLmul            = 0x69
	OpIdiv            = 0x6C
	OpLdiv            = 0x6D
	OpIrem            = 0x70
	OpLrem            = 0x71
	OpIneg            = 0x74
	OpLneg            = 0x75
	OpIshl            = 0x78
	OpLshl            = 0x79
	OpIshr            = 0x7A
	OpLshr            = 0x7B
	OpIushr           = 0x7C
	OpLushr           = 0x7D
	OpIand            = 0x7E
	OpLand            = 0x7F
	OpIor             = 0x80
	OpLor             = 0x81
	OpIxor            = 0x82
	OpLxor            = 0x83
	OpIinc            = 0x84
	OpI2l             = 0x85
	OpL2i             = 0x88
	OpI2b             = 0x91
	OpI2c             = 0x92
	OpI2s             = 0x93
	OpLcmp            = 0x94
	OpIfeq            = 0x99
	OpIfne            = 0x9A
	OpIflt            = 0x9B
	OpIfge            = 0x9C
	OpIfgt            = 0x9D
	OpIfle            = 0x9E
	OpIfIcmpeq        = 0x9F
	OpIfIcmpne        = 0xA0
	OpIfIcmplt        = 0xA1
	OpIfIcmpge        = 0xA2
	OpIfIcmpgt        = 0xA3
	OpIfIcmple        = 0xA4
	OpIfAcmpeq        = 0xA5
	OpIfAcmpne        = 0xA6
	OpGoto            = 0xA7
	OpTableswitch     = 0xAA
	OpLookupswitch    = 0xAB
	OpIreturn         = 0xAC
	OpLreturn         = 0xAD
	OpAreturn         = 0xB0
	OpReturn          = 0xB1
	OpGetstatic       = 0xB2
	OpPutstatic       = 0xB3
	OpGetfield        = 0xB4
	OpPutfield        = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpNew             = 0xBB
	OpNewarray        = 0xBC
	OpAnewarray       = 0xBD
	OpArraylength     = 0xBE
	OpAthrow          = 0xBF
	OpCheckcast       = 0xC0
	OpInstanceof      = 0xC1
	OpIfnull          = 0xC6
	OpIfnonnull       = 0xC7
	OpGotoW           = 0xC8
)

// exec executes a single instruction on the given frame.
// Returns (returnValue, returned, error); a *thrown error starts
// unwinding in the caller.
func (in *Interp) exec(f *Frame, opcode byte) (Value, bool, error) {
	switch opcode {
	case OpNop:

	// --- Constants ---
	case OpAconstNull:
		f.Push(NullValue())
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
		f.Push(IntValue(int32(opcode) - int32(OpIconst0)))
	case OpLconst0:
		f.Push(LongValue(0))
	case OpLconst1:
		f.Push(LongValue(1))
	case OpBipush:
		f.Push(IntValue(int32(f.ReadI8())))
	case OpSipush:
		f.Push(IntValue(int32(f.ReadI16())))

	case OpLdc:
		return Value{}, false, in.execLdc(f, uint16(f.ReadU8()))
	case OpLdcW:
		return Value{}, false, in.execLdc(f, f.ReadU16())
	case OpLdc2W:
		index := f.ReadU16()
		entry, err := classfile.GetEntry(f.Class.File.ConstantPool, index)
		if err != nil {
			return Value{}, false, fmt.Errorf("ldc2_w: %w", err)
		}
		l, ok := entry.(*classfile.ConstantLong)
		if !ok {
			return Value{}, false, fmt.Errorf("ldc2_w: constant at index %d is not a long", index)
		}
		f.Push(LongValue(l.Value))

	// --- Local loads ---
	case OpIload, OpLload, OpAload:
		f.Push(f.GetLocal(int(f.ReadU8())))
	case OpIload0, OpIload1, OpIload2, OpIload3:
		f.Push(f.GetLocal(int(opcode) - OpIload0))
	case OpLload0, OpLload1, OpLload2, OpLload3:
		f.Push(f.GetLocal(int(opcode) - OpLload0))
	case OpAload0, OpAload1, OpAload2, OpAload3:
		f.Push(f.GetLocal(int(opcode) - OpAload0))

	// --- Array loads ---
	case OpIaload, OpLaload, OpAaload, OpBaload, OpCaload, OpSaload:
		index := f.Pop().Int
		arr, err := in.popArray(f)
		if err != nil {
			return Value{}, false, err
		}
		if index < 0 || index >= arr.Len() {
			return Value{}, false, in.throwNamed(ArrayIndexOutOfBoundsName, fmt.Sprintf("index %d out of bounds for length %d", index, arr.Len()))
		}
		f.Push(convertForStack(arr.Elems[index]))

	// --- Local stores ---
	case OpIstore, OpLstore, OpAstore:
		f.SetLocal(int(f.ReadU8()), f.Pop())
	case OpIstore0, OpIstore1, OpIstore2, OpIstore3:
		f.SetLocal(int(opcode)-OpIstore0, f.Pop())
	case OpLstore0, OpLstore1, OpLstore2, OpLstore3:
		f.SetLocal(int(opcode)-OpLstore0, f.Pop())
	case OpAstore0, OpAstore1, OpAstore2, OpAstore3:
		f.SetLocal(int(opcode)-OpAstore0, f.Pop())

	// --- Array stores ---
	case OpIastore, OpLastore, OpAastore, OpBastore, OpCastore, OpSastore:
		value := f.Pop()
		index := f.Pop().Int
		arr, err := in.popArray(f)
		if err != nil {
			return Value{}, false, err
		}
		if index < 0 || index >= arr.Len() {
			return Value{}, false, in.throwNamed(ArrayIndexOutOfBoundsName, fmt.Sprintf("index %d out of bounds for length %d", index, arr.Len()))
		}
		arr.Elems[index] = convertForField(arr.Elem, value)

	// --- Operand stack shuffling ---
	case OpPop:
		f.Pop()
	case OpPop2:
		// A long is one stack entry here; pop2 of a long drops just it.
		if f.Peek().Kind == KindLong {
			f.Pop()
		} else {
			f.Pop()
			f.Pop()
		}
	case OpDup:
		f.Push(f.Peek())
	case OpDup2:
		if f.Peek().Kind == KindLong {
			f.Push(f.Peek())
		} else {
			v1 := f.Pop()
			v2 := f.Pop()
			f.Push(v2)
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		}
	case OpDupX1:
		v1 := f.Pop()
		v2 := f.Pop()
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case OpDupX2:
		v1 := f.Pop()
		v2 := f.Pop()
		if v2.Kind == KindLong {
			f.Push(v1)
			f.Push(v2)
			f.Push(v1)
		} else {
			v3 := f.Pop()
			f.Push(v1)
			f.Push(v3)
			f.Push(v2)
			f.Push(v1)
		}
	case OpSwap:
		v2 := f.Pop()
		v1 := f.Pop()
		f.Push(v2)
		f.Push(v1)

	// --- Arithmetic; int and long wrap two's-complement ---
	case OpIadd:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int + v2.Int))
	case OpLadd:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long + v2.Long))
	case OpIsub:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int - v2.Int))
	case OpLsub:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long - v2.Long))
	case OpImul:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int * v2.Int))
	case OpLmul:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long * v2.Long))
	case OpIdiv:
		v2, v1 := f.Pop(), f.Pop()
		if v2.Int == 0 {
			return Value{}, false, in.throwNamed(ArithmeticExceptionName, "/ by zero")
		}
		f.Push(IntValue(idiv(v1.Int, v2.Int)))
	case OpLdiv:
		v2, v1 := f.Pop(), f.Pop()
		if v2.Long == 0 {
			return Value{}, false, in.throwNamed(ArithmeticExceptionName, "/ by zero")
		}
		f.Push(LongValue(ldiv(v1.Long, v2.Long)))
	case OpIrem:
		v2, v1 := f.Pop(), f.Pop()
		if v2.Int == 0 {
			return Value{}, false, in.throwNamed(ArithmeticExceptionName, "/ by zero")
		}
		f.Push(IntValue(irem(v1.Int, v2.Int)))
	case OpLrem:
		v2, v1 := f.Pop(), f.Pop()
		if v2.Long == 0 {
			return Value{}, false, in.throwNamed(ArithmeticExceptionName, "/ by zero")
		}
		f.Push(LongValue(lrem(v1.Long, v2.Long)))
	case OpIneg:
		f.Push(IntValue(-f.Pop().Int))
	case OpLneg:
		f.Push(LongValue(-f.Pop().Long))

	// --- Shifts and bitwise ---
	case OpIshl:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int << (uint(v2.Int) & 0x1f)))
	case OpLshl:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long << (uint(v2.Int) & 0x3f)))
	case OpIshr:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int >> (uint(v2.Int) & 0x1f)))
	case OpLshr:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long >> (uint(v2.Int) & 0x3f)))
	case OpIushr:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(int32(uint32(v1.Int) >> (uint(v2.Int) & 0x1f))))
	case OpLushr:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(int64(uint64(v1.Long) >> (uint(v2.Int) & 0x3f))))
	case OpIand:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int & v2.Int))
	case OpLand:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long & v2.Long))
	case OpIor:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int | v2.Int))
	case OpLor:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long | v2.Long))
	case OpIxor:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(IntValue(v1.Int ^ v2.Int))
	case OpLxor:
		v2, v1 := f.Pop(), f.Pop()
		f.Push(LongValue(v1.Long ^ v2.Long))

	case OpIinc:
		index := int(f.ReadU8())
		delta := int32(f.ReadI8())
		f.SetLocal(index, IntValue(f.GetLocal(index).Int+delta))

	// --- Conversions ---
	case OpI2l:
		f.Push(LongValue(int64(f.Pop().Int)))
	case OpL2i:
		f.Push(IntValue(int32(f.Pop().Long)))
	case OpI2b:
		f.Push(IntValue(int32(int8(f.Pop().Int))))
	case OpI2c:
		f.Push(IntValue(int32(uint16(f.Pop().Int))))
	case OpI2s:
		f.Push(IntValue(int32(int16(f.Pop().Int))))

	case OpLcmp:
		v2, v1 := f.Pop(), f.Pop()
		switch {
		case v1.Long > v2.Long:
			f.Push(IntValue(1))
		case v1.Long < v2.Long:
			f.Push(IntValue(-1))
		default:
			f.Push(IntValue(0))
		}

	// --- Branches ---
	case OpIfeq:
		in.branchUnary(f, func(v int32) bool { return v == 0 })
	case OpIfne:
		in.branchUnary(f, func(v int32) bool { return v != 0 })
	case OpIflt:
		in.branchUnary(f, func(v int32) bool { return v < 0 })
	case OpIfge:
		in.branchUnary(f, func(v int32) bool { return v >= 0 })
	case OpIfgt:
		in.branchUnary(f, func(v int32) bool { return v > 0 })
	case OpIfle:
		in.branchUnary(f, func(v int32) bool { return v <= 0 })

	case OpIfIcmpeq:
		in.branchBinary(f, func(a, b int32) bool { return a == b })
	case OpIfIcmpne:
		in.branchBinary(f, func(a, b int32) bool { return a != b })
	case OpIfIcmplt:
		in.branchBinary(f, func(a, b int32) bool { return a < b })
	case OpIfIcmpge:
		in.branchBinary(f, func(a, b int32) bool { return a >= b })
	case OpIfIcmpgt:
		in.branchBinary(f, func(a, b int32) bool { return a > b })
	case OpIfIcmple:
		in.branchBinary(f, func(a, b int32) bool { return a <= b })

	case OpIfAcmpeq, OpIfAcmpne:
		offset := int(f.ReadI16())
		v2 := f.Pop()
		v1 := f.Pop()
		if v1.SameRef(v2) == (opcode == OpIfAcmpeq) {
			f.PC = f.opPC + offset
		}

	case OpIfnull, OpIfnonnull:
		offset := int(f.ReadI16())
		if f.Pop().IsNull() == (opcode == OpIfnull) {
			f.PC = f.opPC + offset
		}

	case OpGoto:
		f.PC = f.opPC + int(f.ReadI16())
	case OpGotoW:
		f.PC = f.opPC + int(f.ReadI32())

	case OpTableswitch:
		for f.PC%4 != 0 {
			f.PC++
		}
		defaultOffset := f.ReadI32()
		low := f.ReadI32()
		high := f.ReadI32()
		offsets := make([]int32, high-low+1)
		for i := range offsets {
			offsets[i] = f.ReadI32()
		}
		index := f.Pop().Int
		if index >= low && index <= high {
			f.PC = f.opPC + int(offsets[index-low])
		} else {
			f.PC = f.opPC + int(defaultOffset)
		}

	case OpLookupswitch:
		for f.PC%4 != 0 {
			f.PC++
		}
		defaultOffset := f.ReadI32()
		npairs := f.ReadI32()
		key := f.Pop().Int
		target := int(defaultOffset)
		for i := int32(0); i < npairs; i++ {
			match := f.ReadI32()
			offset := f.ReadI32()
			if key == match {
				target = int(offset)
				f.PC += int(npairs-i-1) * 8
				break
			}
		}
		f.PC = f.opPC + target

	// --- Returns ---
	case OpIreturn, OpLreturn, OpAreturn:
		return f.Pop(), true, nil
	case OpReturn:
		return Value{}, true, nil

	// --- Fields, invocation, allocation ---
	case OpGetstatic:
		return Value{}, false, in.execGetstatic(f)
	case OpPutstatic:
		return Value{}, false, in.execPutstatic(f)
	case OpGetfield:
		return Value{}, false, in.execGetfield(f)
	case OpPutfield:
		return Value{}, false, in.execPutfield(f)
	case OpInvokevirtual:
		return Value{}, false, in.execInvokevirtual(f)
	case OpInvokespecial:
		return Value{}, false, in.execInvokespecial(f)
	case OpInvokestatic:
		return Value{}, false, in.execInvokestatic(f)
	case OpInvokeinterface:
		return Value{}, false, in.execInvokeinterface(f)
	case OpNew:
		return Value{}, false, in.execNew(f)

	case OpNewarray:
		atype := f.ReadU8()
		elem, err := arrayElemKind(atype)
		if err != nil {
			return Value{}, false, err
		}
		count := f.Pop().Int
		if count < 0 {
			return Value{}, false, in.throwNamed(NegativeArraySizeExceptionName, fmt.Sprintf("%d", count))
		}
		f.Push(ArrayValue(in.rt.Heap.AllocateArray(elem, count)))

	case OpAnewarray:
		if _, err := classfile.GetClassName(f.Class.File.ConstantPool, f.ReadU16()); err != nil {
			return Value{}, false, fmt.Errorf("anewarray: %w", err)
		}
		count := f.Pop().Int
		if count < 0 {
			return Value{}, false, in.throwNamed(NegativeArraySizeExceptionName, fmt.Sprintf("%d", count))
		}
		f.Push(ArrayValue(in.rt.Heap.AllocateArray(classfile.KindReference, count)))

	case OpArraylength:
		arr, err := in.popArray(f)
		if err != nil {
			return Value{}, false, err
		}
		f.Push(IntValue(arr.Len()))

	case OpAthrow:
		v := f.Pop()
		if v.IsNull() {
			return Value{}, false, in.throwNamed(NullPointerExceptionName, "throwing null")
		}
		if v.Kind != KindObject {
			return Value{}, false, fmt.Errorf("athrow: operand is %s, not an object", v.Kind)
		}
		return Value{}, false, in.throwRef(v.Ref)

	case OpCheckcast:
		name, err := classfile.GetClassName(f.Class.File.ConstantPool, f.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("checkcast: %w", err)
		}
		v := f.Peek()
		if !v.IsNull() {
			ok, err := in.isInstance(v, name)
			if err != nil {
				return Value{}, false, err
			}
			if !ok {
				return Value{}, false, in.throwNamed(ClassCastExceptionName, fmt.Sprintf("cannot cast to %s", name))
			}
		}

	case OpInstanceof:
		name, err := classfile.GetClassName(f.Class.File.ConstantPool, f.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("instanceof: %w", err)
		}
		v := f.Pop()
		if v.IsNull() {
			f.Push(IntValue(0))
			break
		}
		ok, err := in.isInstance(v, name)
		if err != nil {
			return Value{}, false, err
		}
		if ok {
			f.Push(IntValue(1))
		} else {
			f.Push(IntValue(0))
		}

	default:
		return Value{}, false, fmt.Errorf("unknown opcode 0x%02X at pc=%d in %s.%s", opcode, f.opPC, f.Class.Name, f.Method.Name)
	}

	return Value{}, false, nil
}

func (in *Interp) branchUnary(f *Frame, cond func(int32) bool) {
	offset := int(f.ReadI16())
	if cond(f.Pop().Int) {
		f.PC = f.opPC + offset
	}
}

func (in *Interp) branchBinary(f *Frame, cond func(int32, int32) bool) {
	offset := int(f.ReadI16())
	v2 := f.Pop()
	v1 := f.Pop()
	if cond(v1.Int, v2.Int) {
		f.PC = f.opPC + offset
	}
}

// idiv truncates toward zero; the one overflow case wraps.
func idiv(a, b int32) int32 {
	if a == -1<<31 && b == -1 {
		return a
	}
	return a / b
}

func ldiv(a, b int64) int64 {
	if a == -1<<63 && b == -1 {
		return a
	}
	return a / b
}

func irem(a, b int32) int32 {
	if b == -1 {
		return 0
	}
	return a % b
}

func lrem(a, b int64) int64 {
	if b == -1 {
		return 0
	}
	return a % b
}

func arrayElemKind(atype uint8) (classfile.TypeKind, error) {
	switch atype {
	case 4: // boolean
		return classfile.KindBoolean, nil
	case 5, 8, 9, 10: // char, byte, short, int
		return classfile.KindInt, nil
	case 11: // long
		return classfile.KindLong, nil
	default:
		return 0, fmt.Errorf("newarray: unsupported element type code %d", atype)
	}
}
