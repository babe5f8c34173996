package vm

import "fmt"

// Frame is one activation record: the method's local variable table,
// its operand stack and the program counter into the method's code.
type Frame struct {
	Class  *Class
	Method *Method
	Locals []Value
	Stack  []Value
	SP     int
	Code   []byte
	PC     int

	// opPC is the address of the instruction currently executing,
	// recorded before operand decoding advances PC. Exception table
	// matching uses it.
	opPC int
}

// NewFrame creates a frame sized by the method's Code attribute. The
// caller is responsible for placing arguments into the local table.
func NewFrame(m *Method) *Frame {
	code := m.Code
	return &Frame{
		Class:  m.Class,
		Method: m,
		Locals: make([]Value, code.MaxLocals),
		Stack:  make([]Value, code.MaxStack),
		Code:   code.Code,
	}
}

// Push pushes a value onto the operand stack. Overflow is a verifier
// contract violation, not a program-level error, so it panics.
func (f *Frame) Push(v Value) {
	if f.SP >= len(f.Stack) {
		panic(fmt.Sprintf("operand stack overflow in %s.%s: sp=%d max=%d", f.Class.Name, f.Method.Name, f.SP, len(f.Stack)))
	}
	f.Stack[f.SP] = v
	f.SP++
}

// Pop pops the top value from the operand stack.
func (f *Frame) Pop() Value {
	if f.SP <= 0 {
		panic(fmt.Sprintf("operand stack underflow in %s.%s", f.Class.Name, f.Method.Name))
	}
	f.SP--
	return f.Stack[f.SP]
}

// Peek returns the top value without popping it.
func (f *Frame) Peek() Value {
	if f.SP <= 0 {
		panic(fmt.Sprintf("operand stack underflow in %s.%s", f.Class.Name, f.Method.Name))
	}
	return f.Stack[f.SP-1]
}

// GetLocal returns the value at a local variable slot.
func (f *Frame) GetLocal(index int) Value {
	if index < 0 || index >= len(f.Locals) {
		panic(fmt.Sprintf("local slot %d out of range in %s.%s (max %d)", index, f.Class.Name, f.Method.Name, len(f.Locals)))
	}
	return f.Locals[index]
}

// SetLocal stores a value into a local variable slot.
func (f *Frame) SetLocal(index int, v Value) {
	if index < 0 || index >= len(f.Locals) {
		panic(fmt.Sprintf("local slot %d out of range in %s.%s (max %d)", index, f.Class.Name, f.Method.Name, len(f.Locals)))
	}
	f.Locals[index] = v
}

// ClearStack drops every operand, used when control transfers to an
// exception handler.
func (f *Frame) ClearStack() {
	f.SP = 0
}

// ReadU8 reads an unsigned byte operand and advances PC.
func (f *Frame) ReadU8() uint8 {
	v := f.Code[f.PC]
	f.PC++
	return v
}

// ReadI8 reads a signed byte operand and advances PC.
func (f *Frame) ReadI8() int8 {
	v := int8(f.Code[f.PC])
	f.PC++
	return v
}

// ReadU16 reads a big-endian unsigned 16-bit operand and advances PC.
func (f *Frame) ReadU16() uint16 {
	v := uint16(f.Code[f.PC])<<8 | uint16(f.Code[f.PC+1])
	f.PC += 2
	return v
}

// ReadI16 reads a big-endian signed 16-bit operand and advances PC.
func (f *Frame) ReadI16() int16 {
	return int16(f.ReadU16())
}

// ReadI32 reads a big-endian signed 32-bit operand and advances PC.
func (f *Frame) ReadI32() int32 {
	v := int32(f.Code[f.PC])<<24 | int32(f.Code[f.PC+1])<<16 | int32(f.Code[f.PC+2])<<8 | int32(f.Code[f.PC+3])
	f.PC += 4
	return v
}
