package classfile

import "fmt"

// TypeKind classifies a field or parameter type for value storage and
// argument marshaling. Byte, char and short collapse onto the int kind:
// they share int storage on the operand stack and in locals.
type TypeKind byte

const (
	KindInt TypeKind = iota
	KindLong
	KindBoolean
	KindReference // class instances, arrays and string constants
	KindVoid
)

func (k TypeKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindBoolean:
		return "boolean"
	case KindReference:
		return "reference"
	case KindVoid:
		return "void"
	}
	return fmt.Sprintf("TypeKind(%d)", byte(k))
}

// Width returns the number of local-variable slots the kind occupies.
func (k TypeKind) Width() int {
	if k == KindLong {
		return 2
	}
	return 1
}

// MethodDescriptor is the parsed form of a method type signature like
// "(IJ)V": the parameter kinds in order and the return kind.
type MethodDescriptor struct {
	Raw    string
	Params []TypeKind
	Return TypeKind
}

// ParamSlots returns the number of local-variable slots the declared
// parameters occupy, not counting a receiver.
func (d *MethodDescriptor) ParamSlots() int {
	n := 0
	for _, p := range d.Params {
		n += p.Width()
	}
	return n
}

// HasReturn reports whether the method pushes a value on return.
func (d *MethodDescriptor) HasReturn() bool {
	return d.Return != KindVoid
}

// ParseMethodDescriptor parses a method descriptor string.
func ParseMethodDescriptor(desc string) (*MethodDescriptor, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, fmt.Errorf("invalid method descriptor: %q", desc)
	}

	d := &MethodDescriptor{Raw: desc}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		kind, next, err := parseFieldType(desc, i)
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		d.Params = append(d.Params, kind)
		i = next
	}
	if i >= len(desc) || desc[i] != ')' {
		return nil, fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	i++

	if i >= len(desc) {
		return nil, fmt.Errorf("invalid method descriptor %q: missing return type", desc)
	}
	if desc[i] == 'V' {
		d.Return = KindVoid
		i++
	} else {
		kind, next, err := parseFieldType(desc, i)
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		d.Return = kind
		i = next
	}
	if i != len(desc) {
		return nil, fmt.Errorf("invalid method descriptor %q: trailing characters", desc)
	}
	return d, nil
}

// ParseFieldKind parses a field descriptor string into its kind.
func ParseFieldKind(desc string) (TypeKind, error) {
	kind, next, err := parseFieldType(desc, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid field descriptor %q: %w", desc, err)
	}
	if next != len(desc) {
		return 0, fmt.Errorf("invalid field descriptor %q: trailing characters", desc)
	}
	return kind, nil
}

// parseFieldType parses one field type starting at offset i and returns
// its kind and the offset just past it.
func parseFieldType(desc string, i int) (TypeKind, int, error) {
	if i >= len(desc) {
		return 0, 0, fmt.Errorf("truncated type at offset %d", i)
	}
	switch desc[i] {
	case 'B', 'C', 'S', 'I':
		return KindInt, i + 1, nil
	case 'J':
		return KindLong, i + 1, nil
	case 'Z':
		return KindBoolean, i + 1, nil
	case 'L':
		semi := i + 1
		for semi < len(desc) && desc[semi] != ';' {
			semi++
		}
		if semi >= len(desc) {
			return 0, 0, fmt.Errorf("unterminated class type at offset %d", i)
		}
		if semi == i+1 {
			return 0, 0, fmt.Errorf("empty class name at offset %d", i)
		}
		return KindReference, semi + 1, nil
	case '[':
		depth := i
		for depth < len(desc) && desc[depth] == '[' {
			depth++
		}
		// The element type must itself parse, but arrays are references.
		_, next, err := parseFieldType(desc, depth)
		if err != nil {
			return 0, 0, err
		}
		return KindReference, next, nil
	case 'F', 'D':
		return 0, 0, fmt.Errorf("floating-point type %q is not supported", desc[i])
	}
	return 0, 0, fmt.Errorf("unknown type descriptor char %q at offset %d", desc[i], i)
}
