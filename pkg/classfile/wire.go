package classfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical options so a dump of the same class file
// is byte-for-byte stable across runs.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("classfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Dump is the flat, machine-readable form of a parsed class file,
// suitable for tooling and golden tests.
type Dump struct {
	MinorVersion uint16         `cbor:"minor"`
	MajorVersion uint16         `cbor:"major"`
	ClassName    string         `cbor:"class"`
	SuperName    string         `cbor:"super,omitempty"`
	AccessFlags  uint16         `cbor:"flags"`
	Constants    []ConstantDump `cbor:"constants"`
	Fields       []FieldDump    `cbor:"fields"`
	Methods      []MethodDump   `cbor:"methods"`
}

// ConstantDump is one constant pool entry. Which fields are meaningful
// depends on the tag; unused fields are zero. Slot-padding entries
// after longs carry tag 0.
type ConstantDump struct {
	Tag    uint8  `cbor:"tag"`
	Text   string `cbor:"text,omitempty"`
	Num    int64  `cbor:"num,omitempty"`
	Index1 uint16 `cbor:"i1,omitempty"`
	Index2 uint16 `cbor:"i2,omitempty"`
}

type FieldDump struct {
	Name       string `cbor:"name"`
	Descriptor string `cbor:"desc"`
	Flags      uint16 `cbor:"flags"`
}

type MethodDump struct {
	Name       string    `cbor:"name"`
	Descriptor string    `cbor:"desc"`
	Flags      uint16    `cbor:"flags"`
	Native     bool      `cbor:"native,omitempty"`
	Code       *CodeDump `cbor:"code,omitempty"`
}

type CodeDump struct {
	MaxStack  uint16        `cbor:"stack"`
	MaxLocals uint16        `cbor:"locals"`
	Code      []byte        `cbor:"code"`
	Handlers  []HandlerDump `cbor:"handlers,omitempty"`
}

type HandlerDump struct {
	StartPC   uint16 `cbor:"start"`
	EndPC     uint16 `cbor:"end"`
	HandlerPC uint16 `cbor:"handler"`
	CatchType uint16 `cbor:"catch,omitempty"`
}

// NewDump flattens a parsed class file into its dump form.
func NewDump(cf *ClassFile) (*Dump, error) {
	className, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("dump: %w", err)
	}

	d := &Dump{
		MinorVersion: cf.MinorVersion,
		MajorVersion: cf.MajorVersion,
		ClassName:    className,
		SuperName:    cf.SuperClassName(),
		AccessFlags:  cf.AccessFlags,
		Constants:    make([]ConstantDump, 0, len(cf.ConstantPool)),
		Fields:       make([]FieldDump, 0, len(cf.Fields)),
		Methods:      make([]MethodDump, 0, len(cf.Methods)),
	}

	// Index 0 and padding slots after longs come through as tag 0.
	for _, entry := range cf.ConstantPool {
		if entry == nil {
			d.Constants = append(d.Constants, ConstantDump{})
			continue
		}
		c := ConstantDump{Tag: entry.Tag()}
		switch e := entry.(type) {
		case *ConstantUtf8:
			c.Text = e.Value
		case *ConstantInteger:
			c.Num = int64(e.Value)
		case *ConstantLong:
			c.Num = e.Value
		case *ConstantFloat:
			// retained structurally; the runtime never executes floats
		case *ConstantDouble:
		case *ConstantClass:
			c.Index1 = e.NameIndex
		case *ConstantString:
			c.Index1 = e.StringIndex
		case *ConstantFieldref:
			c.Index1, c.Index2 = e.ClassIndex, e.NameAndTypeIndex
		case *ConstantMethodref:
			c.Index1, c.Index2 = e.ClassIndex, e.NameAndTypeIndex
		case *ConstantInterfaceMethodref:
			c.Index1, c.Index2 = e.ClassIndex, e.NameAndTypeIndex
		case *ConstantNameAndType:
			c.Index1, c.Index2 = e.NameIndex, e.DescriptorIndex
		}
		d.Constants = append(d.Constants, c)
	}

	for _, f := range cf.Fields {
		d.Fields = append(d.Fields, FieldDump{
			Name:       f.Name,
			Descriptor: f.Descriptor,
			Flags:      f.AccessFlags,
		})
	}

	for i := range cf.Methods {
		m := &cf.Methods[i]
		md := MethodDump{
			Name:       m.Name,
			Descriptor: m.Descriptor,
			Flags:      m.AccessFlags,
			Native:     m.IsNative(),
		}
		if m.Code != nil {
			cd := &CodeDump{
				MaxStack:  m.Code.MaxStack,
				MaxLocals: m.Code.MaxLocals,
				Code:      m.Code.Code,
			}
			for _, h := range m.Code.ExceptionHandlers {
				cd.Handlers = append(cd.Handlers, HandlerDump{
					StartPC:   h.StartPC,
					EndPC:     h.EndPC,
					HandlerPC: h.HandlerPC,
					CatchType: h.CatchType,
				})
			}
			md.Code = cd
		}
		d.Methods = append(d.Methods, md)
	}

	return d, nil
}

// MarshalDump serializes a class dump to canonical CBOR bytes.
func MarshalDump(d *Dump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDump deserializes a class dump from CBOR bytes.
func UnmarshalDump(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("classfile: unmarshal dump: %w", err)
	}
	return &d, nil
}
