package vm

import (
	"fmt"
	"sync"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// RootClassName is the ancestor of every class. A class file whose
// superclass index is 0 links directly under it.
const RootClassName = "java/lang/Object"

// Registry owns the set of linked classes. It resolves symbolic class
// references through a pluggable Loader, links inheritance chains,
// verifies override compatibility and owns each class's static table
// for the class's lifetime.
type Registry struct {
	mu      sync.Mutex
	loader  Loader
	classes map[string]*Class
	loading map[string]bool
}

// NewRegistry creates a registry backed by the given loader and
// synthesizes the built-in root and throwable classes so catch-type
// matching works without a standard library on the class path.
func NewRegistry(loader Loader) *Registry {
	r := &Registry{
		loader:  loader,
		classes: make(map[string]*Class),
		loading: make(map[string]bool),
	}
	r.installBuiltins()
	return r
}

// Resolve returns the linked class for the given fully qualified name,
// loading and linking it (and, recursively, its ancestors) on first
// reference. Resolution does not run class initialization; that is
// deferred to the first active use.
func (r *Registry) Resolve(name string) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(name)
}

func (r *Registry) resolveLocked(name string) (*Class, error) {
	if c, ok := r.classes[name]; ok {
		return c, nil
	}
	if r.loading[name] {
		return nil, &LinkageError{Class: name, Detail: "class hierarchy cycle"}
	}

	cf, err := r.loader.Load(name)
	if err != nil {
		return nil, &ClassNotFoundError{Name: name, Err: err}
	}

	r.loading[name] = true
	defer delete(r.loading, name)

	c, err := r.link(name, cf)
	if err != nil {
		return nil, err
	}
	r.classes[name] = c
	log.Debugf("linked class %s (%d field slots, %d methods)", name, c.InstanceSize(), len(c.methods))
	return c, nil
}

// link builds a Class from its parsed file: resolves the superclass
// chain, flattens the instance field layout ancestor-first, allocates
// static storage, and constructs the virtual dispatch table.
func (r *Registry) link(name string, cf *classfile.ClassFile) (*Class, error) {
	fileName, err := cf.ClassName()
	if err != nil {
		return nil, &LinkageError{Class: name, Detail: err.Error()}
	}
	if fileName != name {
		return nil, &LinkageError{Class: name, Detail: fmt.Sprintf("class file declares name %s", fileName)}
	}

	superName := cf.SuperClassName()
	if superName == "" && name != RootClassName {
		superName = RootClassName
	}
	var super *Class
	if superName != "" {
		super, err = r.resolveLocked(superName)
		if err != nil {
			return nil, err
		}
	}

	c := &Class{
		Name:     name,
		Super:    super,
		File:     cf,
		methods:  make(map[MethodSlot]*Method),
		dispatch: make(map[MethodSlot]*Method),
	}
	c.initCond = sync.NewCond(&c.initMu)

	// Instance layout: every ancestor's declared fields root-first,
	// then this class's own declarations. Static fields get their own
	// table on the declaring class.
	base := 0
	if super != nil {
		c.layout = append(c.layout, super.layout...)
		base = len(super.layout)
	}
	for i := range cf.Fields {
		fi := &cf.Fields[i]
		kind, err := classfile.ParseFieldKind(fi.Descriptor)
		if err != nil {
			return nil, &LinkageError{Class: name, Detail: err.Error()}
		}
		f := &Field{
			Class:      c,
			Name:       fi.Name,
			Descriptor: fi.Descriptor,
			Kind:       kind,
			Static:     fi.IsStatic(),
		}
		if f.Static {
			f.Slot = len(c.staticFields)
			c.staticFields = append(c.staticFields, f)
			c.statics = append(c.statics, zeroValue(kind))
		} else {
			f.Slot = base + len(c.fields)
			c.fields = append(c.fields, f)
			c.layout = append(c.layout, f)
		}
	}

	// Declared methods, with override-compatibility verification:
	// matching name and parameter list against an ancestor method with
	// a different return type is a linkage failure.
	for i := range cf.Methods {
		mi := &cf.Methods[i]
		desc, err := classfile.ParseMethodDescriptor(mi.Descriptor)
		if err != nil {
			return nil, &LinkageError{Class: name, Detail: err.Error()}
		}
		m := &Method{
			Class:       c,
			Name:        mi.Name,
			Descriptor:  desc,
			AccessFlags: mi.AccessFlags,
			Code:        mi.Code,
		}
		if err := checkOverride(super, m); err != nil {
			return nil, err
		}
		c.methods[m.Slot()] = m
	}

	// Virtual dispatch table: inherit the superclass's resolutions,
	// then let this class's own non-static methods override them.
	if super != nil {
		for slot, m := range super.dispatch {
			c.dispatch[slot] = m
		}
	}
	for slot, m := range c.methods {
		if m.IsStatic() || m.Name == "<init>" || m.Name == "<clinit>" {
			continue
		}
		c.dispatch[slot] = m
	}

	return c, nil
}

func checkOverride(super *Class, m *Method) error {
	if m.IsStatic() || m.Name == "<init>" || m.Name == "<clinit>" {
		return nil
	}
	for k := super; k != nil; k = k.Super {
		for _, sm := range k.methods {
			if sm.IsStatic() || sm.Name != m.Name {
				continue
			}
			if !sameParams(sm.Descriptor, m.Descriptor) {
				continue
			}
			if sm.Descriptor.Return != m.Descriptor.Return {
				return &LinkageError{
					Class: m.Class.Name,
					Detail: fmt.Sprintf("method %s%s overrides %s.%s%s with incompatible return type",
						m.Name, m.Descriptor.Raw, k.Name, sm.Name, sm.Descriptor.Raw),
				}
			}
		}
	}
	return nil
}

func sameParams(a, b *classfile.MethodDescriptor) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	// Kind equality is not enough to distinguish reference types, so
	// compare the raw parameter segment of the descriptor.
	ai := paramSegment(a.Raw)
	bi := paramSegment(b.Raw)
	return ai == bi
}

func paramSegment(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] == ')' {
			return raw[:i+1]
		}
	}
	return raw
}

// Lookup returns an already-linked class without loading.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.classes[name]
	return c, ok
}

// Roots exposes every class's static table for garbage-collection root
// scanning.
func (r *Registry) Roots() [][]Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([][]Value, 0, len(r.classes))
	for _, c := range r.classes {
		if len(c.statics) > 0 {
			roots = append(roots, c.statics)
		}
	}
	return roots
}
