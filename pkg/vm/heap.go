package vm

import (
	"fmt"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// Object is an instance allocation. Fields holds the full flattened
// layout, ancestors first, indexed by Field.Slot.
type Object struct {
	Class  *Class
	Fields []Value
}

// Array is an array allocation with a fixed element kind.
type Array struct {
	Elem  classfile.TypeKind
	Elems []Value
}

func (a *Array) Len() int32 { return int32(len(a.Elems)) }

// DefaultGCThreshold is the allocation count between collection
// opportunities when no explicit threshold is configured.
const DefaultGCThreshold = 4096

type cell struct {
	marked bool
	object *Object
	array  *Array
}

// Heap is a handle-addressed arena. Values never hold pointers into
// the arena; every reference goes through a Handle so the collector
// can reclaim cells without a relocation pass. Handle 0 is null.
type Heap struct {
	cells     []cell
	free      []Handle
	threshold int
	allocs    int
}

func NewHeap(threshold int) *Heap {
	if threshold <= 0 {
		threshold = DefaultGCThreshold
	}
	return &Heap{threshold: threshold}
}

// Allocate creates an instance of c with every field at its zero
// value and returns its handle.
func (h *Heap) Allocate(c *Class) Handle {
	layout := c.Layout()
	fields := make([]Value, len(layout))
	for i, f := range layout {
		fields[i] = zeroValue(f.Kind)
	}
	return h.claim(cell{object: &Object{Class: c, Fields: fields}})
}

// AllocateArray creates an array of the given element kind with every
// element at the kind's zero value.
func (h *Heap) AllocateArray(elem classfile.TypeKind, length int32) Handle {
	elems := make([]Value, length)
	for i := range elems {
		elems[i] = zeroValue(elem)
	}
	return h.claim(cell{array: &Array{Elem: elem, Elems: elems}})
}

func (h *Heap) claim(c cell) Handle {
	h.allocs++
	if n := len(h.free); n > 0 {
		hd := h.free[n-1]
		h.free = h.free[:n-1]
		h.cells[hd-1] = c
		return hd
	}
	h.cells = append(h.cells, c)
	return Handle(len(h.cells))
}

func (h *Heap) cell(hd Handle) (*cell, error) {
	if hd == NullHandle || int(hd) > len(h.cells) {
		return nil, fmt.Errorf("invalid heap handle %d", hd)
	}
	c := &h.cells[hd-1]
	if c.object == nil && c.array == nil {
		return nil, fmt.Errorf("heap handle %d refers to a freed cell", hd)
	}
	return c, nil
}

// Object returns the instance behind a handle.
func (h *Heap) Object(hd Handle) (*Object, error) {
	c, err := h.cell(hd)
	if err != nil {
		return nil, err
	}
	if c.object == nil {
		return nil, fmt.Errorf("heap handle %d is an array, not an object", hd)
	}
	return c.object, nil
}

// Array returns the array behind a handle.
func (h *Heap) Array(hd Handle) (*Array, error) {
	c, err := h.cell(hd)
	if err != nil {
		return nil, err
	}
	if c.array == nil {
		return nil, fmt.Errorf("heap handle %d is an object, not an array", hd)
	}
	return c.array, nil
}

// ShouldCollect reports whether enough allocations have happened since
// the last collection to warrant one. The interpreter only calls
// Collect between instructions, when every live reference is visible
// from a root set.
func (h *Heap) ShouldCollect() bool {
	return h.allocs >= h.threshold
}

// Collect runs a mark-sweep pass over the arena. rootSets holds every
// slice of values reachable by the running program: frame locals,
// operand stacks and class static tables. Returns the number of cells
// reclaimed.
func (h *Heap) Collect(rootSets [][]Value) int {
	for i := range h.cells {
		h.cells[i].marked = false
	}
	for _, roots := range rootSets {
		for _, v := range roots {
			h.mark(v)
		}
	}

	freed := 0
	for i := range h.cells {
		c := &h.cells[i]
		if c.marked || (c.object == nil && c.array == nil) {
			continue
		}
		c.object = nil
		c.array = nil
		h.free = append(h.free, Handle(i+1))
		freed++
	}
	h.allocs = 0
	if freed > 0 {
		log.Debugf("gc reclaimed %d cells (%d in use)", freed, h.Live())
	}
	return freed
}

func (h *Heap) mark(v Value) {
	if !v.IsReference() || v.Ref == NullHandle {
		return
	}
	c := &h.cells[v.Ref-1]
	if c.marked || (c.object == nil && c.array == nil) {
		return
	}
	c.marked = true
	if c.object != nil {
		for _, fv := range c.object.Fields {
			h.mark(fv)
		}
	}
	if c.array != nil {
		for _, ev := range c.array.Elems {
			h.mark(ev)
		}
	}
}

// Live counts cells currently in use.
func (h *Heap) Live() int {
	n := 0
	for i := range h.cells {
		if h.cells[i].object != nil || h.cells[i].array != nil {
			n++
		}
	}
	return n
}
