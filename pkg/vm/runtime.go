package vm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("gavel.vm")

// DefaultMaxFrameDepth bounds call nesting; crossing it raises a
// catchable stack overflow condition in the running program.
const DefaultMaxFrameDepth = 1024

// Options configures a Runtime.
type Options struct {
	// MaxFrameDepth bounds interpreter call nesting; 0 means the
	// default.
	MaxFrameDepth int
	// GCThreshold is the allocation count between collection
	// opportunities; 0 means the default.
	GCThreshold int
}

// Runtime ties together the class registry, the heap and the native
// bridge for one program execution.
type Runtime struct {
	ID            uuid.UUID
	Registry      *Registry
	Heap          *Heap
	Bridge        *Bridge
	MaxFrameDepth int

	// interps tracks live interpreter activations so a collection
	// triggered anywhere sees every frame as a root.
	interps []*Interp
}

// New creates a runtime resolving classes through the given loader.
func New(loader Loader, opts Options) *Runtime {
	depth := opts.MaxFrameDepth
	if depth <= 0 {
		depth = DefaultMaxFrameDepth
	}
	rt := &Runtime{
		ID:            uuid.New(),
		Registry:      NewRegistry(loader),
		Heap:          NewHeap(opts.GCThreshold),
		Bridge:        NewBridge(),
		MaxFrameDepth: depth,
	}
	log.Debugf("runtime %s created (frame depth %d)", rt.ID, depth)
	return rt
}

func (rt *Runtime) track(in *Interp) {
	rt.interps = append(rt.interps, in)
}

func (rt *Runtime) untrack(in *Interp) {
	for i, t := range rt.interps {
		if t == in {
			rt.interps = append(rt.interps[:i], rt.interps[i+1:]...)
			return
		}
	}
}

// collect gathers every root the program can reach and runs a heap
// collection: frame locals and operand stacks of all live
// activations, plus every linked class's statics.
func (rt *Runtime) collect() {
	roots := rt.Registry.Roots()
	for _, in := range rt.interps {
		roots = in.roots(roots)
	}
	rt.Heap.Collect(roots)
}

// Run resolves className, initializes it and executes its
// main([Ljava/lang/String;)V entry point. A throwable escaping main
// is returned as *UncaughtException.
func (rt *Runtime) Run(className string) error {
	c, err := rt.Registry.Resolve(className)
	if err != nil {
		return err
	}
	main := c.LookupMethod(MethodSlot{Name: "main", Descriptor: "([Ljava/lang/String;)V"})
	if main == nil || !main.IsStatic() {
		return &NoSuchMethodError{Class: className, Name: "main", Descriptor: "([Ljava/lang/String;)V"}
	}

	in := newInterp(rt, &initToken{})
	rt.track(in)
	defer rt.untrack(in)

	if err := in.ensureInitialized(c); err != nil {
		return rt.surface(err)
	}
	log.Infof("run %s: entering %s.main", rt.ID, className)
	_, err = in.Invoke(main, []Value{NullValue()})
	log.Debugf("run %s: finished, %v", rt.ID, rt.Stats())
	return rt.surface(err)
}

// surface converts an escaped *thrown into an UncaughtException with
// the throwable's class and message; other errors pass through.
func (rt *Runtime) surface(err error) error {
	t, ok := err.(*thrown)
	if !ok {
		return err
	}
	u := &UncaughtException{Class: t.class.Name}
	if obj, oerr := rt.Heap.Object(t.ref); oerr == nil {
		if f := t.class.ResolveField("message", "Ljava/lang/String;"); f != nil {
			if v := obj.Fields[f.Slot]; v.Kind == KindString {
				u.Message = v.Str
			}
		}
	}
	return u
}

// FormatValue renders a value the way the print natives do: scalars
// verbatim, booleans as true/false, arrays as bracketed element lists
// and objects as ClassName{field=value, ...} over the full flattened
// layout. Reference graphs may be cyclic; a handle already on the
// rendering path prints as "...".
func (rt *Runtime) FormatValue(v Value) string {
	return rt.formatValue(v, make(map[Handle]bool))
}

func (rt *Runtime) formatValue(v Value, seen map[Handle]bool) string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindLong:
		return fmt.Sprintf("%d", v.Long)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindString:
		return v.Str
	case KindArray:
		arr, err := rt.Heap.Array(v.Ref)
		if err != nil {
			return fmt.Sprintf("<bad handle %d>", v.Ref)
		}
		if seen[v.Ref] {
			return "[...]"
		}
		seen[v.Ref] = true
		defer delete(seen, v.Ref)
		parts := make([]string, len(arr.Elems))
		for i, e := range arr.Elems {
			parts[i] = rt.formatValue(e, seen)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		obj, err := rt.Heap.Object(v.Ref)
		if err != nil {
			return fmt.Sprintf("<bad handle %d>", v.Ref)
		}
		if seen[v.Ref] {
			return shortClassName(obj.Class.Name) + "{...}"
		}
		seen[v.Ref] = true
		defer delete(seen, v.Ref)
		return rt.formatObject(obj, seen)
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

func (rt *Runtime) formatObject(obj *Object, seen map[Handle]bool) string {
	layout := obj.Class.Layout()
	parts := make([]string, 0, len(layout))
	for _, f := range layout {
		parts = append(parts, fmt.Sprintf("%s=%s", f.Name, rt.formatValue(obj.Fields[f.Slot], seen)))
	}
	return shortClassName(obj.Class.Name) + "{" + strings.Join(parts, ", ") + "}"
}

func shortClassName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Stats reports coarse runtime counters for logging and tests.
func (rt *Runtime) Stats() map[string]int {
	return map[string]int{
		"heap_live":      rt.Heap.Live(),
		"classes_linked": len(rt.ClassNames()),
	}
}

// ClassNames lists every linked class in sorted order.
func (rt *Runtime) ClassNames() []string {
	rt.Registry.mu.Lock()
	defer rt.Registry.mu.Unlock()
	names := make([]string, 0, len(rt.Registry.classes))
	for name := range rt.Registry.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
