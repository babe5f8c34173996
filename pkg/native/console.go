package native

import (
	"fmt"
	"io"

	"github.com/gavel-vm/gavel/pkg/vm"
)

// Console backs the print natives. Any class may declare a native
// print with one of the supported descriptors; the bindings are
// registered as bridge defaults so they serve every declaring class.
type Console struct {
	Out io.Writer
}

// printDescriptors are the overloads the console serves. Booleans
// arrive as ints on the operand stack, so print(Z)V renders 0 and 1
// as false and true.
var printDescriptors = []string{
	"()V",
	"(I)V",
	"(J)V",
	"(Z)V",
	"(Ljava/lang/String;)V",
	"(Ljava/lang/Object;)V",
}

// writeDescriptors are the overloads served without a trailing
// newline, for composing a line out of several native calls.
var writeDescriptors = []string{
	"(I)V",
	"(J)V",
	"(Ljava/lang/String;)V",
}

func (c *Console) install(b *vm.Bridge) {
	for _, desc := range printDescriptors {
		d := desc
		b.RegisterDefault("print", d, func(rt *vm.Runtime, args []vm.Value) (vm.Value, error) {
			return vm.Value{}, c.print(rt, d, args)
		})
	}
	for _, desc := range writeDescriptors {
		b.RegisterDefault("write", desc, func(rt *vm.Runtime, args []vm.Value) (vm.Value, error) {
			_, err := fmt.Fprint(c.Out, rt.FormatValue(args[0]))
			return vm.Value{}, err
		})
	}
}

func (c *Console) print(rt *vm.Runtime, desc string, args []vm.Value) error {
	var err error
	switch desc {
	case "()V":
		_, err = fmt.Fprintln(c.Out)
	case "(Z)V":
		_, err = fmt.Fprintf(c.Out, "%t\n", args[0].Int != 0)
	default:
		_, err = fmt.Fprintln(c.Out, rt.FormatValue(args[0]))
	}
	return err
}

// Install registers the standard host services: the print overloads
// writing to out and System.currentTimeMillis reading clock.
func Install(b *vm.Bridge, out io.Writer, clock Clock) {
	(&Console{Out: out}).install(b)
	installSystem(b, clock)
}
