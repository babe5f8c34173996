package native

import (
	"time"

	"github.com/gavel-vm/gavel/pkg/vm"
)

// Clock is the time source behind System.currentTimeMillis, pluggable
// so tests can run against a fixed instant.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads the host wall clock.
type SystemClock struct{}

func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// FixedClock always reports the same instant.
type FixedClock int64

func (c FixedClock) NowMillis() int64 {
	return int64(c)
}

func installSystem(b *vm.Bridge, clock Clock) {
	b.Register(vm.SystemClassName, "currentTimeMillis", "()J",
		func(rt *vm.Runtime, args []vm.Value) (vm.Value, error) {
			return vm.LongValue(clock.NowMillis()), nil
		})
}
