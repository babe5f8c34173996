package vm

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// runProgram links the given classes, wires print natives capturing to
// a buffer and executes Main.main.
func runProgram(t *testing.T, classes MapLoader, opts Options) (string, *Runtime, error) {
	t.Helper()
	rt := New(classes, opts)
	var out bytes.Buffer
	for _, desc := range []string{"(I)V", "(J)V", "(Ljava/lang/String;)V", "(Ljava/lang/Object;)V"} {
		rt.Bridge.RegisterDefault("print", desc, func(rt *Runtime, args []Value) (Value, error) {
			fmt.Fprintln(&out, rt.FormatValue(args[0]))
			return Value{}, nil
		})
		rt.Bridge.RegisterDefault("write", desc, func(rt *Runtime, args []Value) (Value, error) {
			fmt.Fprint(&out, rt.FormatValue(args[0]))
			return Value{}, nil
		})
	}
	err := rt.Run("Main")
	return out.String(), rt, err
}

func s16(v int16) (byte, byte) {
	return u16(uint16(v))
}

func TestRunArithmetic(t *testing.T) {
	cb := newClass("Main", "").
		nativeMethod("write", "(Ljava/lang/String;)V", classfile.AccStatic).
		nativeMethod("print", "(I)V", classfile.AccStatic)
	label := cb.stringConst("1 + 2 = ")
	write := cb.methodRef("Main", "write", "(Ljava/lang/String;)V")
	print := cb.methodRef("Main", "print", "(I)V")
	wHi, wLo := u16(write)
	pHi, pLo := u16(print)
	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 1, []byte{
		OpLdc, byte(label),
		OpInvokestatic, wHi, wLo,
		OpIconst1,
		OpIconst2,
		OpIadd,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	})

	out, _, err := runProgram(t, MapLoader{"Main": cb.build()}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "1 + 2 = 3\n" {
		t.Errorf("output: got %q, want %q", out, "1 + 2 = 3\n")
	}
}

func TestRunFizzBuzz(t *testing.T) {
	cb := newClass("Main", "").
		nativeMethod("print", "(I)V", classfile.AccStatic).
		nativeMethod("print", "(Ljava/lang/String;)V", classfile.AccStatic)
	printI := cb.methodRef("Main", "print", "(I)V")
	printS := cb.methodRef("Main", "print", "(Ljava/lang/String;)V")
	fizzbuzz := cb.stringConst("FizzBuzz")
	fizz := cb.stringConst("Fizz")
	buzz := cb.stringConst("Buzz")
	piHi, piLo := u16(printI)
	psHi, psLo := u16(printS)

	code := []byte{
		OpIconst1,
		OpIstore1,
		// loop at pc 2
		OpIload1,
		OpBipush, 101,
		OpIfIcmpge, 0, 56, // -> return at pc 61
		OpIload1,
		OpBipush, 15,
		OpIrem,
		OpIfne, 0, 11, // -> pc 23
		OpLdc, byte(fizzbuzz),
		OpInvokestatic, psHi, psLo,
		OpGoto, 0, 35, // -> iinc at pc 55
		OpIload1, // pc 23
		OpIconst3,
		OpIrem,
		OpIfne, 0, 11, // -> pc 37
		OpLdc, byte(fizz),
		OpInvokestatic, psHi, psLo,
		OpGoto, 0, 21, // -> pc 55
		OpIload1, // pc 37
		OpIconst5,
		OpIrem,
		OpIfne, 0, 11, // -> pc 51
		OpLdc, byte(buzz),
		OpInvokestatic, psHi, psLo,
		OpGoto, 0, 7, // -> pc 55
		OpIload1, // pc 51
		OpInvokestatic, piHi, piLo,
		OpIinc, 1, 1, // pc 55
	}
	backHi, backLo := s16(-56) // -> loop at pc 2
	code = append(code, OpGoto, backHi, backLo, OpReturn)
	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, code)

	out, _, err := runProgram(t, MapLoader{"Main": cb.build()}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var want bytes.Buffer
	for i := 1; i <= 100; i++ {
		switch {
		case i%15 == 0:
			want.WriteString("FizzBuzz\n")
		case i%3 == 0:
			want.WriteString("Fizz\n")
		case i%5 == 0:
			want.WriteString("Buzz\n")
		default:
			fmt.Fprintf(&want, "%d\n", i)
		}
	}
	if out != want.String() {
		t.Errorf("output:\ngot  %q\nwant %q", out, want.String())
	}
}

func TestRunStaticInitOnce(t *testing.T) {
	helper := newClass("Helper", "").
		field("count", "I", classfile.AccStatic)
	count := helper.fieldRef("Helper", "count", "I")
	cHi, cLo := u16(count)
	helper.method("<clinit>", "()V", classfile.AccStatic, 2, 0, []byte{
		OpGetstatic, cHi, cLo,
		OpIconst1,
		OpIadd,
		OpPutstatic, cHi, cLo,
		OpReturn,
	})

	main := newClass("Main", "").
		nativeMethod("print", "(I)V", classfile.AccStatic)
	mCount := main.fieldRef("Helper", "count", "I")
	print := main.methodRef("Main", "print", "(I)V")
	mcHi, mcLo := u16(mCount)
	pHi, pLo := u16(print)
	main.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 1, 1, []byte{
		OpGetstatic, mcHi, mcLo,
		OpInvokestatic, pHi, pLo,
		OpGetstatic, mcHi, mcLo,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	})

	out, _, err := runProgram(t, MapLoader{"Main": main.build(), "Helper": helper.build()}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "1\n1\n" {
		t.Errorf("output: got %q, want %q (initializer must run exactly once)", out, "1\n1\n")
	}
}

func TestRunStaticAnswer(t *testing.T) {
	answer := newClass("Answer", "").
		field("value", "I", classfile.AccStatic)
	value := answer.fieldRef("Answer", "value", "I")
	vHi, vLo := u16(value)
	answer.method("<clinit>", "()V", classfile.AccStatic, 1, 0, []byte{
		OpBipush, 42,
		OpPutstatic, vHi, vLo,
		OpReturn,
	})

	main := newClass("Main", "").
		nativeMethod("write", "(Ljava/lang/String;)V", classfile.AccStatic).
		nativeMethod("print", "(I)V", classfile.AccStatic)
	label := main.stringConst("The answer to life, the universe and everything is: ")
	mValue := main.fieldRef("Answer", "value", "I")
	write := main.methodRef("Main", "write", "(Ljava/lang/String;)V")
	print := main.methodRef("Main", "print", "(I)V")
	mvHi, mvLo := u16(mValue)
	wHi, wLo := u16(write)
	pHi, pLo := u16(print)
	main.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 1, []byte{
		OpLdc, byte(label),
		OpInvokestatic, wHi, wLo,
		OpGetstatic, mvHi, mvLo,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	})

	out, _, err := runProgram(t, MapLoader{"Main": main.build(), "Answer": answer.build()}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "The answer to life, the universe and everything is: 42\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

func TestRunInheritance(t *testing.T) {
	base := newClass("Base", "").
		field("n", "I", 0)
	objInit := base.methodRef(RootClassName, "<init>", "()V")
	baseN := base.fieldRef("Base", "n", "I")
	oiHi, oiLo := u16(objInit)
	bnHi, bnLo := u16(baseN)
	base.method("<init>", "()V", 0, 2, 1, []byte{
		OpAload0,
		OpInvokespecial, oiHi, oiLo,
		OpAload0,
		OpIconst1,
		OpPutfield, bnHi, bnLo,
		OpReturn,
	})
	base.method("tag", "()I", 0, 1, 1, []byte{OpIconst1, OpIreturn})

	derived := newClass("Derived", "Base")
	baseInit := derived.methodRef("Base", "<init>", "()V")
	baseTag := derived.methodRef("Base", "tag", "()I")
	biHi, biLo := u16(baseInit)
	btHi, btLo := u16(baseTag)
	derived.method("<init>", "()V", 0, 1, 1, []byte{
		OpAload0,
		OpInvokespecial, biHi, biLo,
		OpReturn,
	})
	derived.method("tag", "()I", 0, 1, 1, []byte{OpIconst2, OpIreturn})
	derived.method("baseTag", "()I", 0, 1, 1, []byte{
		OpAload0,
		OpInvokespecial, btHi, btLo,
		OpIreturn,
	})

	main := newClass("Main", "").
		nativeMethod("print", "(I)V", classfile.AccStatic).
		nativeMethod("print", "(Ljava/lang/Object;)V", classfile.AccStatic)
	derivedRef := main.classRef("Derived")
	derivedInit := main.methodRef("Derived", "<init>", "()V")
	tag := main.methodRef("Derived", "tag", "()I")
	bTag := main.methodRef("Derived", "baseTag", "()I")
	printI := main.methodRef("Main", "print", "(I)V")
	printO := main.methodRef("Main", "print", "(Ljava/lang/Object;)V")
	dHi, dLo := u16(derivedRef)
	diHi, diLo := u16(derivedInit)
	tHi, tLo := u16(tag)
	btgHi, btgLo := u16(bTag)
	piHi, piLo := u16(printI)
	poHi, poLo := u16(printO)
	main.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, []byte{
		OpNew, dHi, dLo,
		OpDup,
		OpInvokespecial, diHi, diLo,
		OpAstore1,
		OpAload1,
		OpInvokevirtual, tHi, tLo,
		OpInvokestatic, piHi, piLo,
		OpAload1,
		OpInvokevirtual, btgHi, btgLo,
		OpInvokestatic, piHi, piLo,
		OpAload1,
		OpInvokestatic, poHi, poLo,
		OpReturn,
	})

	classes := MapLoader{
		"Main":    main.build(),
		"Base":    base.build(),
		"Derived": derived.build(),
	}
	out, _, err := runProgram(t, classes, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "2\n1\nDerived{n=1}\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

// A field declared again in a subclass gets its own slot; code compiled
// against the superclass keeps reading the superclass copy.
func TestRunFieldShadowing(t *testing.T) {
	base := newClass("Base", "").
		field("x", "I", 0)
	objInit := base.methodRef(RootClassName, "<init>", "()V")
	baseX := base.fieldRef("Base", "x", "I")
	oiHi, oiLo := u16(objInit)
	bxHi, bxLo := u16(baseX)
	base.method("<init>", "()V", 0, 1, 1, []byte{
		OpAload0,
		OpInvokespecial, oiHi, oiLo,
		OpReturn,
	})
	base.method("setBaseX", "(I)V", 0, 2, 2, []byte{
		OpAload0,
		OpIload1,
		OpPutfield, bxHi, bxLo,
		OpReturn,
	})
	base.method("baseX", "()I", 0, 1, 1, []byte{
		OpAload0,
		OpGetfield, bxHi, bxLo,
		OpIreturn,
	})

	derived := newClass("Derived", "Base").
		field("x", "I", 0)
	baseInit := derived.methodRef("Base", "<init>", "()V")
	derivedX := derived.fieldRef("Derived", "x", "I")
	biHi, biLo := u16(baseInit)
	dxHi, dxLo := u16(derivedX)
	derived.method("<init>", "()V", 0, 2, 1, []byte{
		OpAload0,
		OpInvokespecial, biHi, biLo,
		OpAload0,
		OpBipush, 20,
		OpPutfield, dxHi, dxLo,
		OpReturn,
	})

	main := newClass("Main", "").
		nativeMethod("print", "(I)V", classfile.AccStatic)
	derivedRef := main.classRef("Derived")
	derivedInit := main.methodRef("Derived", "<init>", "()V")
	setBaseX := main.methodRef("Derived", "setBaseX", "(I)V")
	getBaseX := main.methodRef("Derived", "baseX", "()I")
	mainDX := main.fieldRef("Derived", "x", "I")
	printI := main.methodRef("Main", "print", "(I)V")
	dHi, dLo := u16(derivedRef)
	diHi, diLo := u16(derivedInit)
	sbHi, sbLo := u16(setBaseX)
	gbHi, gbLo := u16(getBaseX)
	mdHi, mdLo := u16(mainDX)
	piHi, piLo := u16(printI)
	main.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, []byte{
		OpNew, dHi, dLo,
		OpDup,
		OpInvokespecial, diHi, diLo,
		OpAstore1,
		OpAload1,
		OpBipush, 10,
		OpInvokevirtual, sbHi, sbLo,
		OpAload1,
		OpInvokevirtual, gbHi, gbLo,
		OpInvokestatic, piHi, piLo,
		OpAload1,
		OpGetfield, mdHi, mdLo,
		OpInvokestatic, piHi, piLo,
		OpReturn,
	})

	classes := MapLoader{
		"Main":    main.build(),
		"Base":    base.build(),
		"Derived": derived.build(),
	}
	out, _, err := runProgram(t, classes, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "10\n20\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

// An override that chains to the superclass version via invokespecial
// and then mutates a subclass-reachable field: the printed state must
// show both the super-applied increment and the override's side effect.
func TestRunOverrideChain(t *testing.T) {
	base := newClass("Base", "").
		field("x", "I", 0).
		field("flag", "Z", 0)
	objInit := base.methodRef(RootClassName, "<init>", "()V")
	baseX := base.fieldRef("Base", "x", "I")
	baseFlag := base.fieldRef("Base", "flag", "Z")
	oiHi, oiLo := u16(objInit)
	bxHi, bxLo := u16(baseX)
	bfHi, bfLo := u16(baseFlag)
	base.method("<init>", "()V", 0, 2, 1, []byte{
		OpAload0,
		OpInvokespecial, oiHi, oiLo,
		OpAload0,
		OpIconst1,
		OpPutfield, bxHi, bxLo,
		OpAload0,
		OpIconst1,
		OpPutfield, bfHi, bfLo,
		OpReturn,
	})
	base.method("bump", "()V", 0, 3, 1, []byte{
		OpAload0,
		OpDup,
		OpGetfield, bxHi, bxLo,
		OpIconst1,
		OpIadd,
		OpPutfield, bxHi, bxLo,
		OpReturn,
	})

	child := newClass("Child", "Base")
	baseInit := child.methodRef("Base", "<init>", "()V")
	baseBump := child.methodRef("Base", "bump", "()V")
	childFlag := child.fieldRef("Base", "flag", "Z")
	biHi, biLo := u16(baseInit)
	bbHi, bbLo := u16(baseBump)
	cfHi, cfLo := u16(childFlag)
	child.method("<init>", "()V", 0, 1, 1, []byte{
		OpAload0,
		OpInvokespecial, biHi, biLo,
		OpReturn,
	})
	child.method("bump", "()V", 0, 2, 1, []byte{
		OpAload0,
		OpInvokespecial, bbHi, bbLo,
		OpAload0,
		OpIconst0,
		OpPutfield, cfHi, cfLo,
		OpReturn,
	})

	main := newClass("Main", "").
		nativeMethod("print", "(Ljava/lang/Object;)V", classfile.AccStatic)
	childRef := main.classRef("Child")
	childInit := main.methodRef("Child", "<init>", "()V")
	bump := main.methodRef("Child", "bump", "()V")
	print := main.methodRef("Main", "print", "(Ljava/lang/Object;)V")
	cHi, cLo := u16(childRef)
	ciHi, ciLo := u16(childInit)
	buHi, buLo := u16(bump)
	pHi, pLo := u16(print)
	main.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, []byte{
		OpNew, cHi, cLo,
		OpDup,
		OpInvokespecial, ciHi, ciLo,
		OpAstore1,
		OpAload1,
		OpInvokestatic, pHi, pLo,
		OpAload1,
		OpInvokevirtual, buHi, buLo,
		OpAload1,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	})

	classes := MapLoader{
		"Main":  main.build(),
		"Base":  base.build(),
		"Child": child.build(),
	}
	out, _, err := runProgram(t, classes, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "Child{x=1, flag=true}\nChild{x=2, flag=false}\n"
	if out != want {
		t.Errorf("output:\ngot  %q\nwant %q", out, want)
	}
}

func TestRunArrayProgram(t *testing.T) {
	cb := newClass("Main", "").
		nativeMethod("print", "(Ljava/lang/Object;)V", classfile.AccStatic)
	print := cb.methodRef("Main", "print", "(Ljava/lang/Object;)V")
	pHi, pLo := u16(print)
	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 3, 2, []byte{
		OpIconst3,
		OpNewarray, 10, // int
		OpAstore1,
		OpAload1,
		OpIconst0,
		OpBipush, 7,
		OpIastore,
		OpAload1,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	})

	out, _, err := runProgram(t, MapLoader{"Main": cb.build()}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "[7, 0, 0]\n" {
		t.Errorf("output: got %q, want %q", out, "[7, 0, 0]\n")
	}
}

func TestRunCurrentTimeMillis(t *testing.T) {
	cb := newClass("Main", "").
		nativeMethod("print", "(J)V", classfile.AccStatic)
	millis := cb.methodRef(SystemClassName, "currentTimeMillis", "()J")
	print := cb.methodRef("Main", "print", "(J)V")
	mHi, mLo := u16(millis)
	pHi, pLo := u16(print)
	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 1, []byte{
		OpInvokestatic, mHi, mLo,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	})

	rt := New(MapLoader{"Main": cb.build()}, Options{})
	var out bytes.Buffer
	rt.Bridge.RegisterDefault("print", "(J)V", func(rt *Runtime, args []Value) (Value, error) {
		fmt.Fprintln(&out, rt.FormatValue(args[0]))
		return Value{}, nil
	})
	rt.Bridge.Register(SystemClassName, "currentTimeMillis", "()J",
		func(rt *Runtime, args []Value) (Value, error) {
			return LongValue(1234567890), nil
		})
	if err := rt.Run("Main"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "1234567890\n" {
		t.Errorf("output: got %q, want %q", out.String(), "1234567890\n")
	}
}

func throwingMain(withHandler bool) *classfile.ClassFile {
	cb := newClass("Main", "").
		nativeMethod("print", "(Ljava/lang/String;)V", classfile.AccStatic)
	rte := cb.classRef("java/lang/RuntimeException")
	rteInit := cb.methodRef("java/lang/RuntimeException", "<init>", "(Ljava/lang/String;)V")
	getMessage := cb.methodRef("java/lang/RuntimeException", "getMessage", "()Ljava/lang/String;")
	print := cb.methodRef("Main", "print", "(Ljava/lang/String;)V")
	msg := cb.stringConst("kaput")
	boom := cb.methodRef("Main", "boom", "()V")

	rHi, rLo := u16(rte)
	riHi, riLo := u16(rteInit)
	gmHi, gmLo := u16(getMessage)
	pHi, pLo := u16(print)
	bHi, bLo := u16(boom)

	cb.method("boom", "()V", classfile.AccStatic, 3, 0, []byte{
		OpNew, rHi, rLo,
		OpDup,
		OpLdc, byte(msg),
		OpInvokespecial, riHi, riLo,
		OpAthrow,
	})

	mainCode := []byte{
		OpInvokestatic, bHi, bLo,
		OpReturn,
		// handler at pc 4
		OpAstore1,
		OpAload1,
		OpInvokevirtual, gmHi, gmLo,
		OpInvokestatic, pHi, pLo,
		OpReturn,
	}
	var handlers []classfile.ExceptionHandler
	if withHandler {
		handlers = append(handlers, classfile.ExceptionHandler{
			StartPC: 0, EndPC: 3, HandlerPC: 4, CatchType: rte,
		})
	}
	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, mainCode, handlers...)
	return cb.build()
}

func TestRunCatchThrown(t *testing.T) {
	out, _, err := runProgram(t, MapLoader{"Main": throwingMain(true)}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "kaput\n" {
		t.Errorf("output: got %q, want %q", out, "kaput\n")
	}
}

func TestRunUncaughtThrown(t *testing.T) {
	out, _, err := runProgram(t, MapLoader{"Main": throwingMain(false)}, Options{})
	var ue *UncaughtException
	if !errors.As(err, &ue) {
		t.Fatalf("expected an UncaughtException, got %v", err)
	}
	if ue.Class != "java/lang/RuntimeException" || ue.Message != "kaput" {
		t.Errorf("uncaught: got class %q message %q", ue.Class, ue.Message)
	}
	if out != "" {
		t.Errorf("no output expected, got %q", out)
	}
}

func TestRunCatchDivisionByZero(t *testing.T) {
	cb := newClass("Main", "").
		nativeMethod("print", "(I)V", classfile.AccStatic).
		nativeMethod("print", "(Ljava/lang/String;)V", classfile.AccStatic)
	ae := cb.classRef(ArithmeticExceptionName)
	getMessage := cb.methodRef(ArithmeticExceptionName, "getMessage", "()Ljava/lang/String;")
	printI := cb.methodRef("Main", "print", "(I)V")
	printS := cb.methodRef("Main", "print", "(Ljava/lang/String;)V")
	gmHi, gmLo := u16(getMessage)
	piHi, piLo := u16(printI)
	psHi, psLo := u16(printS)

	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, []byte{
		OpIconst1,
		OpIconst0,
		OpIdiv,
		OpInvokestatic, piHi, piLo,
		OpReturn,
		// handler at pc 7
		OpAstore1,
		OpAload1,
		OpInvokevirtual, gmHi, gmLo,
		OpInvokestatic, psHi, psLo,
		OpReturn,
	}, classfile.ExceptionHandler{StartPC: 0, EndPC: 6, HandlerPC: 7, CatchType: ae})

	out, _, err := runProgram(t, MapLoader{"Main": cb.build()}, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "/ by zero\n" {
		t.Errorf("output: got %q, want %q", out, "/ by zero\n")
	}
}

func TestRunCatchStackOverflow(t *testing.T) {
	cb := newClass("Main", "").
		nativeMethod("print", "(Ljava/lang/String;)V", classfile.AccStatic)
	soe := cb.classRef(StackOverflowErrorName)
	recurse := cb.methodRef("Main", "recurse", "()V")
	print := cb.methodRef("Main", "print", "(Ljava/lang/String;)V")
	caught := cb.stringConst("caught")
	rHi, rLo := u16(recurse)
	pHi, pLo := u16(print)

	cb.method("recurse", "()V", classfile.AccStatic, 1, 0, []byte{
		OpInvokestatic, rHi, rLo,
		OpReturn,
	})
	cb.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 1, []byte{
		OpInvokestatic, rHi, rLo,
		OpReturn,
		// handler at pc 4
		OpPop,
		OpLdc, byte(caught),
		OpInvokestatic, pHi, pLo,
		OpReturn,
	}, classfile.ExceptionHandler{StartPC: 0, EndPC: 3, HandlerPC: 4, CatchType: soe})

	out, _, err := runProgram(t, MapLoader{"Main": cb.build()}, Options{MaxFrameDepth: 32})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "caught\n" {
		t.Errorf("output: got %q, want %q", out, "caught\n")
	}
}

func TestRunCollectsGarbage(t *testing.T) {
	node := newClass("Node", "").field("v", "I", 0)

	main := newClass("Main", "")
	nodeRef := main.classRef("Node")
	nHi, nLo := u16(nodeRef)
	code := []byte{
		OpIconst0,
		OpIstore1,
		// loop at pc 2
		OpIload1,
		OpBipush, 100,
		OpIfIcmpge, 0, 13, // -> return at pc 18
		OpNew, nHi, nLo,
		OpPop,
		OpIinc, 1, 1,
	}
	backHi, backLo := s16(-13) // -> loop at pc 2
	code = append(code, OpGoto, backHi, backLo, OpReturn)
	main.method("main", "([Ljava/lang/String;)V", classfile.AccStatic, 2, 2, code)

	classes := MapLoader{"Main": main.build(), "Node": node.build()}
	_, rt, err := runProgram(t, classes, Options{GCThreshold: 8})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	stats := rt.Stats()
	if live := stats["heap_live"]; live > 16 {
		t.Errorf("heap live after run: %d, want collection to keep it below 16", live)
	}
	if stats["classes_linked"] < 2 {
		t.Errorf("classes linked: %d, want Main and Node at least", stats["classes_linked"])
	}
}
