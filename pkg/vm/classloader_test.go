package vm

import (
	"os"
	"path/filepath"
	"testing"
)

// tinyClassBytes emits the smallest well-formed class binary: a class
// named Tiny with no superclass entry, no members and no attributes.
var tinyClassBytes = []byte{
	0xCA, 0xFE, 0xBA, 0xBE, // magic
	0x00, 0x00, // minor
	0x00, 0x34, // major 52
	0x00, 0x03, // constant pool count
	0x01, 0x00, 0x04, 'T', 'i', 'n', 'y', // 1: Utf8 "Tiny"
	0x07, 0x00, 0x01, // 2: Class -> 1
	0x00, 0x21, // ACC_PUBLIC | ACC_SUPER
	0x00, 0x02, // this class
	0x00, 0x00, // super class
	0x00, 0x00, // interfaces
	0x00, 0x00, // fields
	0x00, 0x00, // methods
	0x00, 0x00, // attributes
}

func TestMapLoader(t *testing.T) {
	loader := MapLoader{"Present": newClass("Present", "").build()}

	cf, err := loader.Load("Present")
	if err != nil {
		t.Fatalf("Load(Present): %v", err)
	}
	name, err := cf.ClassName()
	if err != nil || name != "Present" {
		t.Errorf("class name: got %q (%v), want Present", name, err)
	}

	if _, err := loader.Load("Absent"); err == nil {
		t.Error("Load(Absent) should fail")
	}
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Tiny.class"), tinyClassBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewDirLoader(dir)
	cf, err := loader.Load("Tiny")
	if err != nil {
		t.Fatalf("Load(Tiny): %v", err)
	}
	name, err := cf.ClassName()
	if err != nil || name != "Tiny" {
		t.Errorf("class name: got %q (%v), want Tiny", name, err)
	}
	if cf.SuperClassName() != "" {
		t.Errorf("superclass name: got %q, want empty", cf.SuperClassName())
	}

	if _, err := loader.Load("Missing"); err == nil {
		t.Error("Load(Missing) should fail")
	}
}

func TestDirLoaderSearchOrder(t *testing.T) {
	empty := t.TempDir()
	filled := t.TempDir()
	if err := os.WriteFile(filepath.Join(filled, "Tiny.class"), tinyClassBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewDirLoader(empty, filled)
	if _, err := loader.Load("Tiny"); err != nil {
		t.Fatalf("Load(Tiny) across class path: %v", err)
	}
}

func TestDirLoaderPackagePath(t *testing.T) {
	dir := t.TempDir()
	// foo/Tiny would fail the link-time name check, but the loader
	// itself only maps names to paths.
	sub := filepath.Join(dir, "foo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "Tiny.class"), tinyClassBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	loader := NewDirLoader(dir)
	if _, err := loader.Load("foo/Tiny"); err != nil {
		t.Fatalf("Load(foo/Tiny): %v", err)
	}
	if _, err := loader.Load("Tiny"); err == nil {
		t.Error("Load(Tiny) should not find foo/Tiny.class")
	}
}

func TestDirLoaderLinksThroughRegistry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Tiny.class"), tinyClassBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry(NewDirLoader(dir))
	c, err := r.Resolve("Tiny")
	if err != nil {
		t.Fatalf("resolving Tiny: %v", err)
	}
	if c.Super == nil || c.Super.Name != RootClassName {
		t.Errorf("superclass: got %v, want %s", c.Super, RootClassName)
	}
}
