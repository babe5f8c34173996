package vm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gavel-vm/gavel/pkg/classfile"
)

// Loader supplies parsed class files by fully qualified name. The
// registry consults it exactly once per name; caching beyond that is
// the loader's own business.
type Loader interface {
	Load(name string) (*classfile.ClassFile, error)
}

// DirLoader loads class files from an ordered list of class-path
// directories. The fully qualified name maps onto a relative file
// path, so "foo/Bar" is looked up as <dir>/foo/Bar.class.
type DirLoader struct {
	Dirs []string
}

// NewDirLoader creates a DirLoader over the given directories.
func NewDirLoader(dirs ...string) *DirLoader {
	return &DirLoader{Dirs: dirs}
}

func (l *DirLoader) Load(name string) (*classfile.ClassFile, error) {
	for _, dir := range l.Dirs {
		path := filepath.Join(dir, filepath.FromSlash(name)+".class")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cf, err := classfile.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		return cf, nil
	}
	return nil, fmt.Errorf("class %s not found on class path %v", name, l.Dirs)
}

// MapLoader serves pre-parsed class files from memory. Used by tests
// and by embedders that compile or carry bytecode in-process.
type MapLoader map[string]*classfile.ClassFile

func (l MapLoader) Load(name string) (*classfile.ClassFile, error) {
	cf, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("class %s not present", name)
	}
	return cf, nil
}
