package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/gavel-vm/gavel/pkg/classfile"
	"github.com/gavel-vm/gavel/pkg/config"
	"github.com/gavel-vm/gavel/pkg/native"
	"github.com/gavel-vm/gavel/pkg/vm"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: gavel [flags] <classfile | class name>\n")
	flag.PrintDefaults()
}

func main() {
	verbose := flag.Int("v", 0, "log verbosity (repeatable levels, 0 = quiet)")
	configDir := flag.String("config", "", "directory containing gavel.toml (default: search upward from the class file)")
	dump := flag.Bool("dump", false, "write a CBOR dump of the parsed class file to stdout instead of running it")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	commonlog.Configure(*verbose, nil)

	arg := flag.Arg(0)
	if *dump {
		if err := dumpClass(arg); err != nil {
			fmt.Fprintf(os.Stderr, "gavel: %v\n", err)
			os.Exit(2)
		}
		return
	}

	// A path ending in .class names both the class and its directory;
	// a bare name resolves against the configured class path.
	var className, classDir string
	if strings.HasSuffix(arg, ".class") {
		classDir = filepath.Dir(arg)
		className = strings.TrimSuffix(filepath.Base(arg), ".class")
	} else {
		classDir = "."
		className = arg
	}

	cfg, err := loadConfig(*configDir, classDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gavel: %v\n", err)
		os.Exit(2)
	}

	dirs := cfg.ClassPathDirs()
	if classDir != "." {
		dirs = append([]string{classDir}, dirs...)
	}

	rt := vm.New(vm.NewDirLoader(dirs...), vm.Options{
		MaxFrameDepth: cfg.Runtime.MaxFrameDepth,
		GCThreshold:   cfg.Heap.GCThreshold,
	})
	native.Install(rt.Bridge, os.Stdout, native.SystemClock{})

	if err := rt.Run(className); err != nil {
		fmt.Fprintf(os.Stderr, "gavel: %v\n", err)
		if _, ok := err.(*vm.UncaughtException); ok {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func loadConfig(configDir, classDir string) (*config.Config, error) {
	if configDir != "" {
		return config.Load(configDir)
	}
	return config.FindAndLoad(classDir)
}

func dumpClass(path string) error {
	cf, err := classfile.ParseFile(path)
	if err != nil {
		return err
	}
	d, err := classfile.NewDump(cf)
	if err != nil {
		return err
	}
	data, err := classfile.MarshalDump(d)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
