// Package cliopts implements the CLI option surface described in
// spec.md §6: the GC-type/heap-sizing flags plus the DFX 0/1 toggle
// table. Grounded on the teacher's cmd/orizon-compiler, which builds
// its option set with flat flag.Bool/flag.String calls rather than a
// generated table (Design Notes §9: "C macro-generated option tables
// ... replace with a static mapping {name -> enum} built once, queried
// by string lookup").
package cliopts

import (
	"flag"
	"fmt"
)

// GCType selects which collector variant the runtime constructs.
type GCType string

const (
	GCEpsilon  GCType = "epsilon"
	GCStopTheWorld GCType = "stw"
	GCGenerational GCType = "gen-gc"
	GCG1       GCType = "g1-gc"
	GCHybrid   GCType = "hybrid-gc"
)

func (g *GCType) String() string {
	if g == nil || *g == "" {
		return string(GCGenerational)
	}

	return string(*g)
}

// Set implements flag.Value, validating against the five names spec.md
// §6 lists for --gc-type.
func (g *GCType) Set(value string) error {
	switch GCType(value) {
	case GCEpsilon, GCStopTheWorld, GCGenerational, GCG1, GCHybrid:
		*g = GCType(value)

		return nil
	default:
		return fmt.Errorf("cliopts: unknown --gc-type %q", value)
	}
}

// dfxOption names one of spec.md §6's "each 0=disable, 1(default)=enable"
// toggles, built once into a static table rather than a macro list.
type dfxOption struct {
	name  string
	usage string
}

var dfxOptions = []dfxOption{
	{"compiler-nullcheck", "emit runtime null-check instrumentation"},
	{"signal-catcher", "run the background signal-catcher thread"},
	{"signal-handler", "install the runtime's crash signal handlers"},
	{"sigquit", "dump thread state on SIGQUIT"},
	{"sigusr1", "trigger a GC on SIGUSR1"},
	{"sigusr2", "toggle verbose logging on SIGUSR2"},
	{"mobile-log", "use the mobile-target log sink"},
	{"dfx-log", "enable DFX diagnostic logging"},
}

// tristateFlag implements flag.Value over the {"0","1"} alphabet spec.md
// §6 specifies for DFX options, storing into an owned bool.
type tristateFlag struct{ value *bool }

func (t tristateFlag) String() string {
	if t.value == nil || !*t.value {
		return "0"
	}

	return "1"
}

func (t tristateFlag) Set(value string) error {
	switch value {
	case "0":
		*t.value = false
	case "1":
		*t.value = true
	default:
		return fmt.Errorf("cliopts: DFX flag expects 0 or 1, got %q", value)
	}

	return nil
}

// Options is the fully parsed CLI option surface; cmd/orizon-gc-runtime
// builds a gcruntime.Config from it.
type Options struct {
	GCType GCType

	HeapSizeLimit  uint64
	YoungSpaceSize uint64

	NoAsyncJIT    bool
	RunGCInPlace  bool

	PreGCHeapVerification  bool
	PostGCHeapVerification bool
	FailOnHeapVerification bool

	PrintMemoryStatistics bool
	PrintGCStatistics     bool

	DFX map[string]*bool
}

// RegisterFlagSet builds an *flag.FlagSet registering every flag
// spec.md §6 names, returning it along with the Options it populates on
// Parse.
func RegisterFlagSet(name string) (*flag.FlagSet, *Options) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	opts := &Options{GCType: GCGenerational, DFX: make(map[string]*bool, len(dfxOptions))}

	fs.Var(&opts.GCType, "gc-type", "epsilon|stw|gen-gc|g1-gc|hybrid-gc")
	fs.Uint64Var(&opts.HeapSizeLimit, "heap-size-limit", 0, "maximum heap size in bytes (0 = default)")
	fs.Uint64Var(&opts.YoungSpaceSize, "young-space-size", 0, "young generation size in bytes (0 = default)")
	fs.BoolVar(&opts.NoAsyncJIT, "no-async-jit", false, "force STW instead of gen-gc")
	fs.BoolVar(&opts.RunGCInPlace, "run-gc-in-place", false, "run GC cycles synchronously on the triggering thread")
	fs.BoolVar(&opts.PreGCHeapVerification, "pre-gc-heap-verification", false, "verify heap consistency before each GC")
	fs.BoolVar(&opts.PostGCHeapVerification, "post-gc-heap-verification", false, "verify heap consistency after each GC")
	fs.BoolVar(&opts.FailOnHeapVerification, "fail-on-heap-verification", false, "treat a heap verification failure as fatal")
	fs.BoolVar(&opts.PrintMemoryStatistics, "print-memory-statistics", false, "print memory statistics on exit")
	fs.BoolVar(&opts.PrintGCStatistics, "print-gc-statistics", false, "print GC statistics on exit")

	for _, opt := range dfxOptions {
		v := true
		opts.DFX[opt.name] = &v
		fs.Var(tristateFlag{value: &v}, opt.name, opt.usage)
	}

	return fs, opts
}

// DFXEnabled reports whether the named DFX option is enabled, matching
// the original's string-keyed DFX_OPTION_LIST lookup.
func (o *Options) DFXEnabled(name string) bool {
	v, ok := o.DFX[name]

	return ok && *v
}
