// Package gcruntime is the module's public facade: it wires components
// C1–C10 (region heap, card table, remembered sets, the GC phase
// machine and its collector variants, reference storage, mutator
// coordination, write barriers, and the memory-dump tracker) into one
// explicit Heap value. This replaces the global mutable Runtime
// singleton the original implementation carries — a value an embedding
// caller constructs once and threads through its own calls, rather
// than a package-level global every component reaches into.
package gcruntime

import (
	"github.com/orizon-lang/orizon-gc/internal/cliopts"
	"github.com/orizon-lang/orizon-gc/internal/gcheap"
)

// GCType selects which Collector variant NewHeap constructs.
type GCType = cliopts.GCType

const (
	GCEpsilon      = cliopts.GCEpsilon
	GCStopTheWorld = cliopts.GCStopTheWorld
	GCGenerational = cliopts.GCGenerational
	GCG1           = cliopts.GCG1
	GCHybrid       = cliopts.GCHybrid
)

// DefaultRegionSize is the region granularity new spaces are carved
// into, per spec.md §3.
const DefaultRegionSize = gcheap.DefaultRegionSize

// Config is the fully resolved set of knobs spec.md §6 exposes on the
// command line, independent of how they were parsed.
type Config struct {
	GCType GCType

	// HeapSizeLimit bounds the tenured/old space's pre-reserved slot
	// count (0 picks a modest default suitable for the demo harness).
	HeapSizeLimit uint64
	// YoungSpaceSize bounds the young/eden space the same way.
	YoungSpaceSize uint64

	RegionSize gcheap.RegionSize

	// NoAsyncJIT forces the STW collector in place of Generational, per
	// spec.md §6's "--no-async-jit (forces STW instead of gen-gc)".
	NoAsyncJIT   bool
	RunGCInPlace bool

	PreGCHeapVerification  bool
	PostGCHeapVerification bool
	FailOnHeapVerification bool

	PrintMemoryStatistics bool
	PrintGCStatistics     bool

	// MajorPeriod is the Generational collector's DEFAULT_MAJOR_PERIOD
	// (spec.md §4.6), exposed here since the CLI surface has no flag for
	// it but tests and embedders may want to override it.
	MajorPeriod int

	DFX map[string]*bool
}

const (
	defaultHeapSizeLimit  = 16 * 1024 * 1024
	defaultYoungSpaceSize = 4 * 1024 * 1024
	defaultMajorPeriod    = 3
)

// DefaultConfig returns a Generational-collector configuration sized for
// the demo CLI harness.
func DefaultConfig() Config {
	return Config{
		GCType:         GCGenerational,
		HeapSizeLimit:  defaultHeapSizeLimit,
		YoungSpaceSize: defaultYoungSpaceSize,
		RegionSize:     DefaultRegionSize,
		MajorPeriod:    defaultMajorPeriod,
	}
}

// ConfigFromOptions builds a Config from a parsed cliopts.Options,
// falling back to DefaultConfig's sizing for any zero-valued knob.
func ConfigFromOptions(opts *cliopts.Options) Config {
	cfg := DefaultConfig()

	cfg.GCType = opts.GCType
	if opts.NoAsyncJIT {
		cfg.GCType = GCStopTheWorld
	}

	if opts.HeapSizeLimit > 0 {
		cfg.HeapSizeLimit = opts.HeapSizeLimit
	}

	if opts.YoungSpaceSize > 0 {
		cfg.YoungSpaceSize = opts.YoungSpaceSize
	}

	cfg.NoAsyncJIT = opts.NoAsyncJIT
	cfg.RunGCInPlace = opts.RunGCInPlace
	cfg.PreGCHeapVerification = opts.PreGCHeapVerification
	cfg.PostGCHeapVerification = opts.PostGCHeapVerification
	cfg.FailOnHeapVerification = opts.FailOnHeapVerification
	cfg.PrintMemoryStatistics = opts.PrintMemoryStatistics
	cfg.PrintGCStatistics = opts.PrintGCStatistics
	cfg.DFX = opts.DFX

	return cfg
}

func (c Config) regionSize() gcheap.RegionSize {
	if c.RegionSize == 0 {
		return DefaultRegionSize
	}

	return c.RegionSize
}

func (c Config) youngSlotCount() int {
	return slotCountFor(c.YoungSpaceSize, c.regionSize(), defaultYoungSpaceSize)
}

func (c Config) tenuredSlotCount() int {
	return slotCountFor(c.HeapSizeLimit, c.regionSize(), defaultHeapSizeLimit)
}

func slotCountFor(budget uint64, regionSize gcheap.RegionSize, fallback uint64) int {
	if budget == 0 {
		budget = fallback
	}

	n := int(budget / uint64(regionSize))
	if n < 1 {
		n = 1
	}

	return n
}

func (c Config) majorPeriod() int {
	if c.MajorPeriod <= 0 {
		return defaultMajorPeriod
	}

	return c.MajorPeriod
}
