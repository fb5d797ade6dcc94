// Package main is the demo entry point for the GC core: it parses the
// CLI surface spec.md §6 documents, builds a gcruntime.Heap from it, and
// runs a small scripted allocation workload so --print-memory-statistics
// and --print-gc-statistics have something to report.
package main

import (
	"fmt"
	"os"

	"github.com/orizon-lang/orizon-gc"
	"github.com/orizon-lang/orizon-gc/internal/cliopts"
	"github.com/orizon-lang/orizon-gc/internal/gc"
)

const memDumpPath = "memdump.bin"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs, opts := cliopts.RegisterFlagSet("orizon-gc-runtime")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: orizon-gc-runtime [options] <pandafile> <entrypoint> [-- <args>...]\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(argv); err != nil {
		return 1
	}

	args := fs.Args()
	if len(args) < 2 {
		fs.Usage()

		return 1
	}

	pandafile, entrypoint := args[0], args[1]

	cfg := gcruntime.ConfigFromOptions(opts)

	heap, err := gcruntime.NewHeap(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orizon-gc-runtime: %v\n", err)

		return -1
	}

	if err := runWorkload(heap, pandafile, entrypoint); err != nil {
		fmt.Fprintf(os.Stderr, "orizon-gc-runtime: %v\n", err)

		return -1
	}

	if opts.PrintMemoryStatistics || opts.PrintGCStatistics {
		printStatistics(heap, opts)
	}

	dumpFile, err := os.Create(memDumpPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "orizon-gc-runtime: %v\n", err)

		return -1
	}
	defer dumpFile.Close()

	if err := heap.DumpMemory(dumpFile); err != nil {
		fmt.Fprintf(os.Stderr, "orizon-gc-runtime: %v\n", err)

		return -1
	}

	heap.Stop()

	return 0
}

// runWorkload stands in for loading and interpreting pandafile's
// entrypoint method: it allocates a small linked structure, wires it
// through SetReference (exercising the write barrier), roots its head,
// allocates a few unreachable garbage objects, and then forces one
// explicit GC cycle.
func runWorkload(heap *gcruntime.Heap, pandafile, entrypoint string) error {
	_ = pandafile
	_ = entrypoint

	const nodeCount = 8

	nodes := make([]uintptr, 0, nodeCount)

	for i := 0; i < nodeCount; i++ {
		addr, err := heap.Allocate("Node", 32, true, 1)
		if err != nil {
			return err
		}

		nodes = append(nodes, addr)
	}

	for i := 0; i < len(nodes)-1; i++ {
		if err := heap.SetReference(nodes[i], 0, nodes[i+1]); err != nil {
			return err
		}
	}

	heap.AddRoot(nodes[0])

	for i := 0; i < 4; i++ {
		if _, err := heap.Allocate("Garbage", 16, false, 0); err != nil {
			return err
		}
	}

	return heap.CollectNow(gc.CauseExplicit)
}

func printStatistics(heap *gcruntime.Heap, opts *cliopts.Options) {
	stats := heap.Stats()

	if opts.PrintMemoryStatistics {
		fmt.Printf("heap bytes: %d\nyoung regions: %d\ntenured regions: %d\nallocations: %d\n",
			stats.HeapBytes, stats.YoungRegions, stats.TenuredRegions, stats.AllocCount)
	}

	if opts.PrintGCStatistics {
		fmt.Printf("gc cycles: %d\n", stats.GCCycles)
	}
}
