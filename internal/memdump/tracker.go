// Package memdump implements the internal-allocation dump tracker
// (spec.md §6 "Memory dump file (binary)"), grounded on
// original_source/libpandabase/mem/alloc_tracker.{h,cpp}. Allocations
// and frees are recorded as byte-encoded entries in a list of fixed
// 4 KiB arenas (Design Notes §9: "Placement-new arenas for allocation
// tracking ... a Vec<[u8;4096]> of fixed-size slabs, writing records
// via byte-level field encoding"); Go's zero-valued arena slices
// already supply the zero-u32 arena terminator the original has to
// write explicitly.
package memdump

import (
	"bytes"
	"encoding/binary"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	arenaSize = 4096

	allocTag uint32 = 1
	freeTag  uint32 = 2

	// allocInfoSize is tag+id+size+space+stacktraceID, five u32 fields.
	allocInfoSize = 20
	// freeInfoSize is tag+allocID, two u32 fields.
	freeInfoSize = 8

	stacktraceSkipFrames = 2
	stacktraceMaxDepth   = 32
)

// Space identifies which heap space an allocation belongs to, mirroring
// the original's SpaceType enum closely enough for dump purposes.
type Space uint32

const (
	SpaceInternal Space = iota
	SpaceObject
	SpaceCompiler
	SpaceCode
)

type allocRecord struct {
	id uint32
}

// Tracker is the detailed allocation tracker: every TrackAlloc/TrackFree
// call appends a byte-encoded entry to the current arena, with a
// deduplicated call-stack attached to each allocation.
type Tracker struct {
	mu sync.Mutex

	curID       uint32
	arenas      [][]byte
	curArena    []byte
	curPos      int
	stacktraces [][]uintptr
	curAllocs   map[uintptr]allocRecord

	allocCounter atomic.Uint64
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{curAllocs: make(map[uintptr]allocRecord)}
}

// AllocCount reports the total number of TrackAlloc calls observed,
// including ones later freed.
func (t *Tracker) AllocCount() uint64 { return t.allocCounter.Load() }

func captureStacktrace() []uintptr {
	pcs := make([]uintptr, stacktraceMaxDepth)
	n := runtime.Callers(stacktraceSkipFrames, pcs)

	return pcs[:n]
}

func (t *Tracker) ensureCapacity(n int) {
	if len(t.curArena)-t.curPos >= n {
		return
	}

	arena := make([]byte, arenaSize)
	t.arenas = append(t.arenas, arena)
	t.curArena = arena
	t.curPos = 0
}

func putU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// TrackAlloc records a new allocation of size bytes at addr in space,
// attaching the caller's current call stack. A nil addr is ignored, per
// DetailAllocTracker::TrackAlloc.
func (t *Tracker) TrackAlloc(addr uintptr, size uint32, space Space) {
	if addr == 0 {
		return
	}

	stack := captureStacktrace()

	t.allocCounter.Add(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	stacktraceID := uint32(len(t.stacktraces))
	t.stacktraces = append(t.stacktraces, stack)

	t.ensureCapacity(allocInfoSize)

	id := t.curID
	t.curID++

	entry := t.curArena[t.curPos : t.curPos+allocInfoSize]
	putU32(entry[0:4], allocTag)
	putU32(entry[4:8], id)
	putU32(entry[8:12], size)
	putU32(entry[12:16], uint32(space))
	putU32(entry[16:20], stacktraceID)
	t.curPos += allocInfoSize

	t.curAllocs[addr] = allocRecord{id: id}
}

// TrackFree records the release of addr, which must have a matching
// prior TrackAlloc. A nil addr is ignored.
func (t *Tracker) TrackFree(addr uintptr) {
	if addr == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.curAllocs[addr]
	if !ok {
		return
	}

	delete(t.curAllocs, addr)

	t.ensureCapacity(freeInfoSize)

	entry := t.curArena[t.curPos : t.curPos+freeInfoSize]
	putU32(entry[0:4], freeTag)
	putU32(entry[4:8], rec.id)
	t.curPos += freeInfoSize
}

// stackKey is a comparable dedup key over a raw PC stacktrace.
func stackKey(stack []uintptr) string {
	buf := make([]byte, len(stack)*8)
	for i, pc := range stack {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(pc))
	}

	return string(buf)
}

func formatStack(stack []uintptr) string {
	if len(stack) == 0 {
		return ""
	}

	frames := runtime.CallersFrames(stack)

	var buf bytes.Buffer

	for {
		frame, more := frames.Next()

		buf.WriteString(frame.Function)
		buf.WriteByte('\n')

		if !more {
			break
		}
	}

	return buf.String()
}

func writeU32(out io.Writer, v uint32) error {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], v)
	_, err := out.Write(b[:])

	return err
}

func writeString(out io.Writer, s string) error {
	if err := writeU32(out, uint32(len(s))); err != nil {
		return err
	}

	_, err := io.WriteString(out, s)

	return err
}

// writeStacks writes the deduplicated stack-trace strings and returns
// (count, idMap) mapping each original stacktrace index to its
// deduplicated id, mirroring DetailAllocTracker::WriteStacks.
func (t *Tracker) writeStacks(out io.Writer) (uint32, map[uint32]uint32, error) {
	dedup := make(map[string]uint32)
	idMap := make(map[uint32]uint32, len(t.stacktraces))

	var nextID uint32

	for i, stack := range t.stacktraces {
		key := stackKey(stack)

		id, ok := dedup[key]
		if !ok {
			id = nextID
			dedup[key] = id
			nextID++

			if err := writeString(out, formatStack(stack)); err != nil {
				return 0, nil, err
			}
		}

		idMap[uint32(i)] = id
	}

	return nextID, idMap, nil
}

// Dump writes the full binary dump (header, deduplicated stacks, then
// every ALLOC/FREE entry across all arenas in order) to out, per
// spec.md §6's layout.
func (t *Tracker) Dump(out io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer

	if err := writeU32(&buf, 0); err != nil {
		return err
	}

	if err := writeU32(&buf, 0); err != nil {
		return err
	}

	numStacks, idMap, err := t.writeStacks(&buf)
	if err != nil {
		return err
	}

	var numItems uint32

	for _, arena := range t.arenas {
		pos := 0

	scanArena:
		for pos+4 <= arenaSize {
			tag := binary.LittleEndian.Uint32(arena[pos : pos+4])
			if tag == 0 {
				break
			}

			switch tag {
			case allocTag:
				if pos+allocInfoSize > arenaSize {
					break scanArena
				}

				id := binary.LittleEndian.Uint32(arena[pos+4 : pos+8])
				size := binary.LittleEndian.Uint32(arena[pos+8 : pos+12])
				space := binary.LittleEndian.Uint32(arena[pos+12 : pos+16])
				stID := binary.LittleEndian.Uint32(arena[pos+16 : pos+20])

				if err := writeU32(&buf, allocTag); err != nil {
					return err
				}

				if err := writeU32(&buf, id); err != nil {
					return err
				}

				if err := writeU32(&buf, size); err != nil {
					return err
				}

				if err := writeU32(&buf, space); err != nil {
					return err
				}

				if err := writeU32(&buf, idMap[stID]); err != nil {
					return err
				}

				pos += allocInfoSize
			case freeTag:
				if pos+freeInfoSize > arenaSize {
					break scanArena
				}

				allocID := binary.LittleEndian.Uint32(arena[pos+4 : pos+8])

				if err := writeU32(&buf, freeTag); err != nil {
					return err
				}

				if err := writeU32(&buf, allocID); err != nil {
					return err
				}

				pos += freeInfoSize
			default:
				break scanArena
			}

			numItems++
		}
	}

	header := buf.Bytes()
	binary.LittleEndian.PutUint32(header[0:4], numItems)
	binary.LittleEndian.PutUint32(header[4:8], numStacks)

	_, err = out.Write(header)

	return err
}
