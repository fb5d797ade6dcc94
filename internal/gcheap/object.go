// Package gcheap implements the region-organized object heap (components
// C1 and C2): fixed-size aligned Regions carved from a RegionPool, the
// bump-pointer and TLAB allocation protocols, and cross-region
// compaction. It is grounded on internal/runtime/region_alloc.go and
// internal/runtime/block_manager.go's RegionSize/BlockFlag conventions in
// the teacher repo, generalized from a GC-less arena allocator into a
// movable, mark-and-sweep-aware heap.
package gcheap

import (
	"sync/atomic"

	"github.com/orizon-lang/orizon-gc/internal/remset"
)

// MarkWord packs an object's GC state the way spec.md §3 describes:
// {default, marked-for-GC, forwarded-to(addr), hashed, locked}. The low 3
// bits carry the state tag; for StateForwarded the remaining bits (shifted
// left by 3) carry the forwarding address.
type MarkWord uint64

const markWordStateMask MarkWord = 0x7

const (
	StateDefault MarkWord = iota
	StateMarked
	StateForwarded
	StateHashed
	StateLocked
)

// State extracts the state tag from a mark word.
func (m MarkWord) State() MarkWord { return m & markWordStateMask }

// ForwardAddress extracts the forwarding address; only meaningful when
// State() == StateForwarded.
func (m MarkWord) ForwardAddress() uintptr { return uintptr(m >> 3) }

// EncodeForwarded builds a mark word recording that an object was moved to addr.
func EncodeForwarded(addr uintptr) MarkWord {
	return MarkWord(addr<<3) | StateForwarded
}

// EncodeMarked builds a mark word recording that an object was visited by
// the current mark phase.
func EncodeMarked() MarkWord { return StateMarked }

// ClassInfo is the minimal per-class metadata the GC core needs: how big
// an instance is and whether it might hold pointers at all (used to skip
// scanning primitive arrays). Field-level traversal is delegated to an
// ObjectModel, never encoded on ClassInfo itself, per the Design Notes
// ("dynamic dispatch over language contexts" -> a trait passed by
// reference, never named by the core).
type ClassInfo struct {
	Name        string
	Size        uintptr
	HasPointers bool
}

// Object is the opaque object-header contract spec.md §3 requires of the
// core: a class pointer (for size/layout) and an atomic mark word with
// the IsForwarded/SetForwardAddress protocol. The concrete object layout
// belongs to the language runtime (out of scope); this interface is the
// entire surface the core depends on.
type Object interface {
	Address() uintptr
	ClassInfo() *ClassInfo

	MarkWord() MarkWord
	CASMarkWord(old, new MarkWord) bool
	StoreMarkWord(MarkWord)
}

// IsForwarded reports whether obj has already been relocated by a
// copying/compacting phase.
func IsForwarded(obj Object) bool {
	return obj.MarkWord().State() == StateForwarded
}

// ForwardAddress returns the address obj was relocated to. It does not
// check the state tag: for an object that is not forwarded the result is
// meaningless, so callers check IsForwarded first.
func ForwardAddress(obj Object) uintptr {
	return obj.MarkWord().ForwardAddress()
}

// SetForwardAddress installs a forwarding pointer in obj's mark word.
func SetForwardAddress(obj Object, dst uintptr) {
	obj.StoreMarkWord(EncodeForwarded(dst))
}

// ObjectModel is the per-language trait the core traverses objects
// through (Design Notes: "Dynamic dispatch over language contexts...
// express as a trait passed by reference into the GC core. The core
// never names a language.").
type ObjectModel interface {
	// Size returns the number of bytes obj occupies, including any header.
	Size(obj Object) uintptr
	// ForEachReference invokes fn for every reference field of obj, passing
	// the field's own address (for barrier/remset bookkeeping) and the
	// referent (nil if the field is currently null).
	ForEachReference(obj Object, fn func(fieldAddr uintptr, referent Object))
}

// AtomicObject is a minimal concrete Object used by tests and by callers
// that have no richer header of their own.
type AtomicObject struct {
	addr  uintptr
	class *ClassInfo
	word  uint64
}

// NewAtomicObject creates an AtomicObject at addr, described by class.
func NewAtomicObject(addr uintptr, class *ClassInfo) *AtomicObject {
	return &AtomicObject{addr: addr, class: class}
}

func (o *AtomicObject) Address() uintptr      { return o.addr }
func (o *AtomicObject) ClassInfo() *ClassInfo { return o.class }
func (o *AtomicObject) MarkWord() MarkWord    { return MarkWord(atomic.LoadUint64(&o.word)) }

func (o *AtomicObject) CASMarkWord(old, new MarkWord) bool {
	return atomic.CompareAndSwapUint64(&o.word, uint64(old), uint64(new))
}

func (o *AtomicObject) StoreMarkWord(w MarkWord) {
	atomic.StoreUint64(&o.word, uint64(w))
}

// regionKey converts a gcheap RegionID into the identifier type the
// remset package uses, keeping the two packages decoupled per the Design
// Notes' arena+index pattern.
func regionKey(id RegionID) remset.RegionID { return remset.RegionID(id) }
