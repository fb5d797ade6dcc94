package refstorage

import (
	"sync"

	gcerrors "github.com/orizon-lang/orizon-gc/internal/errors"
)

// defaultMaxBlocks caps a thread's total local-frame memory at 128 MiB of
// refBlockAlign-sized blocks, per spec.md §4.7.
const defaultMaxBlocks = (128 * 1024 * 1024) / refBlockAlign

// LocalFrameStorage is the per-thread local reference frame stack of
// spec.md §4.7: a vector of RefBlock pointers, pushed/popped in lexical
// scopes, with one block cached for ping-pong reuse between a pop and
// the next push.
type LocalFrameStorage struct {
	mu sync.Mutex

	blocks blockAllocator

	chain      []*refBlock
	frameMarks []int

	byAddr map[uintptr]*refBlock

	cached *refBlock

	maxBlocks   int
	totalBlocks int
}

// NewLocalFrameStorage creates an empty local frame storage.
func NewLocalFrameStorage() *LocalFrameStorage {
	return &LocalFrameStorage{
		byAddr:    make(map[uintptr]*refBlock),
		maxBlocks: defaultMaxBlocks,
	}
}

// PushLocalFrame validates capacity against the remaining block budget,
// then appends a fresh, reset RefBlock and records the frame boundary.
func (s *LocalFrameStorage) PushLocalFrame(capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	needed := (capacity + refBlockSlotCount - 1) / refBlockSlotCount
	if needed < 1 {
		needed = 1
	}

	if s.totalBlocks+needed > s.maxBlocks {
		return gcerrors.OutOfMemory(uintptr(needed*refBlockAlign), "LocalFrameStorage")
	}

	s.frameMarks = append(s.frameMarks, len(s.chain))
	s.chain = append(s.chain, s.takeBlock())

	return nil
}

// takeBlock returns the cached block if present, else allocates a new one.
func (s *LocalFrameStorage) takeBlock() *refBlock {
	var b *refBlock

	if s.cached != nil {
		b = s.cached
		s.cached = nil
		b.reset()
	} else {
		b = newRefBlock(s.blocks.alloc())
		s.totalBlocks++
	}

	s.byAddr[b.baseAddr] = b

	return b
}

func (s *LocalFrameStorage) releaseBlock(b *refBlock) {
	delete(s.byAddr, b.baseAddr)

	if s.cached == nil {
		s.cached = b
		return
	}

	s.totalBlocks--
}

// PopLocalFrame releases every block pushed since the matching
// PushLocalFrame, re-registering the object referenced by result (if
// any) into the now-top frame so it survives the pop, and returns the
// new reference for it (or the zero Reference if result was nil/non-local).
func (s *LocalFrameStorage) PopLocalFrame(result *Reference) Reference {
	s.mu.Lock()

	if len(s.frameMarks) == 0 {
		s.mu.Unlock()
		panic("refstorage: PopLocalFrame with no active frame")
	}

	mark := s.frameMarks[len(s.frameMarks)-1]
	s.frameMarks = s.frameMarks[:len(s.frameMarks)-1]

	var survivor uintptr

	if result != nil && result.IsLocal() {
		survivor = s.getLocked(*result)
	}

	for i := mark; i < len(s.chain); i++ {
		s.releaseBlock(s.chain[i])
	}

	s.chain = s.chain[:mark]

	s.mu.Unlock()

	if survivor == 0 {
		return 0
	}

	return s.NewLocalRef(survivor)
}

// NewLocalRef places payload into the tail block of the current frame,
// allocating and chaining a new block if the tail is full.
func (s *LocalFrameStorage) NewLocalRef(payload uintptr) Reference {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.chain) == 0 {
		panic("refstorage: NewLocalRef with no active frame")
	}

	tail := s.chain[len(s.chain)-1]

	if idx, ok := tail.tryAlloc(payload); ok {
		return encodeAddr(KindLocal, tail.slotAddr(idx))
	}

	fresh := newRefBlock(s.blocks.alloc())
	s.totalBlocks++
	s.byAddr[fresh.baseAddr] = fresh
	s.chain = append(s.chain, fresh)

	idx, _ := fresh.tryAlloc(payload)

	return encodeAddr(KindLocal, fresh.slotAddr(idx))
}

func (s *LocalFrameStorage) blockFor(ref Reference) (*refBlock, int, bool) {
	addr := decodeAddr(ref)
	base := blockBase(addr)

	b, ok := s.byAddr[base]
	if !ok {
		return nil, 0, false
	}

	idx := b.slotIndex(addr)
	if idx < 0 || idx >= refBlockSlotCount {
		return nil, 0, false
	}

	return b, idx, true
}

// RemoveRef clears a LOCAL reference's slot. Removing a reference that
// does not belong to any managed block is a no-op (spec.md §7:
// "Incorrect reference usage... logged at WARNING, no-op").
func (s *LocalFrameStorage) RemoveRef(ref Reference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, idx, ok := s.blockFor(ref)
	if !ok || !b.isBusy(idx) {
		return false
	}

	b.free(idx)

	return true
}

// GetObject returns the payload stored at ref, or 0 if ref does not
// refer to a currently busy slot.
func (s *LocalFrameStorage) GetObject(ref Reference) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getLocked(ref)
}

func (s *LocalFrameStorage) getLocked(ref Reference) uintptr {
	b, idx, ok := s.blockFor(ref)
	if !ok || !b.isBusy(idx) {
		return 0
	}

	return b.slots[idx]
}

// SetObject overwrites the payload stored at ref, used by
// UpdateMovedRefs to install forwarded addresses.
func (s *LocalFrameStorage) SetObject(ref Reference, payload uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, idx, ok := s.blockFor(ref)
	if !ok || !b.isBusy(idx) {
		return false
	}

	b.slots[idx] = payload

	return true
}

// IsValidRef reports whether ref names a busy slot inside a block this
// storage currently manages.
func (s *LocalFrameStorage) IsValidRef(ref Reference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, idx, ok := s.blockFor(ref)
	return ok && b.isBusy(idx)
}

// ForEachBusy invokes fn for every currently busy slot across every
// block in every active frame, passing its Reference and payload. Used
// by UpdateMovedRefs; fn returns the new payload to store (unchanged if
// it returns the same value) and whether the slot should remain busy.
func (s *LocalFrameStorage) ForEachBusy(fn func(ref Reference, payload uintptr) (newPayload uintptr, keep bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.chain {
		for i := 0; i < refBlockSlotCount; i++ {
			if !b.isBusy(i) {
				continue
			}

			ref := encodeAddr(KindLocal, b.slotAddr(i))

			newPayload, keep := fn(ref, b.slots[i])
			if !keep {
				b.free(i)
				continue
			}

			b.slots[i] = newPayload
		}
	}
}
