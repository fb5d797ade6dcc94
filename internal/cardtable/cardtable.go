// Package cardtable implements the fixed-granularity write-barrier card
// table (component C3): a byte array mapping heap addresses to one of
// {clear, marked, processed}, mutated with relaxed atomics and read back
// by the generational and G1 collectors during remembered-set scans.
package cardtable

import (
	"sync/atomic"
)

const (
	// CardShift is log2(CardSize); addr>>CardShift gives the card index.
	CardShift = 12
	// CardSize is the granularity of a single card: 4 KiB.
	CardSize = 1 << CardShift
)

// Card states, stored one byte per card.
const (
	Clear uint8 = iota
	Marked
	Processed
)

// VisitFlag controls which cards VisitMarked visits and whether it
// promotes them, mirroring CardTableProcessedFlag in the original.
type VisitFlag uint32

const (
	VisitMarkedFlag VisitFlag = 1 << iota
	VisitProcessedFlag
	SetProcessedFlag
)

// MemRange is an inclusive-exclusive byte range [Begin, End).
type MemRange struct {
	Begin uintptr
	End   uintptr
}

func (r MemRange) Contains(addr uintptr) bool {
	return addr >= r.Begin && addr < r.End
}

// CardTable covers [minAddr, minAddr+len(cards)*CardSize).
type CardTable struct {
	cards    []uint8
	minAddr  uintptr
	maxAddr  uintptr
	numCards int
}

// New builds a card table covering size bytes starting at minAddr. size is
// rounded up to a multiple of CardSize.
func New(minAddr uintptr, size uintptr) *CardTable {
	numCards := int((size + CardSize - 1) / CardSize)
	if numCards == 0 {
		numCards = 1
	}

	return &CardTable{
		cards:    make([]uint8, numCards),
		minAddr:  minAddr,
		maxAddr:  minAddr + uintptr(numCards)*CardSize,
		numCards: numCards,
	}
}

func (c *CardTable) cardIndex(addr uintptr) int {
	return int((addr - c.minAddr) >> CardShift)
}

// MinAddress and CardBits expose the operands the JIT barrier emitter
// needs to inline immediates (spec.md §4.10: "the runtime looks up
// operands by name").
func (c *CardTable) MinAddress() uintptr { return c.minAddr }
func (c *CardTable) CardBits() uint      { return CardShift }
func (c *CardTable) Base() *uint8        { return &c.cards[0] }

// CardsCount returns the number of cards covered.
func (c *CardTable) CardsCount() int { return c.numCards }

func (c *CardTable) cardAt(idx int) *uint8 {
	return &c.cards[idx]
}

// MarkCard sets the card containing addr to Marked.
func (c *CardTable) MarkCard(addr uintptr) {
	idx := c.cardIndex(addr)
	atomic.StoreUint8(c.cardAt(idx), Marked)
}

// ClearCard sets the card containing addr to Clear.
func (c *CardTable) ClearCard(addr uintptr) {
	idx := c.cardIndex(addr)
	atomic.StoreUint8(c.cardAt(idx), Clear)
}

// IsMarked reports whether the card containing addr is Marked.
func (c *CardTable) IsMarked(addr uintptr) bool {
	idx := c.cardIndex(addr)
	return atomic.LoadUint8(c.cardAt(idx)) == Marked
}

// IsClear reports whether the card containing addr is Clear.
func (c *CardTable) IsClear(addr uintptr) bool {
	idx := c.cardIndex(addr)
	return atomic.LoadUint8(c.cardAt(idx)) == Clear
}

// ClearAll clears every card.
func (c *CardTable) ClearAll() {
	for i := range c.cards {
		atomic.StoreUint8(&c.cards[i], Clear)
	}
}

// ClearCardRange clears the cards covering [begin, end). begin must be
// card-aligned, matching the original's contract.
func (c *CardTable) ClearCardRange(begin, end uintptr) {
	startIdx := c.cardIndex(begin)
	count := int((end - begin) / CardSize)

	for i := 0; i < count; i++ {
		atomic.StoreUint8(c.cardAt(startIdx+i), Clear)
	}
}

// GetCardStartAddress returns the address of the first byte of the card at idx.
func (c *CardTable) GetCardStartAddress(idx int) uintptr {
	return c.minAddr + uintptr(idx)*CardSize
}

// GetCardEndAddress returns the address one past the last byte of the card at idx.
func (c *CardTable) GetCardEndAddress(idx int) uintptr {
	return c.GetCardStartAddress(idx) + CardSize
}

// GetMemoryRange returns the MemRange covered by the card at idx.
func (c *CardTable) GetMemoryRange(idx int) MemRange {
	return MemRange{Begin: c.GetCardStartAddress(idx), End: c.GetCardEndAddress(idx)}
}

// CardVisitor is invoked for each card matching the requested VisitFlag
// during VisitMarked. Returning true requests the card be re-marked
// (kept Marked) even if SetProcessedFlag was requested.
type CardVisitor func(r MemRange) (remark bool)

// VisitMarked scans the byte array and visits every card whose state
// matches flags (VisitMarkedFlag and/or VisitProcessedFlag). If
// SetProcessedFlag is set, visited Marked cards are promoted to Processed
// unless the visitor requests a remark.
func (c *CardTable) VisitMarked(visitor CardVisitor, flags VisitFlag) {
	wantMarked := flags&VisitMarkedFlag != 0
	wantProcessed := flags&VisitProcessedFlag != 0
	setProcessed := flags&SetProcessedFlag != 0

	for i := 0; i < c.numCards; i++ {
		state := atomic.LoadUint8(c.cardAt(i))

		visit := (state == Marked && wantMarked) || (state == Processed && wantProcessed)
		if !visit {
			continue
		}

		remark := visitor(c.GetMemoryRange(i))

		if setProcessed && state == Marked && !remark {
			atomic.StoreUint8(c.cardAt(i), Processed)
		}
	}
}
