package barrier

import (
	"sync/atomic"

	"github.com/orizon-lang/orizon-gc/internal/cardtable"
)

// GenBarrierSet is the generational collector's barrier set: a SATB
// pre-barrier and a card-marking post-barrier, grounded on
// gc_barrier_set.cpp's GCGenBarrierSet.
type GenBarrierSet struct {
	cardTable         *cardtable.CardTable
	concurrentMarking *atomic.Bool
	preStore          PreStoreFunc
}

// NewGenBarrierSet builds a GenBarrierSet over cardTable, enqueuing
// overwritten references into preStore while concurrentMarking is set.
func NewGenBarrierSet(cardTable *cardtable.CardTable, concurrentMarking *atomic.Bool, preStore PreStoreFunc) *GenBarrierSet {
	return &GenBarrierSet{cardTable: cardTable, concurrentMarking: concurrentMarking, preStore: preStore}
}

func (b *GenBarrierSet) PreBarrier(_ uintptr, preVal uintptr) {
	PreSATBBarrier(b.concurrentMarking, b.preStore, preVal)
}

func (b *GenBarrierSet) PostBarrier(objAddr uintptr, _ uintptr) {
	PostIntergenerationalBarrier(b.cardTable, objAddr)
}

func (b *GenBarrierSet) PostBarrierArrayWrite(objAddr uintptr, size uintptr) {
	PostIntergenerationalBarrierInRange(b.cardTable, objAddr, size)
}

// PostBarrierEveryObjectFieldWrite treats every field in the written
// range as a potential object reference, per the original's comment
// that a precise per-field reference check would cost more than the
// conservative card mark saves.
func (b *GenBarrierSet) PostBarrierEveryObjectFieldWrite(objAddr uintptr, size uintptr) {
	PostIntergenerationalBarrierInRange(b.cardTable, objAddr, size)
}

func (b *GenBarrierSet) Operand(name string) (Operand, bool) {
	switch name {
	case "card_table_addr":
		return Operand{Name: name, Value: ptrOf(b.cardTable.Base())}, true
	case "min_addr":
		return Operand{Name: name, Value: b.cardTable.MinAddress()}, true
	case "card_bits":
		return Operand{Name: name, Value: uintptr(b.cardTable.CardBits())}, true
	case "dirty_card_value":
		return Operand{Name: name, Value: uintptr(cardtable.Marked)}, true
	default:
		return Operand{}, false
	}
}
