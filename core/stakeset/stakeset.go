// Package stakeset tracks proof-of-stake kernels that have already been seen,
// preventing a kernel from being reused across candidate blocks. One set holds
// kernels from the connected chain, another holds kernels from orphan
// candidates that may later be erased when the block connects or is discarded.
package stakeset

import (
	"github.com/ethereum/go-ethereum/common"

	"nyxchain/core/hashkey"
)

// OutPoint references a previously-unspent transaction output.
type OutPoint struct {
	TxID  common.Hash
	Index uint32
}

// Kernel is the (spent output, timestamp) combination that qualifies a block
// as proof-of-stake-mined. It must be unique per accepted chain.
type Kernel struct {
	PrevOut OutPoint
	Time    uint32
}

func (k Kernel) digest() uint64 {
	return hashkey.CombineUint(hashkey.OutpointIndex(k.PrevOut.TxID, k.PrevOut.Index), uint64(k.Time))
}

// Slot states are tagged explicitly rather than encoded as reserved key
// values, so a real kernel can never alias the empty or deleted marker.
type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotDeleted
)

type slot struct {
	state  slotState
	kernel Kernel
}

// KernelSet is an open-addressed hash set of stake kernels using linear
// probing. Not safe for concurrent use; callers serialise access.
type KernelSet struct {
	slots []slot
	used  int // occupied slots
	dirty int // occupied + deleted, drives rehash
}

const minCapacity = 64

// NewKernelSet returns an empty set.
func NewKernelSet() *KernelSet {
	return &KernelSet{slots: make([]slot, minCapacity)}
}

// Len reports the number of kernels in the set.
func (s *KernelSet) Len() int {
	return s.used
}

// Contains reports whether k has been recorded.
func (s *KernelSet) Contains(k Kernel) bool {
	_, found := s.probe(k)
	return found
}

// Add records k. Returns false if it was already present.
func (s *KernelSet) Add(k Kernel) bool {
	if s.dirty*4 >= len(s.slots)*3 {
		s.rehash()
	}
	i, found := s.probe(k)
	if found {
		return false
	}
	if s.slots[i].state == slotEmpty {
		s.dirty++
	}
	s.slots[i] = slot{state: slotOccupied, kernel: k}
	s.used++
	return true
}

// Remove erases k, leaving a deleted marker so later probes keep walking past
// the vacated slot. Returns false if k was not present.
func (s *KernelSet) Remove(k Kernel) bool {
	i, found := s.probe(k)
	if !found {
		return false
	}
	s.slots[i] = slot{state: slotDeleted}
	s.used--
	return true
}

// probe walks the table from the kernel's home slot. It returns the index of
// the kernel when found, otherwise the first insertable slot (a deleted slot
// encountered on the way, or the terminating empty slot).
func (s *KernelSet) probe(k Kernel) (int, bool) {
	mask := uint64(len(s.slots) - 1)
	i := k.digest() & mask
	insert := -1
	for {
		sl := &s.slots[i]
		switch sl.state {
		case slotEmpty:
			if insert >= 0 {
				return insert, false
			}
			return int(i), false
		case slotDeleted:
			if insert < 0 {
				insert = int(i)
			}
		case slotOccupied:
			if sl.kernel == k {
				return int(i), true
			}
		}
		i = (i + 1) & mask
	}
}

func (s *KernelSet) rehash() {
	size := len(s.slots)
	if s.used*2 >= size {
		size *= 2
	}
	old := s.slots
	s.slots = make([]slot, size)
	s.used = 0
	s.dirty = 0
	for i := range old {
		if old[i].state == slotOccupied {
			s.Add(old[i].kernel)
		}
	}
}
