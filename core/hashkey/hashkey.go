// Package hashkey derives deterministic integer digests from fixed-length
// chain identifiers so they can be used as keys in hash sets and maps.
// Composite keys fold each component into the digest with an order-sensitive
// combining step, so swapping components changes the result.
package hashkey

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Sum hashes an arbitrary byte identifier.
func Sum(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Combine folds h into seed. Non-commutative: Combine(a, b) != Combine(b, a)
// except by coincidence.
func Combine(seed, h uint64) uint64 {
	return seed ^ (h + 0x9e3779b97f4a7c15 + (seed << 12) + (seed >> 4))
}

// CombineUint folds an auxiliary integer (an output index, a timestamp) into
// seed by hashing its fixed-width encoding first.
func CombineUint(seed uint64, v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return Combine(seed, xxhash.Sum64(buf[:]))
}

// Hash160 digests a 160-bit identifier.
func Hash160(id common.Address) uint64 {
	return Sum(id[:])
}

// Hash256 digests a 256-bit identifier.
func Hash256(id common.Hash) uint64 {
	return Sum(id[:])
}

// Tuple digests a (160-bit, 256-bit) composite identifier.
func Tuple(a common.Address, h common.Hash) uint64 {
	return Combine(Sum(a[:]), Sum(h[:]))
}

// OutpointIndex digests a (256-bit transaction id, output index) pair.
func OutpointIndex(txid common.Hash, index uint32) uint64 {
	return CombineUint(Sum(txid[:]), uint64(index))
}
