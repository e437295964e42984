package core

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"nyxchain/storage"
)

// indexPrefix keys persisted block-index entries by big-endian height so
// iteration yields the chain in order.
var indexPrefix = []byte("idx/")

const indexEntrySize = 32 + 32 + 4

// BlockNode is one entry of the in-memory block index, linked to its
// predecessor through the previous-block back-reference.
type BlockNode struct {
	Hash   common.Hash
	Prev   common.Hash
	Height int32
	Time   uint32

	prevNode *BlockNode
}

// PrevNode returns the predecessor, nil at genesis.
func (n *BlockNode) PrevNode() *BlockNode { return n.prevNode }

// BlockIndex is the in-memory view of the persisted chain.
type BlockIndex struct {
	byHash  map[common.Hash]*BlockNode
	genesis *BlockNode
	best    *BlockNode
}

// LoadBlockIndex reads the whole persisted block index into memory and links
// the entries. An empty store yields an empty index (a fresh node); a store
// that cannot be read is fatal.
func LoadBlockIndex(db storage.Database) (*BlockIndex, error) {
	idx := &BlockIndex{byHash: make(map[common.Hash]*BlockNode)}

	err := db.Iterate(indexPrefix, func(key, value []byte) error {
		if len(key) != len(indexPrefix)+8 || len(value) != indexEntrySize {
			return fmt.Errorf("malformed index entry %x", key)
		}
		node := &BlockNode{Height: int32(binary.BigEndian.Uint64(key[len(indexPrefix):]))}
		copy(node.Hash[:], value[:32])
		copy(node.Prev[:], value[32:64])
		node.Time = binary.BigEndian.Uint32(value[64:])
		idx.byHash[node.Hash] = node
		if idx.best == nil || node.Height > idx.best.Height {
			idx.best = node
		}
		if node.Height == 0 {
			idx.genesis = node
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrIndexUnavailable, err)
	}

	for _, node := range idx.byHash {
		if node.Height > 0 {
			prev, ok := idx.byHash[node.Prev]
			if !ok {
				return nil, fmt.Errorf("%w: block %s at height %d references unknown parent %s",
					storage.ErrIndexUnavailable, node.Hash, node.Height, node.Prev)
			}
			node.prevNode = prev
		}
	}
	return idx, nil
}

// WriteIndexEntry persists one block-index entry.
func WriteIndexEntry(db storage.Database, node *BlockNode) error {
	key := make([]byte, len(indexPrefix)+8)
	copy(key, indexPrefix)
	binary.BigEndian.PutUint64(key[len(indexPrefix):], uint64(node.Height))
	value := make([]byte, indexEntrySize)
	copy(value[:32], node.Hash[:])
	copy(value[32:64], node.Prev[:])
	binary.BigEndian.PutUint32(value[64:], node.Time)
	return db.Put(key, value)
}

// Best returns the current best block, nil on a fresh chain.
func (idx *BlockIndex) Best() *BlockNode { return idx.best }

// Genesis returns the genesis entry, nil on a fresh chain.
func (idx *BlockIndex) Genesis() *BlockNode { return idx.genesis }

// ByHash looks up a block by hash.
func (idx *BlockIndex) ByHash(h common.Hash) *BlockNode { return idx.byHash[h] }

// Len reports the number of indexed blocks.
func (idx *BlockIndex) Len() int { return len(idx.byHash) }

// RescanStart determines where wallet history reconciliation begins: the
// genesis block when a full rescan was forced, otherwise the wallet's last
// persisted checkpoint, falling back to genesis when the wallet has none.
// The start point is never above the wallet checkpoint.
func (idx *BlockIndex) RescanStart(walletBest common.Hash, haveCheckpoint, forceFull bool) *BlockNode {
	if forceFull {
		return idx.genesis
	}
	if haveCheckpoint {
		if node := idx.byHash[walletBest]; node != nil {
			return node
		}
	}
	return idx.genesis
}

// RescanSpan is the number of blocks between the rescan start and the best
// block. Zero when no rescan is needed; never negative.
func (idx *BlockIndex) RescanSpan(start *BlockNode) int32 {
	if idx.best == nil || start == nil || idx.best == start {
		return 0
	}
	if span := idx.best.Height - start.Height; span > 0 {
		return span
	}
	return 0
}
