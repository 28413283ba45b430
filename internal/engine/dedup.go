package engine

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/IshaanNene/postharvest/internal/types"
)

// BlockSet tracks the post blocks collected for one query. Two blocks are the
// same post iff their serialized markup is byte-identical. A BlockSet is owned
// by a single scroll loop and is not safe for concurrent use.
type BlockSet struct {
	seen   map[string]struct{}
	blocks []types.PostBlock
}

// NewBlockSet creates an empty BlockSet.
func NewBlockSet() *BlockSet {
	return &BlockSet{seen: make(map[string]struct{})}
}

// Add merges a snapshot into the set and returns the blocks that were not
// seen before, in snapshot order.
func (s *BlockSet) Add(snapshot []types.PostBlock) []types.PostBlock {
	var added []types.PostBlock
	for _, b := range snapshot {
		key := hashBlock(b)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.blocks = append(s.blocks, b)
		added = append(added, b)
	}
	return added
}

// Len returns the number of distinct blocks collected.
func (s *BlockSet) Len() int {
	return len(s.blocks)
}

// Blocks returns the collected blocks in first-seen order.
func (s *BlockSet) Blocks() []types.PostBlock {
	out := make([]types.PostBlock, len(s.blocks))
	copy(out, s.blocks)
	return out
}

func hashBlock(b types.PostBlock) string {
	h := sha256.Sum256([]byte(b))
	return hex.EncodeToString(h[:])
}
