package txlog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
)

// Domain-separation prefixes of RFC 6962 section 2.1.
const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// ErrInvalidProof is returned when an inclusion proof does not reproduce the root.
var ErrInvalidProof = errors.New("inclusion proof does not match root")

// LeafHash is the hash of a log entry.
func LeafHash(data []byte) []byte {
	h := sha256.New()
	h.Write([]byte{leafPrefix})
	h.Write(data)
	return h.Sum(nil)
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write([]byte{nodePrefix})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// Tree is an append-only Merkle tree over leaf hashes. It is not safe for concurrent use.
type Tree struct {
	leaves [][]byte
}

// NewTree builds a tree from already-computed leaf hashes.
func NewTree(leafHashes [][]byte) *Tree {
	t := &Tree{leaves: make([][]byte, 0, len(leafHashes))}
	for _, l := range leafHashes {
		t.leaves = append(t.leaves, append([]byte(nil), l...))
	}
	return t
}

// Size is the number of leaves.
func (t *Tree) Size() int64 {
	return int64(len(t.leaves))
}

// Append adds the hash of data as the next leaf and returns its zero-based index.
func (t *Tree) Append(data []byte) int64 {
	t.leaves = append(t.leaves, LeafHash(data))
	return int64(len(t.leaves) - 1)
}

// Root returns the tree head over the first size leaves.
func (t *Tree) Root(size int64) ([]byte, error) {
	if size < 0 || size > t.Size() {
		return nil, fmt.Errorf("tree size %d out of range [0, %d]", size, t.Size())
	}
	if size == 0 {
		h := sha256.Sum256(nil)
		return h[:], nil
	}
	return t.subtree(0, size), nil
}

// AuditPath returns the inclusion proof of leaf index in the tree of the first size leaves.
func (t *Tree) AuditPath(index, size int64) ([][]byte, error) {
	if size < 1 || size > t.Size() {
		return nil, fmt.Errorf("tree size %d out of range [1, %d]", size, t.Size())
	}
	if index < 0 || index >= size {
		return nil, fmt.Errorf("leaf index %d out of range [0, %d)", index, size)
	}
	return t.path(index, 0, size), nil
}

func (t *Tree) subtree(start, end int64) []byte {
	if end-start == 1 {
		return t.leaves[start]
	}
	k := splitPoint(end - start)
	return nodeHash(t.subtree(start, start+k), t.subtree(start+k, end))
}

func (t *Tree) path(m, start, end int64) [][]byte {
	n := end - start
	if n == 1 {
		return nil
	}
	k := splitPoint(n)
	if m < k {
		return append(t.path(m, start, start+k), t.subtree(start+k, end))
	}
	return append(t.path(m-k, start+k, end), t.subtree(start, start+k))
}

// splitPoint is the largest power of two strictly less than n, for n > 1.
func splitPoint(n int64) int64 {
	return int64(1) << (bits.Len64(uint64(n-1)) - 1)
}

// VerifyInclusion checks that leafHash sits at index in a tree of size with the given root,
// following RFC 9162 section 2.1.3.2.
func VerifyInclusion(leafHash []byte, index, size int64, path [][]byte, root []byte) error {
	if index < 0 || index >= size {
		return fmt.Errorf("leaf index %d out of range [0, %d): %w", index, size, ErrInvalidProof)
	}
	fn, sn := index, size-1
	r := leafHash
	for _, p := range path {
		if sn == 0 {
			return ErrInvalidProof
		}
		if fn&1 == 1 || fn == sn {
			r = nodeHash(p, r)
			if fn&1 == 0 {
				for fn&1 == 0 && fn != 0 {
					fn >>= 1
					sn >>= 1
				}
			}
		} else {
			r = nodeHash(r, p)
		}
		fn >>= 1
		sn >>= 1
	}
	if sn != 0 || !bytes.Equal(r, root) {
		return ErrInvalidProof
	}
	return nil
}

// EncodeHash and DecodeHash move hashes across the wire as lowercase hex.
func EncodeHash(h []byte) string {
	return hex.EncodeToString(h)
}

func DecodeHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("hash must be %d bytes, got %d", sha256.Size, len(b))
	}
	return b, nil
}

// EncodePath hex-encodes an audit path.
func EncodePath(path [][]byte) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[i] = EncodeHash(p)
	}
	return out
}

// DecodePath reverses EncodePath.
func DecodePath(path []string) ([][]byte, error) {
	out := make([][]byte, len(path))
	for i, p := range path {
		b, err := DecodeHash(p)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
