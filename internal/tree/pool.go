package tree

import (
	"fmt"
	"sort"

	"golang.org/x/crypto/blake2b"
)

type blob struct {
	data   []byte
	digest [blake2b.Size256]byte
	refs   int
}

// Pool is the container-wide store of attachment contents.
// Blobs are addressed by id, deduplicated by content and reference counted by attachments.
type Pool struct {
	blobs    map[uint32]*blob
	byDigest map[[blake2b.Size256]byte]uint32
	next     uint32
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{
		blobs:    make(map[uint32]*blob),
		byDigest: make(map[[blake2b.Size256]byte]uint32),
	}
}

// Add stores data and takes one reference on it. Identical contents share an id.
func (p *Pool) Add(data []byte) uint32 {
	digest := blake2b.Sum256(data)
	if id, ok := p.byDigest[digest]; ok {
		p.blobs[id].refs++
		return id
	}

	id := p.next
	p.next++
	p.blobs[id] = &blob{data: append([]byte(nil), data...), digest: digest, refs: 1}
	p.byDigest[digest] = id
	return id
}

// Restore inserts a blob under a known id without taking a reference.
// Used when loading a container; call Prune once all attachments are retained.
func (p *Pool) Restore(id uint32, data []byte) error {
	if _, ok := p.blobs[id]; ok {
		return fmt.Errorf("duplicate blob id %d", id)
	}
	digest := blake2b.Sum256(data)
	p.blobs[id] = &blob{data: data, digest: digest}
	if _, ok := p.byDigest[digest]; !ok {
		p.byDigest[digest] = id
	}
	if id >= p.next {
		p.next = id + 1
	}
	return nil
}

// Retain takes a reference on an existing blob.
func (p *Pool) Retain(id uint32) error {
	b, ok := p.blobs[id]
	if !ok {
		return fmt.Errorf("unknown blob id %d", id)
	}
	b.refs++
	return nil
}

// Release drops one reference and frees the blob when none remain.
func (p *Pool) Release(id uint32) {
	b, ok := p.blobs[id]
	if !ok {
		return
	}
	b.refs--
	if b.refs <= 0 {
		p.drop(id, b)
	}
}

// Prune frees every blob nothing refers to.
func (p *Pool) Prune() {
	for id, b := range p.blobs {
		if b.refs <= 0 {
			p.drop(id, b)
		}
	}
}

func (p *Pool) drop(id uint32, b *blob) {
	delete(p.blobs, id)
	if p.byDigest[b.digest] == id {
		delete(p.byDigest, b.digest)
	}
}

// Get returns a copy of the blob contents.
func (p *Pool) Get(id uint32) ([]byte, bool) {
	b, ok := p.blobs[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b.data...), true
}

// Refs returns the reference count of a blob, zero if unknown.
func (p *Pool) Refs(id uint32) int {
	if b, ok := p.blobs[id]; ok {
		return b.refs
	}
	return 0
}

// IDs returns all blob ids in ascending order.
func (p *Pool) IDs() []uint32 {
	ids := make([]uint32, 0, len(p.blobs))
	for id := range p.blobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of stored blobs.
func (p *Pool) Len() int {
	return len(p.blobs)
}
