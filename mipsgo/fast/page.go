package fast

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Note: 2**12 = 4 KiB, the Linux/MIPS page size.
const (
	PageAddrSize = 12
	PageKeySize  = 32 - PageAddrSize
	PageSize     = 1 << PageAddrSize
	PageAddrMask = PageSize - 1
	MaxPageCount = 1 << PageKeySize
	PageKeyMask  = MaxPageCount - 1
)

type Page [PageSize]byte

func (p *Page) MarshalJSON() ([]byte, error) {
	dat := make([]byte, base64.StdEncoding.EncodedLen(len(p)))
	base64.StdEncoding.Encode(dat, p[:])
	return json.Marshal(string(dat))
}

func (p *Page) UnmarshalJSON(dat []byte) error {
	var s string
	if err := json.Unmarshal(dat, &s); err != nil {
		return err
	}
	if n := base64.StdEncoding.DecodedLen(len(s)); n < PageSize {
		return fmt.Errorf("bad page size: %d", n)
	}
	if _, err := base64.StdEncoding.Decode(p[:], []byte(s)); err != nil {
		return fmt.Errorf("failed to decode page: %w", err)
	}
	return nil
}

// CachedPage is a page with a merkle sub-tree cache:
// the page contains 128 leaf nodes of 32 bytes each,
// and the cache spans the binary tree over them,
// indexed by generalized index (i.e. cache[1] is the page root).
type CachedPage struct {
	Data *Page
	// intermediate nodes only
	Cache [PageSize / 32][32]byte
	// true if the intermediate node is valid
	Ok [PageSize / 32]bool
}

func (p *CachedPage) Invalidate(pageAddr uint32) {
	if pageAddr >= PageSize {
		panic("invalid page addr")
	}
	k := (1 << PageAddrSize) | pageAddr
	// first cache layer caches nodes that has two 32 byte leaf nodes.
	k >>= 5 + 1
	for k > 0 {
		p.Ok[k] = false
		k >>= 1
	}
}

func (p *CachedPage) InvalidateFull() {
	p.Ok = [PageSize / 32]bool{} // reset everything to invalid
}

func (p *CachedPage) MerkleRoot() [32]byte {
	// hash the bottom layer
	for i := uint64(0); i < PageSize; i += 64 {
		j := PageSize/32/2 + i/64
		if p.Ok[j] {
			continue
		}
		p.Cache[j] = HashPair(
			*(*[32]byte)(p.Data[i:]),
			*(*[32]byte)(p.Data[i+32:]))
		p.Ok[j] = true
	}

	// hash the cache layers
	for i := PageSize/32 - 2; i > 0; i -= 2 {
		j := uint64(i) >> 1
		if p.Ok[j] {
			continue
		}
		p.Cache[j] = HashPair(p.Cache[i], p.Cache[i+1])
		p.Ok[j] = true
	}

	return p.Cache[1]
}

func (p *CachedPage) MerkleizeSubtree(gindex uint64) [32]byte {
	_ = p.MerkleRoot() // fill cache
	if gindex >= PageSize/32 {
		if gindex >= PageSize/32*2 {
			panic("gindex too deep")
		}
		// it's pointing to a bottom node
		nodeIndex := gindex & (PageAddrMask >> 5)
		return *(*[32]byte)(p.Data[nodeIndex*32 : nodeIndex*32+32])
	}
	return p.Cache[gindex]
}
