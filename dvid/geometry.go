/*
	This file defines extents, channel orderings, and ROI spans used to
	describe n-d voxel requests.
*/

package dvid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultBlockSize is the edge length in voxels of the store's cubic blocks.
// Repos can be created with other block sizes but 32 is what every
// production store uses.
const DefaultBlockSize = 32

// MaxVoxelsPerRequest is the protocol ceiling on voxels moved in a single
// volume GET or PUT.
const MaxVoxelsPerRequest = math.MaxInt32 / 8

// Dims holds the extent of each axis of a volume request in voxel units,
// ordered by the request's channel order.  Rank must be 2 or 3 and every
// extent positive.
type Dims []uint32

// NewDims validates the given extents.
func NewDims(extents ...uint32) (Dims, error) {
	d := Dims(extents)
	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// Check verifies rank and positivity of extents.
func (d Dims) Check() error {
	if len(d) != 2 && len(d) != 3 {
		return fmt.Errorf("dims must be rank 2 or 3, got rank %d", len(d))
	}
	for i, extent := range d {
		if extent == 0 {
			return fmt.Errorf("dims[%d] must be positive", i)
		}
	}
	return nil
}

// Prod returns the number of voxels spanned by the extents.
func (d Dims) Prod() int64 {
	voxels := int64(1)
	for _, extent := range d {
		voxels *= int64(extent)
	}
	return voxels
}

// URIString returns the extents joined by the given separator, e.g. "512_256_128".
func (d Dims) URIString(separator string) string {
	elems := make([]string, len(d))
	for i, extent := range d {
		elems[i] = strconv.FormatUint(uint64(extent), 10)
	}
	return strings.Join(elems, separator)
}

// ChannelOrder is a permutation of axis indices giving the channel order of
// a volume request.  The zero-length order stands for the identity (X,Y,Z).
type ChannelOrder []uint8

// DefaultChannelOrder3d is the identity X,Y,Z ordering.
var DefaultChannelOrder3d = ChannelOrder{0, 1, 2}

// Check verifies the order is a permutation of 0..rank-1 with no repeats.
func (c ChannelOrder) Check(rank int) error {
	if len(c) != rank {
		return fmt.Errorf("channel order has %d axes for a rank-%d request", len(c), rank)
	}
	var seen [3]bool
	for _, axis := range c {
		if int(axis) >= rank {
			return fmt.Errorf("channel order axis %d exceeds rank %d", axis, rank)
		}
		if seen[axis] {
			return fmt.Errorf("channel order repeats axis %d", axis)
		}
		seen[axis] = true
	}
	return nil
}

// URIString returns the axes joined by the given separator, e.g. "0_1_2".
func (c ChannelOrder) URIString(separator string) string {
	elems := make([]string, len(c))
	for i, axis := range c {
		elems[i] = strconv.Itoa(int(axis))
	}
	return strings.Join(elems, separator)
}

// Offset is a signed voxel coordinate for the start of a volume request,
// with axes in the request's channel order.
type Offset []int32

// Check verifies the offset matches the rank of the paired dims.
func (o Offset) Check(rank int) error {
	if len(o) != rank {
		return fmt.Errorf("offset has %d axes for a rank-%d request", len(o), rank)
	}
	return nil
}

// URIString returns the coordinates joined by the given separator, e.g. "0_32_64".
func (o Offset) URIString(separator string) string {
	elems := make([]string, len(o))
	for i, coord := range o {
		elems[i] = strconv.FormatInt(int64(coord), 10)
	}
	return strings.Join(elems, separator)
}

// Span is one run of blocks along X, the store's run-length wire element
// for ROIs: (z, y, x0, x1) with both endpoints included.
type Span [4]int32

// Includes returns true if the block falls within this span.
func (s Span) Includes(block ChunkPoint3d) bool {
	if s[0] != block[2] {
		return false
	}
	if s[1] != block[1] {
		return false
	}
	if s[2] > block[0] || s[3] < block[0] {
		return false
	}
	return true
}

// Less returns true if this span sorts entirely before the block in the
// canonical (Z, Y, X) ordering.
func (s Span) Less(block ChunkPoint3d) bool {
	if s[0] > block[2] {
		return false
	}
	if s[0] < block[2] {
		return true
	}
	if s[1] > block[1] {
		return false
	}
	if s[1] < block[1] {
		return true
	}
	return s[3] < block[0]
}

// SpansFromBlocks run-length encodes a block set into maximal X runs,
// canonically ordered.  Duplicate blocks collapse into the same run, so
// encoding is idempotent over repeated posts.
func SpansFromBlocks(blocks []ChunkPoint3d) []Span {
	sorted := SortBlocks(blocks)
	var spans []Span
	for _, block := range sorted {
		n := len(spans)
		if n > 0 && spans[n-1][0] == block[2] && spans[n-1][1] == block[1] && spans[n-1][3] == block[0]-1 {
			spans[n-1][3] = block[0]
			continue
		}
		spans = append(spans, Span{block[2], block[1], block[0], block[0]})
	}
	return spans
}

// BlocksFromSpans expands runs into individual blocks in canonical order.
func BlocksFromSpans(spans []Span) []ChunkPoint3d {
	var blocks []ChunkPoint3d
	for _, span := range spans {
		for x := span[2]; x <= span[3]; x++ {
			blocks = append(blocks, ChunkPoint3d{x, span[1], span[0]})
		}
	}
	return SortBlocks(blocks)
}
