/*
	This file defines point types in voxel, block (chunk), and substack
	coordinate systems.  The three spaces use distinct types so callers
	cannot mix them without explicit scaling.
*/

package dvid

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Point3d is a 3d point in voxel space.
type Point3d [3]int32

// Value returns the point's value for the specified dimension without checking dim bounds.
func (p Point3d) Value(dim uint8) int32 {
	return p[dim]
}

// Add returns the addition of two points.
func (p Point3d) Add(x Point3d) Point3d {
	return Point3d{p[0] + x[0], p[1] + x[1], p[2] + x[2]}
}

// Sub returns the subtraction of the passed point from the receiver.
func (p Point3d) Sub(x Point3d) Point3d {
	return Point3d{p[0] - x[0], p[1] - x[1], p[2] - x[2]}
}

// Prod returns the product of the point elements.
func (p Point3d) Prod() int64 {
	return int64(p[0]) * int64(p[1]) * int64(p[2])
}

func (p Point3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p[0], p[1], p[2])
}

// Chunk returns the chunk space coordinate of the cubic chunk of the given
// edge length containing the point.  Negative coordinates round toward
// negative infinity so chunk boundaries stay fixed across the origin.
func (p Point3d) Chunk(edge int32) ChunkPoint3d {
	var c ChunkPoint3d
	for dim := 0; dim < 3; dim++ {
		if p[dim] < 0 {
			c[dim] = (p[dim] - edge + 1) / edge
		} else {
			c[dim] = p[dim] / edge
		}
	}
	return c
}

// ChunkPoint3d is a 3d point in block (chunk) space.
type ChunkPoint3d [3]int32

var (
	MaxChunkPoint3d = ChunkPoint3d{math.MaxInt32, math.MaxInt32, math.MaxInt32}
	MinChunkPoint3d = ChunkPoint3d{math.MinInt32, math.MinInt32, math.MinInt32}
)

// Value returns the value at the specified dimension.
func (c ChunkPoint3d) Value(dim uint8) int32 {
	return c[dim]
}

func (c ChunkPoint3d) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c[0], c[1], c[2])
}

// MinPoint returns the smallest voxel coordinate of a chunk with the given
// edge length.
func (c ChunkPoint3d) MinPoint(edge int32) Point3d {
	return Point3d{c[0] * edge, c[1] * edge, c[2] * edge}
}

// MaxPoint returns the maximum voxel coordinate of a chunk with the given
// edge length.
func (c ChunkPoint3d) MaxPoint(edge int32) Point3d {
	return Point3d{(c[0]+1)*edge - 1, (c[1]+1)*edge - 1, (c[2]+1)*edge - 1}
}

// SetMinimum sets the point to the minimum elements of current and passed points.
func (c *ChunkPoint3d) SetMinimum(c2 ChunkPoint3d) {
	if c[0] > c2[0] {
		c[0] = c2[0]
	}
	if c[1] > c2[1] {
		c[1] = c2[1]
	}
	if c[2] > c2[2] {
		c[2] = c2[2]
	}
}

// SetMaximum sets the point to the maximum elements of current and passed points.
func (c *ChunkPoint3d) SetMaximum(c2 ChunkPoint3d) {
	if c[0] < c2[0] {
		c[0] = c2[0]
	}
	if c[1] < c2[1] {
		c[1] = c2[1]
	}
	if c[2] < c2[2] {
		c[2] = c2[2]
	}
}

// Substack is one cube in a partition of block space.  The corner is given
// in voxel coordinates and the edge length in voxels, so substacks can be
// handed directly to voxel-space requests.
type Substack struct {
	Corner Point3d
	Size   int32
}

func (s Substack) String() string {
	return fmt.Sprintf("%s+%d", s.Corner, s.Size)
}

// StringToPoint3d parses a string of format "%d<sep>%d<sep>%d" into a voxel point.
func StringToPoint3d(str, separator string) (Point3d, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 3 {
		return Point3d{}, fmt.Errorf("cannot convert %q into a 3d point", str)
	}
	var p Point3d
	for i, elem := range elems {
		val, err := strconv.ParseInt(elem, 10, 32)
		if err != nil {
			return Point3d{}, err
		}
		p[i] = int32(val)
	}
	return p, nil
}

// StringToChunkPoint3d parses a string of format "%d<sep>%d<sep>%d" into a block point.
func StringToChunkPoint3d(str, separator string) (ChunkPoint3d, error) {
	p, err := StringToPoint3d(str, separator)
	return ChunkPoint3d(p), err
}

// ByZYX sorts block points in ascending Z, then Y, then X order, the
// canonical enumeration order for block sets.
type ByZYX []ChunkPoint3d

func (b ByZYX) Len() int      { return len(b) }
func (b ByZYX) Swap(i, j int) { b[i], b[j] = b[j], b[i] }
func (b ByZYX) Less(i, j int) bool {
	if b[i][2] != b[j][2] {
		return b[i][2] < b[j][2]
	}
	if b[i][1] != b[j][1] {
		return b[i][1] < b[j][1]
	}
	return b[i][0] < b[j][0]
}

// SortBlocks orders blocks canonically (Z, Y, X ascending) and removes duplicates.
func SortBlocks(blocks []ChunkPoint3d) []ChunkPoint3d {
	sorted := make([]ChunkPoint3d, len(blocks))
	copy(sorted, blocks)
	sort.Sort(ByZYX(sorted))
	deduped := sorted[:0]
	for i, block := range sorted {
		if i == 0 || block != sorted[i-1] {
			deduped = append(deduped, block)
		}
	}
	return deduped
}
