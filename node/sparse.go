package node

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// GetCoarseBody retrieves the block coordinates intersected by a body in a
// label volume instance, in canonical ZYX order.  found is false when the
// body does not exist in this version.
func (s *Service) GetCoarseBody(instance string, bodyID uint64) (blocks []dvid.ChunkPoint3d, found bool, err error) {
	uri := fmt.Sprintf("/node/%s/%s/sparsevol-coarse/%d", s.uuid, instance, bodyID)
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, false, err
	}
	if status == 404 {
		return nil, false, nil
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, false, err
	}
	blocks, err = decodeCoarseRLE(body)
	if err != nil {
		return nil, false, err
	}
	return blocks, true, nil
}

// decodeCoarseRLE unpacks the binary run-length encoding of a coarse sparse
// volume: an 8 byte header (pad, #dims, run dimension, reserved, uint32
// voxel count placeholder), a uint32 span count, then per span four little
// endian int32s giving the start block coordinate and the run length in
// blocks along X.
func decodeCoarseRLE(data []byte) ([]dvid.ChunkPoint3d, error) {
	buf := bytes.NewReader(data)
	header := struct {
		Pad       byte
		NumDims   uint8
		RunDim    uint8
		Reserved  byte
		NumVoxels uint32
		NumSpans  uint32
	}{}
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated sparse volume header: %v", err)}
	}
	if header.NumDims != 3 || header.RunDim != 0 {
		return nil, dvid.StructuralError{Reason: fmt.Sprintf("unsupported sparse volume encoding: %d dims, runs along dim %d", header.NumDims, header.RunDim)}
	}
	var blocks []dvid.ChunkPoint3d
	for i := uint32(0); i < header.NumSpans; i++ {
		var run [4]int32 // x, y, z, length
		if err := binary.Read(buf, binary.LittleEndian, &run); err != nil {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("truncated sparse volume span %d of %d: %v", i, header.NumSpans, err)}
		}
		if run[3] <= 0 {
			return nil, dvid.StructuralError{Reason: fmt.Sprintf("sparse volume span %d has non-positive length %d", i, run[3])}
		}
		for dx := int32(0); dx < run[3]; dx++ {
			blocks = append(blocks, dvid.ChunkPoint3d{run[0] + dx, run[1], run[2]})
		}
	}
	return dvid.SortBlocks(blocks), nil
}

// BodyExists reports whether the body has any voxels in the label volume
// instance at this version.
func (s *Service) BodyExists(instance string, bodyID uint64) (bool, error) {
	_, found, err := s.GetCoarseBody(instance, bodyID)
	return found, err
}

// BodyLocation returns a voxel coordinate that lies within a block occupied
// by the body.  With no constraint it is the center voxel of the median
// occupied block in ZYX order.  A single optional zplane restricts the
// choice to blocks intersecting that voxel Z plane and pins the returned Z
// to the plane; when the body has no block on that plane the unconstrained
// point is returned instead.  Returns dvid.ErrNotFound wrapped when the
// body is absent.
func (s *Service) BodyLocation(instance string, bodyID uint64, zplane ...int32) (dvid.Point3d, error) {
	if len(zplane) > 1 {
		return dvid.Point3d{}, fmt.Errorf("at most one z plane constraint allowed, got %d", len(zplane))
	}
	blocks, found, err := s.GetCoarseBody(instance, bodyID)
	if err != nil {
		return dvid.Point3d{}, err
	}
	if !found {
		return dvid.Point3d{}, fmt.Errorf("body %d in %q: %w", bodyID, instance, dvid.ErrNotFound)
	}
	candidates := blocks
	var constrained bool
	if len(zplane) == 1 {
		blockZ := floorDiv(zplane[0], dvid.DefaultBlockSize)
		var filtered []dvid.ChunkPoint3d
		for _, block := range blocks {
			if block[2] == blockZ {
				filtered = append(filtered, block)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
			constrained = true
		}
	}

	block := candidates[len(candidates)/2]
	half := int32(dvid.DefaultBlockSize / 2)
	pt := dvid.Point3d{
		block[0]*dvid.DefaultBlockSize + half,
		block[1]*dvid.DefaultBlockSize + half,
		block[2]*dvid.DefaultBlockSize + half,
	}
	if constrained {
		pt[2] = zplane[0]
	}
	return pt, nil
}
