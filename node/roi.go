package node

import (
	"encoding/json"
	"fmt"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// PostROI stores a region of interest as the set of blocks given.  Blocks
// may arrive in any order with duplicates; the wire form is the canonical
// run-length span encoding, so posting what GetROI returned is a no-op on
// the stored region.
func (s *Service) PostROI(instance string, blocks []dvid.ChunkPoint3d) error {
	spans := dvid.SpansFromBlocks(blocks)
	payload, err := json.Marshal(spans)
	if err != nil {
		return err
	}
	uri := fmt.Sprintf("/node/%s/%s/roi", s.uuid, instance)
	status, body, err := s.conn.Do(uri, connection.POST, payload)
	if err != nil {
		return err
	}
	return connection.StatusError(status, uri, body)
}

// GetROI retrieves a region of interest as block coordinates in canonical
// ZYX order without duplicates.
func (s *Service) GetROI(instance string) ([]dvid.ChunkPoint3d, error) {
	uri := fmt.Sprintf("/node/%s/%s/roi", s.uuid, instance)
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	var spans []dvid.Span
	if err := json.Unmarshal(body, &spans); err != nil {
		return nil, fmt.Errorf("bad ROI span payload from %s: %v", uri, err)
	}
	return dvid.BlocksFromSpans(spans), nil
}

// GetROIPartition covers a region of interest with cubic substacks of the
// given edge length in blocks.  A substack is included if any of its blocks
// is in the region, so coverage is complete but boundary substacks may be
// mostly empty.  The returned packing factor is the fraction of substack
// volume occupied by region blocks and reaches 1.0 only when the region
// exactly tiles the substacks; an empty region yields no substacks and a
// packing factor of 0.  Substacks are returned in ZYX order of their
// corners.
func (s *Service) GetROIPartition(instance string, partitionSize int32) ([]dvid.Substack, float64, error) {
	if partitionSize <= 0 {
		return nil, 0, fmt.Errorf("partition size must be positive, got %d", partitionSize)
	}
	blocks, err := s.GetROI(instance)
	if err != nil {
		return nil, 0, err
	}
	if len(blocks) == 0 {
		return nil, 0, nil
	}

	seen := make(map[dvid.ChunkPoint3d]struct{})
	var ids []dvid.ChunkPoint3d
	for _, block := range blocks {
		id := dvid.ChunkPoint3d{
			floorDiv(block[0], partitionSize),
			floorDiv(block[1], partitionSize),
			floorDiv(block[2], partitionSize),
		}
		if _, found := seen[id]; !found {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	ids = dvid.SortBlocks(ids)

	voxelsPerSubstack := partitionSize * dvid.DefaultBlockSize
	substacks := make([]dvid.Substack, len(ids))
	for i, id := range ids {
		substacks[i] = dvid.Substack{
			Corner: dvid.Point3d{
				id[0] * voxelsPerSubstack,
				id[1] * voxelsPerSubstack,
				id[2] * voxelsPerSubstack,
			},
			Size: voxelsPerSubstack,
		}
	}

	blocksPerSubstack := int64(partitionSize) * int64(partitionSize) * int64(partitionSize)
	packing := float64(len(blocks)) / float64(int64(len(substacks))*blocksPerSubstack)
	return substacks, packing, nil
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// PointQuery tests voxel points for membership in a region of interest.
// The returned slice mirrors the input order element for element.
func (s *Service) PointQuery(instance string, points []dvid.Point3d) ([]bool, error) {
	coords := make([][3]int32, len(points))
	for i, pt := range points {
		coords[i] = [3]int32{pt[0], pt[1], pt[2]}
	}
	payload, err := json.Marshal(coords)
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("/node/%s/%s/ptquery", s.uuid, instance)
	status, body, err := s.conn.Do(uri, connection.POST, payload)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	var inside []bool
	if err := json.Unmarshal(body, &inside); err != nil {
		return nil, fmt.Errorf("bad point query payload from %s: %v", uri, err)
	}
	if len(inside) != len(points) {
		return nil, dvid.StructuralError{Reason: fmt.Sprintf("point query returned %d results for %d points", len(inside), len(points))}
	}
	return inside, nil
}
