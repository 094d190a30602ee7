package node

import (
	"fmt"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// blockBytes returns the wire length of a run of blocks at the given voxel
// width.
func blockBytes(span int32, bytesPerVoxel int32) int64 {
	edge := int64(dvid.DefaultBlockSize)
	return int64(span) * edge * edge * edge * int64(bytesPerVoxel)
}

func (s *Service) blocksURI(instance string, first dvid.ChunkPoint3d, span int32) string {
	return fmt.Sprintf("/node/%s/%s/blocks/%d_%d_%d/%d", s.uuid, instance,
		first[0], first[1], first[2], span)
}

// getBlocks retrieves span blocks running along X starting at the given
// block coordinate.  Block transfers bypass throttling and compression;
// they are the low-level bulk path.
func (s *Service) getBlocks(instance string, first dvid.ChunkPoint3d, span int32, bytesPerVoxel int32) ([]byte, error) {
	if span <= 0 {
		return nil, fmt.Errorf("block span must be positive, got %d", span)
	}
	uri := s.blocksURI(instance, first, span)
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}
	expected := blockBytes(span, bytesPerVoxel)
	if int64(len(body)) != expected {
		return nil, dvid.ShapeError{Expected: expected, Actual: int64(len(body))}
	}
	return body, nil
}

// putBlocks stores span blocks running along X starting at the given block
// coordinate.  The payload length must match the span exactly.
func (s *Service) putBlocks(instance string, first dvid.ChunkPoint3d, span int32, bytesPerVoxel int32, data []byte) error {
	if span <= 0 {
		return fmt.Errorf("block span must be positive, got %d", span)
	}
	expected := blockBytes(span, bytesPerVoxel)
	if int64(len(data)) != expected {
		return dvid.ShapeError{Expected: expected, Actual: int64(len(data))}
	}
	uri := s.blocksURI(instance, first, span)
	status, body, err := s.conn.Do(uri, connection.POST, data)
	if err != nil {
		return err
	}
	return connection.StatusError(status, uri, body)
}

// GetGrayBlocks retrieves span grayscale blocks along X from the given
// block coordinate as one contiguous buffer of block-ordered voxels.
func (s *Service) GetGrayBlocks(instance string, first dvid.ChunkPoint3d, span int32) ([]byte, error) {
	return s.getBlocks(instance, first, span, GrayscaleBytesPerVoxel)
}

// PutGrayBlocks stores span grayscale blocks along X at the given block
// coordinate.
func (s *Service) PutGrayBlocks(instance string, first dvid.ChunkPoint3d, span int32, data []byte) error {
	return s.putBlocks(instance, first, span, GrayscaleBytesPerVoxel, data)
}

// GetLabelBlocks retrieves span label blocks along X from the given block
// coordinate.
func (s *Service) GetLabelBlocks(instance string, first dvid.ChunkPoint3d, span int32) ([]byte, error) {
	return s.getBlocks(instance, first, span, LabelBytesPerVoxel)
}

// PutLabelBlocks stores span label blocks along X at the given block
// coordinate.  Label block writes bypass the label indexing the server
// maintains, so they are refused unless the service was opened with
// WithSpeculativeLabelBlockPut.
func (s *Service) PutLabelBlocks(instance string, first dvid.ChunkPoint3d, span int32, data []byte) error {
	if !s.labelBlockPut {
		return fmt.Errorf("label block writes are disabled; open the service with WithSpeculativeLabelBlockPut to enable them")
	}
	return s.putBlocks(instance, first, span, LabelBytesPerVoxel, data)
}
