package node

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// Slice2D names an orthogonal tile orientation.
type Slice2D string

const (
	XY Slice2D = "xy"
	XZ Slice2D = "xz"
	YZ Slice2D = "yz"
)

// Valid reports whether the orientation is one of the three orthogonal
// planes.
func (s Slice2D) Valid() bool {
	switch s {
	case XY, XZ, YZ:
		return true
	}
	return false
}

// GetTileSliceBinary retrieves a pre-rendered tile in its stored encoding
// (PNG or JPEG depending on instance configuration).  Tiles are immutable
// per version, so results are served from the in-process cache when the
// service was opened with WithTileCache.
func (s *Service) GetTileSliceBinary(instance string, plane Slice2D, scaling int32, tile dvid.ChunkPoint3d) ([]byte, error) {
	if !plane.Valid() {
		return nil, fmt.Errorf("bad tile orientation %q", plane)
	}
	uri := fmt.Sprintf("/node/%s/%s/tile/%s/%d/%d_%d_%d", s.uuid, instance, plane, scaling,
		tile[0], tile[1], tile[2])

	var cacheKey []byte
	if s.tileCache != nil {
		cacheKey = []byte(uri)
		if cached, err := s.tileCache.Get(cacheKey); err == nil {
			return cached, nil
		}
	}

	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return nil, fmt.Errorf("tile %s at scale %d in %q: %w", tile.String(), scaling, instance, dvid.ErrNotFound)
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}

	if s.tileCache != nil {
		// Cache set can fail when the entry exceeds 1/1024 of the cache;
		// the tile is still returned.
		_ = s.tileCache.Set(cacheKey, body, 0)
	}
	return body, nil
}

// GetTileSlice retrieves a tile and decodes it into a rank-2 grayscale
// image with 1 byte per voxel.
func (s *Service) GetTileSlice(instance string, plane Slice2D, scaling int32, tile dvid.ChunkPoint3d) (*Voxels, error) {
	encoded, err := s.GetTileSliceBinary(instance, plane, scaling, tile)
	if err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("cannot decode tile image: %v", err)
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	data := make([]byte, width*height)

	switch typed := img.(type) {
	case *image.Gray:
		for y := 0; y < height; y++ {
			copy(data[y*width:(y+1)*width], typed.Pix[y*typed.Stride:y*typed.Stride+width])
		}
	default:
		dvid.Debugf("tile decoded as %s %T, converting to gray", format, img)
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				data[i] = uint8((r + g + b) / 3 >> 8)
				i++
			}
		}
	}
	return NewGrayscale2D(dvid.Dims{uint32(width), uint32(height)}, data)
}
