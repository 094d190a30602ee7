/*
	This file implements the dense volume codec: conversion between
	in-memory voxel buffers and the store's binary wire representation,
	endpoint construction with channel ordering, and throttled transfer.
*/

package node

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/godvid/connection"
	"github.com/janelia-flyem/godvid/dvid"
)

// Voxel widths in bytes for the two dense volume kinds.
const (
	GrayscaleBytesPerVoxel = 1
	LabelBytesPerVoxel     = 8
)

// Voxels is a dense array of voxel data.  The buffer is row-major with the
// last listed channel axis varying fastest, and its length always equals
// the product of the extents times the voxel width; construction fails on
// any mismatch rather than truncating or padding.
type Voxels struct {
	Size          dvid.Dims
	BytesPerVoxel int32
	Data          []byte
}

// NewVoxels wraps a buffer after validating shape and length.
func NewVoxels(size dvid.Dims, bytesPerVoxel int32, data []byte) (*Voxels, error) {
	if err := size.Check(); err != nil {
		return nil, err
	}
	expected := size.Prod() * int64(bytesPerVoxel)
	if int64(len(data)) != expected {
		return nil, dvid.ShapeError{Expected: expected, Actual: int64(len(data))}
	}
	return &Voxels{Size: size, BytesPerVoxel: bytesPerVoxel, Data: data}, nil
}

// NewGrayscale3D wraps a rank-3, 1 byte per voxel buffer.
func NewGrayscale3D(size dvid.Dims, data []byte) (*Voxels, error) {
	if len(size) != 3 {
		return nil, fmt.Errorf("grayscale 3d volume needs rank-3 dims, got rank %d", len(size))
	}
	return NewVoxels(size, GrayscaleBytesPerVoxel, data)
}

// NewGrayscale2D wraps a rank-2, 1 byte per voxel buffer, e.g. a decoded tile.
func NewGrayscale2D(size dvid.Dims, data []byte) (*Voxels, error) {
	if len(size) != 2 {
		return nil, fmt.Errorf("grayscale 2d image needs rank-2 dims, got rank %d", len(size))
	}
	return NewVoxels(size, GrayscaleBytesPerVoxel, data)
}

// NewLabels3D wraps a rank-3, 8 bytes per voxel little-endian label buffer.
func NewLabels3D(size dvid.Dims, data []byte) (*Voxels, error) {
	if len(size) != 3 {
		return nil, fmt.Errorf("label 3d volume needs rank-3 dims, got rank %d", len(size))
	}
	return NewVoxels(size, LabelBytesPerVoxel, data)
}

// Label returns the uint64 label at the given buffer index for a label volume.
func (v *Voxels) Label(i int64) uint64 {
	return binary.LittleEndian.Uint64(v.Data[i*LabelBytesPerVoxel:])
}

// VolumeOptions modify a dense volume GET or PUT.  The zero value produces
// the shortest canonical endpoint: identity channel order, no throttling,
// no compression, no ROI mask.
type VolumeOptions struct {
	// Channels gives the axis permutation of the request's dims and
	// offset.  Nil means the identity (X,Y,Z) order.
	Channels dvid.ChannelOrder

	// Throttle serializes this transfer through the service's gate and
	// asks the server to do the same.
	Throttle bool

	// Compress moves the payload whole-buffer LZ4 compressed.
	Compress bool

	// ROI names a region-of-interest instance masking the operation.
	ROI string

	// Isotropic asks the server to resample anisotropic data to cubic
	// voxels.  Reads only.
	Isotropic bool
}

func (opts *VolumeOptions) channels(rank int) dvid.ChannelOrder {
	if opts == nil || opts.Channels == nil {
		order := make(dvid.ChannelOrder, rank)
		for i := range order {
			order[i] = uint8(i)
		}
		return order
	}
	return opts.Channels
}

func (opts *VolumeOptions) throttle() bool {
	return opts != nil && opts.Throttle
}

func (opts *VolumeOptions) compress() bool {
	return opts != nil && opts.Compress
}

func (opts *VolumeOptions) roi() string {
	if opts == nil {
		return ""
	}
	return opts.ROI
}

func (opts *VolumeOptions) shape() string {
	if opts != nil && opts.Isotropic {
		return "isotropic"
	}
	return "raw"
}

// volumeURI constructs the REST endpoint for a dense volume request.  Query
// flags are appended only when non-default so default requests produce the
// shortest canonical endpoint.
func (s *Service) volumeURI(instance string, size dvid.Dims, offset dvid.Offset, opts *VolumeOptions) (string, error) {
	if err := size.Check(); err != nil {
		return "", err
	}
	rank := len(size)
	channels := opts.channels(rank)
	if err := channels.Check(rank); err != nil {
		return "", err
	}
	if err := offset.Check(rank); err != nil {
		return "", err
	}
	if size.Prod() > dvid.MaxVoxelsPerRequest {
		return "", dvid.ErrSizeLimit
	}

	uri := fmt.Sprintf("/node/%s/%s/%s/%s/%s/%s", s.uuid, instance, opts.shape(),
		channels.URIString("_"), size.URIString("_"), offset.URIString("_"))

	var flags []string
	if opts.throttle() {
		flags = append(flags, "throttle=on")
	}
	if opts.compress() {
		flags = append(flags, "compress=lz4")
	}
	if name := opts.roi(); name != "" {
		flags = append(flags, "roi="+name)
	}
	if len(flags) > 0 {
		uri += "?" + strings.Join(flags, "&")
	}
	return uri, nil
}

// checkBlockAligned validates that a write's offset and extents land on the
// store's block grid.
func checkBlockAligned(size dvid.Dims, offset dvid.Offset) error {
	for i, coord := range offset {
		if coord%dvid.DefaultBlockSize != 0 {
			return dvid.AlignmentError{Reason: fmt.Sprintf("offset[%d] = %d", i, coord)}
		}
	}
	for i, extent := range size {
		if extent%dvid.DefaultBlockSize != 0 {
			return dvid.AlignmentError{Reason: fmt.Sprintf("dims[%d] = %d", i, extent)}
		}
	}
	return nil
}

// getVolume retrieves and decodes a dense volume of the given voxel width.
func (s *Service) getVolume(instance string, size dvid.Dims, offset dvid.Offset, bytesPerVoxel int32, opts *VolumeOptions) (*Voxels, error) {
	uri, err := s.volumeURI(instance, size, offset, opts)
	if err != nil {
		return nil, err
	}

	if opts.throttle() {
		s.gate.Acquire()
		defer s.gate.Release()
	}

	timedLog := dvid.NewTimeLog()
	status, body, err := s.conn.Do(uri, connection.GET, nil)
	if err != nil {
		return nil, err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return nil, err
	}

	expected := size.Prod() * int64(bytesPerVoxel)
	data := body
	if opts.compress() {
		if data, err = dvid.UncompressLZ4(body, expected); err != nil {
			return nil, err
		}
	}
	if int64(len(data)) != expected {
		return nil, dvid.ShapeError{Expected: expected, Actual: int64(len(data))}
	}
	timedLog.Debugf("GET volume %q %s (%s)", instance, size.URIString("x"),
		humanize.Bytes(uint64(len(data))))
	return &Voxels{Size: size, BytesPerVoxel: bytesPerVoxel, Data: data}, nil
}

// putVolume encodes and sends a dense volume.  The offset and extents must
// be block-aligned.
func (s *Service) putVolume(instance string, volume *Voxels, offset dvid.Offset, opts *VolumeOptions) error {
	if opts != nil && opts.Isotropic {
		return fmt.Errorf("isotropic resampling applies to reads only")
	}
	expected := volume.Size.Prod() * int64(volume.BytesPerVoxel)
	if int64(len(volume.Data)) != expected {
		return dvid.ShapeError{Expected: expected, Actual: int64(len(volume.Data))}
	}
	uri, err := s.volumeURI(instance, volume.Size, offset, opts)
	if err != nil {
		return err
	}
	if err := checkBlockAligned(volume.Size, offset); err != nil {
		return err
	}

	payload := volume.Data
	if opts.compress() {
		if payload, err = dvid.CompressLZ4(volume.Data); err != nil {
			return err
		}
	}

	if opts.throttle() {
		s.gate.Acquire()
		defer s.gate.Release()
	}

	timedLog := dvid.NewTimeLog()
	status, body, err := s.conn.Do(uri, connection.PUT, payload)
	if err != nil {
		return err
	}
	if err := connection.StatusError(status, uri, body); err != nil {
		return err
	}
	timedLog.Debugf("PUT volume %q %s (%s on wire)", instance, volume.Size.URIString("x"),
		humanize.Bytes(uint64(len(payload))))
	return nil
}

// GetGray3D retrieves a 3d 1-byte grayscale volume of the given extents at
// the given voxel offset, both interpreted in the channel order of opts.
func (s *Service) GetGray3D(instance string, size dvid.Dims, offset dvid.Offset, opts *VolumeOptions) (*Voxels, error) {
	if len(size) != 3 {
		return nil, fmt.Errorf("grayscale 3d GET needs rank-3 dims, got rank %d", len(size))
	}
	return s.getVolume(instance, size, offset, GrayscaleBytesPerVoxel, opts)
}

// GetLabels3D retrieves a 3d 8-byte label volume of the given extents at
// the given voxel offset, both interpreted in the channel order of opts.
func (s *Service) GetLabels3D(instance string, size dvid.Dims, offset dvid.Offset, opts *VolumeOptions) (*Voxels, error) {
	if len(size) != 3 {
		return nil, fmt.Errorf("label 3d GET needs rank-3 dims, got rank %d", len(size))
	}
	return s.getVolume(instance, size, offset, LabelBytesPerVoxel, opts)
}

// PutGray3D stores a 3d grayscale volume at the given block-aligned offset.
func (s *Service) PutGray3D(instance string, volume *Voxels, offset dvid.Offset, opts *VolumeOptions) error {
	if volume.BytesPerVoxel != GrayscaleBytesPerVoxel || len(volume.Size) != 3 {
		return fmt.Errorf("grayscale 3d PUT needs a rank-3 volume with 1 byte voxels")
	}
	return s.putVolume(instance, volume, offset, opts)
}

// PutLabels3D stores a 3d label volume at the given block-aligned offset.
func (s *Service) PutLabels3D(instance string, volume *Voxels, offset dvid.Offset, opts *VolumeOptions) error {
	if volume.BytesPerVoxel != LabelBytesPerVoxel || len(volume.Size) != 3 {
		return fmt.Errorf("label 3d PUT needs a rank-3 volume with 8 byte voxels")
	}
	return s.putVolume(instance, volume, offset, opts)
}

// GetLabelByLocation returns the label id at the given voxel location, with
// ok false when no label covers it.
func (s *Service) GetLabelByLocation(instance string, pt dvid.Point3d) (label uint64, ok bool, err error) {
	size := dvid.Dims{1, 1, 1}
	offset := dvid.Offset{pt[0], pt[1], pt[2]}
	volume, err := s.getVolume(instance, size, offset, LabelBytesPerVoxel, nil)
	if err != nil {
		if connection.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	label = volume.Label(0)
	return label, label != 0, nil
}
