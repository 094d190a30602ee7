/*
	This file supports the LZ4 wire compression used on volume payloads.
	Unlike stored serializations, the HTTP payload carries no header: the
	uncompressed size is known out-of-band from the request's extents.
*/

package dvid

import (
	"fmt"

	lz4 "github.com/janelia-flyem/go/golz4-updated"
)

// CompressLZ4 compresses a raw payload for the wire.
func CompressLZ4(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBound(data))
	outSize, err := lz4.Compress(data, compressed)
	if err != nil {
		return nil, err
	}
	return compressed[:outSize], nil
}

// UncompressLZ4 decompresses a wire payload into exactly uncompressedSize
// bytes.  A corrupt or truncated stream returns a CompressionError.
func UncompressLZ4(data []byte, uncompressedSize int64) ([]byte, error) {
	if uncompressedSize < 0 {
		return nil, CompressionError{fmt.Errorf("invalid uncompressed size %d", uncompressedSize)}
	}
	uncompressed := make([]byte, uncompressedSize)
	if err := lz4.Uncompress(data, uncompressed); err != nil {
		return nil, CompressionError{err}
	}
	return uncompressed, nil
}
