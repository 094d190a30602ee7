package dvid

import (
	"errors"

	. "github.com/janelia-flyem/go/gocheck"
)

func (s *DataSuite) TestLZ4RoundTrip(c *C) {
	data := make([]byte, DefaultBlockSize*DefaultBlockSize*DefaultBlockSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	compressed, err := CompressLZ4(data)
	c.Assert(err, IsNil)
	c.Assert(len(compressed) < len(data), Equals, true)

	out, err := UncompressLZ4(compressed, int64(len(data)))
	c.Assert(err, IsNil)
	c.Assert(out, DeepEquals, data)
}

func (s *DataSuite) TestLZ4Corrupt(c *C) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}
	compressed, err := CompressLZ4(data)
	c.Assert(err, IsNil)

	// Truncating the stream must surface as a compression failure, not
	// as garbage voxels.
	_, err = UncompressLZ4(compressed[:len(compressed)/2], int64(len(data)))
	c.Assert(err, NotNil)
	var cerr CompressionError
	c.Assert(errors.As(err, &cerr), Equals, true)
}
