package dvid

import (
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type DataSuite struct{}

var _ = Suite(&DataSuite{})

func (s *DataSuite) TestDimsCheck(c *C) {
	good := Dims{100, 200, 300}
	c.Assert(good.Check(), IsNil)
	c.Assert(good.Prod(), Equals, int64(100*200*300))
	c.Assert(good.URIString("_"), Equals, "100_200_300")

	plane := Dims{512, 512}
	c.Assert(plane.Check(), IsNil)

	c.Assert(Dims{100}.Check(), NotNil)
	c.Assert(Dims{1, 2, 3, 4}.Check(), NotNil)
	c.Assert(Dims{100, 0, 300}.Check(), NotNil)
}

func (s *DataSuite) TestDimsCeiling(c *C) {
	under := Dims{1 << 14, 1 << 14, 1}
	c.Assert(under.Prod() <= MaxVoxelsPerRequest, Equals, true)

	over := Dims{1 << 14, 1 << 14, 2}
	c.Assert(over.Prod() > MaxVoxelsPerRequest, Equals, true)
}

func (s *DataSuite) TestChannelOrder(c *C) {
	c.Assert(DefaultChannelOrder3d.Check(3), IsNil)
	c.Assert(DefaultChannelOrder3d.URIString("_"), Equals, "0_1_2")

	xz := ChannelOrder{0, 2, 1}
	c.Assert(xz.Check(3), IsNil)

	c.Assert(ChannelOrder{0, 1}.Check(3), NotNil)
	c.Assert(ChannelOrder{0, 1, 1}.Check(3), NotNil)
	c.Assert(ChannelOrder{0, 1, 3}.Check(3), NotNil)
}

func (s *DataSuite) TestOffset(c *C) {
	off := Offset{-32, 0, 64}
	c.Assert(off.Check(3), IsNil)
	c.Assert(off.URIString("_"), Equals, "-32_0_64")
	c.Assert(off.Check(2), NotNil)
}

func (s *DataSuite) TestPointChunk(c *C) {
	c.Assert(Point3d{0, 0, 0}.Chunk(32), Equals, ChunkPoint3d{0, 0, 0})
	c.Assert(Point3d{31, 32, 63}.Chunk(32), Equals, ChunkPoint3d{0, 1, 1})
	// Negative coordinates floor toward negative infinity.
	c.Assert(Point3d{-1, -32, -33}.Chunk(32), Equals, ChunkPoint3d{-1, -1, -2})
}

func (s *DataSuite) TestSortBlocks(c *C) {
	blocks := []ChunkPoint3d{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 0},
		{0, 1, 0},
	}
	sorted := SortBlocks(blocks)
	c.Assert(sorted, DeepEquals, []ChunkPoint3d{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	})
}

func (s *DataSuite) TestSpansFromBlocks(c *C) {
	// Unordered input with a duplicate collapses to canonical spans.
	blocks := []ChunkPoint3d{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 0},
		{0, 0, 0},
	}
	spans := SpansFromBlocks(blocks)
	c.Assert(spans, DeepEquals, []Span{
		{0, 0, 0, 1},
		{0, 1, 0, 0},
	})

	// Runs along X merge into one span.
	run := []ChunkPoint3d{{5, 2, 1}, {3, 2, 1}, {4, 2, 1}}
	c.Assert(SpansFromBlocks(run), DeepEquals, []Span{{1, 2, 3, 5}})

	// A gap along X splits the run.
	gap := []ChunkPoint3d{{3, 2, 1}, {5, 2, 1}}
	c.Assert(SpansFromBlocks(gap), DeepEquals, []Span{{1, 2, 3, 3}, {1, 2, 5, 5}})
}

func (s *DataSuite) TestSpanRoundTrip(c *C) {
	spans := []Span{
		{0, 0, 0, 3},
		{0, 1, 2, 2},
		{7, -1, -4, -2},
	}
	blocks := BlocksFromSpans(spans)
	c.Assert(len(blocks), Equals, 4+1+3)
	c.Assert(SpansFromBlocks(blocks), DeepEquals, spans)

	// Encoding what decoding produced is idempotent.
	c.Assert(SpansFromBlocks(BlocksFromSpans(SpansFromBlocks(blocks))), DeepEquals, spans)
}

func (s *DataSuite) TestSpanIncludes(c *C) {
	span := Span{1, 2, 3, 5}
	c.Assert(span.Includes(ChunkPoint3d{3, 2, 1}), Equals, true)
	c.Assert(span.Includes(ChunkPoint3d{5, 2, 1}), Equals, true)
	c.Assert(span.Includes(ChunkPoint3d{6, 2, 1}), Equals, false)
	c.Assert(span.Includes(ChunkPoint3d{4, 3, 1}), Equals, false)
}

func (s *DataSuite) TestChunkPointExtrema(c *C) {
	pt := ChunkPoint3d{2, -1, 3}
	c.Assert(pt.MinPoint(32), Equals, Point3d{64, -32, 96})
	c.Assert(pt.MaxPoint(32), Equals, Point3d{95, -1, 127})

	min := MaxChunkPoint3d
	min.SetMinimum(pt)
	c.Assert(min, Equals, pt)

	max := MinChunkPoint3d
	max.SetMaximum(pt)
	c.Assert(max, Equals, pt)
}

func (s *DataSuite) TestPointParsing(c *C) {
	pt, err := StringToPoint3d("10_-20_30", "_")
	c.Assert(err, IsNil)
	c.Assert(pt, Equals, Point3d{10, -20, 30})

	_, err = StringToPoint3d("10_20", "_")
	c.Assert(err, NotNil)

	block, err := StringToChunkPoint3d("1_2_3", "_")
	c.Assert(err, IsNil)
	c.Assert(block, Equals, ChunkPoint3d{1, 2, 3})
}
