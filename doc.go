/*
	godvid is a Go client for DVID, a distributed, versioned image datastore.
	It speaks the HTTP API of a DVID server and exposes the data of one
	version node at a time: dense grayscale and label volumes, raw block
	transfer, regions of interest, sparse label bodies, a weighted label
	graph with optimistic property transactions, key-value data, and
	precomputed image tiles.

	The packages layer simply:

	dvid        value types shared across the API (points, blocks, spans,
	            graph elements), LZ4 payload compression, and logging.

	connection  HTTP transport to one server: endpoint construction,
	            retry with backoff for transient failures, and a server
	            version check on connect.

	node        the client API proper.  Open a Service with a server
	            address and node UUID, then issue typed operations
	            against named data instances under that node.

	A minimal session:

		svc, err := node.OpenService("http://emdata.janelia.org:7000", "f8a0")
		if err != nil { ... }
		vol, err := svc.GetGray3D("grayscale",
			dvid.Dims{512, 512, 64}, dvid.Offset{0, 0, 4000}, nil)
*/
package godvid
