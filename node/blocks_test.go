package node

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/janelia-flyem/godvid/dvid"
)

func TestGetGrayBlocks(t *testing.T) {
	const span = 3
	data := grayTestData(int(blockBytes(span, GrayscaleBytesPerVoxel)))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/gray/blocks/1_2_3/3",
		func(w http.ResponseWriter, r *http.Request) {
			w.Write(data)
		})
	svc, _ := newTestService(t, mux)

	got, err := svc.GetGrayBlocks("gray", dvid.ChunkPoint3d{1, 2, 3}, span)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("block run differs from served bytes")
	}
}

func TestGetBlocksLengthContract(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/labels/blocks/0_0_0/2",
		func(w http.ResponseWriter, r *http.Request) {
			// One block short for width 8.
			w.Write(make([]byte, blockBytes(1, LabelBytesPerVoxel)))
		})
	svc, _ := newTestService(t, mux)

	_, err := svc.GetLabelBlocks("labels", dvid.ChunkPoint3d{0, 0, 0}, 2)
	var serr dvid.ShapeError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ShapeError for short block run, got %v", err)
	}
	if serr.Expected != blockBytes(2, LabelBytesPerVoxel) {
		t.Errorf("bad expected length %d", serr.Expected)
	}
}

func TestPutGrayBlocks(t *testing.T) {
	const span = 2
	data := grayTestData(int(blockBytes(span, GrayscaleBytesPerVoxel)))

	var received []byte
	mux := http.NewServeMux()
	mux.HandleFunc("/api/node/"+testUUID+"/gray/blocks/-1_0_4/2",
		func(w http.ResponseWriter, r *http.Request) {
			received, _ = io.ReadAll(r.Body)
		})
	svc, _ := newTestService(t, mux)

	if err := svc.PutGrayBlocks("gray", dvid.ChunkPoint3d{-1, 0, 4}, span, data); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, data) {
		t.Error("server received different block bytes")
	}

	if err := svc.PutGrayBlocks("gray", dvid.ChunkPoint3d{0, 0, 0}, span, data[:10]); err == nil {
		t.Error("short payload accepted for put")
	}
}

func TestPutLabelBlocksGated(t *testing.T) {
	data := make([]byte, blockBytes(1, LabelBytesPerVoxel))

	mux := http.NewServeMux()
	svc, requests := newTestService(t, mux)
	baseline := atomic.LoadInt64(requests)

	if err := svc.PutLabelBlocks("labels", dvid.ChunkPoint3d{0, 0, 0}, 1, data); err == nil {
		t.Fatal("label block write allowed without opt-in")
	}
	if got := atomic.LoadInt64(requests); got != baseline {
		t.Errorf("gated write reached the server: %d extra requests", got-baseline)
	}

	var received []byte
	mux2 := http.NewServeMux()
	mux2.HandleFunc("/api/node/"+testUUID+"/labels/blocks/0_0_0/1",
		func(w http.ResponseWriter, r *http.Request) {
			received, _ = io.ReadAll(r.Body)
		})
	svc2, _ := newTestService(t, mux2, WithSpeculativeLabelBlockPut())
	if err := svc2.PutLabelBlocks("labels", dvid.ChunkPoint3d{0, 0, 0}, 1, data); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(received, data) {
		t.Error("server received different label block bytes")
	}
}
