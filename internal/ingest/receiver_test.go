package ingest

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/warpfusion/warpfusion/internal/batch"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/router"
	"github.com/warpfusion/warpfusion/internal/window"
)

type fakeDecoder struct {
	streamName string
	fail       bool
}

func (d fakeDecoder) Decode(payload []byte) (string, batch.RecordBatch, error) {
	if d.fail {
		return "", batch.RecordBatch{}, errTestDecode
	}
	return d.streamName, batch.RecordBatch{}, nil
}

var errTestDecode = &decodeErr{}

type decodeErr struct{}

func (*decodeErr) Error() string { return "forced decode failure" }

type countingFailures struct{ n int }

func (c *countingFailures) IncDecodeFailure() { c.n++ }

func testReceiverRouter(t *testing.T) (*router.Router, *window.Window) {
	t.Helper()
	def := window.Def{
		Name:    "w1",
		Over:    time.Hour,
		Streams: []string{"s1"},
	}
	reg, err := registry.Build([]window.Def{def})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	w, _ := reg.GetWindow("w1")
	return router.New(reg), w
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write length prefix: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func TestReceiverRoutesDecodedFrames(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	rt, _ := testReceiverRouter(t)
	failures := &countingFailures{}
	recv := New(ln, Config{
		Decoder:  fakeDecoder{streamName: "s1"},
		Router:   rt,
		Failures: failures,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		recv.Run(ctx)
		close(runDone)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	writeFrame(t, conn, []byte("payload-1"))
	conn.Close()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("Receiver.Run did not return after cancellation")
	}

	if failures.n != 0 {
		t.Fatalf("expected no decode failures, got %d", failures.n)
	}
}

func TestReceiverSkipsFrameOnDecodeFailureAndCountsIt(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	rt, _ := testReceiverRouter(t)
	failures := &countingFailures{}
	recv := New(ln, Config{
		Decoder:  fakeDecoder{fail: true},
		Router:   rt,
		Failures: failures,
	})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		recv.Run(ctx)
		close(runDone)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	writeFrame(t, conn, []byte("bad-payload"))
	conn.Close()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("Receiver.Run did not return after cancellation")
	}

	if failures.n != 1 {
		t.Fatalf("expected 1 counted decode failure, got %d", failures.n)
	}
}

func TestReceiverRunReturnsWhenListenerNeverAccepts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	rt, _ := testReceiverRouter(t)
	recv := New(ln, Config{Decoder: fakeDecoder{streamName: "s1"}, Router: rt})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		recv.Run(ctx)
		close(runDone)
	}()

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("Receiver.Run did not return after cancellation with no connections")
	}
}
