package ingest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func encodeTestFrame(t *testing.T, streamName string) []byte {
	t.Helper()
	mem := memory.NewGoAllocator()

	var md arrow.Metadata
	if streamName != "" {
		md = arrow.NewMetadata([]string{StreamMetadataKey}, []string{streamName})
	}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "src_ip", Type: arrow.BinaryTypes.String},
	}, &md)

	bldr := array.NewRecordBuilder(mem, schema)
	defer bldr.Release()
	bldr.Field(0).(*array.StringBuilder).Append("10.0.0.1")
	rec := bldr.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		t.Fatalf("write IPC record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close IPC writer: %v", err)
	}
	return buf.Bytes()
}

func TestArrowIPCDecoderRoundTrip(t *testing.T) {
	payload := encodeTestFrame(t, "auth_events")

	streamName, b, err := (ArrowIPCDecoder{}).Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer b.Release()

	if streamName != "auth_events" {
		t.Fatalf("expected stream name auth_events, got %q", streamName)
	}
	if b.Rows() != 1 {
		t.Fatalf("expected 1 row, got %d", b.Rows())
	}
}

func TestArrowIPCDecoderMissingStreamNameErrors(t *testing.T) {
	payload := encodeTestFrame(t, "")
	if _, _, err := (ArrowIPCDecoder{}).Decode(payload); !errors.Is(err, ErrMissingStreamName) {
		t.Fatalf("expected ErrMissingStreamName, got %v", err)
	}
}

func TestArrowIPCDecoderGarbagePayloadErrors(t *testing.T) {
	if _, _, err := (ArrowIPCDecoder{}).Decode([]byte("not an arrow ipc message")); err == nil {
		t.Fatalf("expected an error decoding a non-IPC payload")
	}
}
