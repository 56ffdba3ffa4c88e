// decoder.go — the helper that yields (stream_name, RecordBatch) from a
// decoded frame. ArrowIPCDecoder reads one Arrow IPC stream message per
// frame and recovers the stream name from a schema-level custom metadata
// key, since the Arrow IPC stream format itself carries no notion of a
// named topic.
package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/warpfusion/warpfusion/internal/batch"
)

// StreamMetadataKey is the Arrow schema custom metadata key an encoder must
// set to the logical stream name before serialising a RecordBatch.
const StreamMetadataKey = "warpfusion.stream"

// ErrMissingStreamName is returned when a decoded IPC message's schema
// carries no StreamMetadataKey entry.
var ErrMissingStreamName = errors.New("ingest: decoded batch has no stream name in schema metadata")

// Decoder turns one frame payload into a (stream_name, batch) pair.
type Decoder interface {
	Decode(payload []byte) (streamName string, b batch.RecordBatch, err error)
}

// ArrowIPCDecoder decodes payloads as single-record Arrow IPC stream
// messages via apache/arrow-go's ipc.Reader.
type ArrowIPCDecoder struct{}

// Decode reads exactly one arrow.Record out of payload's IPC stream and
// wraps it as a batch.RecordBatch. Ownership of the underlying buffers
// transfers to the returned RecordBatch.
func (ArrowIPCDecoder) Decode(payload []byte) (string, batch.RecordBatch, error) {
	reader, err := ipc.NewReader(bytes.NewReader(payload))
	if err != nil {
		return "", batch.RecordBatch{}, fmt.Errorf("ingest: open IPC reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return "", batch.RecordBatch{}, fmt.Errorf("ingest: read IPC record: %w", err)
		}
		return "", batch.RecordBatch{}, fmt.Errorf("ingest: IPC message carried no record")
	}

	rec := reader.Record()
	streamName, ok := reader.Schema().Metadata().GetValue(StreamMetadataKey)
	if !ok || streamName == "" {
		return "", batch.RecordBatch{}, ErrMissingStreamName
	}

	rec.Retain() // outlive reader.Release()
	return streamName, batch.New(rec), nil
}
