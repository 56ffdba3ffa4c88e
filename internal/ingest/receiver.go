// receiver.go — Receiver: the accept loop feeding the Router. It
// participates in the two-token shutdown: it is cancelled alongside the
// Evictor by the global token, and the supervisor waits for it to finish
// before firing the rules-only token. The goroutine-per-connection shape
// mirrors the teacher's background-HTTP-server-plus-foreground-loop split
// in cmd/dev-console/main.go's runMCPMode.
package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/warpfusion/warpfusion/internal/router"
)

// FailureCounter observes a persistent rate of decode failures via a
// counter. Implemented by internal/metrics without ingest importing it
// directly.
type FailureCounter interface {
	IncDecodeFailure()
}

type noopFailureCounter struct{}

func (noopFailureCounter) IncDecodeFailure() {}

// Receiver accepts connections on a listener, frames each one, decodes
// frames into (stream_name, batch) pairs, and routes them.
type Receiver struct {
	ln       net.Listener
	decoder  Decoder
	rt       *router.Router
	log      *zap.Logger
	failures FailureCounter

	maxFrameBytes int
}

// Config configures a Receiver.
type Config struct {
	Decoder       Decoder
	Router        *router.Router
	Log           *zap.Logger
	Failures      FailureCounter
	MaxFrameBytes int
}

// New wraps an already-bound listener. Binding (net.Listen) is left to the
// caller (internal/supervisor) so tests can use an in-memory listener.
func New(ln net.Listener, cfg Config) *Receiver {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Failures == nil {
		cfg.Failures = noopFailureCounter{}
	}
	return &Receiver{
		ln:            ln,
		decoder:       cfg.Decoder,
		rt:            cfg.Router,
		log:           cfg.Log.Named("ingest_receiver"),
		failures:      cfg.Failures,
		maxFrameBytes: cfg.MaxFrameBytes,
	}
}

// Run accepts connections until ctx is cancelled, then closes the listener
// and waits for every in-flight connection handler to return before
// returning itself.
func (r *Receiver) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.ln.Close()
		case <-done:
		}
	}()
	defer close(done)

	var wg sync.WaitGroup
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			r.log.Warn("accept failed", zap.Error(err))
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.handleConn(conn)
		}()
	}
	wg.Wait()
}

func (r *Receiver) handleConn(conn net.Conn) {
	defer conn.Close()
	fr := NewFrameReader(conn, r.maxFrameBytes)
	for {
		payload, err := fr.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Warn("frame read failed, closing connection", zap.Error(err))
			}
			return
		}

		streamName, b, err := r.decoder.Decode(payload)
		if err != nil {
			// data-format error: isolated to the offending frame.
			r.log.Warn("frame decode failed, skipping", zap.Error(err))
			r.failures.IncDecodeFailure()
			continue
		}

		r.rt.Route(streamName, b)
		b.Release()
	}
}
