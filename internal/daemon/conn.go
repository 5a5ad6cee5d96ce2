package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/skyward-systems/acp"
	acpmetrics "github.com/skyward-systems/acp/internal/metrics"
)

// maxScratch bounds the COBS-decoded scratch buffer handed to acp.Decode:
// a full-size authenticated header, max payload, and CRC trailer.
const maxScratch = 10 + 1024 + 2

// readChunkSize is how much the accept loop reads from the connection on
// each pass before handing the accumulated buffer back to acp.Decode.
const readChunkSize = 4096

// ConnHandler reads a stream of delimited ACP frames off a connection and
// routes them to a shared, mutex-guarded session. It mirrors the
// teacher's netio.Receiver shape (one handler per connection, decode
// errors logged rather than fatal, context-driven shutdown), adapted
// from discrete UDP packets to acp.Decode's incremental byte-buffer
// contract (SPEC_FULL.md §4.F "Decode policy").
type ConnHandler struct {
	session   *GuardedSession
	collector *acpmetrics.Collector
	logger    *slog.Logger
}

// NewConnHandler builds a ConnHandler serving frames against session.
func NewConnHandler(session *GuardedSession, collector *acpmetrics.Collector, logger *slog.Logger) *ConnHandler {
	return &ConnHandler{
		session:   session,
		collector: collector,
		logger:    logger.With(slog.String("component", "daemon.conn")),
	}
}

// Serve reads from r until ctx is cancelled or r returns EOF, accumulating
// bytes in an internal buffer and repeatedly handing them to acp.Decode.
// ErrNeedMoreBytes pauses decoding until the next Read; any other decode
// error is logged, classified into the collector, and the buffer is
// resynchronized to the next leading delimiter before continuing.
func (h *ConnHandler) Serve(ctx context.Context, r io.Reader) error {
	scratch := make([]byte, maxScratch)
	chunk := make([]byte, readChunkSize)
	var buf []byte

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if n == 0 {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read frame stream: %w", err)
			}
		}

		buf = h.drain(buf, scratch)

		if n == 0 && err == nil {
			// Nothing read and nothing to report; go straight back to Read.
			// A reader that keeps returning (0, nil) is polled again at once.
			continue
		}
	}
}

// drain repeatedly decodes frames out of the front of buf until Decode
// reports it needs more bytes, returning the remaining undecoded suffix.
func (h *ConnHandler) drain(buf []byte, scratch []byte) []byte {
	for {
		if len(buf) == 0 {
			return buf
		}

		f := &acp.Frame{}
		n, err := h.session.Decode(f, scratch, buf)
		if err != nil {
			var aerr *acp.Error
			if errors.As(err, &aerr) && aerr.Kind == acp.KindIncomplete {
				return buf
			}

			h.observeDecodeError(err)
			h.logger.Warn("frame decode failed", slog.String("error", err.Error()))

			// Resynchronize: skip the leading delimiter we already tried
			// and look for the next one to attempt again.
			next := bytes.IndexByte(buf[1:], 0x00)
			if next < 0 {
				return nil
			}
			buf = buf[1+next:]
			continue
		}

		h.collector.ObserveDecode(f.Type.String())
		h.logger.Debug("frame accepted",
			slog.String("type", f.Type.String()),
			slog.Uint64("sequence", uint64(f.Sequence)),
			slog.Int("payload_len", len(f.Payload)),
		)

		lastAccepted, _ := h.session.ReplayState()
		h.collector.SetReplayWindow(h.session.KeyID(), lastAccepted)

		buf = buf[n:]
	}
}

// observeDecodeError classifies err by acp.Kind and records it in the
// collector (SPEC_FULL.md §4.H).
func (h *ConnHandler) observeDecodeError(err error) {
	var aerr *acp.Error
	if !errors.As(err, &aerr) {
		return
	}

	switch aerr.Kind {
	case acp.KindAuthenticity:
		if errors.Is(aerr, acp.ErrReplay) {
			h.collector.ObserveReplayRejection("unknown")
		} else {
			h.collector.ObserveAuthFailure("unknown")
		}
	case acp.KindIntegrity:
		h.collector.ObserveCRCFailure()
	}
}
