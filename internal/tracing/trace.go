// Package tracing lets a Mount observe every 9P message it sends or
// receives, for debugging and protocol-level tests, without the
// operation layer itself knowing tracing is active.
package tracing

import (
	"io"

	"aqwari.net/net/styx/styxproto"
)

// A Func receives every message a traced Encoder or Decoder passes
// through. Messages are not copied; a Func must not modify msg, and
// msg is only valid until the Func returns.
type Func func(msg styxproto.Msg)

// Decoder wraps a Decoder of size bufsize around r, calling fn with
// every message as it is decoded. bufsize must be at least as large
// as the Mount's negotiated msize: a tracing Decoder re-encodes each
// message onto an internal pipe for the caller's real Decoder to
// parse, so undersizing it relative to msize would truncate messages
// tracing itself never would have dropped.
func Decoder(r io.Reader, bufsize int, fn Func) *styxproto.Decoder {
	rd, wr := io.Pipe()
	decoderInput := styxproto.NewDecoderSize(r, bufsize)
	decoderTrace := styxproto.NewDecoderSize(rd, bufsize)
	go func() {
		for decoderInput.Next() {
			fn(decoderInput.Msg())
			styxproto.Write(wr, decoderInput.Msg())
		}
		wr.Close()
	}()
	return decoderTrace
}

// Encoder wraps an Encoder around w, calling fn with every message
// just before it is written to w.
func Encoder(w io.Writer, fn Func) *styxproto.Encoder {
	rd, wr := io.Pipe()
	encoder := styxproto.NewEncoder(wr)
	decoder := styxproto.NewDecoderSize(rd, maxEncoderTraceSize)
	go func() {
		for decoder.Next() {
			fn(decoder.Msg())
			styxproto.Write(w, decoder.Msg())
		}
	}()
	return encoder
}

// maxEncoderTraceSize bounds the internal pipe Decoder used to
// recover individual messages from an Encoder's output stream for
// tracing. A Mount never writes a request larger than maxMsize, the
// protocol-wide ceiling on a negotiated msize, so sizing against that
// constant (rather than a per-Mount value the Encoder doesn't carry)
// is always enough.
const maxEncoderTraceSize = 1 << 20
