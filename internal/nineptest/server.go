// Package nineptest provides a minimal in-memory 9P server for
// exercising a Mount without a live server. It is grounded on the
// Plan 9 styx server's own connection loop (decode a request, hand it
// to a handler, flush whatever the handler wrote), the same pattern
// the teacher used for its own server tests, run over a net.Pipe
// instead of a real listener.
package nineptest

import (
	"net"

	"aqwari.net/net/styx/styxproto"
)

// A Handler answers one decoded request by writing zero or more
// reply messages to enc; it does not need to call enc.Flush, which
// the server does once per request.
type Handler interface {
	Serve(msg styxproto.Msg, enc *styxproto.Encoder)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(msg styxproto.Msg, enc *styxproto.Encoder)

// Serve calls f.
func (f HandlerFunc) Serve(msg styxproto.Msg, enc *styxproto.Encoder) { f(msg, enc) }

// Pipe starts h serving requests over one half of an in-memory
// net.Pipe connection and returns the other half, ready to be passed
// to Dial or NewMount as a Transport. The server goroutine exits once
// its half of the connection is closed or produces a decode error.
func Pipe(h Handler) net.Conn {
	server, client := net.Pipe()
	go serve(server, h)
	return client
}

func serve(conn net.Conn, h Handler) {
	defer conn.Close()
	dec := styxproto.NewDecoder(conn)
	enc := styxproto.NewEncoder(conn)
	for dec.Next() {
		h.Serve(dec.Msg(), enc)
		if err := enc.Flush(); err != nil {
			return
		}
	}
}
