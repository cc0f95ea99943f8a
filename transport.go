package mnt

import "io"

// A Transport is a bidirectional byte stream to a 9P server. Anything
// satisfying net.Conn, or a plain io.Reader/io.Writer pair joined with
// io.Pipe, works as a Transport. Unlike a file, a Transport has no
// notion of an offset: reads and writes are against the 9P message
// stream itself, not a seekable resource, so implementations that also
// happen to be io.Seeker are never seeked by this package.
type Transport interface {
	io.Reader
	io.Writer
}

// transportCloser is satisfied by most real transports (net.Conn,
// *os.File, io.Pipe's halves); Mount.Close uses it opportunistically
// to unblock a background reader stuck in a blocking Read.
type transportCloser interface {
	Close() error
}
