// Package mnt multiplexes the 9P2000 protocol over a single
// bidirectional transport, so that many concurrent callers can issue
// attach, walk, open, read, write, stat, and clunk operations against
// a 9P server while sharing one connection.
//
// A Mount is created around a transport (anything implementing
// io.Reader and io.Writer) with NewMount or Dial. Every exported
// operation on a Mount, and on the Fids it returns, is safe to call
// concurrently from any number of goroutines: requests are tagged,
// sent over the shared transport, and their replies are dispatched
// back to the calling goroutine by a single background reader.
//
// Cancellation is expressed with context.Context. If the Context
// passed to an operation is done before a reply arrives, mnt sends a
// Tflush for the abandoned request, waits until the server
// acknowledges that Tflush (or the Mount hangs up), and then returns
// the Context's error.
package mnt
