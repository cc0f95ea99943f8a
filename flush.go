package mnt

import (
	"time"

	"aqwari.net/retry"
	"golang.org/x/net/context"
)

// abandon is called when a request's Context is done before its reply
// arrives. It sends a Tflush for tag and waits for the flush to be
// acknowledged, mirroring devmnt.c's mountio: on interrupt, a Tflush
// is sent for the outstanding tag, and the caller does not return
// until the flush (or the original request, if it wins the race) is
// resolved. Unlike devmnt.c, which retries flush chains across nested
// interrupts, a single Context firing Done() exactly once only ever
// needs a single Tflush here.
func (m *Mount) abandon(ctx context.Context, op string, tag uint16, r *rpc) error {
	cause := &flushedError{ctx.Err()}

	ftag, err := m.getTag(op)
	if err != nil {
		// No tag left to flush with. The original request is still
		// outstanding on the server; its eventual reply will find no
		// waiter and be logged as an orphan by dispatch.
		m.waiters.Del(tag)
		m.tags.Free(tag)
		m.rpcs.put(r)
		return &MountError{op, cause}
	}

	fr := m.rpcs.get()
	fr.tag = ftag
	m.waiters.Put(ftag, fr)

	if err := m.sendFlush(ftag, tag); err != nil {
		m.waiters.Del(ftag)
		m.tags.Free(ftag)
		m.rpcs.put(fr)
		m.waiters.Del(tag)
		m.tags.Free(tag)
		m.rpcs.put(r)
		m.hangup(err)
		return &MountError{op, err}
	}

	select {
	case <-fr.reply:
		m.waiters.Del(ftag)
		m.tags.Free(ftag)
		m.rpcs.put(fr)
	case <-m.dead:
	}

	// If the original request's reply won the race with our flush, it
	// is sitting buffered on r.reply; discard it; the caller already
	// observed cancellation and has moved on.
	select {
	case <-r.reply:
	default:
	}
	m.waiters.Del(tag)
	m.tags.Free(tag)
	m.rpcs.put(r)

	return &MountError{op, cause}
}

// flushedError marks the Context error of a request abandoned after
// cancellation; a Tflush accompanies it unless no tag was left to send
// one with. errors.Is(err, ErrFlushed) reports
// true for any request abandoned this way, while errors.Is(err, ...)
// against the original Context error still succeeds through Unwrap --
// a caller can check either the generic "this was flushed" condition
// or the specific reason (deadline, explicit cancellation) that caused
// it.
type flushedError struct {
	cause error
}

func (e *flushedError) Error() string        { return e.cause.Error() }
func (e *flushedError) Unwrap() error        { return e.cause }
func (e *flushedError) Is(target error) bool { return target == ErrFlushed }

// sendFlush writes a Tflush frame, retrying with exponential backoff
// if the transport reports a transient error, the same pattern the
// teacher's Accept loop uses for recoverable listener errors.
func (m *Mount) sendFlush(ftag, oldtag uint16) error {
	backoff := retry.Exponential(time.Millisecond).Max(time.Second)
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		m.enc.Tflush(ftag, oldtag)
		err = m.enc.Flush()
		if err == nil || !isTempErr(err) {
			return err
		}
		time.Sleep(backoff(attempt))
	}
	return err
}

// isTempErr reports whether err exports a Temporary() bool method
// that returns true, the same duck-typed check net.Error and similar
// transport errors support; sendFlush uses it to decide whether a
// failed Tflush write is worth retrying at all.
func isTempErr(err error) bool {
	type temporary interface {
		Temporary() bool
	}
	te, ok := err.(temporary)
	return ok && te.Temporary()
}
