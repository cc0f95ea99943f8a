package mnt

import (
	"io"

	"aqwari.net/net/mnt/internal/tracing"
	"aqwari.net/net/styx/styxproto"
)

// readLoop is the Mount's single reader: for the lifetime of the
// Mount, exactly one goroutine calls Decoder.Next, satisfying the
// single-reader invariant devmnt.c enforces by electing a reader
// among blocked callers (m->rip). A dedicated goroutine is the
// idiomatic Go equivalent: the invariant holds by construction
// instead of by runtime arbitration.
func (m *Mount) readLoop(tr Transport, trace func(styxproto.Msg)) {
	// The decoder's buffer must hold at least MaxRPC0, the kernel
	// mount driver's own MAXRPC floor, and at least the msize this
	// Mount will propose during negotiation -- a server can only
	// shrink msize, never grow it, so sizing off the request is
	// always enough for whatever is actually negotiated.
	bufsize := int(m.msize)
	if bufsize < MaxRPC0 {
		bufsize = MaxRPC0
	}

	var dec *styxproto.Decoder
	if trace != nil {
		dec = tracing.Decoder(tr, bufsize, trace)
	} else {
		dec = styxproto.NewDecoderSize(tr, bufsize)
	}

	for dec.Next() {
		m.dispatch(cloneMsg(dec.Msg()))
	}
	err := dec.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	m.hangup(err)
}

// cloneMsg copies a message out of the Decoder's internal buffer. The
// byte slices styxproto.Decoder.Msg returns alias that buffer and are
// only valid until the next call to Next; since dispatch hands
// messages off to another goroutine entirely, they must be copied out
// first. Rread is handled specially: its data is drained into an
// owned buffer and wrapped in a Msg that no longer depends on the
// Decoder at all.
func cloneMsg(m styxproto.Msg) styxproto.Msg {
	switch v := m.(type) {
	case styxproto.Rversion:
		return append(styxproto.Rversion(nil), v...)
	case styxproto.Rauth:
		return append(styxproto.Rauth(nil), v...)
	case styxproto.Rattach:
		return append(styxproto.Rattach(nil), v...)
	case styxproto.Rerror:
		return append(styxproto.Rerror(nil), v...)
	case styxproto.Rflush:
		return append(styxproto.Rflush(nil), v...)
	case styxproto.Rwalk:
		return append(styxproto.Rwalk(nil), v...)
	case styxproto.Ropen:
		return append(styxproto.Ropen(nil), v...)
	case styxproto.Rcreate:
		return append(styxproto.Rcreate(nil), v...)
	case styxproto.Rwrite:
		return append(styxproto.Rwrite(nil), v...)
	case styxproto.Rclunk:
		return append(styxproto.Rclunk(nil), v...)
	case styxproto.Rremove:
		return append(styxproto.Rremove(nil), v...)
	case styxproto.Rstat:
		return append(styxproto.Rstat(nil), v...)
	case styxproto.Rwstat:
		return append(styxproto.Rwstat(nil), v...)
	case styxproto.Rread:
		data, err := io.ReadAll(v)
		v.Close()
		return &bufferedRread{tag: v.Tag(), data: data, err: err}
	default:
		return m
	}
}

// bufferedRread is the Msg a caller's Read sees after dispatch has
// drained a styxproto.Rread's payload into memory.
type bufferedRread struct {
	tag  uint16
	data []byte
	err  error
}

func (r *bufferedRread) Tag() uint16 { return r.tag }
func (r *bufferedRread) Len() int64  { return int64(len(r.data)) }

// dispatch delivers one decoded message to the goroutine waiting on
// its tag. A message whose tag has no registered waiter -- because
// the caller already gave up on it after a flush, or because the
// server misbehaved -- is logged and discarded; mountmux in devmnt.c
// does the same for replies that arrive after mntflushfree has
// already run.
func (m *Mount) dispatch(msg styxproto.Msg) {
	tag := msg.Tag()

	v, ok := m.waiters.Get(tag)
	if !ok {
		m.log.WithFields(map[string]interface{}{"tag": tag}).
			Debug("mnt: reply for unknown tag, discarding")
		return
	}
	r := v.(*rpc)

	var result rpcResult
	if rerr, ok := msg.(styxproto.Rerror); ok {
		result.err = remoteError(rerr.Ename())
	} else {
		result.msg = msg
	}

	select {
	case r.reply <- result:
	default:
		// The waiter already gave up (a flush raced the reply); the
		// rpc record is not ours to touch past this point, since the
		// owning goroutine may already have returned it to the free
		// list.
		m.log.WithFields(map[string]interface{}{"tag": tag}).
			Debug("mnt: reply arrived after its caller stopped waiting")
	}
}
