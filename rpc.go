package mnt

import (
	"sync"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// an rpc tracks one in-flight request: the tag it was sent under, and
// the channel its reply (or error) will be delivered on by the
// Mount's reader goroutine. It is the Go realization of devmnt.c's
// Mntrpc record.
type rpc struct {
	tag   uint16
	reply chan rpcResult
}

type rpcResult struct {
	msg styxproto.Msg
	err error
}

// rpcFreeList is a bounded pool of *rpc records, mirroring devmnt.c's
// mntralloc/mntfree: rather than letting every request allocate and
// discard an rpc and its reply channel, up to rpcFreeListCap retired
// records are kept ready for reuse.
type rpcFreeList struct {
	mu   sync.Mutex
	free []*rpc
}

func (l *rpcFreeList) get() *rpc {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.free); n > 0 {
		r := l.free[n-1]
		l.free = l.free[:n-1]
		return r
	}
	return &rpc{reply: make(chan rpcResult, 1)}
}

func (l *rpcFreeList) put(r *rpc) {
	// drain a stale result, if the reply channel still has one
	// buffered from a request we gave up on (e.g. after a flush).
	select {
	case <-r.reply:
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.free) < rpcFreeListCap {
		l.free = append(l.free, r)
	}
}

// getTag allocates a tag for op, turning the tag pool's panic on
// exhaustion into a plain, recoverable error: every tag being in
// flight at once is a condition a caller of a Mount operation can
// reasonably be asked to retry.
func (m *Mount) getTag(op string) (tag uint16, err error) {
	defer func() {
		if recover() != nil {
			err = &MountError{op, ErrTagsExhausted}
		}
	}()
	return m.tags.Get(), nil
}

// do sends a request built by encode under a freshly allocated tag,
// registers it with the Mount's reader goroutine, and waits for the
// matching reply. If ctx is done before a reply arrives, do sends a
// Tflush for the abandoned tag and returns ctx.Err() wrapped so that
// errors.Is(err, ErrFlushed) also reports true.
func (m *Mount) do(ctx context.Context, op string, encode func(enc *styxproto.Encoder, tag uint16) error) (styxproto.Msg, error) {
	if m.closed() {
		return nil, &MountError{op, ErrHungup}
	}
	tag, err := m.getTag(op)
	if err != nil {
		return nil, err
	}

	r := m.rpcs.get()
	r.tag = tag
	m.waiters.Put(tag, r)

	if err := encode(m.enc, tag); err != nil {
		m.waiters.Del(tag)
		m.tags.Free(tag)
		m.rpcs.put(r)
		return nil, &MountError{op, err}
	}
	if err := m.enc.Flush(); err != nil {
		m.waiters.Del(tag)
		m.tags.Free(tag)
		m.rpcs.put(r)
		m.hangup(err)
		return nil, &MountError{op, err}
	}

	select {
	case res := <-r.reply:
		m.waiters.Del(tag)
		m.tags.Free(tag)
		m.rpcs.put(r)
		if rerr, ok := res.err.(remoteError); ok {
			return nil, rerr
		}
		if res.err != nil {
			return nil, &MountError{op, res.err}
		}
		return res.msg, nil
	case <-ctx.Done():
		return nil, m.abandon(ctx, op, tag, r)
	case <-m.dead:
		m.waiters.Del(tag)
		m.tags.Free(tag)
		m.rpcs.put(r)
		return nil, &MountError{op, ErrHungup}
	}
}
