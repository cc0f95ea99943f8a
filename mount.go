package mnt

import (
	"sync"
	"sync/atomic"

	"aqwari.net/net/mnt/internal/tagpool"
	"aqwari.net/net/mnt/internal/tracing"
	"aqwari.net/net/mnt/internal/util"
	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
	"golang.org/x/sync/singleflight"
)

// Options configures a Mount.
type Options struct {
	// MaxSize is the msize proposed during version negotiation: the
	// largest 9P message the caller is willing to send or receive.
	// If zero, a conservative default is used.
	MaxSize uint32

	// Version is the dialect string proposed during version
	// negotiation. If empty, "9P2000" is used.
	Version string

	// Logger receives diagnostics about orphaned replies, reply/tag
	// mismatches, and flush races. If nil, diagnostics are discarded.
	Logger Logger

	// Trace, if non-nil, is called with every message sent or
	// received on the Mount's transport, in addition to any
	// Logger-directed diagnostics. It is intended for debugging
	// and protocol-level tests, not production logging.
	Trace func(msg styxproto.Msg)
}

// A Mount multiplexes 9P operations from any number of goroutines
// over a single Transport. Use Dial or NewMount to create one.
type Mount struct {
	id uint64 // drawn once from mountSeq by NewMount; unique per Mount

	tr  Transport
	enc *styxproto.Encoder

	tags tagpool.TagPool
	fids tagpool.FidPool
	rpcs rpcFreeList

	waiters *util.TagMap // tag -> *rpc

	refs util.RefCount

	log       Logger
	negotiate singleflight.Group

	msize       int64
	version     string
	versionDone bool

	mu      sync.Mutex
	dead    chan struct{}
	deadErr error
	hungup  uint32
}

var mountSeq uint64

// NewMount creates a Mount around an already-connected Transport. The
// returned Mount has not yet negotiated a protocol version; the first
// call to Version, Auth, or Attach does so, and concurrent first
// callers block on the same in-flight negotiation rather than each
// sending their own Tversion.
func NewMount(tr Transport, opts Options) *Mount {
	var enc *styxproto.Encoder
	if opts.Trace != nil {
		enc = tracing.Encoder(tr, opts.Trace)
	} else {
		enc = styxproto.NewEncoder(tr)
	}
	log := opts.Logger
	if log == nil {
		log = discardLogger{}
	}
	m := &Mount{
		id:      atomic.AddUint64(&mountSeq, 1),
		tr:      tr,
		enc:     enc,
		waiters: util.NewTagMap(),
		log:     log,
		msize:   int64(opts.MaxSize),
		version: opts.Version,
		dead:    make(chan struct{}),
	}
	if m.msize <= 0 {
		m.msize = defaultMsize
	}
	if m.version == "" {
		m.version = defaultVersion
	}
	go m.readLoop(tr, opts.Trace)
	return m
}

// Dial negotiates a protocol version immediately and returns a ready
// Mount, or the error returned by the server during negotiation.
func Dial(ctx context.Context, tr Transport, opts Options) (*Mount, error) {
	m := NewMount(tr, opts)
	if _, _, err := m.Version(ctx); err != nil {
		m.hangup(err)
		return nil, err
	}
	return m, nil
}

// Msize returns the maximum message size. Until Version negotiation
// has completed it is the msize the Mount will propose (Options.MaxSize
// or the default); afterward it is the negotiated value.
func (m *Mount) Msize() int64 { return atomic.LoadInt64(&m.msize) }

// closed reports whether the Mount's transport has been torn down.
func (m *Mount) closed() bool { return atomic.LoadUint32(&m.hungup) != 0 }

// hangup marks the Mount as dead, failing every pending and future
// request with err, and closes the underlying transport if possible.
// It is idempotent.
func (m *Mount) hangup(err error) {
	if !atomic.CompareAndSwapUint32(&m.hungup, 0, 1) {
		return
	}
	m.mu.Lock()
	m.deadErr = err
	close(m.dead)
	m.mu.Unlock()

	m.waiters.Do(func(values map[uint16]interface{}) {
		for tag, v := range values {
			r := v.(*rpc)
			select {
			case r.reply <- rpcResult{err: ErrHungup}:
			default:
			}
			delete(values, tag)
		}
	})
	if c, ok := m.tr.(transportCloser); ok {
		c.Close()
	}
}

// Close tears down the Mount: the transport is closed, the background
// reader exits, and every pending request and every later request
// sent through the Mount (Auth, Attach) fails with ErrHungup. Fids
// from a closed Mount are Stale, so operations taking one panic;
// Version keeps returning the values negotiated before Close. Close
// is safe to call more than once and from any goroutine.
//
// devmnt.c's muxclose runs automatically, the instant a transport
// channel's own reference count (bumped by every attach/clone/walk
// against it) reaches zero; a Go Mount's transport has no such
// channel layer; deciding a Mount is no longer needed is a caller
// decision, not something the momentary absence of open Fids should
// trigger on its own (a Fid count that dips to zero between two
// unrelated Attach calls is normal, not end-of-life). Callers that
// want devmnt.c's auto-teardown can poll Idle and Close once it turns
// true; see Idle's doc comment.
func (m *Mount) Close() error {
	m.hangup(ErrHungup)
	return nil
}

// Idle reports whether every Fid this Mount has ever produced via
// Attach or Walk has since been Clunked or Removed -- the condition
// devmnt.c treats as license to run muxclose. A Mount with Idle true
// is not closed automatically; a caller that wants that behavior
// should check Idle after its own last Clunk and call Close itself.
func (m *Mount) Idle() bool {
	return !m.refs.Live()
}

// Stale reports whether fid is nil or no longer usable (see
// Fid.Stale).
func (m *Mount) Stale(fid *Fid) bool {
	return fid == nil || fid.Stale()
}
