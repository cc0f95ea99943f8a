package mnt

import (
	"sync/atomic"

	"aqwari.net/net/styx/styxproto"
)

// A Fid is the client's local handle for a file on a Mount, returned
// by Attach and Walk. It mirrors the channel (Chan) a Plan 9 kernel
// associates with a 9P fid: the file's qid, and, once Open or Create
// has been called, the iounit and open mode the server granted.
//
// Fid does not allocate or own the wire fid number itself; callers
// supply it (see NewFid for a convenience allocator), matching
// spec.md's framing of fid bookkeeping as the host's responsibility,
// not this package's.
type Fid struct {
	Num uint32

	mount *Mount
	mid   uint64 // Mount.id at the time this Fid was created

	qid     styxproto.Qid
	iounit  int64
	mode    uint8
	opened  bool
	clunked uint32
}

// Qid returns the identity the server assigned to this Fid's file,
// as returned by Attach, Walk, or Create.
func (f *Fid) Qid() styxproto.Qid { return f.qid }

// Mount returns the Mount a Fid was created from.
func (f *Fid) Mount() *Mount { return f.mount }

// IOUnit returns the maximum number of bytes guaranteed to be
// transferred in a single read or write to this Fid, as returned by
// the most recent Open or Create call. Reads and writes for more than
// IOUnit bytes are still serviced correctly, but may require more than
// one round trip under the hood.
func (f *Fid) IOUnit() int64 { return f.iounit }

// Stale reports whether f was created by a Mount that has since been
// closed and replaced; this mirrors devmnt.c's mntchk, which panics
// when a channel outlives its mount's generation. Unlike mntchk,
// Stale lets a caller holding a long-lived Fid check before using it,
// rather than crashing.
func (f *Fid) Stale() bool {
	return f.mount == nil || f.mount.closed() || f.mount.id != f.mid || atomic.LoadUint32(&f.clunked) != 0
}

// clunk marks f as no longer associated with a file, so further use
// is reported by Stale instead of silently reissuing requests against
// a fid number the server has already forgotten.
func (f *Fid) clunk() {
	atomic.StoreUint32(&f.clunked, 1)
}
