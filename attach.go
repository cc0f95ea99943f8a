package mnt

import (
	"fmt"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Auth starts an authentication exchange for uname/aname, associating
// the exchange with afid. The returned Fid's later use as the afid
// argument to Attach is the only thing Auth's result is good for; it
// is not a file and should not be walked, read, or written directly
// by callers (the exchange itself, beyond obtaining the afid's qid,
// is out of scope for this package -- see SPEC_FULL.md).
func (m *Mount) Auth(ctx context.Context, afid uint32, uname, aname string) (*Fid, error) {
	if _, _, err := m.Version(ctx); err != nil {
		return nil, err
	}
	msg, err := m.do(ctx, "auth", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Tauth(tag, afid, uname, aname)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ra, ok := msg.(styxproto.Rauth)
	if !ok {
		return nil, &MountError{"auth", fmt.Errorf("unexpected reply type %T to Tauth", msg)}
	}
	return &Fid{Num: afid, mount: m, mid: m.id, qid: styxproto.Qid(ra.Aqid())}, nil
}

// Attach associates fid with the root of the file tree uname has
// access to under aname. If afid is non-nil, it must be a Fid
// returned by a prior call to Auth on this same Mount; supplying an
// afid from a different Mount returns ErrBadUseFid, matching
// devmnt.c's mntattach check (if(ac != nil && ac->mchan != c)
// error(Ebadusefd)). A nil afid attaches without authentication.
func (m *Mount) Attach(ctx context.Context, fid uint32, afid *Fid, uname, aname string) (*Fid, error) {
	if _, _, err := m.Version(ctx); err != nil {
		return nil, err
	}
	afidNum := noFid
	if afid != nil {
		if afid.mount != m {
			return nil, &MountError{"attach", ErrBadUseFid}
		}
		afidNum = afid.Num
	}
	msg, err := m.do(ctx, "attach", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Tattach(tag, fid, afidNum, uname, aname)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ra, ok := msg.(styxproto.Rattach)
	if !ok {
		return nil, &MountError{"attach", fmt.Errorf("unexpected reply type %T to Tattach", msg)}
	}
	m.refs.IncRef()
	return &Fid{Num: fid, mount: m, mid: m.id, qid: styxproto.Qid(ra.Qid())}, nil
}

// NewFid allocates a fid number from the Mount's convenience fid
// pool, for callers that do not want to manage their own fid
// namespace. Fids returned by NewFid must be released with FreeFid
// once clunked or removed.
func (m *Mount) NewFid() (uint32, error) {
	fid, ok := m.fids.Get()
	if !ok {
		return 0, ErrFidsExhausted
	}
	return fid, nil
}

// FreeFid returns a fid number allocated by NewFid to the pool.
func (m *Mount) FreeFid(fid uint32) {
	m.fids.Free(fid)
}
