package mnt

import (
	"fmt"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Open prepares fid for I/O under mode (one of the styxproto.O*
// constants, optionally or'd with OTRUNC/ORCLOSE). On success, fid's
// qid is refreshed from the reply and its IOUnit is set, matching
// devmnt.c's mntopen storing both the qid and iounit the server
// grants; Read and Write consult IOUnit to size their transfers.
func (m *Mount) Open(ctx context.Context, fid *Fid, mode uint8) error {
	if fid == nil {
		panic("mnt: Open called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Open called with a stale Fid")
	}
	msg, err := m.do(ctx, "open", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Topen(tag, fid.Num, mode)
		return nil
	})
	if err != nil {
		return err
	}
	ro, ok := msg.(styxproto.Ropen)
	if !ok {
		return &MountError{"open", fmt.Errorf("unexpected reply type %T to Topen", msg)}
	}
	fid.qid = styxproto.Qid(ro.Qid())
	fid.iounit = fidIOUnit(ro.IOunit(), m.Msize())
	fid.mode = mode
	fid.opened = true
	return nil
}

// Create asks the server to create name in the directory fid names,
// open it with mode, and associate the result with fid itself -- 9P
// overloads the directory fid as the new file's fid on success, the
// same as Tcreate's wire contract and devmnt.c's mntcreate.
func (m *Mount) Create(ctx context.Context, fid *Fid, name string, perm uint32, mode uint8) error {
	if fid == nil {
		panic("mnt: Create called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Create called with a stale Fid")
	}
	msg, err := m.do(ctx, "create", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Tcreate(tag, fid.Num, name, perm, mode)
		return nil
	})
	if err != nil {
		return err
	}
	rc, ok := msg.(styxproto.Rcreate)
	if !ok {
		return &MountError{"create", fmt.Errorf("unexpected reply type %T to Tcreate", msg)}
	}
	fid.qid = styxproto.Qid(rc.Qid())
	fid.iounit = fidIOUnit(rc.IOunit(), m.Msize())
	fid.mode = mode
	fid.opened = true
	return nil
}

// fidIOUnit mirrors devmnt.c's fallback when a server returns an
// iounit of zero: the negotiated msize, less the 9P read/write
// header, becomes the effective transfer unit.
func fidIOUnit(iounit int64, msize int64) int64 {
	if iounit > 0 {
		return iounit
	}
	u := msize - IOHDRSZ
	if u < 0 {
		return 0
	}
	return u
}
