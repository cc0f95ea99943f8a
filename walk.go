package mnt

import (
	"fmt"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Walk walks the path named by names, element by element, starting
// from fid, and associates the result with newfid. If newfid is nil,
// no fid is left behind on success: mnt performs the walk against a
// scratch fid and clunks it immediately afterward, useful for a
// caller that only wants to know whether a path exists and what its
// qids are (see SPEC_FULL.md's note on devmnt.c's provisional clone
// fids). Walking zero elements clones fid.
//
// Per 9P2000, at most MaxWElem path elements may be walked in a
// single Twalk message; unlike a host path-walking layer, which would
// chunk an arbitrarily long path across several Twalks and fids, mnt
// is the mux-layer Twalk operation itself and carries the wire limit
// through unchanged: Walk fails with ErrTooManyWalkElems, without
// sending anything, if len(names) > styxproto.MaxWElem, exactly as
// devmnt.c's mntwalk rejects nname > MAXWELEM before building a
// request.
//
// If any element along the path does not exist, Walk returns the qids
// successfully walked so far along with an error identifying the
// first missing element; the target fid, if any was associated, is
// left unattached to any file, as with a partial Twalk.
func (m *Mount) Walk(ctx context.Context, fid *Fid, newfid *uint32, names ...string) (*Fid, []styxproto.Qid, error) {
	if fid == nil {
		panic("mnt: Walk called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Walk called with a stale Fid")
	}
	if len(names) > styxproto.MaxWElem {
		return nil, nil, &MountError{"walk", ErrTooManyWalkElems}
	}

	var target uint32
	var scratch bool
	if newfid != nil {
		target = *newfid
	} else {
		n, ok := m.fids.Get()
		if !ok {
			return nil, nil, &MountError{"walk", ErrFidsExhausted}
		}
		target = n
		scratch = true
	}

	msg, err := m.do(ctx, "walk", func(enc *styxproto.Encoder, tag uint16) error {
		return enc.Twalk(tag, fid.Num, target, names...)
	})
	if err != nil {
		if scratch {
			m.fids.Free(target)
		}
		return nil, nil, err
	}
	rw, ok := msg.(styxproto.Rwalk)
	if !ok {
		if scratch {
			m.fids.Free(target)
		}
		return nil, nil, &MountError{"walk", fmt.Errorf("unexpected reply type %T to Twalk", msg)}
	}

	n := rw.Nwqid()
	if n > len(names) {
		if scratch {
			m.fids.Free(target)
		}
		return nil, nil, &MountError{"walk", fmt.Errorf("%w: got %d, walked %d elements", ErrTooManyQids, n, len(names))}
	}
	qids := make([]styxproto.Qid, n)
	for i := range qids {
		qids[i] = styxproto.Qid(rw.Wqid(i))
	}
	if n < len(names) {
		if scratch {
			m.fids.Free(target)
		}
		return nil, qids, &MountError{"walk", fmt.Errorf("no such file: %q", names[n])}
	}

	qid := fid.qid
	if len(qids) > 0 {
		qid = qids[len(qids)-1]
	}

	if scratch {
		m.clunkFid(ctx, target)
		m.fids.Free(target)
		return nil, qids, nil
	}

	m.refs.IncRef()
	return &Fid{Num: target, mount: m, mid: m.id, qid: qid}, qids, nil
}
