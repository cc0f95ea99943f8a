package mnt

import (
	"errors"
	"fmt"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Clunk releases fid's association with its file. If the Tclunk fails
// because the Mount has hung up, fid is left as-is: devmnt.c's
// mntclunk only frees a channel's fid once the Tclunk it sent is
// actually acknowledged by the server (even as an error), since a
// hung-up transport never got to tell the server anything. Any other
// error, like a successful reply, still marks fid stale.
func (m *Mount) Clunk(ctx context.Context, fid *Fid) error {
	if fid == nil {
		panic("mnt: Clunk called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Clunk called with a stale Fid")
	}
	err := m.clunkFid(ctx, fid.Num)
	if !errors.Is(err, ErrHungup) {
		fid.clunk()
	}
	m.refs.DecRef()
	return err
}

// Remove clunks fid and asks the server to remove the file it names.
// As with Clunk, fid is stale afterward unless the attempt failed
// because the Mount hung up, in which case fid is preserved.
func (m *Mount) Remove(ctx context.Context, fid *Fid) error {
	if fid == nil {
		panic("mnt: Remove called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Remove called with a stale Fid")
	}
	msg, err := m.do(ctx, "remove", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Tremove(tag, fid.Num)
		return nil
	})
	if !errors.Is(err, ErrHungup) {
		fid.clunk()
	}
	m.refs.DecRef()
	if err != nil {
		return err
	}
	if _, ok := msg.(styxproto.Rremove); !ok {
		return &MountError{"remove", fmt.Errorf("unexpected reply type %T to Tremove", msg)}
	}
	return nil
}

// clunkFid sends a Tclunk for a bare fid number, used both by Clunk
// and internally by Walk to discard a scratch fid created for an
// existence check. Errors from a best-effort clunk are still returned
// to the caller that asked for one, but Walk ignores them: a failed
// clunk of a fid the caller never saw is not actionable.
func (m *Mount) clunkFid(ctx context.Context, fid uint32) error {
	msg, err := m.do(ctx, "clunk", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Tclunk(tag, fid)
		return nil
	})
	if err != nil {
		return err
	}
	if _, ok := msg.(styxproto.Rclunk); !ok {
		return &MountError{"clunk", fmt.Errorf("unexpected reply type %T to Tclunk", msg)}
	}
	return nil
}
