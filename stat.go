package mnt

import (
	"encoding/binary"
	"fmt"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Stat fetches the current directory entry for fid, with its leading
// devtype/devno fields rewritten to this Mount's local values (see
// fixupStat): devmnt.c's mntstat always runs its reply through
// mntdirfix before handing it back to the caller.
func (m *Mount) Stat(ctx context.Context, fid *Fid) (styxproto.Stat, error) {
	if fid == nil {
		panic("mnt: Stat called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Stat called with a stale Fid")
	}
	msg, err := m.do(ctx, "stat", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Tstat(tag, fid.Num)
		return nil
	})
	if err != nil {
		return nil, err
	}
	rs, ok := msg.(styxproto.Rstat)
	if !ok {
		return nil, &MountError{"stat", fmt.Errorf("unexpected reply type %T to Tstat", msg)}
	}
	stat := rs.Stat()
	if err := validateStat(stat); err != nil {
		return nil, &MountError{"stat", err}
	}
	fixupStat(stat, uint32(m.id))
	return stat, nil
}

// Wstat requests the changes described by stat be applied to fid. As
// with the wire protocol, fields left as their "don't touch" values
// (0xFF...  strings, ^uint32(0) for numeric fields) are left alone by
// the server; callers that only want to change one field should start
// from a zero Stat built for that purpose rather than a fetched one.
func (m *Mount) Wstat(ctx context.Context, fid *Fid, stat styxproto.Stat) error {
	if fid == nil {
		panic("mnt: Wstat called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Wstat called with a stale Fid")
	}
	msg, err := m.do(ctx, "wstat", func(enc *styxproto.Encoder, tag uint16) error {
		enc.Twstat(tag, fid.Num, stat)
		return nil
	})
	if err != nil {
		return err
	}
	if _, ok := msg.(styxproto.Rwstat); !ok {
		return &MountError{"wstat", fmt.Errorf("unexpected reply type %T to Twstat", msg)}
	}
	return nil
}

// ReadDir reads one Tread's worth of directory entries from fid
// starting at offset, and splits the returned bytes into individual
// Stat records. It returns the next offset a subsequent call should
// use to continue the listing, and a nil entry slice (with the same,
// unchanged, returned offset) once the directory is exhausted -- a
// zero-length Tread reply is 9P's end-of-directory marker, the same
// as devmnt.c's mntdirread loop stopping when Twalk... Tread comes
// back empty.
//
// Mount.Read has already run fid's qid through mntdirfix by the time
// ReadDir splits it into individual entries, so each returned Stat's
// devtype/devno already name this Mount rather than the server.
func (m *Mount) ReadDir(ctx context.Context, fid *Fid, offset int64) ([]styxproto.Stat, int64, error) {
	if fid == nil {
		panic("mnt: ReadDir called with a nil Fid")
	}
	chunk := int(fidIOUnit(fid.iounit, m.Msize()))
	if chunk <= 0 {
		return nil, offset, &MountError{"readdir", fmt.Errorf("no usable iounit")}
	}
	buf := make([]byte, chunk)
	n, err := m.Read(ctx, fid, offset, buf)
	if err != nil {
		return nil, offset, err
	}
	if n == 0 {
		return nil, offset, nil
	}
	entries, err := splitStats(buf[:n])
	if err != nil {
		return nil, offset, &MountError{"readdir", err}
	}
	return entries, offset + int64(n), nil
}

// minStatLen is the smallest possible encoding of a Stat: its 2-byte
// size prefix, 2-byte type, 4-byte dev, 13-byte qid, 4-byte mode,
// 4-byte atime, 4-byte mtime, 8-byte length, and four empty
// length-prefixed strings (name, uid, gid, muid).
const minStatLen = 2 + 2 + 4 + 13 + 4 + 4 + 4 + 8 + 4*2

// splitStats walks a buffer of back-to-back Stat records, each
// prefixed by its own 2-byte little-endian size (not counting the
// size field itself), as Tread on a directory returns them. A
// trailing record that is too short to hold its declared size, or too
// short to be a valid Stat at all, is ErrBadDirEntry: devmnt.c reports
// this same condition -- a malformed or partial Dir entry arriving
// from the server -- as "invalid directory entry received from
// server", distinct from ErrShortStat, which validateStat reports for
// a single Stat reply too short to hold a directory entry.
func splitStats(buf []byte) ([]styxproto.Stat, error) {
	var stats []styxproto.Stat
	for len(buf) > 0 {
		if len(buf) < 2 {
			return nil, ErrBadDirEntry
		}
		size := int(binary.LittleEndian.Uint16(buf[0:2]))
		total := size + 2
		if total > len(buf) || total < minStatLen {
			return nil, ErrBadDirEntry
		}
		stats = append(stats, styxproto.Stat(buf[:total]))
		buf = buf[total:]
	}
	return stats, nil
}

// validateStat reports ErrShortStat if s is too short to hold the
// fixed-size fields fixupStat writes to, mirroring devmnt.c's
// mntdirfix bailing out of a Stat it cannot trust the layout of.
func validateStat(s styxproto.Stat) error {
	if len(s) < minStatLen {
		return ErrShortStat
	}
	return nil
}

// fixupStat rewrites, in place, the leading devtype and devno fields
// of a Stat record to the Mount's local values, the same rewrite
// devmnt.c's mntdirfix applies to every Dir entry a mount's Tstat or
// directory Tread returns, so a listing is self-consistent in the
// local namespace rather than the server's.
func fixupStat(s styxproto.Stat, devno uint32) {
	binary.LittleEndian.PutUint16(s[2:4], mntDevType)
	binary.LittleEndian.PutUint32(s[4:8], devno)
}

// fixupDirEntries splits buf into individual Stat records and applies
// fixupStat to each in place, as mntdirfix does for every entry a
// directory Tread returns.
func fixupDirEntries(buf []byte, devno uint32) error {
	stats, err := splitStats(buf)
	if err != nil {
		return err
	}
	for _, s := range stats {
		fixupStat(s, devno)
	}
	return nil
}
