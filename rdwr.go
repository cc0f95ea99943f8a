package mnt

import (
	"fmt"

	"aqwari.net/net/mnt/internal/wire"
	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Read fills p with data read from fid starting at offset, issuing as
// many Tread messages as needed to stay within the fid's IOUnit (or,
// if fid has not been opened with a server-granted iounit, the
// negotiated msize less the 9P I/O header). Read stops, returning
// fewer bytes than len(p) with a nil error, the first time a Tread
// comes back shorter than requested: as with a Plan 9 mntio read,
// a short reply means end of file, not an error.
func (m *Mount) Read(ctx context.Context, fid *Fid, offset int64, p []byte) (int, error) {
	if fid == nil {
		panic("mnt: Read called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Read called with a stale Fid")
	}
	chunk := int(fidIOUnit(fid.iounit, m.Msize()))
	if chunk <= 0 {
		return 0, &MountError{"read", fmt.Errorf("no usable iounit")}
	}

	var total int
	for total < len(p) {
		want := len(p) - total
		if want > chunk {
			want = chunk
		}
		off := offset + int64(total)
		msg, err := m.do(ctx, "read", func(enc *styxproto.Encoder, tag uint16) error {
			return enc.Tread(tag, fid.Num, off, int64(want))
		})
		if err != nil {
			return total, err
		}
		br, ok := msg.(*bufferedRread)
		if !ok {
			return total, &MountError{"read", fmt.Errorf("unexpected reply type %T to Tread", msg)}
		}
		if br.err != nil {
			return total, &MountError{"read", br.err}
		}
		n := copy(p[total:], br.data)
		total += n
		if n < want {
			break
		}
	}
	if fid.qid.Type()&styxproto.QTDIR != 0 && total > 0 {
		if err := fixupDirEntries(p[:total], uint32(m.id)); err != nil {
			return total, &MountError{"read", err}
		}
	}
	return total, nil
}

// Write sends p to fid starting at offset, splitting it into as many
// Twrite messages as the fid's IOUnit (or the negotiated msize)
// requires. Each chunk is its own request/reply round trip: 9P does
// not pipeline writes to a single fid, since the server's reply
// carries the authoritative count actually written. Write stops at
// the first chunk the server accepts only partially, returning the
// total bytes accepted so far.
func (m *Mount) Write(ctx context.Context, fid *Fid, offset int64, p []byte) (int, error) {
	if fid == nil {
		panic("mnt: Write called with a nil Fid")
	}
	if fid.Stale() {
		panic("mnt: Write called with a stale Fid")
	}
	chunkSize := int(fidIOUnit(fid.iounit, m.Msize()))
	if chunkSize <= 0 {
		return 0, &MountError{"write", fmt.Errorf("no usable iounit")}
	}
	chunks, err := wire.ChunkOffsets(offset, chunkSize, p)
	if err != nil {
		return 0, &MountError{"write", err}
	}

	var total int
	for _, c := range chunks {
		c := c
		msg, err := m.do(ctx, "write", func(enc *styxproto.Encoder, tag uint16) error {
			_, werr := enc.Twrite(tag, fid.Num, c.Offset, c.Data)
			return werr
		})
		if err != nil {
			return total, err
		}
		rw, ok := msg.(styxproto.Rwrite)
		if !ok {
			return total, &MountError{"write", fmt.Errorf("unexpected reply type %T to Twrite", msg)}
		}
		n := int(rw.Count())
		total += n
		if n < len(c.Data) {
			break
		}
	}
	return total, nil
}
