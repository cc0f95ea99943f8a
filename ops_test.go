package mnt

import (
	"encoding/binary"
	"io"
	"sync/atomic"
	"testing"

	"aqwari.net/net/mnt/internal/nineptest"
	"aqwari.net/net/styx/styxproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

// buildStat hand-assembles a minimal wire Stat: fixed-size fields
// followed by four length-prefixed strings (name, uid, gid, muid),
// mirroring the layout styxproto.Stat's accessors expect.
func buildStat(name, uid, gid, muid string) styxproto.Stat {
	var body []byte
	body = append(body, 0, 0)                    // type
	body = append(body, 0, 0, 0, 0)              // dev
	body = append(body, nineptest.FileQid(9)...) // qid, 13 bytes
	body = append(body, 0, 0, 0, 0)              // mode
	body = append(body, 0, 0, 0, 0)              // atime
	body = append(body, 0, 0, 0, 0)              // mtime
	body = append(body, 0, 0, 0, 0, 0, 0, 0, 0)  // length
	appendField := func(s string) {
		var lb [2]byte
		binary.LittleEndian.PutUint16(lb[:], uint16(len(s)))
		body = append(body, lb[:]...)
		body = append(body, s...)
	}
	appendField(name)
	appendField(uid)
	appendField(gid)
	appendField(muid)

	full := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(full[0:2], uint16(len(body)))
	copy(full[2:], body)
	return styxproto.Stat(full)
}

func attachTest(t *testing.T, script *nineptest.Script) (*Mount, *Fid) {
	t.Helper()
	m := dialTest(t, script)
	fid, err := m.Attach(context.Background(), 0, nil, "glenda", "")
	require.NoError(t, err)
	return m, fid
}

func TestAttachRejectsForeignAfid(t *testing.T) {
	a := dialTest(t, &nineptest.Script{
		OnAuth: func(ta styxproto.Tauth, enc *styxproto.Encoder) {
			enc.Rauth(ta.Tag(), nineptest.FileQid(1))
		},
	})
	b := dialTest(t, &nineptest.Script{})

	afid, err := a.Auth(context.Background(), 1, "glenda", "")
	require.NoError(t, err)

	_, err = b.Attach(context.Background(), 0, afid, "glenda", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadUseFid)
}

func TestWalkClonesOnZeroElements(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{})
	ctx := context.Background()
	newfid, err := m.NewFid()
	require.NoError(t, err)

	clone, qids, err := m.Walk(ctx, root, &newfid)
	require.NoError(t, err)
	assert.Empty(t, qids)
	assert.Equal(t, newfid, clone.Num)
}

func TestWalkNilNewfidReportsQidsWithoutLeavingAFid(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{})
	ctx := context.Background()

	fid, qids, err := m.Walk(ctx, root, nil, "a")
	require.NoError(t, err)
	assert.Nil(t, fid)
	assert.Len(t, qids, 1)
}

// TestWalkPartialFailureReturnsQidsSoFar exercises a walk that fails
// partway, verifying the caller still sees the qids that did resolve
// and that the target fid is not left usable.
func TestWalkPartialFailureReturnsQidsSoFar(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{
		OnWalk: func(tw styxproto.Twalk, enc *styxproto.Encoder) {
			n := tw.Nwname()
			if n > 1 {
				n = 1 // only the first element resolves
			}
			qids := make([]styxproto.Qid, n)
			for i := range qids {
				qids[i] = nineptest.FileQid(uint64(i + 1))
			}
			enc.Rwalk(tw.Tag(), qids...)
		},
	})
	ctx := context.Background()
	newfid, err := m.NewFid()
	require.NoError(t, err)

	fid, qids, err := m.Walk(ctx, root, &newfid, "a", "b")
	assert.Nil(t, fid)
	assert.Len(t, qids, 1)
	require.Error(t, err)
}

// TestWalkRejectsMoreThanMaxWElem verifies that a walk longer than
// styxproto.MaxWElem elements fails before anything is sent, matching
// devmnt.c's mntwalk rejecting nname > MAXWELEM outright rather than
// splitting the walk across multiple Twalks.
func TestWalkRejectsMoreThanMaxWElem(t *testing.T) {
	var seen int
	m, root := attachTest(t, &nineptest.Script{
		OnWalk: func(tw styxproto.Twalk, enc *styxproto.Encoder) {
			seen++
			qids := make([]styxproto.Qid, tw.Nwname())
			for i := range qids {
				qids[i] = nineptest.FileQid(uint64(i + 1))
			}
			enc.Rwalk(tw.Tag(), qids...)
		},
	})
	ctx := context.Background()
	names := make([]string, styxproto.MaxWElem+1)
	for i := range names {
		names[i] = "d"
	}
	newfid, err := m.NewFid()
	require.NoError(t, err)

	fid, qids, err := m.Walk(ctx, root, &newfid, names...)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyWalkElems)
	assert.Nil(t, fid)
	assert.Nil(t, qids)
	assert.Zero(t, seen, "Walk must not send a Twalk when over the element limit")
}

// TestWalkAtMaxWElemSucceeds verifies the boundary case itself: exactly
// styxproto.MaxWElem elements is still a single, successful Twalk.
func TestWalkAtMaxWElemSucceeds(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{
		OnWalk: func(tw styxproto.Twalk, enc *styxproto.Encoder) {
			qids := make([]styxproto.Qid, tw.Nwname())
			for i := range qids {
				qids[i] = nineptest.FileQid(uint64(i + 1))
			}
			enc.Rwalk(tw.Tag(), qids...)
		},
	})
	ctx := context.Background()
	names := make([]string, styxproto.MaxWElem)
	for i := range names {
		names[i] = "d"
	}
	newfid, err := m.NewFid()
	require.NoError(t, err)

	fid, qids, err := m.Walk(ctx, root, &newfid, names...)
	require.NoError(t, err)
	require.NotNil(t, fid)
	assert.Len(t, qids, len(names))
}

// TestWalkRejectsTooManyQids verifies that a server replying with more
// wqids than were requested is treated as a protocol error rather than
// indexed into, matching devmnt.c's mntwalk check against nwqid > nname.
func TestWalkRejectsTooManyQids(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{
		OnWalk: func(tw styxproto.Twalk, enc *styxproto.Encoder) {
			qids := make([]styxproto.Qid, tw.Nwname()+1)
			for i := range qids {
				qids[i] = nineptest.FileQid(uint64(i + 1))
			}
			enc.Rwalk(tw.Tag(), qids...)
		},
	})
	ctx := context.Background()
	newfid, err := m.NewFid()
	require.NoError(t, err)

	fid, qids, err := m.Walk(ctx, root, &newfid, "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyQids)
	assert.Nil(t, fid)
	assert.Nil(t, qids)
}

func TestOpenSetsIOUnit(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{
		OnOpen: func(to styxproto.Topen, enc *styxproto.Encoder) {
			enc.Ropen(to.Tag(), nineptest.FileQid(5), 128)
		},
	})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, root, 0))
	assert.EqualValues(t, 128, root.IOUnit())
}

func TestReadStopsOnShortReply(t *testing.T) {
	payload := []byte("hello world")
	m, root := attachTest(t, &nineptest.Script{
		ReadData: payload,
		OnOpen: func(to styxproto.Topen, enc *styxproto.Encoder) {
			enc.Ropen(to.Tag(), nineptest.FileQid(5), 4)
		},
	})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, root, 0))

	buf := make([]byte, len(payload)+16)
	n, err := m.Read(ctx, root, 0, buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestWriteChunksAcrossIOUnit(t *testing.T) {
	var chunks [][]byte
	m, root := attachTest(t, &nineptest.Script{
		OnOpen: func(to styxproto.Topen, enc *styxproto.Encoder) {
			enc.Ropen(to.Tag(), nineptest.FileQid(5), 4)
		},
		OnWrite: func(tw styxproto.Twrite, enc *styxproto.Encoder) {
			data, _ := readAllTwrite(tw)
			chunks = append(chunks, data)
			enc.Rwrite(tw.Tag(), int64(len(data)))
		},
	})
	ctx := context.Background()
	require.NoError(t, m.Open(ctx, root, 0))

	payload := []byte("0123456789")
	n, err := m.Write(ctx, root, 0, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Len(t, chunks, 3) // 4 + 4 + 2
}

func readAllTwrite(tw styxproto.Twrite) ([]byte, error) {
	data, err := io.ReadAll(tw)
	tw.Close()
	return data, err
}

func TestClunkMarksFidStale(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{})
	ctx := context.Background()
	require.NoError(t, m.Clunk(ctx, root))
	assert.True(t, root.Stale())
}

func TestIdleTracksOutstandingFids(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{})
	ctx := context.Background()
	assert.False(t, m.Idle(), "Idle true with an Attach'd Fid still outstanding")

	other, err := m.Attach(ctx, 1, nil, "glenda", "")
	require.NoError(t, err)
	require.NoError(t, m.Clunk(ctx, root))
	assert.False(t, m.Idle(), "Idle true with one of two Fids still outstanding")

	require.NoError(t, m.Clunk(ctx, other))
	assert.True(t, m.Idle(), "Idle false after every Fid was clunked")
}

func TestRemoveMarksFidStaleEvenOnError(t *testing.T) {
	m, root := attachTest(t, &nineptest.Script{
		OnRemove: func(tr styxproto.Tremove, enc *styxproto.Encoder) {
			enc.Rerror(tr.Tag(), "permission denied")
		},
	})
	ctx := context.Background()
	err := m.Remove(ctx, root)
	require.Error(t, err)
	assert.True(t, root.Stale())
}

// Once a Mount hangs up, Fid.Stale reports true for every Fid it ever
// produced (see Fid.Stale's m.mount.closed() check), so these tests
// inspect the clunked flag directly rather than through Stale -- the
// thing under test is whether Clunk/Remove themselves marked the fid
// clunked, not whatever Stale reports afterward for an unrelated
// reason.
func TestClunkPreservesFidOnHungup(t *testing.T) {
	block := make(chan struct{})
	m, root := attachTest(t, &nineptest.Script{
		OnClunk: func(tc styxproto.Tclunk, enc *styxproto.Encoder) {
			<-block
			enc.Rclunk(tc.Tag())
		},
	})

	done := make(chan error, 1)
	go func() {
		done <- m.Clunk(context.Background(), root)
	}()

	require.NoError(t, m.Close())
	close(block)
	err := <-done
	assert.ErrorIs(t, err, ErrHungup)
	assert.Zero(t, atomic.LoadUint32(&root.clunked))
}

func TestRemovePreservesFidOnHungup(t *testing.T) {
	block := make(chan struct{})
	m, root := attachTest(t, &nineptest.Script{
		OnRemove: func(tr styxproto.Tremove, enc *styxproto.Encoder) {
			<-block
			enc.Rremove(tr.Tag())
		},
	})

	done := make(chan error, 1)
	go func() {
		done <- m.Remove(context.Background(), root)
	}()

	require.NoError(t, m.Close())
	close(block)
	err := <-done
	assert.ErrorIs(t, err, ErrHungup)
	assert.Zero(t, atomic.LoadUint32(&root.clunked))
}

func TestStatRoundTrips(t *testing.T) {
	stat := buildStat("afile", "glenda", "glenda", "glenda")

	m, root := attachTest(t, &nineptest.Script{StatEntry: stat})
	got, err := m.Stat(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, "afile", string(got.Name()))
}

// TestStatRewritesDevToLocalMount verifies Mount.Stat applies the
// mntdirfix-equivalent rewrite: the server's devtype/devno are
// replaced with this Mount's own, regardless of what the server sent.
func TestStatRewritesDevToLocalMount(t *testing.T) {
	stat := buildStat("afile", "glenda", "glenda", "glenda")
	binary.LittleEndian.PutUint16(stat[2:4], 0x7777)
	binary.LittleEndian.PutUint32(stat[4:8], 0xdeadbeef)

	m, root := attachTest(t, &nineptest.Script{StatEntry: stat})
	got, err := m.Stat(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, mntDevType, binary.LittleEndian.Uint16(got[2:4]))
	assert.Equal(t, uint32(m.id), binary.LittleEndian.Uint32(got[4:8]))
}

// validateStat is the last line of defense against a malformed Stat;
// the wire codec itself already refuses to encode or decode anything
// shorter than minStatLen, so this is exercised directly rather than
// through a round trip.
func TestValidateStatRejectsShortStat(t *testing.T) {
	short := styxproto.Stat(make([]byte, minStatLen-1))
	assert.ErrorIs(t, validateStat(short), ErrShortStat)
}

// TestSplitStatsRejectsTrailingPartialEntry verifies that a buffer of
// directory entries ending in a truncated record -- as opposed to a
// single Stat reply too short to hold a directory entry, which is
// ErrShortStat's case -- is reported as ErrBadDirEntry, matching
// devmnt.c's distinct "invalid directory entry received from server"
// diagnostic for a malformed Dir arriving from the server.
func TestSplitStatsRejectsTrailingPartialEntry(t *testing.T) {
	whole := buildStat("afile", "glenda", "glenda", "glenda")
	buf := append(append([]byte{}, whole...), whole[:len(whole)-1]...)

	_, err := splitStats(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadDirEntry)
	assert.NotErrorIs(t, err, ErrShortStat)
}
