package nineptest

import "aqwari.net/net/styx/styxproto"

// RootQid is a directory qid suitable for the common case of a
// server's Attach reply: version 0, path 1.
func RootQid() styxproto.Qid {
	q, _, _ := styxproto.NewQid(make([]byte, 13), styxproto.QTDIR, 0, 1)
	return q
}

// FileQid is a plain file qid with the given path, version 0.
func FileQid(path uint64) styxproto.Qid {
	q, _, _ := styxproto.NewQid(make([]byte, 13), styxproto.QTFILE, 0, path)
	return q
}

// A Script answers each 9P request type with a field's callback, if
// set, falling back to a reasonable default otherwise (echo the
// requested version, attach and walk to RootQid, open/create with a
// zero iounit, acknowledge write/clunk/remove/wstat/flush, and answer
// read and stat with whatever ReadData/StatEntry hold). Tests set only
// the fields their scenario cares about.
type Script struct {
	Msize     uint32
	Version   string
	AttachQid styxproto.Qid
	WalkQid   styxproto.Qid
	ReadData  []byte
	StatEntry styxproto.Stat

	OnVersion func(styxproto.Tversion, *styxproto.Encoder)
	OnAuth    func(styxproto.Tauth, *styxproto.Encoder)
	OnAttach  func(styxproto.Tattach, *styxproto.Encoder)
	OnWalk    func(styxproto.Twalk, *styxproto.Encoder)
	OnOpen    func(styxproto.Topen, *styxproto.Encoder)
	OnCreate  func(styxproto.Tcreate, *styxproto.Encoder)
	OnRead    func(styxproto.Tread, *styxproto.Encoder)
	OnWrite   func(styxproto.Twrite, *styxproto.Encoder)
	OnClunk   func(styxproto.Tclunk, *styxproto.Encoder)
	OnRemove  func(styxproto.Tremove, *styxproto.Encoder)
	OnStat    func(styxproto.Tstat, *styxproto.Encoder)
	OnWstat   func(styxproto.Twstat, *styxproto.Encoder)
	OnFlush   func(styxproto.Tflush, *styxproto.Encoder)
}

// Serve implements Handler.
func (s *Script) Serve(msg styxproto.Msg, enc *styxproto.Encoder) {
	switch m := msg.(type) {
	case styxproto.Tversion:
		if s.OnVersion != nil {
			s.OnVersion(m, enc)
			return
		}
		msize := s.Msize
		if msize == 0 {
			msize = uint32(m.Msize())
		}
		version := s.Version
		if version == "" {
			version = m.Version()
		}
		enc.Rversion(msize, version)
	case styxproto.Tauth:
		if s.OnAuth != nil {
			s.OnAuth(m, enc)
			return
		}
		enc.Rerror(m.Tag(), "authentication not required")
	case styxproto.Tattach:
		if s.OnAttach != nil {
			s.OnAttach(m, enc)
			return
		}
		qid := s.AttachQid
		if qid == nil {
			qid = RootQid()
		}
		enc.Rattach(m.Tag(), qid)
	case styxproto.Twalk:
		if s.OnWalk != nil {
			s.OnWalk(m, enc)
			return
		}
		qid := s.WalkQid
		if qid == nil {
			qid = RootQid()
		}
		qids := make([]styxproto.Qid, m.Nwname())
		for i := range qids {
			qids[i] = qid
		}
		enc.Rwalk(m.Tag(), qids...)
	case styxproto.Topen:
		if s.OnOpen != nil {
			s.OnOpen(m, enc)
			return
		}
		enc.Ropen(m.Tag(), RootQid(), 0)
	case styxproto.Tcreate:
		if s.OnCreate != nil {
			s.OnCreate(m, enc)
			return
		}
		enc.Rcreate(m.Tag(), FileQid(2), 0)
	case styxproto.Tread:
		if s.OnRead != nil {
			s.OnRead(m, enc)
			return
		}
		data := s.ReadData
		off := m.Offset()
		if off >= uint64(len(data)) {
			enc.Rread(m.Tag(), nil)
			return
		}
		end := off + m.Count()
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}
		enc.Rread(m.Tag(), data[off:end])
	case styxproto.Twrite:
		if s.OnWrite != nil {
			s.OnWrite(m, enc)
			return
		}
		enc.Rwrite(m.Tag(), int64(m.Count()))
	case styxproto.Tclunk:
		if s.OnClunk != nil {
			s.OnClunk(m, enc)
			return
		}
		enc.Rclunk(m.Tag())
	case styxproto.Tremove:
		if s.OnRemove != nil {
			s.OnRemove(m, enc)
			return
		}
		enc.Rremove(m.Tag())
	case styxproto.Tstat:
		if s.OnStat != nil {
			s.OnStat(m, enc)
			return
		}
		enc.Rstat(m.Tag(), s.StatEntry)
	case styxproto.Twstat:
		if s.OnWstat != nil {
			s.OnWstat(m, enc)
			return
		}
		enc.Rwstat(m.Tag())
	case styxproto.Tflush:
		if s.OnFlush != nil {
			s.OnFlush(m, enc)
			return
		}
		enc.Rflush(m.Tag())
	}
}
