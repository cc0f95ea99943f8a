package mnt

import (
	"fmt"
	"strings"
	"sync/atomic"

	"aqwari.net/net/styx/styxproto"
	"golang.org/x/net/context"
)

// Version negotiates the protocol version and message size with the
// server, as devmnt.c's mntversion does. The first caller to invoke
// Version (directly, or indirectly via Auth or Attach) actually sends
// the Tversion request; any callers that arrive while negotiation is
// in flight receive its result instead of racing to send their own,
// using golang.org/x/sync/singleflight to collapse the duplicate
// calls. Subsequent calls, after negotiation has completed, return the
// already-negotiated values immediately.
func (m *Mount) Version(ctx context.Context) (version string, msize int64, err error) {
	if m.negotiated() {
		m.mu.Lock()
		v := m.version
		m.mu.Unlock()
		return v, atomic.LoadInt64(&m.msize), nil
	}

	v, err, _ := m.negotiate.Do("version", func() (interface{}, error) {
		return m.sendVersion(ctx)
	})
	if err != nil {
		return "", 0, err
	}
	r := v.(versionResult)
	return r.version, r.msize, nil
}

type versionResult struct {
	version string
	msize   int64
}

func (m *Mount) negotiated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version != "" && atomic.LoadInt64(&m.msize) > 0 && m.versionDone
}

func (m *Mount) sendVersion(ctx context.Context) (interface{}, error) {
	requested := m.version

	r := m.rpcs.get()
	r.tag = noTag
	m.waiters.Put(noTag, r)

	m.enc.Tversion(uint32(m.msize), requested)
	if err := m.enc.Flush(); err != nil {
		m.waiters.Del(noTag)
		m.rpcs.put(r)
		return nil, &MountError{"version", err}
	}

	select {
	case res := <-r.reply:
		m.waiters.Del(noTag)
		m.rpcs.put(r)
		if rerr, ok := res.err.(remoteError); ok {
			return nil, rerr
		}
		if res.err != nil {
			return nil, &MountError{"version", res.err}
		}
		rv, ok := res.msg.(styxproto.Rversion)
		if !ok {
			return nil, &MountError{"version", fmt.Errorf("unexpected reply type to Tversion")}
		}
		negotiated := rv.Version()
		// devmnt.c's mntversion compares the reply against the length of
		// what was actually requested (strncmp(f.version, v,
		// strlen(f.version))), not a hardcoded dialect string: a caller
		// that set Options.Version to something other than "9P2000"
		// still gets a real compatibility check.
		if !strings.HasPrefix(negotiated, requested) {
			return nil, &MountError{"version", ErrVersionMismatch}
		}
		msize := rv.Msize()
		// devmnt.c's mntversion only ever lets a server shrink msize;
		// a reply proposing anything larger than what was requested
		// is a protocol violation, not a value to silently clamp.
		if msize > m.msize {
			return nil, &MountError{"version", ErrMsizeIncreased}
		}
		if msize < minMsize || msize > maxMsize {
			return nil, &MountError{"version", ErrNonsenseMsize}
		}
		atomic.StoreInt64(&m.msize, msize)
		m.mu.Lock()
		m.version = negotiated
		m.versionDone = true
		m.mu.Unlock()
		return versionResult{version: negotiated, msize: msize}, nil
	case <-ctx.Done():
		m.waiters.Del(noTag)
		m.rpcs.put(r)
		return nil, ctx.Err()
	case <-m.dead:
		m.waiters.Del(noTag)
		m.rpcs.put(r)
		return nil, ErrHungup
	}
}
