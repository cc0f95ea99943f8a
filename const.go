package mnt

// Protocol-level limits that are not already owned by the wire codec.
// IOHDRSZ is the room, in bytes, reserved for the largest read/write
// 9P message header (Twrite: size[4] type[1] tag[2] fid[4] offset[8]
// count[4], 23 bytes, rounded up to 24 as in Plan 9); a Tread or
// Twrite's data portion must never be sized so
// that IOHDRSZ plus the data would exceed the negotiated msize.
const IOHDRSZ = 24

// MaxRPC0 is the size of the buffer used for the unnegotiated initial
// Tversion/Rversion exchange, before a Mount's msize has been agreed
// on with the server. It matches the Plan 9 kernel mount driver's own
// MAXRPC buffer for this exchange: IOHDRSZ plus an 8K Dirmax buffer.
const MaxRPC0 = IOHDRSZ + 8*1024

// minMsize and maxMsize bound a negotiated msize: devmnt.c's
// mntversion rejects a reply outside [256, 1048576] with "nonsense
// value of msize".
const (
	minMsize = 256
	maxMsize = 1 << 20
)

// defaultMsize is requested by Dial when no Options.MaxSize is given.
const defaultMsize = 8*1024 + IOHDRSZ

// defaultVersion is the version string Dial negotiates when no
// Options.Version is given.
const defaultVersion = "9P2000"

// rpcFreeListCap bounds the number of idle *rpc records a Mount will
// keep on its free list rather than letting the garbage collector
// reclaim them; this is the same cap the Plan 9 kernel mount driver
// uses for its mntralloc free list.
const rpcFreeListCap = 32

// noTag and noFid are the wire's distinguished "not a real tag/fid"
// values (NOTAG and NOFID in devmnt.c). noTag doubles as the waiters
// map key used for the Tversion/Rversion exchange, which always uses
// this tag rather than one drawn from the tag pool.
const (
	noTag uint16 = 0xFFFF
	noFid uint32 = 0xFFFFFFFF
)

// mntDevType is the device class devmnt.c assigns every channel a
// Mount produces ('M' in the kernel's device table). mntdirfix
// rewrites the leading devtype field of every Stat/Dir entry to this
// value and the owning Mount's devno, so a directory listing is
// self-consistent in the local namespace rather than the server's.
const mntDevType uint16 = 'M'
