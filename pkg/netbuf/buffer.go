// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package netbuf implements the bounded-memory network buffer pool
// subsystem: typed, preallocated sub-pools for buffer headers and their
// backing data regions, reference-counted lifetime tracking shared across
// protocol layers, and intrusive multi-list chaining for fragmentation and
// queueing.
//
// Every block handed out by this package traces back to memory reserved at
// PoolInit time through the dma package; nothing is ever drawn from the
// general Go heap once an interface's pools are configured, matching the
// bounded-memory invariant of the buffer pool this package is modeled on.
package netbuf

import (
	"sync"
	"sync/atomic"
)

// BufType selects which typed sub-pool a NetBuffer (or a raw data region)
// is drawn from.
type BufType int

const (
	// Header identifies the NetBuffer header sub-pool, distinct from the
	// three data-region sub-pools below.
	Header BufType = iota
	// RxLarge is the receive data-region sub-pool; all receive buffers,
	// regardless of frame size, come from here.
	RxLarge
	// TxLarge is the large transmit data-region sub-pool.
	TxLarge
	// TxSmall is the small transmit data-region sub-pool, preferred for
	// small outbound frames when configured and sufficient.
	TxSmall
)

func (t BufType) String() string {
	switch t {
	case Header:
		return "Header"
	case RxLarge:
		return "RxLarge"
	case TxLarge:
		return "TxLarge"
	case TxSmall:
		return "TxSmall"
	default:
		return "Unknown"
	}
}

// Transaction selects the direction a Get call allocates for, which drives
// the size-selection algorithm (§4.1).
type Transaction int

const (
	Rx Transaction = iota
	Tx
)

// Flags is the NetBuffer status bitset.
type Flags uint16

const (
	Used Flags = 1 << iota
	ClrMem
	RxBroadcast
	RxMulticast
	TxBroadcast
	TxMulticast
)

func (f Flags) Has(m Flags) bool { return f&m != 0 }

// ProtocolIndex records where a protocol header begins within a buffer's
// data region, and its length, mirroring the offset/length pairs upper
// layers rely on instead of re-parsing headers.
type ProtocolIndex struct {
	Index int
	Len   int
}

// ProtocolIndices mirrors the protocol_indices attribute of §3: byte offsets
// into the buffer's data region marking where each protocol header begins.
type ProtocolIndices struct {
	IF        ProtocolIndex
	ARP       ProtocolIndex
	IP        ProtocolIndex
	ICMP      ProtocolIndex
	IGMP      ProtocolIndex
	Transport ProtocolIndex
	TotalLen  int
}

// AddrPtrs exposes a window into a buffer's data region so that ARP/NDP
// (external collaborators) can bind addresses in place instead of copying.
type AddrPtrs struct {
	HW       []byte
	Protocol []byte
}

// listLink is one doubly-linked membership slot. NetBuffer embeds several of
// these so that a single buffer can belong to independent lists
// simultaneously without one list's unlink disturbing another's.
type listLink struct {
	next, prev *NetBuffer
}

// unlinkEntry pairs a secondary-queue unlink callback with its target object,
// invoked exactly once when the buffer is freed from Used state, and cleared
// before invocation to prevent re-entrant unlinking (§4.1 free_queue_secondary).
type unlinkEntry struct {
	fn  func(obj any, buf *NetBuffer)
	obj any
}

// NetBuffer is the central transport unit moved between the driver,
// link layer and upper protocol layers.
type NetBuffer struct {
	mu sync.Mutex

	pool *BufferPool
	dt   *dataPool // owning data-region sub-pool, for release on free

	Type    BufType
	data    []byte // backing region, drawn from dt
	addr    uint32 // physical address of data, as exposed to the driver's DMA descriptors
	Size    int    // capacity of the data region
	head    int    // start offset of the current logical frame within data
	dataLen int    // currently valid octets starting at head

	refCount int32 // atomic; Used <-> refCount>=1 (§8 invariant)
	Flags    Flags
	ID       uint64

	IfNbr   int
	IfNbrTx int

	Protocol     ProtocolIndices
	AddrHW       AddrPtrs
	AddrProtocol AddrPtrs

	// RouteIPv4/RouteIPv6 hold the next-route network address an upper
	// layer stages before calling Tx; the link layer points
	// AddrProtocol.Protocol at whichever applies so ARP/NDP can bind a
	// resolved hardware address back in place.
	RouteIPv4 [4]byte
	RouteIPv6 [16]byte

	// SubProto is the upper-layer protocol tag the link layer assigns
	// before dispatch (e.g. upperlayer.IPv4/IPv6/ARP); netbuf stores it
	// as a plain int to avoid an import of the upperlayer package, which
	// itself depends on netbuf.
	SubProto int

	unlink unlinkEntry

	// IPOpt is the at-most-one auxiliary buffer chained by the IP layer
	// (e.g. holding option data); Free releases it alongside its parent.
	IPOpt *NetBuffer

	primary      listLink  // fragment chain (next_buf_ptr/prev_buf_ptr)
	primaryQueue *NetBuffer // top-level queue of chain heads (next_prim_list_ptr)
	secondary    listLink  // reassembly/retransmit queue (next_sec_list_ptr)
	tx           listLink  // per-transmit queue
	frag         listLink  // next-fragment chain
}

// Data returns the buffer's currently valid payload, starting at the
// current header index.
func (b *NetBuffer) Data() []byte {
	return b.data[b.head : b.head+b.dataLen]
}

// Raw returns the full backing region regardless of header index or valid
// length, for callers (e.g. the driver) that need to write into unused tail
// space.
func (b *NetBuffer) Raw() []byte {
	return b.data
}

// Addr returns the physical address of the buffer's data region, as handed
// to a DMA descriptor's buf_addr field.
func (b *NetBuffer) Addr() uint32 {
	return b.addr
}

// Head returns the current header start offset within the backing region.
func (b *NetBuffer) Head() int {
	return b.head
}

// SetHead sets the header start offset directly, used at allocation time to
// reserve start_index octets ahead of the payload.
func (b *NetBuffer) SetHead(n int) {
	if n < 0 || n > len(b.data) {
		panic("netbuf: head offset out of bounds")
	}
	b.head = n
}

// SetDataLen sets the currently valid payload length starting at head. It
// panics if the result exceeds the region's capacity: that would indicate a
// framing bug upstream, not a recoverable runtime condition.
func (b *NetBuffer) SetDataLen(n int) {
	if n < 0 || b.head+n > len(b.data) {
		panic("netbuf: data length out of bounds")
	}
	b.dataLen = n
}

// DataLen returns the currently valid payload length.
func (b *NetBuffer) DataLen() int {
	return b.dataLen
}

// ShiftHeader moves the header index back by n octets and grows the valid
// length by the same amount, used by the link layer's transmit path to make
// room for a header it writes in place ahead of the existing payload.
func (b *NetBuffer) ShiftHeader(n int) {
	if n < 0 || n > b.head {
		panic("netbuf: cannot shift header past start of region")
	}
	b.head -= n
	b.dataLen += n
}

// TrimHeader moves the header index forward by n octets and shrinks the
// valid length by the same amount, used by the link layer's receive path
// after consuming a protocol header.
func (b *NetBuffer) TrimHeader(n int) {
	if n < 0 || n > b.dataLen {
		panic("netbuf: cannot trim header past end of region")
	}
	b.head += n
	b.dataLen -= n
}

// RefCount returns the buffer's current reference count.
func (b *NetBuffer) RefCount() int32 {
	return atomic.LoadInt32(&b.refCount)
}

// Acquire increments the reference count: an upper layer retaining the
// buffer beyond the current call must do this before returning.
func (b *NetBuffer) Acquire() {
	atomic.AddInt32(&b.refCount, 1)
}

// SetUnlink installs the secondary-queue unlink callback invoked exactly
// once when the buffer is freed.
func (b *NetBuffer) SetUnlink(fn func(obj any, buf *NetBuffer), obj any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unlink = unlinkEntry{fn: fn, obj: obj}
}

// --- primary fragment chain (next_buf_ptr/prev_buf_ptr) ---

// LinkPrimaryAfter inserts buf immediately after b in the primary chain.
func (b *NetBuffer) LinkPrimaryAfter(buf *NetBuffer) {
	buf.primary.next = b.primary.next
	buf.primary.prev = b
	if b.primary.next != nil {
		b.primary.next.primary.prev = buf
	}
	b.primary.next = buf
}

// NextPrimary returns the next buffer in the primary fragment chain.
func (b *NetBuffer) NextPrimary() *NetBuffer { return b.primary.next }

// PrevPrimary returns the previous buffer in the primary fragment chain.
func (b *NetBuffer) PrevPrimary() *NetBuffer { return b.primary.prev }

func (b *NetBuffer) unlinkPrimary() {
	if b.primary.prev != nil {
		b.primary.prev.primary.next = b.primary.next
	}
	if b.primary.next != nil {
		b.primary.next.primary.prev = b.primary.prev
	}
	b.primary.next, b.primary.prev = nil, nil
}

// --- primary queue-of-heads (next_prim_list_ptr) ---

// LinkPrimaryQueue appends buf as the new tail of the primary queue whose
// current tail is b.
func (b *NetBuffer) LinkPrimaryQueue(buf *NetBuffer) {
	b.primaryQueue = buf
}

// NextPrimaryQueue returns the next chain head in the primary queue.
func (b *NetBuffer) NextPrimaryQueue() *NetBuffer { return b.primaryQueue }

// --- secondary queue (next_sec_list_ptr) ---

// LinkSecondaryAfter inserts buf immediately after b in the secondary queue.
func (b *NetBuffer) LinkSecondaryAfter(buf *NetBuffer) {
	buf.secondary.next = b.secondary.next
	buf.secondary.prev = b
	if b.secondary.next != nil {
		b.secondary.next.secondary.prev = buf
	}
	b.secondary.next = buf
}

// NextSecondary returns the next buffer in the secondary queue.
func (b *NetBuffer) NextSecondary() *NetBuffer { return b.secondary.next }

func (b *NetBuffer) unlinkSecondary() {
	if b.secondary.prev != nil {
		b.secondary.prev.secondary.next = b.secondary.next
	}
	if b.secondary.next != nil {
		b.secondary.next.secondary.prev = b.secondary.prev
	}
	b.secondary.next, b.secondary.prev = nil, nil
}

// --- per-transmit queue ---

// LinkTxAfter inserts buf immediately after b in the per-transmit queue.
func (b *NetBuffer) LinkTxAfter(buf *NetBuffer) {
	buf.tx.next = b.tx.next
	buf.tx.prev = b
	if b.tx.next != nil {
		b.tx.next.tx.prev = buf
	}
	b.tx.next = buf
}

// NextTx returns the next buffer in the per-transmit queue.
func (b *NetBuffer) NextTx() *NetBuffer { return b.tx.next }

func (b *NetBuffer) unlinkTx() {
	if b.tx.prev != nil {
		b.tx.prev.tx.next = b.tx.next
	}
	if b.tx.next != nil {
		b.tx.next.tx.prev = b.tx.prev
	}
	b.tx.next, b.tx.prev = nil, nil
}

// --- next-fragment chain ---

// LinkFragAfter inserts buf immediately after b in the fragment chain.
func (b *NetBuffer) LinkFragAfter(buf *NetBuffer) {
	buf.frag.next = b.frag.next
	buf.frag.prev = b
	if b.frag.next != nil {
		b.frag.next.frag.prev = buf
	}
	b.frag.next = buf
}

// NextFrag returns the next buffer in the fragment chain.
func (b *NetBuffer) NextFrag() *NetBuffer { return b.frag.next }

func (b *NetBuffer) unlinkFrag() {
	if b.frag.prev != nil {
		b.frag.prev.frag.next = b.frag.next
	}
	if b.frag.next != nil {
		b.frag.next.frag.prev = b.frag.prev
	}
	b.frag.next, b.frag.prev = nil, nil
}

func (b *NetBuffer) clearHeader() {
	b.Flags = 0
	b.head = 0
	b.dataLen = 0
	b.Protocol = ProtocolIndices{}
	b.AddrHW = AddrPtrs{}
	b.AddrProtocol = AddrPtrs{}
	b.IfNbr, b.IfNbrTx = 0, 0
	b.unlink = unlinkEntry{}
	b.IPOpt = nil
	b.primary, b.secondary, b.tx, b.frag = listLink{}, listLink{}, listLink{}, listLink{}
	b.primaryQueue = nil
}
