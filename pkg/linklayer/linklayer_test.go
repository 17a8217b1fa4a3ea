// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package linklayer

import (
	"errors"
	"testing"

	"github.com/usbarmory/netcore/pkg/netbuf"
	"github.com/usbarmory/netcore/pkg/upperlayer"
)

var ifaceHW = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

// fakeDevice satisfies Transmitter without touching any hardware.
type fakeDevice struct {
	txCalls  int
	lastBuf  *netbuf.NetBuffer
	txErr    error
	mcastAdd [][6]byte
}

func (f *fakeDevice) Tx(buf *netbuf.NetBuffer) error {
	f.txCalls++
	f.lastBuf = buf
	return f.txErr
}

func (f *fakeDevice) AddrMulticastAdd(hw [6]byte) {
	f.mcastAdd = append(f.mcastAdd, hw)
}

// fakeCache satisfies ArpCache, returning a fixed result/error.
type fakeCache struct {
	result Result
	err    error
}

func (c *fakeCache) Resolve(buf *netbuf.NetBuffer) (Result, error) {
	return c.result, c.err
}

// newTestBuffer returns a NetBuffer backed by a plain Go slice (via the
// Header sub-pool and WrapRxData), with headroom octets reserved ahead of
// payload for transmit-path header writes.
func newTestBuffer(t *testing.T, headroom int, payload []byte) *netbuf.NetBuffer {
	t.Helper()

	bp := netbuf.NewBufferPool(0, 0)
	if err := bp.PoolInit(netbuf.Header, netbuf.Config{BlockNbr: 1, BlockSize: 0}); err != nil {
		t.Fatalf("PoolInit(Header): %v", err)
	}
	// WrapRxData requires an RxLarge sub-pool to exist so Free() has
	// somewhere to return the region to; the pool's own blocks (size 0)
	// are never actually drawn from here, since WrapRxData wraps the
	// caller-supplied plain slice directly.
	if err := bp.PoolInit(netbuf.RxLarge, netbuf.Config{BaseAddr: 0x40000000, BlockNbr: 1, BlockSize: 0, Align: 16}); err != nil {
		t.Fatalf("PoolInit(RxLarge): %v", err)
	}

	// The backing region must be large enough to hold a zero-padded
	// minimum-size frame once the header index returns to 0, even when
	// payload is shorter than that (§8 60-octet padding boundary).
	size := headroom + len(payload)
	if size < PktSizeMin {
		size = PktSizeMin
	}
	data := make([]byte, size)
	copy(data[headroom:], payload)

	buf, err := bp.WrapRxData(0, data, len(payload), 0)
	if err != nil {
		t.Fatalf("WrapRxData: %v", err)
	}
	buf.SetHead(headroom)
	buf.SetDataLen(len(payload))

	return buf
}

func ethFrame(dst, src [6]byte, etherType uint16) []byte {
	frame := make([]byte, PktSizeMin)
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	frame[12] = byte(etherType >> 8)
	frame[13] = byte(etherType)
	return frame
}

func newLinkLayer(enabled bool, dev Transmitter, cache ArpCache) (*LinkLayer, *upperlayer.Dispatcher) {
	state := &InterfaceState{IfNbr: 0, Enabled: enabled, HWAddr: ifaceHW, MTU: 1500}
	disp := upperlayer.NewDispatcher()
	return New(state, disp, dev, cache), disp
}

func TestRxNotEnabled(t *testing.T) {
	l, _ := newLinkLayer(false, &fakeDevice{}, &fakeCache{})
	buf := newTestBuffer(t, 0, ethFrame(ifaceHW, [6]byte{0, 1, 2, 3, 4, 5}, 0x0800))

	if err := l.Rx(buf); err != ErrNotEnabled {
		t.Fatalf("err = %v, want ErrNotEnabled", err)
	}
}

func TestRxFrameTooShort(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	buf := newTestBuffer(t, 0, make([]byte, 59))

	if err := l.Rx(buf); err != ErrFrameTooShort {
		t.Fatalf("err = %v, want ErrFrameTooShort", err)
	}
}

func TestRxInvalidDestAddr(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	other := [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	buf := newTestBuffer(t, 0, ethFrame(other, [6]byte{0, 1, 2, 3, 4, 5}, 0x0800))

	if err := l.Rx(buf); err != ErrInvalidAddrDest {
		t.Fatalf("err = %v, want ErrInvalidAddrDest", err)
	}
}

func TestRxNullSourceAddr(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	buf := newTestBuffer(t, 0, ethFrame(ifaceHW, [6]byte{}, 0x0800))

	if err := l.Rx(buf); err != ErrInvalidAddrSrc {
		t.Fatalf("err = %v, want ErrInvalidAddrSrc", err)
	}
}

func TestRxUnknownEtherType(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	buf := newTestBuffer(t, 0, ethFrame(ifaceHW, [6]byte{0, 1, 2, 3, 4, 5}, 0x1234))

	if err := l.Rx(buf); err != ErrInvalidEtherType {
		t.Fatalf("err = %v, want ErrInvalidEtherType", err)
	}
}

func TestRxBroadcastDispatchesAndSetsFlag(t *testing.T) {
	l, disp := newLinkLayer(true, &fakeDevice{}, &fakeCache{})

	var dispatched *netbuf.NetBuffer
	disp.Register(0, upperlayer.IPv4, upperlayer.HandlerFunc(func(buf *netbuf.NetBuffer) error {
		dispatched = buf
		return nil
	}))

	broadcast := [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	buf := newTestBuffer(t, 0, ethFrame(broadcast, [6]byte{0, 1, 2, 3, 4, 5}, 0x0800))

	if err := l.Rx(buf); err != nil {
		t.Fatalf("Rx: %v", err)
	}
	if dispatched != buf {
		t.Fatal("broadcast IPv4 frame should dispatch to the registered IPv4 handler")
	}
	if !buf.Flags.Has(netbuf.RxBroadcast) {
		t.Fatal("RxBroadcast flag should be set")
	}
	if buf.Head() != PktSizeHdr {
		t.Fatalf("Head() = %d, want %d after trimming the Ethernet header", buf.Head(), PktSizeHdr)
	}
}

func TestRxMulticastFlag(t *testing.T) {
	l, disp := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	disp.Register(0, upperlayer.IPv4, upperlayer.HandlerFunc(func(buf *netbuf.NetBuffer) error { return nil }))

	mcast := [6]byte{0x01, 0x00, 0x5e, 0x00, 0x00, 0x01}
	buf := newTestBuffer(t, 0, ethFrame(mcast, [6]byte{0, 1, 2, 3, 4, 5}, 0x0800))

	if err := l.Rx(buf); err != nil {
		t.Fatalf("Rx: %v", err)
	}
	if !buf.Flags.Has(netbuf.RxMulticast) {
		t.Fatal("RxMulticast flag should be set for a multicast destination")
	}
}

func TestRxLinkUpOnReceipt(t *testing.T) {
	l, disp := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	disp.Register(0, upperlayer.IPv4, upperlayer.HandlerFunc(func(buf *netbuf.NetBuffer) error { return nil }))
	l.State.LinkUp = false

	buf := newTestBuffer(t, 0, ethFrame(ifaceHW, [6]byte{0, 1, 2, 3, 4, 5}, 0x0800))
	if err := l.Rx(buf); err != nil {
		t.Fatalf("Rx: %v", err)
	}
	if !l.State.LinkUp {
		t.Fatal("receiving any frame should mark the link up")
	}
}

func TestLinkStatePoll(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})
	l.State.LinkUp = true
	l.LinkStatePoll(false)
	if l.State.LinkUp {
		t.Fatal("LinkStatePoll(false) should clear LinkUp")
	}
}

// IEEE 802.3 LLC/SNAP receive path: a declared length mismatch must be
// rejected even though the SNAP header itself is otherwise well-formed.
func TestRx8023DeclaredLengthMismatch(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})

	frame := make([]byte, PktSizeMin)
	copy(frame[0:6], ifaceHW[:])
	copy(frame[6:12], []byte{0, 1, 2, 3, 4, 5})
	// Declared length field (third 16-bit field) deliberately wrong: actual
	// payload is PktSizeMin-PktSizeHdr octets, declare one less.
	declared := uint16(PktSizeMin - PktSizeHdr - 1)
	frame[12] = byte(declared >> 8)
	frame[13] = byte(declared)

	buf := newTestBuffer(t, 0, frame)
	if err := l.Rx(buf); err != ErrInvalidLenFrame {
		t.Fatalf("err = %v, want ErrInvalidLenFrame", err)
	}
}

func TestRx8023SnapDispatch(t *testing.T) {
	l, disp := newLinkLayer(true, &fakeDevice{}, &fakeCache{})

	var dispatched *netbuf.NetBuffer
	disp.Register(0, upperlayer.ARP, upperlayer.HandlerFunc(func(buf *netbuf.NetBuffer) error {
		dispatched = buf
		return nil
	}))

	frame := make([]byte, PktSizeMin)
	copy(frame[0:6], ifaceHW[:])
	copy(frame[6:12], []byte{0, 1, 2, 3, 4, 5})

	declared := uint16(PktSizeMin - PktSizeHdr)
	frame[12] = byte(declared >> 8)
	frame[13] = byte(declared)
	frame[14], frame[15], frame[16] = 0xaa, 0xaa, 0x03 // DSAP, SSAP, control
	frame[17], frame[18], frame[19] = 0, 0, 0          // OUI
	frame[20], frame[21] = 0x08, 0x06                  // SNAP type: ARP

	buf := newTestBuffer(t, 0, frame)
	if err := l.Rx(buf); err != nil {
		t.Fatalf("Rx: %v", err)
	}
	if dispatched != buf {
		t.Fatal("well-formed SNAP/ARP frame should dispatch to the ARP handler")
	}
	if buf.Head() != snapHdrLen {
		t.Fatalf("Head() = %d, want %d after trimming the SNAP header", buf.Head(), snapHdrLen)
	}
}

func TestTxPassthrough(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	buf := newTestBuffer(t, PktSizeHdr, make([]byte, 100))
	buf.Protocol.IF.Len = PktSizeHdr // already framed by the caller

	result, err := l.Tx(buf)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if result != TxPassthrough {
		t.Fatalf("result = %v, want TxPassthrough", result)
	}
	if dev.txCalls != 1 {
		t.Fatalf("device Tx called %d times, want 1", dev.txCalls)
	}
}

func TestTxBroadcast(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	buf := newTestBuffer(t, PktSizeHdr, make([]byte, 100))
	buf.SubProto = int(upperlayer.IPv4)
	buf.Flags |= netbuf.TxBroadcast

	result, err := l.Tx(buf)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if result != TxBroadcast {
		t.Fatalf("result = %v, want TxBroadcast", result)
	}

	dst := dev.lastBuf.Data()[0:6]
	for _, b := range dst {
		if b != 0xff {
			t.Fatalf("destination address = %x, want broadcast", dst)
		}
	}
}

// A payload under the minimum frame size must be zero-padded up to
// PktSizeMin, and DataLen must report the padded length (§8 60-octet
// boundary).
func TestTxPadsToMinimumFrameSize(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	payload := make([]byte, 10)
	for i := range payload {
		payload[i] = 0xAB
	}

	buf := newTestBuffer(t, PktSizeHdr, payload)
	buf.SubProto = int(upperlayer.IPv4)
	buf.Flags |= netbuf.TxBroadcast

	if _, err := l.Tx(buf); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if buf.DataLen() != PktSizeMin {
		t.Fatalf("DataLen() = %d, want %d (padded)", buf.DataLen(), PktSizeMin)
	}
	tail := buf.Data()[PktSizeHdr+10:]
	for _, b := range tail {
		if b != 0 {
			t.Fatal("padding octets must be zero")
		}
	}
}

// A frame already at or above the minimum needs no padding at all (the
// exact-60-octet boundary case).
func TestTxExactlyMinimumFrameSizeNotPadded(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	payload := make([]byte, PktSizeMin-PktSizeHdr)
	buf := newTestBuffer(t, PktSizeHdr, payload)
	buf.SubProto = int(upperlayer.IPv4)
	buf.Flags |= netbuf.TxBroadcast

	if _, err := l.Tx(buf); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if buf.DataLen() != PktSizeMin {
		t.Fatalf("DataLen() = %d, want %d", buf.DataLen(), PktSizeMin)
	}
}

func TestTxIPv6MulticastDestination(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	buf := newTestBuffer(t, PktSizeHdr, make([]byte, 100))
	buf.SubProto = int(upperlayer.IPv6)
	buf.Flags |= netbuf.TxMulticast
	buf.RouteIPv6 = [16]byte{0: 0xff, 12: 0x00, 13: 0x00, 14: 0x00, 15: 0x01}

	result, err := l.Tx(buf)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if result != TxMulticast {
		t.Fatalf("result = %v, want TxMulticast", result)
	}

	dst := dev.lastBuf.Data()[0:6]
	want := [6]byte{0x33, 0x33, 0x00, 0x00, 0x00, 0x01}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %x, want %x", dst, want[:])
		}
	}
}

func TestTxArpRequestResolvesViaCache(t *testing.T) {
	cache := &fakeCache{result: CacheResolved}
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, cache)

	buf := newTestBuffer(t, PktSizeHdr, make([]byte, 100))
	buf.SubProto = int(upperlayer.IPv4)
	buf.RouteIPv4 = [4]byte{192, 168, 1, 1}

	result, err := l.Tx(buf)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if result != CacheResolved {
		t.Fatalf("result = %v, want CacheResolved", result)
	}
	if dev.txCalls != 1 {
		t.Fatalf("device Tx called %d times, want 1 once cache resolves immediately", dev.txCalls)
	}
}

func TestTxArpRequestPendsViaCache(t *testing.T) {
	cache := &fakeCache{result: CachePend}
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, cache)

	buf := newTestBuffer(t, PktSizeHdr, make([]byte, 100))
	buf.SubProto = int(upperlayer.IPv4)
	buf.RouteIPv4 = [4]byte{192, 168, 1, 1}

	result, err := l.Tx(buf)
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if result != TxAddrPend {
		t.Fatalf("result = %v, want TxAddrPend", result)
	}
	if dev.txCalls != 0 {
		t.Fatal("device Tx must not be called while resolution is pending")
	}
}

func TestTxUnknownSubProto(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	buf := newTestBuffer(t, PktSizeHdr, make([]byte, 100))
	buf.SubProto = 99

	if _, err := l.Tx(buf); err != ErrInvalidEtherType {
		t.Fatalf("err = %v, want ErrInvalidEtherType", err)
	}
}

func TestAddrHWSetRejectsBroadcastAndNull(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})

	if err := l.AddrHWSet([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}); err != ErrInvalidHWAddr {
		t.Fatalf("err = %v, want ErrInvalidHWAddr (broadcast)", err)
	}
	if err := l.AddrHWSet(make([]byte, 6)); err != ErrInvalidHWAddr {
		t.Fatalf("err = %v, want ErrInvalidHWAddr (null)", err)
	}
	if err := l.AddrHWSet([]byte{0, 1, 2}); err != ErrInvalidHWAddr {
		t.Fatalf("err = %v, want ErrInvalidHWAddr (wrong length)", err)
	}

	good := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x09}
	if err := l.AddrHWSet(good); err != nil {
		t.Fatalf("AddrHWSet: %v", err)
	}
	if l.AddrHWGet() != [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x09} {
		t.Fatal("AddrHWGet should reflect the newly set address")
	}
}

func TestAddrMulticastProtocolToHW(t *testing.T) {
	dev := &fakeDevice{}
	l, _ := newLinkLayer(true, dev, &fakeCache{})

	hw, err := l.AddrMulticastProtocolToHW([]byte{224, 0, 0, 251}, FamilyIPv4)
	if err != nil {
		t.Fatalf("AddrMulticastProtocolToHW(IPv4): %v", err)
	}
	want := [6]byte{0x01, 0x00, 0x5e, 0x00, 0x00, 0xfb}
	if hw != want {
		t.Fatalf("hw = %x, want %x", hw, want)
	}
	if len(dev.mcastAdd) != 1 || dev.mcastAdd[0] != want {
		t.Fatal("AddrMulticastProtocolToHW should register the hash with the device")
	}

	_, err = l.AddrMulticastProtocolToHW([]byte{10, 0, 0, 1}, FamilyIPv4)
	if !errors.Is(err, ErrInvalidHWAddr) {
		t.Fatalf("non-multicast IPv4 address should be rejected, got %v", err)
	}
}

func TestMTUSetClampsToSmallestTxPool(t *testing.T) {
	l, _ := newLinkLayer(true, &fakeDevice{}, &fakeCache{})

	l.MTUSet(2000, 1518)
	if want := 1518 - PktSizeHdr; l.State.MTU != want {
		t.Fatalf("MTU = %d, want %d (clamped)", l.State.MTU, want)
	}

	l.MTUSet(1000, 1518)
	if l.State.MTU != 1000 {
		t.Fatalf("MTU = %d, want 1000 (under ceiling, unclamped)", l.State.MTU)
	}
}
