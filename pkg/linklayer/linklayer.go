// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package linklayer implements bidirectional 802.x framing between raw
// data regions and the upper protocol layers: receive-path classification
// (Ethernet II vs. IEEE 802.3 LLC/SNAP), destination-address filtering,
// and transmit-path framing with ARP/neighbor resolution handoff (§4.3).
package linklayer

import (
	"errors"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/usbarmory/netcore/pkg/netbuf"
	"github.com/usbarmory/netcore/pkg/upperlayer"
)

// Frame sizing constants (§6 "Wire format").
const (
	PktSizeHdr = 14 // Ethernet II header length
	PktSizeMin = 60 // minimum frame length excluding CRC
	PktSizeMax = 1518

	snapHdrLen = 22 // IEEE 802.3 + LLC + SNAP header length
)

// arpEtherType is IEEE 802.3's EtherType for ARP (0x0806). gvisor's
// tcpip/header package does not export an ARP protocol number constant
// (only IPv4/IPv6), so it is defined locally rather than guessed at.
const arpEtherType tcpip.NetworkProtocolNumber = 0x0806

var (
	ErrNotEnabled       = errors.New("linklayer: interface not enabled")
	ErrFrameTooShort    = errors.New("linklayer: frame below minimum size")
	ErrInvalidAddrDest  = errors.New("linklayer: destination address does not match interface")
	ErrInvalidAddrSrc   = errors.New("linklayer: source address is null or broadcast")
	ErrInvalidEtherType = errors.New("linklayer: unrecognized Ethernet II type")
	ErrInvalidSnapType  = errors.New("linklayer: unrecognized IEEE 802.3 LLC/SNAP type")
	ErrInvalidSnapHdr   = errors.New("linklayer: malformed IEEE 802.3 LLC/SNAP header")
	ErrInvalidLenFrame  = errors.New("linklayer: declared frame length mismatch")
	ErrInvalidHWAddr    = errors.New("linklayer: invalid hardware address")
)

// Result is the transmit-path outcome tag (§4.3 tx()).
type Result int

const (
	// TxPassthrough is returned when the caller had already framed the
	// buffer itself (§4.3 tx() step 1): the link layer dispatches it to
	// the device unmodified.
	TxPassthrough Result = iota
	TxBroadcast
	TxMulticast
	TxAddrReq
	TxAddrPend
	CacheResolved
	CachePend
)

// ProtoTag mirrors upperlayer.Tag for readability within this package.
type ProtoTag = upperlayer.Tag

const (
	ProtoIPv4 = upperlayer.IPv4
	ProtoIPv6 = upperlayer.IPv6
	ProtoARP  = upperlayer.ARP
)

func etherTypeFor(tag ProtoTag) (tcpip.NetworkProtocolNumber, bool) {
	switch tag {
	case ProtoIPv4:
		return header.IPv4ProtocolNumber, true
	case ProtoIPv6:
		return header.IPv6ProtocolNumber, true
	case ProtoARP:
		return arpEtherType, true
	default:
		return 0, false
	}
}

func tagForEtherType(t tcpip.NetworkProtocolNumber) (ProtoTag, bool) {
	switch t {
	case header.IPv4ProtocolNumber:
		return ProtoIPv4, true
	case header.IPv6ProtocolNumber:
		return ProtoIPv6, true
	case arpEtherType:
		return ProtoARP, true
	default:
		return 0, false
	}
}

// ArpCache is the external collaborator that resolves a Tx buffer's
// destination hardware address, either immediately or by pending the
// buffer until resolution completes (§4.3 step 7, §7 "Protocol-addressing
// errors").
type ArpCache interface {
	Resolve(buf *netbuf.NetBuffer) (Result, error)
}

// Transmitter is the subset of the device driver the link layer's
// transmit path depends on.
type Transmitter interface {
	Tx(buf *netbuf.NetBuffer) error
	AddrMulticastAdd(hw [6]byte)
}

// InterfaceState holds the per-interface state the link layer consults:
// enablement, hardware address, link state, and the MTU negotiated
// against the smallest configured transmit pool (§3 InterfaceState, §4.3
// "MTU / sizing helpers").
type InterfaceState struct {
	IfNbr   int
	Enabled bool
	LinkUp  bool
	HWAddr  [6]byte
	MTU     int
}

// LinkLayer binds one interface's state to its upward dispatch table and
// downward device driver / ARP cache collaborators.
type LinkLayer struct {
	State      *InterfaceState
	Dispatcher *upperlayer.Dispatcher
	Device     Transmitter
	Cache      ArpCache
}

// New returns a LinkLayer for the given interface state; state.Enabled is
// left as the caller set it.
func New(state *InterfaceState, dispatcher *upperlayer.Dispatcher, dev Transmitter, cache ArpCache) *LinkLayer {
	return &LinkLayer{State: state, Dispatcher: dispatcher, Device: dev, Cache: cache}
}

// LinkStatePoll lets an external watchdog update the interface's link state
// directly, supplementing Rx's implicit "any received frame means link up"
// rule rather than replacing it (§9 "Open questions").
func (l *LinkLayer) LinkStatePoll(up bool) {
	l.State.LinkUp = up
}

// MTUSet clamps mtu against the smallest transmit pool's usable region
// (caller supplies that ceiling, since pool sizing lives in netbuf) and
// records it on the interface state (§4.3 mtu_set()).
func (l *LinkLayer) MTUSet(mtu, smallestTxPool int) {
	max := smallestTxPool - PktSizeHdr
	if mtu > max {
		mtu = max
	}
	l.State.MTU = mtu
}
