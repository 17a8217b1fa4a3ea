// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package linklayer

import (
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/usbarmory/netcore/pkg/netbuf"
)

const (
	dsapSNAP  = 0xaa
	ssapSNAP  = 0xaa
	ctrlSNAP  = 0x03
	etherTypeLenMax = 1500 // 802.3 length field ceiling (§4.3 step 6)
)

var snapOUI = [3]byte{0x00, 0x00, 0x00}

// Rx classifies a received frame and dispatches it to the registered
// upper-layer handler for its protocol tag (§4.3 rx(buffer), steps 1-10).
func (l *LinkLayer) Rx(buf *netbuf.NetBuffer) error {
	if !l.State.Enabled {
		return ErrNotEnabled
	}

	l.State.LinkUp = true

	if buf.DataLen() < PktSizeMin {
		return ErrFrameTooShort
	}

	data := buf.Data()
	dst := data[0:6]
	src := data[6:12]

	switch {
	case isBroadcast(dst):
		buf.Flags |= netbuf.RxBroadcast
	case dst[0]&0x01 != 0:
		buf.Flags |= netbuf.RxMulticast
	case macEqual(dst, l.State.HWAddr):
		// exact match, no flag
	default:
		return ErrInvalidAddrDest
	}

	if isNull(src) || isBroadcast(src) {
		return ErrInvalidAddrSrc
	}

	third := uint16(data[12])<<8 | uint16(data[13])

	var tag ProtoTag
	var hdrLen int
	var ok bool

	if third <= etherTypeLenMax {
		// IEEE 802.3: the third field is a declared payload length,
		// which must equal the frame's actual payload length whenever
		// the frame meets the minimum CRC-inclusive size (always true
		// here, since step 3 already rejected anything shorter) (§9
		// "Open questions": preserve this condition exactly).
		if int(third) != buf.DataLen()-PktSizeHdr {
			return ErrInvalidLenFrame
		}

		// LLC/SNAP header follows the length field.
		if buf.DataLen() < snapHdrLen {
			return ErrInvalidSnapHdr
		}
		if data[14] != dsapSNAP || data[15] != ssapSNAP || data[16] != ctrlSNAP {
			return ErrInvalidSnapHdr
		}
		if data[17] != snapOUI[0] || data[18] != snapOUI[1] || data[19] != snapOUI[2] {
			return ErrInvalidSnapHdr
		}

		snapType := tcpip.NetworkProtocolNumber(uint16(data[20])<<8 | uint16(data[21]))
		tag, ok = tagForEtherType(snapType)
		if !ok {
			return ErrInvalidSnapType
		}
		hdrLen = snapHdrLen
	} else {
		// Ethernet II.
		eth := header.Ethernet(data)
		tag, ok = tagForEtherType(eth.Type())
		if !ok {
			return ErrInvalidEtherType
		}
		hdrLen = PktSizeHdr
	}

	buf.Protocol.IF = netbuf.ProtocolIndex{Index: 0, Len: hdrLen}
	buf.TrimHeader(hdrLen)
	buf.SubProto = int(tag)

	return l.Dispatcher.Dispatch(l.State.IfNbr, tag, buf)
}

func isBroadcast(addr []byte) bool {
	for _, b := range addr {
		if b != 0xff {
			return false
		}
	}
	return true
}

func isNull(addr []byte) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}

func macEqual(addr []byte, hw [6]byte) bool {
	for i := 0; i < 6; i++ {
		if addr[i] != hw[i] {
			return false
		}
	}
	return true
}
