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

var broadcastMAC = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Tx frames buf for the wire and hands it to the device driver, or defers to
// the ARP cache when the destination hardware address is still unresolved
// (§4.3 tx(buffer), steps 1-7).
func (l *LinkLayer) Tx(buf *netbuf.NetBuffer) (Result, error) {
	if buf.Protocol.IF.Len > 0 {
		if err := l.Device.Tx(buf); err != nil {
			return 0, err
		}
		return TxPassthrough, nil
	}

	tag := ProtoTag(buf.SubProto)
	etherType, ok := etherTypeFor(tag)
	if !ok {
		return 0, ErrInvalidEtherType
	}

	switch tag {
	case ProtoIPv4, ProtoARP:
		buf.AddrProtocol.Protocol = buf.RouteIPv4[:]
	case ProtoIPv6:
		buf.AddrProtocol.Protocol = buf.RouteIPv6[:]
	}

	var dst [6]byte
	var result Result

	switch {
	case buf.Flags.Has(netbuf.TxBroadcast):
		dst = broadcastMAC
		result = TxBroadcast
	case buf.Flags.Has(netbuf.TxMulticast):
		if tag == ProtoIPv6 {
			dst = [6]byte{0x33, 0x33, buf.RouteIPv6[12], buf.RouteIPv6[13], buf.RouteIPv6[14], buf.RouteIPv6[15]}
		}
		// IPv4 multicast: destination left zero; AddrHW.HW below gives
		// the resolver a pointer into the frame to write in place.
		result = TxMulticast
	default:
		result = TxAddrReq
	}

	buf.ShiftHeader(PktSizeHdr)

	eth := header.Ethernet(buf.Data())
	eth.Encode(&header.EthernetFields{
		SrcAddr: tcpip.LinkAddress(l.State.HWAddr[:]),
		DstAddr: tcpip.LinkAddress(dst[:]),
		Type:    etherType,
	})

	buf.AddrHW.HW = buf.Data()[0:6]

	if buf.DataLen() < PktSizeMin {
		if !buf.Flags.Has(netbuf.ClrMem) {
			raw := buf.Raw()
			pad := raw[buf.Head()+buf.DataLen() : buf.Head()+PktSizeMin]
			for i := range pad {
				pad[i] = 0
			}
		}
		buf.SetDataLen(PktSizeMin)
	}

	if result == TxAddrReq || (result == TxMulticast && tag == ProtoIPv4) {
		cacheResult, err := l.Cache.Resolve(buf)
		if err != nil {
			return 0, err
		}
		if cacheResult == CachePend {
			return TxAddrPend, nil
		}

		if err := l.Device.Tx(buf); err != nil {
			return 0, err
		}
		return CacheResolved, nil
	}

	if err := l.Device.Tx(buf); err != nil {
		return 0, err
	}
	return result, nil
}
