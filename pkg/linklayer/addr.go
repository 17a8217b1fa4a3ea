// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package linklayer

// AddrFamily selects which protocol address family a multicast translation
// applies to.
type AddrFamily int

const (
	FamilyIPv4 AddrFamily = iota
	FamilyIPv6
)

// AddrHWGet returns the interface's own hardware address (§4.3
// "Hardware-address binding helpers").
func (l *LinkLayer) AddrHWGet() [6]byte {
	return l.State.HWAddr
}

// AddrHWSet validates and installs the interface's hardware address.
func (l *LinkLayer) AddrHWSet(addr []byte) error {
	if len(addr) != 6 {
		return ErrInvalidHWAddr
	}
	if isNull(addr) || isBroadcast(addr) {
		return ErrInvalidHWAddr
	}

	var hw [6]byte
	copy(hw[:], addr)
	l.State.HWAddr = hw
	return nil
}

// AddrMulticastProtocolToHW maps a multicast protocol address to its
// Ethernet hardware address and registers it with the device driver's hash
// filter: IPv4 multicast (224.0.0.0/4) maps to 01:00:5E plus the low 23 bits
// of the address, IPv6 multicast maps to 33:33 plus the low 32 bits (§4.3
// addr_multicast_protocol_to_hw).
func (l *LinkLayer) AddrMulticastProtocolToHW(protoAddr []byte, family AddrFamily) ([6]byte, error) {
	var hw [6]byte

	switch family {
	case FamilyIPv4:
		if len(protoAddr) != 4 {
			return hw, ErrInvalidHWAddr
		}
		if protoAddr[0]&0xf0 != 0xe0 {
			return hw, ErrInvalidHWAddr
		}
		hw = [6]byte{0x01, 0x00, 0x5e, protoAddr[1] & 0x7f, protoAddr[2], protoAddr[3]}
	case FamilyIPv6:
		if len(protoAddr) != 16 {
			return hw, ErrInvalidHWAddr
		}
		hw = [6]byte{0x33, 0x33, protoAddr[12], protoAddr[13], protoAddr[14], protoAddr[15]}
	default:
		return hw, ErrInvalidHWAddr
	}

	l.Device.AddrMulticastAdd(hw)
	return hw, nil
}
