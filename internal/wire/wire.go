// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package wire parses the Ethernet+IPv4+UDP framing fivemguard's fast
// path inspects, with explicit bounds checks at each layer boundary.
//
// Decoding is done directly against the caller-owned byte span using
// gopacket/layers' own DecodeFromBytes methods rather than
// gopacket.NewPacket: the latter allocates a Packet and a layer slice
// per call, which the no-allocation fast path rules out.
package wire

import (
	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// MinFrameLen is the Ethernet+minimum-IPv4+UDP size floor.
const MinFrameLen = 14 + 20 + 8

// Headers holds the three decoded layers plus the UDP payload slice.
// It is a value type the caller allocates once per worker and reuses
// across packets via Parse.
type Headers struct {
	Eth     layers.Ethernet
	IP      layers.IPv4
	UDP     layers.UDP
	Payload []byte
}

// ParseError enumerates why Parse declined to produce Headers. The
// caller maps these to pipeline verdicts: a non-IPv4 ethertype, a
// non-UDP protocol or a bad IPv4 header means "not our traffic" (PASS);
// the too-short error, detected with IsTooShort, means the frame cannot
// be parsed at all (ABORT).
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

var (
	errTooShort     = &ParseError{Reason: "frame shorter than minimum Ethernet+IPv4+UDP size"}
	errNotIPv4      = &ParseError{Reason: "ethertype is not IPv4"}
	errShortIPv4IHL = &ParseError{Reason: "IPv4 IHL below minimum header length"}
	errNotUDP       = &ParseError{Reason: "IPv4 protocol is not UDP"}
)

// IsTooShort reports whether err is the "below the absolute size
// floor" case, which the pipeline maps to ABORT rather than PASS.
func IsTooShort(err error) bool {
	pe, ok := err.(*ParseError)
	return ok && pe == errTooShort
}

// Parse decodes data as Ethernet+IPv4+UDP in place, reusing hdr's
// storage. It returns a *ParseError for anything that means the
// datagram is not traffic this filter handles.
func Parse(data []byte, hdr *Headers) error {
	if len(data) < MinFrameLen {
		return errTooShort
	}

	if err := hdr.Eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return errTooShort
	}
	if hdr.Eth.EthernetType != layers.EthernetTypeIPv4 {
		return errNotIPv4
	}

	ipData := hdr.Eth.LayerPayload()
	if len(ipData) < 20 {
		return errShortIPv4IHL
	}
	if err := hdr.IP.DecodeFromBytes(ipData, gopacket.NilDecodeFeedback); err != nil {
		return errShortIPv4IHL
	}
	if hdr.IP.IHL < 5 {
		return errShortIPv4IHL
	}
	if hdr.IP.Protocol != layers.IPProtocolUDP {
		return errNotUDP
	}

	udpData := hdr.IP.LayerPayload()
	if len(udpData) < 8 {
		return errTooShort
	}
	if err := hdr.UDP.DecodeFromBytes(udpData, gopacket.NilDecodeFeedback); err != nil {
		return errTooShort
	}

	hdr.Payload = hdr.UDP.LayerPayload()
	return nil
}

// DestIPv4 returns the IPv4 destination address as a host-order
// uint32, matching the config record's "0 = any" target-address
// convention.
func DestIPv4(hdr *Headers) uint32 {
	return ipToUint32(hdr.IP.DstIP)
}

// SrcIPv4 returns the IPv4 source address as a host-order uint32.
func SrcIPv4(hdr *Headers) uint32 {
	return ipToUint32(hdr.IP.SrcIP)
}

func ipToUint32(ip []byte) uint32 {
	if len(ip) == 16 {
		ip = ip[12:16]
	}
	if len(ip) != 4 {
		return 0
	}
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}
