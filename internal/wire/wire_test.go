// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package wire

import (
	"net"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

func buildUDPFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 5),
		DstIP:    net.IPv4(10, 0, 0, 1),
	}
	udp := layers.UDP{SrcPort: 40000, DstPort: 30120}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: %v", err)
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}
	return buf.Bytes()
}

func TestParseValidUDPFrame(t *testing.T) {
	frame := buildUDPFrame(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 1, 2, 3, 4})
	var hdr Headers
	if err := Parse(frame, &hdr); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if hdr.UDP.DstPort != 30120 {
		t.Fatalf("dst port = %d, want 30120", hdr.UDP.DstPort)
	}
	if len(hdr.Payload) != 8 {
		t.Fatalf("payload len = %d, want 8", len(hdr.Payload))
	}
	if DestIPv4(&hdr) != 0x0A000001 {
		t.Fatalf("dest ip = %#x, want 0x0A000001", DestIPv4(&hdr))
	}
}

func TestParseTooShort(t *testing.T) {
	var hdr Headers
	err := Parse(make([]byte, 10), &hdr)
	if !IsTooShort(err) {
		t.Fatalf("expected IsTooShort, got %v", err)
	}
}

func TestParseNonIPv4(t *testing.T) {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeARP,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, gopacket.Payload(make([]byte, 40))); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}
	var hdr Headers
	err := Parse(buf.Bytes(), &hdr)
	if err == nil || IsTooShort(err) {
		t.Fatalf("expected a non-TooShort ParseError, got %v", err)
	}
}
