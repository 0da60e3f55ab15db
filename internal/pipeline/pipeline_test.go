// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package pipeline

import (
	"net"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/msghash"
)

func testConfig() fconfig.Config {
	cfg := fconfig.Default()
	cfg.TargetAddress = "10.0.0.1"
	cfg.ChecksumValidation = false
	return cfg
}

func newTestPipeline(t *testing.T, cfg fconfig.Config, now func() time.Time) *Pipeline {
	t.Helper()
	store := fconfig.NewStore(cfg)
	shared := NewShared(store, now)
	return shared.NewWorker(now)
}

func buildFrame(t *testing.T, srcIP, dstIP net.IP, srcPort, dstPort uint16, payload []byte, asTCP bool) []byte {
	t.Helper()
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{Version: 4, IHL: 5, TTL: 64, SrcIP: srcIP, DstIP: dstIP}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	if asTCP {
		ip.Protocol = layers.IPProtocolTCP
		tcp := layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), SYN: true, Window: 1024}
		if err := tcp.SetNetworkLayerForChecksum(&ip); err != nil {
			t.Fatalf("SetNetworkLayerForChecksum: %v", err)
		}
		if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &tcp, gopacket.Payload(payload)); err != nil {
			t.Fatalf("SerializeLayers: %v", err)
		}
		return buf.Bytes()
	}

	ip.Protocol = layers.IPProtocolUDP
	udp := layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		t.Fatalf("SetNetworkLayerForChecksum: %v", err)
	}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}
	return buf.Bytes()
}

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

// oobPayload builds a 12-byte OOB payload: the marker, 4 filler bytes
// standing in for the connect-message body, and the token fingerprint
// at the offset-8 slot.
func oobPayload(tokenHash uint32) []byte {
	p := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	p = append(p, []byte("cnct")...)
	p = append(p, le32(tokenHash)...)
	return p
}

func enetPayload(peerID uint16, flags uint8, seq uint16, msgHash uint32) []byte {
	word := (peerID & 0x0FFF) | uint16(flags)<<12
	p := le16(word)
	p = append(p, le16(seq)...)
	p = append(p, le32(msgHash)...)
	return p
}

// Scenario 1: non-UDP passthrough.
func TestScenarioNonUDPPassthrough(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	frame := buildFrame(t, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), 40000, 30120, make([]byte, 20), true)
	if v := pl.Process(frame); v != Forward {
		t.Fatalf("verdict = %v, want Forward", v)
	}
	if pl.Stats().Passed != 0 || pl.Stats().Dropped != 0 {
		t.Fatalf("no counters should move for non-UDP traffic, got %+v", pl.Stats())
	}
}

// Scenario 2: port outside the configured set.
func TestScenarioPortOutsideSet(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	frame := buildFrame(t, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), 40000, 9999, oobPayload(1), false)
	if v := pl.Process(frame); v != Forward {
		t.Fatalf("verdict = %v, want Forward", v)
	}
}

// Scenario 3: valid OOB handshake.
func TestScenarioValidOOBHandshake(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	frame := buildFrame(t, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), 40000, 30120, oobPayload(0xDEADBEEF), false)
	if v := pl.Process(frame); v != Forward {
		t.Fatalf("verdict = %v, want Forward", v)
	}
	if pl.Stats().Passed != 1 {
		t.Fatalf("passed = %d, want 1", pl.Stats().Passed)
	}
}

// Scenario 4: OOB, then CONFIRM, then I_HOST advances to Connected.
func TestScenarioHandshakeSequence(t *testing.T) {
	now := time.Unix(0, 0)
	pl := newTestPipeline(t, testConfig(), func() time.Time { return now })
	src := net.IPv4(10, 0, 0, 7)
	dst := net.IPv4(10, 0, 0, 1)

	if v := pl.Process(buildFrame(t, src, dst, 40000, 30120, oobPayload(0xAAAA), false)); v != Forward {
		t.Fatalf("OOB: verdict = %v, want Forward", v)
	}
	now = now.Add(10 * time.Millisecond)
	confirmFrame := buildFrame(t, src, dst, 40000, 30120, enetPayload(1, 0, 0, msghash.Confirm), false)
	if v := pl.Process(confirmFrame); v != Forward {
		t.Fatalf("CONFIRM: verdict = %v, want Forward", v)
	}
	now = now.Add(10 * time.Millisecond)
	iHostFrame := buildFrame(t, src, dst, 40000, 30120, enetPayload(1, 0, 0, msghash.IHost), false)
	if v := pl.Process(iHostFrame); v != Forward {
		t.Fatalf("I_HOST: verdict = %v, want Forward", v)
	}
	if pl.Stats().Passed != 3 {
		t.Fatalf("passed = %d, want 3", pl.Stats().Passed)
	}
}

// Scenario 5: flood exceeding the per-source limit. The source first
// completes the connection handshake (well under any rate limit) so
// the flood itself exercises steady-state CONNECTED traffic rather
// than being rejected by the state machine for skipping the handshake.
func TestScenarioFlood(t *testing.T) {
	cfg := testConfig()
	cfg.PerSourceLimit = 1000
	now := time.Unix(0, 0)
	pl := newTestPipeline(t, cfg, func() time.Time { return now })
	src := net.IPv4(10, 0, 0, 9)
	dst := net.IPv4(10, 0, 0, 1)

	pl.Process(buildFrame(t, src, dst, 40000, 30120, oobPayload(0xBEEF), false))
	now = now.Add(10 * time.Millisecond)
	pl.Process(buildFrame(t, src, dst, 40000, 30120, enetPayload(2, 0, 0, msghash.Confirm), false))
	now = now.Add(10 * time.Millisecond)
	pl.Process(buildFrame(t, src, dst, 40000, 30120, enetPayload(2, 0, 0, msghash.IHost), false))
	now = now.Add(10 * time.Millisecond)

	frame := buildFrame(t, src, dst, 40000, 30120, enetPayload(2, 0, 0, msghash.Frame), false)
	allowed, rejected := 0, 0
	for i := 0; i < 2000; i++ {
		if pl.Process(frame) == Forward {
			allowed++
		} else {
			rejected++
		}
		now = now.Add(500 * time.Microsecond) // 2000 pps arrival rate
	}
	if allowed == 0 || rejected == 0 {
		t.Fatalf("expected a mix of forwards and drops, got allowed=%d rejected=%d", allowed, rejected)
	}
	if pl.Stats().RateLimited == 0 {
		t.Fatalf("expected rate_limited counter to grow")
	}
}

// Scenario 6: bad message hash on the server port.
func TestScenarioBadMessageHash(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	frame := buildFrame(t, net.IPv4(10, 0, 0, 11), net.IPv4(10, 0, 0, 1), 40000, 30120, enetPayload(3, 0, 0, 0x00000000), false)
	if v := pl.Process(frame); v != Drop {
		t.Fatalf("verdict = %v, want Drop", v)
	}
	if pl.Stats().InvalidProtocol != 1 {
		t.Fatalf("invalid_protocol = %d, want 1", pl.Stats().InvalidProtocol)
	}
}

// Scenario 7: sequence jump rejected after its tenth occurrence.
func TestScenarioSequenceJump(t *testing.T) {
	now := time.Unix(0, 0)
	pl := newTestPipeline(t, testConfig(), func() time.Time { return now })
	src := net.IPv4(10, 0, 0, 13)
	dst := net.IPv4(10, 0, 0, 1)
	completeHandshake(t, pl, src, dst, &now)

	first := buildFrame(t, src, dst, 40000, 30120, enetPayload(4, 0x1, 10, msghash.Frame), false)
	if v := pl.Process(first); v != Forward {
		t.Fatalf("first packet: verdict = %v, want Forward", v)
	}

	jump := buildFrame(t, src, dst, 40000, 30120, enetPayload(4, 0x1, 20000, msghash.Frame), false)
	var last Verdict
	for i := 0; i < 11; i++ {
		now = now.Add(10 * time.Millisecond)
		last = pl.Process(jump)
	}
	if last != Drop {
		t.Fatalf("11th jump packet: verdict = %v, want Drop", last)
	}
	if pl.Stats().SequenceViolations == 0 {
		t.Fatalf("expected sequence_violation counter to grow")
	}
}

// Scenario 8: peer-id confined to 12 bits by construction. Strict ENet
// validation is disabled here since this frame's 0xF flags nibble sets
// the reserved bits on purpose.
func TestScenarioPeerIDMasking(t *testing.T) {
	cfg := testConfig()
	cfg.StrictENetValidation = false
	now := time.Unix(0, 0)
	pl := newTestPipeline(t, cfg, func() time.Time { return now })
	src, dst := net.IPv4(10, 0, 0, 15), net.IPv4(10, 0, 0, 1)
	completeHandshake(t, pl, src, dst, &now)

	frame := buildFrame(t, src, dst, 40000, 30120, enetPayload(0xFFF, 0xF, 0, msghash.Frame), false)
	if v := pl.Process(frame); v != Forward {
		t.Fatalf("verdict = %v, want Forward for a valid 12-bit peer id", v)
	}
}

// completeHandshake drives src through OOB -> CONFIRM -> I_HOST on pl,
// advancing *now between packets so the handshake itself never trips
// the per-source rate limit, leaving src CONNECTED for the caller's
// own assertions.
func completeHandshake(t *testing.T, pl *Pipeline, src, dst net.IP, now *time.Time) {
	t.Helper()
	if v := pl.Process(buildFrame(t, src, dst, 40000, 30120, oobPayload(0xC0FFEE), false)); v != Forward {
		t.Fatalf("handshake OOB: verdict = %v, want Forward", v)
	}
	*now = now.Add(10 * time.Millisecond)
	if v := pl.Process(buildFrame(t, src, dst, 40000, 30120, enetPayload(4, 0, 0, msghash.Confirm), false)); v != Forward {
		t.Fatalf("handshake CONFIRM: verdict = %v, want Forward", v)
	}
	*now = now.Add(10 * time.Millisecond)
	if v := pl.Process(buildFrame(t, src, dst, 40000, 30120, enetPayload(4, 0, 0, msghash.IHost), false)); v != Forward {
		t.Fatalf("handshake I_HOST: verdict = %v, want Forward", v)
	}
	*now = now.Add(10 * time.Millisecond)
}

func TestSizeFloorAborts(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	if v := pl.Process(make([]byte, 10)); v != Abort {
		t.Fatalf("verdict = %v, want Abort", v)
	}
}

// Payload below the 4-byte classification floor counts as invalid
// protocol, not a generic drop.
func TestUndersizePayloadCountsInvalidProtocol(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	frame := buildFrame(t, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), 40000, 30120, []byte{0x01, 0x02}, false)
	if v := pl.Process(frame); v != Drop {
		t.Fatalf("verdict = %v, want Drop", v)
	}
	if pl.Stats().InvalidProtocol != 1 {
		t.Fatalf("invalid_protocol = %d, want 1", pl.Stats().InvalidProtocol)
	}
}

// Payload over the per-port size window counts as invalid protocol.
func TestOversizePayloadCountsInvalidProtocol(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	frame := buildFrame(t, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), 40000, 30120, make([]byte, maxServerPayload+1), false)
	if v := pl.Process(frame); v != Drop {
		t.Fatalf("verdict = %v, want Drop", v)
	}
	if pl.Stats().InvalidProtocol != 1 {
		t.Fatalf("invalid_protocol = %d, want 1", pl.Stats().InvalidProtocol)
	}
}

// A short OOB payload (below 8 bytes) counts as invalid protocol, not
// a size violation.
func TestShortOOBPayloadCountsInvalidProtocol(t *testing.T) {
	pl := newTestPipeline(t, testConfig(), func() time.Time { return time.Unix(0, 0) })
	payload := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x02}
	frame := buildFrame(t, net.IPv4(10, 0, 0, 5), net.IPv4(10, 0, 0, 1), 40000, 30120, payload, false)
	if v := pl.Process(frame); v != Drop {
		t.Fatalf("verdict = %v, want Drop", v)
	}
	if pl.Stats().InvalidProtocol != 1 {
		t.Fatalf("invalid_protocol = %d, want 1", pl.Stats().InvalidProtocol)
	}
}
