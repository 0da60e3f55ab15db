// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"

	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/pipeline"
)

func writeSamplePCAP(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("write header: %v", err)
	}

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IPv4(192, 168, 1, 10), DstIP: net.IPv4(10, 0, 0, 1),
	}
	udp := layers.UDP{SrcPort: 40000, DstPort: 9999}
	_ = udp.SetNetworkLayerForChecksum(&ip)
	payload := gopacket.Payload([]byte{1, 2, 3, 4})

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, payload); err != nil {
		t.Fatalf("serialize: %v", err)
	}

	ci := gopacket.CaptureInfo{Timestamp: time.Unix(0, 0), CaptureLength: len(buf.Bytes()), Length: len(buf.Bytes())}
	if err := w.WritePacket(ci, buf.Bytes()); err != nil {
		t.Fatalf("write packet: %v", err)
	}
}

func TestReplayProcessesEachFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.pcap")
	writeSamplePCAP(t, path)

	store := fconfig.NewStore(fconfig.Default())
	shared := pipeline.NewShared(store, nil)
	pl := shared.NewWorker(nil)

	r := NewReplayer(pl)
	results, err := r.Replay(path)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}

	forward, drop, abort := Summarize(results)
	if forward+drop+abort != 1 {
		t.Fatalf("summary doesn't account for all results: %d/%d/%d", forward, drop, abort)
	}
}

func TestReplayMissingFileErrors(t *testing.T) {
	store := fconfig.NewStore(fconfig.Default())
	shared := pipeline.NewShared(store, nil)
	pl := shared.NewWorker(nil)

	r := NewReplayer(pl)
	if _, err := r.Replay("/nonexistent/path.pcap"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
