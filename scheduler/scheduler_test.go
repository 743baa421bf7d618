package scheduler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netrecon/capture"
	"netrecon/config"
	"netrecon/probe"
	"netrecon/scanerrors"
	"netrecon/scanstatus"
)

// fakeSender is scheduler_test's own Sender-seam double (the probe package's
// equivalent is unexported to its own tests), holding no mutable state so
// it's safe for the scheduler's concurrent goroutines to share.
type fakeSender struct {
	localV4 net.IP
	mac     net.HardwareAddr
}

func (f *fakeSender) LocalAddr() net.IP             { return f.localV4 }
func (f *fakeSender) LocalAddrV6() net.IP           { return nil }
func (f *fakeSender) HardwareAddr() net.HardwareAddr { return f.mac }
func (f *fakeSender) ResolveMAC(_ context.Context, _ net.IP) (net.HardwareAddr, error) {
	return f.mac, nil
}
func (f *fakeSender) ReserveSourcePort() (uint16, func(), error) { return 50000, func() {}, nil }
func (f *fakeSender) Send(_ net.HardwareAddr, _ layers.EthernetType, _ ...gopacket.SerializableLayer) error {
	return nil
}
func (f *fakeSender) SendARPRequest(_, _ net.IP) error { return nil }

// fanInReceiver hands back whichever of its precomputed candidate packets
// the caller's matcher accepts, letting a single fake simulate several
// distinct hosts answering a fanned-out scan differently.
type fanInReceiver struct {
	candidates []gopacket.Packet
}

func (r *fanInReceiver) Register(m capture.Matcher) (<-chan gopacket.Packet, func()) {
	ch := make(chan gopacket.Packet, 1)
	for _, p := range r.candidates {
		if m(p) {
			ch <- p
			break
		}
	}
	return ch, func() {}
}

func (r *fanInReceiver) WaitFor(_ context.Context, m capture.Matcher, _ time.Duration, send func() error) (gopacket.Packet, error) {
	if err := send(); err != nil {
		return nil, err
	}
	for _, p := range r.candidates {
		if m(p) {
			return p, nil
		}
	}
	return nil, scanerrors.ErrCaptureFailed
}

func buildTestPacket(t *testing.T, ls ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func buildTCPReply(t *testing.T, srcIP net.IP, srcPort, dstPort uint16, syn, ack, rst bool) gopacket.Packet {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6}, DstMAC: net.HardwareAddr{6, 5, 4, 3, 2, 1}, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: srcIP.To4(), DstIP: net.IPv4(192, 168, 1, 10).To4()}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), SYN: syn, ACK: ack, RST: rst}
	tcp.SetNetworkLayerForChecksum(ip)
	return buildTestPacket(t, eth, ip, tcp)
}

// TestRunTCPScanMergesPerHostVerdicts exercises the scheduler's fan-out/
// merge logic across two hosts answering a SYN scan differently, the S1/S2
// scenario pair this engine's verdict table distinguishes.
func TestRunTCPScanMergesPerHostVerdicts(t *testing.T) {
	host1 := net.IPv4(10, 0, 0, 1).To4()
	host2 := net.IPv4(10, 0, 0, 2).To4()
	clientIP := net.IPv4(192, 168, 1, 10).To4()
	clientPort := uint16(50000)
	port := uint16(80)

	openReply := buildTCPReply(t, host1, port, clientPort, true, true, false)
	closedReply := buildTCPReply(t, host2, port, clientPort, false, false, true)

	sender := &fakeSender{localV4: clientIP, mac: net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	receiver := &fanInReceiver{candidates: []gopacket.Packet{openReply, closedReply}}
	eng := probe.NewEngine(sender, receiver, nil)

	opts := config.Options{SourcePort: clientPort, Timeout: time.Second}
	results, err := RunTCPScan(context.Background(), eng, probe.SYN, []net.IP{host1, host2}, []uint16{port}, opts, nil)
	if err != nil {
		t.Fatalf("RunTCPScan: unexpected error: %v", err)
	}

	if got := results.HostStatus(host1).Status[port]; got != scanstatus.Open {
		t.Errorf("host1 status = %v, want Open", got)
	}
	if got := results.HostStatus(host2).Status[port]; got != scanstatus.Closed {
		t.Errorf("host2 status = %v, want Closed", got)
	}
}

// TestRunARPScanMergesOnlyRespondingHosts exercises RunARPScan's merge
// logic across three candidate hosts, only two of which answer.
func TestRunARPScanMergesOnlyRespondingHosts(t *testing.T) {
	host1 := net.IPv4(10, 0, 0, 1).To4()
	host2 := net.IPv4(10, 0, 0, 2).To4()
	host3 := net.IPv4(10, 0, 0, 3).To4() // never answers

	mac1 := net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	mac2 := net.HardwareAddr{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}

	arpReply := func(fromIP net.IP, fromMAC net.HardwareAddr) gopacket.Packet {
		arp := &layers.ARP{
			AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
			HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPReply,
			SourceHwAddress: []byte(fromMAC), SourceProtAddress: []byte(fromIP.To4()),
			DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{192, 168, 1, 10},
		}
		eth := &layers.Ethernet{SrcMAC: fromMAC, DstMAC: net.HardwareAddr{0, 0, 0, 0, 0, 0}, EthernetType: layers.EthernetTypeARP}
		return buildTestPacket(t, eth, arp)
	}

	sender := &fakeSender{localV4: net.IPv4(192, 168, 1, 10).To4()}
	receiver := &fanInReceiver{candidates: []gopacket.Packet{arpReply(host1, mac1), arpReply(host2, mac2)}}
	eng := probe.NewEngine(sender, receiver, nil)

	opts := config.Options{Timeout: 20 * time.Millisecond}
	results, err := RunARPScan(context.Background(), eng, []net.IP{host1, host2, host3}, opts, nil, nil)
	if err != nil {
		t.Fatalf("RunARPScan: unexpected error: %v", err)
	}
	if len(results.AliveHosts) != 2 {
		t.Fatalf("got %d alive hosts, want 2: %+v", len(results.AliveHosts), results.AliveHosts)
	}
	if got := results.AliveHosts[host1.String()].MAC.String(); got != mac1.String() {
		t.Errorf("host1 mac = %s, want %s", got, mac1)
	}
	if got := results.AliveHosts[host2.String()].MAC.String(); got != mac2.String() {
		t.Errorf("host2 mac = %s, want %s", got, mac2)
	}
	if _, ok := results.AliveHosts[host3.String()]; ok {
		t.Errorf("host3 should not be in AliveHosts, it never replied")
	}
}
