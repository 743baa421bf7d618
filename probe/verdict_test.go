package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netrecon/config"
	"netrecon/scanstatus"
)

var (
	testClientIP = net.IPv4(192, 168, 1, 10).To4()
	testServerIP = net.IPv4(192, 168, 1, 20).To4()
	testDstMAC   = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
)

// buildEmbeddedICMPv4 builds an ICMPv4 error packet from testServerIP
// carrying the given type/code and embedding originalLayers (the probe's
// own outbound IPv4+transport header) as the payload ICMP errors always
// quote back, the same correlation matchesEmbeddedOriginal parses.
func buildEmbeddedICMPv4(t *testing.T, typ layers.ICMPv4TypeCode, originalLayers ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	origBuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(origBuf, opts, originalLayers...); err != nil {
		t.Fatalf("serialize embedded original: %v", err)
	}
	original := append([]byte{}, origBuf.Bytes()...)

	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolICMPv4, SrcIP: testServerIP, DstIP: testClientIP}
	icmp := &layers.ICMPv4{TypeCode: typ}
	return buildPacket(t, testEthernet(), ip, icmp, gopacket.Payload(original))
}

func TestEngineTCPSynOpen(t *testing.T) {
	serverPort := uint16(80)
	clientPort := uint16(49153) // fakeSender's first reservation

	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}

	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: testServerIP, DstIP: testClientIP}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(serverPort), DstPort: layers.TCPPort(clientPort), SYN: true, ACK: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ip)
	reply := buildPacket(t, testEthernet(), ip, tcp)

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	status, rtt, err := eng.TCP(context.Background(), SYN, config.Options{Timeout: time.Second}, testServerIP, serverPort)
	if err != nil {
		t.Fatalf("TCP: unexpected error: %v", err)
	}
	if status != scanstatus.Open {
		t.Errorf("status = %v, want Open", status)
	}
	if rtt == nil {
		t.Error("rtt = nil, want non-nil")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(sender.sent))
	}
}

func TestEngineTCPSynClosedOnRST(t *testing.T) {
	serverPort := uint16(80)
	clientPort := uint16(49153)

	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}

	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: testServerIP, DstIP: testClientIP}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(serverPort), DstPort: layers.TCPPort(clientPort), RST: true}
	tcp.SetNetworkLayerForChecksum(ip)
	reply := buildPacket(t, testEthernet(), ip, tcp)

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	status, _, err := eng.TCP(context.Background(), SYN, config.Options{Timeout: time.Second}, testServerIP, serverPort)
	if err != nil {
		t.Fatalf("TCP: unexpected error: %v", err)
	}
	if status != scanstatus.Closed {
		t.Errorf("status = %v, want Closed", status)
	}
}

// TestEngineTCPSynIgnoresTimeExceeded confirms the SYN-specific ICMP
// allowlist (item 6 of the narrowing this engine implements) does NOT
// treat a plain TimeExceeded as filtered, unlike the general-purpose
// ICMPUnreachableFor matcher other TCP methods use.
func TestEngineTCPSynIgnoresTimeExceeded(t *testing.T) {
	serverPort := uint16(80)
	clientPort := uint16(49153)

	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}

	origIP := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: testClientIP, DstIP: testServerIP}
	origTCP := &layers.TCP{SrcPort: layers.TCPPort(clientPort), DstPort: layers.TCPPort(serverPort), SYN: true}
	origTCP.SetNetworkLayerForChecksum(origIP)
	reply := buildEmbeddedICMPv4(t, layers.CreateICMPv4TypeCode(layers.ICMPv4TypeTimeExceeded, 0), origIP, origTCP)

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	status, _, err := eng.TCP(context.Background(), SYN, config.Options{Timeout: 20 * time.Millisecond}, testServerIP, serverPort)
	if err != nil {
		t.Fatalf("TCP: unexpected error: %v", err)
	}
	if status != scanstatus.Filtered {
		t.Errorf("status = %v, want Filtered (no-response verdict, since TimeExceeded must be ignored for SYN)", status)
	}
}

func TestEngineUDPOpen(t *testing.T) {
	serverPort := uint16(53)
	clientPort := uint16(49153)

	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}

	ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: testServerIP, DstIP: testClientIP}
	udp := &layers.UDP{SrcPort: layers.UDPPort(serverPort), DstPort: layers.UDPPort(clientPort)}
	udp.SetNetworkLayerForChecksum(ip)
	reply := buildPacket(t, testEthernet(), ip, udp, gopacket.Payload([]byte("reply")))

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	status, _, err := eng.UDP(context.Background(), config.Options{Timeout: time.Second}, testServerIP, serverPort)
	if err != nil {
		t.Fatalf("UDP: unexpected error: %v", err)
	}
	if status != scanstatus.Open {
		t.Errorf("status = %v, want Open", status)
	}
}

func TestEngineUDPClosedOnPortUnreachable(t *testing.T) {
	serverPort := uint16(53)
	clientPort := uint16(49153)

	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}

	origIP := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: testClientIP, DstIP: testServerIP}
	origUDP := &layers.UDP{SrcPort: layers.UDPPort(clientPort), DstPort: layers.UDPPort(serverPort)}
	origUDP.SetNetworkLayerForChecksum(origIP)
	reply := buildEmbeddedICMPv4(t, layers.CreateICMPv4TypeCode(layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodePort), origIP, origUDP)

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	status, _, err := eng.UDP(context.Background(), config.Options{Timeout: time.Second}, testServerIP, serverPort)
	if err != nil {
		t.Fatalf("UDP: unexpected error: %v", err)
	}
	if status != scanstatus.Closed {
		t.Errorf("status = %v, want Closed", status)
	}
}

func TestEngineUDPFilteredOnHostUnreachable(t *testing.T) {
	serverPort := uint16(53)
	clientPort := uint16(49153)

	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}

	origIP := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: testClientIP, DstIP: testServerIP}
	origUDP := &layers.UDP{SrcPort: layers.UDPPort(clientPort), DstPort: layers.UDPPort(serverPort)}
	origUDP.SetNetworkLayerForChecksum(origIP)
	reply := buildEmbeddedICMPv4(t, layers.CreateICMPv4TypeCode(layers.ICMPv4TypeDestinationUnreachable, layers.ICMPv4CodeHost), origIP, origUDP)

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	status, _, err := eng.UDP(context.Background(), config.Options{Timeout: time.Second}, testServerIP, serverPort)
	if err != nil {
		t.Fatalf("UDP: unexpected error: %v", err)
	}
	if status != scanstatus.Filtered {
		t.Errorf("status = %v, want Filtered", status)
	}
}

func TestEngineUDPTimeoutIsOpenOrFiltered(t *testing.T) {
	sender := &fakeSender{localV4: testClientIP, resolvedMAC: testDstMAC}
	eng := NewEngine(sender, &fakeReceiver{}, nil)

	status, rtt, err := eng.UDP(context.Background(), config.Options{Timeout: 5 * time.Millisecond}, testServerIP, 53)
	if err != nil {
		t.Fatalf("UDP: unexpected error: %v", err)
	}
	if status != scanstatus.OpenOrFiltered {
		t.Errorf("status = %v, want OpenOrFiltered", status)
	}
	if rtt != nil {
		t.Error("rtt != nil on timeout, want nil")
	}
}

func TestEngineARPResolvesMAC(t *testing.T) {
	wantMAC := net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	sender := &fakeSender{localV4: testClientIP}

	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPReply,
		SourceHwAddress:   []byte(wantMAC),
		SourceProtAddress: []byte(testServerIP),
		DstHwAddress:      []byte(sender.localV4),
		DstProtAddress:    []byte(testClientIP),
	}
	reply := buildPacket(t, &layers.Ethernet{SrcMAC: wantMAC, DstMAC: testDstMAC, EthernetType: layers.EthernetTypeARP}, arp)

	eng := NewEngine(sender, &fakeReceiver{reply: reply}, nil)

	mac, rtt, err := eng.ARP(context.Background(), config.Options{Timeout: time.Second}, testServerIP)
	if err != nil {
		t.Fatalf("ARP: unexpected error: %v", err)
	}
	if mac.String() != wantMAC.String() {
		t.Errorf("mac = %s, want %s", mac, wantMAC)
	}
	if rtt == nil {
		t.Error("rtt = nil, want non-nil")
	}
}

func TestEngineARPTimeoutIsNotAnError(t *testing.T) {
	sender := &fakeSender{localV4: testClientIP}
	eng := NewEngine(sender, &fakeReceiver{}, nil)

	mac, rtt, err := eng.ARP(context.Background(), config.Options{Timeout: 5 * time.Millisecond}, testServerIP)
	if err != nil {
		t.Fatalf("ARP: unexpected error on timeout: %v", err)
	}
	if mac != nil || rtt != nil {
		t.Errorf("mac/rtt = %v/%v, want nil/nil on timeout", mac, rtt)
	}
}
