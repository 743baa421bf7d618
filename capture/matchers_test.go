package capture

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/google/gopacket/layers"
)

func fakeEmbeddedDatagram(protocol uint8, dstIP net.IP, dstPort uint16) []byte {
	data := make([]byte, 28) // 20-byte IPv4 header + 8 bytes of transport header
	data[0] = 0x45           // version 4, IHL 5 (20 bytes)
	data[9] = protocol
	copy(data[16:20], dstIP.To4())
	binary.BigEndian.PutUint16(data[22:24], dstPort) // transport dst port at ihl+2
	return data
}

func TestMatchesEmbeddedOriginalAcceptsExactMatch(t *testing.T) {
	dstIP := net.ParseIP("10.0.0.5")
	data := fakeEmbeddedDatagram(uint8(layers.IPProtocolUDP), dstIP, 53)

	if !matchesEmbeddedOriginal(data, dstIP, 53, layers.IPProtocolUDP) {
		t.Error("expected match for identical destination and protocol")
	}
}

func TestMatchesEmbeddedOriginalRejectsWrongPort(t *testing.T) {
	dstIP := net.ParseIP("10.0.0.5")
	data := fakeEmbeddedDatagram(uint8(layers.IPProtocolUDP), dstIP, 53)

	if matchesEmbeddedOriginal(data, dstIP, 54, layers.IPProtocolUDP) {
		t.Error("expected no match for a different destination port")
	}
}

func TestMatchesEmbeddedOriginalRejectsWrongProtocol(t *testing.T) {
	dstIP := net.ParseIP("10.0.0.5")
	data := fakeEmbeddedDatagram(uint8(layers.IPProtocolUDP), dstIP, 53)

	if matchesEmbeddedOriginal(data, dstIP, 53, layers.IPProtocolTCP) {
		t.Error("expected no match for a different transport protocol")
	}
}

func TestMatchesEmbeddedOriginalRejectsTruncatedData(t *testing.T) {
	if matchesEmbeddedOriginal(make([]byte, 10), net.ParseIP("10.0.0.5"), 53, layers.IPProtocolUDP) {
		t.Error("expected no match for a datagram shorter than a full IPv4 header")
	}
}
