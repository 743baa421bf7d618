package capture

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ARPReplyFrom matches an ARP reply naming srcIP as the sender, the same
// predicate superapple8x-GoNetWatch's scanner.go applies inline
// (Operation == ARPReply, SourceProtAddress == srcIP).
func ARPReplyFrom(srcIP net.IP) Matcher {
	want := srcIP.To4()
	return func(packet gopacket.Packet) bool {
		layer := packet.Layer(layers.LayerTypeARP)
		if layer == nil {
			return false
		}
		arp := layer.(*layers.ARP)
		if arp.Operation != layers.ARPReply {
			return false
		}
		return net.IP(arp.SourceProtAddress).Equal(want)
	}
}

// TCPResponse matches a TCP segment from srcIP:srcPort to dstPort,
// carrying the flags a probe engine is listening for (SYN+ACK, RST, ...).
// A nil want func accepts any flag combination.
func TCPResponse(srcIP net.IP, srcPort, dstPort uint16, want func(tcp *layers.TCP) bool) Matcher {
	return func(packet gopacket.Packet) bool {
		ipLayer := packet.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			return false
		}
		ip := ipLayer.(*layers.IPv4)
		if !ip.SrcIP.Equal(srcIP) {
			return false
		}
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			return false
		}
		tcp := tcpLayer.(*layers.TCP)
		if uint16(tcp.SrcPort) != srcPort || uint16(tcp.DstPort) != dstPort {
			return false
		}
		if want == nil {
			return true
		}
		return want(tcp)
	}
}

// UDPResponse matches a UDP datagram from srcIP:srcPort to dstPort.
func UDPResponse(srcIP net.IP, srcPort, dstPort uint16) Matcher {
	return func(packet gopacket.Packet) bool {
		ipLayer := packet.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			return false
		}
		ip := ipLayer.(*layers.IPv4)
		if !ip.SrcIP.Equal(srcIP) {
			return false
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			return false
		}
		udp := udpLayer.(*layers.UDP)
		return uint16(udp.SrcPort) == srcPort && uint16(udp.DstPort) == dstPort
	}
}

// ICMPUnreachableFor matches an ICMPv4 destination-unreachable or
// time-exceeded message whose embedded original datagram was addressed to
// dstIP:dstPort over the given transport protocol, EXCLUDING a
// port-unreachable code (that's ICMPPortUnreachableFor's job — a probe
// engine distinguishing the two must register both matchers).
// This is the same embedded-packet correlation poros's
// UDPProber.matchOriginalUDP performs by hand; gopacket's own layer walk
// replaces the manual IHL arithmetic.
func ICMPUnreachableFor(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv4)
		switch icmp.TypeCode.Type() {
		case layers.ICMPv4TypeTimeExceeded:
		case layers.ICMPv4TypeDestinationUnreachable:
			if icmp.TypeCode.Code() == layers.ICMPv4CodePort {
				return false
			}
		default:
			return false
		}

		original := icmp.LayerPayload()
		return matchesEmbeddedOriginal(original, dstIP, dstPort, transport)
	}
}

// ICMPUnreachableForSYN is ICMPUnreachableFor's SYN-scan-specific
// narrowing: nmap's SYN scan only treats a destination-unreachable reply as
// "filtered" for the host/protocol/port-unreachable codes and the three
// administratively-prohibited codes, and never for TimeExceeded — a SYN
// probe that merely expired in transit isn't evidence of a firewall
// decision the way a genuine admin-prohibited reply is.
func ICMPUnreachableForSYN(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) Matcher {
	allowed := map[uint8]bool{
		uint8(layers.ICMPv4CodeHost):               true,
		uint8(layers.ICMPv4CodeProtocol):            true,
		uint8(layers.ICMPv4CodePort):                true,
		uint8(layers.ICMPv4CodeNetAdminProhibited):  true,
		uint8(layers.ICMPv4CodeHostAdminProhibited): true,
		uint8(layers.ICMPv4CodeCommAdminProhibited): true,
	}
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv4)
		if icmp.TypeCode.Type() != layers.ICMPv4TypeDestinationUnreachable {
			return false
		}
		if !allowed[icmp.TypeCode.Code()] {
			return false
		}
		return matchesEmbeddedOriginal(icmp.LayerPayload(), dstIP, dstPort, transport)
	}
}

// ICMPPortUnreachableFor matches an ICMPv4 destination-unreachable,
// port-unreachable message whose embedded original datagram was addressed
// to dstIP:dstPort over the given transport protocol — the UDP scan
// engine's "closed" signal.
func ICMPPortUnreachableFor(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv4)
		if icmp.TypeCode.Type() != layers.ICMPv4TypeDestinationUnreachable {
			return false
		}
		if icmp.TypeCode.Code() != layers.ICMPv4CodePort {
			return false
		}
		original := icmp.LayerPayload()
		return matchesEmbeddedOriginal(original, dstIP, dstPort, transport)
	}
}

// matchesEmbeddedOriginal parses the IPv4 header + first 8 bytes of
// transport header ICMP errors embed and checks they describe a datagram
// this probe sent.
func matchesEmbeddedOriginal(data []byte, dstIP net.IP, dstPort uint16, transport layers.IPProtocol) bool {
	if len(data) < 20 {
		return false
	}
	ihl := int(data[0]&0x0f) * 4
	if ihl < 20 || len(data) < ihl+4 {
		return false
	}
	if layers.IPProtocol(data[9]) != transport {
		return false
	}
	embeddedDst := net.IP(data[16:20])
	if !embeddedDst.Equal(dstIP.To4()) {
		return false
	}
	if len(data) < ihl+4 {
		return false
	}
	gotDstPort := binary.BigEndian.Uint16(data[ihl+2 : ihl+4])
	return gotDstPort == dstPort
}

// ICMPProtocolUnreachableFor matches an ICMPv4 protocol-unreachable
// (type 3, code 2) whose embedded original datagram was addressed to dstIP
// carrying the given IP protocol number — used by the IP-protocol scan
// engine, which has no transport-layer ports to match on.
func ICMPProtocolUnreachableFor(dstIP net.IP, protocol uint8) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv4)
		if icmp.TypeCode.Type() != layers.ICMPv4TypeDestinationUnreachable {
			return false
		}
		if icmp.TypeCode.Code() != layers.ICMPv4CodeProtocol {
			return false
		}
		original := icmp.LayerPayload()
		if len(original) < 20 {
			return false
		}
		ihl := int(original[0]&0x0f) * 4
		if ihl < 20 {
			return false
		}
		if original[9] != protocol {
			return false
		}
		return net.IP(original[16:20]).Equal(dstIP.To4())
	}
}

// ICMPOtherUnreachableForProtocol matches an ICMPv4 unreachable or
// time-exceeded message (excluding protocol-unreachable) whose embedded
// original datagram was addressed to dstIP carrying the given IP protocol
// number. Used by the IP-protocol scan engine, which has no ports to
// match against.
func ICMPOtherUnreachableForProtocol(dstIP net.IP, protocol uint8) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv4)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv4)
		switch icmp.TypeCode.Type() {
		case layers.ICMPv4TypeTimeExceeded:
		case layers.ICMPv4TypeDestinationUnreachable:
			if icmp.TypeCode.Code() == layers.ICMPv4CodeProtocol {
				return false
			}
		default:
			return false
		}
		original := icmp.LayerPayload()
		if len(original) < 20 {
			return false
		}
		ihl := int(original[0]&0x0f) * 4
		if ihl < 20 {
			return false
		}
		if original[9] != protocol {
			return false
		}
		return net.IP(original[16:20]).Equal(dstIP.To4())
	}
}

// RawIPResponse matches any IPv4 datagram from srcIP carrying the given
// protocol number, used by the IP-protocol scan's "any reply at all means
// Open" rule.
func RawIPResponse(srcIP net.IP, protocol uint8) Matcher {
	return func(packet gopacket.Packet) bool {
		ipLayer := packet.Layer(layers.LayerTypeIPv4)
		if ipLayer == nil {
			return false
		}
		ip := ipLayer.(*layers.IPv4)
		return ip.SrcIP.Equal(srcIP) && uint8(ip.Protocol) == protocol
	}
}

// TCPResponse6 is TCPResponse's IPv6 analogue; spec.md §6 scopes IPv6
// support to the TCP families and UDP, never ARP or IP-protocol scanning.
func TCPResponse6(srcIP net.IP, srcPort, dstPort uint16, want func(tcp *layers.TCP) bool) Matcher {
	return func(packet gopacket.Packet) bool {
		ipLayer := packet.Layer(layers.LayerTypeIPv6)
		if ipLayer == nil {
			return false
		}
		ip := ipLayer.(*layers.IPv6)
		if !ip.SrcIP.Equal(srcIP) {
			return false
		}
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			return false
		}
		tcp := tcpLayer.(*layers.TCP)
		if uint16(tcp.SrcPort) != srcPort || uint16(tcp.DstPort) != dstPort {
			return false
		}
		if want == nil {
			return true
		}
		return want(tcp)
	}
}

// UDPResponse6 is UDPResponse's IPv6 analogue.
func UDPResponse6(srcIP net.IP, srcPort, dstPort uint16) Matcher {
	return func(packet gopacket.Packet) bool {
		ipLayer := packet.Layer(layers.LayerTypeIPv6)
		if ipLayer == nil {
			return false
		}
		ip := ipLayer.(*layers.IPv6)
		if !ip.SrcIP.Equal(srcIP) {
			return false
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			return false
		}
		udp := udpLayer.(*layers.UDP)
		return uint16(udp.SrcPort) == srcPort && uint16(udp.DstPort) == dstPort
	}
}

// ICMPv6UnreachableFor is ICMPUnreachableFor's IPv6 analogue. IPv6's fixed
// 40-byte header (RFC 8200) replaces IPv4's variable IHL, so the embedded
// original datagram sits at a constant offset rather than one derived from
// the header itself.
func ICMPv6UnreachableFor(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv6)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv6)
		switch icmp.TypeCode.Type() {
		case layers.ICMPv6TypeTimeExceeded:
		case layers.ICMPv6TypeDestinationUnreachable:
			if icmp.TypeCode.Code() == layers.ICMPv6CodePortUnreachable {
				return false
			}
		default:
			return false
		}
		return matchesEmbeddedOriginal6(icmp.LayerPayload(), dstIP, dstPort, transport)
	}
}

// ICMPv6UnreachableForSYN is ICMPv6UnreachableFor's SYN-scan-specific
// narrowing, excluding TimeExceeded for the same reason
// ICMPUnreachableForSYN excludes it on IPv4.
func ICMPv6UnreachableForSYN(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv6)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv6)
		if icmp.TypeCode.Type() != layers.ICMPv6TypeDestinationUnreachable {
			return false
		}
		return matchesEmbeddedOriginal6(icmp.LayerPayload(), dstIP, dstPort, transport)
	}
}

// ICMPv6PortUnreachableFor is ICMPPortUnreachableFor's IPv6 analogue, the
// IPv6 UDP scan's "closed" signal.
func ICMPv6PortUnreachableFor(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) Matcher {
	return func(packet gopacket.Packet) bool {
		icmpLayer := packet.Layer(layers.LayerTypeICMPv6)
		if icmpLayer == nil {
			return false
		}
		icmp := icmpLayer.(*layers.ICMPv6)
		if icmp.TypeCode.Type() != layers.ICMPv6TypeDestinationUnreachable {
			return false
		}
		if icmp.TypeCode.Code() != layers.ICMPv6CodePortUnreachable {
			return false
		}
		return matchesEmbeddedOriginal6(icmp.LayerPayload(), dstIP, dstPort, transport)
	}
}

// matchesEmbeddedOriginal6 is matchesEmbeddedOriginal's IPv6 analogue: next
// header lives at byte 6, the embedded source/destination addresses occupy
// bytes 8-24 and 24-40, and the embedded transport header starts at byte
// 40 of a fixed IPv6 header with no options.
func matchesEmbeddedOriginal6(data []byte, dstIP net.IP, dstPort uint16, transport layers.IPProtocol) bool {
	const ipv6HeaderLen = 40
	if len(data) < ipv6HeaderLen+4 {
		return false
	}
	if layers.IPProtocol(data[6]) != transport {
		return false
	}
	embeddedDst := net.IP(data[24:40])
	if !embeddedDst.Equal(dstIP.To16()) {
		return false
	}
	gotDstPort := binary.BigEndian.Uint16(data[ipv6HeaderLen+2 : ipv6HeaderLen+4])
	return gotDstPort == dstPort
}
