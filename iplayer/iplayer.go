// Package iplayer builds the IPv4/TCP/UDP layer chains each probe engine
// sends, using gopacket's layer types so checksums come from
// gopacket.SerializeOptions{ComputeChecksums: true} rather than a
// hand-rolled checksum routine.
package iplayer

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// IPv4 builds an IPv4 layer with the given protocol and TTL, ready to be
// serialized alongside a transport-layer payload. Every probe sets the
// Don't Fragment bit: this engine never sends payloads that rely on
// on-the-wire fragmentation, and a stray fragmented reply would otherwise
// confuse response correlation.
func IPv4(srcIP, dstIP net.IP, protocol layers.IPProtocol, ttl uint8, id uint16) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      ttl,
		Id:       id,
		Flags:    layers.IPv4DontFragment,
		Protocol: protocol,
		SrcIP:    srcIP.To4(),
		DstIP:    dstIP.To4(),
	}
}

// IPv6 builds an IPv6 layer with the given next-header protocol and hop
// limit. IPv6 has no header checksum and no DF flag: fragmentation is
// handled entirely by an optional extension header this engine never
// sends, so there is nothing to set here beyond the addresses themselves.
func IPv6(srcIP, dstIP net.IP, nextHeader layers.IPProtocol, hopLimit uint8) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		NextHeader: nextHeader,
		HopLimit:   hopLimit,
		SrcIP:      srcIP.To16(),
		DstIP:      dstIP.To16(),
	}
}

// TCPFlags names the flag combinations this module's probe engines need;
// gopacket's layers.TCP exposes every flag as an individual bool, so a
// combination is just a struct literal.
type TCPFlags struct {
	SYN, ACK, FIN, RST, PSH, URG bool
}

// TCP builds a TCP layer with the requested flags and a zero payload,
// wired to ip via SetNetworkLayerForChecksum so ComputeChecksums can build
// the pseudo-header. ip may be either an IPv4 or an IPv6 network layer;
// the TCP pseudo-header checksum is computed the same way over either.
func TCP(ip gopacket.NetworkLayer, srcPort, dstPort uint16, seq, ack uint32, flags TCPFlags, window uint16) *layers.TCP {
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     seq,
		Ack:     ack,
		SYN:     flags.SYN,
		ACK:     flags.ACK,
		FIN:     flags.FIN,
		RST:     flags.RST,
		PSH:     flags.PSH,
		URG:     flags.URG,
		Window:  window,
	}
	tcp.SetNetworkLayerForChecksum(ip)
	return tcp
}

// UDP builds a UDP layer with the given ports, wired to ip for checksum
// computation. gopacket's ComputeChecksums already implements the UDP
// "checksum 0 means 0xFFFF" convention internally. ip may be either an
// IPv4 or an IPv6 network layer.
func UDP(ip gopacket.NetworkLayer, srcPort, dstPort uint16) *layers.UDP {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	udp.SetNetworkLayerForChecksum(ip)
	return udp
}

// Payload wraps a raw byte slice as a serializable layer, used for UDP
// probe bodies.
func Payload(b []byte) gopacket.Payload {
	return gopacket.Payload(b)
}
