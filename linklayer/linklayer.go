// Package linklayer builds and injects Ethernet frames, following
// superapple8x-GoNetWatch's sendARPRequest/sendARP pattern generalized to
// carry either an ARP or an IPv4/IPv6 payload.
package linklayer

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// SendARPRequest writes a single ARP request for dstIP onto handle, sourced
// from srcMAC/srcIP.
func SendARPRequest(handle *pcap.Handle, srcMAC net.HardwareAddr, srcIP, dstIP net.IP) error {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       broadcastMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte(dstIP.To4()),
	}
	return writeLayers(handle, &eth, &arp)
}

// SendIPPayload frames an already-built IPv4/IPv6+transport layer chain in
// Ethernet addressed to dstMAC and writes it to handle. Every probe engine
// funnels its crafted packet through this single injection point.
func SendIPPayload(handle *pcap.Handle, srcMAC, dstMAC net.HardwareAddr, ethType layers.EthernetType, payload ...gopacket.SerializableLayer) error {
	eth := layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: ethType,
	}
	layersToSerialize := make([]gopacket.SerializableLayer, 0, len(payload)+1)
	layersToSerialize = append(layersToSerialize, &eth)
	layersToSerialize = append(layersToSerialize, payload...)
	return writeLayers(handle, layersToSerialize...)
}

func writeLayers(handle *pcap.Handle, ls ...gopacket.SerializableLayer) error {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return fmt.Errorf("linklayer: serialize: %w", err)
	}
	return handle.WritePacketData(buf.Bytes())
}
