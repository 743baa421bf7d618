package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netrecon/capture"
	"netrecon/scanerrors"
)

// fakeSender is the Sender-seam test double: it records what was sent and
// returns canned answers for resolution/port reservation, letting probe
// tests run without a live pcap handle or raw socket.
type fakeSender struct {
	localV4 net.IP
	localV6 net.IP
	mac     net.HardwareAddr

	resolvedMAC net.HardwareAddr
	resolveErr  error

	nextPort uint16
	sendErr  error

	sent []sentFrame
}

type sentFrame struct {
	dstMAC  net.HardwareAddr
	ethType layers.EthernetType
	layers  []gopacket.SerializableLayer
}

func (f *fakeSender) LocalAddr() net.IP                 { return f.localV4 }
func (f *fakeSender) LocalAddrV6() net.IP                { return f.localV6 }
func (f *fakeSender) HardwareAddr() net.HardwareAddr     { return f.mac }
func (f *fakeSender) ResolveMAC(_ context.Context, _ net.IP) (net.HardwareAddr, error) {
	return f.resolvedMAC, f.resolveErr
}

func (f *fakeSender) ReserveSourcePort() (uint16, func(), error) {
	f.nextPort++
	return 49152 + f.nextPort, func() {}, nil
}

func (f *fakeSender) Send(dstMAC net.HardwareAddr, ethType layers.EthernetType, payload ...gopacket.SerializableLayer) error {
	f.sent = append(f.sent, sentFrame{dstMAC: dstMAC, ethType: ethType, layers: payload})
	return f.sendErr
}

func (f *fakeSender) SendARPRequest(_, _ net.IP) error {
	return f.sendErr
}

// fakeReceiver is the Receiver-seam test double: Register and WaitFor both
// hand back a single programmed reply packet whenever the caller's matcher
// accepts it, with no goroutines, timers, or real capture loop involved.
type fakeReceiver struct {
	reply gopacket.Packet
}

func (f *fakeReceiver) Register(m capture.Matcher) (<-chan gopacket.Packet, func()) {
	ch := make(chan gopacket.Packet, 1)
	if f.reply != nil && m(f.reply) {
		ch <- f.reply
	}
	return ch, func() {}
}

func (f *fakeReceiver) WaitFor(_ context.Context, m capture.Matcher, _ time.Duration, send func() error) (gopacket.Packet, error) {
	if err := send(); err != nil {
		return nil, err
	}
	if f.reply != nil && m(f.reply) {
		return f.reply, nil
	}
	return nil, scanerrors.ErrCaptureFailed
}

// buildPacket serializes ls and re-decodes it, the same round trip a real
// capture does, so matcher functions see fully-populated layers instead of
// hand-built structs whose implicit fields (checksums, lengths) are wrong.
func buildPacket(t *testing.T, ls ...gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		t.Fatalf("buildPacket: serialize: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func testEthernet() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xaa},
		EthernetType: layers.EthernetTypeIPv4,
	}
}
