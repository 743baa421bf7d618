package probe

import (
	"context"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netrecon/capture"
)

// Sender abstracts the send-plane operations a probe engine needs: link-layer
// address resolution, ephemeral source-port bookkeeping, and frame
// injection. *netctx.Context implements it directly against a live pcap
// handle; tests substitute a fake, the same Prober-style seam
// sun977-NeoScan's internal/core/scanner/alive/prober.go uses to let its
// alive-check probers run against something other than a real socket.
type Sender interface {
	LocalAddr() net.IP
	LocalAddrV6() net.IP
	HardwareAddr() net.HardwareAddr
	ResolveMAC(ctx context.Context, ip net.IP) (net.HardwareAddr, error)
	ReserveSourcePort() (uint16, func(), error)
	Send(dstMAC net.HardwareAddr, ethType layers.EthernetType, payload ...gopacket.SerializableLayer) error
	SendARPRequest(srcIP, dstIP net.IP) error
}

// Receiver abstracts the receive-plane operations a probe engine needs:
// registering a matcher against the shared capture loop, or registering one,
// running a send callback, and waiting for its answer in one call.
// *capture.Dispatcher implements it against a live packet source; tests
// substitute a fake responder that feeds packets straight into Register's
// channel without ever touching a NIC.
type Receiver interface {
	Register(m capture.Matcher) (<-chan gopacket.Packet, func())
	WaitFor(ctx context.Context, m capture.Matcher, timeout time.Duration, send func() error) (gopacket.Packet, error)
}
