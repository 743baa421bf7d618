package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netrecon/capture"
	"netrecon/config"
	"netrecon/scanerrors"
)

// ARP sends a single ARP request for dstIP and waits for a matching reply,
// the same request/wait shape as superapple8x-GoNetWatch's
// sendARPRequest/packet-reader pair, generalized to one call per host so
// the scheduler can parallelize it like every other probe.
func (e *Engine) ARP(ctx context.Context, opts config.Options, dstIP net.IP) (net.HardwareAddr, *time.Duration, error) {
	if dstIP.To4() == nil {
		return nil, nil, scanerrors.ErrNotSupportedIPTypeForArp
	}

	srcIP := opts.SourceIP
	if srcIP == nil {
		srcIP = e.Net.LocalAddr()
	}

	matcher := capture.ARPReplyFrom(dstIP)
	sent := time.Now()

	pkt, err := e.Cap.WaitFor(ctx, matcher, opts.Timeout, func() error {
		return e.Net.SendARPRequest(srcIP, dstIP)
	})
	if err != nil {
		if errors.Is(err, scanerrors.ErrCaptureFailed) {
			// No reply within the timeout isn't a probe failure — it just
			// means the host didn't answer.
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("arp probe: %w", err)
	}

	rtt := time.Since(sent)
	mac, err := macFromARPReply(pkt)
	if err != nil {
		return nil, nil, err
	}
	return mac, &rtt, nil
}

func macFromARPReply(packet gopacket.Packet) (net.HardwareAddr, error) {
	layer := packet.Layer(layers.LayerTypeARP)
	if layer == nil {
		return nil, fmt.Errorf("%w: matched packet carries no ARP layer", scanerrors.ErrCannotFindMacAddress)
	}
	arp := layer.(*layers.ARP)
	return net.HardwareAddr(arp.SourceHwAddress), nil
}
