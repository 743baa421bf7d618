package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netrecon/capture"
	"netrecon/config"
	"netrecon/iplayer"
	"netrecon/scanerrors"
	"netrecon/scanstatus"
)

// idleProbePort is the fixed port the idle scan's zombie-fingerprinting
// probes target; any closed port works since the goal is only to elicit a
// RST carrying the zombie's current IP-ID, not to learn anything about it.
const idleProbePort = 80

// Idle runs nmap's idle (zombie) scan: fingerprint the zombie's IP-ID
// twice, with a spoofed SYN to the real target sandwiched between the two
// fingerprints, and infer the target port's state from how much the
// zombie's IP-ID advanced.
func (e *Engine) Idle(ctx context.Context, opts config.Options, zombieIP, targetIP net.IP, targetPort uint16) (scanstatus.TargetScanStatus, scanstatus.IdleScanObservation, error) {
	var obs scanstatus.IdleScanObservation

	id1, err := e.zombieIPID(ctx, opts, zombieIP)
	if err != nil {
		return scanstatus.Unreachable, obs, fmt.Errorf("%w: %v", scanerrors.ErrZombieUnreachable, err)
	}
	obs.ZombieIPID1 = id1

	if err := e.spoofedSYN(ctx, opts, zombieIP, targetIP, targetPort); err != nil {
		return scanstatus.Filtered, obs, fmt.Errorf("idle scan spoofed syn: %w", err)
	}

	id2, err := e.zombieIPID(ctx, opts, zombieIP)
	if err != nil {
		return scanstatus.Unreachable, obs, fmt.Errorf("%w: %v", scanerrors.ErrZombieUnreachable, err)
	}
	obs.ZombieIPID2 = id2

	switch delta := obs.Delta(); {
	case delta == 1:
		return scanstatus.ClosedOrFiltered, obs, nil
	case delta == 2:
		return scanstatus.Open, obs, nil
	default:
		return scanstatus.Filtered, obs, fmt.Errorf("%w: ip-id advanced by %d", scanerrors.ErrZombieNoisy, delta)
	}
}

// zombieIPID sends a SYN+ACK to an arbitrary port on the zombie, which
// responds with an unsolicited RST, and returns the IP-ID the zombie
// stamped on that RST.
func (e *Engine) zombieIPID(ctx context.Context, opts config.Options, zombieIP net.IP) (uint16, error) {
	srcIP := opts.SourceIP
	if srcIP == nil {
		srcIP = e.Net.LocalAddr()
	}
	srcPort, releasePort, err := e.Net.ReserveSourcePort()
	if err != nil {
		return 0, err
	}
	defer releasePort()

	dstMAC, err := e.Net.ResolveMAC(ctx, zombieIP)
	if err != nil {
		return 0, err
	}

	ip := iplayer.IPv4(srcIP, zombieIP, layers.IPProtocolTCP, 64, nextIPID())
	tcp := iplayer.TCP(ip, srcPort, idleProbePort, 1000, 0, iplayer.TCPFlags{SYN: true, ACK: true}, 1024)

	matcher := capture.TCPResponse(zombieIP, idleProbePort, srcPort, func(t *layers.TCP) bool { return t.RST })

	pkt, err := e.Cap.WaitFor(ctx, matcher, opts.Timeout, func() error {
		return e.Net.Send(dstMAC, layers.EthernetTypeIPv4, ip, tcp)
	})
	if err != nil {
		return 0, fmt.Errorf("zombie probe: %w", err)
	}
	return ipIDOf(pkt)
}

// spoofedSYN sends a SYN to targetIP:targetPort with its source address
// forged as zombieIP. We never see the response directly — the whole
// point is that the target answers the zombie instead of us.
func (e *Engine) spoofedSYN(ctx context.Context, opts config.Options, zombieIP, targetIP net.IP, targetPort uint16) error {
	dstMAC, err := e.Net.ResolveMAC(ctx, targetIP)
	if err != nil {
		return err
	}

	srcPort, releasePort, err := e.Net.ReserveSourcePort()
	if err != nil {
		return err
	}
	defer releasePort()

	ip := iplayer.IPv4(zombieIP, targetIP, layers.IPProtocolTCP, 64, nextIPID())
	tcp := iplayer.TCP(ip, srcPort, targetPort, 2000, 0, iplayer.TCPFlags{SYN: true}, 1024)

	return e.Net.Send(dstMAC, layers.EthernetTypeIPv4, ip, tcp)
}

func ipIDOf(packet gopacket.Packet) (uint16, error) {
	layer := packet.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		return 0, fmt.Errorf("matched packet carries no IPv4 layer")
	}
	return layer.(*layers.IPv4).Id, nil
}
