package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/layers"

	"netrecon/capture"
	"netrecon/config"
	"netrecon/iplayer"
	"netrecon/scanstatus"
)

// udpMatchers names the response/ICMP matcher constructors a UDP verdict
// wait needs, parametrized so the same wait logic serves both UDP and UDP6.
type udpMatchers struct {
	response     func(srcIP net.IP, srcPort, dstPort uint16) capture.Matcher
	portUnreach  func(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) capture.Matcher
	otherUnreach func(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) capture.Matcher
}

var udpMatchersV4 = udpMatchers{
	response:     capture.UDPResponse,
	portUnreach:  capture.ICMPPortUnreachableFor,
	otherUnreach: capture.ICMPUnreachableFor,
}

var udpMatchersV6 = udpMatchers{
	response:     capture.UDPResponse6,
	portUnreach:  capture.ICMPv6PortUnreachableFor,
	otherUnreach: capture.ICMPv6UnreachableFor,
}

// UDP runs a UDP scan probe against dstIP:dstPort: a UDP reply means Open,
// an ICMP port-unreachable means Closed, any other ICMP unreachable means
// Filtered, and silence means OpenOrFiltered — the same three-way race
// poros's UDPProber runs between a transport reply and the two ICMP error
// kinds, generalized from that prober's traceroute use to port scanning.
func (e *Engine) UDP(ctx context.Context, opts config.Options, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
	srcIP := opts.SourceIP
	if srcIP == nil {
		srcIP = e.Net.LocalAddr()
	}
	srcPort, releasePort, err := e.reserveOrUsePort(opts)
	if err != nil {
		return scanstatus.Filtered, nil, err
	}
	defer releasePort()

	dstMAC, err := e.Net.ResolveMAC(ctx, dstIP)
	if err != nil {
		return scanstatus.Filtered, nil, nil
	}

	ip := iplayer.IPv4(srcIP, dstIP, layers.IPProtocolUDP, 64, nextIPID())
	udp := iplayer.UDP(ip, srcPort, dstPort)
	payload := iplayer.Payload(udpProbePayload())

	sent := time.Now()
	if err := e.Net.Send(dstMAC, layers.EthernetTypeIPv4, ip, udp, payload); err != nil {
		return scanstatus.Filtered, nil, fmt.Errorf("udp probe send: %w", err)
	}

	return e.awaitUDPVerdict(ctx, udpMatchersV4, layers.IPProtocolUDP, opts.Timeout, sent, srcPort, dstIP, dstPort)
}

// UDP6 is UDP's IPv6 analogue.
func (e *Engine) UDP6(ctx context.Context, opts config.Options, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
	srcIP := opts.SourceIP
	if srcIP == nil {
		srcIP = e.Net.LocalAddrV6()
	}
	if srcIP == nil {
		return scanstatus.Filtered, nil, fmt.Errorf("udp6 probe: no IPv6 source address available on this interface")
	}
	srcPort, releasePort, err := e.reserveOrUsePort(opts)
	if err != nil {
		return scanstatus.Filtered, nil, err
	}
	defer releasePort()

	dstMAC, err := e.Net.ResolveMAC(ctx, dstIP)
	if err != nil {
		return scanstatus.Filtered, nil, nil
	}

	ip := iplayer.IPv6(srcIP, dstIP, layers.IPProtocolUDP, 64)
	udp := iplayer.UDP(ip, srcPort, dstPort)
	payload := iplayer.Payload(udpProbePayload())

	sent := time.Now()
	if err := e.Net.Send(dstMAC, layers.EthernetTypeIPv6, ip, udp, payload); err != nil {
		return scanstatus.Filtered, nil, fmt.Errorf("udp6 probe send: %w", err)
	}

	return e.awaitUDPVerdict(ctx, udpMatchersV6, layers.IPProtocolUDP, opts.Timeout, sent, srcPort, dstIP, dstPort)
}

func udpProbePayload() []byte {
	return []byte("netrecon-udp-probe")
}

func (e *Engine) awaitUDPVerdict(ctx context.Context, mm udpMatchers, transport layers.IPProtocol, timeout time.Duration, sent time.Time, srcPort uint16, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
	type outcome struct {
		status scanstatus.TargetScanStatus
		rtt    time.Duration
	}
	resultCh := make(chan outcome, 3)

	register := func(m capture.Matcher, status scanstatus.TargetScanStatus) func() {
		ch, cancel := e.Cap.Register(m)
		go func() {
			select {
			case <-ch:
				resultCh <- outcome{status: status, rtt: time.Since(sent)}
			case <-ctx.Done():
			}
		}()
		return cancel
	}

	reply := mm.response(dstIP, dstPort, srcPort)
	portUnreach := mm.portUnreach(dstIP, dstPort, transport)
	otherUnreach := mm.otherUnreach(dstIP, dstPort, transport)

	cancels := []func(){
		register(reply, scanstatus.Open),
		register(portUnreach, scanstatus.Closed),
		register(otherUnreach, scanstatus.Filtered),
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-resultCh:
		rtt := out.rtt
		return out.status, &rtt, nil
	case <-timer.C:
		return scanstatus.OpenOrFiltered, nil, nil
	case <-ctx.Done():
		return scanstatus.Filtered, nil, ctx.Err()
	}
}
