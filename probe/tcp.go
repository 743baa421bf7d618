package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/google/gopacket/layers"

	"netrecon/capture"
	"netrecon/config"
	"netrecon/iplayer"
	"netrecon/scanstatus"
)

// Method names the TCP-family probing technique a call to TCP uses. Each
// crafts a different flag combination and reads the observed response
// differently, per the nmap-style verdict table this engine implements.
type Method int

const (
	SYN Method = iota
	FIN
	ACK
	NULL
	Xmas
	Window
	Maimon
)

func (m Method) flags() iplayer.TCPFlags {
	switch m {
	case SYN:
		return iplayer.TCPFlags{SYN: true}
	case FIN:
		return iplayer.TCPFlags{FIN: true}
	case ACK:
		return iplayer.TCPFlags{ACK: true}
	case NULL:
		return iplayer.TCPFlags{}
	case Xmas:
		return iplayer.TCPFlags{FIN: true, PSH: true, URG: true}
	case Window:
		return iplayer.TCPFlags{ACK: true}
	case Maimon:
		return iplayer.TCPFlags{FIN: true, ACK: true}
	default:
		return iplayer.TCPFlags{}
	}
}

// rstOpensOnWindow reports whether this method tells open from closed by
// inspecting a RST's window field, rather than by the RST's mere presence.
func (m Method) rstOpensOnWindow() bool { return m == Window }

// tcpMatchers names the response/ICMP matcher constructors a TCP verdict
// wait needs, parametrized so the same wait logic serves both TCP and TCP6.
type tcpMatchers struct {
	response        func(srcIP net.IP, srcPort, dstPort uint16, want func(*layers.TCP) bool) capture.Matcher
	icmpUnreachable func(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) capture.Matcher
	icmpForSYN      func(dstIP net.IP, dstPort uint16, transport layers.IPProtocol) capture.Matcher
}

var tcpMatchersV4 = tcpMatchers{
	response:        capture.TCPResponse,
	icmpUnreachable: capture.ICMPUnreachableFor,
	icmpForSYN:      capture.ICMPUnreachableForSYN,
}

var tcpMatchersV6 = tcpMatchers{
	response:        capture.TCPResponse6,
	icmpUnreachable: capture.ICMPv6UnreachableFor,
	icmpForSYN:      capture.ICMPv6UnreachableForSYN,
}

// TCP runs one raw TCP probe of the given method against dstIP:dstPort and
// returns its verdict plus the observed round-trip time, if any.
func (e *Engine) TCP(ctx context.Context, method Method, opts config.Options, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
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
		// Host unreachable at L2: a single probe's setup failure downgrades
		// to Filtered rather than aborting the whole campaign.
		return scanstatus.Filtered, nil, nil
	}

	ip := iplayer.IPv4(srcIP, dstIP, layers.IPProtocolTCP, 64, nextIPID())
	tcp := iplayer.TCP(ip, srcPort, dstPort, 1000, 0, method.flags(), 1024)

	sent := time.Now()
	if err := e.Net.Send(dstMAC, layers.EthernetTypeIPv4, ip, tcp); err != nil {
		return scanstatus.Filtered, nil, fmt.Errorf("tcp probe send: %w", err)
	}

	return e.awaitTCPVerdict(ctx, tcpMatchersV4, layers.IPProtocolTCP, method, opts.Timeout, sent, srcPort, dstIP, dstPort)
}

// TCP6 is TCP's IPv6 analogue, for destinations resolved to an IPv6
// address. spec.md §6 scopes IPv6 support to the TCP families and UDP.
func (e *Engine) TCP6(ctx context.Context, method Method, opts config.Options, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
	srcIP := opts.SourceIP
	if srcIP == nil {
		srcIP = e.Net.LocalAddrV6()
	}
	if srcIP == nil {
		return scanstatus.Filtered, nil, fmt.Errorf("tcp6 probe: no IPv6 source address available on this interface")
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

	ip := iplayer.IPv6(srcIP, dstIP, layers.IPProtocolTCP, 64)
	tcp := iplayer.TCP(ip, srcPort, dstPort, 1000, 0, method.flags(), 1024)

	sent := time.Now()
	if err := e.Net.Send(dstMAC, layers.EthernetTypeIPv6, ip, tcp); err != nil {
		return scanstatus.Filtered, nil, fmt.Errorf("tcp6 probe send: %w", err)
	}

	return e.awaitTCPVerdict(ctx, tcpMatchersV6, layers.IPProtocolTCP, method, opts.Timeout, sent, srcPort, dstIP, dstPort)
}

// reserveOrUsePort returns opts.SourcePort verbatim (with a no-op release)
// when the caller pinned one, otherwise draws a fresh ephemeral port from
// e.Net. The returned release func must always be called once the probe's
// wait window closes, typically via defer.
func (e *Engine) reserveOrUsePort(opts config.Options) (uint16, func(), error) {
	if opts.SourcePort != 0 {
		return opts.SourcePort, func() {}, nil
	}
	return e.Net.ReserveSourcePort()
}

func (e *Engine) awaitTCPVerdict(ctx context.Context, mm tcpMatchers, transport layers.IPProtocol, method Method, timeout time.Duration, sent time.Time, srcPort uint16, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
	type outcome struct {
		status scanstatus.TargetScanStatus
		rtt    time.Duration
	}
	resultCh := make(chan outcome, 3)

	register := func(m capture.Matcher, classify func() scanstatus.TargetScanStatus) func() {
		ch, cancel := e.Cap.Register(m)
		go func() {
			select {
			case pkt := <-ch:
				_ = pkt
				resultCh <- outcome{status: classify(), rtt: time.Since(sent)}
			case <-ctx.Done():
			}
		}()
		return cancel
	}

	var cancels []func()
	switch {
	case method == SYN:
		synAck := mm.response(dstIP, dstPort, srcPort, func(t *layers.TCP) bool { return t.SYN && t.ACK })
		rst := mm.response(dstIP, dstPort, srcPort, func(t *layers.TCP) bool { return t.RST })
		cancels = append(cancels,
			register(synAck, func() scanstatus.TargetScanStatus { return scanstatus.Open }),
			register(rst, func() scanstatus.TargetScanStatus { return scanstatus.Closed }))
	case method == ACK:
		rst := mm.response(dstIP, dstPort, srcPort, func(t *layers.TCP) bool { return t.RST })
		cancels = append(cancels, register(rst, func() scanstatus.TargetScanStatus { return scanstatus.Unfiltered }))
	case method.rstOpensOnWindow():
		var lastWindow uint16
		rst := mm.response(dstIP, dstPort, srcPort, func(t *layers.TCP) bool {
			if !t.RST {
				return false
			}
			lastWindow = t.Window
			return true
		})
		cancels = append(cancels, register(rst, func() scanstatus.TargetScanStatus {
			if lastWindow > 0 {
				return scanstatus.Open
			}
			return scanstatus.Closed
		}))
	default: // FIN, NULL, Xmas, Maimon
		rst := mm.response(dstIP, dstPort, srcPort, func(t *layers.TCP) bool { return t.RST })
		cancels = append(cancels, register(rst, func() scanstatus.TargetScanStatus { return scanstatus.Closed }))
	}

	// SYN scans only trust the documented destination-unreachable allowlist
	// (host/protocol/port-unreachable, the three admin-prohibited codes);
	// every other TCP method keeps the broader unreachable-or-time-exceeded
	// match, since they never hinge on a firewall-rule verdict the way SYN
	// scanning does.
	icmpMatcher := mm.icmpUnreachable
	if method == SYN {
		icmpMatcher = mm.icmpForSYN
	}
	icmpUnreach := icmpMatcher(dstIP, dstPort, transport)
	cancels = append(cancels, register(icmpUnreach, func() scanstatus.TargetScanStatus { return scanstatus.Filtered }))

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
		return method.noResponseVerdict(), nil, nil
	case <-ctx.Done():
		return scanstatus.Filtered, nil, ctx.Err()
	}
}

// Connect runs a TCP connect scan: a real three-way handshake via the
// stdlib dialer rather than a raw crafted packet, for callers running
// without raw-socket privileges. A refused connection is Closed, a
// completed handshake is Open, and a timeout is Filtered. net.Dialer
// handles IPv4 and IPv6 destinations identically, so there is no separate
// Connect6 — dialing "tcp" with either address family just works.
func (e *Engine) Connect(ctx context.Context, opts config.Options, dstIP net.IP, dstPort uint16) (scanstatus.TargetScanStatus, *time.Duration, error) {
	addr := net.JoinHostPort(dstIP.String(), fmt.Sprintf("%d", dstPort))
	sent := time.Now()

	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	rtt := time.Since(sent)
	if err == nil {
		conn.Close()
		return scanstatus.Open, &rtt, nil
	}

	if ctx.Err() != nil {
		return scanstatus.Filtered, nil, ctx.Err()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return scanstatus.Filtered, nil, nil
	}
	if isConnRefused(err) {
		return scanstatus.Closed, &rtt, nil
	}
	return scanstatus.Filtered, nil, nil
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// noResponseVerdict is the verdict when nothing at all comes back within
// the probe timeout, which differs by method per the nmap-style table this
// engine follows.
func (m Method) noResponseVerdict() scanstatus.TargetScanStatus {
	switch m {
	case SYN, ACK, Window:
		return scanstatus.Filtered
	default: // FIN, NULL, Xmas, Maimon: silence means the port accepted or dropped it
		return scanstatus.OpenOrFiltered
	}
}
