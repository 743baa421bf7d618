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

// IPProtocol runs an IP-protocol scan against dstIP for the given protocol
// number: any reply carrying that protocol means Open, an ICMP
// protocol-unreachable means Closed, any other ICMP unreachable means
// Filtered, and silence means OpenOrFiltered. No ports are involved — the
// crafted packet has an empty payload for the named protocol.
func (e *Engine) IPProtocol(ctx context.Context, opts config.Options, dstIP net.IP, protocol uint8) (scanstatus.TargetScanStatus, *time.Duration, error) {
	srcIP := opts.SourceIP
	if srcIP == nil {
		srcIP = e.Net.LocalAddr()
	}

	dstMAC, err := e.Net.ResolveMAC(ctx, dstIP)
	if err != nil {
		return scanstatus.Filtered, nil, nil
	}

	ip := iplayer.IPv4(srcIP, dstIP, layers.IPProtocol(protocol), 64, nextIPID())

	sent := time.Now()
	if err := e.Net.Send(dstMAC, layers.EthernetTypeIPv4, ip); err != nil {
		return scanstatus.Filtered, nil, fmt.Errorf("ip protocol probe send: %w", err)
	}

	return e.awaitIPProtocolVerdict(ctx, opts.Timeout, sent, srcIP, dstIP, protocol)
}

func (e *Engine) awaitIPProtocolVerdict(ctx context.Context, timeout time.Duration, sent time.Time, srcIP, dstIP net.IP, protocol uint8) (scanstatus.TargetScanStatus, *time.Duration, error) {
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

	reply := capture.RawIPResponse(dstIP, protocol)
	protoUnreach := capture.ICMPProtocolUnreachableFor(dstIP, protocol)
	otherUnreach := capture.ICMPOtherUnreachableForProtocol(dstIP, protocol)

	cancels := []func(){
		register(reply, scanstatus.Open),
		register(protoUnreach, scanstatus.Closed),
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
