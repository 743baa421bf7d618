// Package netrecon is a host- and port-discovery engine: it crafts raw
// probe packets, dispatches them across a bounded worker pool, and
// classifies each destination's response into the TargetScanStatus
// lattice defined in package scanstatus.
package netrecon

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"netrecon/capture"
	"netrecon/config"
	"netrecon/netctx"
	"netrecon/ouidb"
	"netrecon/probe"
	"netrecon/scanerrors"
	"netrecon/scanstatus"
	"netrecon/scheduler"
)

// Session owns the live capture handle and resolved network context a
// whole campaign of scans runs against. Create one with Open, run however
// many scans against it, and Close it when done.
type Session struct {
	netctx *netctx.Context
	disp   *capture.Dispatcher
	engine *probe.Engine
	oui    *ouidb.Table
	log    logrus.FieldLogger
}

// OpenOptions controls how a Session is set up.
type OpenOptions struct {
	Interface string
	Promisc   bool
	OUIDBPath string
	Log       logrus.FieldLogger
}

// Open resolves the named interface, opens a live capture handle, and
// starts the shared dispatch loop every scan on this Session reuses.
func Open(opts OpenOptions) (*Session, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	nc, err := netctx.Resolve(opts.Interface, opts.Promisc)
	if err != nil {
		return nil, err
	}

	disp := capture.NewDispatcher(nc.Handle, log)
	engine := probe.NewEngine(nc, disp, log)
	nc.SetMACResolver(func(ctx context.Context, ip net.IP) (net.HardwareAddr, error) {
		mac, _, err := engine.ARP(ctx, config.Options{Timeout: config.Defaults.Timeout}.Apply(1, 1), ip)
		if err != nil {
			return nil, err
		}
		if mac == nil {
			return nil, context.DeadlineExceeded
		}
		return mac, nil
	})

	var table *ouidb.Table
	if opts.OUIDBPath != "" {
		table, err = ouidb.LoadFile(opts.OUIDBPath)
		if err != nil {
			log.WithError(err).Warn("failed to load oui database, vendor lookups disabled")
		}
	}

	s := &Session{
		netctx: nc,
		disp:   disp,
		engine: engine,
		oui:    table,
		log:    log,
	}
	return s, nil
}

// Close releases the capture handle and stops the dispatch loop.
func (s *Session) Close() {
	s.disp.Stop()
	s.netctx.Close()
}

// ArpScan discovers every host on the Session's local subnet that answers
// an ARP request.
func (s *Session) ArpScan(ctx context.Context, opts config.Options) (*scanstatus.ArpScanResults, error) {
	hosts := s.netctx.SubnetHosts(opts.MaxHosts)
	return scheduler.RunARPScan(ctx, s.engine, hosts, opts, s.oui, s.log)
}

// TCPConnectScan runs a full TCP handshake against every (host, port) pair.
func (s *Session) TCPConnectScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunConnectScan(ctx, s.engine, hosts, ports, opts, s.log)
}

// TCPSynScan runs a SYN (half-open) scan.
func (s *Session) TCPSynScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.SYN, hosts, ports, opts, s.log)
}

// TCPFinScan runs a FIN scan.
func (s *Session) TCPFinScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.FIN, hosts, ports, opts, s.log)
}

// TCPAckScan runs an ACK scan (firewall-rule mapping, Unfiltered/Filtered
// only — it never concludes Open or Closed).
func (s *Session) TCPAckScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.ACK, hosts, ports, opts, s.log)
}

// TCPNullScan runs a NULL scan (no flags set).
func (s *Session) TCPNullScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.NULL, hosts, ports, opts, s.log)
}

// TCPXmasScan runs a Xmas scan (FIN+PSH+URG set).
func (s *Session) TCPXmasScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.Xmas, hosts, ports, opts, s.log)
}

// TCPWindowScan runs a Window scan (ACK probe, open/closed inferred from
// the RST's advertised window size).
func (s *Session) TCPWindowScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.Window, hosts, ports, opts, s.log)
}

// TCPMaimonScan runs a Maimon scan (FIN+ACK set).
func (s *Session) TCPMaimonScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan(ctx, s.engine, probe.Maimon, hosts, ports, opts, s.log)
}

// UDPScan runs a UDP scan.
func (s *Session) UDPScan(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunUDPScan(ctx, s.engine, hosts, ports, opts, s.log)
}

// TCPSynScan6 runs a SYN scan against IPv6 hosts. spec.md §6 extends IPv6
// support to every TCP family and UDP, but not to ARP or IP-protocol
// scanning — neither has an IPv6 concept (ARP is IPv4-only by definition;
// IPv6 has no analogous single-probe "is this protocol number reachable"
// primitive this engine implements).
func (s *Session) TCPSynScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.SYN, hosts, ports, opts, s.log)
}

// TCPFinScan6 runs a FIN scan against IPv6 hosts.
func (s *Session) TCPFinScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.FIN, hosts, ports, opts, s.log)
}

// TCPAckScan6 runs an ACK scan against IPv6 hosts.
func (s *Session) TCPAckScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.ACK, hosts, ports, opts, s.log)
}

// TCPNullScan6 runs a NULL scan against IPv6 hosts.
func (s *Session) TCPNullScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.NULL, hosts, ports, opts, s.log)
}

// TCPXmasScan6 runs a Xmas scan against IPv6 hosts.
func (s *Session) TCPXmasScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.Xmas, hosts, ports, opts, s.log)
}

// TCPWindowScan6 runs a Window scan against IPv6 hosts.
func (s *Session) TCPWindowScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.Window, hosts, ports, opts, s.log)
}

// TCPMaimonScan6 runs a Maimon scan against IPv6 hosts.
func (s *Session) TCPMaimonScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunTCPScan6(ctx, s.engine, probe.Maimon, hosts, ports, opts, s.log)
}

// UDPScan6 runs a UDP scan against IPv6 hosts.
func (s *Session) UDPScan6(ctx context.Context, hosts []net.IP, ports []uint16, opts config.Options) (*scanstatus.ScanResults, error) {
	return scheduler.RunUDPScan6(ctx, s.engine, hosts, ports, opts, s.log)
}

// TCPConnectScan already handles both address families transparently via
// net.Dialer, so there is no separate TCPConnectScan6.

// IPProtocolScan runs an IP-protocol scan.
func (s *Session) IPProtocolScan(ctx context.Context, hosts []net.IP, protocols []uint8, opts config.Options) (*scanstatus.IpScanResults, error) {
	return scheduler.RunIPProtocolScan(ctx, s.engine, hosts, protocols, opts, s.log)
}

// TCPIdleScan runs a zombie/idle scan of targetIP:targetPort through
// zombieIP, retrying up to config.Defaults.IdleScanNoiseRetries times only
// when the zombie proves noisy (its IP-ID advanced by more than the
// spoofed SYN alone should produce) — a noisy zombie is usable on a later
// attempt, but a zombie that's simply unreachable, or any other probe
// failure, is returned immediately since retrying can't fix it.
func (s *Session) TCPIdleScan(ctx context.Context, zombieIP, targetIP net.IP, targetPort uint16, opts config.Options) (scanstatus.TargetScanStatus, scanstatus.IdleScanObservation, error) {
	opts = opts.Apply(1, 1)
	var lastErr error
	for attempt := 0; attempt <= config.Defaults.IdleScanNoiseRetries; attempt++ {
		status, obs, err := s.engine.Idle(ctx, opts, zombieIP, targetIP, targetPort)
		if err == nil {
			return status, obs, nil
		}
		if !errors.Is(err, scanerrors.ErrZombieNoisy) {
			return status, obs, err
		}
		lastErr = err
	}
	return scanstatus.Filtered, scanstatus.IdleScanObservation{}, lastErr
}
