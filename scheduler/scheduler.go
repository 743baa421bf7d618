// Package scheduler fans a scan campaign out across a bounded worker pool
// and merges per-probe results back into the shared result containers,
// following original_source/src/scan.rs's scan() function: a thread pool,
// one task per unit of work, and a single collector that reads exactly as
// many messages as tasks were submitted (no sentinel value).
package scheduler

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"netrecon/config"
	"netrecon/ouidb"
	"netrecon/probe"
	"netrecon/scanstatus"
)

type portResult struct {
	host   net.IP
	port   uint16
	status scanstatus.TargetScanStatus
	rtt    *time.Duration
}

type protoResult struct {
	host     net.IP
	protocol uint8
	status   scanstatus.TargetScanStatus
	rtt      *time.Duration
}

type arpResult struct {
	host net.IP
	mac  net.HardwareAddr
	rtt  *time.Duration
}

// RunTCPScan probes every (host, port) pair with the given TCP method and
// merges the results, one PortStatus per host.
func RunTCPScan(ctx context.Context, eng *probe.Engine, method probe.Method, hosts []net.IP, ports []uint16, opts config.Options, log logrus.FieldLogger) (*scanstatus.ScanResults, error) {
	opts = opts.Apply(len(hosts), len(ports))
	log = withDefault(log)

	recvSize := len(hosts) * len(ports)
	results := make(chan portResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		for _, port := range ports {
			port := port
			g.Go(func() error {
				status, rtt, err := eng.TCP(gctx, method, opts, host, port)
				if err != nil {
					log.WithError(err).WithField("host", host).WithField("port", port).Warn("probe failed, recording filtered")
					status = scanstatus.Filtered
				}
				results <- portResult{host: host, port: port, status: status, rtt: rtt}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: tcp scan: %w", err)
	}
	close(results)

	out := scanstatus.NewScanResults()
	n := 0
	for r := range results {
		out.HostStatus(r.host).Merge(r.port, r.status, r.rtt)
		n++
		if n == recvSize {
			break
		}
	}
	return out, nil
}

// RunConnectScan probes every (host, port) pair with a real TCP handshake
// rather than a raw crafted packet.
func RunConnectScan(ctx context.Context, eng *probe.Engine, hosts []net.IP, ports []uint16, opts config.Options, log logrus.FieldLogger) (*scanstatus.ScanResults, error) {
	opts = opts.Apply(len(hosts), len(ports))
	log = withDefault(log)

	recvSize := len(hosts) * len(ports)
	results := make(chan portResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		for _, port := range ports {
			port := port
			g.Go(func() error {
				status, rtt, err := eng.Connect(gctx, opts, host, port)
				if err != nil {
					log.WithError(err).WithField("host", host).WithField("port", port).Warn("connect probe failed, recording filtered")
					status = scanstatus.Filtered
				}
				results <- portResult{host: host, port: port, status: status, rtt: rtt}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: connect scan: %w", err)
	}
	close(results)

	out := scanstatus.NewScanResults()
	n := 0
	for r := range results {
		out.HostStatus(r.host).Merge(r.port, r.status, r.rtt)
		n++
		if n == recvSize {
			break
		}
	}
	return out, nil
}

// RunUDPScan probes every (host, port) pair with a UDP probe.
func RunUDPScan(ctx context.Context, eng *probe.Engine, hosts []net.IP, ports []uint16, opts config.Options, log logrus.FieldLogger) (*scanstatus.ScanResults, error) {
	opts = opts.Apply(len(hosts), len(ports))
	log = withDefault(log)

	recvSize := len(hosts) * len(ports)
	results := make(chan portResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		for _, port := range ports {
			port := port
			g.Go(func() error {
				status, rtt, err := eng.UDP(gctx, opts, host, port)
				if err != nil {
					log.WithError(err).WithField("host", host).WithField("port", port).Warn("udp probe failed, recording filtered")
					status = scanstatus.Filtered
				}
				results <- portResult{host: host, port: port, status: status, rtt: rtt}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: udp scan: %w", err)
	}
	close(results)

	out := scanstatus.NewScanResults()
	n := 0
	for r := range results {
		out.HostStatus(r.host).Merge(r.port, r.status, r.rtt)
		n++
		if n == recvSize {
			break
		}
	}
	return out, nil
}

// RunTCPScan6 is RunTCPScan's IPv6 analogue, probing each (host, port)
// pair over IPv6 addresses.
func RunTCPScan6(ctx context.Context, eng *probe.Engine, method probe.Method, hosts []net.IP, ports []uint16, opts config.Options, log logrus.FieldLogger) (*scanstatus.ScanResults, error) {
	opts = opts.Apply(len(hosts), len(ports))
	log = withDefault(log)

	recvSize := len(hosts) * len(ports)
	results := make(chan portResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		for _, port := range ports {
			port := port
			g.Go(func() error {
				status, rtt, err := eng.TCP6(gctx, method, opts, host, port)
				if err != nil {
					log.WithError(err).WithField("host", host).WithField("port", port).Warn("tcp6 probe failed, recording filtered")
					status = scanstatus.Filtered
				}
				results <- portResult{host: host, port: port, status: status, rtt: rtt}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: tcp6 scan: %w", err)
	}
	close(results)

	out := scanstatus.NewScanResults()
	n := 0
	for r := range results {
		out.HostStatus(r.host).Merge(r.port, r.status, r.rtt)
		n++
		if n == recvSize {
			break
		}
	}
	return out, nil
}

// RunUDPScan6 is RunUDPScan's IPv6 analogue.
func RunUDPScan6(ctx context.Context, eng *probe.Engine, hosts []net.IP, ports []uint16, opts config.Options, log logrus.FieldLogger) (*scanstatus.ScanResults, error) {
	opts = opts.Apply(len(hosts), len(ports))
	log = withDefault(log)

	recvSize := len(hosts) * len(ports)
	results := make(chan portResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		for _, port := range ports {
			port := port
			g.Go(func() error {
				status, rtt, err := eng.UDP6(gctx, opts, host, port)
				if err != nil {
					log.WithError(err).WithField("host", host).WithField("port", port).Warn("udp6 probe failed, recording filtered")
					status = scanstatus.Filtered
				}
				results <- portResult{host: host, port: port, status: status, rtt: rtt}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: udp6 scan: %w", err)
	}
	close(results)

	out := scanstatus.NewScanResults()
	n := 0
	for r := range results {
		out.HostStatus(r.host).Merge(r.port, r.status, r.rtt)
		n++
		if n == recvSize {
			break
		}
	}
	return out, nil
}

// RunIPProtocolScan probes every (host, protocol) pair.
func RunIPProtocolScan(ctx context.Context, eng *probe.Engine, hosts []net.IP, protocols []uint8, opts config.Options, log logrus.FieldLogger) (*scanstatus.IpScanResults, error) {
	opts = opts.Apply(len(hosts), len(protocols))
	log = withDefault(log)

	recvSize := len(hosts) * len(protocols)
	results := make(chan protoResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		for _, protocol := range protocols {
			protocol := protocol
			g.Go(func() error {
				status, rtt, err := eng.IPProtocol(gctx, opts, host, protocol)
				if err != nil {
					log.WithError(err).WithField("host", host).WithField("protocol", protocol).Warn("ip protocol probe failed, recording filtered")
					status = scanstatus.Filtered
				}
				results <- protoResult{host: host, protocol: protocol, status: status, rtt: rtt}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: ip protocol scan: %w", err)
	}
	close(results)

	out := scanstatus.NewIpScanResults()
	n := 0
	for r := range results {
		out.HostStatus(r.host).Merge(r.protocol, r.status, r.rtt)
		n++
		if n == recvSize {
			break
		}
	}
	return out, nil
}

// RunARPScan probes every candidate host and collects the ones that reply,
// annotating each with its OUI vendor string when oui is non-nil.
func RunARPScan(ctx context.Context, eng *probe.Engine, hosts []net.IP, opts config.Options, oui *ouidb.Table, log logrus.FieldLogger) (*scanstatus.ArpScanResults, error) {
	opts = opts.Apply(len(hosts), 1)
	log = withDefault(log)

	recvSize := len(hosts)
	results := make(chan arpResult, recvSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for _, host := range hosts {
		host := host
		g.Go(func() error {
			mac, rtt, err := eng.ARP(gctx, opts, host)
			if err != nil {
				log.WithError(err).WithField("host", host).Warn("arp probe failed")
			}
			results <- arpResult{host: host, mac: mac, rtt: rtt}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scheduler: arp scan: %w", err)
	}
	close(results)

	out := scanstatus.NewArpScanResults()
	n := 0
	for r := range results {
		n++
		if r.mac != nil {
			host := scanstatus.ArpAliveHosts{MAC: r.mac}
			if oui != nil {
				host.OUIs = oui.Lookup(r.mac)
			}
			out.AliveHosts[r.host.String()] = host
		}
		if n == recvSize {
			break
		}
	}
	return out, nil
}

func withDefault(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}
