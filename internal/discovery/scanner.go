// Package discovery is a thin convenience wrapper over the core netrecon
// API's ArpScan, preserving superapple8x-GoNetWatch's Host-slice
// discovery shape for callers that don't need the full ScanResults model.
package discovery

import (
	"context"
	"net"
	"sort"

	"netrecon"
	"netrecon/config"
)

// ScanConfig controls the scanning behavior, mirroring the defaults the
// original Scan() applied directly.
type ScanConfig struct {
	MaxHosts int
	Promisc  *bool
}

func applyDefaults(cfg *ScanConfig) ScanConfig {
	if cfg == nil {
		return ScanConfig{MaxHosts: 4096, Promisc: ptrBool(true)}
	}
	out := *cfg
	if out.Promisc == nil {
		out.Promisc = ptrBool(true)
	}
	if out.MaxHosts == 0 {
		out.MaxHosts = 4096
	}
	return out
}

func ptrBool(v bool) *bool { return &v }

// Scan performs an ARP scan on the named interface and returns every
// responding host as a Host value.
func Scan(ctx context.Context, interfaceName string, cfg *ScanConfig) ([]Host, error) {
	resolved := applyDefaults(cfg)

	session, err := netrecon.Open(netrecon.OpenOptions{
		Interface: interfaceName,
		Promisc:   *resolved.Promisc,
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	results, err := session.ArpScan(ctx, config.Options{MaxHosts: resolved.MaxHosts})
	if err != nil {
		return nil, err
	}

	hosts := make([]Host, 0, len(results.AliveHosts))
	for ip, h := range results.AliveHosts {
		hosts = append(hosts, Host{IP: net.ParseIP(ip), MAC: h.MAC})
	}
	sort.Slice(hosts, func(i, j int) bool {
		return hosts[i].IP.String() < hosts[j].IP.String()
	})
	return hosts, nil
}
