// Package scanstatus defines the result types shared by every probe engine:
// the closed TargetScanStatus lattice and the per-host result containers
// that the scheduler aggregates into.
package scanstatus

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// TargetScanStatus is the closed set of verdicts a probe engine can reach
// for a single (host, port) or (host, protocol) pair. Zero value is not a
// valid status; engines must always set one explicitly.
type TargetScanStatus int

const (
	_ TargetScanStatus = iota
	Open
	Closed
	Filtered
	OpenOrFiltered
	Unfiltered
	Unreachable
	ClosedOrFiltered
)

func (s TargetScanStatus) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Filtered:
		return "filtered"
	case OpenOrFiltered:
		return "open|filtered"
	case Unfiltered:
		return "unfiltered"
	case Unreachable:
		return "unreachable"
	case ClosedOrFiltered:
		return "closed|filtered"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// PortStatus is the accumulated verdict for every port probed on a single
// host, plus the round-trip time of the first response observed for that
// host (rtt is sticky: once set it is never overwritten).
type PortStatus struct {
	Status map[uint16]TargetScanStatus
	RTT    *time.Duration
}

// NewPortStatus returns an empty, ready-to-use PortStatus.
func NewPortStatus() *PortStatus {
	return &PortStatus{Status: make(map[uint16]TargetScanStatus)}
}

// Merge applies one probe observation to ps: the status for port is always
// overwritten (last write wins), but rtt is recorded only the first time a
// non-nil value arrives.
func (ps *PortStatus) Merge(port uint16, status TargetScanStatus, rtt *time.Duration) {
	ps.Status[port] = status
	if ps.RTT == nil && rtt != nil {
		ps.RTT = rtt
	}
}

func (ps *PortStatus) String() string {
	ports := make([]int, 0, len(ps.Status))
	for p := range ps.Status {
		ports = append(ports, int(p))
	}
	sort.Ints(ports)
	var b strings.Builder
	for _, p := range ports {
		fmt.Fprintf(&b, "%d %s\n", p, ps.Status[uint16(p)])
	}
	return b.String()
}

// ScanResults is the per-campaign result of a TCP or UDP port scan: one
// PortStatus per destination host.
type ScanResults struct {
	Results map[string]*PortStatus
}

// NewScanResults returns an empty, ready-to-use ScanResults.
func NewScanResults() *ScanResults {
	return &ScanResults{Results: make(map[string]*PortStatus)}
}

// HostStatus returns the PortStatus for ip, creating it if absent.
func (r *ScanResults) HostStatus(ip net.IP) *PortStatus {
	key := ip.String()
	ps, ok := r.Results[key]
	if !ok {
		ps = NewPortStatus()
		r.Results[key] = ps
	}
	return ps
}

func (r *ScanResults) String() string {
	ips := make([]string, 0, len(r.Results))
	for ip := range r.Results {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	var b strings.Builder
	for _, ip := range ips {
		fmt.Fprintf(&b, "%s\n%s", ip, r.Results[ip])
	}
	return b.String()
}

// ProtocolStatus is the accumulated verdict for every IP protocol number
// probed on a single host (IP-protocol scan).
type ProtocolStatus struct {
	Status map[uint8]TargetScanStatus
	RTT    *time.Duration
}

// NewProtocolStatus returns an empty, ready-to-use ProtocolStatus.
func NewProtocolStatus() *ProtocolStatus {
	return &ProtocolStatus{Status: make(map[uint8]TargetScanStatus)}
}

// Merge applies one probe observation to ps, following the same
// status-overwrites/rtt-sticky rule as PortStatus.Merge.
func (ps *ProtocolStatus) Merge(protocol uint8, status TargetScanStatus, rtt *time.Duration) {
	ps.Status[protocol] = status
	if ps.RTT == nil && rtt != nil {
		ps.RTT = rtt
	}
}

func (ps *ProtocolStatus) String() string {
	protos := make([]int, 0, len(ps.Status))
	for p := range ps.Status {
		protos = append(protos, int(p))
	}
	sort.Ints(protos)
	var b strings.Builder
	for _, p := range protos {
		fmt.Fprintf(&b, "%d %s\n", p, ps.Status[uint8(p)])
	}
	return b.String()
}

// IpScanResults is the per-campaign result of an IP-protocol scan: one
// ProtocolStatus per destination host.
type IpScanResults struct {
	Results map[string]*ProtocolStatus
}

// NewIpScanResults returns an empty, ready-to-use IpScanResults.
func NewIpScanResults() *IpScanResults {
	return &IpScanResults{Results: make(map[string]*ProtocolStatus)}
}

// HostStatus returns the ProtocolStatus for ip, creating it if absent.
func (r *IpScanResults) HostStatus(ip net.IP) *ProtocolStatus {
	key := ip.String()
	ps, ok := r.Results[key]
	if !ok {
		ps = NewProtocolStatus()
		r.Results[key] = ps
	}
	return ps
}

func (r *IpScanResults) String() string {
	ips := make([]string, 0, len(r.Results))
	for ip := range r.Results {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	var b strings.Builder
	for _, ip := range ips {
		fmt.Fprintf(&b, "%s\n%s", ip, r.Results[ip])
	}
	return b.String()
}

// ArpAliveHosts is a single responding host discovered by an ARP scan: its
// MAC address and the OUI vendor string (empty if the prefix is unknown).
type ArpAliveHosts struct {
	MAC  net.HardwareAddr
	OUIs string
}

func (h ArpAliveHosts) String() string {
	if h.OUIs == "" {
		return h.MAC.String()
	}
	return fmt.Sprintf("%s (%s)", h.MAC, h.OUIs)
}

// ArpScanResults is the full result of an ARP scan over a subnet.
type ArpScanResults struct {
	AliveHosts map[string]ArpAliveHosts
}

// NewArpScanResults returns an empty, ready-to-use ArpScanResults.
func NewArpScanResults() *ArpScanResults {
	return &ArpScanResults{AliveHosts: make(map[string]ArpAliveHosts)}
}

func (r *ArpScanResults) String() string {
	ips := make([]string, 0, len(r.AliveHosts))
	for ip := range r.AliveHosts {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	var b strings.Builder
	for _, ip := range ips {
		fmt.Fprintf(&b, "%s %s\n", ip, r.AliveHosts[ip])
	}
	return b.String()
}

// IdleScanObservation carries the two zombie IP-ID samples an idle scan
// took, exposed only for diagnostics; callers normally only see the derived
// TargetScanStatus.
type IdleScanObservation struct {
	ZombieIPID1 uint16
	ZombieIPID2 uint16
}

// Delta returns the wrapped difference between the two observed IDs,
// matching IPv4's 16-bit identification field arithmetic.
func (o IdleScanObservation) Delta() uint16 {
	return o.ZombieIPID2 - o.ZombieIPID1
}
