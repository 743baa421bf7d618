// Package netctx resolves the local interface/address pair a scan runs
// from and keeps a per-scan ARP cache so repeated lookups for the same
// destination don't re-probe the wire.
package netctx

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"netrecon/linklayer"
	"netrecon/scanerrors"
)

// Context bundles the resolved interface, its IPv4 and (if present) IPv6
// address/netmask, and a live pcap handle shared by every probe in a
// single scan campaign.
type Context struct {
	Iface     *net.Interface
	LocalIP   net.IP
	Net       *net.IPNet
	LocalIPv6 net.IP
	NetV6     *net.IPNet
	Handle    *pcap.Handle

	cacheMu sync.RWMutex
	cache   map[string]net.HardwareAddr

	resolveMAC func(ctx context.Context, ip net.IP) (net.HardwareAddr, error)

	portMu     sync.Mutex
	portsInUse map[uint16]bool
}

// Resolve opens iface for live capture/injection and locates its IPv4 and
// (if one exists) global IPv6 addresses, following
// superapple8x-GoNetWatch's Scan() setup, extended to also record an IPv6
// source address for the TCP/UDP *Scan6 entry points.
func Resolve(ifaceName string, promisc bool) (*Context, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, scanerrors.NewInterfaceError(ifaceName, err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scanerrors.ErrCannotFindSourceAddress, err)
	}

	var localIP, localIPv6, linkLocalIPv6 net.IP
	var localNet, netV6, linkLocalNetV6 *net.IPNet
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			if localIP == nil {
				localIP = ip4
				localNet = ipnet
			}
			continue
		}
		if ip6 := ipnet.IP.To16(); ip6 != nil {
			if ip6.IsLinkLocalUnicast() {
				if linkLocalIPv6 == nil {
					linkLocalIPv6 = ip6
					linkLocalNetV6 = ipnet
				}
				continue
			}
			if localIPv6 == nil {
				localIPv6 = ip6
				netV6 = ipnet
			}
		}
	}
	if localIP == nil {
		return nil, fmt.Errorf("%w: no IPv4 address on %s", scanerrors.ErrCannotFindSourceAddress, ifaceName)
	}
	// Fall back to a link-local address so TCP6/UDP6 still work on
	// interfaces with no global IPv6 address configured.
	if localIPv6 == nil {
		localIPv6, netV6 = linkLocalIPv6, linkLocalNetV6
	}

	handle, err := pcap.OpenLive(ifaceName, 65536, promisc, pcap.BlockForever)
	if err != nil {
		return nil, classifyCaptureError(err)
	}

	c := &Context{
		Iface:     iface,
		LocalIP:   localIP,
		Net:       localNet,
		LocalIPv6: localIPv6,
		NetV6:     netV6,
		Handle:    handle,
		cache:     make(map[string]net.HardwareAddr),
	}
	return c, nil
}

// classifyCaptureError distinguishes a permission failure (no
// CAP_NET_RAW/not root, or the admin-mode prompt this process couldn't
// satisfy) from every other libpcap open failure, per spec.md §6's
// requirement to fail cleanly and distinctly when lacking privileges.
func classifyCaptureError(err error) error {
	if isPermissionError(err) {
		return fmt.Errorf("%w: %v", scanerrors.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", scanerrors.ErrCaptureFailed, err)
}

func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	// libpcap itself returns a plain string error rather than wrapping an
	// errno on most platforms, so fall back to matching its own wording.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "operation not permitted")
}

// Close releases the live capture handle.
func (c *Context) Close() {
	if c.Handle != nil {
		c.Handle.Close()
	}
}

// LocalAddr returns the IPv4 source address probes send from.
func (c *Context) LocalAddr() net.IP { return c.LocalIP }

// LocalAddrV6 returns the IPv6 source address probes send from, or nil if
// the interface carries no IPv6 address at all.
func (c *Context) LocalAddrV6() net.IP { return c.LocalIPv6 }

// HardwareAddr returns the sending interface's own MAC address.
func (c *Context) HardwareAddr() net.HardwareAddr { return c.Iface.HardwareAddr }

// Send frames payload as ethType over the live handle, addressed to dstMAC.
// Every probe engine funnels its crafted packet through this single
// injection point, satisfying probe.Sender.
func (c *Context) Send(dstMAC net.HardwareAddr, ethType layers.EthernetType, payload ...gopacket.SerializableLayer) error {
	return linklayer.SendIPPayload(c.Handle, c.Iface.HardwareAddr, dstMAC, ethType, payload...)
}

// SendARPRequest broadcasts an ARP request for dstIP, sourced from srcIP.
func (c *Context) SendARPRequest(srcIP, dstIP net.IP) error {
	return linklayer.SendARPRequest(c.Handle, c.Iface.HardwareAddr, srcIP, dstIP)
}

// SetMACResolver installs the fallback used when an address isn't already
// cached; netrecon.Open wires this to probe.Engine.ARP, an ARP
// request/reply pair.
func (c *Context) SetMACResolver(f func(ctx context.Context, ip net.IP) (net.HardwareAddr, error)) {
	c.resolveMAC = f
}

// CacheMAC records a known IP-to-MAC mapping, e.g. one learned from an ARP
// scan run earlier in the same process.
func (c *Context) CacheMAC(ip net.IP, mac net.HardwareAddr) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[ip.String()] = mac
}

// ResolveMAC returns the link-layer address for ip, consulting the cache
// first and falling through to the installed resolver (an ARP probe) on a
// miss. The resolved value is cached for subsequent calls.
func (c *Context) ResolveMAC(ctx context.Context, ip net.IP) (net.HardwareAddr, error) {
	key := ip.String()

	c.cacheMu.RLock()
	if mac, ok := c.cache[key]; ok {
		c.cacheMu.RUnlock()
		return mac, nil
	}
	c.cacheMu.RUnlock()

	if c.resolveMAC == nil {
		return nil, fmt.Errorf("%w: no resolver installed for %s", scanerrors.ErrCannotFindMacAddress, key)
	}

	mac, err := c.resolveMAC(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scanerrors.ErrCannotFindMacAddress, err)
	}
	c.CacheMAC(ip, mac)
	return mac, nil
}

// SubnetHosts enumerates every usable host address on c.Net (network and
// broadcast addresses excluded), capped at maxHosts when positive. This
// mirrors Scan()'s iteration loop but returns a slice instead of sending
// ARP requests inline, so probe engines can reuse it for any scan method.
func (c *Context) SubnetHosts(maxHosts int) []net.IP {
	mask := c.Net.Mask

	current := make(net.IP, len(c.LocalIP))
	copy(current, c.LocalIP)
	for i := range current {
		if i < len(mask) {
			current[i] &= mask[i]
		}
	}

	broadcast := make(net.IP, len(current))
	copy(broadcast, current)
	for i := range broadcast {
		if i < len(mask) {
			broadcast[i] |= ^mask[i]
		}
	}

	var hosts []net.IP
	first := true
	for ; c.Net.Contains(current); incIP(current) {
		if maxHosts > 0 && len(hosts) >= maxHosts {
			break
		}
		if first {
			first = false
			continue
		}
		if current.Equal(broadcast) {
			continue
		}
		if current.Equal(c.LocalIP) {
			continue
		}
		ip := make(net.IP, len(current))
		copy(ip, current)
		hosts = append(hosts, ip)
	}
	return hosts
}

func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

const (
	ephemeralPortLow  = 49152
	ephemeralPortHigh = 65535
	sourcePortRetries = 10
)

// ReserveSourcePort draws a random ephemeral port (the IANA 49152-65535
// range spec.md §6 mandates) not already in use by another in-flight probe
// on this Context, retrying up to sourcePortRetries times on a collision
// before giving up. Callers must invoke the returned release func once
// they've stopped waiting for that probe's response, typically via defer.
func (c *Context) ReserveSourcePort() (uint16, func(), error) {
	c.portMu.Lock()
	defer c.portMu.Unlock()

	if c.portsInUse == nil {
		c.portsInUse = make(map[uint16]bool)
	}

	for attempt := 0; attempt < sourcePortRetries; attempt++ {
		port, err := randomEphemeralPort()
		if err != nil {
			return 0, func() {}, fmt.Errorf("%w: %v", scanerrors.ErrSendFailed, err)
		}
		if c.portsInUse[port] {
			continue
		}
		c.portsInUse[port] = true
		release := func() {
			c.portMu.Lock()
			delete(c.portsInUse, port)
			c.portMu.Unlock()
		}
		return port, release, nil
	}
	return 0, func() {}, fmt.Errorf("%w: no free source port in %d-%d after %d attempts",
		scanerrors.ErrSendFailed, ephemeralPortLow, ephemeralPortHigh, sourcePortRetries)
}

func randomEphemeralPort() (uint16, error) {
	span := big.NewInt(int64(ephemeralPortHigh - ephemeralPortLow + 1))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return uint16(ephemeralPortLow + n.Int64()), nil
}
