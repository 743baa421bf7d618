package netctx

import (
	"context"
	"net"
	"testing"
)

func TestSubnetHostsExcludesNetworkBroadcastAndSelf(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("192.168.1.0/29")
	if err != nil {
		t.Fatalf("ParseCIDR() error = %v", err)
	}

	c := &Context{
		LocalIP: net.ParseIP("192.168.1.1").To4(),
		Net:     ipnet,
	}

	hosts := c.SubnetHosts(0)

	want := []string{"192.168.1.2", "192.168.1.3", "192.168.1.4", "192.168.1.5", "192.168.1.6"}
	if len(hosts) != len(want) {
		t.Fatalf("SubnetHosts() returned %d hosts, want %d: %v", len(hosts), len(want), hosts)
	}
	for i, ip := range hosts {
		if ip.String() != want[i] {
			t.Errorf("hosts[%d] = %s, want %s", i, ip, want[i])
		}
	}
}

func TestSubnetHostsRespectsMaxHosts(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("192.168.1.0/29")
	if err != nil {
		t.Fatalf("ParseCIDR() error = %v", err)
	}
	c := &Context{
		LocalIP: net.ParseIP("192.168.1.1").To4(),
		Net:     ipnet,
	}

	hosts := c.SubnetHosts(2)
	if len(hosts) != 2 {
		t.Fatalf("SubnetHosts(2) returned %d hosts, want 2", len(hosts))
	}
}

func TestResolveMACUsesCacheBeforeResolver(t *testing.T) {
	c := &Context{cache: make(map[string]net.HardwareAddr)}
	ip := net.ParseIP("10.0.0.9")
	mac, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	c.CacheMAC(ip, mac)

	c.SetMACResolver(func(_ context.Context, _ net.IP) (net.HardwareAddr, error) {
		t.Fatal("resolver should not be called for a cached address")
		return nil, nil
	})

	got, err := c.ResolveMAC(context.Background(), ip)
	if err != nil {
		t.Fatalf("ResolveMAC() error = %v", err)
	}
	if got.String() != mac.String() {
		t.Errorf("ResolveMAC() = %s, want %s", got, mac)
	}
}
