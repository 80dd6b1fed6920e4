package blocker

import "testing"

func TestParseDefaultRoute(t *testing.T) {
	out := "default via 192.168.0.1 dev wlan0 proto dhcp metric 600\n" +
		"192.168.0.0/24 dev wlan0 proto kernel scope link src 192.168.0.17 metric 600\n"
	gw, iface, err := parseDefaultRoute(out)
	if err != nil {
		t.Fatalf("parseDefaultRoute: %v", err)
	}
	if gw != "192.168.0.1" || iface != "wlan0" {
		t.Fatalf("expected 192.168.0.1/wlan0, got %s/%s", gw, iface)
	}
}

func TestParseDefaultRouteSkipsNonDefault(t *testing.T) {
	out := "10.0.0.0/8 dev eth1 proto kernel scope link\n" +
		"default via 10.1.1.1 dev eth0\n"
	gw, iface, err := parseDefaultRoute(out)
	if err != nil {
		t.Fatalf("parseDefaultRoute: %v", err)
	}
	if gw != "10.1.1.1" || iface != "eth0" {
		t.Fatalf("expected 10.1.1.1/eth0, got %s/%s", gw, iface)
	}
}

func TestParseDefaultRouteEmpty(t *testing.T) {
	for _, out := range []string{"", "\n", "192.168.0.0/24 dev wlan0 scope link\n"} {
		if _, _, err := parseDefaultRoute(out); err == nil {
			t.Fatalf("expected error for output %q", out)
		}
	}
}
