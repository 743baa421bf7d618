package probe

import (
	"testing"

	"netrecon/iplayer"
)

func TestMethodFlags(t *testing.T) {
	cases := []struct {
		method Method
		want   iplayer.TCPFlags
	}{
		{SYN, iplayer.TCPFlags{SYN: true}},
		{FIN, iplayer.TCPFlags{FIN: true}},
		{ACK, iplayer.TCPFlags{ACK: true}},
		{NULL, iplayer.TCPFlags{}},
		{Xmas, iplayer.TCPFlags{FIN: true, PSH: true, URG: true}},
		{Window, iplayer.TCPFlags{ACK: true}},
		{Maimon, iplayer.TCPFlags{FIN: true, ACK: true}},
	}
	for _, c := range cases {
		got := c.method.flags()
		if got != (c.want) {
			t.Errorf("%v.flags() = %+v, want %+v", c.method, got, c.want)
		}
	}
}

func TestMethodNoResponseVerdict(t *testing.T) {
	openOrFilteredMethods := []Method{FIN, NULL, Xmas, Maimon}
	for _, m := range openOrFilteredMethods {
		if got := m.noResponseVerdict(); got.String() != "open|filtered" {
			t.Errorf("%v.noResponseVerdict() = %s, want open|filtered", m, got)
		}
	}

	filteredMethods := []Method{SYN, ACK, Window}
	for _, m := range filteredMethods {
		if got := m.noResponseVerdict(); got.String() != "filtered" {
			t.Errorf("%v.noResponseVerdict() = %s, want filtered", m, got)
		}
	}
}

func TestMethodRstOpensOnWindow(t *testing.T) {
	if !Window.rstOpensOnWindow() {
		t.Error("Window.rstOpensOnWindow() = false, want true")
	}
	for _, m := range []Method{SYN, FIN, ACK, NULL, Xmas, Maimon} {
		if m.rstOpensOnWindow() {
			t.Errorf("%v.rstOpensOnWindow() = true, want false", m)
		}
	}
}
