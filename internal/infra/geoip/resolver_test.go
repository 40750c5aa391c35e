package geoip

import (
	"errors"
	"net/netip"
	"testing"
)

func TestNewResolverEmptyPath(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("NewResolver(empty) = %v, %v", r, err)
	}
}

func TestNilResolverIsUnavailable(t *testing.T) {
	var r *Resolver
	if _, err := r.CountryCode("8.8.8.8"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestRoutable(t *testing.T) {
	cases := map[string]bool{
		"8.8.8.8":     true,
		"127.0.0.1":   false,
		"10.1.2.3":    false,
		"192.168.0.4": false,
		"169.254.1.1": false,
		"::1":         false,
		"2001:db8::1": true,
	}
	for raw, want := range cases {
		if got := routable(netip.MustParseAddr(raw)); got != want {
			t.Errorf("routable(%s) = %v, want %v", raw, got, want)
		}
	}
}
