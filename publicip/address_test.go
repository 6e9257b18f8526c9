package publicip

import (
	"context"
	"ddnsguard/blocklist"
	"ddnsguard/log"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(context.Background(), zaptest.NewLogger(t))
}

// fallbackBlocks returns a loader whose live fetch always fails.
func fallbackBlocks(t *testing.T) *blocklist.Loader {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return blocklist.NewLoader(srv.URL, time.Second, nil)
}

func TestCheck(t *testing.T) {
	v := NewValidator(fallbackBlocks(t))
	ctx := testContext(t)

	cases := []struct {
		candidate string
		want      error
	}{
		// unparsable
		{"", ErrNotIPv4},
		{"not-an-ip", ErrNotIPv4},
		{"256.1.1.1", ErrNotIPv4},
		{"1.2.3", ErrNotIPv4},
		{"01.2.3.4", ErrNotIPv4},
		{"93.184.216.34/32", ErrNotIPv4},
		{"2606:2800:220:1:248:1893:25c8:1946", ErrNotIPv4},
		{"::ffff:93.184.216.34", ErrNotIPv4},
		{"<html>", ErrNotIPv4},

		// non-global
		{"0.0.0.0", ErrNotGlobal},
		{"0.1.2.3", ErrNotGlobal},
		{"10.1.2.3", ErrNotGlobal},
		{"100.64.0.1", ErrNotGlobal},
		{"127.0.0.1", ErrNotGlobal},
		{"169.254.169.254", ErrNotGlobal},
		{"172.16.0.1", ErrNotGlobal},
		{"172.31.255.254", ErrNotGlobal},
		{"192.0.0.1", ErrNotGlobal},
		{"192.0.2.10", ErrNotGlobal},
		{"192.168.1.1", ErrNotGlobal},
		{"198.18.0.1", ErrNotGlobal},
		{"198.51.100.7", ErrNotGlobal},
		{"203.0.113.9", ErrNotGlobal},
		{"224.0.0.1", ErrNotGlobal},
		{"240.0.0.1", ErrNotGlobal},
		{"255.255.255.255", ErrNotGlobal},

		// edge and resolver ranges
		{"173.245.48.1", ErrBlocked},
		{"104.16.132.229", ErrBlocked},
		{"172.67.1.1", ErrBlocked},
		{"1.1.1.1", ErrBlocked},
		{"1.0.0.1", ErrBlocked},

		// acceptable
		{"93.184.216.34", nil},
		{"8.8.8.8", nil},
		{"192.0.0.9", nil},
		{"172.32.0.1", nil},
		{"1.1.2.1", nil},
	}

	for _, c := range cases {
		addr, err := v.Check(ctx, c.candidate)
		if !errors.Is(err, c.want) || (c.want == nil && err != nil) {
			t.Errorf("Check(%q) error = %v, want %v", c.candidate, err, c.want)
			continue
		}

		if got := v.IsAcceptableCandidate(ctx, c.candidate); got != (c.want == nil) {
			t.Errorf("IsAcceptableCandidate(%q) = %v, want %v", c.candidate, got, c.want == nil)
		}

		if c.want == nil {
			if addr.String() != c.candidate {
				t.Errorf("Check(%q) = %s", c.candidate, addr)
			}
		} else if addr.IsValid() {
			t.Errorf("Check(%q) returned valid address %s alongside error", c.candidate, addr)
		}
	}
}

func TestIsGlobal(t *testing.T) {
	for addr, want := range map[string]bool{
		"93.184.216.34":  true,
		"100.63.255.255": true,
		"100.128.0.0":    true,
		"100.100.1.1":    false,
		"192.0.0.10":     true,
		"192.0.0.11":     false,
		"::1":            false,
	} {
		if got := IsGlobal(netip.MustParseAddr(addr)); got != want {
			t.Errorf("IsGlobal(%s) = %v, want %v", addr, got, want)
		}
	}
}

func TestCheckLiveBlockList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "result": {"ipv4_cidrs": ["93.184.216.0/24"]}}`))
	}))
	defer srv.Close()

	v := NewValidator(blocklist.NewLoader(srv.URL, time.Second, nil))
	ctx := testContext(t)

	if v.IsAcceptableCandidate(ctx, "93.184.216.34") {
		t.Error("address inside live range accepted")
	}
	if v.IsAcceptableCandidate(ctx, "1.1.1.1") {
		t.Error("resolver address accepted with live list")
	}
	// not in the live list, only in the fallback
	if !v.IsAcceptableCandidate(ctx, "173.245.48.1") {
		t.Error("fallback-only range used despite successful live load")
	}
}
