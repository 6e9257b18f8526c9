package blocklist

import (
	"context"
	"ddnsguard/log"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func serve(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustContain(t *testing.T, s *Set, addrs ...string) {
	t.Helper()
	for _, a := range addrs {
		if !s.Contains(netip.MustParseAddr(a)) {
			t.Errorf("set (%s) does not contain %s", s.Source(), a)
		}
	}
}

func TestLoadLive(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, http.StatusOK, `{
		"success": true, "errors": [], "messages": [],
		"result": {"ipv4_cidrs": ["198.41.128.0/17", "not-a-cidr", "2400:cb00::/32"], "ipv6_cidrs": ["2400:cb00::/32"]}
	}`, &hits)

	l := NewLoader(srv.URL, time.Second, nil)
	s := l.Load(testContext(t))

	if s.Source() != SourceLive {
		t.Fatalf("Source() = %s, want live", s.Source())
	}
	// one live range plus the two resolver ranges; malformed and IPv6 entries skipped
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3: %v", s.Len(), s.Prefixes())
	}

	mustContain(t, s, "198.41.128.1", "1.1.1.1", "1.0.0.1")
	if s.Contains(netip.MustParseAddr("173.245.48.1")) {
		t.Error("live set should not include fallback-only range 173.245.48.0/20")
	}

	if again := l.Load(testContext(t)); again != s {
		t.Error("second Load returned a different set")
	}
	if hits.Load() != 1 {
		t.Errorf("ranges endpoint hit %d times, want 1", hits.Load())
	}
}

func TestLoadFallback(t *testing.T) {
	cases := map[string]*httptest.Server{
		"server error":  serve(t, http.StatusInternalServerError, `oops`, nil),
		"malformed":     serve(t, http.StatusOK, `{"success": tru`, nil),
		"not success":   serve(t, http.StatusOK, `{"success": false, "errors": [{"code": 1000, "message": "nope"}], "result": {"ipv4_cidrs": ["10.0.0.0/8"]}}`, nil),
		"empty list":    serve(t, http.StatusOK, `{"success": true, "result": {"ipv4_cidrs": []}}`, nil),
		"all malformed": serve(t, http.StatusOK, `{"success": true, "result": {"ipv4_cidrs": ["x", "300.1.1.0/24"]}}`, nil),
	}

	for name, srv := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewLoader(srv.URL, time.Second, nil).Load(testContext(t))

			if s.Source() != SourceFallback {
				t.Fatalf("Source() = %s, want fallback", s.Source())
			}
			if s.Len() != len(FallbackRanges)+len(ResolverRanges) {
				t.Errorf("Len() = %d, want %d", s.Len(), len(FallbackRanges)+len(ResolverRanges))
			}

			mustContain(t, s, "173.245.48.1", "104.16.0.1", "1.1.1.1", "1.0.0.1")

			var sawResolver bool
			for _, p := range s.Prefixes() {
				if p == netip.MustParsePrefix("1.1.1.0/24") {
					sawResolver = true
				}
			}
			if !sawResolver {
				t.Error("fallback set lacks 1.1.1.0/24")
			}
		})
	}
}

func TestLoadUnreachable(t *testing.T) {
	srv := serve(t, http.StatusOK, `{}`, nil)
	url := srv.URL
	srv.Close()

	s := NewLoader(url, time.Second, nil).Load(testContext(t))
	if s.Source() != SourceFallback {
		t.Fatalf("Source() = %s, want fallback", s.Source())
	}
	mustContain(t, s, "173.245.48.1", "1.0.0.1")
}

func TestLoadTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	s := NewLoader(srv.URL, 50*time.Millisecond, nil).Load(testContext(t))
	if time.Since(start) > time.Second {
		t.Errorf("Load took %s, timeout not applied", time.Since(start))
	}
	if s.Source() != SourceFallback {
		t.Fatalf("Source() = %s, want fallback", s.Source())
	}
}

func TestLoadExtra(t *testing.T) {
	srv := serve(t, http.StatusNotFound, ``, nil)
	extra := []netip.Prefix{netip.MustParsePrefix("93.184.216.0/24")}

	s := NewLoader(srv.URL, time.Second, extra).Load(testContext(t))
	mustContain(t, s, "93.184.216.34")
}

func TestLoadedDoesNotFetch(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, http.StatusOK, `{"success": true, "result": {"ipv4_cidrs": ["198.41.128.0/17"]}}`, &hits)

	l := NewLoader(srv.URL, time.Second, nil)
	if s := l.Loaded(); s != nil {
		t.Fatalf("Loaded() before Load = %v, want nil", s.Prefixes())
	}
	if hits.Load() != 0 {
		t.Fatalf("Loaded() fetched the ranges")
	}

	s := l.Load(testContext(t))
	if l.Loaded() != s {
		t.Error("Loaded() after Load returned a different set")
	}
	if hits.Load() != 1 {
		t.Errorf("ranges endpoint hit %d times, want 1", hits.Load())
	}
}
