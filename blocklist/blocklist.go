// Package blocklist holds the address ranges that must never be accepted as
// this host's public address: Cloudflare's edge network and its public
// resolver.
package blocklist

import (
	"context"
	"ddnsguard/common"
	"ddnsguard/log"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"sync"
	"time"

	cfapi "github.com/cloudflare/cloudflare-go"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"go4.org/netipx"
)

const (
	DefaultRangesURL     = "https://api.cloudflare.com/client/v4/ips"
	DefaultRangesTimeout = 5 * time.Second

	maxReadRanges = 64 * 1024
)

// FallbackRanges are the edge ranges published at https://www.cloudflare.com/ips/.
// Used whenever the live list cannot be fetched.
var FallbackRanges = []string{
	"173.245.48.0/20",
	"103.21.244.0/22",
	"103.22.200.0/22",
	"103.31.4.0/22",
	"141.101.64.0/18",
	"108.162.192.0/18",
	"190.93.240.0/20",
	"188.114.96.0/20",
	"197.234.240.0/22",
	"198.41.128.0/17",
	"162.158.0.0/15",
	"104.16.0.0/13",
	"104.24.0.0/14",
	"172.64.0.0/13",
	"131.0.72.0/22",
}

// ResolverRanges cover 1.1.1.1 and 1.0.0.1. They are absent from the edge
// list but are always blocked.
var ResolverRanges = []string{
	"1.1.1.0/24",
	"1.0.0.0/24",
}

type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

var errEmptyRanges = errors.New("no usable ipv4 ranges")

// Set is an immutable set of blocked IPv4 ranges.
type Set struct {
	ipset    *netipx.IPSet
	prefixes []netip.Prefix
	source   Source
}

func (s *Set) Contains(addr netip.Addr) bool {
	return s.ipset.Contains(addr)
}

// Prefixes returns the ranges in load order, edge ranges first.
func (s *Set) Prefixes() []netip.Prefix {
	return append([]netip.Prefix(nil), s.prefixes...)
}

func (s *Set) Source() Source {
	return s.source
}

func (s *Set) Len() int {
	return len(s.prefixes)
}

// Loader fetches the block list once and serves the cached Set afterwards.
type Loader struct {
	URL     string
	Timeout time.Duration
	// Extra ranges are appended to whatever source was used.
	Extra []netip.Prefix

	mu  sync.Mutex
	set *Set
}

func NewLoader(url string, timeout time.Duration, extra []netip.Prefix) *Loader {
	if url == "" {
		url = DefaultRangesURL
	}
	if timeout <= 0 {
		timeout = DefaultRangesTimeout
	}

	return &Loader{URL: url, Timeout: timeout, Extra: extra}
}

// Loaded returns the block list if a Load has already happened, or nil. It
// never fetches.
func (l *Loader) Loaded() *Set {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.set
}

// Load returns the block list, fetching it on first use. It never fails:
// when the live list is unavailable the static fallback is used instead.
func (l *Loader) Load(ctx context.Context) *Set {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set != nil {
		return l.set
	}

	ctx = log.SWith(ctx, log.Stage("blocklist"), "url", l.URL)

	source := SourceLive
	prefixes, err := l.fetch(ctx)
	if err != nil {
		log.S(ctx).Warnw("failed loading live edge ranges, using static fallback", zap.Error(err))
		source = SourceFallback
		prefixes = parsePrefixes(ctx, FallbackRanges)
	} else {
		log.S(ctx).Infow("loaded live edge ranges", "count", len(prefixes))
	}

	prefixes = append(prefixes, parsePrefixes(ctx, ResolverRanges)...)
	for _, p := range l.Extra {
		log.S(ctx).Debugw("blocking operator range", log.Prefix(p))
		prefixes = append(prefixes, p.Masked())
	}

	var b netipx.IPSetBuilder
	for _, p := range prefixes {
		b.AddPrefix(p)
	}

	ipset, err := b.IPSet()
	if err != nil {
		// Only reachable with invalid prefixes, which parsePrefixes never yields.
		log.S(ctx).Errorw("failed building block set", zap.Error(err), log.Internal)
	}

	l.set = &Set{ipset: ipset, prefixes: prefixes, source: source}
	return l.set
}

func (l *Loader) fetch(ctx context.Context) ([]netip.Prefix, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request failed: %w", err)
	}

	resp, err := common.HttpClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.S(ctx).Warnw("close body failed", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body cfapi.IPsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReadRanges)).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed ranges response: %w", err)
	}

	if !body.Success {
		return nil, fmt.Errorf("ranges api reported failure: %v", body.Errors)
	}

	prefixes := parsePrefixes(ctx, body.Result.IPv4CIDRs)
	if len(prefixes) == 0 {
		return nil, errEmptyRanges
	}

	return prefixes, nil
}

func parsePrefixes(ctx context.Context, cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil || !p.Addr().Is4() {
			log.S(ctx).Debugw("skip malformed range", "cidr", cidr)
			continue
		}

		prefixes = append(prefixes, p.Masked())
	}

	return prefixes
}
