// Package publicip determines the host's public IPv4 address from external
// echo services, refusing any answer that could come from an intermediary
// reporting its own address instead of ours.
package publicip

import (
	"context"
	"ddnsguard/blocklist"
	"errors"
	"net/netip"

	"go4.org/netipx"
)

var (
	ErrNotIPv4   = errors.New("not an IPv4 address")
	ErrNotGlobal = errors.New("not a globally routable address")
	ErrBlocked   = errors.New("address in blocked edge or resolver range")
)

// PublicAddress is an IPv4 address that passed validation. The zero value is
// not a valid address.
type PublicAddress struct {
	addr netip.Addr
}

func (a PublicAddress) Addr() netip.Addr {
	return a.addr
}

// String returns the canonical dotted-quad form.
func (a PublicAddress) String() string {
	return a.addr.String()
}

func (a PublicAddress) IsValid() bool {
	return a.addr.IsValid()
}

// nonGlobal lists IPv4 special-purpose ranges (IANA registry) that are not
// reachable from the internet, beyond what netip's predicates already cover.
var nonGlobal = func() *netipx.IPSet {
	var b netipx.IPSetBuilder
	for _, cidr := range []string{
		"0.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"172.16.0.0/12",
		"192.0.0.0/24",
		"192.0.2.0/24",
		"192.88.99.0/24",
		"192.168.0.0/16",
		"198.18.0.0/15",
		"198.51.100.0/24",
		"203.0.113.0/24",
		"224.0.0.0/4",
		"240.0.0.0/4",
	} {
		b.AddPrefix(netip.MustParsePrefix(cidr))
	}
	// anycast assignments inside 192.0.0.0/24 that are globally reachable
	b.Remove(netip.MustParseAddr("192.0.0.9"))
	b.Remove(netip.MustParseAddr("192.0.0.10"))

	s, err := b.IPSet()
	if err != nil {
		panic(err)
	}
	return s
}()

// IsGlobal reports whether addr is a globally routable IPv4 unicast address.
func IsGlobal(addr netip.Addr) bool {
	if !addr.Is4() || !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}

	return !nonGlobal.Contains(addr)
}

// BlockSource supplies the block list; blocklist.Loader is the usual one.
type BlockSource interface {
	Load(ctx context.Context) *blocklist.Set
}

// Validator turns candidates into PublicAddress values.
type Validator struct {
	blocks BlockSource
}

func NewValidator(blocks BlockSource) *Validator {
	return &Validator{blocks: blocks}
}

// Check parses and validates candidate. The returned error is one of
// ErrNotIPv4, ErrNotGlobal or ErrBlocked.
func (v *Validator) Check(ctx context.Context, candidate string) (PublicAddress, error) {
	addr, err := netip.ParseAddr(candidate)
	if err != nil || !addr.Is4() {
		return PublicAddress{}, ErrNotIPv4
	}

	if !IsGlobal(addr) {
		return PublicAddress{}, ErrNotGlobal
	}

	if v.blocks.Load(ctx).Contains(addr) {
		return PublicAddress{}, ErrBlocked
	}

	return PublicAddress{addr: addr}, nil
}

func (v *Validator) IsAcceptableCandidate(ctx context.Context, candidate string) bool {
	_, err := v.Check(ctx, candidate)
	return err == nil
}
