package ddns

import (
	"context"
	"ddnsguard/config"
	"ddnsguard/log"
	"ddnsguard/publicip"
	"fmt"
	"sort"
)

// Interface is the capability a DNS provider offers to the syncer.
type Interface interface {
	// GetCurrentRecord returns the single published A record being managed.
	GetCurrentRecord(ctx context.Context) (Record, error)
	// ApplyUpdate points current at addr. current must come from a recent
	// GetCurrentRecord call.
	ApplyUpdate(ctx context.Context, current Record, addr publicip.PublicAddress) (Record, error)
}

// Record is a snapshot of a published record. Handle is opaque to callers
// and identifies the record to the provider that produced it.
type Record struct {
	Handle  any
	Name    string
	Type    string
	Content string
	TTL     int
	Proxied bool
}

type factory func(ctx context.Context, provider config.Provider) (Interface, error)

var Providers = map[string]factory{
	"cloudflare": newCloudflare,
}

// New builds the provider selected by c.Type.
func New(ctx context.Context, c config.Provider) (Interface, error) {
	ctx = log.SWith(ctx, log.Stage("init:provider"), "provider", c.Type)

	create, ok := Providers[c.Type]
	if !ok {
		log.S(ctx).Errorw("unsupported provider", "supported", Supported())
		return nil, fmt.Errorf("unsupported provider %q", c.Type)
	}

	return create(ctx, c)
}

func Supported() []string {
	names := make([]string, 0, len(Providers))
	for name := range Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
