// Package updater reconciles the published A record with the host's public
// address, once per tick.
package updater

import (
	"context"
	"ddnsguard/ddns"
	"ddnsguard/log"
	"ddnsguard/publicip"
	"time"

	"go.uber.org/zap"
)

type Action string

const (
	ResolveFailed Action = "resolve_failed"
	LookupFailed  Action = "lookup_failed"
	InSync        Action = "in_sync"
	Updated       Action = "updated"
	UpdateFailed  Action = "update_failed"
)

// Succeeded reports whether the record matches the address after the cycle.
func (a Action) Succeeded() bool {
	return a == InSync || a == Updated
}

// Outcome describes one reconciliation cycle.
type Outcome struct {
	Action Action
	// Address is the resolved public address, invalid when resolution failed.
	Address publicip.PublicAddress
	// Previous is the record content seen before any update.
	Previous string
	Err      error
	Started  time.Time
	Elapsed  time.Duration
}

type AddressResolver interface {
	Resolve(ctx context.Context) (publicip.PublicAddress, error)
}

type Syncer struct {
	resolver AddressResolver
	provider ddns.Interface
}

func NewSyncer(resolver AddressResolver, provider ddns.Interface) *Syncer {
	return &Syncer{resolver: resolver, provider: provider}
}

// RunCycle performs one reconciliation. Failures are logged and reported in
// the Outcome; they never abort the caller.
func (s *Syncer) RunCycle(ctx context.Context) (o Outcome) {
	o.Started = time.Now()
	defer func() {
		o.Elapsed = time.Since(o.Started)
	}()

	ctx = log.SWith(ctx, log.Stage("sync"))

	addr, err := s.resolver.Resolve(ctx)
	if err != nil {
		log.S(ctx).Errorw("resolve failed, skip update", zap.Error(err))
		o.Action, o.Err = ResolveFailed, err
		return
	}
	o.Address = addr

	ctx = log.With(ctx, log.Addr(addr))

	current, err := s.provider.GetCurrentRecord(ctx)
	if err != nil {
		log.S(ctx).Errorw("failed read current record, skip update", zap.Error(err))
		o.Action, o.Err = LookupFailed, err
		return
	}
	o.Previous = current.Content

	if current.Content == addr.String() {
		log.S(ctx).Infow("record in sync", "domain", current.Name)
		o.Action = InSync
		return
	}

	log.S(ctx).Warnw("address and record differ, updating", "domain", current.Name, "old_ip", current.Content)

	record, err := s.provider.ApplyUpdate(ctx, current, addr)
	if err != nil {
		log.S(ctx).Errorw("failed update record", "domain", current.Name, zap.Error(err))
		o.Action, o.Err = UpdateFailed, err
		return
	}

	log.S(ctx).Infow("record updated", "domain", record.Name, "old_ip", current.Content, "ip", record.Content)
	o.Action = Updated
	return
}
