package ddns

import (
	"context"
	"ddnsguard/common"
	"ddnsguard/config"
	"ddnsguard/log"
	"ddnsguard/publicip"
	"errors"
	"fmt"
	"net"
	"time"

	cfapi "github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"
)

const (
	defaultTTL     = 120
	defaultTimeout = 15 * time.Second
)

type cloudflare struct {
	config.CloudflareConfig

	zoneID string
}

type logger struct {
	ctx context.Context
}

type cloudflareHandle struct {
	ID     string
	ZoneID string
}

func (l *logger) Printf(format string, v ...interface{}) {
	log.S(l.ctx).Debugf(format, v...)
}

// cfError matches the typed errors cloudflare-go returns for 4xx responses.
type cfError interface {
	error
	Type() cfapi.ErrorType
	ErrorMessages() []string
}

// classify maps a cloudflare-go error onto a failure kind.
func classify(err error) (kind error, messages []string) {
	var typed cfError
	if errors.As(err, &typed) {
		switch typed.Type() {
		case cfapi.ErrorTypeAuthentication, cfapi.ErrorTypeAuthorization:
			return ErrAuth, typed.ErrorMessages()
		default:
			return ErrAPI, typed.ErrorMessages()
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTransport, nil
	}

	// rate limiting and 5xx surface as plain errors once retries are exhausted
	return ErrAPI, nil
}

func (d *cloudflare) getAPI(ctx context.Context) (*cfapi.API, error) {
	opts := []cfapi.Option{
		cfapi.HTTPClient(common.HttpClient(ctx)),
		cfapi.UsingLogger(&logger{ctx: ctx}),
		cfapi.UsingRetryPolicy(d.MaxRetries, 1, 30),
	}

	if d.BaseURL != "" {
		opts = append(opts, cfapi.BaseURL(d.BaseURL))
	}

	api, err := cfapi.NewWithAPIToken(d.APIToken, opts...)
	if err != nil {
		log.S(ctx).Errorw("failed create cloudflare API", zap.Error(err))
		return nil, fmt.Errorf("failed create cloudflare API: %w", err)
	}

	return api, nil
}

func (d *cloudflare) GetCurrentRecord(ctx context.Context) (Record, error) {
	ctx = log.SWith(ctx,
		"action", "find",
		"ns_type", "A",
		"domain", d.RecordName,
		"zone_id", d.zoneID)

	fail := func(kind error, messages []string, err error) (Record, error) {
		return Record{}, &RecordLookupError{Name: d.RecordName, Kind: kind, Messages: messages, Err: err}
	}

	api, err := d.getAPI(ctx)
	if err != nil {
		return fail(ErrAPI, nil, err)
	}

	tCtx, cancel := context.WithTimeout(ctx, time.Duration(d.Timeout))
	defer cancel()

	cfRecords, _, err := api.ListDNSRecords(tCtx, cfapi.ZoneIdentifier(d.zoneID), cfapi.ListDNSRecordsParams{
		Type: "A",
		Name: d.RecordName,
	})
	if err != nil {
		kind, messages := classify(err)
		log.S(ctx).Errorw("failed list records", "kind", kind.Error(), "messages", messages, zap.Error(err))
		return fail(kind, messages, err)
	}

	if len(cfRecords) == 0 {
		log.S(ctx).Errorw("no record found, creating records is not supported")
		return fail(ErrRecordNotFound, nil, nil)
	}

	if len(cfRecords) > 1 {
		log.S(ctx).Warnw("found multiple records, using the first", "count", len(cfRecords))
	}

	r := cfRecords[0]
	record := Record{
		Handle:  cloudflareHandle{ID: r.ID, ZoneID: d.zoneID},
		Name:    r.Name,
		Type:    r.Type,
		Content: r.Content,
		TTL:     r.TTL,
		Proxied: r.Proxied != nil && *r.Proxied,
	}

	log.S(ctx).Debugw("found record", "record", record)

	return record, nil
}

func (d *cloudflare) ApplyUpdate(ctx context.Context, current Record, addr publicip.PublicAddress) (Record, error) {
	pCtx := ctx
	ctx = log.SWith(ctx,
		"type", "cloudflare",
		"action", "write",
		"ns_type", "A",
		"domain", d.RecordName,
		"address", addr.String(),
		"handle", current.Handle)

	handle, ok := current.Handle.(cloudflareHandle)
	if !ok || handle.ID == "" {
		log.S(ctx).Errorw("record handle not from this provider", log.Internal)
		return Record{}, &RecordUpdateError{Name: d.RecordName, Content: addr.String(), Kind: ErrAPI,
			Err: errors.New("internal error: bad record handle")}
	}

	fail := func(kind error, messages []string, err error) (Record, error) {
		return Record{}, &RecordUpdateError{
			Name: d.RecordName, ID: handle.ID, Content: addr.String(),
			Kind: kind, Messages: messages, Err: err,
		}
	}

	api, err := d.getAPI(ctx)
	if err != nil {
		return fail(ErrAPI, nil, err)
	}

	tCtx, cancel := context.WithTimeout(ctx, time.Duration(d.Timeout))
	defer cancel()

	cfRecord, err := api.UpdateDNSRecord(tCtx, cfapi.ZoneIdentifier(handle.ZoneID), cfapi.UpdateDNSRecordParams{
		ID:      handle.ID,
		Type:    "A",
		Name:    d.RecordName,
		Content: addr.String(),
		TTL:     d.TTL,
		Proxied: cfapi.BoolPtr(false),
	})
	if err != nil {
		kind, messages := classify(err)
		log.S(ctx).Warnw("failed update record", "kind", kind.Error(), "messages", messages, zap.Error(err))
		return fail(kind, messages, err)
	}

	// a success:false envelope carries no record
	if cfRecord.ID == "" {
		log.S(ctx).Warnw("provider returned no record")
		return fail(ErrAPI, nil, errors.New("empty result in update response"))
	}

	record := Record{
		Handle:  cloudflareHandle{ID: cfRecord.ID, ZoneID: handle.ZoneID},
		Name:    cfRecord.Name,
		Type:    cfRecord.Type,
		Content: cfRecord.Content,
		TTL:     cfRecord.TTL,
		Proxied: cfRecord.Proxied != nil && *cfRecord.Proxied,
	}

	log.S(pCtx).Debugw("record written", "record", record)

	return record, nil
}

func (d *cloudflare) lookupZoneID(ctx context.Context) (string, error) {
	ctx = log.SWith(ctx, "action", "find_zone", "zone", d.ZoneName)

	api, err := d.getAPI(ctx)
	if err != nil {
		return "", err
	}

	tCtx, cancel := context.WithTimeout(ctx, time.Duration(d.Timeout))
	defer cancel()

	zones, err := api.ListZonesContext(tCtx, cfapi.WithZoneFilters(d.ZoneName, "", ""))
	if err != nil {
		kind, messages := classify(err)
		log.S(ctx).Errorw("failed get zone id", "kind", kind.Error(), "messages", messages, zap.Error(err))
		return "", fmt.Errorf("failed get zone id: %w", err)
	}

	for _, z := range zones.Result {
		if z.Name == d.ZoneName {
			log.S(ctx).Debugw("found zone", "zone_id", z.ID)
			return z.ID, nil
		}
	}

	log.S(ctx).Errorw("zone not found", "count", len(zones.Result))
	return "", fmt.Errorf("zone %q not found", d.ZoneName)
}

func newCloudflare(ctx context.Context, provider config.Provider) (Interface, error) {
	ctx = log.SWith(ctx, "type", "cloudflare")

	d := &cloudflare{}
	if err := common.WeakDecodeMap(provider.Config, &d.CloudflareConfig); err != nil {
		log.S(ctx).Errorw("bad config", zap.Error(err))
		return nil, fmt.Errorf("bad config: %w", err)
	}

	switch {
	case d.APIToken == "":
		return nil, errors.New("bad config: api_token is required")
	case d.RecordName == "":
		return nil, errors.New("bad config: record_name is required")
	case d.ZoneID == "" && d.ZoneName == "":
		return nil, errors.New("bad config: zone_id or zone_name is required")
	}

	// records are always published DNS-only
	if _, ok := provider.Config["proxied"]; ok {
		log.S(ctx).Warnw("ignoring proxied option, proxying is never enabled")
	}

	if d.TTL == 0 {
		d.TTL = defaultTTL
	}
	if d.Timeout <= 0 {
		d.Timeout = common.Duration(defaultTimeout)
	}
	if d.MaxRetries < 0 {
		d.MaxRetries = 0
	}

	d.zoneID = d.ZoneID
	if d.zoneID == "" {
		id, err := d.lookupZoneID(ctx)
		if err != nil {
			return nil, err
		}

		d.zoneID = id
	}

	log.S(ctx).Infow("provider ready", "zone_id", d.zoneID, "record", d.RecordName, "ttl", d.TTL)

	return d, nil
}
