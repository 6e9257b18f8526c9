package sources

import (
	"context"
	"ddnsguard/common"
	"ddnsguard/config"
	"ddnsguard/log"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const (
	defaultDNSServer = "resolver1.opendns.com:53"
	defaultDNSName   = "myip.opendns.com"
)

var ErrNoAnswer = errors.New("no A record in answer")

// resolverEcho asks a resolver that answers a special name with the
// querying client's address.
type resolverEcho struct {
	config.EndpointDNSConfig `mapstructure:",squash"`

	server string
}

func (s *resolverEcho) Typename() string {
	return "dns"
}

func (s *resolverEcho) String() string {
	return "dns://" + s.server + "/" + s.Name
}

func (s *resolverEcho) Lookup(ctx context.Context) (string, error) {
	timeout := time.Duration(s.Timeout)
	ctx = log.SWith(ctx, "timeout", timeout)

	c := dns.Client{Net: "udp4", Timeout: timeout}
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(s.Name), dns.TypeA)

	tCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r, _, err := c.ExchangeContext(tCtx, m, s.server)
	if err != nil {
		log.S(ctx).Warnw("dns query failed", zap.Error(err))
		return "", fmt.Errorf("dns query failed: %w", err)
	}

	if r.Rcode != dns.RcodeSuccess {
		log.S(ctx).Warnw("dns query rejected", "rcode", dns.RcodeToString[r.Rcode])
		return "", fmt.Errorf("dns query rejected: %s", dns.RcodeToString[r.Rcode])
	}

	for _, ans := range r.Answer {
		if a, ok := ans.(*dns.A); ok {
			log.S(ctx).Debugw("got candidate", log.Candidate(a.A.String()))
			return a.A.String(), nil
		}
	}

	log.S(ctx).Warnw("no usable record in answer", "answer", r.Answer)
	return "", ErrNoAnswer
}

func newDNS(ctx context.Context, endpoint config.Endpoint, timeout time.Duration) (Interface, error) {
	ctx = log.SWith(ctx, "type", "dns")

	s := &resolverEcho{server: endpoint.Source}
	if err := common.WeakDecodeMap(endpoint.Config, s); err != nil {
		log.S(ctx).Errorw("bad config", zap.Error(err), "config", endpoint.Config)
		return nil, fmt.Errorf(`bad config: %w`, err)
	}

	if s.server == "" {
		s.server = defaultDNSServer
	}
	if _, _, err := net.SplitHostPort(s.server); err != nil {
		s.server = net.JoinHostPort(s.server, "53")
	}
	if s.Name == "" {
		s.Name = defaultDNSName
	}
	if s.Timeout <= 0 {
		s.Timeout = common.Duration(timeout)
	}

	return s, nil
}
