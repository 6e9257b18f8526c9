package sources

import (
	"context"
	"ddnsguard/common"
	"ddnsguard/config"
	"ddnsguard/log"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxReadCloudflareTrace = 1024
const defaultCloudflareDomain = "www.cloudflare.com"

var ErrNoTraceIP = errors.New("no ip= line found in trace")

// cloudflareTrace reads the ip= line of a /cdn-cgi/trace response.
type cloudflareTrace struct {
	config.EndpointHTTPConfig `mapstructure:",squash"`

	url string
}

func (s *cloudflareTrace) Typename() string {
	return "cf_trace"
}

func (s *cloudflareTrace) String() string {
	return s.url
}

func (s *cloudflareTrace) Lookup(ctx context.Context) (string, error) {
	timeout := time.Duration(s.Timeout)
	ctx = log.SWith(ctx, "timeout", timeout)

	tCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := get(tCtx, s.url, maxReadCloudflareTrace)
	if err != nil {
		return "", err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if ip, ok := strings.CutPrefix(strings.TrimSpace(line), "ip="); ok && ip != "" {
			log.S(ctx).Debugw("got candidate", log.Candidate(ip))
			return ip, nil
		}
	}

	log.S(ctx).Warnw("no IP found in response", log.ByteField("body", data))
	return "", ErrNoTraceIP
}

// newCloudflareTrace accepts a bare host, or a full URL used as is.
func newCloudflareTrace(ctx context.Context, endpoint config.Endpoint, timeout time.Duration) (Interface, error) {
	ctx = log.SWith(ctx, "type", "cf_trace")

	s := &cloudflareTrace{}
	switch {
	case strings.Contains(endpoint.Source, "://"):
		s.url = endpoint.Source
	default:
		host, isIP := common.DetectNormalizeAddr(endpoint.Source)
		switch {
		case host == "":
			host = defaultCloudflareDomain
		case isIP && strings.Contains(host, ":"):
			host = fmt.Sprintf("[%s]", host)
		}
		s.url = fmt.Sprintf("https://%s/cdn-cgi/trace", host)
	}

	if err := common.WeakDecodeMap(endpoint.Config, s); err != nil {
		log.S(ctx).Errorw("bad config", zap.Error(err), "config", endpoint.Config)
		return nil, fmt.Errorf(`bad config: %w`, err)
	}

	if s.Timeout <= 0 {
		s.Timeout = common.Duration(timeout)
	}

	return s, nil
}
