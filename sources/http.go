package sources

import (
	"context"
	"ddnsguard/common"
	"ddnsguard/config"
	"ddnsguard/log"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxReadPlain = 4 * 1024

var ErrEmptyResponse = errors.New("empty response")

// plain reads the first whitespace-delimited token of a text response.
type plain struct {
	config.EndpointHTTPConfig `mapstructure:",squash"`

	url string
}

func (s *plain) Typename() string {
	return "http"
}

func (s *plain) String() string {
	return s.url
}

func (s *plain) Lookup(ctx context.Context) (candidate string, err error) {
	timeout := time.Duration(s.Timeout)
	ctx = log.SWith(ctx, "timeout", timeout)

	tCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := get(tCtx, s.url, maxReadPlain)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		log.S(ctx).Warnw("no candidate found in response", log.ByteField("body", data))
		return "", ErrEmptyResponse
	}

	log.S(ctx).Debugw("got candidate", log.Candidate(fields[0]))
	return fields[0], nil
}

func newHTTP(ctx context.Context, endpoint config.Endpoint, timeout time.Duration) (Interface, error) {
	ctx = log.SWith(ctx, "type", "http")

	u, err := url.Parse(endpoint.Source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		log.S(ctx).Errorw("bad endpoint url", "source", endpoint.Source)
		return nil, fmt.Errorf("bad endpoint url %q", endpoint.Source)
	}

	s := &plain{url: endpoint.Source}
	if err := common.WeakDecodeMap(endpoint.Config, s); err != nil {
		log.S(ctx).Errorw("bad config", zap.Error(err), "config", endpoint.Config)
		return nil, fmt.Errorf(`bad config: %w`, err)
	}

	if s.Timeout <= 0 {
		s.Timeout = common.Duration(timeout)
	}

	return s, nil
}
