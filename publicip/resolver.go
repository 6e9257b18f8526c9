package publicip

import (
	"context"
	"ddnsguard/config"
	"ddnsguard/log"
	"ddnsguard/sources"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrResolutionFailed = errors.New("no trustworthy public address found")

// ResolutionError is returned when every endpoint failed or was rejected.
// Last holds the final transport or validation error.
type ResolutionError struct {
	Attempts int
	Last     error
}

func (e *ResolutionError) Error() string {
	if e.Last == nil {
		return ErrResolutionFailed.Error()
	}
	return fmt.Sprintf("%s after %d endpoints: %v", ErrResolutionFailed, e.Attempts, e.Last)
}

func (e *ResolutionError) Unwrap() error {
	return e.Last
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// Untrustworthy reports whether the final failure was a rejected candidate
// rather than an unreachable endpoint.
func (e *ResolutionError) Untrustworthy() bool {
	var ce *CandidateError
	return errors.As(e.Last, &ce)
}

// CandidateError records a candidate that failed validation.
type CandidateError struct {
	Endpoint  string
	Candidate string
	Reason    error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("rejected candidate %q from %s: %v", e.Candidate, e.Endpoint, e.Reason)
}

func (e *CandidateError) Unwrap() error {
	return e.Reason
}

// Rejection is notified for every candidate that fails validation.
type Rejection func(endpoint string, reason error)

type Resolver struct {
	endpoints []sources.Interface
	validator *Validator
	onReject  Rejection
}

func NewResolver(ctx context.Context, c config.Resolver, validator *Validator) (*Resolver, error) {
	endpoints := c.Endpoints
	if len(endpoints) == 0 {
		endpoints = sources.DefaultEndpoints
	}

	timeout := c.Timeout.Or(sources.DefaultTimeout)

	r := &Resolver{validator: validator}
	for _, e := range endpoints {
		typ := e.Type
		if typ == "" {
			typ = "http"
		}

		ctx := log.SWith(ctx, log.Stage("init:endpoint"), "type", typ, "source", e.Source)
		create, ok := sources.Sources[typ]
		if !ok {
			log.S(ctx).Errorw("unknown endpoint type")
			return nil, fmt.Errorf("unknown endpoint type %q", typ)
		}

		source, err := create(ctx, e, timeout)
		if err != nil {
			return nil, fmt.Errorf("failed creating endpoint: %w", err)
		}

		r.endpoints = append(r.endpoints, source)
	}

	if len(r.endpoints) < 2 {
		log.S(ctx).Warnw("a single echo endpoint is a single point of failure", "count", len(r.endpoints))
	}

	return r, nil
}

// OnReject registers a callback for rejected candidates.
func (r *Resolver) OnReject(fn Rejection) {
	r.onReject = fn
}

// Resolve asks each endpoint in order and returns the first candidate that
// validates. Later endpoints are not consulted.
func (r *Resolver) Resolve(ctx context.Context) (PublicAddress, error) {
	ctx = log.SWith(ctx, log.Stage("resolve"))

	var last error
	for i, source := range r.endpoints {
		ctx := log.With(ctx, log.Endpoint(source.String()), zap.String("source_type", source.Typename()))

		candidate, err := source.Lookup(ctx)
		if err != nil {
			log.S(ctx).Infow("endpoint failed, trying next", zap.Error(err))
			last = fmt.Errorf("%s: %w", source, err)
			continue
		}

		addr, err := r.validator.Check(ctx, candidate)
		if err != nil {
			fields := []any{log.Candidate(candidate), "reason", err.Error()}
			if errors.Is(err, ErrBlocked) {
				fields = append(fields, log.Spoofing)
			}
			log.S(ctx).Warnw("rejected candidate", fields...)

			if r.onReject != nil {
				r.onReject(source.String(), err)
			}
			last = &CandidateError{Endpoint: source.String(), Candidate: candidate, Reason: err}
			continue
		}

		log.S(ctx).Infow("resolved public address", log.Addr(addr), "attempt", i+1)
		return addr, nil
	}

	err := &ResolutionError{Attempts: len(r.endpoints), Last: last}
	log.S(ctx).Errorw("all endpoints failed or untrustworthy", zap.Error(err))
	return PublicAddress{}, err
}
