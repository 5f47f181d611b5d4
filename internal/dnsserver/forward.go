package dnsserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Forwarder relays queries to upstream resolvers, trying each in order.
// Truncated UDP answers are retried over TCP.
type Forwarder struct {
	upstreams []string
	udp       *dns.Client
	tcp       *dns.Client
}

// NewForwarder returns a Forwarder for host:port upstreams.
func NewForwarder(upstreams []string, timeout time.Duration) *Forwarder {
	return &Forwarder{
		upstreams: upstreams,
		udp:       &dns.Client{Net: "udp", Timeout: timeout},
		tcp:       &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// Forward implements Exchanger.
func (f *Forwarder) Forward(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	if len(f.upstreams) == 0 {
		return nil, errors.New("no upstream servers configured")
	}
	var errs []error
	for _, upstream := range f.upstreams {
		resp, err := f.exchange(ctx, req, upstream)
		if err == nil {
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", upstream, err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (f *Forwarder) exchange(ctx context.Context, req *dns.Msg, upstream string) (*dns.Msg, error) {
	resp, _, err := f.udp.ExchangeContext(ctx, req, upstream)
	if err != nil {
		return nil, err
	}
	if resp.Truncated {
		resp, _, err = f.tcp.ExchangeContext(ctx, req, upstream)
		if err != nil {
			return nil, err
		}
	}
	if resp.Id != req.Id {
		return nil, fmt.Errorf("response id %d does not match query id %d", resp.Id, req.Id)
	}
	return resp, nil
}
