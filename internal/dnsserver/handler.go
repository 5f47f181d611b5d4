// Package dnsserver answers DNS queries for the zones held by a zone.Registry
// and forwards everything else upstream.
package dnsserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/jroosing/minidns/internal/metrics"
	"github.com/jroosing/minidns/internal/zone"
)

// Matcher finds the zone that is authoritative for a query name.
type Matcher interface {
	Match(qname string) (*zone.Zone, string, bool)
}

// Exchanger sends a query upstream.
type Exchanger interface {
	Forward(ctx context.Context, req *dns.Msg) (*dns.Msg, error)
}

// Handler implements dns.Handler on top of a zone registry.
type Handler struct {
	zones     Matcher
	forwarder Exchanger
	ttl       uint32
	timeout   time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithForwarder sets where queries outside every zone go. Without one they
// are refused.
func WithForwarder(f Exchanger) HandlerOption { return func(h *Handler) { h.forwarder = f } }

// WithTTL sets the TTL of authoritative answers.
func WithTTL(ttl uint32) HandlerOption { return func(h *Handler) { h.ttl = ttl } }

// WithTimeout bounds the time spent forwarding a single query.
func WithTimeout(d time.Duration) HandlerOption { return func(h *Handler) { h.timeout = d } }

// WithMetrics counts answers by qtype and rcode.
func WithMetrics(m *metrics.Metrics) HandlerOption { return func(h *Handler) { h.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) HandlerOption { return func(h *Handler) { h.logger = l } }

// NewHandler returns a Handler answering from zones.
func NewHandler(zones Matcher, opts ...HandlerOption) *Handler {
	h := &Handler{
		zones:   zones,
		ttl:     300,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeDNS implements dns.Handler.
func (h *Handler) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	resp := h.Answer(ctx, req)
	if isUDP(w.LocalAddr()) {
		resp.Truncate(udpSize(req))
	}

	var qtype uint16
	if len(req.Question) > 0 {
		qtype = req.Question[0].Qtype
	}
	h.metrics.ObserveDNS(qtype, resp.Rcode)

	if err := w.WriteMsg(resp); err != nil {
		h.logger.Debug("failed to write dns response", "remote", w.RemoteAddr().String(), "err", err)
	}
}

// Answer builds the response to req.
func (h *Handler) Answer(ctx context.Context, req *dns.Msg) *dns.Msg {
	if req.Opcode != dns.OpcodeQuery {
		return failure(req, dns.RcodeNotImplemented)
	}
	if len(req.Question) != 1 {
		return failure(req, dns.RcodeFormatError)
	}
	q := req.Question[0]

	if q.Qclass == dns.ClassINET || q.Qclass == dns.ClassANY {
		if z, rel, ok := h.zones.Match(q.Name); ok {
			if resp, ok := h.authoritative(req, z, rel); ok {
				return resp
			}
		}
	}
	return h.forward(ctx, req)
}

// authoritative answers from z. It reports false when the zone vanished
// between Match and the lookup.
func (h *Handler) authoritative(req *dns.Msg, z *zone.Zone, rel string) (*dns.Msg, bool) {
	soa, err := z.SOA()
	if err != nil {
		return nil, false
	}
	q := req.Question[0]
	origin := dns.Fqdn(z.Name())

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true

	if rel == zone.Apex {
		if q.Qtype == dns.TypeSOA || q.Qtype == dns.TypeANY {
			resp.Answer = append(resp.Answer, h.soaRR(origin, soa, h.ttl))
		}
		if q.Qtype == dns.TypeNS || q.Qtype == dns.TypeANY {
			resp.Answer = append(resp.Answer, &dns.NS{
				Hdr: h.header(origin, dns.TypeNS, h.ttl),
				Ns:  dns.Fqdn(soa.Primary),
			})
		}
	}

	rec, err := z.Record(rel)
	switch {
	case err == nil:
		if q.Qtype == dns.TypeA || q.Qtype == dns.TypeANY {
			resp.Answer = append(resp.Answer, &dns.A{
				Hdr: h.header(q.Name, dns.TypeA, h.ttl),
				A:   net.ParseIP(rec.Value).To4(),
			})
		}
	case errors.Is(err, zone.ErrRecordNotFound):
		if rel != zone.Apex && !hasDescendant(z, rel) {
			resp.Rcode = dns.RcodeNameError
		}
	default:
		return nil, false
	}

	if len(resp.Answer) == 0 {
		resp.Ns = append(resp.Ns, h.soaRR(origin, soa, min(h.ttl, soa.Minimum)))
	}
	return resp, true
}

func (h *Handler) forward(ctx context.Context, req *dns.Msg) *dns.Msg {
	if h.forwarder == nil {
		return failure(req, dns.RcodeRefused)
	}
	resp, err := h.forwarder.Forward(ctx, req)
	if err != nil {
		h.logger.Warn("forwarding failed", "qname", req.Question[0].Name, "err", err)
		return failure(req, dns.RcodeServerFailure)
	}
	resp.Id = req.Id
	return resp
}

func (h *Handler) header(name string, rrtype uint16, ttl uint32) dns.RR_Header {
	return dns.RR_Header{Name: name, Rrtype: rrtype, Class: dns.ClassINET, Ttl: ttl}
}

func (h *Handler) soaRR(origin string, soa zone.SOA, ttl uint32) *dns.SOA {
	return &dns.SOA{
		Hdr:     h.header(origin, dns.TypeSOA, ttl),
		Ns:      dns.Fqdn(soa.Primary),
		Mbox:    dns.Fqdn(soa.Admin),
		Serial:  soa.Serial,
		Refresh: soa.Refresh,
		Retry:   soa.Retry,
		Expire:  soa.Expire,
		Minttl:  soa.Minimum,
	}
}

// hasDescendant reports whether rel is an empty non-terminal, i.e. some
// record lives below it.
func hasDescendant(z *zone.Zone, rel string) bool {
	suffix := "." + rel
	for _, rec := range z.Records() {
		if strings.HasSuffix(rec.Name, suffix) {
			return true
		}
	}
	return false
}

func failure(req *dns.Msg, rcode int) *dns.Msg {
	resp := new(dns.Msg)
	resp.SetRcode(req, rcode)
	return resp
}

func isUDP(addr net.Addr) bool {
	_, ok := addr.(*net.UDPAddr)
	return ok
}

// udpSize is the largest response the client accepts over UDP.
func udpSize(req *dns.Msg) int {
	if opt := req.IsEdns0(); opt != nil {
		return max(int(opt.UDPSize()), dns.MinMsgSize)
	}
	return dns.MinMsgSize
}
