package dnsserver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/minidns/internal/dnsserver"
	"github.com/jroosing/minidns/internal/metrics"
	"github.com/jroosing/minidns/internal/zone"
)

func newRegistry(t *testing.T) *zone.Registry {
	t.Helper()
	reg, err := zone.NewRegistry(nil)
	require.NoError(t, err)
	require.NoError(t, reg.AddZone("example.com"))
	z, err := reg.Zone("example.com")
	require.NoError(t, err)
	require.NoError(t, z.SetRecord("www", "192.0.2.1"))
	require.NoError(t, z.SetRecord("a.b", "192.0.2.2"))
	require.NoError(t, z.SetRecord(zone.Apex, "192.0.2.3"))
	return reg
}

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return m
}

// =============================================================================
// Authoritative answers
// =============================================================================

func TestAnswer_ARecord(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t), dnsserver.WithTTL(60))

	resp := h.Answer(context.Background(), query("WWW.example.com", dns.TypeA))
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.True(t, resp.Authoritative)
	require.Len(t, resp.Answer, 1)
	a, ok := resp.Answer[0].(*dns.A)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.1", a.A.String())
	assert.Equal(t, uint32(60), a.Hdr.Ttl)
	assert.Empty(t, resp.Ns)
}

func TestAnswer_ApexRecords(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t))

	resp := h.Answer(context.Background(), query("example.com", dns.TypeSOA))
	require.Len(t, resp.Answer, 1)
	soa, ok := resp.Answer[0].(*dns.SOA)
	require.True(t, ok)
	assert.Equal(t, "ns1.example.com.", soa.Ns)
	assert.Equal(t, "hostmaster.example.com.", soa.Mbox)

	resp = h.Answer(context.Background(), query("example.com", dns.TypeNS))
	require.Len(t, resp.Answer, 1)
	ns, ok := resp.Answer[0].(*dns.NS)
	require.True(t, ok)
	assert.Equal(t, "ns1.example.com.", ns.Ns)

	resp = h.Answer(context.Background(), query("example.com", dns.TypeA))
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "192.0.2.3", resp.Answer[0].(*dns.A).A.String())

	resp = h.Answer(context.Background(), query("example.com", dns.TypeANY))
	assert.Len(t, resp.Answer, 3)
}

func TestAnswer_NXDomain(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t))

	resp := h.Answer(context.Background(), query("missing.example.com", dns.TypeA))
	assert.Equal(t, dns.RcodeNameError, resp.Rcode)
	assert.True(t, resp.Authoritative)
	assert.Empty(t, resp.Answer)
	require.Len(t, resp.Ns, 1)
	_, ok := resp.Ns[0].(*dns.SOA)
	assert.True(t, ok)
}

func TestAnswer_NoData(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t))

	resp := h.Answer(context.Background(), query("www.example.com", dns.TypeAAAA))
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.Empty(t, resp.Answer)
	require.Len(t, resp.Ns, 1)

	// "b" only exists as the parent of "a.b".
	resp = h.Answer(context.Background(), query("b.example.com", dns.TypeA))
	assert.Equal(t, dns.RcodeSuccess, resp.Rcode)
	assert.Empty(t, resp.Answer)
}

func TestAnswer_NegativeTTLCappedByMinimum(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t), dnsserver.WithTTL(1_000_000))

	resp := h.Answer(context.Background(), query("missing.example.com", dns.TypeA))
	require.Len(t, resp.Ns, 1)
	assert.Equal(t, uint32(zone.DefaultMinimum), resp.Ns[0].Header().Ttl)
}

func TestAnswer_MalformedQueries(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t))

	empty := new(dns.Msg)
	assert.Equal(t, dns.RcodeFormatError, h.Answer(context.Background(), empty).Rcode)

	notify := query("example.com", dns.TypeSOA)
	notify.Opcode = dns.OpcodeNotify
	assert.Equal(t, dns.RcodeNotImplemented, h.Answer(context.Background(), notify).Rcode)
}

func TestAnswer_OutsideZonesRefusedWithoutForwarder(t *testing.T) {
	h := dnsserver.NewHandler(newRegistry(t))

	resp := h.Answer(context.Background(), query("example.org", dns.TypeA))
	assert.Equal(t, dns.RcodeRefused, resp.Rcode)
}

// =============================================================================
// Forwarding
// =============================================================================

type stubExchanger struct {
	resp *dns.Msg
	err  error
	got  []string
}

func (s *stubExchanger) Forward(_ context.Context, req *dns.Msg) (*dns.Msg, error) {
	s.got = append(s.got, req.Question[0].Name)
	return s.resp, s.err
}

func TestAnswer_ForwardsOutsideZones(t *testing.T) {
	upstream := new(dns.Msg)
	upstream.Rcode = dns.RcodeSuccess
	upstream.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "example.org.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 30},
		A:   net.ParseIP("198.51.100.7"),
	}}
	stub := &stubExchanger{resp: upstream}
	h := dnsserver.NewHandler(newRegistry(t), dnsserver.WithForwarder(stub))

	req := query("example.org", dns.TypeA)
	resp := h.Answer(context.Background(), req)
	assert.Equal(t, req.Id, resp.Id)
	assert.Len(t, resp.Answer, 1)
	assert.Equal(t, []string{"example.org."}, stub.got)

	// Names inside a zone never leave the process.
	h.Answer(context.Background(), query("missing.example.com", dns.TypeA))
	assert.Len(t, stub.got, 1)
}

func TestAnswer_ForwardFailureIsServfail(t *testing.T) {
	stub := &stubExchanger{err: assert.AnError}
	h := dnsserver.NewHandler(newRegistry(t), dnsserver.WithForwarder(stub))

	resp := h.Answer(context.Background(), query("example.org", dns.TypeA))
	assert.Equal(t, dns.RcodeServerFailure, resp.Rcode)
}

func TestForwarder_NoUpstreams(t *testing.T) {
	f := dnsserver.NewForwarder(nil, time.Second)
	_, err := f.Forward(context.Background(), query("example.org", dns.TypeA))
	assert.Error(t, err)
}

// =============================================================================
// Listeners
// =============================================================================

func startServer(t *testing.T, h dns.Handler) string {
	t.Helper()
	srv := dnsserver.NewServer(h, nil)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr().String()
}

func TestServer_UDPAndTCP(t *testing.T) {
	m := metrics.New(nil)
	addr := startServer(t, dnsserver.NewHandler(newRegistry(t), dnsserver.WithMetrics(m)))

	for _, network := range []string{"udp", "tcp"} {
		c := &dns.Client{Net: network, Timeout: 2 * time.Second}
		resp, _, err := c.Exchange(query("www.example.com", dns.TypeA), addr)
		require.NoError(t, err, network)
		require.Len(t, resp.Answer, 1, network)
		assert.Equal(t, "192.0.2.1", resp.Answer[0].(*dns.A).A.String())
	}

	n, err := testutil.GatherAndCount(m.Registry(), "minidns_dns_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServer_ForwarderEndToEnd(t *testing.T) {
	upstreamAddr := startServer(t, dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(r)
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 30},
			A:   net.ParseIP("198.51.100.7"),
		})
		_ = w.WriteMsg(resp)
	}))

	fwd := dnsserver.NewForwarder([]string{upstreamAddr}, 2*time.Second)
	addr := startServer(t, dnsserver.NewHandler(newRegistry(t), dnsserver.WithForwarder(fwd)))

	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := c.Exchange(query("example.org", dns.TypeA), addr)
	require.NoError(t, err)
	require.Len(t, resp.Answer, 1)
	assert.Equal(t, "198.51.100.7", resp.Answer[0].(*dns.A).A.String())
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	srv := dnsserver.NewServer(dns.HandlerFunc(func(dns.ResponseWriter, *dns.Msg) {}), nil)
	assert.Nil(t, srv.Addr())
	assert.NoError(t, srv.Shutdown(context.Background()))
}
