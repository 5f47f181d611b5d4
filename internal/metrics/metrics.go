// Package metrics exposes minidns counters to prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry so tests and multiple
// instances never collide on the global one.
type Metrics struct {
	registry    *prometheus.Registry
	apiRequests *prometheus.CounterVec
	dnsQueries  *prometheus.CounterVec
}

// New registers the collectors. zoneCount backs the minidns_zones gauge and
// may be nil.
func New(zoneCount func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minidns_api_requests_total",
				Help: "Control API requests by method and status code",
			},
			[]string{"method", "code"},
		),
		dnsQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minidns_dns_queries_total",
				Help: "DNS queries answered, by qtype and rcode",
			},
			[]string{"qtype", "rcode"},
		),
	}
	m.registry.MustRegister(m.apiRequests, m.dnsQueries)

	if zoneCount != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "minidns_zones",
				Help: "Zones currently held by the registry",
			},
			func() float64 { return float64(zoneCount()) },
		))
	}
	return m
}

// ObserveAPI counts one control API request. Safe on a nil receiver.
func (m *Metrics) ObserveAPI(method string, status int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// ObserveDNS counts one DNS answer. Safe on a nil receiver.
func (m *Metrics) ObserveDNS(qtype uint16, rcode int) {
	if m == nil {
		return
	}
	m.dnsQueries.WithLabelValues(dns.TypeToString[qtype], dns.RcodeToString[rcode]).Inc()
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
