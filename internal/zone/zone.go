// Package zone holds the authoritative zone registry managed by minidns.
//
// A Registry maps zone names to zones. Each zone carries an SOA identity and a
// set of A records keyed by record name. All mutations go through a single
// registry-wide lock, so adding a zone, removing a zone, setting a record and
// deleting a record are each atomic with respect to one another.
//
// Error Handling:
//
// Existence and validation failures are reported as sentinel errors
// (ErrZoneNotFound, ErrRecordNotFound, ErrZoneExists, ErrInvalidName,
// ErrInvalidValue), wrapped with context via fmt.Errorf("...: %w", err).
// Callers inspect them with errors.Is.
package zone

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	ErrZoneNotFound   = errors.New("zone not found")
	ErrZoneExists     = errors.New("zone already exists")
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidValue   = errors.New("invalid address")
)

// TypeA is the only record type managed through the control plane.
const TypeA = "A"

// Apex is the record name that refers to the zone origin itself.
const Apex = "@"

// Default SOA timers, in seconds.
const (
	DefaultRefresh = 3600
	DefaultRetry   = 600
	DefaultExpire  = 86400
	DefaultMinimum = 300
)

var labelRE = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9_])?$`)

// Record is a single named address binding inside a zone.
type Record struct {
	Type  string
	Name  string
	Value string
}

// String formats the record as "<type> <name> <value>".
func (r Record) String() string {
	return r.Type + " " + r.Name + " " + r.Value
}

// SOA is the start-of-authority identity of a zone.
type SOA struct {
	Primary string
	Admin   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// NewSOA returns the SOA assigned to a freshly created zone.
// The serial uses the conventional YYYYMMDDnn layout.
func NewSOA(name string, now time.Time) SOA {
	now = now.UTC()
	serial := uint32(now.Year()*1000000+int(now.Month())*10000+now.Day()*100) + 1 //nolint:gosec // bounded by calendar
	return SOA{
		Primary: dns.Fqdn("ns1." + name),
		Admin:   dns.Fqdn("hostmaster." + name),
		Serial:  serial,
		Refresh: DefaultRefresh,
		Retry:   DefaultRetry,
		Expire:  DefaultExpire,
		Minimum: DefaultMinimum,
	}
}

// Snapshot is a point-in-time copy of a zone, used for persistence.
type Snapshot struct {
	Name    string
	SOA     SOA
	Records []Record
}

// NormalizeName lowercases a name and strips a single trailing dot.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
}

// ValidateZoneName reports whether an already normalized name is an
// acceptable zone name.
func ValidateZoneName(name string) error {
	if name == "" {
		return fmt.Errorf("empty zone name: %w", ErrInvalidName)
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return fmt.Errorf("zone %q: %w", name, ErrInvalidName)
	}
	for _, label := range strings.Split(name, ".") {
		if !labelRE.MatchString(label) {
			return fmt.Errorf("zone %q: bad label %q: %w", name, label, ErrInvalidName)
		}
	}
	return nil
}

// ValidateRecordName reports whether an already normalized name is an
// acceptable record name relative to its zone. Apex ("@") is allowed.
func ValidateRecordName(name string) error {
	if name == Apex {
		return nil
	}
	if name == "" {
		return fmt.Errorf("empty record name: %w", ErrInvalidName)
	}
	for _, label := range strings.Split(name, ".") {
		if !labelRE.MatchString(label) {
			return fmt.Errorf("record %q: bad label %q: %w", name, label, ErrInvalidName)
		}
	}
	return nil
}

// ParseAddress validates an A record value and returns its canonical form.
func ParseAddress(value string) (string, error) {
	value = strings.TrimSpace(value)
	addr, err := netip.ParseAddr(value)
	if err != nil || !addr.Is4() {
		return "", fmt.Errorf("%q: %w", value, ErrInvalidValue)
	}
	return addr.String(), nil
}
