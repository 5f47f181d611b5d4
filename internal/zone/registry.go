package zone

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists registry mutations. Every method is called while the
// registry holds its write lock; a returned error aborts the mutation and
// leaves the in-memory state untouched.
type Store interface {
	Load() ([]Snapshot, error)
	AddZone(name string, soa SOA) error
	RemoveZone(name string) error
	PutRecord(zone string, rec Record, serial uint32) error
	DeleteRecord(zone, name string, serial uint32) error
}

type zoneData struct {
	soa     SOA
	records map[string]Record
}

// Registry owns the set of authoritative zones.
type Registry struct {
	mu    sync.RWMutex
	zones map[string]*zoneData
	store Store
	now   func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used for SOA serials.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry backed by store and loads its contents.
// A nil store keeps everything in memory.
func NewRegistry(store Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		zones: make(map[string]*zoneData),
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if store == nil {
		return r, nil
	}

	snaps, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load zones: %w", err)
	}
	for _, s := range snaps {
		zd := &zoneData{soa: s.SOA, records: make(map[string]Record, len(s.Records))}
		for _, rec := range s.Records {
			zd.records[rec.Name] = rec
		}
		r.zones[NormalizeName(s.Name)] = zd
	}
	return r, nil
}

// Zones returns the names of all zones, sorted.
func (r *Registry) Zones() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.zones))
}

// Len returns the number of zones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// Zone returns a handle to the named zone, or ErrZoneNotFound.
func (r *Registry) Zone(name string) (*Zone, error) {
	name = NormalizeName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.zones[name]; !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrZoneNotFound)
	}
	return &Zone{reg: r, name: name}, nil
}

// AddZone creates an empty zone.
func (r *Registry) AddZone(name string) error {
	name = NormalizeName(name)
	if err := ValidateZoneName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrZoneExists)
	}
	soa := NewSOA(name, r.now())
	if r.store != nil {
		if err := r.store.AddZone(name, soa); err != nil {
			return fmt.Errorf("failed to store zone %s: %w", name, err)
		}
	}
	r.zones[name] = &zoneData{soa: soa, records: make(map[string]Record)}
	return nil
}

// RemoveZone deletes a zone together with all of its records.
func (r *Registry) RemoveZone(name string) error {
	name = NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.zones[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrZoneNotFound)
	}
	if r.store != nil {
		if err := r.store.RemoveZone(name); err != nil {
			return fmt.Errorf("failed to remove zone %s: %w", name, err)
		}
	}
	delete(r.zones, name)
	return nil
}

// Match finds the most specific zone containing qname and returns it along
// with the record name relative to that zone (Apex for the origin).
func (r *Registry) Match(qname string) (*Zone, string, bool) {
	q := NormalizeName(qname)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for candidate := q; candidate != ""; {
		if _, ok := r.zones[candidate]; ok {
			rel := Apex
			if candidate != q {
				rel = strings.TrimSuffix(q, "."+candidate)
			}
			return &Zone{reg: r, name: candidate}, rel, true
		}
		i := strings.IndexByte(candidate, '.')
		if i < 0 {
			break
		}
		candidate = candidate[i+1:]
	}
	return nil, "", false
}

// Zone is a handle onto one zone of a Registry. Every call goes through the
// registry lock; once the zone is removed, calls report ErrZoneNotFound.
type Zone struct {
	reg  *Registry
	name string
}

// Name returns the normalized zone name.
func (z *Zone) Name() string { return z.name }

// SOA returns the zone's SOA identity.
func (z *Zone) SOA() (SOA, error) {
	z.reg.mu.RLock()
	defer z.reg.mu.RUnlock()
	zd, ok := z.reg.zones[z.name]
	if !ok {
		return SOA{}, fmt.Errorf("%s: %w", z.name, ErrZoneNotFound)
	}
	return zd.soa, nil
}

// Records returns all A records of the zone sorted by name. A zone removed
// since the handle was obtained has no records.
func (z *Zone) Records() []Record {
	z.reg.mu.RLock()
	defer z.reg.mu.RUnlock()
	zd, ok := z.reg.zones[z.name]
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(zd.records))
	for _, name := range slices.Sorted(maps.Keys(zd.records)) {
		out = append(out, zd.records[name])
	}
	return out
}

// Record returns a single record by name.
func (z *Zone) Record(name string) (Record, error) {
	name = NormalizeName(name)

	z.reg.mu.RLock()
	defer z.reg.mu.RUnlock()
	zd, ok := z.reg.zones[z.name]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", z.name, ErrZoneNotFound)
	}
	rec, ok := zd.records[name]
	if !ok {
		return Record{}, fmt.Errorf("%s in %s: %w", name, z.name, ErrRecordNotFound)
	}
	return rec, nil
}

// SetRecord creates or overwrites an A record. The value is validated before
// anything is stored.
func (z *Zone) SetRecord(name, value string) error {
	name = NormalizeName(name)
	if err := ValidateRecordName(name); err != nil {
		return err
	}
	addr, err := ParseAddress(value)
	if err != nil {
		return err
	}
	rec := Record{Type: TypeA, Name: name, Value: addr}

	z.reg.mu.Lock()
	defer z.reg.mu.Unlock()
	zd, ok := z.reg.zones[z.name]
	if !ok {
		return fmt.Errorf("%s: %w", z.name, ErrZoneNotFound)
	}
	serial := zd.soa.Serial + 1
	if z.reg.store != nil {
		if err := z.reg.store.PutRecord(z.name, rec, serial); err != nil {
			return fmt.Errorf("failed to store record %s in %s: %w", name, z.name, err)
		}
	}
	zd.records[name] = rec
	zd.soa.Serial = serial
	return nil
}

// DeleteRecord removes a record, reporting ErrRecordNotFound if absent.
func (z *Zone) DeleteRecord(name string) error {
	name = NormalizeName(name)

	z.reg.mu.Lock()
	defer z.reg.mu.Unlock()
	zd, ok := z.reg.zones[z.name]
	if !ok {
		return fmt.Errorf("%s: %w", z.name, ErrZoneNotFound)
	}
	if _, ok := zd.records[name]; !ok {
		return fmt.Errorf("%s in %s: %w", name, z.name, ErrRecordNotFound)
	}
	serial := zd.soa.Serial + 1
	if z.reg.store != nil {
		if err := z.reg.store.DeleteRecord(z.name, name, serial); err != nil {
			return fmt.Errorf("failed to delete record %s in %s: %w", name, z.name, err)
		}
	}
	delete(zd.records, name)
	zd.soa.Serial = serial
	return nil
}
