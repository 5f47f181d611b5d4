package zone_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jroosing/minidns/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
}

func newRegistry(t *testing.T) *zone.Registry {
	t.Helper()
	reg, err := zone.NewRegistry(nil, zone.WithClock(fixedClock))
	require.NoError(t, err)
	return reg
}

// =============================================================================
// Name and value validation
// =============================================================================

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "example.com", zone.NormalizeName("example.com."))
	assert.Equal(t, "example.com", zone.NormalizeName("Example.COM"))
	assert.Equal(t, "www", zone.NormalizeName(" www "))
}

func TestValidateZoneName(t *testing.T) {
	valid := []string{"example.com", "a", "sub.example.co.uk", "xn--bcher-kva.example", "_srv.example.com"}
	for _, name := range valid {
		assert.NoError(t, zone.ValidateZoneName(name), name)
	}

	invalid := []string{"", "bad name.com", "-lead.com", "trail-.com", "a..b", "exa$mple.com"}
	for _, name := range invalid {
		err := zone.ValidateZoneName(name)
		assert.ErrorIs(t, err, zone.ErrInvalidName, name)
	}
}

func TestValidateRecordName(t *testing.T) {
	assert.NoError(t, zone.ValidateRecordName("www"))
	assert.NoError(t, zone.ValidateRecordName("a.b"))
	assert.NoError(t, zone.ValidateRecordName(zone.Apex))
	assert.ErrorIs(t, zone.ValidateRecordName(""), zone.ErrInvalidName)
	assert.ErrorIs(t, zone.ValidateRecordName("w w"), zone.ErrInvalidName)
}

func TestParseAddress(t *testing.T) {
	got, err := zone.ParseAddress(" 192.0.2.1\n")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", got)

	for _, bad := range []string{"", "not-an-ip", "256.1.1.1", "2001:db8::1", "192.0.2"} {
		_, err := zone.ParseAddress(bad)
		assert.ErrorIs(t, err, zone.ErrInvalidValue, bad)
	}
}

func TestNewSOA(t *testing.T) {
	soa := zone.NewSOA("example.com", fixedClock())
	assert.Equal(t, "ns1.example.com.", soa.Primary)
	assert.Equal(t, "hostmaster.example.com.", soa.Admin)
	assert.Equal(t, uint32(2026101801), soa.Serial)
	assert.Equal(t, uint32(zone.DefaultMinimum), soa.Minimum)
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_AddListRemove(t *testing.T) {
	reg := newRegistry(t)
	assert.Empty(t, reg.Zones())

	require.NoError(t, reg.AddZone("b.example."))
	require.NoError(t, reg.AddZone("a.example"))
	assert.Equal(t, []string{"a.example", "b.example"}, reg.Zones())
	assert.Equal(t, 2, reg.Len())

	err := reg.AddZone("A.example")
	assert.ErrorIs(t, err, zone.ErrZoneExists)

	require.NoError(t, reg.RemoveZone("a.example."))
	assert.Equal(t, []string{"b.example"}, reg.Zones())

	err = reg.RemoveZone("a.example")
	assert.ErrorIs(t, err, zone.ErrZoneNotFound)
}

func TestRegistry_AddInvalidZone(t *testing.T) {
	reg := newRegistry(t)
	err := reg.AddZone("not valid")
	assert.ErrorIs(t, err, zone.ErrInvalidName)
	assert.Empty(t, reg.Zones())
}

func TestRegistry_ZoneNotFound(t *testing.T) {
	reg := newRegistry(t)
	_, err := reg.Zone("missing.example")
	assert.ErrorIs(t, err, zone.ErrZoneNotFound)
}

func TestZone_RecordLifecycle(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.AddZone("example.com"))
	z, err := reg.Zone("example.com")
	require.NoError(t, err)

	_, err = z.Record("www")
	assert.ErrorIs(t, err, zone.ErrRecordNotFound)

	require.NoError(t, z.SetRecord("www", "192.0.2.1"))
	rec, err := z.Record("WWW")
	require.NoError(t, err)
	assert.Equal(t, zone.Record{Type: zone.TypeA, Name: "www", Value: "192.0.2.1"}, rec)

	require.NoError(t, z.SetRecord("www", "192.0.2.2"))
	rec, err = z.Record("www")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.2", rec.Value)

	require.NoError(t, z.DeleteRecord("www"))
	assert.ErrorIs(t, z.DeleteRecord("www"), zone.ErrRecordNotFound)
	assert.Empty(t, z.Records())
}

func TestZone_InvalidValueLeavesPriorValue(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.AddZone("example.com"))
	z, err := reg.Zone("example.com")
	require.NoError(t, err)
	require.NoError(t, z.SetRecord("www", "192.0.2.1"))

	err = z.SetRecord("www", "garbage")
	assert.ErrorIs(t, err, zone.ErrInvalidValue)

	rec, err := z.Record("www")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", rec.Value)
}

func TestZone_RecordsSorted(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.AddZone("example.com"))
	z, _ := reg.Zone("example.com")
	require.NoError(t, z.SetRecord("www", "192.0.2.2"))
	require.NoError(t, z.SetRecord("mail", "192.0.2.3"))
	require.NoError(t, z.SetRecord(zone.Apex, "192.0.2.1"))

	recs := z.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, "@", recs[0].Name)
	assert.Equal(t, "mail", recs[1].Name)
	assert.Equal(t, "www", recs[2].Name)
	assert.Equal(t, "A www 192.0.2.2", recs[2].String())
}

func TestZone_SerialBumpsOnMutation(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.AddZone("example.com"))
	z, _ := reg.Zone("example.com")

	soa, err := z.SOA()
	require.NoError(t, err)
	start := soa.Serial

	require.NoError(t, z.SetRecord("www", "192.0.2.1"))
	require.NoError(t, z.DeleteRecord("www"))
	_ = z.SetRecord("www", "bogus")

	soa, err = z.SOA()
	require.NoError(t, err)
	assert.Equal(t, start+2, soa.Serial)
}

func TestZone_HandleAfterRemove(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.AddZone("example.com"))
	z, _ := reg.Zone("example.com")
	require.NoError(t, z.SetRecord("www", "192.0.2.1"))

	require.NoError(t, reg.RemoveZone("example.com"))

	assert.Nil(t, z.Records())
	_, err := z.Record("www")
	assert.ErrorIs(t, err, zone.ErrZoneNotFound)
	assert.ErrorIs(t, z.SetRecord("www", "192.0.2.1"), zone.ErrZoneNotFound)
	assert.ErrorIs(t, z.DeleteRecord("www"), zone.ErrZoneNotFound)

	// Re-creating the zone must not resurrect old records.
	require.NoError(t, reg.AddZone("example.com"))
	z2, _ := reg.Zone("example.com")
	assert.Empty(t, z2.Records())
}

func TestRegistry_Match(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.AddZone("example.com"))
	require.NoError(t, reg.AddZone("sub.example.com"))

	tests := []struct {
		qname    string
		wantZone string
		wantRel  string
		wantOK   bool
	}{
		{"example.com.", "example.com", zone.Apex, true},
		{"www.example.com.", "example.com", "www", true},
		{"a.b.example.com", "example.com", "a.b", true},
		{"www.sub.example.com.", "sub.example.com", "www", true},
		{"example.org.", "", "", false},
		{".", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.qname, func(t *testing.T) {
			z, rel, ok := reg.Match(tt.qname)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantZone, z.Name())
				assert.Equal(t, tt.wantRel, rel)
			}
		})
	}
}

// =============================================================================
// Store interaction
// =============================================================================

type fakeStore struct {
	snaps   []zone.Snapshot
	fail    error
	calls   []string
	serials []uint32
}

func (s *fakeStore) Load() ([]zone.Snapshot, error) { return s.snaps, s.fail }

func (s *fakeStore) AddZone(name string, _ zone.SOA) error {
	s.calls = append(s.calls, "add "+name)
	return s.fail
}

func (s *fakeStore) RemoveZone(name string) error {
	s.calls = append(s.calls, "remove "+name)
	return s.fail
}

func (s *fakeStore) PutRecord(z string, rec zone.Record, serial uint32) error {
	s.calls = append(s.calls, "put "+z+" "+rec.Name)
	s.serials = append(s.serials, serial)
	return s.fail
}

func (s *fakeStore) DeleteRecord(z, name string, serial uint32) error {
	s.calls = append(s.calls, "delete "+z+" "+name)
	s.serials = append(s.serials, serial)
	return s.fail
}

func TestRegistry_LoadsFromStore(t *testing.T) {
	store := &fakeStore{snaps: []zone.Snapshot{{
		Name:    "example.com",
		SOA:     zone.SOA{Serial: 7},
		Records: []zone.Record{{Type: zone.TypeA, Name: "www", Value: "192.0.2.1"}},
	}}}
	reg, err := zone.NewRegistry(store)
	require.NoError(t, err)

	z, err := reg.Zone("example.com")
	require.NoError(t, err)
	rec, err := z.Record("www")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", rec.Value)

	require.NoError(t, z.SetRecord("mail", "192.0.2.9"))
	assert.Equal(t, []uint32{8}, store.serials)
}

func TestRegistry_LoadFailure(t *testing.T) {
	_, err := zone.NewRegistry(&fakeStore{fail: errors.New("disk gone")})
	assert.Error(t, err)
}

func TestRegistry_StoreFailureLeavesStateUnchanged(t *testing.T) {
	store := &fakeStore{}
	reg, err := zone.NewRegistry(store)
	require.NoError(t, err)
	require.NoError(t, reg.AddZone("example.com"))
	z, _ := reg.Zone("example.com")
	require.NoError(t, z.SetRecord("www", "192.0.2.1"))

	store.fail = errors.New("write failed")

	assert.Error(t, reg.AddZone("other.com"))
	assert.Equal(t, []string{"example.com"}, reg.Zones())

	assert.Error(t, z.SetRecord("www", "192.0.2.2"))
	rec, _ := z.Record("www")
	assert.Equal(t, "192.0.2.1", rec.Value)

	assert.Error(t, z.DeleteRecord("www"))
	_, err = z.Record("www")
	assert.NoError(t, err)

	assert.Error(t, reg.RemoveZone("example.com"))
	assert.Equal(t, []string{"example.com"}, reg.Zones())
}

func TestRegistry_InvalidValueNeverReachesStore(t *testing.T) {
	store := &fakeStore{}
	reg, err := zone.NewRegistry(store)
	require.NoError(t, err)
	require.NoError(t, reg.AddZone("example.com"))
	z, _ := reg.Zone("example.com")

	require.ErrorIs(t, z.SetRecord("www", "nope"), zone.ErrInvalidValue)
	assert.Equal(t, []string{"add example.com"}, store.calls)
}
