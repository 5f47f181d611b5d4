package resource

import (
	"net/http"
	"strings"

	"github.com/jroosing/minidns/internal/zone"
)

// ZonePresent is a zone that existed when the path was resolved.
type ZonePresent struct {
	reg  Registry
	zone *zone.Zone
}

// Name returns the zone name.
func (n ZonePresent) Name() string { return n.zone.Name() }

// Record nodes are produced without checking that the record exists.
func (n ZonePresent) child(segment string) (Node, bool) {
	return Record{zone: n.zone, name: segment}, true
}

func (ZonePresent) allowed() []string {
	return []string{http.MethodGet, http.MethodHead, http.MethodDelete}
}

func (n ZonePresent) handleGet() Response {
	recs := n.zone.Records()
	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		lines = append(lines, rec.String())
	}
	return ok(strings.Join(lines, "\n"))
}

func (n ZonePresent) handleHead() Response { return headOf(n.handleGet()) }

// Creating over an existing zone is refused so its identity is never reset.
func (n ZonePresent) handlePut([]byte) Response { return methodNotAllowed(n) }

func (n ZonePresent) handleDelete() Response {
	err := n.reg.RemoveZone(n.zone.Name())
	switch {
	case err == nil:
		return noContent()
	case isNotFound(err):
		return notFound()
	default:
		return internalError(err)
	}
}
