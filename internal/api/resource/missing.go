package resource

import (
	"errors"
	"net/http"

	"github.com/jroosing/minidns/internal/zone"
)

// ZoneAbsent is a zone name with no zone behind it. Only PUT is meaningful.
type ZoneAbsent struct {
	reg  Registry
	name string
}

// Name returns the normalized zone name.
func (n ZoneAbsent) Name() string { return n.name }

func (ZoneAbsent) child(string) (Node, bool) { return nil, false }

func (ZoneAbsent) allowed() []string { return []string{http.MethodPut} }

func (ZoneAbsent) handleGet() Response { return notFound() }

func (ZoneAbsent) handleHead() Response { return notFound() }

func (ZoneAbsent) handleDelete() Response { return notFound() }

func (n ZoneAbsent) handlePut([]byte) Response {
	err := n.reg.AddZone(n.name)
	switch {
	case err == nil:
		return created()
	case isInvalid(err):
		return badRequest(err)
	case errors.Is(err, zone.ErrZoneExists):
		// Lost a race with another create; answer as the present zone would.
		return Response{Status: http.StatusMethodNotAllowed, Allow: ZonePresent{}.allowed()}
	default:
		return internalError(err)
	}
}
