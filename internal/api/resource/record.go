package resource

import (
	"net/http"

	"github.com/jroosing/minidns/internal/zone"
)

// Record is a record name inside a present zone. The record itself may or
// may not exist.
type Record struct {
	zone *zone.Zone
	name string
}

// Name returns the record name as it appeared in the path.
func (n Record) Name() string { return n.name }

func (Record) child(string) (Node, bool) { return nil, false }

func (Record) allowed() []string {
	return []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete}
}

func (n Record) handleGet() Response {
	rec, err := n.zone.Record(n.name)
	switch {
	case err == nil:
		return ok(rec.Type + " " + rec.Value)
	case isNotFound(err):
		return notFound()
	default:
		return internalError(err)
	}
}

func (n Record) handleHead() Response { return headOf(n.handleGet()) }

// The body is the address; surrounding whitespace is ignored.
func (n Record) handlePut(body []byte) Response {
	err := n.zone.SetRecord(n.name, string(body))
	switch {
	case err == nil:
		return created()
	case isInvalid(err):
		return badRequest(err)
	case isNotFound(err):
		return notFound()
	default:
		return internalError(err)
	}
}

func (n Record) handleDelete() Response {
	err := n.zone.DeleteRecord(n.name)
	switch {
	case err == nil:
		return noContent()
	case isNotFound(err):
		return notFound()
	default:
		return internalError(err)
	}
}
