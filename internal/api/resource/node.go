// Package resource maps a method and path onto zone and record operations.
//
// A path resolves, one segment at a time, to one of four node states:
//
//	/                Root
//	/{zone}          ZonePresent or ZoneAbsent, depending on the registry
//	/{zone}/{name}   Record (only below a present zone)
//
// Each state answers GET, HEAD, PUT and DELETE on its own; the status code
// is decided by the node that observes the existence or validation outcome.
// Resolution never mutates the registry.
package resource

import (
	"errors"
	"net/http"

	"github.com/jroosing/minidns/internal/zone"
)

// Registry is the zone set the nodes operate on. *zone.Registry satisfies it.
type Registry interface {
	Zones() []string
	Zone(name string) (*zone.Zone, error)
	AddZone(name string) error
	RemoveZone(name string) error
}

// Request is a method, a path and the raw body.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Response is the outcome of one dispatched request.
type Response struct {
	Status int
	Body   string
	// Allow lists the legal methods on a 405.
	Allow []string
	// Err is set on 500 responses so the caller can log it.
	Err error
}

// Node is one state of the path state machine. The method set is
// unexported so the four states below are the only implementations.
type Node interface {
	child(segment string) (Node, bool)
	allowed() []string
	handleGet() Response
	handleHead() Response
	handlePut(body []byte) Response
	handleDelete() Response
}

var (
	_ Node = Root{}
	_ Node = ZonePresent{}
	_ Node = ZoneAbsent{}
	_ Node = Record{}
)

func ok(body string) Response { return Response{Status: http.StatusOK, Body: body} }

func created() Response { return Response{Status: http.StatusCreated} }

func noContent() Response { return Response{Status: http.StatusNoContent} }

func notFound() Response { return Response{Status: http.StatusNotFound} }

func badRequest(err error) Response {
	return Response{Status: http.StatusBadRequest, Body: err.Error()}
}

func methodNotAllowed(n Node) Response {
	return Response{Status: http.StatusMethodNotAllowed, Allow: n.allowed()}
}

func internalError(err error) Response {
	return Response{Status: http.StatusInternalServerError, Body: "internal error", Err: err}
}

// headOf strips the body from a GET response.
func headOf(r Response) Response {
	r.Body = ""
	return r
}

func isNotFound(err error) bool {
	return errors.Is(err, zone.ErrZoneNotFound) || errors.Is(err, zone.ErrRecordNotFound)
}

func isInvalid(err error) bool {
	return errors.Is(err, zone.ErrInvalidValue) || errors.Is(err, zone.ErrInvalidName)
}
