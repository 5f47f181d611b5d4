package resource

import (
	"net/http"
	"strings"

	"github.com/jroosing/minidns/internal/zone"
)

// Root lists zones and resolves the first path segment.
type Root struct {
	reg Registry
}

// NewRoot returns the root node of reg.
func NewRoot(reg Registry) Root { return Root{reg: reg} }

func (n Root) child(segment string) (Node, bool) {
	name := zone.NormalizeName(segment)
	z, err := n.reg.Zone(name)
	if err != nil {
		return ZoneAbsent{reg: n.reg, name: name}, true
	}
	return ZonePresent{reg: n.reg, zone: z}, true
}

func (Root) allowed() []string { return []string{http.MethodGet, http.MethodHead} }

func (n Root) handleGet() Response {
	return ok(strings.Join(n.reg.Zones(), "\n"))
}

func (n Root) handleHead() Response { return headOf(n.handleGet()) }

func (n Root) handlePut([]byte) Response { return methodNotAllowed(n) }

func (n Root) handleDelete() Response { return methodNotAllowed(n) }
