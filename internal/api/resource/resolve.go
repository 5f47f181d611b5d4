package resource

import (
	"net/http"
	"strings"
)

// Resolve walks path from the root and returns the terminal node together
// with any segments the terminal node did not consume. Empty segments are
// skipped, so "/", "//a//" and "a/" resolve like "", "a" and "a".
func Resolve(reg Registry, path string) (Node, []string) {
	segments := splitPath(path)

	var n Node = NewRoot(reg)
	for len(segments) > 0 {
		next, ok := n.child(segments[0])
		if !ok {
			break
		}
		n = next
		segments = segments[1:]
	}
	return n, segments
}

// Dispatch resolves req.Path and invokes the handler for req.Method.
func Dispatch(reg Registry, req Request) Response {
	n, rest := Resolve(reg, req.Path)
	if len(rest) > 0 {
		return notFound()
	}

	switch req.Method {
	case http.MethodGet:
		return n.handleGet()
	case http.MethodHead:
		return n.handleHead()
	case http.MethodPut:
		return n.handlePut(req.Body)
	case http.MethodDelete:
		return n.handleDelete()
	default:
		return methodNotAllowed(n)
	}
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
