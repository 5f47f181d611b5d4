// Package handlers binds the zone resource tree to gin.
//
// Every path is served by Resource:
//
//	GET    /                  zone names, one per line
//	GET    /{zone}            "A <name> <value>" lines
//	PUT    /{zone}            create zone
//	DELETE /{zone}            delete zone and its records
//	GET    /{zone}/{name}     "A <value>"
//	PUT    /{zone}/{name}     set address (body is the IPv4 address)
//	DELETE /{zone}/{name}     delete record
//
// HEAD is answered like GET without a body. Bodies are plain text.
package handlers

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/minidns/internal/api/resource"
	"github.com/jroosing/minidns/internal/pool"
)

// MaxBodyBytes caps request bodies; an address never comes close.
const MaxBodyBytes = 1 << 10

const contentType = "text/plain; charset=utf-8"

var bodyBuffers = pool.New(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// Handler contains dependencies for API handlers.
type Handler struct {
	reg    resource.Registry
	logger *slog.Logger
}

// New creates a Handler serving reg.
func New(reg resource.Registry, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reg: reg, logger: logger}
}

// Resource dispatches the request path through the resource tree.
func (h *Handler) Resource(c *gin.Context) {
	buf := bodyBuffers.Get()
	defer bodyBuffers.Put(buf)

	if _, err := buf.ReadFrom(io.LimitReader(c.Request.Body, MaxBodyBytes+1)); err != nil {
		c.Data(http.StatusBadRequest, contentType, []byte("unreadable body"))
		return
	}
	body := buf.Bytes()
	if len(body) > MaxBodyBytes {
		c.Data(http.StatusRequestEntityTooLarge, contentType, []byte("body too large"))
		return
	}

	resp := resource.Dispatch(h.reg, resource.Request{
		Method: c.Request.Method,
		Path:   c.Param("path"),
		Body:   body,
	})

	if resp.Err != nil {
		h.logger.Error("resource operation failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"err", resp.Err,
		)
		_ = c.Error(resp.Err)
	}
	if len(resp.Allow) > 0 {
		c.Header("Allow", strings.Join(resp.Allow, ", "))
	}

	if resp.Body == "" || c.Request.Method == http.MethodHead {
		c.Status(resp.Status)
		return
	}
	c.Data(resp.Status, contentType, []byte(resp.Body))
}
