package cli

import (
	"context"

	"github.com/jroosing/minidns/internal/client"
)

// Daemon starts and stops the server process.
type Daemon interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type remoteOps struct {
	*client.Client
	Daemon
}

// NewOperations combines the API client with daemon control.
func NewOperations(c *client.Client, d Daemon) Operations {
	return remoteOps{Client: c, Daemon: d}
}
